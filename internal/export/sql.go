package export

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/conduit-lang/codegraph/internal/graph"
)

// Dialect captures what differs between the supported SQL databases
type Dialect struct {
	Name   string
	Driver string

	placeholder func(n int) string
}

var (
	// SQLite stores the graph in a database file
	SQLite = Dialect{
		Name:        "sqlite",
		Driver:      "sqlite3",
		placeholder: func(int) string { return "?" },
	}

	// Postgres stores the graph in a PostgreSQL database given by URL
	Postgres = Dialect{
		Name:        "postgres",
		Driver:      "pgx",
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	}
)

// placeholders renders n bind parameters
func (d Dialect) placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = d.placeholder(i + 1)
	}
	return strings.Join(parts, ", ")
}

// SQLSink stores graphs in two tables: nodes and links
type SQLSink struct {
	db      *sql.DB
	dialect Dialect
	nodes   string
	links   string
}

// OpenSQL connects to dsn with the driver of dialect
func OpenSQL(ctx context.Context, dialect Dialect, dsn, prefix string) (*SQLSink, error) {
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect.Name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", dialect.Name, err)
	}
	return NewSQLSink(db, dialect, prefix), nil
}

// NewSQLSink wraps an open database
func NewSQLSink(db *sql.DB, dialect Dialect, prefix string) *SQLSink {
	return &SQLSink{
		db:      db,
		dialect: dialect,
		nodes:   pq.QuoteIdentifier(prefix + "nodes"),
		links:   pq.QuoteIdentifier(prefix + "links"),
	}
}

func (s *SQLSink) schema() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	label TEXT NOT NULL,
	category TEXT NOT NULL,
	group_style TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL
)`, s.nodes),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL,
	PRIMARY KEY (source, target, category)
)`, s.links),
	}
}

// Store replaces the stored graph with g in one transaction
func (s *SQLSink) Store(ctx context.Context, g *graph.Graph) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, stmt := range s.schema() {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	for _, table := range []string{s.links, s.nodes} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err = s.insertNodes(ctx, tx, g); err != nil {
		return err
	}
	if err = s.insertLinks(ctx, tx, g); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLSink) insertNodes(ctx context.Context, tx *sql.Tx, g *graph.Graph) error {
	query := fmt.Sprintf("INSERT INTO %s (id, label, category, group_style, position) VALUES (%s)",
		s.nodes, s.dialect.placeholders(5))
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare node insert: %w", err)
	}
	defer stmt.Close()

	for i, node := range g.Nodes() {
		if _, err := stmt.ExecContext(ctx, node.ID, node.Label, node.Category.String(), node.Group.String(), i); err != nil {
			return fmt.Errorf("failed to insert node %s: %w", node.ID, err)
		}
	}
	return nil
}

func (s *SQLSink) insertLinks(ctx context.Context, tx *sql.Tx, g *graph.Graph) error {
	query := fmt.Sprintf("INSERT INTO %s (source, target, category, position) VALUES (%s)",
		s.links, s.dialect.placeholders(4))
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare link insert: %w", err)
	}
	defer stmt.Close()

	for i, edge := range g.Edges() {
		if _, err := stmt.ExecContext(ctx, edge.Source.ID, edge.Target.ID, edge.Category.String(), i); err != nil {
			return fmt.Errorf("failed to insert link %s -> %s: %w", edge.Source.ID, edge.Target.ID, err)
		}
	}
	return nil
}

// Close closes the database
func (s *SQLSink) Close() error {
	return s.db.Close()
}
