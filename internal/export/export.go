// Package export writes dependency graphs to files and databases.
//
// File formats (DGML, DOT, JSON) are produced by a Writer. Database
// targets (SQLite, PostgreSQL, Redis) are produced by a Sink that replaces
// whatever graph the target held before.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/codegraph/internal/graph"
)

// Format identifies an output format
type Format string

const (
	// FormatDGML writes a Directed Graph Markup Language document
	FormatDGML Format = "dgml"

	// FormatDOT writes a Graphviz digraph
	FormatDOT Format = "dot"

	// FormatJSON writes nodes and links as a JSON document
	FormatJSON Format = "json"

	// FormatSQLite stores the graph in a SQLite database file
	FormatSQLite Format = "sqlite"

	// FormatPostgres stores the graph in a PostgreSQL database
	FormatPostgres Format = "postgres"

	// FormatRedis stores the graph under a key prefix in Redis
	FormatRedis Format = "redis"
)

// ErrUnknownFormat is returned for a format name that is not supported
var ErrUnknownFormat = errors.New("unknown output format")

// ErrTargetRequired is returned when a database format has no target
var ErrTargetRequired = errors.New("output target required")

// Formats lists every supported format
func Formats() []Format {
	return []Format{FormatDGML, FormatDOT, FormatJSON, FormatSQLite, FormatPostgres, FormatRedis}
}

// ParseFormat maps a format name to a Format
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, f := range Formats() {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// DetectFormat picks a format from a URL scheme or file extension,
// defaulting to DGML
func DetectFormat(target string) Format {
	if f, ok := FormatFor(target); ok {
		return f
	}
	return FormatDGML
}

// FormatFor reports the format implied by a URL scheme or file extension
// of target, if any
func FormatFor(target string) (Format, bool) {
	lower := strings.ToLower(target)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return FormatPostgres, true
	case strings.HasPrefix(lower, "redis://"), strings.HasPrefix(lower, "rediss://"):
		return FormatRedis, true
	}

	switch filepath.Ext(lower) {
	case ".dgml":
		return FormatDGML, true
	case ".dot", ".gv":
		return FormatDOT, true
	case ".json":
		return FormatJSON, true
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, true
	default:
		return "", false
	}
}

// IsFile reports whether f is written as a file rather than stored in a
// database
func (f Format) IsFile() bool {
	return f == FormatDGML || f == FormatDOT || f == FormatJSON
}

// Writer serializes a graph as a document
type Writer interface {
	Write(w io.Writer, g *graph.Graph) error
}

// Sink stores a graph at a database target
type Sink interface {
	Store(ctx context.Context, g *graph.Graph) error
	Close() error
}

// NewWriter returns the writer for a file format
func NewWriter(format Format) (Writer, error) {
	switch format {
	case FormatDGML:
		return &DGMLWriter{}, nil
	case FormatDOT:
		return &DOTWriter{}, nil
	case FormatJSON:
		return &JSONWriter{Indent: "  "}, nil
	default:
		return nil, fmt.Errorf("%w: %q is not a file format", ErrUnknownFormat, format)
	}
}

// Config holds exporter settings
type Config struct {
	// TablePrefix names the SQL tables "<prefix>nodes" and "<prefix>links"
	TablePrefix string

	// KeyPrefix is prepended to every Redis key
	KeyPrefix string
}

// DefaultConfig returns the default exporter settings
func DefaultConfig() Config {
	return Config{
		TablePrefix: "codegraph_",
		KeyPrefix:   "codegraph:",
	}
}

// Exporter writes graphs to targets
type Exporter struct {
	config Config
	stdout io.Writer
	logger *zap.Logger
}

// NewExporter creates an exporter. Documents without a target go to stdout.
func NewExporter(config Config, stdout io.Writer, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{config: config, stdout: stdout, logger: logger}
}

// Export writes g to target in format
func (e *Exporter) Export(ctx context.Context, g *graph.Graph, format Format, target string) error {
	if format.IsFile() {
		return e.writeFile(g, format, target)
	}
	if target == "" {
		return fmt.Errorf("%w for %s", ErrTargetRequired, format)
	}

	sink, err := e.openSink(ctx, format, target)
	if err != nil {
		return err
	}
	defer sink.Close()

	if err := sink.Store(ctx, g); err != nil {
		return fmt.Errorf("failed to store graph in %s: %w", format, err)
	}
	e.logger.Debug("stored graph",
		zap.String("format", string(format)),
		zap.Int("nodes", g.NodeCount()),
		zap.Int("links", g.EdgeCount()))
	return nil
}

func (e *Exporter) writeFile(g *graph.Graph, format Format, target string) error {
	writer, err := NewWriter(format)
	if err != nil {
		return err
	}
	if target == "" {
		return writer.Write(e.stdout, g)
	}

	if dir := filepath.Dir(target); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if err := writer.Write(f, g); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}

	e.logger.Debug("wrote graph",
		zap.String("path", target),
		zap.String("format", string(format)))
	return nil
}

func (e *Exporter) openSink(ctx context.Context, format Format, target string) (Sink, error) {
	var dialect Dialect
	switch format {
	case FormatSQLite:
		dialect = SQLite
	case FormatPostgres:
		dialect = Postgres
	case FormatRedis:
		sink, err := OpenRedis(ctx, target, e.config.KeyPrefix)
		if err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	sink, err := OpenSQL(ctx, dialect, target, e.config.TablePrefix)
	if err != nil {
		return nil, err
	}
	return sink, nil
}
