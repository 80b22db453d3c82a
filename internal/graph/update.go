package graph

import (
	"errors"

	"github.com/google/uuid"
)

// ErrUpdateInProgress is returned when an update scope is already open
var ErrUpdateInProgress = errors.New("graph update already in progress")

// Update is an atomic mutation scope. Everything added to the graph
// between BeginUpdate and Close is discarded unless Complete was called.
type Update struct {
	ID   uuid.UUID
	Name string

	graph     *Graph
	nodeMark  int
	edgeMark  int
	grouped   []*Node
	completed bool
	closed    bool
}

// BeginUpdate opens an update scope. Only one scope may be open at a time.
//
// Example:
//
//	scope, err := g.BeginUpdate("App.yaml")
//	if err != nil {
//	    return err
//	}
//	defer scope.Close()
//	... populate ...
//	scope.Complete()
func (g *Graph) BeginUpdate(name string) (*Update, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.update != nil {
		return nil, ErrUpdateInProgress
	}

	u := &Update{
		ID:       uuid.New(),
		Name:     name,
		graph:    g,
		nodeMark: len(g.nodeOrder),
		edgeMark: len(g.edgeOrder),
	}
	g.update = u
	return u, nil
}

// Complete commits the scope; a later Close keeps the changes
func (u *Update) Complete() {
	u.completed = true
}

// Completed reports whether Complete was called
func (u *Update) Completed() bool {
	return u.completed
}

// Close ends the scope, rolling back its changes if it was not completed.
// Close is idempotent.
func (u *Update) Close() {
	g := u.graph
	g.mu.Lock()
	defer g.mu.Unlock()

	if u.closed {
		return
	}
	u.closed = true
	if g.update == u {
		g.update = nil
	}
	if u.completed {
		return
	}

	for _, edge := range g.edgeOrder[u.edgeMark:] {
		delete(g.edges, edgeKey{source: edge.Source.ID, target: edge.Target.ID, category: edge.Category})
		if edge.Category == LinkContains && g.containers[edge.Target] == edge.Source {
			delete(g.containers, edge.Target)
		}
	}
	g.edgeOrder = g.edgeOrder[:u.edgeMark]

	for _, node := range g.nodeOrder[u.nodeMark:] {
		delete(g.nodes, node.ID)
		delete(g.containers, node)
	}
	g.nodeOrder = g.nodeOrder[:u.nodeMark]

	for _, node := range u.grouped {
		node.IsGroup = false
		node.Group = GroupNone
	}
}
