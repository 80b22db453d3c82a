// Package graph holds the node and edge store that the builder populates.
package graph

import (
	"sync"
)

// NodeCategory classifies a node. The set is closed.
type NodeCategory int

const (
	CategoryAssembly NodeCategory = iota
	CategoryNamespace
	CategoryClass
	CategoryStruct
	CategoryInterface
	CategoryEnum
	CategoryMethod
)

// String returns the category name
func (c NodeCategory) String() string {
	switch c {
	case CategoryAssembly:
		return "Assembly"
	case CategoryNamespace:
		return "Namespace"
	case CategoryClass:
		return "Class"
	case CategoryStruct:
		return "Struct"
	case CategoryInterface:
		return "Interface"
	case CategoryEnum:
		return "Enum"
	case CategoryMethod:
		return "Method"
	default:
		return "Unknown"
	}
}

// NodeCategories lists every node category in declaration order
var NodeCategories = []NodeCategory{
	CategoryAssembly,
	CategoryNamespace,
	CategoryClass,
	CategoryStruct,
	CategoryInterface,
	CategoryEnum,
	CategoryMethod,
}

// LinkCategory classifies an edge
type LinkCategory int

const (
	// LinkPlain is an uncategorized dependency edge (module to module)
	LinkPlain LinkCategory = iota
	LinkContains
	LinkReferences
	LinkCalls
)

// String returns the link category name, empty for plain links
func (c LinkCategory) String() string {
	switch c {
	case LinkContains:
		return "Contains"
	case LinkReferences:
		return "References"
	case LinkCalls:
		return "Calls"
	default:
		return ""
	}
}

// LinkCategories lists every link category in declaration order
var LinkCategories = []LinkCategory{LinkPlain, LinkContains, LinkReferences, LinkCalls}

// GroupStyle is the expansion state of a group node
type GroupStyle int

const (
	GroupNone GroupStyle = iota
	GroupExpanded
	GroupCollapsed
)

// String returns the group style name
func (s GroupStyle) String() string {
	switch s {
	case GroupExpanded:
		return "Expanded"
	case GroupCollapsed:
		return "Collapsed"
	default:
		return ""
	}
}

// Node is a vertex in the graph
type Node struct {
	ID       string
	Label    string
	Category NodeCategory
	IsGroup  bool
	Group    GroupStyle
}

// Edge connects two nodes
type Edge struct {
	Source   *Node
	Target   *Node
	Category LinkCategory
}

type edgeKey struct {
	source   string
	target   string
	category LinkCategory
}

// Graph is the identity-keyed node and edge store for one run.
//
// Writes are expected from a single builder; the lock only makes
// reads after the pass safe.
type Graph struct {
	nodes      map[string]*Node
	nodeOrder  []*Node
	edges      map[edgeKey]*Edge
	edgeOrder  []*Edge
	containers map[*Node]*Node
	update     *Update
	mu         sync.RWMutex
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		nodes:      make(map[string]*Node),
		edges:      make(map[edgeKey]*Edge),
		containers: make(map[*Node]*Node),
	}
}

// GetOrCreateNode returns the node stored under id, creating it with the
// given label and category when absent. An existing node keeps its
// original label and category.
func (g *Graph) GetOrCreateNode(id, label string, category NodeCategory) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()

	if node, ok := g.nodes[id]; ok {
		return node
	}

	node := &Node{ID: id, Label: label, Category: category}
	g.nodes[id] = node
	g.nodeOrder = append(g.nodeOrder, node)
	return node
}

// GetOrCreateEdge returns the edge for (source, target, category),
// creating it when absent.
func (g *Graph) GetOrCreateEdge(source, target *Node, category LinkCategory) *Edge {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := edgeKey{source: source.ID, target: target.ID, category: category}
	if edge, ok := g.edges[key]; ok {
		return edge
	}

	edge := &Edge{Source: source, Target: target, Category: category}
	g.edges[key] = edge
	g.edgeOrder = append(g.edgeOrder, edge)

	if category == LinkContains {
		if _, ok := g.containers[target]; !ok {
			g.containers[target] = source
		}
	}
	return edge
}

// MakeGroup marks node as an expanded container
func (g *Graph) MakeGroup(node *Node) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if node.IsGroup {
		return
	}
	node.IsGroup = true
	node.Group = GroupExpanded
	if g.update != nil {
		g.update.grouped = append(g.update.grouped, node)
	}
}

// Container returns the node that first claimed node through a Contains edge
func (g *Graph) Container(node *Node) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.containers[node]
}

// Node looks up a node by id
func (g *Graph) Node(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, ok := g.nodes[id]
	return node, ok
}

// Nodes returns all nodes in insertion order
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]*Node, len(g.nodeOrder))
	copy(result, g.nodeOrder)
	return result
}

// Edges returns all edges in insertion order
func (g *Graph) Edges() []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]*Edge, len(g.edgeOrder))
	copy(result, g.edgeOrder)
	return result
}

// EdgesFrom returns the outgoing edges of node with the given category
func (g *Graph) EdgesFrom(node *Node, category LinkCategory) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var result []*Edge
	for _, edge := range g.edgeOrder {
		if edge.Source == node && edge.Category == category {
			result = append(result, edge)
		}
	}
	return result
}

// EdgesTo returns the incoming edges of node with the given category
func (g *Graph) EdgesTo(node *Node, category LinkCategory) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var result []*Edge
	for _, edge := range g.edgeOrder {
		if edge.Target == node && edge.Category == category {
			result = append(result, edge)
		}
	}
	return result
}

// NodeCount returns the number of nodes
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodeOrder)
}

// EdgeCount returns the number of edges
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edgeOrder)
}

// Statistics summarizes a graph by category
type Statistics struct {
	Nodes     map[NodeCategory]int
	Links     map[LinkCategory]int
	Groups    int
	NodeCount int
	EdgeCount int
}

// Stats counts nodes and edges per category
func (g *Graph) Stats() Statistics {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := Statistics{
		Nodes:     make(map[NodeCategory]int),
		Links:     make(map[LinkCategory]int),
		NodeCount: len(g.nodeOrder),
		EdgeCount: len(g.edgeOrder),
	}
	for _, node := range g.nodeOrder {
		stats.Nodes[node.Category]++
		if node.IsGroup {
			stats.Groups++
		}
	}
	for _, edge := range g.edgeOrder {
		stats.Links[edge.Category]++
	}
	return stats
}
