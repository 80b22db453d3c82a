package builder

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/codegraph/internal/graph"
	"github.com/conduit-lang/codegraph/internal/metadata"
)

// walk carries the state of one structural module walk
type walk struct {
	b      *Builder
	module metadata.Module
	node   *graph.Node
}

// visitType creates the node for t and, when t passes the filter,
// resolves the references of its members
func (w *walk) visitType(t metadata.TypeDef) error {
	node, err := w.typeNode(t)
	if err != nil {
		return err
	}
	if node == nil {
		w.b.stats.TypesFiltered++
		return nil
	}
	w.b.stats.TypesVisited++

	for _, method := range t.Methods() {
		if err := w.visitMethod(node, t, method); err != nil {
			return err
		}
	}

	for _, prop := range t.Properties() {
		if err := w.reference(node, t, prop.PropertyType()); err != nil {
			return err
		}
	}

	if w.b.opts.FieldDependencies {
		for _, field := range t.Fields() {
			if err := w.reference(node, t, field.FieldType()); err != nil {
				return err
			}
		}
	}
	return nil
}

// include decides whether t gets a node at all
func (w *walk) include(t metadata.TypeDef) bool {
	name := t.Name()
	// "<" covers <Module> and compiler generated types
	if name == "Void" || name == "String" || strings.HasPrefix(name, "<") || t.IsPrimitive() {
		return false
	}
	if t.DeclaringType() == nil && t.IsPublic() {
		return true
	}
	return t.IsNestedPublic() || w.b.opts.PrivateDependencies
}

// typeNode returns the node for t, creating it and its containment chain.
// It returns nil when t is filtered out.
func (w *walk) typeNode(t metadata.TypeDef) (*graph.Node, error) {
	if !w.include(t) {
		return nil, nil
	}

	parent := w.node
	if declaring := t.DeclaringType(); declaring != nil {
		node, err := w.typeNode(declaring)
		if err != nil {
			return nil, err
		}
		if node == nil {
			// nested inside a filtered type
			return nil, nil
		}
		parent = node
	} else if w.b.opts.NamespaceDependencies && t.Namespace() != "" {
		parent = w.namespaceNode(t.Namespace())
	}

	category, err := typeCategory(t)
	if err != nil {
		return nil, err
	}

	node := w.b.graph.GetOrCreateNode(t.FullName(), t.Name(), category)
	w.contain(parent, node)
	return node, nil
}

// namespaceNode returns the innermost node of the namespace chain for ns
func (w *walk) namespaceNode(ns string) *graph.Node {
	cache := w.b.namespaces
	if node, ok := cache.get(ns); ok {
		return node
	}

	sep := w.module.NamespaceSeparator()
	parts := strings.Split(ns, sep)
	parent := w.node
	for i, label := range parts {
		path := strings.Join(parts[:i+1], sep)
		child, ok := cache.get(path)
		if !ok {
			child = w.b.graph.GetOrCreateNode(path, label, graph.CategoryNamespace)
			cache.put(path, child)
			w.contain(parent, child)
		}
		parent = child
	}
	return parent
}

// contain links child under parent unless child already has a container
func (w *walk) contain(parent, child *graph.Node) {
	g := w.b.graph
	if existing := g.Container(child); existing != nil && existing != parent {
		return
	}
	g.GetOrCreateEdge(parent, child, graph.LinkContains)
	g.MakeGroup(parent)
}

func typeCategory(t metadata.TypeDef) (graph.NodeCategory, error) {
	switch t.Kind() {
	case metadata.KindEnum:
		return graph.CategoryEnum, nil
	case metadata.KindClass:
		return graph.CategoryClass, nil
	case metadata.KindInterface:
		return graph.CategoryInterface, nil
	case metadata.KindStruct:
		return graph.CategoryStruct, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownTypeKind, t.FullName())
	}
}

// namespaceCache maps namespace paths to their nodes for one graph
type namespaceCache struct {
	nodes   map[string]*graph.Node
	journal []string
}

func newNamespaceCache() *namespaceCache {
	return &namespaceCache{nodes: make(map[string]*graph.Node)}
}

func (c *namespaceCache) get(path string) (*graph.Node, bool) {
	node, ok := c.nodes[path]
	return node, ok
}

func (c *namespaceCache) put(path string, node *graph.Node) {
	c.nodes[path] = node
	c.journal = append(c.journal, path)
}

func (c *namespaceCache) mark() int {
	return len(c.journal)
}

// rollback forgets every entry added since mark
func (c *namespaceCache) rollback(mark int) {
	for _, path := range c.journal[mark:] {
		delete(c.nodes, path)
	}
	c.journal = c.journal[:mark]
}
