// Package builder turns module metadata into a dependency graph.
//
// A Builder is bound to one graph and one reader. Each call to Generate
// graphs one input module inside a single update scope: either the whole
// module is recorded or, on error, none of it is.
package builder

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/codegraph/internal/graph"
	"github.com/conduit-lang/codegraph/internal/metadata"
)

// ErrUnknownTypeKind is returned for a type that is neither class, struct,
// interface nor enum
var ErrUnknownTypeKind = errors.New("unknown type kind")

// Options selects what the builder graphs
type Options struct {
	// AssemblyDependencies graphs module references only
	AssemblyDependencies bool

	// NamespaceDependencies groups top-level types under namespace nodes
	NamespaceDependencies bool

	// TypeDependencies is accepted for compatibility; type nodes are
	// always produced by the structural walk
	TypeDependencies bool

	// MethodCallDependencies adds method nodes and call edges
	MethodCallDependencies bool

	// FieldDependencies adds references through field types
	FieldDependencies bool

	// PrivateDependencies includes types that are not publicly visible
	PrivateDependencies bool
}

// Stats counts what the builder did across all Generate calls
type Stats struct {
	Modules              int
	TypesVisited         int
	TypesFiltered        int
	References           int
	ExternalReferences   int
	UnresolvedReferences int
	Calls                int
	CallsSkipped         int
}

// Builder populates a graph from module metadata
type Builder struct {
	graph      *graph.Graph
	reader     metadata.Reader
	opts       Options
	logger     *zap.Logger
	namespaces *namespaceCache
	stats      Stats
}

// New creates a builder writing into g. A nil logger disables logging.
func New(g *graph.Graph, reader metadata.Reader, opts Options, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		graph:      g,
		reader:     reader,
		opts:       opts,
		logger:     logger,
		namespaces: newNamespaceCache(),
	}
}

// Graph returns the graph being populated
func (b *Builder) Graph() *graph.Graph {
	return b.graph
}

// Stats returns the counters accumulated so far
func (b *Builder) Stats() Stats {
	return b.stats
}

// Generate graphs the module stored at path
func (b *Builder) Generate(path string) error {
	scope, err := b.graph.BeginUpdate(path)
	if err != nil {
		return err
	}
	defer scope.Close()

	nsMark := b.namespaces.mark()
	saved := b.stats

	node := b.graph.GetOrCreateNode(path, moduleLabel(path), graph.CategoryAssembly)
	if b.opts.AssemblyDependencies {
		err = b.addAssemblyDependencies(node, path, make(map[string]struct{}))
	} else {
		err = b.walkModule(node, path, scope, saved)
	}
	if err != nil {
		b.namespaces.rollback(nsMark)
		b.stats = saved
		b.logger.Warn("discarding module",
			zap.String("path", path),
			zap.String("update", scope.ID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to graph %s: %w", path, err)
	}

	scope.Complete()
	return nil
}

// addAssemblyDependencies links node to every module its module references,
// recursing into references that can be found beside path
func (b *Builder) addAssemblyDependencies(node *graph.Node, path string, loaded map[string]struct{}) error {
	module, err := b.reader.Open(path)
	if err != nil {
		return err
	}

	key := strings.ToLower(module.Name())
	if _, seen := loaded[key]; seen {
		return nil
	}
	loaded[key] = struct{}{}
	b.stats.Modules++

	refs, err := module.References()
	if err != nil {
		return fmt.Errorf("failed to list references of %s: %w", module.Name(), err)
	}

	for _, name := range refs {
		refNode := b.graph.GetOrCreateNode(name, name, graph.CategoryAssembly)
		b.graph.GetOrCreateEdge(node, refNode, graph.LinkPlain)

		if _, seen := loaded[strings.ToLower(name)]; seen {
			continue
		}
		local, ok := b.reader.Locate(path, name)
		if !ok {
			b.logger.Debug("referenced module not found locally",
				zap.String("from", module.Name()),
				zap.String("reference", name))
			continue
		}
		if err := b.addAssemblyDependencies(refNode, local, loaded); err != nil {
			return err
		}
	}
	return nil
}

// walkModule graphs the types of the module at path under node. before
// holds the counters as they were when the scope opened.
func (b *Builder) walkModule(node *graph.Node, path string, scope *graph.Update, before Stats) error {
	module, err := b.reader.Open(path)
	if err != nil {
		return err
	}
	types, err := module.Types()
	if err != nil {
		return fmt.Errorf("failed to enumerate types of %s: %w", module.Name(), err)
	}
	b.stats.Modules++

	w := &walk{b: b, module: module, node: node}
	for _, t := range types {
		if err := w.visitType(t); err != nil {
			return err
		}
	}

	b.logger.Debug("graphed module",
		zap.String("module", module.Name()),
		zap.String("update", scope.ID.String()),
		zap.Int("types", len(types)),
		zap.Int("external_references", b.stats.ExternalReferences-before.ExternalReferences),
		zap.Int("unresolved_references", b.stats.UnresolvedReferences-before.UnresolvedReferences))
	return nil
}

// moduleLabel is the file name without extension
func moduleLabel(path string) string {
	base := filepath.Base(path)
	if base == "go.mod" {
		base = filepath.Base(filepath.Dir(path))
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
