package builder

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/codegraph/internal/graph"
	"github.com/conduit-lang/codegraph/internal/metadata"
)

// visitMethod resolves the return and parameter types of method and,
// when enabled, its calls
func (w *walk) visitMethod(node *graph.Node, owner metadata.TypeDef, method metadata.MethodDef) error {
	if err := w.reference(node, owner, method.ReturnType()); err != nil {
		return err
	}
	for _, param := range method.Parameters() {
		if err := w.reference(node, owner, param); err != nil {
			return err
		}
	}

	if w.b.opts.MethodCallDependencies {
		return w.calls(node, owner, method)
	}
	return nil
}

// reference graphs a References edge from node (the node of owner) to the
// type ref denotes. Generic arguments are references of their own.
// Targets outside the module being walked are dropped.
func (w *walk) reference(node *graph.Node, owner metadata.TypeDef, ref metadata.TypeRef) error {
	for ref != nil && ref.IsArray() {
		ref = ref.ElementType()
	}
	if ref == nil {
		return nil
	}

	for _, arg := range ref.GenericArguments() {
		if err := w.reference(node, owner, arg); err != nil {
			return err
		}
	}

	if metadata.IsComposite(ref) {
		return nil
	}

	def := ref.Resolve()
	if def == nil {
		w.b.stats.UnresolvedReferences++
		return nil
	}
	if !metadata.SameModule(def.Module(), w.module) {
		w.b.stats.ExternalReferences++
		w.b.logger.Debug("skipping external reference",
			zap.String("from", owner.FullName()),
			zap.String("to", def.FullName()),
			zap.String("module", def.Module().Name()))
		return nil
	}

	target := node
	if !metadata.SameType(def, owner) {
		var err error
		target, err = w.typeNode(def)
		if err != nil {
			return fmt.Errorf("resolving reference from %s: %w", owner.FullName(), err)
		}
		if target == nil {
			return nil
		}
	}

	w.b.graph.GetOrCreateEdge(node, target, graph.LinkReferences)
	w.b.stats.References++
	return nil
}
