package builder

import (
	"fmt"

	"github.com/conduit-lang/codegraph/internal/graph"
	"github.com/conduit-lang/codegraph/internal/metadata"
)

// calls adds the method node for method under typeNode and a Calls edge for
// every direct or virtual call to a method of the same module
func (w *walk) calls(typeNode *graph.Node, owner metadata.TypeDef, method metadata.MethodDef) error {
	g := w.b.graph
	caller := g.GetOrCreateNode(method.FullName(), method.Name(), graph.CategoryMethod)
	w.contain(typeNode, caller)

	if !method.HasBody() {
		return nil
	}
	body, err := method.Body()
	if err != nil {
		return fmt.Errorf("failed to read body of %s: %w", method.FullName(), err)
	}

	for _, ins := range body {
		if !ins.IsCall() || ins.Operand == nil {
			continue
		}

		callee := ins.Operand.Resolve()
		if callee == nil {
			w.b.stats.CallsSkipped++
			continue
		}
		declaring := callee.DeclaringType()
		if declaring == nil || !metadata.SameModule(declaring.Module(), w.module) {
			w.b.stats.CallsSkipped++
			continue
		}

		calleeType := typeNode
		if !metadata.SameType(declaring, owner) {
			calleeType, err = w.typeNode(declaring)
			if err != nil {
				return err
			}
			if calleeType == nil {
				w.b.stats.CallsSkipped++
				continue
			}
		}

		target := g.GetOrCreateNode(callee.FullName(), callee.Name(), graph.CategoryMethod)
		w.contain(calleeType, target)
		g.GetOrCreateEdge(caller, target, graph.LinkCalls)
		w.b.stats.Calls++
	}
	return nil
}
