package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/conduit-lang/codegraph/internal/graph"
)

var dotShapes = map[graph.NodeCategory]string{
	graph.CategoryAssembly:  "folder",
	graph.CategoryNamespace: "tab",
	graph.CategoryClass:     "box",
	graph.CategoryStruct:    "box3d",
	graph.CategoryInterface: "component",
	graph.CategoryEnum:      "septagon",
	graph.CategoryMethod:    "ellipse",
}

var dotStyles = map[graph.LinkCategory]string{
	graph.LinkContains:   "dashed",
	graph.LinkReferences: "solid",
	graph.LinkCalls:      "bold",
}

// DOTWriter writes Graphviz digraphs
type DOTWriter struct{}

// Write emits one statement per node and edge in insertion order
func (DOTWriter) Write(w io.Writer, g *graph.Graph) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "digraph codegraph {")
	fmt.Fprintln(bw, "  rankdir=LR;")
	fmt.Fprintln(bw, "  node [fontname=\"Helvetica\"];")

	for _, node := range g.Nodes() {
		fmt.Fprintf(bw, "  %s [label=%s, shape=%s, category=%s];\n",
			strconv.Quote(node.ID),
			strconv.Quote(node.Label),
			dotShapes[node.Category],
			strconv.Quote(node.Category.String()))
	}

	for _, edge := range g.Edges() {
		if edge.Category == graph.LinkPlain {
			fmt.Fprintf(bw, "  %s -> %s;\n", strconv.Quote(edge.Source.ID), strconv.Quote(edge.Target.ID))
			continue
		}
		fmt.Fprintf(bw, "  %s -> %s [label=%s, style=%s];\n",
			strconv.Quote(edge.Source.ID),
			strconv.Quote(edge.Target.ID),
			strconv.Quote(edge.Category.String()),
			dotStyles[edge.Category])
	}

	fmt.Fprintln(bw, "}")
	return bw.Flush()
}
