package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/conduit-lang/codegraph/internal/graph"
)

// Document is the JSON form of a graph
type Document struct {
	Nodes []NodeRecord `json:"nodes"`
	Links []LinkRecord `json:"links"`
}

// NodeRecord is one node of a Document
type NodeRecord struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Category string `json:"category"`
	Group    string `json:"group,omitempty"`
}

// LinkRecord is one edge of a Document
type LinkRecord struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Category string `json:"category,omitempty"`
}

// NewDocument flattens g into records
func NewDocument(g *graph.Graph) Document {
	doc := Document{
		Nodes: make([]NodeRecord, 0, g.NodeCount()),
		Links: make([]LinkRecord, 0, g.EdgeCount()),
	}
	for _, node := range g.Nodes() {
		doc.Nodes = append(doc.Nodes, NodeRecord{
			ID:       node.ID,
			Label:    node.Label,
			Category: node.Category.String(),
			Group:    node.Group.String(),
		})
	}
	for _, edge := range g.Edges() {
		doc.Links = append(doc.Links, LinkRecord{
			Source:   edge.Source.ID,
			Target:   edge.Target.ID,
			Category: edge.Category.String(),
		})
	}
	return doc
}

// JSONWriter writes a Document
type JSONWriter struct {
	Indent string
}

func (jw JSONWriter) Write(w io.Writer, g *graph.Graph) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", jw.Indent)
	if err := enc.Encode(NewDocument(g)); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}
