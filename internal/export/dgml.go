package export

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/conduit-lang/codegraph/internal/graph"
)

const dgmlNamespace = "http://schemas.microsoft.com/vs/2009/dgml"

type dgmlDocument struct {
	XMLName    xml.Name       `xml:"DirectedGraph"`
	Xmlns      string         `xml:"xmlns,attr"`
	Nodes      []dgmlNode     `xml:"Nodes>Node"`
	Links      []dgmlLink     `xml:"Links>Link"`
	Categories []dgmlCategory `xml:"Categories>Category,omitempty"`
}

type dgmlNode struct {
	ID       string `xml:"Id,attr"`
	Label    string `xml:"Label,attr,omitempty"`
	Category string `xml:"Category,attr,omitempty"`
	Group    string `xml:"Group,attr,omitempty"`
}

type dgmlLink struct {
	Source   string `xml:"Source,attr"`
	Target   string `xml:"Target,attr"`
	Category string `xml:"Category,attr,omitempty"`
}

type dgmlCategory struct {
	ID string `xml:"Id,attr"`
}

// DGMLWriter writes Directed Graph Markup Language documents
type DGMLWriter struct{}

// Write encodes g with one Category entry per category in use
func (DGMLWriter) Write(w io.Writer, g *graph.Graph) error {
	doc := dgmlDocument{Xmlns: dgmlNamespace}
	used := make(map[string]bool)

	for _, node := range g.Nodes() {
		category := node.Category.String()
		used[category] = true
		doc.Nodes = append(doc.Nodes, dgmlNode{
			ID:       node.ID,
			Label:    node.Label,
			Category: category,
			Group:    node.Group.String(),
		})
	}
	for _, edge := range g.Edges() {
		category := edge.Category.String()
		if category != "" {
			used[category] = true
		}
		doc.Links = append(doc.Links, dgmlLink{
			Source:   edge.Source.ID,
			Target:   edge.Target.ID,
			Category: category,
		})
	}

	for _, c := range graph.NodeCategories {
		if used[c.String()] {
			doc.Categories = append(doc.Categories, dgmlCategory{ID: c.String()})
		}
	}
	for _, c := range graph.LinkCategories {
		if c != graph.LinkPlain && used[c.String()] {
			doc.Categories = append(doc.Categories, dgmlCategory{ID: c.String()})
		}
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode dgml: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}
