package model

import (
	"fmt"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
)

// MarshalDOT renders the snapshot in the Graphviz DOT format.
// https://graphviz.org/doc/info/lang.html
func (g *Graph) MarshalDOT(name string) ([]byte, error) {
	dg := dotGraph{DirectedGraph: simple.NewDirectedGraph(), title: g.Frame}

	nodes := make(map[int64]dotNode, len(g.Nodes))
	for _, n := range g.Nodes {
		dn := dotNode{n: n}
		nodes[n.ID] = dn
		dg.AddNode(dn)
	}
	for _, e := range g.Edges {
		from, okFrom := nodes[e.Source]
		to, okTo := nodes[e.Target]
		if !okFrom || !okTo {
			return nil, fmt.Errorf("edge %d -> %d references an unknown node", e.Source, e.Target)
		}
		dg.SetEdge(dotEdge{from: from, to: to, e: e})
	}

	return dot.Marshal(dg, name, "", "  ")
}

type attributes []encoding.Attribute

func (a attributes) Attributes() []encoding.Attribute { return a }

type dotGraph struct {
	*simple.DirectedGraph
	title string
}

func (g dotGraph) DOTAttributers() (graphAttrs, nodeAttrs, edgeAttrs encoding.Attributer) {
	graphAttrs = attributes{
		{Key: "label", Value: g.title},
		{Key: "labelloc", Value: "t"},
		{Key: "rankdir", Value: "LR"},
	}
	nodeAttrs = attributes{{Key: "fontname", Value: "Monospace"}}
	edgeAttrs = attributes{{Key: "fontname", Value: "Monospace"}}
	return graphAttrs, nodeAttrs, edgeAttrs
}

type dotNode struct {
	n *Node
}

func (d dotNode) ID() int64 { return d.n.ID }

// DOTID avoids bare numeric IDs, e.g. n0 n1 n2.
func (d dotNode) DOTID() string { return fmt.Sprintf("n%d", d.n.ID) }

func (d dotNode) Attributes() []encoding.Attribute {
	attrs := attributes{{Key: "label", Value: d.label()}}
	if d.n.Type == NodePass {
		attrs = append(attrs, encoding.Attribute{Key: "shape", Value: "box"})
	} else {
		attrs = append(attrs, encoding.Attribute{Key: "shape", Value: "ellipse"})
	}
	if d.n.Culled {
		attrs = append(attrs,
			encoding.Attribute{Key: "style", Value: "dashed"},
			encoding.Attribute{Key: "color", Value: "gray"})
	}
	if d.n.Target {
		attrs = append(attrs, encoding.Attribute{Key: "penwidth", Value: "2"})
	}
	return attrs
}

func (d dotNode) label() string {
	if d.n.Type == NodePass {
		return d.n.Label
	}
	s := d.n.Label
	for _, key := range []string{"version", "refcount", "usage", "imported"} {
		if v, ok := d.n.Metadata[key]; ok {
			s += fmt.Sprintf("\n%s: %v", key, v)
		}
	}
	return s
}

type dotEdge struct {
	from, to dotNode
	e        *Edge
}

func (e dotEdge) From() graph.Node         { return e.from }
func (e dotEdge) To() graph.Node           { return e.to }
func (e dotEdge) ReversedEdge() graph.Edge { return dotEdge{from: e.to, to: e.from, e: e.e} }

func (e dotEdge) Attributes() []encoding.Attribute {
	var attrs attributes
	if e.e.Usage != "" {
		attrs = append(attrs, encoding.Attribute{Key: "label", Value: e.e.Usage})
	}
	switch e.e.Type {
	case EdgeParentRead, EdgeParentWrite, EdgeForward:
		attrs = append(attrs, encoding.Attribute{Key: "style", Value: "dashed"})
	case EdgeWrite:
		attrs = append(attrs, encoding.Attribute{Key: "color", Value: "red"})
	}
	return attrs
}
