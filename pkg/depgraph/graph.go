// Package depgraph is the node/edge bookkeeping under the frame graph.
// It knows nothing about passes or resources: nodes are integer IDs and
// edges point from producer to consumer.
package depgraph

import (
	"fmt"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/graph/traverse"
)

// NodeID identifies a node within one Graph. IDs start at 0 and increase.
type NodeID int64

// Edge is a directed connection from a producer to a consumer.
type Edge struct {
	From NodeID
	To   NodeID
}

// Graph is a directed graph with per-node edge lists and reverse-reachability culling.
//
// Edge lists keep duplicates exactly as added. The gonum mirror holds the
// deduplicated edge set and backs traversal and cycle detection.
type Graph struct {
	g        *simple.DirectedGraph
	incoming [][]Edge
	outgoing [][]Edge
	targets  []bool
	culled   []bool
}

// New creates an empty dependency graph.
func New() *Graph {
	return &Graph{
		g: simple.NewDirectedGraph(),
	}
}

// AddNode allocates the next node ID.
func (dg *Graph) AddNode() NodeID {
	id := NodeID(len(dg.incoming))
	dg.g.AddNode(simple.Node(id))
	dg.incoming = append(dg.incoming, nil)
	dg.outgoing = append(dg.outgoing, nil)
	dg.targets = append(dg.targets, false)
	dg.culled = append(dg.culled, false)
	return id
}

// AddEdge records an edge from -> to. Duplicate edges are kept.
func (dg *Graph) AddEdge(from, to NodeID) Edge {
	dg.mustExist(from)
	dg.mustExist(to)
	if from == to {
		panic(fmt.Sprintf("depgraph: self edge on node %d", from))
	}

	e := Edge{From: from, To: to}
	dg.outgoing[from] = append(dg.outgoing[from], e)
	dg.incoming[to] = append(dg.incoming[to], e)

	if !dg.g.HasEdgeFromTo(int64(from), int64(to)) {
		dg.g.SetEdge(dg.g.NewEdge(dg.g.Node(int64(from)), dg.g.Node(int64(to))))
	}
	return e
}

// IncomingEdges returns the edges ending at n.
func (dg *Graph) IncomingEdges(n NodeID) []Edge {
	dg.mustExist(n)
	return dg.incoming[n]
}

// OutgoingEdges returns the edges starting at n.
func (dg *Graph) OutgoingEdges(n NodeID) []Edge {
	dg.mustExist(n)
	return dg.outgoing[n]
}

// Len returns the number of nodes.
func (dg *Graph) Len() int {
	return len(dg.incoming)
}

// MakeTarget marks n as always live. Cull treats it as an extra target.
func (dg *Graph) MakeTarget(n NodeID) {
	dg.mustExist(n)
	dg.targets[n] = true
}

// IsTarget reports whether n was marked with MakeTarget.
func (dg *Graph) IsTarget(n NodeID) bool {
	dg.mustExist(n)
	return dg.targets[n]
}

// IsCulled reports whether the last Cull left n unreachable.
// Nodes are live until the first Cull.
func (dg *Graph) IsCulled(n NodeID) bool {
	dg.mustExist(n)
	return dg.culled[n]
}

// Cull marks live every node from which some target can be reached
// (targets plus nodes marked with MakeTarget); everything else is culled.
func (dg *Graph) Cull(targets ...NodeID) {
	live := make([]bool, dg.Len())
	bfs := traverse.BreadthFirst{
		Visit: func(n graph.Node) { live[n.ID()] = true },
	}
	rev := reversed{dg.g}

	walk := func(id NodeID) {
		if !live[id] {
			bfs.Walk(rev, dg.g.Node(int64(id)), nil)
		}
	}
	for _, t := range targets {
		dg.mustExist(t)
		walk(t)
	}
	for id, marked := range dg.targets {
		if marked {
			walk(NodeID(id))
		}
	}

	for id := range dg.culled {
		dg.culled[id] = !live[id]
	}
}

// Cycles returns every strongly connected component with more than one node.
func (dg *Graph) Cycles() [][]NodeID {
	var cycles [][]NodeID
	for _, scc := range topo.TarjanSCC(dg.g) {
		if len(scc) < 2 {
			continue
		}
		ids := make([]NodeID, len(scc))
		for i, n := range scc {
			ids[i] = NodeID(n.ID())
		}
		cycles = append(cycles, ids)
	}
	return cycles
}

// Directed exposes the deduplicated edge set for read-only analysis.
func (dg *Graph) Directed() graph.Directed {
	return dg.g
}

func (dg *Graph) mustExist(n NodeID) {
	if n < 0 || int(n) >= len(dg.incoming) {
		panic(fmt.Sprintf("depgraph: node %d out of range [0, %d)", n, len(dg.incoming)))
	}
}

// reversed walks a directed graph against its edges.
type reversed struct {
	g *simple.DirectedGraph
}

func (r reversed) From(id int64) graph.Nodes {
	return r.g.To(id)
}

func (r reversed) Edge(uid, vid int64) graph.Edge {
	return r.g.Edge(vid, uid)
}
