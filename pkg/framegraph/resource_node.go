package framegraph

import (
	"github.com/ritzau/framegraph/pkg/depgraph"
)

// resourceEdge is a graph edge between a pass and a resource node,
// annotated with the usage the pass asked for.
type resourceEdge struct {
	edge  depgraph.Edge
	pass  *passNode
	usage Usage
}

// resourceNode is one version of a resource. It is produced by at most
// one pass and may be read by many.
type resourceNode struct {
	id      depgraph.NodeID
	slot    int // resolves to the virtual resource, including after forwarding
	version uint32

	writer  *resourceEdge
	readers []*resourceEdge

	parentRead  *depgraph.Edge // parent node -> this
	parentWrite *depgraph.Edge // this -> new parent version
	forwarded   *depgraph.Edge // this -> node it was forwarded to
}

func (n *resourceNode) addOutgoingEdge(e *resourceEdge) {
	n.readers = append(n.readers, e)
}

// setIncomingEdge installs the writer. A version is written exactly once.
func (n *resourceNode) setIncomingEdge(e *resourceEdge) error {
	if n.writer != nil {
		return ErrDoubleWrite
	}
	n.writer = e
	return nil
}

func (n *resourceNode) readerEdgeForPass(p *passNode) *resourceEdge {
	for _, e := range n.readers {
		if e.pass == p {
			return e
		}
	}
	return nil
}

func (n *resourceNode) writerEdgeForPass(p *passNode) *resourceEdge {
	if n.writer != nil && n.writer.pass == p {
		return n.writer
	}
	return nil
}

func (n *resourceNode) hasReaders() bool { return len(n.readers) > 0 }

// isProduced reports whether anything feeds this version: its writer, a
// written view or a forwarded alias.
func (n *resourceNode) isProduced(g *depgraph.Graph) bool {
	return n.writer != nil || len(g.IncomingEdges(n.id)) > 0
}

func (n *resourceNode) hasActiveReaders(g *depgraph.Graph) bool {
	for _, e := range n.readers {
		if !g.IsCulled(e.pass.id) {
			return true
		}
	}
	return false
}

func (n *resourceNode) hasActiveWriters(g *depgraph.Graph) bool {
	return n.writer != nil && !g.IsCulled(n.writer.pass.id)
}

// setParentReadDependency makes the parent's producers live whenever this
// view is read. Only the first call adds an edge.
func (n *resourceNode) setParentReadDependency(g *depgraph.Graph, parent *resourceNode) {
	if n.parentRead != nil {
		return
	}
	e := g.AddEdge(parent.id, n.id)
	n.parentRead = &e
}

// setParentWriteDependency makes a write to this view produce the given
// parent version. Only the first call adds an edge.
func (n *resourceNode) setParentWriteDependency(g *depgraph.Graph, parent *resourceNode) {
	if n.parentWrite != nil {
		return
	}
	e := g.AddEdge(n.id, parent.id)
	n.parentWrite = &e
}

// setForwardResourceDependency turns this node into an alias of source:
// whoever keeps source alive keeps this node's producers alive.
func (n *resourceNode) setForwardResourceDependency(g *depgraph.Graph, source *resourceNode) error {
	if n.forwarded != nil {
		return ErrForwarded
	}
	e := g.AddEdge(n.id, source.id)
	n.forwarded = &e
	return nil
}

func (n *resourceNode) resolveResourceUsage(g *depgraph.Graph, r *virtualResource) {
	if r.refcount == 0 {
		return
	}
	r.resolveUsage(g, n.readers, n.writer)
}
