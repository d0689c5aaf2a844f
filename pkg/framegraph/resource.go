package framegraph

import (
	"github.com/ritzau/framegraph/pkg/depgraph"
)

type resourceID int

const noResource resourceID = -1

// virtualResource is one logical resource for the whole frame, across all
// of its versions. It may or may not be backed by device memory yet.
type virtualResource struct {
	id     resourceID
	name   string
	desc   Descriptor
	sub    SubDescriptor
	parent resourceID // noResource unless this is a view into another resource

	imported bool
	rt       *RenderTargetDescriptor // set for imported render targets

	// Declared demand, maintained by neededByPass during declaration.
	refcount int
	first    *passNode
	last     *passNode

	// Resolved after culling from surviving edges only.
	usage     Usage
	liveFirst int // declaration index of the first live pass, -1 when dead
	liveLast  int

	backing      BackendHandle
	materialized bool
}

func (r *virtualResource) hasParent() bool { return r.parent != noResource }

func (r *virtualResource) isImported() bool { return r.imported }

func (r *virtualResource) isLive() bool { return r.liveFirst >= 0 }

func (r *virtualResource) usageString() string { return r.usage.String() }

// neededByPass records that p uses this resource. A view keeps its parent
// alive for the same span, so the call repeats up the parent chain.
func (r *virtualResource) neededByPass(resources []*virtualResource, p *passNode) {
	r.refcount++
	if r.first == nil || p.index < r.first.index {
		r.first = p
	}
	if r.last == nil || p.index > r.last.index {
		r.last = p
	}
	if r.hasParent() {
		resources[r.parent].neededByPass(resources, p)
	}
}

// resolveUsage folds in the usage of every edge whose pass survived culling
// and widens the live span to cover those passes.
func (r *virtualResource) resolveUsage(g *depgraph.Graph, readers []*resourceEdge, writer *resourceEdge) {
	for _, e := range readers {
		if !g.IsCulled(e.pass.id) {
			r.usage |= e.usage
			r.extendLife(e.pass.index)
		}
	}
	if writer != nil && !g.IsCulled(writer.pass.id) {
		r.usage |= writer.usage
		r.extendLife(writer.pass.index)
	}
}

func (r *virtualResource) extendLife(index int) {
	if r.liveFirst < 0 || index < r.liveFirst {
		r.liveFirst = index
	}
	if index > r.liveLast {
		r.liveLast = index
	}
}

func (r *virtualResource) resetResolved() {
	r.usage = UsageNone
	r.liveFirst = -1
	r.liveLast = -1
}

// checkUsage reports the bits an imported render target cannot provide.
// A view is bound by its closest render-target ancestor, which is returned
// as owner when one exists.
func (r *virtualResource) checkUsage(resources []*virtualResource, u Usage) (illegal Usage, owner *virtualResource) {
	for r.rt == nil {
		if !r.hasParent() {
			return UsageNone, nil
		}
		r = resources[r.parent]
	}
	allowed := UsageAttachments
	if r.rt.Attachments != UsageNone {
		allowed &= r.rt.Attachments
	}
	return u &^ allowed, r
}
