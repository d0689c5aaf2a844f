package framegraph

import "fmt"

// Builder declares the resources of one pass. It is only valid inside the
// setup callback given to AddPass.
type Builder struct {
	fg   *FrameGraph
	pass *passNode
	done bool
}

// Create declares a new transient resource. Nothing is allocated until the
// first live pass that uses it.
func (b *Builder) Create(name string, desc Descriptor) Handle {
	b.check("create")
	return b.fg.addResource(&virtualResource{
		name:   name,
		desc:   desc,
		parent: noResource,
	})
}

// CreateSubresource declares a view of parent, such as one mip level.
// It shares the parent's memory and keeps the parent alive while used.
func (b *Builder) CreateSubresource(parent Handle, name string, sub SubDescriptor) Handle {
	b.check("create subresource")
	_, s := b.fg.lookup("create subresource", b.pass, parent, true)
	p := b.fg.resources[s.rid]

	desc := p.desc
	desc.Width = mipExtent(desc.Width, sub.Level)
	desc.Height = mipExtent(desc.Height, sub.Level)
	desc.Levels = 1

	return b.fg.addResource(&virtualResource{
		name:   name,
		desc:   desc,
		sub:    sub,
		parent: p.id,
	})
}

// Read declares that the pass consumes the current version of h.
func (b *Builder) Read(h Handle, usage Usage) Handle {
	b.check("read")
	fg := b.fg
	idx, s := fg.lookup("read", b.pass, h, true)
	r := fg.resources[s.rid]
	b.checkUsage("read", r, usage)

	n := s.node
	if e := n.writerEdgeForPass(b.pass); e != nil {
		e.usage |= usage
		return h
	}
	if e := n.readerEdgeForPass(b.pass); e != nil {
		e.usage |= usage
		return h
	}

	n.addOutgoingEdge(&resourceEdge{
		edge:  fg.graph.AddEdge(n.id, b.pass.id),
		pass:  b.pass,
		usage: usage,
	})
	fg.linkParentRead(n, r)

	r.neededByPass(fg.resources, b.pass)
	b.pass.declare(idx)
	return h
}

// Sample declares a sampled read.
func (b *Builder) Sample(h Handle) Handle {
	return b.Read(h, UsageSampleable)
}

// Write declares that the pass produces h. If the current version already
// has a producer or a reader, a new version is created; the returned handle
// names the version this pass writes.
func (b *Builder) Write(h Handle, usage Usage) Handle {
	b.check("write")
	fg := b.fg
	idx, s := fg.lookup("write", b.pass, h, true)
	r := fg.resources[s.rid]
	b.checkUsage("write", r, usage)

	n := s.node
	if e := n.writerEdgeForPass(b.pass); e != nil {
		e.usage |= usage
		return h
	}
	if n.hasReaders() || n.isProduced(fg.graph) {
		n = fg.newVersion(idx)
	}

	e := &resourceEdge{
		edge:  fg.graph.AddEdge(b.pass.id, n.id),
		pass:  b.pass,
		usage: usage,
	}
	if err := n.setIncomingEdge(e); err != nil {
		fg.fail(&Error{Op: "write", Pass: b.pass.name, Resource: r.name, Err: err})
	}
	fg.linkParentWrite(n, r)

	r.neededByPass(fg.resources, b.pass)
	b.pass.declare(idx)
	return Handle{index: h.index, version: n.version}
}

// SideEffect keeps the pass alive even if nothing reads its output.
func (b *Builder) SideEffect() {
	b.check("side effect")
	b.pass.sideEffect = true
	b.fg.graph.MakeTarget(b.pass.id)
}

// Name returns the diagnostic name of h.
func (b *Builder) Name(h Handle) string {
	b.check("name")
	return b.fg.Name(h)
}

// Descriptor returns the descriptor of h.
func (b *Builder) Descriptor(h Handle) Descriptor {
	b.check("descriptor")
	return b.fg.Descriptor(h)
}

func (b *Builder) check(op string) {
	if b.done {
		b.fg.fail(&Error{Op: op, Pass: b.pass.name, Err: ErrState, Detail: "builder used after setup returned"})
	}
}

func (b *Builder) checkUsage(op string, r *virtualResource, u Usage) {
	illegal, owner := r.checkUsage(b.fg.resources, u)
	if illegal == UsageNone {
		return
	}
	detail := illegal.String()
	if owner != r {
		detail = fmt.Sprintf("%s (view of render target %q)", illegal, owner.name)
	}
	b.fg.fail(&Error{Op: op, Pass: b.pass.name, Resource: r.name, Err: ErrIllegalUsage, Detail: detail})
}

// linkParentRead makes reading a view depend on whoever produced the
// current version of each ancestor. A version written through the view
// already depends on its own writer.
func (fg *FrameGraph) linkParentRead(n *resourceNode, r *virtualResource) {
	for r.hasParent() && n.parentWrite == nil && n.parentRead == nil {
		parent := fg.resources[r.parent]
		pn := fg.slots[parent.id].node
		n.setParentReadDependency(fg.graph, pn)
		n, r = pn, parent
	}
}

// linkParentWrite makes writing a view produce a version of each ancestor.
func (fg *FrameGraph) linkParentWrite(n *resourceNode, r *virtualResource) {
	for r.hasParent() && n.parentWrite == nil {
		parent := fg.resources[r.parent]
		slot := int(parent.id)
		pn := fg.slots[slot].node
		if pn.hasReaders() || pn.writer != nil {
			pn = fg.newVersion(slot)
		}
		n.setParentWriteDependency(fg.graph, pn)
		n, r = pn, parent
	}
}

func mipExtent(v uint32, level uint8) uint32 {
	if v == 0 {
		return 0
	}
	v >>= level
	if v == 0 {
		return 1
	}
	return v
}
