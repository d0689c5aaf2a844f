// Package framegraph schedules the render passes of one frame.
//
// Passes declare which virtual resources they create, read and write.
// Compile culls every pass and resource that cannot affect a target
// (an imported resource, a presented resource or a pass with side effects)
// and computes when each surviving resource must be materialized and
// destroyed. Execute then runs the surviving passes in declaration order,
// acquiring and releasing backing memory around them.
//
// A FrameGraph is built, compiled and executed once, on a single goroutine.
// Malformed frames (stale handles, illegal usage, cycles, calls out of
// order) panic with *Error; see Recover.
package framegraph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/ritzau/framegraph/pkg/depgraph"
	"github.com/ritzau/framegraph/pkg/logging"
)

type state int

const (
	stateDeclaring state = iota
	stateCompiled
	stateExecuted
)

func (s state) String() string {
	switch s {
	case stateDeclaring:
		return "declaring"
	case stateCompiled:
		return "compiled"
	case stateExecuted:
		return "executed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Handle names one version of a virtual resource. The zero Handle is
// uninitialized.
type Handle struct {
	index   uint32 // slot index + 1
	version uint32
}

// IsInitialized reports whether h came from the frame graph.
func (h Handle) IsInitialized() bool { return h.index != 0 }

// Version returns the resource version h refers to.
func (h Handle) Version() uint32 { return h.version }

func (h Handle) String() string {
	if !h.IsInitialized() {
		return "#uninitialized"
	}
	return fmt.Sprintf("#%d.v%d", h.index-1, h.version)
}

func (h Handle) slot() int { return int(h.index) - 1 }

// resourceSlot maps a handle index to its current virtual resource and
// its latest version node.
type resourceSlot struct {
	rid       resourceID
	node      *resourceNode
	version   uint32
	forwarded bool
}

type nodeKind uint8

const (
	nodeResource nodeKind = iota
	nodePass
)

// nodeRef tells what a dependency graph node stands for.
type nodeRef struct {
	kind nodeKind
	pass *passNode
	res  *resourceNode
}

// FrameGraph owns every pass, resource and node of one frame.
type FrameGraph struct {
	id    string
	log   *slog.Logger
	alloc Allocator

	graph     *depgraph.Graph
	refs      []nodeRef // indexed by depgraph.NodeID
	passes    []*passNode
	resources []*virtualResource
	slots     []*resourceSlot
	nodes     []*resourceNode

	state   state
	inSetup bool

	materializeAt map[int][]resourceID
	destroyAt     map[int][]resourceID
}

// Option configures a FrameGraph.
type Option func(*FrameGraph)

// WithAllocator sets the collaborator that backs materialized resources.
func WithAllocator(a Allocator) Option {
	return func(fg *FrameGraph) { fg.alloc = a }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(fg *FrameGraph) { fg.log = l }
}

// WithFrameID overrides the generated frame ID.
func WithFrameID(id string) Option {
	return func(fg *FrameGraph) { fg.id = id }
}

// New creates an empty frame graph in the declaring state.
func New(opts ...Option) *FrameGraph {
	fg := &FrameGraph{
		id:    uuid.NewString(),
		graph: depgraph.New(),
	}
	for _, opt := range opts {
		opt(fg)
	}
	if fg.alloc == nil {
		fg.alloc = &sequentialAllocator{}
	}
	if fg.log == nil {
		fg.log = logging.New("framegraph")
	}
	fg.log = fg.log.With("frameID", fg.id)
	return fg
}

// ID returns the frame ID used in logs and exports.
func (fg *FrameGraph) ID() string { return fg.id }

// AddPass declares a pass. setup runs immediately and declares the pass's
// resources through the Builder; exec runs during Execute if the pass
// survives culling. Either may be nil.
func (fg *FrameGraph) AddPass(name string, setup func(b *Builder), exec ExecuteFunc) PassID {
	fg.mustDeclaring("add pass", name)
	if fg.inSetup {
		fg.fail(&Error{Op: "add pass", Pass: name, Err: ErrState, Detail: "passes cannot be added from a setup callback"})
	}

	p := &passNode{
		index:    len(fg.passes),
		name:     name,
		exec:     exec,
		declared: make(map[int]struct{}),
	}
	p.id = fg.addGraphNode(nodeRef{kind: nodePass, pass: p})
	fg.passes = append(fg.passes, p)

	if setup != nil {
		b := &Builder{fg: fg, pass: p}
		fg.inSetup = true
		func() {
			defer func() {
				fg.inSetup = false
				b.done = true
			}()
			setup(b)
		}()
	}

	fg.log.Debug("pass declared", "pass", name, "index", p.index, "resources", len(p.declared))
	return PassID(p.index)
}

// Present keeps h alive to the end of the frame through a side-effect pass.
func (fg *FrameGraph) Present(h Handle) PassID {
	name := "present " + fg.Name(h)
	return fg.AddPass(name, func(b *Builder) {
		b.Read(h, UsageNone)
		b.SideEffect()
	}, nil)
}

// Import wraps a caller-owned resource. It is never acquired or released,
// and passes writing it are never culled.
func (fg *FrameGraph) Import(name string, desc Descriptor, backing BackendHandle) Handle {
	fg.mustDeclaring("import", "")
	return fg.addResource(&virtualResource{
		name:     name,
		desc:     desc,
		parent:   noResource,
		imported: true,
		backing:  backing,
	})
}

// ImportRenderTarget imports a render target, such as a swapchain image.
// Passes may only use it as a color, depth or stencil attachment.
func (fg *FrameGraph) ImportRenderTarget(name string, desc Descriptor, rt RenderTargetDescriptor, backing BackendHandle) Handle {
	fg.mustDeclaring("import render target", "")
	desc.Kind = KindRenderTarget
	return fg.addResource(&virtualResource{
		name:     name,
		desc:     desc,
		parent:   noResource,
		imported: true,
		rt:       &rt,
		backing:  backing,
	})
}

// ForwardResource makes replaced an alias of resource: the passes that
// wrote replaced write into resource's memory instead, and they stay live
// as long as resource does. replaced cannot be declared against afterwards.
func (fg *FrameGraph) ForwardResource(resource, replaced Handle) Handle {
	fg.mustDeclaring("forward", "")
	_, src := fg.lookup("forward", nil, resource, true)
	_, dst := fg.lookup("forward", nil, replaced, true)

	srcRes := fg.resources[src.rid]
	dstRes := fg.resources[dst.rid]
	fg.checkForwardUsage(srcRes, dstRes)
	if err := dst.node.setForwardResourceDependency(fg.graph, src.node); err != nil {
		fg.fail(&Error{Op: "forward", Resource: dstRes.name, Err: err})
	}

	srcRes.refcount += dstRes.refcount
	for _, p := range []*passNode{dstRes.first, dstRes.last} {
		if p == nil {
			continue
		}
		if srcRes.first == nil || p.index < srcRes.first.index {
			srcRes.first = p
		}
		if srcRes.last == nil || p.index > srcRes.last.index {
			srcRes.last = p
		}
	}

	dst.rid = src.rid
	dst.forwarded = true
	fg.log.Debug("resource forwarded", "from", dstRes.name, "to", srcRes.name)
	return resource
}

// checkForwardUsage fails when a usage already declared on any version of
// replaced is one resource cannot provide.
func (fg *FrameGraph) checkForwardUsage(resource, replaced *virtualResource) {
	check := func(e *resourceEdge) {
		if e == nil {
			return
		}
		if illegal, _ := resource.checkUsage(fg.resources, e.usage); illegal != UsageNone {
			fg.fail(&Error{
				Op:       "forward",
				Pass:     e.pass.name,
				Resource: replaced.name,
				Err:      ErrIllegalUsage,
				Detail:   fmt.Sprintf("%s cannot be forwarded to %q", illegal, resource.name),
			})
		}
	}
	for _, n := range fg.nodes {
		if fg.slots[n.slot].rid != replaced.id {
			continue
		}
		check(n.writer)
		for _, e := range n.readers {
			check(e)
		}
	}
}

// IsValid reports whether h may still be declared against.
func (fg *FrameGraph) IsValid(h Handle) bool {
	if !h.IsInitialized() || h.slot() >= len(fg.slots) {
		return false
	}
	s := fg.slots[h.slot()]
	return s.version == h.version && !s.forwarded
}

// Name returns the diagnostic name of the resource h resolves to.
func (fg *FrameGraph) Name(h Handle) string {
	_, s := fg.lookup("name", nil, h, false)
	return fg.resources[s.rid].name
}

// Descriptor returns the descriptor of the resource h resolves to.
func (fg *FrameGraph) Descriptor(h Handle) Descriptor {
	_, s := fg.lookup("descriptor", nil, h, false)
	return fg.resources[s.rid].desc
}

// IsCulled reports whether the pass was culled by Compile.
func (fg *FrameGraph) IsCulled(id PassID) bool {
	return fg.graph.IsCulled(fg.pass(id).id)
}

// PassName returns the name a pass was declared with.
func (fg *FrameGraph) PassName(id PassID) string {
	return fg.pass(id).name
}

// PassCount returns the number of declared passes.
func (fg *FrameGraph) PassCount() int { return len(fg.passes) }

// Compile culls the graph and plans resource lifetimes.
func (fg *FrameGraph) Compile() *FrameGraph {
	if fg.state != stateDeclaring {
		fg.fail(&Error{Op: "compile", Err: ErrState, Detail: "frame graph is already " + fg.state.String()})
	}

	// Writes to imported resources are visible outside the frame.
	for _, n := range fg.nodes {
		if !fg.resourceOf(n).isImported() {
			continue
		}
		if n.writer != nil {
			fg.graph.MakeTarget(n.writer.pass.id)
		}
		if n.isProduced(fg.graph) {
			fg.graph.MakeTarget(n.id)
		}
	}

	if cycles := fg.graph.Cycles(); len(cycles) > 0 {
		fg.fail(&Error{Op: "compile", Err: ErrCycle, Detail: fg.describe(cycles[0])})
	}

	fg.graph.Cull()

	for _, r := range fg.resources {
		r.resetResolved()
	}
	for _, n := range fg.nodes {
		if n.hasActiveWriters(fg.graph) && !n.hasActiveReaders(fg.graph) && !fg.graph.IsTarget(n.id) {
			fg.log.Debug("version written but never read", "resource", fg.resourceOf(n).name, "version", n.version)
		}
	}

	// A live pass needs backing for everything it touches, including
	// outputs nobody reads.
	for _, n := range fg.nodes {
		n.resolveResourceUsage(fg.graph, fg.resourceOf(n))
	}

	// Views are created after their parents, so walking backwards lets
	// grandchildren reach the root.
	for i := len(fg.resources) - 1; i >= 0; i-- {
		r := fg.resources[i]
		if !r.isLive() || !r.hasParent() {
			continue
		}
		parent := fg.resources[r.parent]
		parent.usage |= r.usage
		parent.extendLife(r.liveFirst)
		parent.extendLife(r.liveLast)
	}

	fg.materializeAt = make(map[int][]resourceID)
	fg.destroyAt = make(map[int][]resourceID)
	live := 0
	for _, r := range fg.resources {
		if !r.isLive() {
			if r.refcount > 0 {
				fg.log.Debug("resource has no surviving edges", "resource", r.name, "refcount", r.refcount)
			}
			continue
		}
		live++
		fg.materializeAt[r.liveFirst] = append(fg.materializeAt[r.liveFirst], r.id)
		fg.destroyAt[r.liveLast] = append(fg.destroyAt[r.liveLast], r.id)
	}

	culled := 0
	for _, p := range fg.passes {
		if fg.graph.IsCulled(p.id) {
			culled++
		}
	}

	fg.state = stateCompiled
	fg.log.Info("frame compiled",
		"passes", len(fg.passes),
		"culled", culled,
		"resources", len(fg.resources),
		"live", live)
	return fg
}

// Execute runs every live pass in declaration order. Resources are
// materialized right before their first live pass and destroyed right after
// their last one. Allocation and pass errors stop execution; everything
// still materialized is released before the error is returned, or before
// a precondition panic from a pass propagates.
func (fg *FrameGraph) Execute(ctx context.Context) (err error) {
	if fg.state != stateCompiled {
		fg.fail(&Error{Op: "execute", Err: ErrState, Detail: "frame graph is " + fg.state.String()})
	}
	fg.state = stateExecuted
	ctx = logging.WithFrameID(ctx, fg.id)

	defer func() {
		if r := recover(); r != nil {
			fg.releaseAll()
			panic(r)
		}
		if err != nil {
			fg.releaseAll()
		}
	}()

	for _, p := range fg.passes {
		if fg.graph.IsCulled(p.id) {
			logging.TraceContext(ctx, "skipping culled pass", "pass", p.name)
			continue
		}

		for _, rid := range fg.materializeAt[p.index] {
			r := fg.resources[rid]
			if err := fg.materialize(ctx, r); err != nil {
				return fmt.Errorf("materializing %q for pass %q: %w", r.name, p.name, err)
			}
		}

		if p.exec != nil {
			if err := p.exec(ctx, &Resources{fg: fg, pass: p}); err != nil {
				return fmt.Errorf("executing pass %q: %w", p.name, err)
			}
		}

		ids := fg.destroyAt[p.index]
		for i := len(ids) - 1; i >= 0; i-- {
			fg.destroy(fg.resources[ids[i]])
		}
	}

	fg.log.Debug("frame executed")
	return nil
}

func (fg *FrameGraph) materialize(ctx context.Context, r *virtualResource) error {
	switch {
	case r.imported:
	case r.hasParent():
		parent := fg.resources[r.parent]
		if !parent.materialized {
			return fmt.Errorf("parent %q is not materialized", parent.name)
		}
		r.backing = parent.backing
	default:
		h, err := fg.alloc.Acquire(ctx, AcquireRequest{Name: r.name, Descriptor: r.desc, Usage: r.usage})
		if err != nil {
			return err
		}
		r.backing = h
	}
	r.materialized = true
	fg.log.Debug("resource materialized", "resource", r.name, "usage", r.usageString(), "handle", uint64(r.backing))
	return nil
}

func (fg *FrameGraph) destroy(r *virtualResource) {
	if !r.materialized {
		return
	}
	if !r.imported && !r.hasParent() {
		fg.alloc.Release(r.backing)
	}
	r.materialized = false
	fg.log.Debug("resource destroyed", "resource", r.name)
}

func (fg *FrameGraph) releaseAll() {
	for i := len(fg.resources) - 1; i >= 0; i-- {
		fg.destroy(fg.resources[i])
	}
}

func (fg *FrameGraph) mustDeclaring(op, pass string) {
	if fg.state != stateDeclaring {
		fg.fail(&Error{Op: op, Pass: pass, Err: ErrState, Detail: "frame graph is " + fg.state.String()})
	}
}

func (fg *FrameGraph) addGraphNode(ref nodeRef) depgraph.NodeID {
	id := fg.graph.AddNode()
	fg.refs = append(fg.refs, ref)
	return id
}

func (fg *FrameGraph) addResource(r *virtualResource) Handle {
	r.id = resourceID(len(fg.resources))
	r.resetResolved()
	fg.resources = append(fg.resources, r)

	fg.slots = append(fg.slots, &resourceSlot{rid: r.id})
	idx := len(fg.slots) - 1
	fg.slots[idx].node = fg.newNode(idx, 0)
	return Handle{index: uint32(idx + 1)}
}

func (fg *FrameGraph) newNode(slot int, version uint32) *resourceNode {
	n := &resourceNode{slot: slot, version: version}
	n.id = fg.addGraphNode(nodeRef{kind: nodeResource, res: n})
	fg.nodes = append(fg.nodes, n)
	return n
}

// newVersion starts a new version of the resource in slot and makes it current.
func (fg *FrameGraph) newVersion(slot int) *resourceNode {
	s := fg.slots[slot]
	s.version++
	s.node = fg.newNode(slot, s.version)
	return s.node
}

// lookup validates h. Declarations need the current version (exact);
// execution accepts any version the slot has reached.
func (fg *FrameGraph) lookup(op string, p *passNode, h Handle, exact bool) (int, *resourceSlot) {
	passName := ""
	if p != nil {
		passName = p.name
	}
	if !h.IsInitialized() || h.slot() >= len(fg.slots) {
		fg.fail(&Error{Op: op, Pass: passName, Err: ErrInvalidHandle, Detail: h.String()})
	}
	idx := h.slot()
	s := fg.slots[idx]
	name := fg.resources[s.rid].name
	if h.version > s.version || (exact && h.version != s.version) {
		fg.fail(&Error{Op: op, Pass: passName, Resource: name, Err: ErrInvalidHandle,
			Detail: fmt.Sprintf("handle %s, current version %d", h, s.version)})
	}
	if exact && s.forwarded {
		fg.fail(&Error{Op: op, Pass: passName, Resource: name, Err: ErrForwarded})
	}
	return idx, s
}

func (fg *FrameGraph) resourceOf(n *resourceNode) *virtualResource {
	return fg.resources[fg.slots[n.slot].rid]
}

func (fg *FrameGraph) pass(id PassID) *passNode {
	if id < 0 || int(id) >= len(fg.passes) {
		panic(fmt.Sprintf("framegraph: pass %d out of range [0, %d)", id, len(fg.passes)))
	}
	return fg.passes[id]
}

func (fg *FrameGraph) nodeLabel(id depgraph.NodeID) string {
	ref := fg.refs[id]
	if ref.kind == nodePass {
		return "pass " + ref.pass.name
	}
	return fmt.Sprintf("%s v%d", fg.resourceOf(ref.res).name, ref.res.version)
}

func (fg *FrameGraph) describe(ids []depgraph.NodeID) string {
	labels := make([]string, len(ids))
	for i, id := range ids {
		labels[i] = fg.nodeLabel(id)
	}
	return strings.Join(labels, " -> ")
}

// Binding is the concrete resource a pass sees during execution.
type Binding struct {
	Handle      BackendHandle
	Subresource bool
	Sub         SubDescriptor
}

// Resources resolves handles for the pass currently executing.
type Resources struct {
	fg   *FrameGraph
	pass *passNode
}

// PassName returns the executing pass's name.
func (r *Resources) PassName() string { return r.pass.name }

// Get returns the materialized resource for h. The pass must have read or
// written h during setup.
func (r *Resources) Get(h Handle) Binding {
	vr := r.resolve("get", h)
	if !vr.materialized {
		r.fg.fail(&Error{Op: "get", Pass: r.pass.name, Resource: vr.name, Err: ErrState, Detail: "resource is not materialized"})
	}
	return Binding{Handle: vr.backing, Subresource: vr.hasParent(), Sub: vr.sub}
}

// Descriptor returns the descriptor of h.
func (r *Resources) Descriptor(h Handle) Descriptor {
	return r.resolve("descriptor", h).desc
}

// Usage returns the usage resolved for h across all live passes.
func (r *Resources) Usage(h Handle) Usage {
	return r.resolve("usage", h).usage
}

func (r *Resources) resolve(op string, h Handle) *virtualResource {
	idx, s := r.fg.lookup(op, r.pass, h, false)
	vr := r.fg.resources[s.rid]
	if !r.pass.isDeclared(idx) {
		r.fg.fail(&Error{Op: op, Pass: r.pass.name, Resource: vr.name, Err: ErrUndeclared})
	}
	return vr
}
