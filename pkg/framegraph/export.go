package framegraph

import (
	"github.com/ritzau/framegraph/pkg/depgraph"
	"github.com/ritzau/framegraph/pkg/model"
)

// Snapshot copies the graph into its diagnostic form. Before Compile no
// node is culled.
func (fg *FrameGraph) Snapshot() *model.Graph {
	g := model.NewGraph(fg.id)

	for id, ref := range fg.refs {
		nid := depgraph.NodeID(id)
		node := &model.Node{
			ID:     int64(id),
			Culled: fg.graph.IsCulled(nid),
			Target: fg.graph.IsTarget(nid),
		}
		switch ref.kind {
		case nodePass:
			node.Type = model.NodePass
			node.Label = ref.pass.name
			g.AddNode(node)
			node.Metadata["index"] = ref.pass.index
			if ref.pass.sideEffect {
				node.Metadata["sideEffect"] = true
			}
		case nodeResource:
			r := fg.resourceOf(ref.res)
			node.Type = model.NodeResource
			node.Label = r.name
			g.AddNode(node)
			node.Metadata["version"] = ref.res.version
			node.Metadata["refcount"] = r.refcount
			node.Metadata["kind"] = r.desc.Kind.String()
			if fg.state != stateDeclaring {
				node.Metadata["usage"] = r.usageString()
			}
			if r.imported {
				node.Metadata["imported"] = true
			}
			if r.first != nil {
				node.Metadata["declaredFirst"] = r.first.name
				node.Metadata["declaredLast"] = r.last.name
			}
		}
	}

	for _, n := range fg.nodes {
		if n.writer != nil {
			g.AddEdge(exportEdge(n.writer.edge, model.EdgeWrite, n.writer.usage))
		}
		for _, e := range n.readers {
			g.AddEdge(exportEdge(e.edge, model.EdgeRead, e.usage))
		}
		if n.parentRead != nil {
			g.AddEdge(exportEdge(*n.parentRead, model.EdgeParentRead, UsageNone))
		}
		if n.parentWrite != nil {
			g.AddEdge(exportEdge(*n.parentWrite, model.EdgeParentWrite, UsageNone))
		}
		if n.forwarded != nil {
			g.AddEdge(exportEdge(*n.forwarded, model.EdgeForward, UsageNone))
		}
	}
	return g
}

func exportEdge(e depgraph.Edge, t model.EdgeType, u Usage) *model.Edge {
	out := &model.Edge{Source: int64(e.From), Target: int64(e.To), Type: t}
	if t == model.EdgeRead || t == model.EdgeWrite {
		out.Usage = u.String()
	}
	return out
}

// Plan describes what Execute does around each live pass.
func (fg *FrameGraph) Plan() *model.Plan {
	if fg.state == stateDeclaring {
		fg.fail(&Error{Op: "plan", Err: ErrState, Detail: "frame graph is not compiled"})
	}

	plan := &model.Plan{Frame: fg.id}
	for _, p := range fg.passes {
		if fg.graph.IsCulled(p.id) {
			plan.Culled = append(plan.Culled, p.name)
			continue
		}
		step := model.PlanStep{Index: p.index, Pass: p.name}
		for _, rid := range fg.materializeAt[p.index] {
			step.Materialize = append(step.Materialize, fg.resources[rid].name)
		}
		ids := fg.destroyAt[p.index]
		for i := len(ids) - 1; i >= 0; i-- {
			step.Destroy = append(step.Destroy, fg.resources[ids[i]].name)
		}
		plan.Steps = append(plan.Steps, step)
	}

	for _, r := range fg.resources {
		info := model.ResourceInfo{
			Name:     r.name,
			Kind:     r.desc.Kind.String(),
			Imported: r.imported,
			Refcount: r.refcount,
			Usage:    r.usageString(),
			Live:     r.isLive(),
		}
		if r.hasParent() {
			info.Parent = fg.resources[r.parent].name
		}
		if r.isLive() {
			info.First = fg.passes[r.liveFirst].name
			info.Last = fg.passes[r.liveLast].name
		}
		if r.first != nil {
			info.DeclaredFirst = r.first.name
			info.DeclaredLast = r.last.name
		}
		plan.Resources = append(plan.Resources, info)
	}
	return plan
}

// Resource returns the compiled summary of the resource h resolves to.
func (fg *FrameGraph) Resource(h Handle) model.ResourceInfo {
	_, s := fg.lookup("resource", nil, h, false)
	return fg.Plan().Resources[s.rid]
}
