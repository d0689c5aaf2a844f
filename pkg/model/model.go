package model

// PlanStep is what execution does around one live pass.
type PlanStep struct {
	Index       int      `json:"index"` // declaration index of the pass
	Pass        string   `json:"pass"`
	Materialize []string `json:"materialize,omitempty"`
	Destroy     []string `json:"destroy,omitempty"`
}

// ResourceInfo summarizes one virtual resource after compilation.
type ResourceInfo struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Imported bool   `json:"imported"`
	Parent   string `json:"parent,omitempty"`
	Refcount int    `json:"refcount"`
	Usage    string `json:"usage"`
	First    string `json:"first,omitempty"` // first live pass
	Last     string `json:"last,omitempty"`  // last live pass
	Live     bool   `json:"live"`

	// Span of the passes that declared the resource, culled or not.
	DeclaredFirst string `json:"declaredFirst,omitempty"`
	DeclaredLast  string `json:"declaredLast,omitempty"`
}

// Plan is the compiled schedule of one frame.
type Plan struct {
	Frame     string         `json:"frame"`
	Steps     []PlanStep     `json:"steps"`
	Culled    []string       `json:"culled"` // culled pass names, declaration order
	Resources []ResourceInfo `json:"resources"`
}

// Materialized returns the names of every resource the plan allocates or binds.
func (p *Plan) Materialized() []string {
	var names []string
	for _, s := range p.Steps {
		names = append(names, s.Materialize...)
	}
	return names
}
