package model

// Graph is a read-only snapshot of a frame graph for diagnostics.
// It is what the web endpoints serve and what the DOT export renders.
type Graph struct {
	Frame string  `json:"frame"`
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// NodeType distinguishes pass nodes from resource nodes.
type NodeType string

const (
	NodePass     NodeType = "pass"
	NodeResource NodeType = "resource"
)

// EdgeType describes why two nodes are connected.
type EdgeType string

const (
	EdgeRead        EdgeType = "read"
	EdgeWrite       EdgeType = "write"
	EdgeParentRead  EdgeType = "parent-read"
	EdgeParentWrite EdgeType = "parent-write"
	EdgeForward     EdgeType = "forward"
)

// NewGraph creates a new empty graph.
func NewGraph(frame string) *Graph {
	return &Graph{
		Frame: frame,
		Nodes: make([]*Node, 0),
		Edges: make([]*Edge, 0),
	}
}

// Node is one pass or one resource version.
type Node struct {
	ID       int64                  `json:"id"`
	Label    string                 `json:"label"`
	Type     NodeType               `json:"type"`
	Culled   bool                   `json:"culled"`
	Target   bool                   `json:"target,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Edge is a directed connection between two nodes.
type Edge struct {
	Source int64    `json:"source"`
	Target int64    `json:"target"`
	Type   EdgeType `json:"type"`
	Usage  string   `json:"usage,omitempty"`
}

// AddNode appends a node to the graph.
func (g *Graph) AddNode(node *Node) {
	if node.Metadata == nil {
		node.Metadata = make(map[string]interface{})
	}
	g.Nodes = append(g.Nodes, node)
}

// AddEdge appends an edge to the graph.
func (g *Graph) AddEdge(edge *Edge) {
	g.Edges = append(g.Edges, edge)
}

// Node returns the node with the given ID, or nil.
func (g *Graph) Node(id int64) *Node {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// LiveCount returns how many pass and resource nodes survived culling.
func (g *Graph) LiveCount() (passes, resources int) {
	for _, n := range g.Nodes {
		if n.Culled {
			continue
		}
		switch n.Type {
		case NodePass:
			passes++
		case NodeResource:
			resources++
		}
	}
	return passes, resources
}
