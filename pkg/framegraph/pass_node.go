package framegraph

import (
	"context"

	"github.com/ritzau/framegraph/pkg/depgraph"
)

// ExecuteFunc records the GPU work of one pass. It runs synchronously
// during Execute with the resources the pass declared already materialized.
type ExecuteFunc func(ctx context.Context, r *Resources) error

// PassID identifies a pass by its declaration index.
type PassID int

type passNode struct {
	id         depgraph.NodeID
	index      int
	name       string
	exec       ExecuteFunc
	declared   map[int]struct{} // slot indices read or written
	sideEffect bool
}

func (p *passNode) declare(slot int) {
	p.declared[slot] = struct{}{}
}

func (p *passNode) isDeclared(slot int) bool {
	_, ok := p.declared[slot]
	return ok
}
