package framegraph

import (
	"context"
	"sync/atomic"
)

// BackendHandle is an opaque reference to a concrete GPU resource.
type BackendHandle uint64

// AcquireRequest is everything an allocator needs to back one resource.
type AcquireRequest struct {
	Name       string
	Descriptor Descriptor
	Usage      Usage
}

// Allocator provides backing memory. Execute calls Acquire exactly at a
// resource's materialize point and Release exactly after its last pass.
// Recycling and aliasing released memory is up to the allocator.
type Allocator interface {
	Acquire(ctx context.Context, req AcquireRequest) (BackendHandle, error)
	Release(h BackendHandle)
}

// sequentialAllocator hands out fresh handles and never reuses them.
// It is the default when no allocator is configured.
type sequentialAllocator struct {
	next atomic.Uint64
}

func (a *sequentialAllocator) Acquire(_ context.Context, _ AcquireRequest) (BackendHandle, error) {
	return BackendHandle(a.next.Add(1)), nil
}

func (a *sequentialAllocator) Release(BackendHandle) {}
