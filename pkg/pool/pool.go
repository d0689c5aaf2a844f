// Package pool recycles backing resources between frame graph resources
// whose lifetimes do not overlap.
//
// A Pool implements framegraph.Allocator. Released backings go on an idle
// list keyed by descriptor and device usage; a later Acquire with the same
// key gets one back instead of creating a new one. Idle backings beyond the
// capacity are destroyed oldest first.
package pool

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/ritzau/framegraph/pkg/framegraph"
	"github.com/ritzau/framegraph/pkg/logging"
)

// DefaultCapacity is the number of idle backings kept when none is configured.
const DefaultCapacity = 64

// Key is what two requests must agree on to share a backing.
// Usage is normalized to what the device distinguishes.
type Key struct {
	Descriptor   framegraph.Descriptor
	TextureUsage gputypes.TextureUsage
	BufferUsage  gputypes.BufferUsage
}

// KeyFor derives the pool key of an allocation request.
func KeyFor(req framegraph.AcquireRequest) Key {
	k := Key{Descriptor: req.Descriptor}
	if req.Descriptor.Kind == framegraph.KindBuffer {
		k.BufferUsage = req.Usage.BufferUsage()
	} else {
		k.TextureUsage = req.Usage.TextureUsage()
	}
	return k
}

func (k Key) String() string {
	d := k.Descriptor
	if d.Kind == framegraph.KindBuffer {
		return fmt.Sprintf("buffer %dB usage=0x%x", d.Size, uint32(k.BufferUsage))
	}
	return fmt.Sprintf("%s %dx%dx%d %s levels=%d samples=%d usage=0x%x",
		d.Kind, d.Width, d.Height, d.Depth, framegraph.FormatName(d.Format), d.Levels, d.Samples, uint32(k.TextureUsage))
}

// Backend creates and destroys device resources.
type Backend interface {
	Create(ctx context.Context, key Key) (framegraph.BackendHandle, error)
	Destroy(h framegraph.BackendHandle)
}

// Stats is a point-in-time view of pool activity.
type Stats struct {
	Created uint64 `json:"created"`
	Reused  uint64 `json:"reused"`
	Evicted uint64 `json:"evicted"`
	InUse   int    `json:"inUse"`
	Idle    int    `json:"idle"`
}

type entry struct {
	key    Key
	handle framegraph.BackendHandle
}

// Pool is a thread-safe LRU free list of backings.
type Pool struct {
	backend  Backend
	capacity int
	log      *slog.Logger

	mu    sync.Mutex
	idle  map[Key][]*list.Element
	lru   *list.List // *entry, most recently released at the front
	inUse map[framegraph.BackendHandle]Key

	created atomic.Uint64
	reused  atomic.Uint64
	evicted atomic.Uint64
}

// New creates a pool over backend. A nil backend simulates device memory.
// If capacity <= 0, DefaultCapacity is used.
func New(backend Backend, capacity int) *Pool {
	if backend == nil {
		backend = NewSimulatedBackend()
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Pool{
		backend:  backend,
		capacity: capacity,
		log:      logging.New("pool"),
		idle:     make(map[Key][]*list.Element),
		lru:      list.New(),
		inUse:    make(map[framegraph.BackendHandle]Key),
	}
}

// Acquire returns an idle backing for the request's key or creates one.
func (p *Pool) Acquire(ctx context.Context, req framegraph.AcquireRequest) (framegraph.BackendHandle, error) {
	key := KeyFor(req)

	p.mu.Lock()
	if els := p.idle[key]; len(els) > 0 {
		el := els[len(els)-1]
		p.idle[key] = els[:len(els)-1]
		e := p.lru.Remove(el).(*entry)
		p.inUse[e.handle] = key
		p.mu.Unlock()

		p.reused.Add(1)
		logging.TraceContext(ctx, "reusing backing", "resource", req.Name, "handle", uint64(e.handle))
		return e.handle, nil
	}
	p.mu.Unlock()

	h, err := p.backend.Create(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("creating %s for %q: %w", key, req.Name, err)
	}

	p.mu.Lock()
	p.inUse[h] = key
	p.mu.Unlock()

	p.created.Add(1)
	p.log.Debug("created backing", "resource", req.Name, "key", key.String(), "handle", uint64(h))
	return h, nil
}

// Release returns h to the idle list. Unknown handles are logged and ignored.
func (p *Pool) Release(h framegraph.BackendHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key, ok := p.inUse[h]
	if !ok {
		p.log.Warn("release of unknown handle", "handle", uint64(h))
		return
	}
	delete(p.inUse, h)

	el := p.lru.PushFront(&entry{key: key, handle: h})
	p.idle[key] = append(p.idle[key], el)

	for p.lru.Len() > p.capacity {
		p.evictOldest()
	}
}

// evictOldest destroys the least recently released backing. p.mu must be held.
func (p *Pool) evictOldest() {
	el := p.lru.Back()
	if el == nil {
		return
	}
	e := p.lru.Remove(el).(*entry)

	els := p.idle[e.key]
	for i, x := range els {
		if x == el {
			els = append(els[:i], els[i+1:]...)
			break
		}
	}
	if len(els) == 0 {
		delete(p.idle, e.key)
	} else {
		p.idle[e.key] = els
	}

	p.backend.Destroy(e.handle)
	p.evicted.Add(1)
	p.log.Debug("evicted backing", "key", e.key.String(), "handle", uint64(e.handle))
}

// Drain destroys every idle backing. Backings in use are left alone.
func (p *Pool) Drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.lru.Len() > 0 {
		p.evictOldest()
	}
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	inUse, idle := len(p.inUse), p.lru.Len()
	p.mu.Unlock()

	return Stats{
		Created: p.created.Load(),
		Reused:  p.reused.Load(),
		Evicted: p.evicted.Load(),
		InUse:   inUse,
		Idle:    idle,
	}
}

// SimulatedBackend hands out sequential handles and tracks what is alive.
type SimulatedBackend struct {
	next atomic.Uint64
	mu   sync.Mutex
	live map[framegraph.BackendHandle]Key
}

// NewSimulatedBackend creates a backend without a device.
func NewSimulatedBackend() *SimulatedBackend {
	return &SimulatedBackend{live: make(map[framegraph.BackendHandle]Key)}
}

func (b *SimulatedBackend) Create(_ context.Context, key Key) (framegraph.BackendHandle, error) {
	h := framegraph.BackendHandle(b.next.Add(1))
	b.mu.Lock()
	b.live[h] = key
	b.mu.Unlock()
	return h, nil
}

func (b *SimulatedBackend) Destroy(h framegraph.BackendHandle) {
	b.mu.Lock()
	delete(b.live, h)
	b.mu.Unlock()
}

// Live returns the number of backings created and not yet destroyed.
func (b *SimulatedBackend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}
