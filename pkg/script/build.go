package script

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/ritzau/framegraph/pkg/framegraph"
)

func (r ResourceSpec) descriptor() (framegraph.Descriptor, error) {
	kind, err := framegraph.ParseKind(r.Kind)
	if err != nil {
		return framegraph.Descriptor{}, err
	}
	format, err := framegraph.ParseFormat(r.Format)
	if err != nil {
		return framegraph.Descriptor{}, err
	}
	return framegraph.Descriptor{
		Kind:    kind,
		Width:   r.Width,
		Height:  r.Height,
		Depth:   r.Depth,
		Levels:  r.Levels,
		Samples: r.Samples,
		Format:  format,
		Size:    r.Size,
	}, nil
}

// Validate checks names, kinds, formats and usages without touching a
// frame graph. Build assumes a validated frame.
func (f *Frame) Validate() error {
	var errs []error
	known := make(map[string]bool)

	declare := func(where string, r ResourceSpec) {
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("%s: resource without a name", where))
			return
		}
		if known[r.Name] {
			errs = append(errs, fmt.Errorf("%s: resource %q declared twice", where, r.Name))
		}
		if _, err := r.descriptor(); err != nil {
			errs = append(errs, fmt.Errorf("%s: resource %q: %w", where, r.Name, err))
		}
		known[r.Name] = true
	}
	use := func(where, name string, usage []string) {
		if !known[name] {
			errs = append(errs, fmt.Errorf("%s: unknown resource %q", where, name))
		}
		if _, err := framegraph.ParseUsage(usage...); err != nil {
			errs = append(errs, fmt.Errorf("%s: resource %q: %w", where, name, err))
		}
	}

	for _, r := range f.Resources {
		declare("resources", r)
		if r.Parent != "" {
			errs = append(errs, fmt.Errorf("resources: imported resource %q cannot have a parent", r.Name))
		}
		if _, err := framegraph.ParseUsage(r.Attachments...); err != nil {
			errs = append(errs, fmt.Errorf("resources: resource %q: %w", r.Name, err))
		}
	}

	passes := make(map[string]bool)
	for i, p := range f.Passes {
		where := fmt.Sprintf("passes[%d] %q", i, p.Name)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("passes[%d]: pass without a name", i))
		}
		if passes[p.Name] {
			errs = append(errs, fmt.Errorf("%s: pass declared twice", where))
		}
		passes[p.Name] = true

		for _, c := range p.Creates {
			if c.Parent != "" && !known[c.Parent] {
				errs = append(errs, fmt.Errorf("%s: unknown parent %q", where, c.Parent))
			}
			declare(where, c)
		}
		for _, a := range p.Reads {
			use(where, a.Resource, a.Usage)
		}
		for _, a := range p.Writes {
			use(where, a.Resource, a.Usage)
		}
	}

	for i, fw := range f.Forwards {
		where := fmt.Sprintf("forwards[%d]", i)
		use(where, fw.Resource, nil)
		use(where, fw.Replaced, nil)
	}
	for _, name := range f.Present {
		use("present", name, nil)
	}

	return errors.Join(errs...)
}

// Build declares the frame on fg. When rec is non-nil every executed pass
// records the resources it was bound to. Frame graph precondition failures
// are returned as errors.
func (f *Frame) Build(fg *framegraph.FrameGraph, rec *Recorder) (err error) {
	if err := f.Validate(); err != nil {
		return err
	}
	defer framegraph.Recover(&err)

	handles := make(map[string]framegraph.Handle)

	for _, r := range f.Resources {
		desc, _ := r.descriptor()
		backing := framegraph.BackendHandle(r.Backing)
		if desc.Kind == framegraph.KindRenderTarget {
			attachments, _ := framegraph.ParseUsage(r.Attachments...)
			rt := framegraph.RenderTargetDescriptor{Attachments: attachments, Samples: r.Samples}
			handles[r.Name] = fg.ImportRenderTarget(r.Name, desc, rt, backing)
			continue
		}
		handles[r.Name] = fg.Import(r.Name, desc, backing)
	}

	for i := range f.Passes {
		p := &f.Passes[i]
		declared := make(map[string]framegraph.Handle)

		fg.AddPass(p.Name, func(b *framegraph.Builder) {
			for _, c := range p.Creates {
				if c.Parent != "" {
					sub := framegraph.SubDescriptor{Level: c.Level, Layer: c.Layer}
					handles[c.Name] = b.CreateSubresource(handles[c.Parent], c.Name, sub)
					continue
				}
				desc, _ := c.descriptor()
				handles[c.Name] = b.Create(c.Name, desc)
			}
			for _, a := range p.Reads {
				u, _ := framegraph.ParseUsage(a.Usage...)
				handles[a.Resource] = b.Read(handles[a.Resource], u)
				declared[a.Resource] = handles[a.Resource]
			}
			for _, a := range p.Writes {
				u, _ := framegraph.ParseUsage(a.Usage...)
				handles[a.Resource] = b.Write(handles[a.Resource], u)
				declared[a.Resource] = handles[a.Resource]
			}
			if p.SideEffect {
				b.SideEffect()
			}
		}, rec.exec(p.Name, declared))
	}

	for _, fw := range f.Forwards {
		handles[fw.Replaced] = fg.ForwardResource(handles[fw.Resource], handles[fw.Replaced])
	}
	for _, name := range f.Present {
		fg.Present(handles[name])
	}
	return nil
}

// Binding is what a pass saw for one resource.
type Binding struct {
	Resource    string `json:"resource"`
	Handle      uint64 `json:"handle"`
	Subresource bool   `json:"subresource,omitempty"`
	Level       uint8  `json:"level,omitempty"`
	Layer       uint32 `json:"layer,omitempty"`
}

// Execution records one executed pass.
type Execution struct {
	Pass     string    `json:"pass"`
	Bindings []Binding `json:"bindings"`
}

// Recorder collects executions in order. It is safe for concurrent use.
type Recorder struct {
	mu         sync.Mutex
	executions []Execution
}

// Executions returns a copy of everything recorded so far.
func (r *Recorder) Executions() []Execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.executions)
}

// Passes returns the executed pass names in order.
func (r *Recorder) Passes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.executions))
	for i, e := range r.executions {
		names[i] = e.Pass
	}
	return names
}

func (r *Recorder) exec(pass string, declared map[string]framegraph.Handle) framegraph.ExecuteFunc {
	if r == nil {
		return nil
	}
	return func(_ context.Context, res *framegraph.Resources) error {
		e := Execution{Pass: pass}
		for _, name := range slices.Sorted(maps.Keys(declared)) {
			b := res.Get(declared[name])
			e.Bindings = append(e.Bindings, Binding{
				Resource:    name,
				Handle:      uint64(b.Handle),
				Subresource: b.Subresource,
				Level:       b.Sub.Level,
				Layer:       b.Sub.Layer,
			})
		}
		r.mu.Lock()
		r.executions = append(r.executions, e)
		r.mu.Unlock()
		return nil
	}
}
