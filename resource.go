package rhi

import (
	"fmt"
	"sync"
)

// Resource is implemented by every GPU-backed handle.
type Resource interface {
	// Context returns the context the resource was created from.
	Context() *Context

	// Name returns the debug name.
	Name() string

	// SetName changes the debug name. Setting the current name is a no-op.
	SetName(name string)

	// IsDestroyed reports whether Destroy has been called.
	IsDestroyed() bool

	// Destroy releases the backend objects. It must be called exactly once;
	// a second call panics.
	Destroy()
}

// labeler is implemented by native objects that accept debug labels.
type labeler interface {
	SetLabel(label string)
}

// deviceResource is the common state embedded in every resource.
type deviceResource struct {
	mu        sync.Mutex
	ctx       *Context
	kind      string
	name      string
	destroyed bool
	tracked   bool

	// native is the backend object the debug name is forwarded to.
	native any
}

func (r *deviceResource) init(ctx *Context, kind, name string, native any, tracked bool) {
	r.ctx = ctx
	r.kind = kind
	r.name = name
	r.native = native
	r.tracked = tracked
	if tracked {
		ctx.live.Add(1)
	}
}

// Context returns the owning context.
func (r *deviceResource) Context() *Context { return r.ctx }

// Name returns the debug name.
func (r *deviceResource) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name
}

// SetName changes the debug name and relabels the backend object.
func (r *deviceResource) SetName(name string) {
	r.mu.Lock()
	if r.name == name {
		r.mu.Unlock()
		return
	}
	r.name = name
	native := r.native
	r.mu.Unlock()

	if l, ok := native.(labeler); ok {
		l.SetLabel(name)
		return
	}
	Logger().Debug("rhi: relabel", "kind", r.kind, "name", name)
}

// IsDestroyed reports whether Destroy has been called.
func (r *deviceResource) IsDestroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}

// markDestroyed flips the destroyed flag and panics on a second call.
func (r *deviceResource) markDestroyed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		panic(fmt.Sprintf("rhi: %s %q destroyed twice", r.kind, r.name))
	}
	r.destroyed = true
	if r.tracked {
		r.ctx.live.Add(-1)
	}
}

// checkUsable returns an error if the resource cannot be used with ctx.
func (r *deviceResource) checkUsable(ctx *Context) error {
	if r.ctx != ctx {
		return fmt.Errorf("%w: %s %q", ErrForeignResource, r.kind, r.Name())
	}
	if r.IsDestroyed() {
		return fmt.Errorf("%w: %s %q", ErrDestroyed, r.kind, r.Name())
	}
	return nil
}
