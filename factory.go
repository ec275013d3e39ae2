package rhi

// ResourceFactory creates GPU resources on its context's device.
//
// Every Create method validates the description before calling the backend,
// so a description error never leaves a half-created object behind. The
// returned handle's Description equals the input.
type ResourceFactory struct {
	ctx *Context
}

// Context returns the owning context.
func (f *ResourceFactory) Context() *Context { return f.ctx }
