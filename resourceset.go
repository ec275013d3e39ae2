package rhi

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ResourceSetDescription binds one resource to each element of a layout.
type ResourceSetDescription struct {
	Layout *ResourceLayout

	// Resources holds one resource per layout element, in element order:
	// *Buffer for buffer kinds, *Texture for texture kinds, *Sampler for
	// samplers and *TopLevelAS for acceleration structures.
	Resources []Resource
}

// ResourceSet is a group of resources bound together.
type ResourceSet struct {
	deviceResource
	desc ResourceSetDescription
	raw  hal.BindGroup
}

// Description returns the description the set was created with.
func (s *ResourceSet) Description() ResourceSetDescription { return s.desc }

// Layout returns the layout the set was created against.
func (s *ResourceSet) Layout() *ResourceLayout { return s.desc.Layout }

// Destroy releases the bind group. The bound resources are not affected.
func (s *ResourceSet) Destroy() {
	s.markDestroyed()
	s.ctx.device.DestroyBindGroup(s.raw)
}

// checkShape verifies the resource at position i fits element e and
// returns its binding resource.
func checkShape(ctx *Context, i int, e LayoutElement, r Resource) (gputypes.BindingResource, error) {
	if r == nil {
		return nil, fmt.Errorf("resource %d (%s): %w", i, e.Name, ErrNilResource)
	}
	mismatch := func(want string) error {
		return fmt.Errorf("resource %d (%s): %w: %s needs %s, got %T",
			i, e.Name, ErrShapeMismatch, e.Kind, want, r)
	}
	switch e.Kind {
	case ResourceKindConstantBuffer, ResourceKindStructuredBuffer, ResourceKindStructuredBufferReadWrite:
		b, ok := r.(*Buffer)
		if !ok {
			return nil, mismatch("*Buffer")
		}
		if b == nil {
			return nil, fmt.Errorf("resource %d (%s): %w", i, e.Name, ErrNilResource)
		}
		var want BufferUsage
		switch e.Kind {
		case ResourceKindConstantBuffer:
			want = BufferUsageConstant
		case ResourceKindStructuredBuffer:
			want = BufferUsageReadOnlyStorage | BufferUsageReadWriteStorage
		default:
			want = BufferUsageReadWriteStorage
		}
		if b.desc.Usage&want == 0 {
			return nil, mismatch("usage " + want.String())
		}
		if err := b.checkUsable(ctx); err != nil {
			return nil, err
		}
		if e.Range > b.desc.SizeInBytes {
			return nil, fmt.Errorf("resource %d (%s): %w: range %d exceeds buffer size %d",
				i, e.Name, ErrOutOfBounds, e.Range, b.desc.SizeInBytes)
		}
		return gputypes.BufferBinding{Buffer: b.raw.NativeHandle(), Size: e.Range}, nil

	case ResourceKindTexture, ResourceKindTextureReadWrite:
		t, ok := r.(*Texture)
		if !ok {
			return nil, mismatch("*Texture")
		}
		if t == nil {
			return nil, fmt.Errorf("resource %d (%s): %w", i, e.Name, ErrNilResource)
		}
		want := TextureUsageSampled
		if e.Kind == ResourceKindTextureReadWrite {
			want = TextureUsageStorage
		}
		if !t.desc.Usage.Contains(want) {
			return nil, mismatch("texture usage")
		}
		if err := t.checkUsable(ctx); err != nil {
			return nil, err
		}
		return gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()}, nil

	case ResourceKindSampler:
		s, ok := r.(*Sampler)
		if !ok {
			return nil, mismatch("*Sampler")
		}
		if s == nil {
			return nil, fmt.Errorf("resource %d (%s): %w", i, e.Name, ErrNilResource)
		}
		if s.desc.IsComparison() != e.Comparison {
			return nil, mismatch("comparison sampler")
		}
		if err := s.checkUsable(ctx); err != nil {
			return nil, err
		}
		return gputypes.SamplerBinding{Sampler: s.raw.NativeHandle()}, nil

	case ResourceKindAccelerationStructure:
		tlas, ok := r.(*TopLevelAS)
		if !ok {
			return nil, mismatch("*TopLevelAS")
		}
		if tlas == nil {
			return nil, fmt.Errorf("resource %d (%s): %w", i, e.Name, ErrNilResource)
		}
		if err := tlas.checkUsable(ctx); err != nil {
			return nil, err
		}
		return gputypes.BufferBinding{Buffer: tlas.native.NativeHandle()}, nil
	}
	return nil, fmt.Errorf("%w: resource %d: unknown kind %d", ErrValidation, i, e.Kind)
}

// CreateResourceSet creates a resource set. The resources must match the
// layout in length, and each must be of the element's kind with the usage
// the kind requires; otherwise ErrShapeMismatch is returned.
func (f *ResourceFactory) CreateResourceSet(desc ResourceSetDescription) (*ResourceSet, error) {
	layout := desc.Layout
	if layout == nil {
		return nil, fmt.Errorf("create resource set: layout: %w", ErrNilResource)
	}
	if err := layout.checkUsable(f.ctx); err != nil {
		return nil, fmt.Errorf("create resource set: %w", err)
	}
	elems := layout.desc.Elements
	if len(desc.Resources) != len(elems) {
		return nil, fmt.Errorf("create resource set: %w: %d resources for %d elements",
			ErrShapeMismatch, len(desc.Resources), len(elems))
	}
	entries := make([]gputypes.BindGroupEntry, len(elems))
	for i, e := range elems {
		res, err := checkShape(f.ctx, i, e, desc.Resources[i])
		if err != nil {
			return nil, fmt.Errorf("create resource set: %w", err)
		}
		entries[i] = gputypes.BindGroupEntry{Binding: layout.bindings[i], Resource: res}
	}
	raw, err := f.ctx.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Layout:  layout.raw,
		Entries: entries,
	})
	if err != nil {
		return nil, backendError("create resource set", err)
	}
	s := &ResourceSet{
		desc: ResourceSetDescription{
			Layout:    layout,
			Resources: append([]Resource(nil), desc.Resources...),
		},
		raw: raw,
	}
	s.init(f.ctx, "ResourceSet", "", raw, true)
	return s, nil
}
