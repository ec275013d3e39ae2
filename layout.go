package rhi

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi/internal/convert"
	"github.com/gogpu/wgpu/hal"
)

// LayoutElement declares one binding of a resource layout.
type LayoutElement struct {
	// Name is informational.
	Name string

	// Stages are the shader stages that see the binding. Must be non-empty.
	Stages ShaderStages

	Kind ResourceKind

	// Slot is the declared slot within the kind's binding class, 0 to 19.
	Slot uint32

	// Count is the array length. Zero and one both mean a single binding.
	Count uint32

	// AllowDynamicOffset enables a per-bind offset for buffer elements.
	AllowDynamicOffset bool

	// Range is the minimum bound size of a buffer element. Zero means unchecked.
	Range uint64

	// TextureType is the view type of a texture element. Zero means 2D.
	TextureType TextureType

	// Format selects the sample type of a sampled texture and is required
	// for read/write textures.
	Format gputypes.TextureFormat

	// Comparison marks a sampler element as a comparison sampler.
	Comparison bool
}

func (e LayoutElement) isBuffer() bool {
	switch e.Kind {
	case ResourceKindConstantBuffer, ResourceKindStructuredBuffer, ResourceKindStructuredBufferReadWrite:
		return true
	default:
		return false
	}
}

// ResourceLayoutDescription is an ordered list of elements.
type ResourceLayoutDescription struct {
	Elements []LayoutElement
}

// Validate checks every element and the per-class slot uniqueness.
func (d ResourceLayoutDescription) Validate() error {
	seen := make(map[[2]uint32]int, len(d.Elements))
	for i, e := range d.Elements {
		if _, err := TranslateBinding(e.Kind, e.Slot, e.Count); err != nil {
			return fmt.Errorf("element %d (%s): %w", i, e.Name, err)
		}
		if e.Count > 1 {
			return fmt.Errorf("element %d (%s): %w: binding arrays", i, e.Name, ErrUnsupported)
		}
		if e.Stages == 0 {
			return fmt.Errorf("%w: element %d (%s): no shader stages", ErrValidation, i, e.Name)
		}
		if !e.isBuffer() && (e.AllowDynamicOffset || e.Range != 0) {
			return fmt.Errorf("%w: element %d (%s): dynamic offset and range apply to buffers only",
				ErrValidation, i, e.Name)
		}
		if e.Kind == ResourceKindTextureReadWrite && !convert.IsStorageCapable(e.Format) {
			return fmt.Errorf("element %d (%s): %w: %s cannot back storage", i, e.Name, ErrFormat, e.Format)
		}
		key := [2]uint32{uint32(e.Kind.Class()), e.Slot}
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("element %d (%s) and %d: %w: %s slot %d",
				i, e.Name, prev, ErrDuplicateSlot, e.Kind.Class(), e.Slot)
		}
		seen[key] = i
	}
	return nil
}

func (e LayoutElement) entry(binding uint32) gputypes.BindGroupLayoutEntry {
	out := gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: e.Stages.halStages(),
	}
	viewDim := TextureDescription{Type: e.TextureType, ArrayLayers: 1}.viewDimension()
	switch e.Kind {
	case ResourceKindConstantBuffer:
		out.Buffer = &gputypes.BufferBindingLayout{
			Type:             gputypes.BufferBindingTypeUniform,
			HasDynamicOffset: e.AllowDynamicOffset,
			MinBindingSize:   e.Range,
		}
	case ResourceKindStructuredBuffer, ResourceKindAccelerationStructure:
		out.Buffer = &gputypes.BufferBindingLayout{
			Type:             gputypes.BufferBindingTypeReadOnlyStorage,
			HasDynamicOffset: e.AllowDynamicOffset,
			MinBindingSize:   e.Range,
		}
	case ResourceKindStructuredBufferReadWrite:
		out.Buffer = &gputypes.BufferBindingLayout{
			Type:             gputypes.BufferBindingTypeStorage,
			HasDynamicOffset: e.AllowDynamicOffset,
			MinBindingSize:   e.Range,
		}
	case ResourceKindTexture:
		sampleType := gputypes.TextureSampleTypeFloat
		if e.Format != gputypes.TextureFormatUndefined {
			sampleType = convert.SampleType(e.Format)
		}
		out.Texture = &gputypes.TextureBindingLayout{
			SampleType:    sampleType,
			ViewDimension: viewDim,
		}
	case ResourceKindTextureReadWrite:
		out.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessReadWrite,
			Format:        e.Format,
			ViewDimension: viewDim,
		}
	case ResourceKindSampler:
		typ := gputypes.SamplerBindingTypeFiltering
		if e.Comparison {
			typ = gputypes.SamplerBindingTypeComparison
		}
		out.Sampler = &gputypes.SamplerBindingLayout{Type: typ}
	}
	return out
}

// ResourceLayout is the shape of a resource set.
type ResourceLayout struct {
	deviceResource
	desc     ResourceLayoutDescription
	bindings []uint32
	raw      hal.BindGroupLayout
}

// Description returns the description the layout was created with.
func (l *ResourceLayout) Description() ResourceLayoutDescription { return l.desc }

// Bindings returns the translated native binding of each element, in
// element order.
func (l *ResourceLayout) Bindings() []uint32 {
	return append([]uint32(nil), l.bindings...)
}

// dynamicCount returns the number of elements with dynamic offsets.
func (l *ResourceLayout) dynamicCount() int {
	n := 0
	for _, e := range l.desc.Elements {
		if e.AllowDynamicOffset {
			n++
		}
	}
	return n
}

// Destroy releases the bind group layout.
func (l *ResourceLayout) Destroy() {
	l.markDestroyed()
	l.ctx.device.DestroyBindGroupLayout(l.raw)
}

// CreateResourceLayout creates a resource layout. Acceleration structure
// elements require a ray-tracing capable device.
func (f *ResourceFactory) CreateResourceLayout(desc ResourceLayoutDescription) (*ResourceLayout, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("create resource layout: %w", err)
	}
	elems := append([]LayoutElement(nil), desc.Elements...)
	bindings := make([]uint32, len(elems))
	entries := make([]gputypes.BindGroupLayoutEntry, len(elems))
	for i, e := range elems {
		if e.Kind == ResourceKindAccelerationStructure && !f.ctx.SupportsRayTracing() {
			return nil, fmt.Errorf("create resource layout: element %d: %w", i, ErrRayTracingUnsupported)
		}
		bindings[i], _ = TranslateBinding(e.Kind, e.Slot, e.Count)
		entries[i] = e.entry(bindings[i])
	}
	raw, err := f.ctx.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Entries: entries})
	if err != nil {
		return nil, backendError("create resource layout", err)
	}
	l := &ResourceLayout{
		desc:     ResourceLayoutDescription{Elements: elems},
		bindings: bindings,
		raw:      raw,
	}
	l.init(f.ctx, "ResourceLayout", "", raw, true)
	Logger().Debug("rhi: resource layout created", "elements", len(elems), "bindings", bindings)
	return l, nil
}
