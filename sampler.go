package rhi

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// SamplerDescription describes texture filtering and addressing.
type SamplerDescription struct {
	MinFilter gputypes.FilterMode
	MagFilter gputypes.FilterMode
	MipFilter gputypes.FilterMode

	AddressU gputypes.AddressMode
	AddressV gputypes.AddressMode
	AddressW gputypes.AddressMode

	// Comparison turns the sampler into a comparison sampler when set to
	// anything but CompareFunctionUndefined.
	Comparison gputypes.CompareFunction

	MinLOD float32
	MaxLOD float32

	// MaxAnisotropy is 1 (off) to 16. Zero means 1.
	MaxAnisotropy uint16
}

// DefaultSamplerDescription returns a trilinear, repeating sampler.
func DefaultSamplerDescription() SamplerDescription {
	return SamplerDescription{
		MinFilter:     gputypes.FilterModeLinear,
		MagFilter:     gputypes.FilterModeLinear,
		MipFilter:     gputypes.FilterModeLinear,
		AddressU:      gputypes.AddressModeRepeat,
		AddressV:      gputypes.AddressModeRepeat,
		AddressW:      gputypes.AddressModeRepeat,
		MaxLOD:        32,
		MaxAnisotropy: 1,
	}
}

// Validate checks the description invariants.
func (d SamplerDescription) Validate() error {
	if d.MinLOD < 0 || d.MaxLOD < d.MinLOD {
		return fmt.Errorf("%w: sampler: lod range [%g, %g]", ErrValidation, d.MinLOD, d.MaxLOD)
	}
	if d.MaxAnisotropy > 16 {
		return fmt.Errorf("%w: sampler: anisotropy %d", ErrValidation, d.MaxAnisotropy)
	}
	if d.MaxAnisotropy > 1 && (d.MinFilter != gputypes.FilterModeLinear ||
		d.MagFilter != gputypes.FilterModeLinear || d.MipFilter != gputypes.FilterModeLinear) {
		return fmt.Errorf("%w: sampler: anisotropy needs linear filtering", ErrValidation)
	}
	return nil
}

// IsComparison reports whether the sampler compares against a reference.
func (d SamplerDescription) IsComparison() bool {
	return d.Comparison != gputypes.CompareFunctionUndefined
}

func orFilter(m gputypes.FilterMode) gputypes.FilterMode {
	if m == gputypes.FilterModeUndefined {
		return gputypes.FilterModeNearest
	}
	return m
}

func orAddress(m gputypes.AddressMode) gputypes.AddressMode {
	if m == gputypes.AddressModeUndefined {
		return gputypes.AddressModeClampToEdge
	}
	return m
}

// Sampler is a texture sampler.
type Sampler struct {
	deviceResource
	desc SamplerDescription
	raw  hal.Sampler
}

// Description returns the description the sampler was created with.
func (s *Sampler) Description() SamplerDescription { return s.desc }

// Destroy releases the sampler.
func (s *Sampler) Destroy() {
	s.markDestroyed()
	s.ctx.device.DestroySampler(s.raw)
}

// CreateSampler creates a sampler.
func (f *ResourceFactory) CreateSampler(desc SamplerDescription) (*Sampler, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("create sampler: %w", err)
	}
	raw, err := f.ctx.device.CreateSampler(&hal.SamplerDescriptor{
		AddressModeU: orAddress(desc.AddressU),
		AddressModeV: orAddress(desc.AddressV),
		AddressModeW: orAddress(desc.AddressW),
		MagFilter:    orFilter(desc.MagFilter),
		MinFilter:    orFilter(desc.MinFilter),
		MipmapFilter: orFilter(desc.MipFilter),
		LodMinClamp:  desc.MinLOD,
		LodMaxClamp:  desc.MaxLOD,
		Compare:      desc.Comparison,
		Anisotropy:   max(desc.MaxAnisotropy, 1),
	})
	if err != nil {
		return nil, backendError("create sampler", err)
	}
	s := &Sampler{desc: desc, raw: raw}
	s.init(f.ctx, "Sampler", "", raw, true)
	return s, nil
}
