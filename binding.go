package rhi

import "fmt"

// ResourceKind is the kind of resource a layout element binds.
type ResourceKind uint8

const (
	// ResourceKindConstantBuffer is a uniform buffer.
	ResourceKindConstantBuffer ResourceKind = iota
	// ResourceKindStructuredBuffer is a read-only storage buffer.
	ResourceKindStructuredBuffer
	// ResourceKindStructuredBufferReadWrite is a read/write storage buffer.
	ResourceKindStructuredBufferReadWrite
	// ResourceKindTexture is a sampled (read-only) texture.
	ResourceKindTexture
	// ResourceKindTextureReadWrite is a read/write storage texture.
	ResourceKindTextureReadWrite
	// ResourceKindSampler is a sampler.
	ResourceKindSampler
	// ResourceKindAccelerationStructure is a top-level acceleration structure.
	ResourceKindAccelerationStructure
)

// String returns the string representation of ResourceKind.
func (k ResourceKind) String() string {
	switch k {
	case ResourceKindConstantBuffer:
		return "ConstantBuffer"
	case ResourceKindStructuredBuffer:
		return "StructuredBuffer"
	case ResourceKindStructuredBufferReadWrite:
		return "StructuredBufferReadWrite"
	case ResourceKindTexture:
		return "Texture"
	case ResourceKindTextureReadWrite:
		return "TextureReadWrite"
	case ResourceKindSampler:
		return "Sampler"
	case ResourceKindAccelerationStructure:
		return "AccelerationStructure"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// BindingClass groups resource kinds that share one declared-slot namespace.
type BindingClass uint8

const (
	// BindingClassConstantBuffer holds constant buffers.
	BindingClassConstantBuffer BindingClass = iota
	// BindingClassReadWriteStorage holds read/write buffers and storage textures.
	BindingClassReadWriteStorage
	// BindingClassSampler holds samplers.
	BindingClassSampler
	// BindingClassReadOnlyStorage holds read-only buffers, sampled textures
	// and acceleration structures.
	BindingClassReadOnlyStorage
)

// String returns the string representation of BindingClass.
func (c BindingClass) String() string {
	switch c {
	case BindingClassConstantBuffer:
		return "ConstantBuffer"
	case BindingClassReadWriteStorage:
		return "ReadWriteStorage"
	case BindingClassSampler:
		return "Sampler"
	case BindingClassReadOnlyStorage:
		return "ReadOnlyStorage"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// SlotsPerClass is the number of declared slots available to each binding
// class. Declared slots must stay in [0, SlotsPerClass).
const SlotsPerClass = 20

// Band returns the offset added to a declared slot of this class.
func (c BindingClass) Band() uint32 {
	return uint32(c) * SlotsPerClass
}

// Class returns the binding class of the kind.
func (k ResourceKind) Class() BindingClass {
	switch k {
	case ResourceKindConstantBuffer:
		return BindingClassConstantBuffer
	case ResourceKindStructuredBufferReadWrite, ResourceKindTextureReadWrite:
		return BindingClassReadWriteStorage
	case ResourceKindSampler:
		return BindingClassSampler
	default:
		return BindingClassReadOnlyStorage
	}
}

// TranslateBinding maps a declared slot of the given kind into the flat
// per-set binding namespace of the native API.
//
// The result is slot plus the band of the kind's class:
//
//	ConstantBuffer   +0
//	ReadWriteStorage +20
//	Sampler          +40
//	ReadOnlyStorage  +60
//
// count is the number of consecutive bindings the element occupies (0 is
// treated as 1). Every occupied slot must stay below SlotsPerClass,
// otherwise ErrSlotOutOfRange is returned: an unchecked slot of 20 would
// silently alias slot 0 of the next band.
func TranslateBinding(kind ResourceKind, slot, count uint32) (uint32, error) {
	if kind > ResourceKindAccelerationStructure {
		return 0, fmt.Errorf("%w: unknown resource kind %d", ErrValidation, kind)
	}
	if count == 0 {
		count = 1
	}
	if slot >= SlotsPerClass || count > SlotsPerClass-slot {
		return 0, fmt.Errorf("%w: %s slot %d count %d (limit %d)",
			ErrSlotOutOfRange, kind, slot, count, SlotsPerClass)
	}
	return slot + kind.Class().Band(), nil
}
