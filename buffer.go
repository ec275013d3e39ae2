package rhi

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// BufferUsage describes how a buffer will be used.
type BufferUsage uint16

const (
	// BufferUsageVertex allows binding as a vertex buffer.
	BufferUsageVertex BufferUsage = 1 << iota
	// BufferUsageIndex allows binding as an index buffer.
	BufferUsageIndex
	// BufferUsageConstant allows binding as a constant (uniform) buffer.
	BufferUsageConstant
	// BufferUsageReadOnlyStorage allows binding as a read-only structured buffer.
	BufferUsageReadOnlyStorage
	// BufferUsageReadWriteStorage allows binding as a read/write structured buffer.
	BufferUsageReadWriteStorage
	// BufferUsageIndirectArgs allows use as an indirect draw/dispatch argument buffer.
	BufferUsageIndirectArgs
	// BufferUsageAccelerationStructureInput allows use as vertex, index,
	// transform or instance input to acceleration structure builds.
	BufferUsageAccelerationStructureInput
	// BufferUsageDynamic marks a buffer updated every frame with UpdateBuffer.
	BufferUsageDynamic
	// BufferUsageStaging is a CPU-writable upload source. It cannot be
	// combined with any other usage.
	BufferUsageStaging
	// BufferUsageReadback is a CPU-readable copy destination. It cannot be
	// combined with any other usage.
	BufferUsageReadback
)

var bufferUsageNames = []string{
	"Vertex", "Index", "Constant", "ReadOnlyStorage", "ReadWriteStorage",
	"IndirectArgs", "AccelerationStructureInput", "Dynamic", "Staging", "Readback",
}

// Contains reports whether all bits of flag are set.
func (u BufferUsage) Contains(flag BufferUsage) bool {
	return u&flag == flag
}

// String returns the flag names joined by '|'.
func (u BufferUsage) String() string {
	if u == 0 {
		return "None"
	}
	var parts []string
	for i, name := range bufferUsageNames {
		if u&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// halUsage maps the usage to gputypes flags. Non-host buffers are always
// copyable in both directions so transfer operations work on them.
func (u BufferUsage) halUsage() gputypes.BufferUsage {
	switch {
	case u.Contains(BufferUsageStaging):
		return gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc
	case u.Contains(BufferUsageReadback):
		return gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	}
	out := gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	if u.Contains(BufferUsageVertex) {
		out |= gputypes.BufferUsageVertex
	}
	if u.Contains(BufferUsageIndex) {
		out |= gputypes.BufferUsageIndex
	}
	if u.Contains(BufferUsageConstant) {
		out |= gputypes.BufferUsageUniform
	}
	if u&(BufferUsageReadOnlyStorage|BufferUsageReadWriteStorage|BufferUsageAccelerationStructureInput) != 0 {
		out |= gputypes.BufferUsageStorage
	}
	if u.Contains(BufferUsageIndirectArgs) {
		out |= gputypes.BufferUsageIndirect
	}
	return out
}

// BufferDescription fully specifies a buffer before creation.
type BufferDescription struct {
	// SizeInBytes is the buffer capacity. Must be non-zero.
	SizeInBytes uint64

	// Usage lists the ways the buffer will be bound or copied.
	Usage BufferUsage

	// StructureStride is the element size of a structured buffer.
	// When non-zero, SizeInBytes must be a multiple of it.
	StructureStride uint32
}

// Validate checks the description invariants.
func (d BufferDescription) Validate() error {
	if d.SizeInBytes == 0 {
		return fmt.Errorf("buffer: %w", ErrZeroSize)
	}
	for _, host := range []BufferUsage{BufferUsageStaging, BufferUsageReadback} {
		if d.Usage.Contains(host) && d.Usage != host {
			return fmt.Errorf("buffer: %w: %s", ErrUsageCombination, d.Usage)
		}
	}
	if d.StructureStride != 0 && d.SizeInBytes%uint64(d.StructureStride) != 0 {
		return fmt.Errorf("%w: buffer: size %d is not a multiple of stride %d",
			ErrValidation, d.SizeInBytes, d.StructureStride)
	}
	return nil
}

// Buffer is a GPU buffer.
type Buffer struct {
	deviceResource
	desc BufferDescription
	raw  hal.Buffer
}

// Description returns the description the buffer was created with.
func (b *Buffer) Description() BufferDescription { return b.desc }

// Size returns the buffer capacity in bytes.
func (b *Buffer) Size() uint64 { return b.desc.SizeInBytes }

// Usage returns the buffer usage flags.
func (b *Buffer) Usage() BufferUsage { return b.desc.Usage }

// Native returns the HAL buffer.
func (b *Buffer) Native() hal.Buffer { return b.raw }

// Destroy releases the GPU buffer.
func (b *Buffer) Destroy() {
	b.markDestroyed()
	b.ctx.device.DestroyBuffer(b.raw)
}

// Read copies buffer contents starting at offset into dst.
// Only readback buffers can be read, and only after the copy that filled
// them has completed (see CommandProcessor.WaitIdle).
func (b *Buffer) Read(offset uint64, dst []byte) error {
	if !b.desc.Usage.Contains(BufferUsageReadback) {
		return fmt.Errorf("read buffer: %w: usage %s", ErrUsageCombination, b.desc.Usage)
	}
	return b.mapped(offset, uint64(len(dst)), func(mem []byte) { copy(dst, mem) })
}

// write copies data into a staging buffer at offset.
func (b *Buffer) write(offset uint64, data []byte) error {
	return b.mapped(offset, uint64(len(data)), func(mem []byte) { copy(mem, data) })
}

func (b *Buffer) mapped(offset, size uint64, fn func(mem []byte)) error {
	if err := b.checkUsable(b.ctx); err != nil {
		return err
	}
	if size == 0 {
		return nil
	}
	if offset > b.desc.SizeInBytes || size > b.desc.SizeInBytes-offset {
		return fmt.Errorf("%w: buffer %q range [%d, %d) size %d",
			ErrOutOfBounds, b.Name(), offset, offset+size, b.desc.SizeInBytes)
	}
	m, err := b.ctx.device.MapBuffer(b.raw, offset, size)
	if err != nil {
		return backendError("map buffer", err)
	}
	fn(unsafe.Slice((*byte)(m.Ptr), size))
	if err := b.ctx.device.UnmapBuffer(b.raw); err != nil {
		return backendError("unmap buffer", err)
	}
	return nil
}

// CreateBuffer creates a buffer.
func (f *ResourceFactory) CreateBuffer(desc BufferDescription) (*Buffer, error) {
	return f.createBuffer(desc, "", true)
}

func (f *ResourceFactory) createBuffer(desc BufferDescription, label string, tracked bool) (*Buffer, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("create buffer: %w", err)
	}
	raw, err := f.ctx.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  desc.SizeInBytes,
		Usage: desc.Usage.halUsage(),
	})
	if err != nil {
		return nil, backendError("create buffer", err)
	}
	b := &Buffer{desc: desc, raw: raw}
	b.init(f.ctx, "Buffer", label, raw, tracked)
	Logger().Debug("rhi: buffer created", "size", desc.SizeInBytes, "usage", desc.Usage.String())
	return b, nil
}
