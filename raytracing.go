package rhi

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// The HAL core has no ray-tracing entry points. Backends that support
// acceleration structures expose them through the optional interfaces in
// this file, which Context detects once by type assertion on the device
// and on each command encoder.

// AccelerationStructureLevel distinguishes bottom- and top-level structures.
type AccelerationStructureLevel uint8

const (
	// LevelBottom holds triangle geometry.
	LevelBottom AccelerationStructureLevel = iota
	// LevelTop holds instances of bottom-level structures.
	LevelTop
)

// String returns the string representation of AccelerationStructureLevel.
func (l AccelerationStructureLevel) String() string {
	if l == LevelTop {
		return "Top"
	}
	return "Bottom"
}

// NativeAccelerationStructure is a backend acceleration structure.
// NativeHandle returns the backing buffer handle used to bind it.
type NativeAccelerationStructure interface {
	hal.Resource
	hal.NativeHandle

	// DeviceAddress is the GPU address referenced by instance records.
	DeviceAddress() uint64
}

// NativeRayTracingPipeline is a backend ray-tracing pipeline.
type NativeRayTracingPipeline interface {
	hal.Resource
}

// NativeTriangles is one triangle geometry of a bottom-level build.
type NativeTriangles struct {
	VertexBuffer hal.Buffer
	VertexOffset uint64
	VertexStride uint64
	VertexCount  uint32
	VertexFormat gputypes.VertexFormat

	// IndexBuffer is nil for non-indexed geometry.
	IndexBuffer hal.Buffer
	IndexOffset uint64
	IndexCount  uint32
	IndexFormat gputypes.IndexFormat

	// TransformBuffer is nil when the geometry is untransformed. Otherwise it
	// holds a row-major 3x4 float matrix at TransformOffset.
	TransformBuffer hal.Buffer
	TransformOffset uint64

	Flags GeometryFlags
}

// NativeInstances is the instance input of a top-level build.
type NativeInstances struct {
	Buffer hal.Buffer
	Offset uint64
	Count  uint32
}

// NativeBuildEntries is the geometry input of a build.
type NativeBuildEntries struct {
	Level     AccelerationStructureLevel
	Triangles []NativeTriangles
	Instances NativeInstances
}

// AccelerationStructureSizes are the allocation sizes a build needs.
type AccelerationStructureSizes struct {
	StructureSize     uint64
	BuildScratchSize  uint64
	UpdateScratchSize uint64
}

// NativeAccelerationStructureDescriptor describes an acceleration structure
// allocation.
type NativeAccelerationStructureDescriptor struct {
	Label string
	Level AccelerationStructureLevel
	Size  uint64
}

// NativeShaderStage names one shader entry point.
type NativeShaderStage struct {
	Module     hal.ShaderModule
	EntryPoint string
}

// NativeHitGroup is a ray-tracing hit group. Nil stages are absent.
type NativeHitGroup struct {
	ClosestHit   *NativeShaderStage
	AnyHit       *NativeShaderStage
	Intersection *NativeShaderStage
}

// NativeRayTracingPipelineDescriptor describes a ray-tracing pipeline.
type NativeRayTracingPipelineDescriptor struct {
	Label             string
	Layout            hal.PipelineLayout
	RayGeneration     NativeShaderStage
	Miss              []NativeShaderStage
	HitGroups         []NativeHitGroup
	MaxRecursionDepth uint32
	MaxPayloadSize    uint32
	MaxAttributeSize  uint32
}

// RayTracingDevice is implemented by hal.Device values of backends that
// support ray tracing.
type RayTracingDevice interface {
	AccelerationStructureBuildSizes(entries *NativeBuildEntries, flags BuildFlags) AccelerationStructureSizes
	CreateAccelerationStructure(desc *NativeAccelerationStructureDescriptor) (NativeAccelerationStructure, error)
	DestroyAccelerationStructure(as NativeAccelerationStructure)
	CreateRayTracingPipeline(desc *NativeRayTracingPipelineDescriptor) (NativeRayTracingPipeline, error)
	DestroyRayTracingPipeline(p NativeRayTracingPipeline)
}

// NativeBuild is one acceleration structure build command.
type NativeBuild struct {
	Entries *NativeBuildEntries
	Flags   BuildFlags

	// Source is the structure updated in place when Flags has PerformUpdate.
	Source      NativeAccelerationStructure
	Destination NativeAccelerationStructure

	Scratch       hal.Buffer
	ScratchOffset uint64
}

// RayTracingCommandEncoder is implemented by hal.CommandEncoder values of
// backends that support ray tracing.
type RayTracingCommandEncoder interface {
	BuildAccelerationStructures(builds []NativeBuild)
	BeginRayTracingPass(label string) RayTracingPassEncoder
}

// RayTracingPassEncoder records ray dispatches.
type RayTracingPassEncoder interface {
	SetPipeline(p NativeRayTracingPipeline)
	SetBindGroup(index uint32, group hal.BindGroup, offsets []uint32)
	TraceRays(width, height, depth uint32)
	End()
}
