package rhi

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
)

// =============================================================================
// Build flags
// =============================================================================

// GeometryFlags describe how rays interact with a geometry.
type GeometryFlags uint8

const (
	// GeometryOpaque skips any-hit shaders for the geometry.
	GeometryOpaque GeometryFlags = 1 << iota
	// GeometryNoDuplicateAnyHit invokes the any-hit shader at most once per primitive.
	GeometryNoDuplicateAnyHit
)

// BuildFlags control how an acceleration structure is built.
type BuildFlags uint8

const (
	// BuildPreferFastTrace optimizes for trace performance.
	BuildPreferFastTrace BuildFlags = 1 << iota
	// BuildPreferFastBuild optimizes for build time.
	BuildPreferFastBuild
	// BuildAllowUpdate allows later update builds.
	BuildAllowUpdate
	// BuildAllowCompaction allows compacting copies.
	BuildAllowCompaction
	// BuildMinimizeMemory trades speed for a smaller structure.
	BuildMinimizeMemory
	// BuildPerformUpdate updates the structure in place. It implies BuildAllowUpdate.
	BuildPerformUpdate
)

// Normalize returns f with BuildAllowUpdate added when BuildPerformUpdate is set.
func (f BuildFlags) Normalize() BuildFlags {
	if f&BuildPerformUpdate != 0 {
		f |= BuildAllowUpdate
	}
	return f
}

// Validate rejects contradictory flags.
func (f BuildFlags) Validate() error {
	if f&BuildPreferFastTrace != 0 && f&BuildPreferFastBuild != 0 {
		return fmt.Errorf("%w: build flags: fast trace and fast build are exclusive", ErrValidation)
	}
	return nil
}

// =============================================================================
// Bottom level
// =============================================================================

// TransformSize is the size of a packed row-major 3x4 float transform.
const TransformSize = 48

// VertexData locates the vertex positions of a geometry.
type VertexData struct {
	Buffer *Buffer
	Offset uint64
	Stride uint64
	Count  uint32
	// Format defaults to VertexFormatFloat32x3.
	Format gputypes.VertexFormat
}

func (v VertexData) format() gputypes.VertexFormat {
	if v.Format == gputypes.VertexFormatUndefined {
		return gputypes.VertexFormatFloat32x3
	}
	return v.Format
}

// IndexData locates the indices of a geometry.
type IndexData struct {
	Buffer *Buffer
	Offset uint64
	Count  uint32
	Format gputypes.IndexFormat
}

// GeometryDescription is one triangle geometry of a bottom-level structure.
type GeometryDescription struct {
	Vertices VertexData
	// Indices is nil for non-indexed geometry.
	Indices *IndexData
	Flags   GeometryFlags
	// Transform is applied to the vertices at build time when not nil.
	Transform *mgl32.Mat4
}

func checkInput(ctx *Context, what string, b *Buffer, offset, span uint64) error {
	if b == nil {
		return fmt.Errorf("%s: %w", what, ErrNilResource)
	}
	if err := b.checkUsable(ctx); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if !b.desc.Usage.Contains(BufferUsageAccelerationStructureInput) {
		return fmt.Errorf("%w: %s: usage %s lacks AccelerationStructureInput", ErrValidation, what, b.desc.Usage)
	}
	return checkRange(what, b, offset, span)
}

func (g GeometryDescription) validate(ctx *Context, i int) error {
	v := g.Vertices
	size := v.format().Size()
	if size == 0 {
		return fmt.Errorf("%w: geometry %d: vertex format %d", ErrValidation, i, v.Format)
	}
	if v.Count == 0 {
		return fmt.Errorf("geometry %d: vertices: %w", i, ErrZeroSize)
	}
	if v.Stride < size {
		return fmt.Errorf("%w: geometry %d: stride %d below vertex size %d", ErrValidation, i, v.Stride, size)
	}
	span := uint64(v.Count-1)*v.Stride + size
	if err := checkInput(ctx, fmt.Sprintf("geometry %d vertices", i), v.Buffer, v.Offset, span); err != nil {
		return err
	}
	if g.Indices == nil {
		if v.Count%3 != 0 {
			return fmt.Errorf("%w: geometry %d: %d vertices is not a triangle list", ErrValidation, i, v.Count)
		}
		return nil
	}
	ix := g.Indices
	if ix.Format != gputypes.IndexFormatUint16 && ix.Format != gputypes.IndexFormatUint32 {
		return fmt.Errorf("%w: geometry %d: index format %s", ErrValidation, i, ix.Format)
	}
	if ix.Count == 0 || ix.Count%3 != 0 {
		return fmt.Errorf("%w: geometry %d: %d indices is not a triangle list", ErrValidation, i, ix.Count)
	}
	span = uint64(ix.Count) * uint64(ix.Format.Size())
	return checkInput(ctx, fmt.Sprintf("geometry %d indices", i), ix.Buffer, ix.Offset, span)
}

// BottomLevelASDescription describes a bottom-level acceleration structure.
type BottomLevelASDescription struct {
	Geometries []GeometryDescription
	Flags      BuildFlags
}

// Validate checks the invariants that do not depend on a device.
func (d BottomLevelASDescription) Validate() error {
	if len(d.Geometries) == 0 {
		return fmt.Errorf("%w: bottom-level structure has no geometry", ErrValidation)
	}
	if d.Flags&BuildPerformUpdate != 0 {
		return fmt.Errorf("%w: bottom-level structure: PerformUpdate is only valid for Update", ErrValidation)
	}
	return d.Flags.Validate()
}

// packTransforms packs the geometry transforms as row-major 3x4 matrices
// and returns the offset of each geometry's transform. Geometries without a
// transform get offset -1.
func packTransforms(geometries []GeometryDescription) ([]byte, []int) {
	offsets := make([]int, len(geometries))
	var out []byte
	for i, g := range geometries {
		offsets[i] = -1
		if g.Transform == nil {
			continue
		}
		offsets[i] = len(out)
		out = appendTransform(out, *g.Transform)
	}
	return out, offsets
}

// appendTransform appends the top three rows of m, row-major.
func appendTransform(out []byte, m mgl32.Mat4) []byte {
	for r := range 3 {
		for c := range 4 {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(m.At(r, c)))
		}
	}
	return out
}

// BottomLevelAS is a built bottom-level acceleration structure.
//
// Top-level structures share ownership of the bottom-level structures they
// instance. Destroying a referenced BottomLevelAS marks it destroyed; its
// native structure is released when the last referencing TopLevelAS is
// destroyed.
type BottomLevelAS struct {
	deviceResource
	desc       BottomLevelASDescription
	geometries []GeometryDescription
	native     NativeAccelerationStructure
	sizes      AccelerationStructureSizes
	transforms *Buffer

	refMu    sync.Mutex
	refs     int
	released bool
}

// Description returns the description the structure was created with.
func (b *BottomLevelAS) Description() BottomLevelASDescription { return b.desc }

// Geometries returns the inputs of the last successful build or update.
func (b *BottomLevelAS) Geometries() []GeometryDescription {
	return append([]GeometryDescription(nil), b.geometries...)
}

// Sizes returns the sizes reported for the build.
func (b *BottomLevelAS) Sizes() AccelerationStructureSizes { return b.sizes }

// DeviceAddress returns the GPU address instance records reference.
func (b *BottomLevelAS) DeviceAddress() uint64 { return b.native.DeviceAddress() }

// References returns the number of live top-level structures instancing b.
func (b *BottomLevelAS) References() int {
	b.refMu.Lock()
	defer b.refMu.Unlock()
	return b.refs
}

// Destroy marks the structure destroyed and releases it once no top-level
// structure references it.
func (b *BottomLevelAS) Destroy() {
	b.markDestroyed()
	b.refMu.Lock()
	release := b.refs == 0
	b.refMu.Unlock()
	if release {
		b.release()
	}
}

func (b *BottomLevelAS) retain() {
	b.refMu.Lock()
	b.refs++
	b.refMu.Unlock()
}

func (b *BottomLevelAS) unref() {
	b.refMu.Lock()
	b.refs--
	last := b.refs == 0
	b.refMu.Unlock()
	if last && b.IsDestroyed() {
		b.release()
	}
}

func (b *BottomLevelAS) release() {
	b.refMu.Lock()
	if b.released {
		b.refMu.Unlock()
		return
	}
	b.released = true
	b.refMu.Unlock()

	b.ctx.rt.DestroyAccelerationStructure(b.native)
	if b.transforms != nil {
		b.transforms.Destroy()
	}
	Logger().Debug("rhi: bottom-level structure released", "name", b.Name())
}

func (b *BottomLevelAS) entries(geometries []GeometryDescription) *NativeBuildEntries {
	_, offsets := packTransforms(geometries)
	tris := make([]NativeTriangles, len(geometries))
	for i, g := range geometries {
		t := NativeTriangles{
			VertexBuffer: g.Vertices.Buffer.raw,
			VertexOffset: g.Vertices.Offset,
			VertexStride: g.Vertices.Stride,
			VertexCount:  g.Vertices.Count,
			VertexFormat: g.Vertices.format(),
			Flags:        g.Flags,
		}
		if ix := g.Indices; ix != nil {
			t.IndexBuffer = ix.Buffer.raw
			t.IndexOffset = ix.Offset
			t.IndexCount = ix.Count
			t.IndexFormat = ix.Format
		}
		if offsets[i] >= 0 {
			t.TransformBuffer = b.transforms.raw
			t.TransformOffset = uint64(offsets[i])
		}
		tris[i] = t
	}
	return &NativeBuildEntries{Level: LevelBottom, Triangles: tris}
}

// uploadTransforms returns an upload step writing the packed transforms.
func (b *BottomLevelAS) uploadTransforms(geometries []GeometryDescription) func(cb *CommandBuffer) error {
	packed, _ := packTransforms(geometries)
	if len(packed) == 0 {
		return nil
	}
	return func(cb *CommandBuffer) error {
		return cb.UpdateBuffer(b.transforms, 0, packed)
	}
}

// Update rebuilds the structure in place from geometries with the same
// shape as the original. The structure must have been created with
// BuildAllowUpdate. Description keeps the creation inputs; Geometries
// reports the new ones once the update has succeeded.
func (b *BottomLevelAS) Update(geometries []GeometryDescription) error {
	const op = "update bottom-level structure"
	if err := b.checkUsable(b.ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if b.desc.Flags&BuildAllowUpdate == 0 {
		return fmt.Errorf("%w: %s: created without AllowUpdate", ErrValidation, op)
	}
	if len(geometries) != len(b.geometries) {
		return fmt.Errorf("%w: %s: %d geometries, built with %d", ErrValidation, op, len(geometries), len(b.geometries))
	}
	for i, g := range geometries {
		old := b.geometries[i]
		if err := g.validate(b.ctx, i); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if g.Vertices.Count != old.Vertices.Count || (g.Indices == nil) != (old.Indices == nil) ||
			(g.Transform == nil) != (old.Transform == nil) {
			return fmt.Errorf("%w: %s: geometry %d changed shape", ErrValidation, op, i)
		}
		if g.Indices != nil && g.Indices.Count != old.Indices.Count {
			return fmt.Errorf("%w: %s: geometry %d changed index count", ErrValidation, op, i)
		}
	}
	geometries = append([]GeometryDescription(nil), geometries...)
	flags := (b.desc.Flags | BuildPerformUpdate).Normalize()
	if err := b.ctx.build(op, b.entries(geometries), flags, b.native, b.native,
		b.sizes.UpdateScratchSize, b.uploadTransforms(geometries)); err != nil {
		return err
	}
	b.geometries = geometries
	return nil
}

// CreateBottomLevelAS builds a bottom-level acceleration structure and
// waits for the build to finish. A description without geometry is rejected.
func (f *ResourceFactory) CreateBottomLevelAS(desc BottomLevelASDescription) (*BottomLevelAS, error) {
	const op = "create bottom-level structure"
	ctx := f.ctx
	if !ctx.caps.RayTracing {
		return nil, fmt.Errorf("%s: %w", op, ErrRayTracingUnsupported)
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for i, g := range desc.Geometries {
		if err := g.validate(ctx, i); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	b := &BottomLevelAS{
		desc: BottomLevelASDescription{
			Geometries: append([]GeometryDescription(nil), desc.Geometries...),
			Flags:      desc.Flags,
		},
		geometries: append([]GeometryDescription(nil), desc.Geometries...),
	}
	b.ctx = ctx
	if packed, _ := packTransforms(desc.Geometries); len(packed) > 0 {
		buf, err := f.createBuffer(BufferDescription{
			SizeInBytes: uint64(len(packed)),
			Usage:       BufferUsageAccelerationStructureInput,
		}, "blas-transforms", false)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		b.transforms = buf
	}
	entries := b.entries(b.geometries)
	b.sizes = ctx.rt.AccelerationStructureBuildSizes(entries, desc.Flags)
	native, err := ctx.rt.CreateAccelerationStructure(&NativeAccelerationStructureDescriptor{
		Level: LevelBottom,
		Size:  b.sizes.StructureSize,
	})
	if err != nil {
		if b.transforms != nil {
			b.transforms.Destroy()
		}
		return nil, backendError(op, err)
	}
	b.native = native
	if err := ctx.build(op, entries, desc.Flags, nil, native, b.sizes.BuildScratchSize, b.uploadTransforms(b.geometries)); err != nil {
		ctx.rt.DestroyAccelerationStructure(native)
		if b.transforms != nil {
			b.transforms.Destroy()
		}
		return nil, err
	}
	b.init(ctx, "BottomLevelAS", "", native, true)
	Logger().Debug("rhi: bottom-level structure built",
		"geometries", len(desc.Geometries), "size", b.sizes.StructureSize)
	return b, nil
}

// =============================================================================
// Top level
// =============================================================================

// InstanceFlags control per-instance ray behavior.
type InstanceFlags uint8

const (
	// InstanceCullDisable disables face culling.
	InstanceCullDisable InstanceFlags = 1 << iota
	// InstanceFrontCounterClockwise treats counter-clockwise triangles as front facing.
	InstanceFrontCounterClockwise
	// InstanceForceOpaque treats every geometry as opaque.
	InstanceForceOpaque
	// InstanceForceNonOpaque treats every geometry as non-opaque.
	InstanceForceNonOpaque
)

// Instance record limits.
const (
	// InstanceRecordSize is the size of one packed instance record.
	InstanceRecordSize = 64

	// MaxInstanceID is the largest custom instance index.
	MaxInstanceID = 1<<24 - 1

	// MaxHitGroupOffset is the largest hit group offset.
	MaxHitGroupOffset = 1<<24 - 1
)

// InstanceDescription places a bottom-level structure in a top-level one.
type InstanceDescription struct {
	Transform      mgl32.Mat4
	InstanceID     uint32
	Mask           uint8
	HitGroupOffset uint32
	Flags          InstanceFlags
	Bottom         *BottomLevelAS
}

func (in InstanceDescription) validate(ctx *Context, i int) error {
	if in.Bottom == nil {
		return fmt.Errorf("instance %d: bottom-level structure: %w", i, ErrNilResource)
	}
	if err := in.Bottom.checkUsable(ctx); err != nil {
		return fmt.Errorf("instance %d: %w", i, err)
	}
	if in.InstanceID > MaxInstanceID || in.HitGroupOffset > MaxHitGroupOffset {
		return fmt.Errorf("%w: instance %d: id %d hit group offset %d exceed 24 bits",
			ErrValidation, i, in.InstanceID, in.HitGroupOffset)
	}
	if in.Flags&InstanceForceOpaque != 0 && in.Flags&InstanceForceNonOpaque != 0 {
		return fmt.Errorf("%w: instance %d: ForceOpaque and ForceNonOpaque are exclusive", ErrValidation, i)
	}
	return nil
}

// packInstances packs instances into InstanceRecordSize-byte records:
// a row-major 3x4 transform, the 24-bit id with the 8-bit mask, the 24-bit
// hit group offset with the 8-bit flags, and the bottom-level address.
func packInstances(instances []InstanceDescription) []byte {
	out := make([]byte, 0, len(instances)*InstanceRecordSize)
	for _, in := range instances {
		out = appendTransform(out, in.Transform)
		out = binary.LittleEndian.AppendUint32(out, in.InstanceID&MaxInstanceID|uint32(in.Mask)<<24)
		out = binary.LittleEndian.AppendUint32(out, in.HitGroupOffset&MaxHitGroupOffset|uint32(in.Flags)<<24)
		out = binary.LittleEndian.AppendUint64(out, in.Bottom.native.DeviceAddress())
	}
	return out
}

// TopLevelASDescription describes a top-level acceleration structure.
type TopLevelASDescription struct {
	Instances []InstanceDescription
	Flags     BuildFlags
}

// Validate checks the invariants that do not depend on a device.
func (d TopLevelASDescription) Validate() error {
	if len(d.Instances) == 0 {
		return fmt.Errorf("%w: top-level structure has no instances", ErrValidation)
	}
	if d.Flags&BuildPerformUpdate != 0 {
		return fmt.Errorf("%w: top-level structure: PerformUpdate is only valid for Update", ErrValidation)
	}
	return d.Flags.Validate()
}

// TopLevelAS is a built top-level acceleration structure. It holds a
// reference on every bottom-level structure it instances.
type TopLevelAS struct {
	deviceResource
	desc      TopLevelASDescription
	current   []InstanceDescription
	native    NativeAccelerationStructure
	sizes     AccelerationStructureSizes
	instances *Buffer
	bottoms   []*BottomLevelAS
}

// Description returns the description the structure was created with.
func (t *TopLevelAS) Description() TopLevelASDescription { return t.desc }

// Instances returns the instances of the last successful build or update.
func (t *TopLevelAS) Instances() []InstanceDescription {
	return append([]InstanceDescription(nil), t.current...)
}

// Sizes returns the sizes reported for the build.
func (t *TopLevelAS) Sizes() AccelerationStructureSizes { return t.sizes }

// Destroy releases the structure and drops its bottom-level references.
func (t *TopLevelAS) Destroy() {
	t.markDestroyed()
	t.ctx.rt.DestroyAccelerationStructure(t.native)
	t.instances.Destroy()
	for _, b := range t.bottoms {
		b.unref()
	}
	t.bottoms = nil
}

func (t *TopLevelAS) entries() *NativeBuildEntries {
	return &NativeBuildEntries{
		Level: LevelTop,
		Instances: NativeInstances{
			Buffer: t.instances.raw,
			//nolint:gosec // G115: instance count is bounded by the buffer size
			Count: uint32(len(t.current)),
		},
	}
}

func (t *TopLevelAS) upload(instances []InstanceDescription) func(cb *CommandBuffer) error {
	packed := packInstances(instances)
	return func(cb *CommandBuffer) error {
		return cb.UpdateBuffer(t.instances, 0, packed)
	}
}

// uniqueBottoms returns each referenced bottom-level structure once.
func uniqueBottoms(instances []InstanceDescription) []*BottomLevelAS {
	var out []*BottomLevelAS
	seen := make(map[*BottomLevelAS]bool, len(instances))
	for _, in := range instances {
		if !seen[in.Bottom] {
			seen[in.Bottom] = true
			out = append(out, in.Bottom)
		}
	}
	return out
}

// Update rebuilds the structure in place from the same number of instances.
// The structure must have been created with BuildAllowUpdate. Description
// keeps the creation inputs; Instances reports the new ones once the
// update has succeeded.
func (t *TopLevelAS) Update(instances []InstanceDescription) error {
	const op = "update top-level structure"
	if err := t.checkUsable(t.ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if t.desc.Flags&BuildAllowUpdate == 0 {
		return fmt.Errorf("%w: %s: created without AllowUpdate", ErrValidation, op)
	}
	if len(instances) != len(t.current) {
		return fmt.Errorf("%w: %s: %d instances, built with %d", ErrValidation, op, len(instances), len(t.current))
	}
	for i, in := range instances {
		if err := in.validate(t.ctx, i); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	flags := (t.desc.Flags | BuildPerformUpdate).Normalize()
	if err := t.ctx.build(op, t.entries(), flags, t.native, t.native, t.sizes.UpdateScratchSize, t.upload(instances)); err != nil {
		return err
	}
	bottoms := uniqueBottoms(instances)
	for _, b := range bottoms {
		b.retain()
	}
	for _, b := range t.bottoms {
		b.unref()
	}
	t.bottoms = bottoms
	t.current = append([]InstanceDescription(nil), instances...)
	return nil
}

// CreateTopLevelAS builds a top-level acceleration structure and waits for
// the build to finish. Every instanced bottom-level structure must be live.
func (f *ResourceFactory) CreateTopLevelAS(desc TopLevelASDescription) (*TopLevelAS, error) {
	const op = "create top-level structure"
	ctx := f.ctx
	if !ctx.caps.RayTracing {
		return nil, fmt.Errorf("%s: %w", op, ErrRayTracingUnsupported)
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for i, in := range desc.Instances {
		if err := in.validate(ctx, i); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	buf, err := f.createBuffer(BufferDescription{
		SizeInBytes: uint64(len(desc.Instances)) * InstanceRecordSize,
		Usage:       BufferUsageAccelerationStructureInput,
	}, "tlas-instances", false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	t := &TopLevelAS{
		desc: TopLevelASDescription{
			Instances: append([]InstanceDescription(nil), desc.Instances...),
			Flags:     desc.Flags,
		},
		current:   append([]InstanceDescription(nil), desc.Instances...),
		instances: buf,
	}
	entries := t.entries()
	t.sizes = ctx.rt.AccelerationStructureBuildSizes(entries, desc.Flags)
	native, err := ctx.rt.CreateAccelerationStructure(&NativeAccelerationStructureDescriptor{
		Level: LevelTop,
		Size:  t.sizes.StructureSize,
	})
	if err != nil {
		buf.Destroy()
		return nil, backendError(op, err)
	}
	if err := ctx.build(op, entries, desc.Flags, nil, native, t.sizes.BuildScratchSize, t.upload(desc.Instances)); err != nil {
		ctx.rt.DestroyAccelerationStructure(native)
		buf.Destroy()
		return nil, err
	}
	t.native = native
	t.bottoms = uniqueBottoms(desc.Instances)
	for _, b := range t.bottoms {
		b.retain()
	}
	t.init(ctx, "TopLevelAS", "", native, true)
	Logger().Debug("rhi: top-level structure built",
		"instances", len(desc.Instances), "size", t.sizes.StructureSize)
	return t, nil
}

// =============================================================================
// Build submission
// =============================================================================

// build records one acceleration structure build in a dedicated command
// buffer, submits it and waits for it. upload, when not nil, records the
// input uploads first.
func (c *Context) build(op string, entries *NativeBuildEntries, flags BuildFlags,
	src, dst NativeAccelerationStructure, scratchSize uint64, upload func(cb *CommandBuffer) error) error {
	c.buildMu.Lock()
	defer c.buildMu.Unlock()

	pool := c.scratchPool()
	defer pool.Release()
	scratch, err := pool.Acquire(max(scratchSize, 1))
	if err != nil {
		return fmt.Errorf("%s: scratch: %w", op, err)
	}

	proc := c.CommandProcessor()
	cb := proc.CommandBuffer()
	if err := cb.Begin(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	record := func() error {
		if upload != nil {
			if err := upload(cb); err != nil {
				return err
			}
		}
		return cb.buildAccelerationStructures([]NativeBuild{{
			Entries:     entries,
			Flags:       flags,
			Source:      src,
			Destination: dst,
			Scratch:     scratch.raw,
		}})
	}
	if err := record(); err != nil {
		_ = cb.Reset()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := proc.execute(cb); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
