package rhi

import (
	"errors"
	"sync"
	"testing"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// =============================================================================
// Test backend
// =============================================================================

// testBackend wraps the noop backend. Its encoder executes buffer copies at
// record time so uploads can be read back, its queue can hold submissions
// incomplete, and with rayTracing set its device implements RayTracingDevice.
type testBackend struct {
	noop.API

	rayTracing bool
	hold       bool

	device *testDevice
	queue  *testQueue
}

func (b *testBackend) CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error) {
	inst, err := b.API.CreateInstance(desc)
	if err != nil {
		return nil, err
	}
	return &testInstance{Instance: inst, backend: b}, nil
}

type testInstance struct {
	hal.Instance
	backend *testBackend
}

func (i *testInstance) EnumerateAdapters(s hal.Surface) []hal.ExposedAdapter {
	adapters := i.Instance.EnumerateAdapters(s)
	for k := range adapters {
		adapters[k].Adapter = &testAdapter{Adapter: adapters[k].Adapter, backend: i.backend}
	}
	return adapters
}

type testAdapter struct {
	hal.Adapter
	backend *testBackend
}

func (a *testAdapter) Open(features gputypes.Features, limits gputypes.Limits) (hal.OpenDevice, error) {
	open, err := a.Adapter.Open(features, limits)
	if err != nil {
		return open, err
	}
	b := a.backend
	b.queue = &testQueue{Queue: open.Queue, hold: b.hold}
	b.device = &testDevice{Device: open.Device, queue: b.queue}
	open.Queue = b.queue
	open.Device = b.device
	if b.rayTracing {
		open.Device = &rtDevice{testDevice: b.device}
	}
	return open, nil
}

// testQueue completes every submission immediately unless hold is set.
type testQueue struct {
	hal.Queue

	mu        sync.Mutex
	hold      bool
	fail      error
	submitted uint64
	completed uint64
	batches   []int
}

func (q *testQueue) Submit(buffers []hal.CommandBuffer) (uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail != nil {
		return 0, q.fail
	}
	q.submitted++
	q.batches = append(q.batches, len(buffers))
	if !q.hold {
		q.completed = q.submitted
	}
	return q.submitted, nil
}

func (q *testQueue) PollCompleted() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.completed
}

func (q *testQueue) finish() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = q.submitted
}

func (q *testQueue) setFail(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fail = err
}

func (q *testQueue) submissions() []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]int(nil), q.batches...)
}

// testStats counts the commands the test encoders saw.
type testStats struct {
	encoders   int
	draws      int
	indirect   int
	dispatches int
	traces     int
	viewports  int
	scissors   int
	builds     []NativeBuild
	structures int
	uploads    []textureUpload
}

// textureUpload is one buffer-to-texture copy with the first texel staged.
type textureUpload struct {
	mip         uint32
	size        hal.Extent3D
	bytesPerRow uint32
	texel       [4]byte
}

type testDevice struct {
	hal.Device
	queue *testQueue

	// afterWaitIdle runs once, after the next WaitIdle has drained the queue.
	afterWaitIdle func()

	mu    sync.Mutex
	stats testStats
}

func (d *testDevice) snapshot() testStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.builds = append([]NativeBuild(nil), d.stats.builds...)
	s.uploads = append([]textureUpload(nil), d.stats.uploads...)
	return s
}

func (d *testDevice) count(fn func(s *testStats)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.stats)
}

func (d *testDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	d.count(func(s *testStats) { s.encoders++ })
	return &testEncoder{CommandEncoder: enc, device: d}, nil
}

func (d *testDevice) WaitIdle() error {
	d.queue.finish()
	err := d.Device.WaitIdle()
	if fn := d.afterWaitIdle; fn != nil {
		d.afterWaitIdle = nil
		fn()
	}
	return err
}

// memory returns the noop backing store of b in [offset, offset+size).
func (d *testDevice) memory(b hal.Buffer, offset, size uint64) []byte {
	if size == 0 {
		return nil
	}
	m, err := d.Device.MapBuffer(b, offset, size)
	if err != nil {
		return nil
	}
	return unsafe.Slice((*byte)(m.Ptr), size)
}

type testEncoder struct {
	hal.CommandEncoder
	device *testDevice
}

func (e *testEncoder) CopyBufferToBuffer(src, dst hal.Buffer, regions []hal.BufferCopy) {
	for _, r := range regions {
		copy(e.device.memory(dst, r.DstOffset, r.Size), e.device.memory(src, r.SrcOffset, r.Size))
	}
}

func (e *testEncoder) CopyBufferToTexture(src hal.Buffer, _ hal.Texture, regions []hal.BufferTextureCopy) {
	for _, r := range regions {
		u := textureUpload{mip: r.TextureBase.MipLevel, size: r.Size, bytesPerRow: r.BufferLayout.BytesPerRow}
		copy(u.texel[:], e.device.memory(src, r.BufferLayout.Offset, 4))
		e.device.count(func(s *testStats) { s.uploads = append(s.uploads, u) })
	}
}

func (e *testEncoder) ClearBuffer(b hal.Buffer, offset, size uint64) {
	clear(e.device.memory(b, offset, size))
}

func (e *testEncoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	return &testRenderPass{RenderPassEncoder: e.CommandEncoder.BeginRenderPass(desc), device: e.device}
}

func (e *testEncoder) BeginComputePass(desc *hal.ComputePassDescriptor) hal.ComputePassEncoder {
	return &testComputePass{ComputePassEncoder: e.CommandEncoder.BeginComputePass(desc), device: e.device}
}

type testRenderPass struct {
	hal.RenderPassEncoder
	device *testDevice
}

func (p *testRenderPass) Draw(_, _, _, _ uint32) {
	p.device.count(func(s *testStats) { s.draws++ })
}

func (p *testRenderPass) DrawIndexed(_, _, _ uint32, _ int32, _ uint32) {
	p.device.count(func(s *testStats) { s.draws++ })
}

func (p *testRenderPass) DrawIndirect(_ hal.Buffer, _ uint64) {
	p.device.count(func(s *testStats) { s.indirect++ })
}

func (p *testRenderPass) DrawIndexedIndirect(_ hal.Buffer, _ uint64) {
	p.device.count(func(s *testStats) { s.indirect++ })
}

func (p *testRenderPass) SetViewport(_, _, _, _, _, _ float32) {
	p.device.count(func(s *testStats) { s.viewports++ })
}

func (p *testRenderPass) SetScissorRect(_, _, _, _ uint32) {
	p.device.count(func(s *testStats) { s.scissors++ })
}

type testComputePass struct {
	hal.ComputePassEncoder
	device *testDevice
}

func (p *testComputePass) Dispatch(_, _, _ uint32) {
	p.device.count(func(s *testStats) { s.dispatches++ })
}

func (p *testComputePass) DispatchIndirect(_ hal.Buffer, _ uint64) {
	p.device.count(func(s *testStats) { s.dispatches++ })
}

// =============================================================================
// Ray-tracing double
// =============================================================================

// Fake build sizes per geometry or instance.
const (
	fakeStructureSize = 256
	fakeBuildScratch  = 1024
	fakeUpdateScratch = 512
)

type rtDevice struct {
	*testDevice

	nextAddress uint64
}

func (d *rtDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.testDevice.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &rtEncoder{testEncoder: enc.(*testEncoder)}, nil
}

func (d *rtDevice) AccelerationStructureBuildSizes(entries *NativeBuildEntries, _ BuildFlags) AccelerationStructureSizes {
	n := uint64(len(entries.Triangles)) + uint64(entries.Instances.Count)
	return AccelerationStructureSizes{
		StructureSize:     fakeStructureSize * n,
		BuildScratchSize:  fakeBuildScratch * n,
		UpdateScratchSize: fakeUpdateScratch * n,
	}
}

func (d *rtDevice) CreateAccelerationStructure(desc *NativeAccelerationStructureDescriptor) (NativeAccelerationStructure, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextAddress += 0x10000
	d.stats.structures++
	return &fakeAS{address: d.nextAddress, level: desc.Level}, nil
}

func (d *rtDevice) DestroyAccelerationStructure(as NativeAccelerationStructure) {
	d.count(func(s *testStats) { s.structures-- })
	as.Destroy()
}

func (d *rtDevice) CreateRayTracingPipeline(*NativeRayTracingPipelineDescriptor) (NativeRayTracingPipeline, error) {
	return &noop.Resource{}, nil
}

func (d *rtDevice) DestroyRayTracingPipeline(NativeRayTracingPipeline) {}

type rtEncoder struct {
	*testEncoder
}

func (e *rtEncoder) BuildAccelerationStructures(builds []NativeBuild) {
	e.device.count(func(s *testStats) { s.builds = append(s.builds, builds...) })
}

func (e *rtEncoder) BeginRayTracingPass(string) RayTracingPassEncoder {
	return &rtPass{device: e.device}
}

type rtPass struct {
	device *testDevice
}

func (p *rtPass) SetPipeline(NativeRayTracingPipeline)           {}
func (p *rtPass) SetBindGroup(uint32, hal.BindGroup, []uint32) {}
func (p *rtPass) End()                                         {}

func (p *rtPass) TraceRays(_, _, _ uint32) {
	p.device.count(func(s *testStats) { s.traces++ })
}

type fakeAS struct {
	noop.Resource
	address uint64
	level   AccelerationStructureLevel
}

func (a *fakeAS) DeviceAddress() uint64 { return a.address }

var errSubmitFailed = errors.New("test: submit failed")

// =============================================================================
// Helpers
// =============================================================================

// newTestContext opens a context on the test backend. The context is
// destroyed at cleanup, which fails the test if resources leaked.
func newTestContext(t *testing.T, opts ...ContextOption) *Context {
	t.Helper()
	return newHarness(t, &testBackend{}, opts...)
}

// newRTContext opens a ray-tracing capable test context.
func newRTContext(t *testing.T) (*Context, *testBackend) {
	t.Helper()
	b := &testBackend{rayTracing: true}
	return newHarness(t, b), b
}

func newHarness(t *testing.T, b *testBackend, opts ...ContextOption) *Context {
	t.Helper()
	ctx, err := NewContext(append([]ContextOption{WithHALBackend(b)}, opts...)...)
	if err != nil {
		t.Fatalf("NewContext() error = %v", err)
	}
	t.Cleanup(func() {
		if err := ctx.Destroy(); err != nil {
			t.Errorf("Context.Destroy() error = %v", err)
		}
	})
	return ctx
}

// autoDestroy destroys r at cleanup unless the test already did.
func autoDestroy[R Resource](t *testing.T, r R) R {
	t.Helper()
	t.Cleanup(func() {
		if !r.IsDestroyed() {
			r.Destroy()
		}
	})
	return r
}

func mustBuffer(t *testing.T, ctx *Context, size uint64, usage BufferUsage) *Buffer {
	t.Helper()
	b, err := ctx.Factory().CreateBuffer(BufferDescription{SizeInBytes: size, Usage: usage})
	if err != nil {
		t.Fatalf("CreateBuffer(%d, %s) error = %v", size, usage, err)
	}
	return autoDestroy(t, b)
}

func mustTexture(t *testing.T, ctx *Context, desc TextureDescription) *Texture {
	t.Helper()
	tex, err := ctx.Factory().CreateTexture(desc)
	if err != nil {
		t.Fatalf("CreateTexture(%+v) error = %v", desc, err)
	}
	return autoDestroy(t, tex)
}

func mustShader(t *testing.T, ctx *Context, stage ShaderStage) *Shader {
	t.Helper()
	s, err := ctx.Factory().CreateShader(ShaderDescription{Stage: stage, EntryPoint: "main", WGSL: "// test"})
	if err != nil {
		t.Fatalf("CreateShader(%s) error = %v", stage, err)
	}
	return autoDestroy(t, s)
}

func mustLayout(t *testing.T, ctx *Context, elems ...LayoutElement) *ResourceLayout {
	t.Helper()
	l, err := ctx.Factory().CreateResourceLayout(ResourceLayoutDescription{Elements: elems})
	if err != nil {
		t.Fatalf("CreateResourceLayout() error = %v", err)
	}
	return autoDestroy(t, l)
}

func mustSet(t *testing.T, ctx *Context, layout *ResourceLayout, resources ...Resource) *ResourceSet {
	t.Helper()
	s, err := ctx.Factory().CreateResourceSet(ResourceSetDescription{Layout: layout, Resources: resources})
	if err != nil {
		t.Fatalf("CreateResourceSet() error = %v", err)
	}
	return autoDestroy(t, s)
}

// recording returns a command buffer in the Recording state.
func recording(t *testing.T, ctx *Context) *CommandBuffer {
	t.Helper()
	cb := ctx.CommandProcessor().CommandBuffer()
	if err := cb.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	return cb
}

// renderTarget returns a 64x64 RGBA frame buffer.
func renderTarget(t *testing.T, ctx *Context) *FrameBuffer {
	t.Helper()
	color := mustTexture(t, ctx, Texture2DDescription(64, 64, gputypes.TextureFormatRGBA8Unorm, TextureUsageRenderTarget))
	fb, err := ctx.Factory().CreateFrameBuffer(FrameBufferDescription{
		ColorTargets: []FrameBufferAttachment{{Texture: color}},
	})
	if err != nil {
		t.Fatalf("CreateFrameBuffer() error = %v", err)
	}
	return autoDestroy(t, fb)
}

// graphicsPipeline returns a pipeline matching renderTarget.
func graphicsPipeline(t *testing.T, ctx *Context, layouts ...*ResourceLayout) *GraphicsPipeline {
	t.Helper()
	p, err := ctx.Factory().CreateGraphicsPipeline(GraphicsPipelineDescription{
		VertexShader:      mustShader(t, ctx, ShaderStageVertex),
		PixelShader:       mustShader(t, ctx, ShaderStagePixel),
		ResourceLayouts:   layouts,
		PrimitiveTopology: gputypes.PrimitiveTopologyTriangleList,
		Outputs:           OutputDescription{ColorFormats: []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm}},
	})
	if err != nil {
		t.Fatalf("CreateGraphicsPipeline() error = %v", err)
	}
	return autoDestroy(t, p)
}
