package rhi

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi/internal/convert"
	"github.com/gogpu/wgpu/hal"
)

// CommandBufferState is the recording state of a CommandBuffer.
type CommandBufferState uint8

const (
	// CommandBufferInitial is the state of a new or reset buffer.
	CommandBufferInitial CommandBufferState = iota
	// CommandBufferRecording accepts commands.
	CommandBufferRecording
	// CommandBufferEnded holds finalized commands ready to commit.
	CommandBufferEnded
	// CommandBufferSubmitted has been handed to the queue.
	CommandBufferSubmitted
)

// String returns the string representation of CommandBufferState.
func (s CommandBufferState) String() string {
	switch s {
	case CommandBufferInitial:
		return "Initial"
	case CommandBufferRecording:
		return "Recording"
	case CommandBufferEnded:
		return "Ended"
	case CommandBufferSubmitted:
		return "Submitted"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Sizes of the argument records read by indirect commands.
const (
	// DrawIndirectSize is {vertexCount, instanceCount, firstVertex, firstInstance}.
	DrawIndirectSize = 16
	// DrawIndexedIndirectSize is {indexCount, instanceCount, firstIndex,
	// baseVertex, firstInstance}.
	DrawIndexedIndirectSize = 20
	// DispatchIndirectSize is {x, y, z}.
	DispatchIndirectSize = 12
)

// Viewport maps normalized device coordinates to the render target.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// VertexBufferBinding is one vertex buffer bound by SetVertexBuffers.
type VertexBufferBinding struct {
	Buffer *Buffer
	Offset uint64
}

// TextureRegion selects a box within one mip level and array slice.
// A zero Width, Height or Depth extends to the edge of the mip level.
type TextureRegion struct {
	MipLevel   uint32
	ArraySlice uint32

	X, Y, Z              uint32
	Width, Height, Depth uint32
}

// resolve fills zero extents and checks the region against desc.
func (r TextureRegion) resolve(desc TextureDescription) (TextureRegion, error) {
	if r.MipLevel >= desc.MipLevels || r.ArraySlice >= desc.nativeLayers() {
		return r, fmt.Errorf("%w: texture region mip %d slice %d", ErrOutOfBounds, r.MipLevel, r.ArraySlice)
	}
	w, h, d := desc.MipExtent(r.MipLevel)
	if desc.Type != TextureType3D {
		d = 1
	}
	if r.X >= w || r.Y >= h || r.Z >= d {
		return r, fmt.Errorf("%w: texture region origin (%d,%d,%d) in %dx%dx%d",
			ErrOutOfBounds, r.X, r.Y, r.Z, w, h, d)
	}
	if r.Width == 0 {
		r.Width = w - r.X
	}
	if r.Height == 0 {
		r.Height = h - r.Y
	}
	if r.Depth == 0 {
		r.Depth = d - r.Z
	}
	if r.Width > w-r.X || r.Height > h-r.Y || r.Depth > d-r.Z {
		return r, fmt.Errorf("%w: texture region %dx%dx%d at (%d,%d,%d) in %dx%dx%d",
			ErrOutOfBounds, r.Width, r.Height, r.Depth, r.X, r.Y, r.Z, w, h, d)
	}
	return r, nil
}

func (r TextureRegion) copyTexture(t *Texture) hal.ImageCopyTexture {
	origin := hal.Origin3D{X: r.X, Y: r.Y, Z: r.ArraySlice}
	if t.desc.Type == TextureType3D {
		origin.Z = r.Z
	}
	return hal.ImageCopyTexture{
		Texture:  t.raw,
		MipLevel: r.MipLevel,
		Origin:   origin,
		Aspect:   gputypes.TextureAspectAll,
	}
}

func (r TextureRegion) extent() hal.Extent3D {
	return hal.Extent3D{Width: r.Width, Height: r.Height, DepthOrArrayLayers: r.Depth}
}

type boundSet struct {
	set     *ResourceSet
	offsets []uint32
}

// CommandBuffer records commands for submission through its CommandProcessor.
//
// State machine:
//
//	Initial    -> Begin()  -> Recording
//	Recording  -> End()    -> Ended
//	Ended      -> Commit() -> Ended (committed)
//	committed  -> Submit() -> Submitted
//	any state  -> Reset()  -> Initial   (not inside a render scope)
//	Ended, Submitted -> Begin() -> Recording
//
// Transfer commands and dispatches are recorded outside a render scope.
// Draw state and draws are recorded between BeginRendering and EndRendering.
//
// CommandBuffer is NOT safe for concurrent use. Distinct buffers may record
// on different goroutines.
type CommandBuffer struct {
	processor *CommandProcessor
	ctx       *Context
	label     string

	state      CommandBufferState
	committed  bool
	submission uint64

	encoder hal.CommandEncoder
	raw     hal.CommandBuffer

	// render is non-nil inside a render scope.
	render      hal.RenderPassEncoder
	frameBuffer *FrameBuffer

	// compute is opened lazily by dispatches and closed by any other command.
	compute hal.ComputePassEncoder

	graphicsPipeline   *GraphicsPipeline
	computePipeline    *ComputePipeline
	rayTracingPipeline *RayTracingPipeline
	indexBuffer        *Buffer
	sets               map[uint32]boundSet

	staging *TransientBufferPool
}

// State returns the current state.
func (cb *CommandBuffer) State() CommandBufferState { return cb.state }

// Label returns the debug label.
func (cb *CommandBuffer) Label() string { return cb.label }

// Committed reports whether the buffer is waiting for the next Submit.
func (cb *CommandBuffer) Committed() bool { return cb.committed }

// InRenderScope reports whether BeginRendering is active.
func (cb *CommandBuffer) InRenderScope() bool { return cb.render != nil }

// =============================================================================
// Lifecycle
// =============================================================================

// Begin starts recording, discarding any ended but unsubmitted work.
// Beginning a Submitted buffer waits for its submission to complete so the
// staging memory of its uploads can be reused.
func (cb *CommandBuffer) Begin() error {
	if cb.state == CommandBufferRecording {
		return fmt.Errorf("begin: %w: already recording", ErrInvalidState)
	}
	if err := cb.recycle(); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if cb.encoder == nil {
		enc, err := cb.ctx.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: cb.label})
		if err != nil {
			return backendError("begin", err)
		}
		cb.encoder = enc
	}
	if err := cb.encoder.BeginEncoding(cb.label); err != nil {
		return backendError("begin", err)
	}
	cb.clearBindings()
	cb.state = CommandBufferRecording
	return nil
}

// End finalizes recording.
func (cb *CommandBuffer) End() error {
	if err := cb.require("end", false); err != nil {
		return err
	}
	cb.endCompute()
	raw, err := cb.encoder.EndEncoding()
	cb.clearBindings()
	if err != nil {
		cb.state = CommandBufferInitial
		return backendError("end", err)
	}
	cb.raw = raw
	cb.state = CommandBufferEnded
	return nil
}

// Commit marks an ended buffer ready for the next CommandProcessor.Submit.
// It does not enqueue anything by itself.
func (cb *CommandBuffer) Commit() error {
	if cb.state != CommandBufferEnded {
		return fmt.Errorf("commit: %w: state %s", ErrInvalidState, cb.state)
	}
	if cb.committed {
		return fmt.Errorf("commit: %w: already committed", ErrInvalidState)
	}
	cb.committed = true
	cb.processor.commit(cb)
	return nil
}

// Reset discards recorded work and returns the buffer to Initial. Staging
// memory used by earlier uploads is recycled; resetting a Submitted buffer
// first waits for its submission to complete.
func (cb *CommandBuffer) Reset() error {
	if cb.render != nil {
		return fmt.Errorf("reset: %w", ErrInsideRenderScope)
	}
	if err := cb.recycle(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// recycle returns the buffer to Initial with its staging pool released.
func (cb *CommandBuffer) recycle() error {
	if cb.state == CommandBufferSubmitted {
		if err := cb.processor.reclaim(cb); err != nil {
			return err
		}
	}
	cb.discard()
	cb.reset()
	return nil
}

// discard drops work that has not reached the queue.
func (cb *CommandBuffer) discard() {
	switch cb.state {
	case CommandBufferRecording:
		cb.endCompute()
		cb.encoder.DiscardEncoding()
	case CommandBufferEnded:
		if cb.committed {
			cb.processor.withdraw(cb)
			cb.committed = false
		}
		cb.ctx.device.FreeCommandBuffer(cb.raw)
	}
	cb.raw = nil
}

// reset returns a buffer whose work is complete or discarded to Initial.
func (cb *CommandBuffer) reset() {
	cb.clearBindings()
	if cb.staging != nil {
		cb.staging.Release()
	}
	cb.state = CommandBufferInitial
}

func (cb *CommandBuffer) destroy() {
	if cb.state == CommandBufferRecording {
		cb.endCompute()
		if cb.render != nil {
			cb.render.End()
			cb.render = nil
		}
		cb.encoder.DiscardEncoding()
	}
	if cb.encoder != nil {
		cb.encoder.Destroy()
		cb.encoder = nil
	}
	if cb.staging != nil {
		cb.staging.Destroy()
		cb.staging = nil
	}
}

func (cb *CommandBuffer) clearBindings() {
	cb.frameBuffer = nil
	cb.graphicsPipeline = nil
	cb.computePipeline = nil
	cb.rayTracingPipeline = nil
	cb.indexBuffer = nil
	clear(cb.sets)
}

// require checks that the buffer is recording and that the render scope
// is active exactly when inRender is set.
func (cb *CommandBuffer) require(op string, inRender bool) error {
	if cb.state != CommandBufferRecording {
		return fmt.Errorf("%s: %w: state %s", op, ErrNotRecording, cb.state)
	}
	if inRender && cb.render == nil {
		return fmt.Errorf("%s: %w", op, ErrOutsideRenderScope)
	}
	if !inRender && cb.render != nil {
		return fmt.Errorf("%s: %w", op, ErrInsideRenderScope)
	}
	return nil
}

func (cb *CommandBuffer) endCompute() {
	if cb.compute != nil {
		cb.compute.End()
		cb.compute = nil
	}
}

func (cb *CommandBuffer) stagingPool() *TransientBufferPool {
	if cb.staging == nil {
		cb.staging = newTransientBufferPool(cb.ctx.factory, BufferUsageStaging, cb.ctx.cfg.Pool, false)
	}
	return cb.staging
}

func (cb *CommandBuffer) checkBuffer(op string, b *Buffer) error {
	if b == nil {
		return fmt.Errorf("%s: %w", op, ErrNilResource)
	}
	if err := b.checkUsable(cb.ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (cb *CommandBuffer) checkTexture(op string, t *Texture) error {
	if t == nil {
		return fmt.Errorf("%s: %w", op, ErrNilResource)
	}
	if err := t.checkUsable(cb.ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func checkRange(op string, b *Buffer, offset, size uint64) error {
	if offset > b.desc.SizeInBytes || size > b.desc.SizeInBytes-offset {
		return fmt.Errorf("%s: %w: range [%d, %d) in buffer of %d bytes",
			op, ErrOutOfBounds, offset, offset+size, b.desc.SizeInBytes)
	}
	return nil
}

func checkAligned(op string, values ...uint64) error {
	for _, v := range values {
		if v%convert.CopyOffsetAlignment != 0 {
			return fmt.Errorf("%w: %s: %d is not %d-byte aligned", ErrValidation, op, v, convert.CopyOffsetAlignment)
		}
	}
	return nil
}

// =============================================================================
// Transfers
// =============================================================================

// UpdateBuffer uploads data into dst at offset through a staging buffer.
// Offset and length must be multiples of 4.
func (cb *CommandBuffer) UpdateBuffer(dst *Buffer, offset uint64, data []byte) error {
	const op = "update buffer"
	if err := cb.require(op, false); err != nil {
		return err
	}
	if err := cb.checkBuffer(op, dst); err != nil {
		return err
	}
	if dst.desc.Usage.Contains(BufferUsageStaging) {
		return fmt.Errorf("%s: %w: destination usage %s", op, ErrUsageCombination, dst.desc.Usage)
	}
	size := uint64(len(data))
	if size == 0 {
		return nil
	}
	if err := checkAligned(op, offset, size); err != nil {
		return err
	}
	if err := checkRange(op, dst, offset, size); err != nil {
		return err
	}
	staging, err := cb.stagingPool().Acquire(size)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := staging.write(0, data); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	cb.endCompute()
	cb.encoder.CopyBufferToBuffer(staging.raw, dst.raw, []hal.BufferCopy{{DstOffset: offset, Size: size}})
	return nil
}

// CopyBuffer copies size bytes between buffers.
func (cb *CommandBuffer) CopyBuffer(src *Buffer, srcOffset uint64, dst *Buffer, dstOffset, size uint64) error {
	const op = "copy buffer"
	if err := cb.require(op, false); err != nil {
		return err
	}
	if err := cb.checkBuffer(op, src); err != nil {
		return err
	}
	if err := cb.checkBuffer(op, dst); err != nil {
		return err
	}
	if src.desc.Usage.Contains(BufferUsageReadback) || dst.desc.Usage.Contains(BufferUsageStaging) {
		return fmt.Errorf("%s: %w: %s to %s", op, ErrUsageCombination, src.desc.Usage, dst.desc.Usage)
	}
	if size == 0 {
		return nil
	}
	if err := checkAligned(op, srcOffset, dstOffset, size); err != nil {
		return err
	}
	if err := checkRange(op, src, srcOffset, size); err != nil {
		return err
	}
	if err := checkRange(op, dst, dstOffset, size); err != nil {
		return err
	}
	if src == dst && srcOffset < dstOffset+size && dstOffset < srcOffset+size {
		return fmt.Errorf("%w: %s: overlapping ranges", ErrValidation, op)
	}
	cb.endCompute()
	cb.encoder.CopyBufferToBuffer(src.raw, dst.raw, []hal.BufferCopy{{SrcOffset: srcOffset, DstOffset: dstOffset, Size: size}})
	return nil
}

// ClearBuffer zeroes size bytes of dst at offset. A zero size clears to
// the end of the buffer.
func (cb *CommandBuffer) ClearBuffer(dst *Buffer, offset, size uint64) error {
	const op = "clear buffer"
	if err := cb.require(op, false); err != nil {
		return err
	}
	if err := cb.checkBuffer(op, dst); err != nil {
		return err
	}
	if dst.desc.Usage.Contains(BufferUsageStaging) {
		return fmt.Errorf("%s: %w: destination usage %s", op, ErrUsageCombination, dst.desc.Usage)
	}
	if offset > dst.desc.SizeInBytes {
		return checkRange(op, dst, offset, 0)
	}
	if size == 0 {
		size = dst.desc.SizeInBytes - offset
	}
	if err := checkAligned(op, offset, size); err != nil {
		return err
	}
	if err := checkRange(op, dst, offset, size); err != nil {
		return err
	}
	cb.endCompute()
	cb.encoder.ClearBuffer(dst.raw, offset, size)
	return nil
}

// UpdateTexture uploads tightly packed texels into a region of dst.
// Rows are repitched to the copy alignment in the staging buffer.
func (cb *CommandBuffer) UpdateTexture(dst *Texture, region TextureRegion, data []byte) error {
	const op = "update texture"
	if err := cb.require(op, false); err != nil {
		return err
	}
	if err := cb.checkTexture(op, dst); err != nil {
		return err
	}
	bpp, ok := convert.BytesPerPixel(dst.desc.Format)
	if !ok || dst.desc.Format.IsDepthStencil() {
		return fmt.Errorf("%s: %w: %s cannot be uploaded", op, ErrFormat, dst.desc.Format)
	}
	if dst.desc.sampleCount() > 1 {
		return fmt.Errorf("%w: %s: multisampled destination", ErrValidation, op)
	}
	r, err := region.resolve(dst.desc)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	tight := uint64(bpp) * uint64(r.Width)
	rows := uint64(r.Height) * uint64(r.Depth)
	if uint64(len(data)) != tight*rows {
		return fmt.Errorf("%w: %s: %d bytes for %dx%dx%d %s",
			ErrValidation, op, len(data), r.Width, r.Height, r.Depth, dst.desc.Format)
	}
	pitch := convert.AlignUp(tight, convert.CopyPitchAlignment)
	staged := data
	if pitch != tight {
		staged = make([]byte, pitch*rows)
		for row := range rows {
			copy(staged[row*pitch:], data[row*tight:(row+1)*tight])
		}
	}
	staging, err := cb.stagingPool().Acquire(uint64(len(staged)))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := staging.write(0, staged); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	cb.endCompute()
	cb.encoder.CopyBufferToTexture(staging.raw, dst.raw, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{
			//nolint:gosec // G115: row pitch of a valid texture fits in uint32
			BytesPerRow:  uint32(pitch),
			RowsPerImage: r.Height,
		},
		TextureBase: r.copyTexture(dst),
		Size:        r.extent(),
	}})
	return nil
}

// CopyTexture copies a region of src into dst. Both regions must resolve to
// the same extent and the formats must match.
func (cb *CommandBuffer) CopyTexture(src *Texture, srcRegion TextureRegion, dst *Texture, dstRegion TextureRegion) error {
	const op = "copy texture"
	if err := cb.require(op, false); err != nil {
		return err
	}
	if err := cb.checkTexture(op, src); err != nil {
		return err
	}
	if err := cb.checkTexture(op, dst); err != nil {
		return err
	}
	if src.desc.Format != dst.desc.Format || src.desc.sampleCount() != dst.desc.sampleCount() {
		return fmt.Errorf("%s: %w: %s to %s", op, ErrFormat, src.desc.Format, dst.desc.Format)
	}
	sr, err := srcRegion.resolve(src.desc)
	if err != nil {
		return fmt.Errorf("%s: source: %w", op, err)
	}
	if dstRegion.Width == 0 && dstRegion.Height == 0 && dstRegion.Depth == 0 {
		dstRegion.Width, dstRegion.Height, dstRegion.Depth = sr.Width, sr.Height, sr.Depth
	}
	dr, err := dstRegion.resolve(dst.desc)
	if err != nil {
		return fmt.Errorf("%s: destination: %w", op, err)
	}
	if sr.extent() != dr.extent() {
		return fmt.Errorf("%w: %s: extent %v to %v", ErrValidation, op, sr.extent(), dr.extent())
	}
	cb.endCompute()
	cb.encoder.CopyTextureToTexture(src.raw, dst.raw, []hal.TextureCopy{{
		SrcBase: sr.copyTexture(src),
		DstBase: dr.copyTexture(dst),
		Size:    sr.extent(),
	}})
	return nil
}

// CopyTextureToBuffer copies a region of src into dst at offset and returns
// the row pitch used in the buffer. Rows are aligned to 256 bytes.
func (cb *CommandBuffer) CopyTextureToBuffer(src *Texture, region TextureRegion, dst *Buffer, offset uint64) (uint32, error) {
	const op = "copy texture to buffer"
	if err := cb.require(op, false); err != nil {
		return 0, err
	}
	if err := cb.checkTexture(op, src); err != nil {
		return 0, err
	}
	if err := cb.checkBuffer(op, dst); err != nil {
		return 0, err
	}
	if dst.desc.Usage.Contains(BufferUsageStaging) {
		return 0, fmt.Errorf("%s: %w: destination usage %s", op, ErrUsageCombination, dst.desc.Usage)
	}
	if _, ok := convert.BytesPerPixel(src.desc.Format); !ok || src.desc.Format.IsDepthStencil() {
		return 0, fmt.Errorf("%s: %w: %s cannot be read back", op, ErrFormat, src.desc.Format)
	}
	r, err := region.resolve(src.desc)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	pitch, _ := convert.BytesPerRow(src.desc.Format, r.Width)
	if err := checkAligned(op, offset); err != nil {
		return 0, err
	}
	if err := checkRange(op, dst, offset, uint64(pitch)*uint64(r.Height)*uint64(r.Depth)); err != nil {
		return 0, err
	}
	cb.endCompute()
	cb.encoder.CopyTextureToBuffer(src.raw, dst.raw, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: offset, BytesPerRow: pitch, RowsPerImage: r.Height},
		TextureBase:  r.copyTexture(src),
		Size:         r.extent(),
	}})
	return pitch, nil
}

// =============================================================================
// Render scope
// =============================================================================

// BeginRendering opens a render scope on fb, clearing the attachments
// selected by clear.Flags. Render scopes do not nest.
func (cb *CommandBuffer) BeginRendering(fb *FrameBuffer, clear ClearValue) error {
	const op = "begin rendering"
	if err := cb.require(op, false); err != nil {
		return err
	}
	if fb == nil {
		return fmt.Errorf("%s: %w", op, ErrNilResource)
	}
	if err := fb.checkUsable(cb.ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	cb.endCompute()
	cb.clearBindings()
	cb.render = cb.encoder.BeginRenderPass(fb.renderPass(clear))
	cb.frameBuffer = fb
	return nil
}

// EndRendering closes the render scope. Draw state bound inside it is cleared.
func (cb *CommandBuffer) EndRendering() error {
	if err := cb.require("end rendering", true); err != nil {
		return err
	}
	cb.render.End()
	cb.render = nil
	cb.clearBindings()
	return nil
}

// SetViewports sets the viewport. Only a single viewport is supported.
func (cb *CommandBuffer) SetViewports(viewports ...Viewport) error {
	const op = "set viewports"
	if err := cb.require(op, true); err != nil {
		return err
	}
	switch {
	case len(viewports) == 0:
		return fmt.Errorf("%w: %s: none given", ErrValidation, op)
	case len(viewports) > 1:
		return fmt.Errorf("%s: %w: %d viewports", op, ErrUnsupported, len(viewports))
	}
	v := viewports[0]
	if v.Width <= 0 || v.Height <= 0 || v.MinDepth < 0 || v.MaxDepth > 1 || v.MinDepth > v.MaxDepth {
		return fmt.Errorf("%w: %s: %+v", ErrValidation, op, v)
	}
	cb.render.SetViewport(v.X, v.Y, v.Width, v.Height, v.MinDepth, v.MaxDepth)
	return nil
}

// SetScissorRectangles sets the scissor rectangle. Only a single rectangle
// is supported; it must lie within the frame buffer.
func (cb *CommandBuffer) SetScissorRectangles(rects ...image.Rectangle) error {
	const op = "set scissor rectangles"
	if err := cb.require(op, true); err != nil {
		return err
	}
	switch {
	case len(rects) == 0:
		return fmt.Errorf("%w: %s: none given", ErrValidation, op)
	case len(rects) > 1:
		return fmt.Errorf("%s: %w: %d rectangles", op, ErrUnsupported, len(rects))
	}
	r := rects[0].Canon()
	w, h := cb.frameBuffer.Size()
	//nolint:gosec // G115: frame buffer extent fits in int
	bounds := image.Rect(0, 0, int(w), int(h))
	if !r.In(bounds) {
		return fmt.Errorf("%s: %w: %v outside %v", op, ErrOutOfBounds, r, bounds)
	}
	//nolint:gosec // G115: r lies within bounds, so every value is non-negative
	cb.render.SetScissorRect(uint32(r.Min.X), uint32(r.Min.Y), uint32(r.Dx()), uint32(r.Dy()))
	return nil
}

// SetGraphicsPipeline binds p. Its outputs must match the frame buffer.
func (cb *CommandBuffer) SetGraphicsPipeline(p *GraphicsPipeline) error {
	const op = "set graphics pipeline"
	if err := cb.require(op, true); err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%s: %w", op, ErrNilResource)
	}
	if err := p.checkUsable(cb.ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !outputsMatch(p.desc.Outputs, cb.frameBuffer.outputs) {
		return fmt.Errorf("%w: %s: pipeline outputs %+v, frame buffer %+v",
			ErrValidation, op, p.desc.Outputs, cb.frameBuffer.outputs)
	}
	cb.render.SetPipeline(p.raw)
	cb.graphicsPipeline = p
	return nil
}

func outputsMatch(a, b OutputDescription) bool {
	if a.DepthFormat != b.DepthFormat || max(a.SampleCount, 1) != max(b.SampleCount, 1) {
		return false
	}
	if len(a.ColorFormats) != len(b.ColorFormats) {
		return false
	}
	for i := range a.ColorFormats {
		if a.ColorFormats[i] != b.ColorFormats[i] {
			return false
		}
	}
	return true
}

// SetVertexBuffers binds buffers to consecutive vertex slots starting at 0.
func (cb *CommandBuffer) SetVertexBuffers(buffers ...VertexBufferBinding) error {
	const op = "set vertex buffers"
	if err := cb.require(op, true); err != nil {
		return err
	}
	if limit := int(cb.ctx.caps.Limits.MaxVertexBuffers); limit != 0 && len(buffers) > limit {
		return fmt.Errorf("%s: %w: %d vertex buffers, limit %d", op, ErrOutOfBounds, len(buffers), limit)
	}
	for i, vb := range buffers {
		if err := cb.checkBuffer(op, vb.Buffer); err != nil {
			return err
		}
		if !vb.Buffer.desc.Usage.Contains(BufferUsageVertex) {
			return fmt.Errorf("%w: %s: buffer %d lacks vertex usage", ErrValidation, op, i)
		}
		if vb.Offset >= vb.Buffer.desc.SizeInBytes {
			return checkRange(op, vb.Buffer, vb.Offset, 1)
		}
	}
	for i, vb := range buffers {
		//nolint:gosec // G115: bounded by MaxVertexBuffers
		cb.render.SetVertexBuffer(uint32(i), vb.Buffer.raw, vb.Offset)
	}
	return nil
}

// SetIndexBuffer binds the index buffer used by indexed draws.
func (cb *CommandBuffer) SetIndexBuffer(b *Buffer, format gputypes.IndexFormat, offset uint64) error {
	const op = "set index buffer"
	if err := cb.require(op, true); err != nil {
		return err
	}
	if err := cb.checkBuffer(op, b); err != nil {
		return err
	}
	if !b.desc.Usage.Contains(BufferUsageIndex) {
		return fmt.Errorf("%w: %s: buffer lacks index usage", ErrValidation, op)
	}
	if format != gputypes.IndexFormatUint16 && format != gputypes.IndexFormatUint32 {
		return fmt.Errorf("%w: %s: index format %s", ErrValidation, op, format)
	}
	if offset%uint64(format.Size()) != 0 {
		return fmt.Errorf("%w: %s: offset %d not aligned to %s", ErrValidation, op, offset, format)
	}
	if offset >= b.desc.SizeInBytes {
		return checkRange(op, b, offset, 1)
	}
	cb.render.SetIndexBuffer(b.raw, format, offset)
	cb.indexBuffer = b
	return nil
}

// SetResourceSet binds set at index. Inside a render scope it applies to
// draws; outside it applies to the next Dispatch or DispatchRays.
// dynamicOffsets holds one offset per dynamic element of the set's layout.
func (cb *CommandBuffer) SetResourceSet(index uint32, set *ResourceSet, dynamicOffsets ...uint32) error {
	const op = "set resource set"
	if cb.state != CommandBufferRecording {
		return fmt.Errorf("%s: %w: state %s", op, ErrNotRecording, cb.state)
	}
	if set == nil {
		return fmt.Errorf("%s: %w", op, ErrNilResource)
	}
	if err := set.checkUsable(cb.ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if limit := cb.ctx.caps.Limits.MaxBindGroups; index >= limit {
		return fmt.Errorf("%s: %w: index %d, limit %d", op, ErrOutOfBounds, index, limit)
	}
	if want := set.desc.Layout.dynamicCount(); len(dynamicOffsets) != want {
		return fmt.Errorf("%w: %s: %d dynamic offsets, layout has %d", ErrValidation, op, len(dynamicOffsets), want)
	}
	if err := cb.checkDynamicOffsets(op, set, dynamicOffsets); err != nil {
		return err
	}
	offsets := append([]uint32(nil), dynamicOffsets...)
	if cb.render != nil {
		cb.render.SetBindGroup(index, set.raw, offsets)
	}
	if cb.sets == nil {
		cb.sets = make(map[uint32]boundSet)
	}
	cb.sets[index] = boundSet{set: set, offsets: offsets}
	return nil
}

// checkDynamicOffsets verifies each offset is aligned for its element kind
// and keeps the bound range inside the buffer. A zero Range binds the whole
// buffer, so only a zero offset fits.
func (cb *CommandBuffer) checkDynamicOffsets(op string, set *ResourceSet, offsets []uint32) error {
	limits := cb.ctx.caps.Limits
	k := 0
	for i, e := range set.desc.Layout.desc.Elements {
		if !e.AllowDynamicOffset {
			continue
		}
		off := offsets[k]
		k++
		align := limits.MinStorageBufferOffsetAlignment
		if e.Kind == ResourceKindConstantBuffer {
			align = limits.MinUniformBufferOffsetAlignment
		}
		if align != 0 && off%align != 0 {
			return fmt.Errorf("%w: %s: dynamic offset %d of %s not %d-byte aligned", ErrValidation, op, off, e.Kind, align)
		}
		b, ok := set.desc.Resources[i].(*Buffer)
		if !ok {
			continue
		}
		size := e.Range
		if size == 0 {
			size = b.desc.SizeInBytes
		}
		if err := checkRange(op, b, uint64(off), size); err != nil {
			return fmt.Errorf("dynamic offset %d: %w", off, err)
		}
	}
	return nil
}

// checkSets verifies a resource set matching each pipeline layout is bound.
func (cb *CommandBuffer) checkSets(op string, layouts []*ResourceLayout) error {
	for i, l := range layouts {
		//nolint:gosec // G115: bounded by MaxBindGroups
		bs, ok := cb.sets[uint32(i)]
		if !ok {
			return fmt.Errorf("%s: %w: no resource set at index %d", op, ErrInvalidState, i)
		}
		if bs.set.desc.Layout != l {
			return fmt.Errorf("%s: %w: set %d was created for another layout", op, ErrShapeMismatch, i)
		}
		if err := bs.set.checkUsable(cb.ctx); err != nil {
			return fmt.Errorf("%s: set %d: %w", op, i, err)
		}
	}
	return nil
}

// =============================================================================
// Draws
// =============================================================================

func (cb *CommandBuffer) checkDraw(op string, indexed bool) error {
	if err := cb.require(op, true); err != nil {
		return err
	}
	if cb.graphicsPipeline == nil {
		return fmt.Errorf("%s: %w", op, ErrNoPipeline)
	}
	if indexed && cb.indexBuffer == nil {
		return fmt.Errorf("%s: %w", op, ErrNoIndexBuffer)
	}
	return cb.checkSets(op, cb.graphicsPipeline.layouts)
}

// Draw draws vertexCount vertices starting at startVertex.
func (cb *CommandBuffer) Draw(vertexCount, startVertex uint32) error {
	return cb.DrawInstanced(vertexCount, 1, startVertex, 0)
}

// DrawIndexed draws indexCount indices starting at startIndex.
func (cb *CommandBuffer) DrawIndexed(indexCount, startIndex uint32, baseVertex int32) error {
	return cb.DrawIndexedInstanced(indexCount, 1, startIndex, baseVertex, 0)
}

// DrawInstanced draws instanceCount instances of vertexCount vertices.
func (cb *CommandBuffer) DrawInstanced(vertexCount, instanceCount, startVertex, startInstance uint32) error {
	if err := cb.checkDraw("draw", false); err != nil {
		return err
	}
	cb.render.Draw(vertexCount, instanceCount, startVertex, startInstance)
	return nil
}

// DrawIndexedInstanced draws instanceCount instances of indexCount indices.
func (cb *CommandBuffer) DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) error {
	if err := cb.checkDraw("draw indexed", true); err != nil {
		return err
	}
	cb.render.DrawIndexed(indexCount, instanceCount, startIndex, baseVertex, startInstance)
	return nil
}

// checkIndirect validates drawCount argument records of argSize bytes,
// stride bytes apart, starting at offset. A zero stride means tightly packed.
func (cb *CommandBuffer) checkIndirect(op string, b *Buffer, offset uint64, drawCount, stride, argSize uint32) (uint32, error) {
	if err := cb.checkBuffer(op, b); err != nil {
		return 0, err
	}
	if !b.desc.Usage.Contains(BufferUsageIndirectArgs) {
		return 0, fmt.Errorf("%s: %w: usage %s", op, ErrMissingIndirectUsage, b.desc.Usage)
	}
	if stride == 0 {
		stride = argSize
	}
	if stride < argSize || stride%4 != 0 {
		return 0, fmt.Errorf("%w: %s: stride %d for %d-byte records", ErrValidation, op, stride, argSize)
	}
	if err := checkAligned(op, offset); err != nil {
		return 0, err
	}
	if drawCount == 0 {
		return stride, nil
	}
	span := uint64(drawCount-1)*uint64(stride) + uint64(argSize)
	return stride, checkRange(op, b, offset, span)
}

// DrawInstancedIndirect issues drawCount draws whose arguments are read
// from b, DrawIndirectSize bytes each, stride bytes apart.
func (cb *CommandBuffer) DrawInstancedIndirect(b *Buffer, offset uint64, drawCount, stride uint32) error {
	const op = "draw indirect"
	if err := cb.checkDraw(op, false); err != nil {
		return err
	}
	stride, err := cb.checkIndirect(op, b, offset, drawCount, stride, DrawIndirectSize)
	if err != nil {
		return err
	}
	for i := range drawCount {
		cb.render.DrawIndirect(b.raw, offset+uint64(i)*uint64(stride))
	}
	return nil
}

// DrawIndexedInstancedIndirect issues drawCount indexed draws whose arguments
// are read from b, DrawIndexedIndirectSize bytes each, stride bytes apart.
func (cb *CommandBuffer) DrawIndexedInstancedIndirect(b *Buffer, offset uint64, drawCount, stride uint32) error {
	const op = "draw indexed indirect"
	if err := cb.checkDraw(op, true); err != nil {
		return err
	}
	stride, err := cb.checkIndirect(op, b, offset, drawCount, stride, DrawIndexedIndirectSize)
	if err != nil {
		return err
	}
	for i := range drawCount {
		cb.render.DrawIndexedIndirect(b.raw, offset+uint64(i)*uint64(stride))
	}
	return nil
}

// =============================================================================
// Compute and ray tracing
// =============================================================================

// SetComputePipeline selects the pipeline used by Dispatch.
func (cb *CommandBuffer) SetComputePipeline(p *ComputePipeline) error {
	const op = "set compute pipeline"
	if err := cb.require(op, false); err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%s: %w", op, ErrNilResource)
	}
	if err := p.checkUsable(cb.ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	cb.computePipeline = p
	return nil
}

// SetRayTracingPipeline selects the pipeline used by DispatchRays.
func (cb *CommandBuffer) SetRayTracingPipeline(p *RayTracingPipeline) error {
	const op = "set ray tracing pipeline"
	if err := cb.require(op, false); err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%s: %w", op, ErrNilResource)
	}
	if err := p.checkUsable(cb.ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	cb.rayTracingPipeline = p
	return nil
}

// computePass opens the compute pass if needed and applies the bound
// pipeline and resource sets.
func (cb *CommandBuffer) computePass(op string) (hal.ComputePassEncoder, error) {
	if err := cb.require(op, false); err != nil {
		return nil, err
	}
	p := cb.computePipeline
	if p == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrNoPipeline)
	}
	if err := cb.checkSets(op, p.layouts); err != nil {
		return nil, err
	}
	if cb.compute == nil {
		cb.compute = cb.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: cb.label})
	}
	cb.compute.SetPipeline(p.raw)
	for i := range p.layouts {
		bs := cb.sets[uint32(i)] //nolint:gosec // G115: bounded by MaxBindGroups
		cb.compute.SetBindGroup(uint32(i), bs.set.raw, bs.offsets)
	}
	return cb.compute, nil
}

// Dispatch runs the compute pipeline over x*y*z workgroups.
func (cb *CommandBuffer) Dispatch(x, y, z uint32) error {
	const op = "dispatch"
	if limit := cb.ctx.caps.Limits.MaxComputeWorkgroupsPerDimension; limit != 0 && max(x, y, z) > limit {
		return fmt.Errorf("%w: %s: %dx%dx%d exceeds %d per dimension", ErrValidation, op, x, y, z, limit)
	}
	pass, err := cb.computePass(op)
	if err != nil {
		return err
	}
	pass.Dispatch(x, y, z)
	return nil
}

// DispatchIndirect runs the compute pipeline with workgroup counts read
// from b at offset.
func (cb *CommandBuffer) DispatchIndirect(b *Buffer, offset uint64) error {
	const op = "dispatch indirect"
	if _, err := cb.checkIndirect(op, b, offset, 1, 0, DispatchIndirectSize); err != nil {
		return err
	}
	pass, err := cb.computePass(op)
	if err != nil {
		return err
	}
	pass.DispatchIndirect(b.raw, offset)
	return nil
}

// DispatchRays launches width*height*depth rays with the ray-tracing pipeline.
// Unlike draws it is recorded outside a render scope, like Dispatch: ray
// tracing runs in its own pass and returns ErrInsideRenderScope between
// BeginRendering and EndRendering.
func (cb *CommandBuffer) DispatchRays(width, height, depth uint32) error {
	const op = "dispatch rays"
	if err := cb.require(op, false); err != nil {
		return err
	}
	rte, ok := cb.encoder.(RayTracingCommandEncoder)
	if cb.ctx.rt == nil || !ok {
		return fmt.Errorf("%s: %w", op, ErrRayTracingUnsupported)
	}
	p := cb.rayTracingPipeline
	if p == nil {
		return fmt.Errorf("%s: %w", op, ErrNoPipeline)
	}
	if err := cb.checkSets(op, p.layouts); err != nil {
		return err
	}
	cb.endCompute()
	pass := rte.BeginRayTracingPass(cb.label)
	pass.SetPipeline(p.native)
	for i := range p.layouts {
		bs := cb.sets[uint32(i)] //nolint:gosec // G115: bounded by MaxBindGroups
		pass.SetBindGroup(uint32(i), bs.set.raw, bs.offsets)
	}
	pass.TraceRays(width, height, depth)
	pass.End()
	return nil
}

// buildAccelerationStructures records builds. The caller has checked the
// device supports ray tracing.
func (cb *CommandBuffer) buildAccelerationStructures(builds []NativeBuild) error {
	const op = "build acceleration structures"
	if err := cb.require(op, false); err != nil {
		return err
	}
	rte, ok := cb.encoder.(RayTracingCommandEncoder)
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrRayTracingUnsupported)
	}
	cb.endCompute()
	rte.BuildAccelerationStructures(builds)
	return nil
}
