package rhi

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// FrameBufferAttachment selects one mip level and array slice of a texture.
type FrameBufferAttachment struct {
	Texture    *Texture
	MipLevel   uint32
	ArraySlice uint32
}

// FrameBufferDescription lists the render targets of a frame buffer.
type FrameBufferDescription struct {
	ColorTargets []FrameBufferAttachment
	// DepthTarget is nil when there is no depth attachment.
	DepthTarget *FrameBufferAttachment
}

// ClearFlags selects which attachments BeginRendering clears.
type ClearFlags uint8

const (
	// ClearTarget clears every color target.
	ClearTarget ClearFlags = 1 << iota
	// ClearDepth clears the depth aspect.
	ClearDepth
	// ClearStencil clears the stencil aspect.
	ClearStencil
)

// ClearValue holds the values BeginRendering clears attachments to.
// Attachments not selected by Flags are loaded.
type ClearValue struct {
	Flags ClearFlags
	// Colors holds one color per color target. Missing entries clear to
	// transparent black.
	Colors  []gputypes.Color
	Depth   float32
	Stencil uint32
}

// FrameBuffer is a set of render targets.
type FrameBuffer struct {
	deviceResource
	desc    FrameBufferDescription
	outputs OutputDescription
	width   uint32
	height  uint32

	colorViews []hal.TextureView
	depthView  hal.TextureView
}

// Description returns the description the frame buffer was created with.
func (fb *FrameBuffer) Description() FrameBufferDescription { return fb.desc }

// Outputs returns the attachment signature for pipeline creation.
func (fb *FrameBuffer) Outputs() OutputDescription {
	out := fb.outputs
	out.ColorFormats = append([]gputypes.TextureFormat(nil), out.ColorFormats...)
	return out
}

// Size returns the attachment extent.
func (fb *FrameBuffer) Size() (width, height uint32) { return fb.width, fb.height }

// Destroy releases the attachment views. The textures are not affected.
// Frame buffers returned by SwapChain.AcquireFrameBuffer are released by
// the swap chain and must not be destroyed.
func (fb *FrameBuffer) Destroy() {
	fb.markDestroyed()
	fb.releaseViews()
}

func (fb *FrameBuffer) releaseViews() {
	for _, v := range fb.colorViews {
		fb.ctx.device.DestroyTextureView(v)
	}
	if fb.depthView != nil {
		fb.ctx.device.DestroyTextureView(fb.depthView)
	}
	fb.colorViews, fb.depthView = nil, nil
}

func (fb *FrameBuffer) renderPass(clear ClearValue) *hal.RenderPassDescriptor {
	rp := &hal.RenderPassDescriptor{Label: fb.Name()}
	for i, v := range fb.colorViews {
		att := hal.RenderPassColorAttachment{View: v, LoadOp: gputypes.LoadOpLoad, StoreOp: gputypes.StoreOpStore}
		if clear.Flags&ClearTarget != 0 {
			att.LoadOp = gputypes.LoadOpClear
			if i < len(clear.Colors) {
				att.ClearValue = clear.Colors[i]
			}
		}
		rp.ColorAttachments = append(rp.ColorAttachments, att)
	}
	if fb.depthView != nil {
		ds := &hal.RenderPassDepthStencilAttachment{
			View:              fb.depthView,
			DepthLoadOp:       gputypes.LoadOpLoad,
			DepthStoreOp:      gputypes.StoreOpStore,
			DepthClearValue:   clear.Depth,
			StencilLoadOp:     gputypes.LoadOpLoad,
			StencilStoreOp:    gputypes.StoreOpStore,
			StencilClearValue: clear.Stencil,
		}
		if clear.Flags&ClearDepth != 0 {
			ds.DepthLoadOp = gputypes.LoadOpClear
		}
		if clear.Flags&ClearStencil != 0 {
			ds.StencilLoadOp = gputypes.LoadOpClear
		}
		rp.DepthStencilAttachment = ds
	}
	return rp
}

func checkAttachment(ctx *Context, a FrameBufferAttachment, want TextureUsage) error {
	if a.Texture == nil {
		return ErrNilResource
	}
	if err := a.Texture.checkUsable(ctx); err != nil {
		return err
	}
	d := a.Texture.desc
	if !d.Usage.Contains(want) {
		return fmt.Errorf("%w: texture lacks attachment usage", ErrUsageCombination)
	}
	if a.MipLevel >= d.MipLevels || a.ArraySlice >= d.nativeLayers() {
		return fmt.Errorf("%w: mip %d slice %d", ErrOutOfBounds, a.MipLevel, a.ArraySlice)
	}
	return nil
}

// CreateFrameBuffer creates a frame buffer. Every attachment must have the
// same extent at its mip level and the same sample count.
func (f *ResourceFactory) CreateFrameBuffer(desc FrameBufferDescription) (*FrameBuffer, error) {
	atts := append([]FrameBufferAttachment(nil), desc.ColorTargets...)
	if desc.DepthTarget != nil {
		atts = append(atts, *desc.DepthTarget)
	}
	if len(atts) == 0 {
		return nil, fmt.Errorf("%w: create frame buffer: no attachments", ErrValidation)
	}
	fb := &FrameBuffer{}
	for i, a := range atts {
		want := TextureUsageRenderTarget
		if i == len(desc.ColorTargets) {
			want = TextureUsageDepthStencil
		}
		if err := checkAttachment(f.ctx, a, want); err != nil {
			return nil, fmt.Errorf("create frame buffer: attachment %d: %w", i, err)
		}
		w, h, _ := a.Texture.desc.MipExtent(a.MipLevel)
		samples := a.Texture.desc.sampleCount()
		if i == 0 {
			fb.width, fb.height, fb.outputs.SampleCount = w, h, samples
		} else if w != fb.width || h != fb.height || samples != fb.outputs.SampleCount {
			return nil, fmt.Errorf("%w: create frame buffer: attachment %d is %dx%d x%d, want %dx%d x%d",
				ErrValidation, i, w, h, samples, fb.width, fb.height, fb.outputs.SampleCount)
		}
	}

	for i, a := range atts {
		view, err := a.Texture.createView(a.MipLevel, a.ArraySlice)
		if err != nil {
			fb.ctx = f.ctx
			fb.releaseViews()
			return nil, fmt.Errorf("create frame buffer: attachment %d: %w", i, err)
		}
		if i < len(desc.ColorTargets) {
			fb.colorViews = append(fb.colorViews, view)
			fb.outputs.ColorFormats = append(fb.outputs.ColorFormats, a.Texture.desc.Format)
		} else {
			fb.depthView = view
			fb.outputs.DepthFormat = a.Texture.desc.Format
		}
	}
	fb.desc = FrameBufferDescription{ColorTargets: append([]FrameBufferAttachment(nil), desc.ColorTargets...)}
	if desc.DepthTarget != nil {
		d := *desc.DepthTarget
		fb.desc.DepthTarget = &d
	}
	fb.init(f.ctx, "FrameBuffer", "", nil, true)
	return fb, nil
}
