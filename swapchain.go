package rhi

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// SurfaceHandle is the platform window a swap chain presents to.
// The handles are passed through to hal.Instance.CreateSurface unchanged.
type SurfaceHandle struct {
	Display uintptr
	Window  uintptr
}

// SwapChainDescription describes a swap chain.
type SwapChainDescription struct {
	Surface     SurfaceHandle
	Width       uint32
	Height      uint32
	ColorFormat gputypes.TextureFormat
	// DepthFormat adds a depth attachment to every acquired frame buffer
	// when not TextureFormatUndefined.
	DepthFormat  gputypes.TextureFormat
	VerticalSync bool
}

// Validate checks the description invariants.
func (d SwapChainDescription) Validate() error {
	if d.Width == 0 || d.Height == 0 {
		return fmt.Errorf("swap chain %dx%d: %w", d.Width, d.Height, ErrZeroSize)
	}
	if d.ColorFormat == gputypes.TextureFormatUndefined || d.ColorFormat.IsDepthStencil() {
		return fmt.Errorf("swap chain: %w: color %s", ErrFormat, d.ColorFormat)
	}
	if d.DepthFormat != gputypes.TextureFormatUndefined && !d.DepthFormat.IsDepthStencil() {
		return fmt.Errorf("swap chain: %w: depth %s", ErrFormat, d.DepthFormat)
	}
	return nil
}

func (d SwapChainDescription) configuration() *hal.SurfaceConfiguration {
	mode := gputypes.PresentModeImmediate
	if d.VerticalSync {
		mode = gputypes.PresentModeFifo
	}
	return &hal.SurfaceConfiguration{
		Width:       d.Width,
		Height:      d.Height,
		Format:      d.ColorFormat,
		Usage:       gputypes.TextureUsageRenderAttachment,
		PresentMode: mode,
		AlphaMode:   gputypes.CompositeAlphaModeOpaque,
	}
}

// SwapChain is a sequence of presentable frame buffers.
//
// AcquireFrameBuffer and Present alternate: the frame buffer returned by
// AcquireFrameBuffer stays valid until the following Present or Resize.
type SwapChain struct {
	deviceResource
	desc    SwapChainDescription
	surface hal.Surface
	depth   *Texture

	acquired *hal.AcquiredSurfaceTexture
	frame    *FrameBuffer
}

// Description returns the current description.
func (s *SwapChain) Description() SwapChainDescription { return s.desc }

// AcquireFrameBuffer returns the frame buffer for the next image.
// Calling it again before Present returns the same frame buffer.
func (s *SwapChain) AcquireFrameBuffer() (*FrameBuffer, error) {
	if err := s.checkUsable(s.ctx); err != nil {
		return nil, err
	}
	if s.frame != nil {
		return s.frame, nil
	}
	acquired, err := s.surface.AcquireTexture(nil)
	if err != nil {
		return nil, backendError("acquire surface texture", err)
	}
	view, err := s.ctx.device.CreateTextureView(acquired.Texture, &hal.TextureViewDescriptor{
		Format:          s.desc.ColorFormat,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		s.surface.DiscardTexture(acquired.Texture)
		return nil, backendError("create surface view", err)
	}
	fb := &FrameBuffer{
		width:      s.desc.Width,
		height:     s.desc.Height,
		colorViews: []hal.TextureView{view},
		outputs: OutputDescription{
			ColorFormats: []gputypes.TextureFormat{s.desc.ColorFormat},
			SampleCount:  1,
		},
	}
	fb.desc.ColorTargets = []FrameBufferAttachment{{}}
	fb.init(s.ctx, "FrameBuffer", s.Name(), nil, false)
	if s.depth != nil {
		dv, err := s.depth.createView(0, 0)
		if err != nil {
			fb.releaseViews()
			s.surface.DiscardTexture(acquired.Texture)
			return nil, err
		}
		fb.depthView = dv
		fb.outputs.DepthFormat = s.desc.DepthFormat
		fb.desc.DepthTarget = &FrameBufferAttachment{Texture: s.depth}
	}
	if acquired.Suboptimal {
		Logger().Debug("rhi: suboptimal swap chain", "width", s.desc.Width, "height", s.desc.Height)
	}
	s.acquired, s.frame = acquired, fb
	return fb, nil
}

// Present queues the acquired image for display. Work rendering to it must
// already be submitted.
func (s *SwapChain) Present() error {
	if err := s.checkUsable(s.ctx); err != nil {
		return err
	}
	if s.acquired == nil {
		return fmt.Errorf("present: %w: no acquired frame buffer", ErrInvalidState)
	}
	err := s.ctx.queue.Present(s.surface, s.acquired.Texture, []image.Rectangle{})
	s.releaseFrame(false)
	if err != nil {
		return backendError("present", err)
	}
	return nil
}

// releaseFrame drops the acquired frame, discarding the image unless it
// was presented.
func (s *SwapChain) releaseFrame(discard bool) {
	if s.frame != nil {
		s.frame.markDestroyed()
		s.frame.releaseViews()
		s.frame = nil
	}
	if s.acquired != nil && discard {
		s.surface.DiscardTexture(s.acquired.Texture)
	}
	s.acquired = nil
}

// Resize reconfigures the surface and recreates the depth target.
func (s *SwapChain) Resize(width, height uint32) error {
	if err := s.checkUsable(s.ctx); err != nil {
		return err
	}
	desc := s.desc
	desc.Width, desc.Height = width, height
	if err := desc.Validate(); err != nil {
		return fmt.Errorf("resize swap chain: %w", err)
	}
	s.releaseFrame(true)
	if err := s.surface.Configure(s.ctx.device, desc.configuration()); err != nil {
		return backendError("resize swap chain", err)
	}
	s.desc = desc
	return s.recreateDepth()
}

func (s *SwapChain) recreateDepth() error {
	if s.depth != nil {
		s.depth.Destroy()
		s.depth = nil
	}
	if s.desc.DepthFormat == gputypes.TextureFormatUndefined {
		return nil
	}
	depth, err := s.ctx.factory.createTexture(
		Texture2DDescription(s.desc.Width, s.desc.Height, s.desc.DepthFormat, TextureUsageDepthStencil), false)
	if err != nil {
		return fmt.Errorf("swap chain depth: %w", err)
	}
	s.depth = depth
	return nil
}

// Destroy discards any acquired image and releases the surface.
func (s *SwapChain) Destroy() {
	s.markDestroyed()
	s.releaseFrame(true)
	if s.depth != nil {
		s.depth.Destroy()
	}
	s.surface.Unconfigure(s.ctx.device)
	s.surface.Destroy()
}

// CreateSwapChain creates a swap chain on a platform surface. Contexts
// adopted from a provider have no instance and return ErrUnsupported.
func (f *ResourceFactory) CreateSwapChain(desc SwapChainDescription) (*SwapChain, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("create swap chain: %w", err)
	}
	ctx := f.ctx
	if ctx.instance == nil {
		return nil, fmt.Errorf("create swap chain: %w: context has no instance", ErrUnsupported)
	}
	surface, err := ctx.instance.CreateSurface(desc.Surface.Display, desc.Surface.Window)
	if err != nil {
		return nil, backendError("create surface", err)
	}
	if err := surface.Configure(ctx.device, desc.configuration()); err != nil {
		surface.Destroy()
		return nil, backendError("configure surface", err)
	}
	s := &SwapChain{desc: desc, surface: surface}
	s.init(ctx, "SwapChain", "", surface, true)
	if err := s.recreateDepth(); err != nil {
		s.Destroy()
		return nil, err
	}
	ctx.mu.Lock()
	ctx.surfaceFormat = desc.ColorFormat
	ctx.mu.Unlock()
	Logger().Debug("rhi: swap chain created", "width", desc.Width, "height", desc.Height,
		"format", desc.ColorFormat.String(), "vsync", desc.VerticalSync)
	return s, nil
}
