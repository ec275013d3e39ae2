package rhi

import (
	"fmt"
	"math/bits"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi/internal/convert"
	"github.com/gogpu/wgpu/hal"
)

// TextureType is the dimensionality of a texture.
type TextureType uint8

const (
	// TextureType2D is a 2D texture or 2D texture array.
	TextureType2D TextureType = iota
	// TextureType1D is a 1D texture or 1D texture array.
	TextureType1D
	// TextureType3D is a volume texture.
	TextureType3D
	// TextureTypeCube is a cube map or cube map array.
	TextureTypeCube
)

// String returns the string representation of TextureType.
func (t TextureType) String() string {
	switch t {
	case TextureType1D:
		return "1D"
	case TextureType2D:
		return "2D"
	case TextureType3D:
		return "3D"
	case TextureTypeCube:
		return "Cube"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// TextureUsage describes how a texture will be used.
type TextureUsage uint8

const (
	// TextureUsageSampled allows binding as a read-only texture.
	TextureUsageSampled TextureUsage = 1 << iota
	// TextureUsageStorage allows binding as a read/write texture.
	TextureUsageStorage
	// TextureUsageRenderTarget allows use as a color attachment.
	TextureUsageRenderTarget
	// TextureUsageDepthStencil allows use as a depth/stencil attachment.
	TextureUsageDepthStencil
	// TextureUsageGenerateMipmaps requests a full mip chain be filled on upload.
	TextureUsageGenerateMipmaps
)

// Contains reports whether all bits of flag are set.
func (u TextureUsage) Contains(flag TextureUsage) bool {
	return u&flag == flag
}

func (u TextureUsage) halUsage() gputypes.TextureUsage {
	out := gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	if u.Contains(TextureUsageSampled) {
		out |= gputypes.TextureUsageTextureBinding
	}
	if u.Contains(TextureUsageStorage) {
		out |= gputypes.TextureUsageStorageBinding
	}
	if u&(TextureUsageRenderTarget|TextureUsageDepthStencil) != 0 {
		out |= gputypes.TextureUsageRenderAttachment
	}
	return out
}

// TextureDescription fully specifies a texture before creation.
type TextureDescription struct {
	Type   TextureType
	Format gputypes.TextureFormat

	Width  uint32
	Height uint32
	// Depth is the depth of a 3D texture. Must be 1 for other types.
	Depth uint32

	// MipLevels is the number of mip levels, at most
	// floor(log2(max(Width, Height, Depth))) + 1.
	MipLevels uint32

	// ArrayLayers is the array length. For cube textures it counts cubes,
	// not faces.
	ArrayLayers uint32

	Usage TextureUsage

	// SampleCount is 1, 2, 4 or 8. Zero means 1.
	SampleCount uint32
}

// Texture2DDescription returns a single-mip, single-layer 2D description.
func Texture2DDescription(width, height uint32, format gputypes.TextureFormat, usage TextureUsage) TextureDescription {
	return TextureDescription{
		Type:        TextureType2D,
		Format:      format,
		Width:       width,
		Height:      height,
		Depth:       1,
		MipLevels:   1,
		ArrayLayers: 1,
		Usage:       usage,
		SampleCount: 1,
	}
}

// MaxMipLevels returns the length of a full mip chain for the given extent.
func MaxMipLevels(width, height, depth uint32) uint32 {
	//nolint:gosec // G115: bit length of uint32 is at most 32
	return uint32(bits.Len32(max(width, height, depth, 1)))
}

// Validate checks the description invariants.
func (d TextureDescription) Validate() error {
	if d.Width == 0 || d.Height == 0 || d.Depth == 0 || d.MipLevels == 0 || d.ArrayLayers == 0 {
		return fmt.Errorf("texture %dx%dx%d mips %d layers %d: %w",
			d.Width, d.Height, d.Depth, d.MipLevels, d.ArrayLayers, ErrZeroSize)
	}
	switch d.Type {
	case TextureType1D:
		if d.Height != 1 || d.Depth != 1 {
			return fmt.Errorf("%w: texture: 1D texture needs height and depth 1", ErrValidation)
		}
	case TextureType2D:
		if d.Depth != 1 {
			return fmt.Errorf("%w: texture: 2D texture needs depth 1", ErrValidation)
		}
	case TextureType3D:
		if d.ArrayLayers != 1 {
			return fmt.Errorf("%w: texture: 3D texture cannot be an array", ErrValidation)
		}
	case TextureTypeCube:
		if d.Width != d.Height || d.Depth != 1 {
			return fmt.Errorf("%w: texture: cube faces must be square", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: texture: unknown type %d", ErrValidation, d.Type)
	}
	if limit := MaxMipLevels(d.Width, d.Height, d.Depth); d.MipLevels > limit {
		return fmt.Errorf("%w: texture: %d mip levels exceed %d", ErrValidation, d.MipLevels, limit)
	}
	if d.Format == gputypes.TextureFormatUndefined {
		return fmt.Errorf("texture: %w: undefined", ErrFormat)
	}
	if d.Usage.Contains(TextureUsageDepthStencil) != d.Format.IsDepthStencil() {
		return fmt.Errorf("texture: %w: %s with depth-stencil usage %t",
			ErrFormat, d.Format, d.Usage.Contains(TextureUsageDepthStencil))
	}
	if d.Usage.Contains(TextureUsageRenderTarget) && d.Usage.Contains(TextureUsageDepthStencil) {
		return fmt.Errorf("texture: %w: render target and depth-stencil", ErrUsageCombination)
	}
	if d.Usage.Contains(TextureUsageStorage) && !convert.IsStorageCapable(d.Format) {
		return fmt.Errorf("texture: %w: %s cannot back storage", ErrFormat, d.Format)
	}
	switch d.sampleCount() {
	case 1:
	case 2, 4, 8:
		if d.Type != TextureType2D || d.MipLevels != 1 ||
			d.Usage&(TextureUsageRenderTarget|TextureUsageDepthStencil) == 0 {
			return fmt.Errorf("%w: texture: multisampling needs a single-mip 2D attachment", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: texture: sample count %d", ErrValidation, d.SampleCount)
	}
	return nil
}

func (d TextureDescription) sampleCount() uint32 {
	if d.SampleCount == 0 {
		return 1
	}
	return d.SampleCount
}

// nativeLayers returns the number of native array layers (cube faces count).
func (d TextureDescription) nativeLayers() uint32 {
	if d.Type == TextureTypeCube {
		return d.ArrayLayers * 6
	}
	return d.ArrayLayers
}

func (d TextureDescription) halDimension() gputypes.TextureDimension {
	switch d.Type {
	case TextureType1D:
		return gputypes.TextureDimension1D
	case TextureType3D:
		return gputypes.TextureDimension3D
	default:
		return gputypes.TextureDimension2D
	}
}

func (d TextureDescription) viewDimension() gputypes.TextureViewDimension {
	switch d.Type {
	case TextureType1D:
		return gputypes.TextureViewDimension1D
	case TextureType3D:
		return gputypes.TextureViewDimension3D
	case TextureTypeCube:
		if d.ArrayLayers > 1 {
			return gputypes.TextureViewDimensionCubeArray
		}
		return gputypes.TextureViewDimensionCube
	default:
		if d.ArrayLayers > 1 {
			return gputypes.TextureViewDimension2DArray
		}
		return gputypes.TextureViewDimension2D
	}
}

// MipExtent returns the size of the given mip level.
func (d TextureDescription) MipExtent(level uint32) (width, height, depth uint32) {
	return max(d.Width>>level, 1), max(d.Height>>level, 1), max(d.Depth>>level, 1)
}

// Texture is a GPU texture with a default view covering every mip and layer.
type Texture struct {
	deviceResource
	desc TextureDescription
	raw  hal.Texture
	view hal.TextureView
}

// Description returns the description the texture was created with.
func (t *Texture) Description() TextureDescription { return t.desc }

// Format returns the texel format.
func (t *Texture) Format() gputypes.TextureFormat { return t.desc.Format }

// Native returns the HAL texture.
func (t *Texture) Native() hal.Texture { return t.raw }

// Destroy releases the default view and the texture.
func (t *Texture) Destroy() {
	t.markDestroyed()
	t.ctx.device.DestroyTextureView(t.view)
	t.ctx.device.DestroyTexture(t.raw)
}

// createView creates a view over a single mip level and array slice.
func (t *Texture) createView(mip, slice uint32) (hal.TextureView, error) {
	dim := gputypes.TextureViewDimension2D
	if t.desc.Type == TextureType3D {
		dim = gputypes.TextureViewDimension3D
	}
	view, err := t.ctx.device.CreateTextureView(t.raw, &hal.TextureViewDescriptor{
		Label:           t.Name(),
		Format:          t.desc.Format,
		Dimension:       dim,
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    mip,
		MipLevelCount:   1,
		BaseArrayLayer:  slice,
		ArrayLayerCount: 1,
	})
	if err != nil {
		return nil, backendError("create texture view", err)
	}
	return view, nil
}

// CreateTexture creates a texture and its default view.
func (f *ResourceFactory) CreateTexture(desc TextureDescription) (*Texture, error) {
	return f.createTexture(desc, true)
}

func (f *ResourceFactory) createTexture(desc TextureDescription, tracked bool) (*Texture, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("create texture: %w", err)
	}
	d := f.ctx.device
	raw, err := d.CreateTexture(&hal.TextureDescriptor{
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: max(desc.Depth, desc.nativeLayers()),
		},
		MipLevelCount: desc.MipLevels,
		SampleCount:   desc.sampleCount(),
		Dimension:     desc.halDimension(),
		Format:        desc.Format,
		Usage:         desc.Usage.halUsage(),
	})
	if err != nil {
		return nil, backendError("create texture", err)
	}
	view, err := d.CreateTextureView(raw, &hal.TextureViewDescriptor{
		Format:          desc.Format,
		Dimension:       desc.viewDimension(),
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   desc.MipLevels,
		ArrayLayerCount: desc.nativeLayers(),
	})
	if err != nil {
		d.DestroyTexture(raw)
		return nil, backendError("create texture view", err)
	}
	t := &Texture{desc: desc, raw: raw, view: view}
	t.init(f.ctx, "Texture", "", raw, tracked)
	Logger().Debug("rhi: texture created",
		"type", desc.Type.String(), "format", desc.Format.String(),
		"width", desc.Width, "height", desc.Height, "mips", desc.MipLevels)
	return t, nil
}
