// Package convert holds the pure translation tables between rhi
// descriptions and gputypes values. Nothing here keeps state; every
// function is safe for concurrent use.
package convert

import "github.com/gogpu/gputypes"

// CopyPitchAlignment is the row pitch alignment required for
// buffer-texture copies.
const CopyPitchAlignment = 256

// CopyOffsetAlignment is the offset and size alignment required for
// buffer-buffer copies.
const CopyOffsetAlignment = 4

// AlignUp rounds v up to a multiple of align. align must be a power of two.
func AlignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// BytesPerPixel returns the texel size of an uncompressed format.
// ok is false for compressed, depth/stencil and unknown formats.
func BytesPerPixel(f gputypes.TextureFormat) (size uint32, ok bool) {
	switch f {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatR8Snorm,
		gputypes.TextureFormatR8Uint, gputypes.TextureFormatR8Sint:
		return 1, true
	case gputypes.TextureFormatR16Unorm, gputypes.TextureFormatR16Snorm,
		gputypes.TextureFormatR16Uint, gputypes.TextureFormatR16Sint,
		gputypes.TextureFormatR16Float,
		gputypes.TextureFormatRG8Unorm, gputypes.TextureFormatRG8Snorm,
		gputypes.TextureFormatRG8Uint, gputypes.TextureFormatRG8Sint:
		return 2, true
	case gputypes.TextureFormatR32Float, gputypes.TextureFormatR32Uint,
		gputypes.TextureFormatR32Sint,
		gputypes.TextureFormatRG16Unorm, gputypes.TextureFormatRG16Snorm,
		gputypes.TextureFormatRG16Uint, gputypes.TextureFormatRG16Sint,
		gputypes.TextureFormatRG16Float,
		gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatRGBA8Snorm, gputypes.TextureFormatRGBA8Uint,
		gputypes.TextureFormatRGBA8Sint,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb,
		gputypes.TextureFormatRGB10A2Uint, gputypes.TextureFormatRGB10A2Unorm,
		gputypes.TextureFormatRG11B10Ufloat, gputypes.TextureFormatRGB9E5Ufloat:
		return 4, true
	case gputypes.TextureFormatRG32Float, gputypes.TextureFormatRG32Uint,
		gputypes.TextureFormatRG32Sint,
		gputypes.TextureFormatRGBA16Unorm, gputypes.TextureFormatRGBA16Snorm,
		gputypes.TextureFormatRGBA16Uint, gputypes.TextureFormatRGBA16Sint,
		gputypes.TextureFormatRGBA16Float:
		return 8, true
	case gputypes.TextureFormatRGBA32Float, gputypes.TextureFormatRGBA32Uint,
		gputypes.TextureFormatRGBA32Sint:
		return 16, true
	default:
		return 0, false
	}
}

// BytesPerRow returns the aligned row pitch for a copy of width texels.
func BytesPerRow(f gputypes.TextureFormat, width uint32) (uint32, bool) {
	bpp, ok := BytesPerPixel(f)
	if !ok {
		return 0, false
	}
	//nolint:gosec // G115: row pitch of a valid texture fits in uint32
	return uint32(AlignUp(uint64(bpp)*uint64(width), CopyPitchAlignment)), true
}

// SampleType returns the sample type a shader sees for the format.
func SampleType(f gputypes.TextureFormat) gputypes.TextureSampleType {
	switch f {
	case gputypes.TextureFormatR8Uint, gputypes.TextureFormatR16Uint,
		gputypes.TextureFormatRG8Uint, gputypes.TextureFormatR32Uint,
		gputypes.TextureFormatRG16Uint, gputypes.TextureFormatRGBA8Uint,
		gputypes.TextureFormatRGB10A2Uint, gputypes.TextureFormatRG32Uint,
		gputypes.TextureFormatRGBA16Uint, gputypes.TextureFormatRGBA32Uint:
		return gputypes.TextureSampleTypeUint
	case gputypes.TextureFormatR8Sint, gputypes.TextureFormatR16Sint,
		gputypes.TextureFormatRG8Sint, gputypes.TextureFormatR32Sint,
		gputypes.TextureFormatRG16Sint, gputypes.TextureFormatRGBA8Sint,
		gputypes.TextureFormatRG32Sint, gputypes.TextureFormatRGBA16Sint,
		gputypes.TextureFormatRGBA32Sint:
		return gputypes.TextureSampleTypeSint
	case gputypes.TextureFormatR32Float, gputypes.TextureFormatRG32Float,
		gputypes.TextureFormatRGBA32Float:
		return gputypes.TextureSampleTypeUnfilterableFloat
	}
	if f.HasDepth() {
		return gputypes.TextureSampleTypeDepth
	}
	return gputypes.TextureSampleTypeFloat
}

// IsStorageCapable reports whether the format can back a storage texture.
func IsStorageCapable(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8Snorm,
		gputypes.TextureFormatRGBA8Uint, gputypes.TextureFormatRGBA8Sint,
		gputypes.TextureFormatRGBA16Uint, gputypes.TextureFormatRGBA16Sint,
		gputypes.TextureFormatRGBA16Float,
		gputypes.TextureFormatR32Float, gputypes.TextureFormatR32Uint,
		gputypes.TextureFormatR32Sint,
		gputypes.TextureFormatRG32Float, gputypes.TextureFormatRG32Uint,
		gputypes.TextureFormatRG32Sint,
		gputypes.TextureFormatRGBA32Float, gputypes.TextureFormatRGBA32Uint,
		gputypes.TextureFormatRGBA32Sint:
		return true
	default:
		return false
	}
}

// IsCompressed reports whether the format is block compressed.
func IsCompressed(f gputypes.TextureFormat) bool {
	return f >= gputypes.TextureFormatBC1RGBAUnorm
}
