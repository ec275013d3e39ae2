package rhi

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"
)

// GenerateMipmaps returns levels images forming a mip chain for img. Level 0
// is img scaled to width x height with Catmull-Rom filtering; each further
// level halves the previous one with bilinear filtering.
func GenerateMipmaps(img image.Image, width, height, levels uint32) []*image.RGBA {
	if levels == 0 {
		return nil
	}
	mips := make([]*image.RGBA, 0, levels)
	//nolint:gosec // G115: texture extents fit in int
	base := image.NewRGBA(image.Rect(0, 0, int(width), int(height)))
	if img.Bounds().Size() == base.Bounds().Size() {
		draw.Draw(base, base.Bounds(), img, img.Bounds().Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(base, base.Bounds(), img, img.Bounds(), draw.Src, nil)
	}
	mips = append(mips, base)
	for level := uint32(1); level < levels; level++ {
		prev := mips[len(mips)-1]
		w, h := max(width>>level, 1), max(height>>level, 1)
		//nolint:gosec // G115: texture extents fit in int
		next := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
		draw.BiLinear.Scale(next, next.Bounds(), prev, prev.Bounds(), draw.Src, nil)
		mips = append(mips, next)
	}
	return mips
}

// texels returns the pixels of m in the byte order of format.
func texels(m *image.RGBA, format gputypes.TextureFormat) []byte {
	switch format {
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		out := make([]byte, len(m.Pix))
		for i := 0; i+3 < len(m.Pix); i += 4 {
			out[i], out[i+1], out[i+2], out[i+3] = m.Pix[i+2], m.Pix[i+1], m.Pix[i], m.Pix[i+3]
		}
		return out
	default:
		return m.Pix
	}
}

// UploadImage records uploads of img into array slice 0 of a 2D texture.
// The image is scaled to the texture size when they differ. For textures
// with TextureUsageGenerateMipmaps every mip level is generated on the CPU
// and uploaded; otherwise only level 0 is written.
//
// Supported formats are the 8-bit RGBA and BGRA formats.
func UploadImage(cb *CommandBuffer, tex *Texture, img image.Image) error {
	const op = "upload image"
	if tex == nil || img == nil {
		return fmt.Errorf("%s: %w", op, ErrNilResource)
	}
	d := tex.desc
	switch d.Format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
	default:
		return fmt.Errorf("%s: %w: %s", op, ErrFormat, d.Format)
	}
	if d.Type != TextureType2D {
		return fmt.Errorf("%s: %w: %s texture", op, ErrUnsupported, d.Type)
	}
	if img.Bounds().Empty() {
		return fmt.Errorf("%s: %w", op, ErrZeroSize)
	}
	levels := uint32(1)
	if d.Usage.Contains(TextureUsageGenerateMipmaps) {
		levels = d.MipLevels
	}
	for level, m := range GenerateMipmaps(img, d.Width, d.Height, levels) {
		//nolint:gosec // G115: level is below MipLevels
		region := TextureRegion{MipLevel: uint32(level)}
		if err := cb.UpdateTexture(tex, region, texels(m, d.Format)); err != nil {
			return fmt.Errorf("%s: level %d: %w", op, level, err)
		}
	}
	return nil
}
