package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/disintegration/imaging"
	"github.com/pixelgate/pixelgate/internal/domain"
	_ "golang.org/x/image/webp"
)

// imagingEngine is the pure-Go engine used when the binary is built without
// the govips tag. It covers the full capability set except webp/heic
// encoding, which need libvips.
type imagingEngine struct{}

type rasterImage struct {
	pix      *image.NRGBA
	hasAlpha bool
}

func (i *rasterImage) Width() int     { return i.pix.Bounds().Dx() }
func (i *rasterImage) Height() int    { return i.pix.Bounds().Dy() }
func (i *rasterImage) HasAlpha() bool { return i.hasAlpha }

// Close drops the pixel buffer reference; the Go GC reclaims it.
func (i *rasterImage) Close() { i.pix = nil }

func (imagingEngine) Decode(data []byte, _ AccessMode) (Image, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	pix := imaging.Clone(src)
	return &rasterImage{pix: pix, hasAlpha: !opaque(pix)}, nil
}

func (imagingEngine) AutoOrient(img Image, orientation int) (Image, error) {
	src := img.(*rasterImage)

	var pix *image.NRGBA
	switch orientation {
	case 2:
		pix = imaging.FlipH(src.pix)
	case 3:
		pix = imaging.Rotate180(src.pix)
	case 4:
		pix = imaging.FlipV(src.pix)
	case 5:
		pix = imaging.Transpose(src.pix)
	case 6:
		pix = imaging.Rotate270(src.pix)
	case 7:
		pix = imaging.Transverse(src.pix)
	case 8:
		pix = imaging.Rotate90(src.pix)
	default:
		return img, nil
	}
	return &rasterImage{pix: pix, hasAlpha: src.hasAlpha}, nil
}

func (imagingEngine) Rotate(img Image, angle int) (Image, error) {
	src := img.(*rasterImage)

	// imaging rotates counter-clockwise; the request angle is clockwise.
	var pix *image.NRGBA
	switch angle {
	case 90:
		pix = imaging.Rotate270(src.pix)
	case 180:
		pix = imaging.Rotate180(src.pix)
	case 270:
		pix = imaging.Rotate90(src.pix)
	default:
		return nil, fmt.Errorf("unsupported rotation angle: %d", angle)
	}
	return &rasterImage{pix: pix, hasAlpha: src.hasAlpha}, nil
}

func (imagingEngine) Resize(img Image, scale float64) (Image, error) {
	src := img.(*rasterImage)
	if scale <= 0 {
		return nil, fmt.Errorf("invalid resize scale %f", scale)
	}

	width := int(math.Round(float64(src.Width()) * scale))
	height := int(math.Round(float64(src.Height()) * scale))
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	return &rasterImage{
		pix:      imaging.Resize(src.pix, width, height, imaging.Lanczos),
		hasAlpha: src.hasAlpha,
	}, nil
}

// SmartCrop without libvips falls back to the centered-attention default.
func (imagingEngine) SmartCrop(img Image, width, height int) (Image, error) {
	src := img.(*rasterImage)
	return &rasterImage{
		pix:      imaging.CropAnchor(src.pix, width, height, imaging.Center),
		hasAlpha: src.hasAlpha,
	}, nil
}

// EnsureAlpha is a no-op for NRGBA buffers beyond marking the channel
// present; pixels decoded without alpha are already fully opaque.
func (imagingEngine) EnsureAlpha(img Image) (Image, error) {
	src := img.(*rasterImage)
	if src.hasAlpha {
		return img, nil
	}
	return &rasterImage{pix: imaging.Clone(src.pix), hasAlpha: true}, nil
}

func (imagingEngine) ScaleAlpha(img Image, factor float64) (Image, error) {
	src := img.(*rasterImage)
	if factor < 0 || factor > 1 {
		return nil, fmt.Errorf("alpha factor out of range: %f", factor)
	}

	pix := imaging.Clone(src.pix)
	for i := 3; i < len(pix.Pix); i += 4 {
		pix.Pix[i] = uint8(math.Round(float64(pix.Pix[i]) * factor))
	}
	return &rasterImage{pix: pix, hasAlpha: true}, nil
}

func (imagingEngine) CompositeOver(base, overlay Image, x, y int) (Image, error) {
	b := base.(*rasterImage)
	o := overlay.(*rasterImage)
	return &rasterImage{
		pix:      imaging.Overlay(b.pix, o.pix, image.Pt(x, y), 1.0),
		hasAlpha: b.hasAlpha,
	}, nil
}

func (imagingEngine) PadCenter(img Image, width, height int) (Image, error) {
	src := img.(*rasterImage)
	canvas := imaging.New(width, height, color.White)
	return &rasterImage{
		pix:      imaging.PasteCenter(canvas, src.pix),
		hasAlpha: false,
	}, nil
}

func (imagingEngine) Encode(img Image, format domain.ImageFormat, quality int) ([]byte, error) {
	src := img.(*rasterImage)
	var buf bytes.Buffer

	switch format {
	case domain.FormatJpeg:
		pix := src.pix
		if src.hasAlpha {
			// JPEG has no transparency; flatten onto white like the
			// native engine does.
			canvas := imaging.New(src.Width(), src.Height(), color.White)
			pix = imaging.Overlay(canvas, src.pix, image.Pt(0, 0), 1.0)
		}
		if err := jpeg.Encode(&buf, pix, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case domain.FormatPng:
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&buf, src.pix); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case domain.FormatWebp, domain.FormatHeic:
		return nil, fmt.Errorf("%s export requires the govips build tag", format)
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	return buf.Bytes(), nil
}

// opaque reports whether every pixel is fully opaque.
func opaque(pix *image.NRGBA) bool {
	for i := 3; i < len(pix.Pix); i += 4 {
		if pix.Pix[i] != 0xFF {
			return false
		}
	}
	return true
}
