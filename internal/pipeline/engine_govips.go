//go:build govips && cgo

package pipeline

import (
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/pixelgate/pixelgate/internal/domain"
)

// govipsEngine backs the capability set with libvips. Operations mutate the
// underlying ImageRef and return the same handle; the pipeline's ownership
// bookkeeping handles both styles.
type govipsEngine struct{}

type vipsImage struct {
	ref *vips.ImageRef
}

func (i *vipsImage) Width() int     { return i.ref.Width() }
func (i *vipsImage) Height() int    { return i.ref.Height() }
func (i *vipsImage) HasAlpha() bool { return i.ref.HasAlpha() }
func (i *vipsImage) Close()         { i.ref.Close() }

// Decode loads the buffer. libvips defers pixel reads until operations pull
// them, so the access mode only matters for rotation correctness, which the
// caller guarantees by requesting AccessRandom whenever rotation applies.
func (govipsEngine) Decode(data []byte, _ AccessMode) (Image, error) {
	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return &vipsImage{ref: ref}, nil
}

func (govipsEngine) AutoOrient(img Image, _ int) (Image, error) {
	src := img.(*vipsImage)
	if err := src.ref.AutoRotate(); err != nil {
		return nil, fmt.Errorf("auto rotate: %w", err)
	}
	return img, nil
}

func (govipsEngine) Rotate(img Image, angle int) (Image, error) {
	src := img.(*vipsImage)

	var vipsAngle vips.Angle
	switch angle {
	case 90:
		vipsAngle = vips.Angle90
	case 180:
		vipsAngle = vips.Angle180
	case 270:
		vipsAngle = vips.Angle270
	default:
		return nil, fmt.Errorf("unsupported rotation angle: %d", angle)
	}

	if err := src.ref.Rotate(vipsAngle); err != nil {
		return nil, fmt.Errorf("rotate: %w", err)
	}
	return img, nil
}

func (govipsEngine) Resize(img Image, scale float64) (Image, error) {
	src := img.(*vipsImage)
	if scale <= 0 {
		return nil, fmt.Errorf("invalid resize scale %f", scale)
	}
	if err := src.ref.Resize(scale, vips.KernelLanczos3); err != nil {
		return nil, fmt.Errorf("resize: %w", err)
	}
	return img, nil
}

func (govipsEngine) SmartCrop(img Image, width, height int) (Image, error) {
	src := img.(*vipsImage)
	if err := src.ref.SmartCrop(width, height, vips.InterestingCentre); err != nil {
		return nil, fmt.Errorf("smart crop: %w", err)
	}
	return img, nil
}

func (govipsEngine) EnsureAlpha(img Image) (Image, error) {
	src := img.(*vipsImage)
	if src.ref.HasAlpha() {
		return img, nil
	}
	if err := src.ref.AddAlpha(); err != nil {
		return nil, fmt.Errorf("add alpha band: %w", err)
	}
	return img, nil
}

// ScaleAlpha multiplies the alpha band by factor through a linear transform
// with zero additive offset; color bands pass through with unit slope.
func (govipsEngine) ScaleAlpha(img Image, factor float64) (Image, error) {
	src := img.(*vipsImage)
	if err := src.ref.Linear([]float64{1, 1, 1, factor}, []float64{0, 0, 0, 0}); err != nil {
		return nil, fmt.Errorf("scale alpha band: %w", err)
	}
	return img, nil
}

func (govipsEngine) CompositeOver(base, overlay Image, x, y int) (Image, error) {
	b := base.(*vipsImage)
	o := overlay.(*vipsImage)
	if err := b.ref.Composite(o.ref, vips.BlendModeOver, x, y); err != nil {
		return nil, fmt.Errorf("composite over: %w", err)
	}
	return base, nil
}

func (govipsEngine) PadCenter(img Image, width, height int) (Image, error) {
	src := img.(*vipsImage)
	left := (width - src.ref.Width()) / 2
	top := (height - src.ref.Height()) / 2
	if err := src.ref.Embed(left, top, width, height, vips.ExtendWhite); err != nil {
		return nil, fmt.Errorf("pad to %dx%d: %w", width, height, err)
	}
	return img, nil
}

func (govipsEngine) Encode(img Image, format domain.ImageFormat, quality int) ([]byte, error) {
	src := img.(*vipsImage)

	switch format {
	case domain.FormatJpeg:
		if src.ref.HasAlpha() {
			if err := src.ref.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
				return nil, fmt.Errorf("flatten for jpeg: %w", err)
			}
		}
		params := vips.NewJpegExportParams()
		params.Quality = quality
		params.OptimizeCoding = true
		params.Interlace = true
		data, _, err := src.ref.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	case domain.FormatWebp:
		params := vips.NewWebpExportParams()
		params.Quality = quality
		// Low effort keeps encode time bounded.
		params.ReductionEffort = 2
		data, _, err := src.ref.ExportWebp(params)
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		return data, nil
	case domain.FormatPng:
		params := vips.NewPngExportParams()
		params.Quality = quality
		params.Bitdepth = 8
		data, _, err := src.ref.ExportPng(params)
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	case domain.FormatHeic:
		params := vips.NewHeifExportParams()
		params.Quality = quality
		data, _, err := src.ref.ExportHeif(params)
		if err != nil {
			return nil, fmt.Errorf("encode heic: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
