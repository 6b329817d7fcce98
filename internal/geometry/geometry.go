// Package geometry holds the pure layout math for the transform pipeline:
// aspect-preserving resize targets, smart-crop eligibility, watermark
// target sizing and watermark placement borders. No I/O, deterministic.
package geometry

import (
	"math"

	"github.com/pixelgate/pixelgate/internal/domain"
)

// ResizeTarget computes the output dimensions for a resize request while
// preserving the source aspect ratio. With one dimension requested the other
// is derived by uniform scale; with both requested the result fits within
// both constraints (the smaller scale wins).
func ResizeTarget(origW, origH int, size domain.Size) (int, int) {
	if origW <= 0 || origH <= 0 || size.IsZero() {
		return origW, origH
	}

	var scale float64
	switch {
	case size.Width > 0 && size.Height > 0:
		scale = math.Min(
			float64(size.Width)/float64(origW),
			float64(size.Height)/float64(origH),
		)
	case size.Width > 0:
		scale = float64(size.Width) / float64(origW)
	default:
		scale = float64(size.Height) / float64(origH)
	}

	return atLeastOne(math.Round(float64(origW) * scale)), atLeastOne(math.Round(float64(origH) * scale))
}

// SmartCropEligible reports whether the crop box activates: both dimensions
// present and neither exceeding the source. Smart crop never upscales.
func SmartCropEligible(origW, origH int, crop domain.CropBox) bool {
	if crop.Width <= 0 || crop.Height <= 0 {
		return false
	}
	return origW >= crop.Width && origH >= crop.Height
}

// WatermarkTargetSize scales the watermark uniformly so that its larger
// dimension becomes sizeFactor percent of the corresponding base-image
// dimension: a landscape watermark is sized against the base width, a
// portrait one against the base height.
func WatermarkTargetSize(baseW, baseH, wmW, wmH, sizeFactor int) (int, int) {
	if wmW <= 0 || wmH <= 0 || sizeFactor <= 0 {
		return wmW, wmH
	}

	var scale float64
	if wmW >= wmH {
		targetW := float64(baseW) * float64(sizeFactor) / 100
		scale = targetW / float64(wmW)
	} else {
		targetH := float64(baseH) * float64(sizeFactor) / 100
		scale = targetH / float64(wmH)
	}

	return atLeastOne(math.Round(float64(wmW) * scale)), atLeastOne(math.Round(float64(wmH) * scale))
}

// WatermarkBorders computes the margins around a watermark of wmW x wmH
// placed on a baseW x baseH image.
//
// For Point positions a non-negative offset anchors to the left/top edge
// with that margin; a negative offset anchors to the right/bottom edge with
// the absolute value as margin. For Center positions the watermark is
// centered and displaced by (DX, DY). Composite callers use (left, top) as
// the overlay offset.
func WatermarkBorders(baseW, baseH, wmW, wmH int, pos domain.WatermarkPosition) (left, top, right, bottom int) {
	switch pos.Kind {
	case domain.PositionCenter:
		left = (baseW-wmW)/2 + pos.DX
		top = (baseH-wmH)/2 + pos.DY
	default:
		if pos.DX >= 0 {
			left = pos.DX
		} else {
			left = baseW - wmW + pos.DX
		}
		if pos.DY >= 0 {
			top = pos.DY
		} else {
			top = baseH - wmH + pos.DY
		}
	}

	right = baseW - wmW - left
	bottom = baseH - wmH - top
	return left, top, right, bottom
}

func atLeastOne(v float64) int {
	if v < 1 {
		return 1
	}
	return int(v)
}
