package pipeline

import (
	"github.com/pixelgate/pixelgate/internal/domain"
)

// AccessMode selects the decode strategy. Sequential decode is a single
// forward pass and cannot feed operations that revisit earlier rows, so any
// rotation correction requires AccessRandom.
type AccessMode int

const (
	AccessSequential AccessMode = iota
	AccessRandom
)

// Image is an opaque decoded-image handle owned by exactly one pipeline
// stage at a time. Close releases the backing resources immediately;
// callers must not use the handle afterwards.
type Image interface {
	Width() int
	Height() int
	HasAlpha() bool
	Close()
}

// Engine is the pixel-manipulation capability set the pipeline depends on.
// Every operation consumes a handle and returns a fresh one; implementations
// that mutate in place may return the same handle, and callers release the
// input only when a different handle comes back.
type Engine interface {
	Decode(data []byte, mode AccessMode) (Image, error)

	// AutoOrient corrects a non-identity EXIF orientation. The orientation
	// value is passed in because not every engine can re-read metadata from
	// a decoded handle.
	AutoOrient(img Image, orientation int) (Image, error)

	// Rotate turns the image clockwise by a multiple of 90 degrees.
	Rotate(img Image, angle int) (Image, error)

	// Resize scales both dimensions uniformly.
	Resize(img Image, scale float64) (Image, error)

	// SmartCrop extracts a width x height box around the most interesting
	// region, falling back to centered attention.
	SmartCrop(img Image, width, height int) (Image, error)

	// EnsureAlpha synthesizes a fully-opaque alpha channel when missing.
	EnsureAlpha(img Image) (Image, error)

	// ScaleAlpha multiplies only the alpha channel by factor (0..1); color
	// channels stay untouched.
	ScaleAlpha(img Image, factor float64) (Image, error)

	// CompositeOver alpha-composites overlay onto base with its top-left
	// corner at (x, y), using the "over" blend.
	CompositeOver(base, overlay Image, x, y int) (Image, error)

	// PadCenter places the image on a width x height white canvas, centered.
	PadCenter(img Image, width, height int) (Image, error)

	// Encode serializes the image with format-specific parameters.
	Encode(img Image, format domain.ImageFormat, quality int) ([]byte, error)
}
