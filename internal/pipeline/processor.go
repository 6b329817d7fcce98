package pipeline

import (
	"errors"
	"fmt"
	"log"

	"github.com/pixelgate/pixelgate/internal/domain"
	"github.com/pixelgate/pixelgate/internal/exif"
	"github.com/pixelgate/pixelgate/internal/geometry"
)

var (
	// ErrDecodeFailed means the engine rejected the main image bytes.
	ErrDecodeFailed = errors.New("image decode failed")
	// ErrEncodeFailed means the engine could not produce output bytes.
	ErrEncodeFailed = errors.New("image encode failed")
)

// WatermarkInput pairs a watermark spec with its fetched bytes. The pairing
// is established at fetch time and carried together from then on, so a
// failed watermark download can never shift the mapping of the survivors.
type WatermarkInput struct {
	Spec domain.Watermark
	Data []byte
}

// EncodedOutput is the terminal pipeline product: owned bytes plus the
// format they were encoded in and the final pixel dimensions.
type EncodedOutput struct {
	Data   []byte
	Format domain.ImageFormat
	Width  int
	Height int
}

func (o EncodedOutput) ContentType() string {
	return o.Format.MIME()
}

// Processor runs the full compositing pipeline synchronously. It performs
// no I/O; callers hand it pre-fetched buffers and run it on the compute
// pool.
type Processor struct {
	engine Engine
	logger *log.Logger
}

func NewProcessor(logger *log.Logger) (*Processor, error) {
	engine, err := newEngine()
	if err != nil {
		return nil, fmt.Errorf("build image engine: %w", err)
	}
	return &Processor{engine: engine, logger: logger}, nil
}

// NewProcessorWithEngine is used by tests to pin a specific engine.
func NewProcessorWithEngine(engine Engine, logger *log.Logger) *Processor {
	return &Processor{engine: engine, logger: logger}
}

// run is one pipeline execution. It owns exactly one working handle at a
// time and releases superseded handles as soon as a step produces a new
// one, on success and failure paths alike.
type run struct {
	img Image
}

// step installs the result of an engine operation as the new working
// handle, releasing the previous one if the engine returned a fresh handle.
func (r *run) step(next Image, err error) error {
	if err != nil {
		return err
	}
	if next != r.img {
		r.img.Close()
	}
	r.img = next
	return nil
}

func (r *run) close() {
	if r.img != nil {
		r.img.Close()
		r.img = nil
	}
}

// Process decodes the main buffer, applies rotation, smart crop, resize,
// the watermark sequence, square padding, and encodes the result.
//
// Main-image decode and every geometric/encode step are fatal. A watermark
// that fails to decode is skipped with a warning; the remaining watermarks
// keep their own specs and composite order.
func (p *Processor) Process(req domain.TransformRequest, main []byte, watermarks []WatermarkInput) (EncodedOutput, error) {
	orientation := exif.Orientation(main)
	mode := AccessSequential
	if exif.NeedsRotation(main, req.Rotation) {
		mode = AccessRandom
	}

	img, err := p.engine.Decode(main, mode)
	if err != nil {
		return EncodedOutput{}, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	r := &run{img: img}
	defer r.close()

	if orientation > 1 {
		if err := r.step(p.engine.AutoOrient(r.img, orientation)); err != nil {
			return EncodedOutput{}, fmt.Errorf("auto-orient: %w", err)
		}
	}
	if req.Rotation != 0 {
		if err := r.step(p.engine.Rotate(r.img, req.Rotation)); err != nil {
			return EncodedOutput{}, fmt.Errorf("rotate %d: %w", req.Rotation, err)
		}
	}

	if geometry.SmartCropEligible(r.img.Width(), r.img.Height(), req.Crop) {
		if err := r.step(p.engine.SmartCrop(r.img, req.Crop.Width, req.Crop.Height)); err != nil {
			return EncodedOutput{}, fmt.Errorf("smart crop %dx%d: %w", req.Crop.Width, req.Crop.Height, err)
		}
	}

	if !req.Size.IsZero() {
		targetW, _ := geometry.ResizeTarget(r.img.Width(), r.img.Height(), req.Size)
		scale := float64(targetW) / float64(r.img.Width())
		if err := r.step(p.engine.Resize(r.img, scale)); err != nil {
			return EncodedOutput{}, fmt.Errorf("resize to %+v: %w", req.Size, err)
		}
	}

	for _, wm := range watermarks {
		if err := p.applyWatermark(r, wm); err != nil {
			return EncodedOutput{}, err
		}
	}

	if req.Square {
		size := r.img.Width()
		if r.img.Height() > size {
			size = r.img.Height()
		}
		if err := r.step(p.engine.PadCenter(r.img, size, size)); err != nil {
			return EncodedOutput{}, fmt.Errorf("square pad to %d: %w", size, err)
		}
	}

	width, height := r.img.Width(), r.img.Height()
	data, err := p.engine.Encode(r.img, req.Format, req.Quality)
	if err != nil {
		return EncodedOutput{}, fmt.Errorf("%w: encode %s q=%d: %v", ErrEncodeFailed, req.Format, req.Quality, err)
	}

	// Release native resources now instead of waiting for scope end; the
	// compute pool runs many of these concurrently.
	r.close()

	return EncodedOutput{Data: data, Format: req.Format, Width: width, Height: height}, nil
}

// applyWatermark resizes, alpha-adjusts and composites one watermark onto
// the working image. A decode failure of the watermark bytes is the
// pipeline's only soft-fail: the working image stays unchanged.
func (p *Processor) applyWatermark(r *run, input WatermarkInput) error {
	decoded, err := p.engine.Decode(input.Data, AccessRandom)
	if err != nil {
		p.logger.Printf("skipping undecodable watermark address=%s err=%v", input.Spec.ImageAddress, err)
		return nil
	}
	wm := &run{img: decoded}
	defer wm.close()

	targetW, targetH := geometry.WatermarkTargetSize(
		r.img.Width(), r.img.Height(),
		wm.img.Width(), wm.img.Height(),
		input.Spec.Size,
	)

	if targetW != wm.img.Width() {
		scale := float64(targetW) / float64(wm.img.Width())
		if err := wm.step(p.engine.Resize(wm.img, scale)); err != nil {
			return fmt.Errorf("resize watermark %s: %w", input.Spec.ImageAddress, err)
		}
	}

	if !wm.img.HasAlpha() {
		if err := wm.step(p.engine.EnsureAlpha(wm.img)); err != nil {
			return fmt.Errorf("add watermark alpha channel: %w", err)
		}
	}
	if err := wm.step(p.engine.ScaleAlpha(wm.img, input.Spec.Alpha)); err != nil {
		return fmt.Errorf("scale watermark alpha: %w", err)
	}

	left, top, _, _ := geometry.WatermarkBorders(
		r.img.Width(), r.img.Height(),
		targetW, targetH,
		input.Spec.Position,
	)

	if err := r.step(p.engine.CompositeOver(r.img, wm.img, left, top)); err != nil {
		return fmt.Errorf("composite watermark %s: %w", input.Spec.ImageAddress, err)
	}
	return nil
}
