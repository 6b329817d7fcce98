package pipeline

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"testing"

	"github.com/pixelgate/pixelgate/internal/domain"
)

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	processor, err := NewProcessor(log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	return processor
}

func solidPNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func decodeOutput(t *testing.T, out EncodedOutput) image.Image {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("decode pipeline output: %v", err)
	}
	return img
}

var (
	white = color.NRGBA{255, 255, 255, 255}
	red   = color.NRGBA{255, 0, 0, 255}
)

func samePixel(got color.Color, want color.NRGBA) bool {
	r, g, b, _ := got.RGBA()
	return uint8(r>>8) == want.R && uint8(g>>8) == want.G && uint8(b>>8) == want.B
}

func TestProcessJpegPassthroughKeepsDimensions(t *testing.T) {
	p := newTestProcessor(t)

	out, err := p.Process(domain.TransformRequest{
		Format:  domain.FormatJpeg,
		Quality: 80,
	}, solidPNG(t, 240, 180, red), nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if out.ContentType() != "image/jpeg" {
		t.Fatalf("unexpected content type: %s", out.ContentType())
	}
	decoded := decodeOutput(t, out)
	if decoded.Bounds().Dx() != 240 || decoded.Bounds().Dy() != 180 {
		t.Fatalf("expected 240x180, got %v", decoded.Bounds())
	}
}

func TestProcessResizeBothDimensions(t *testing.T) {
	p := newTestProcessor(t)

	out, err := p.Process(domain.TransformRequest{
		Format:  domain.FormatJpeg,
		Quality: 80,
		Size:    domain.Size{Width: 100, Height: 100},
	}, solidPNG(t, 533, 533, red), nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	decoded := decodeOutput(t, out)
	if decoded.Bounds().Dx() != 100 || decoded.Bounds().Dy() != 100 {
		t.Fatalf("expected 100x100, got %v", decoded.Bounds())
	}
}

func TestProcessResizeWidthOnlyPreservesAspect(t *testing.T) {
	p := newTestProcessor(t)

	out, err := p.Process(domain.TransformRequest{
		Format:  domain.FormatPng,
		Quality: 80,
		Size:    domain.Size{Width: 100},
	}, solidPNG(t, 400, 200, red), nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	decoded := decodeOutput(t, out)
	if decoded.Bounds().Dx() != 100 || decoded.Bounds().Dy() != 50 {
		t.Fatalf("expected 100x50, got %v", decoded.Bounds())
	}
}

func TestProcessSmartCrop(t *testing.T) {
	p := newTestProcessor(t)
	src := solidPNG(t, 500, 500, red)

	out, err := p.Process(domain.TransformRequest{
		Format:  domain.FormatPng,
		Quality: 80,
		Crop:    domain.CropBox{Width: 120, Height: 100},
	}, src, nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	decoded := decodeOutput(t, out)
	if decoded.Bounds().Dx() != 120 || decoded.Bounds().Dy() != 100 {
		t.Fatalf("expected 120x100, got %v", decoded.Bounds())
	}

	// Crop larger than the source is silently skipped, never upscaled.
	out, err = p.Process(domain.TransformRequest{
		Format:  domain.FormatPng,
		Quality: 80,
		Crop:    domain.CropBox{Width: 600, Height: 600},
	}, src, nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	decoded = decodeOutput(t, out)
	if decoded.Bounds().Dx() != 500 || decoded.Bounds().Dy() != 500 {
		t.Fatalf("expected uncropped 500x500, got %v", decoded.Bounds())
	}
}

func TestProcessRotationSwapsDimensions(t *testing.T) {
	p := newTestProcessor(t)

	out, err := p.Process(domain.TransformRequest{
		Format:   domain.FormatPng,
		Quality:  80,
		Rotation: 90,
	}, solidPNG(t, 200, 100, red), nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	decoded := decodeOutput(t, out)
	if decoded.Bounds().Dx() != 100 || decoded.Bounds().Dy() != 200 {
		t.Fatalf("expected 100x200 after 90 degree rotation, got %v", decoded.Bounds())
	}
}

func TestProcessWatermarkBottomRightAnchor(t *testing.T) {
	p := newTestProcessor(t)

	out, err := p.Process(domain.TransformRequest{
		Format:  domain.FormatPng,
		Quality: 80,
		Watermarks: []domain.Watermark{
			{ImageAddress: "wm.png", Size: 5, Alpha: 1.0, Position: domain.WatermarkPosition{
				Kind: domain.PositionPoint, DX: -10, DY: -10,
			}},
		},
	}, solidPNG(t, 200, 200, white), []WatermarkInput{
		{
			Spec: domain.Watermark{ImageAddress: "wm.png", Size: 5, Alpha: 1.0, Position: domain.WatermarkPosition{
				Kind: domain.PositionPoint, DX: -10, DY: -10,
			}},
			Data: solidPNG(t, 10, 10, red),
		},
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	decoded := decodeOutput(t, out)
	// Size factor 5 on a 200px base keeps the 10x10 watermark as-is, so its
	// bottom-right corner sits 10px in from the base's bottom-right corner.
	if !samePixel(decoded.At(185, 185), red) {
		t.Fatalf("expected watermark pixel at (185,185), got %v", decoded.At(185, 185))
	}
	if !samePixel(decoded.At(175, 175), white) {
		t.Fatalf("expected base pixel at (175,175), got %v", decoded.At(175, 175))
	}
	if !samePixel(decoded.At(195, 195), white) {
		t.Fatalf("expected 10px margin at (195,195), got %v", decoded.At(195, 195))
	}
}

func TestProcessWatermarkZeroAlphaLeavesBaseIdentical(t *testing.T) {
	p := newTestProcessor(t)
	base := solidPNG(t, 64, 64, white)
	wm := domain.Watermark{ImageAddress: "wm.png", Size: 20, Alpha: 0.0}

	plain, err := p.Process(domain.TransformRequest{Format: domain.FormatPng, Quality: 80}, base, nil)
	if err != nil {
		t.Fatalf("process without watermark: %v", err)
	}

	ghosted, err := p.Process(domain.TransformRequest{
		Format:     domain.FormatPng,
		Quality:    80,
		Watermarks: []domain.Watermark{wm},
	}, base, []WatermarkInput{{Spec: wm, Data: solidPNG(t, 16, 16, red)}})
	if err != nil {
		t.Fatalf("process with zero-alpha watermark: %v", err)
	}

	if !bytes.Equal(plain.Data, ghosted.Data) {
		t.Fatal("zero-alpha watermark must leave the base image pixel-identical")
	}
}

func TestProcessFullOpacityWatermarkIsIdempotent(t *testing.T) {
	p := newTestProcessor(t)
	base := solidPNG(t, 100, 100, white)
	wm := domain.Watermark{ImageAddress: "wm.png", Size: 10, Alpha: 1.0, Position: domain.WatermarkPosition{
		Kind: domain.PositionPoint, DX: 20, DY: 20,
	}}
	wmData := solidPNG(t, 10, 10, red)

	once, err := p.Process(domain.TransformRequest{
		Format:     domain.FormatPng,
		Quality:    80,
		Watermarks: []domain.Watermark{wm},
	}, base, []WatermarkInput{{Spec: wm, Data: wmData}})
	if err != nil {
		t.Fatalf("process with one watermark: %v", err)
	}

	twice, err := p.Process(domain.TransformRequest{
		Format:     domain.FormatPng,
		Quality:    80,
		Watermarks: []domain.Watermark{wm, wm},
	}, base, []WatermarkInput{
		{Spec: wm, Data: wmData},
		{Spec: wm, Data: wmData},
	})
	if err != nil {
		t.Fatalf("process with the watermark twice: %v", err)
	}

	if !bytes.Equal(once.Data, twice.Data) {
		t.Fatal("compositing a fully opaque watermark twice must equal compositing it once")
	}
}

func TestProcessKeepsWatermarkOwnTransparency(t *testing.T) {
	p := newTestProcessor(t)
	base := solidPNG(t, 100, 100, white)
	wm := domain.Watermark{ImageAddress: "wm.png", Size: 10, Alpha: 1.0}

	plain, err := p.Process(domain.TransformRequest{Format: domain.FormatPng, Quality: 80}, base, nil)
	if err != nil {
		t.Fatalf("process without watermark: %v", err)
	}

	// A watermark whose own pixels are fully transparent already carries an
	// alpha channel, so no opaque channel may be synthesized over it.
	ghosted, err := p.Process(domain.TransformRequest{
		Format:     domain.FormatPng,
		Quality:    80,
		Watermarks: []domain.Watermark{wm},
	}, base, []WatermarkInput{{Spec: wm, Data: solidPNG(t, 10, 10, color.NRGBA{255, 0, 0, 0})}})
	if err != nil {
		t.Fatalf("process with transparent watermark: %v", err)
	}

	if !bytes.Equal(plain.Data, ghosted.Data) {
		t.Fatal("a fully transparent watermark must leave the base image pixel-identical")
	}
}

func TestProcessSkipsUndecodableWatermark(t *testing.T) {
	p := newTestProcessor(t)

	good := domain.Watermark{ImageAddress: "good.png", Size: 5, Alpha: 1.0, Position: domain.WatermarkPosition{
		Kind: domain.PositionPoint, DX: 10, DY: 10,
	}}
	bad := domain.Watermark{ImageAddress: "bad.png", Size: 5, Alpha: 1.0}

	out, err := p.Process(domain.TransformRequest{
		Format:     domain.FormatPng,
		Quality:    80,
		Watermarks: []domain.Watermark{bad, good},
	}, solidPNG(t, 200, 200, white), []WatermarkInput{
		{Spec: bad, Data: []byte("definitely not an image")},
		{Spec: good, Data: solidPNG(t, 10, 10, red)},
	})
	if err != nil {
		t.Fatalf("a bad watermark must not fail the request: %v", err)
	}

	decoded := decodeOutput(t, out)
	// The surviving watermark keeps its own placement.
	if !samePixel(decoded.At(15, 15), red) {
		t.Fatalf("expected surviving watermark at (15,15), got %v", decoded.At(15, 15))
	}
}

func TestProcessSquarePadsWhiteCentered(t *testing.T) {
	p := newTestProcessor(t)

	out, err := p.Process(domain.TransformRequest{
		Format:  domain.FormatPng,
		Quality: 80,
		Square:  true,
	}, solidPNG(t, 100, 50, red), nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	decoded := decodeOutput(t, out)
	if decoded.Bounds().Dx() != 100 || decoded.Bounds().Dy() != 100 {
		t.Fatalf("expected 100x100 square, got %v", decoded.Bounds())
	}
	if !samePixel(decoded.At(50, 10), white) {
		t.Fatalf("expected white padding above content, got %v", decoded.At(50, 10))
	}
	if !samePixel(decoded.At(50, 50), red) {
		t.Fatalf("expected centered content, got %v", decoded.At(50, 50))
	}
	if !samePixel(decoded.At(50, 90), white) {
		t.Fatalf("expected white padding below content, got %v", decoded.At(50, 90))
	}
}

func TestProcessEncodeIsDeterministic(t *testing.T) {
	p := newTestProcessor(t)
	src := solidPNG(t, 120, 80, red)
	req := domain.TransformRequest{Format: domain.FormatJpeg, Quality: 60}

	first, err := p.Process(req, src, nil)
	if err != nil {
		t.Fatalf("first process: %v", err)
	}
	second, err := p.Process(req, src, nil)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}

	if !bytes.Equal(first.Data, second.Data) {
		t.Fatal("identical input and parameters must produce identical bytes")
	}
}

func TestProcessUndecodableMainIsFatal(t *testing.T) {
	p := newTestProcessor(t)

	_, err := p.Process(domain.TransformRequest{Format: domain.FormatJpeg, Quality: 80}, []byte("garbage"), nil)
	if !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("expected ErrDecodeFailed, got %v", err)
	}
}
