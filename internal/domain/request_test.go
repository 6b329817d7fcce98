package domain

import (
	"errors"
	"net/url"
	"testing"
)

func TestParseTransformRequestFull(t *testing.T) {
	values, err := url.ParseQuery(
		"image_address=files/1/photo.jpg&format=webp&w=800&h=600&crop_w=400&crop_h=400" +
			"&rotation=90&quality=50&square=true" +
			"&watermarks[0].image_address=wm.png&watermarks[0].size=40&watermarks[0].alpha=0.5" +
			"&watermarks[0].x=10&watermarks[0].y=-10&watermarks[0].position=point" +
			"&watermarks[1].image_address=logo.png&watermarks[1].size=20&watermarks[1].position=center",
	)
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}

	req, err := ParseTransformRequest(values)
	if err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}

	if req.Format != FormatWebp {
		t.Fatalf("expected webp format, got %s", req.Format)
	}
	if req.Size.Width != 800 || req.Size.Height != 600 {
		t.Fatalf("unexpected size: %+v", req.Size)
	}
	if req.Crop.Width != 400 || req.Crop.Height != 400 {
		t.Fatalf("unexpected crop: %+v", req.Crop)
	}
	if req.Rotation != 90 || req.Quality != 50 || !req.Square {
		t.Fatalf("unexpected rotation/quality/square: %d/%d/%v", req.Rotation, req.Quality, req.Square)
	}
	if len(req.Watermarks) != 2 {
		t.Fatalf("expected 2 watermarks, got %d", len(req.Watermarks))
	}

	first := req.Watermarks[0]
	if first.ImageAddress != "wm.png" || first.Size != 40 || first.Alpha != 0.5 {
		t.Fatalf("unexpected first watermark: %+v", first)
	}
	if first.Position.Kind != PositionPoint || first.Position.DX != 10 || first.Position.DY != -10 {
		t.Fatalf("unexpected first watermark position: %+v", first.Position)
	}

	second := req.Watermarks[1]
	if second.Position.Kind != PositionCenter {
		t.Fatalf("expected center position, got %+v", second.Position)
	}
	if second.Alpha != 1.0 {
		t.Fatalf("expected default alpha 1.0, got %v", second.Alpha)
	}
}

func TestParseTransformRequestDefaults(t *testing.T) {
	req, err := ParseTransformRequest(url.Values{
		"image_address": {"img-test.jpg"},
		"format":        {"jpeg"},
	})
	if err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}
	if req.Quality != 75 {
		t.Fatalf("expected default quality 75, got %d", req.Quality)
	}
	if !req.Size.IsZero() || req.Rotation != 0 || req.Square {
		t.Fatalf("expected zero-valued optionals, got %+v", req)
	}
}

func TestParseTransformRequestRejectsBadInput(t *testing.T) {
	cases := map[string]url.Values{
		"missing address": {"format": {"jpeg"}},
		"missing format":  {"image_address": {"a.jpg"}},
		"bad format":      {"image_address": {"a.jpg"}, "format": {"bmp"}},
		"bad rotation":    {"image_address": {"a.jpg"}, "format": {"jpeg"}, "rotation": {"45"}},
		"quality range":   {"image_address": {"a.jpg"}, "format": {"jpeg"}, "quality": {"101"}},
		"negative width":  {"image_address": {"a.jpg"}, "format": {"jpeg"}, "w": {"-5"}},
		"watermark size": {
			"image_address":               {"a.jpg"},
			"format":                      {"jpeg"},
			"watermarks[0].image_address": {"wm.png"},
			"watermarks[0].size":          {"0"},
		},
		"watermark alpha": {
			"image_address":               {"a.jpg"},
			"format":                      {"jpeg"},
			"watermarks[0].image_address": {"wm.png"},
			"watermarks[0].size":          {"20"},
			"watermarks[0].alpha":         {"1.5"},
		},
	}

	for name, values := range cases {
		if _, err := ParseTransformRequest(values); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("%s: expected ErrInvalidRequest, got %v", name, err)
		}
	}
}

func TestParseImageFormatAliases(t *testing.T) {
	format, err := ParseImageFormat("JPG")
	if err != nil {
		t.Fatalf("expected jpg alias to parse: %v", err)
	}
	if format != FormatJpeg {
		t.Fatalf("expected jpeg, got %s", format)
	}
	if format.MIME() != "image/jpeg" {
		t.Fatalf("unexpected mime: %s", format.MIME())
	}
}

func TestApplyQualityRules(t *testing.T) {
	req := TransformRequest{ImageAddress: "files/9/thumb_400X400.jpg", Quality: 90}
	ApplyQualityRules(&req, DefaultQualityRules())
	if req.Quality != 68 {
		t.Fatalf("expected override to 68, got %d", req.Quality)
	}

	untouched := TransformRequest{ImageAddress: "files/9/photo.jpg", Quality: 90}
	ApplyQualityRules(&untouched, DefaultQualityRules())
	if untouched.Quality != 90 {
		t.Fatalf("expected quality to stay 90, got %d", untouched.Quality)
	}
}
