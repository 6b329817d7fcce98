package domain

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidRequest marks client-caused parameter errors. Handlers map it to
// a 400 response.
var ErrInvalidRequest = errors.New("invalid request parameters")

type ImageFormat string

const (
	FormatJpeg ImageFormat = "jpeg"
	FormatPng  ImageFormat = "png"
	FormatWebp ImageFormat = "webp"
	FormatHeic ImageFormat = "heic"
)

func ParseImageFormat(raw string) (ImageFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "jpeg", "jpg":
		return FormatJpeg, nil
	case "png":
		return FormatPng, nil
	case "webp":
		return FormatWebp, nil
	case "heic":
		return FormatHeic, nil
	default:
		return "", fmt.Errorf("%w: unsupported format %q", ErrInvalidRequest, raw)
	}
}

func (f ImageFormat) MIME() string {
	return "image/" + string(f)
}

// Size is a requested target size. Zero means the dimension is unset; the
// geometry engine derives it from the aspect ratio.
type Size struct {
	Width  int
	Height int
}

func (s Size) IsZero() bool {
	return s.Width == 0 && s.Height == 0
}

// CropBox is a requested smart-crop box. Both dimensions must be set and fit
// inside the source image for the crop to activate.
type CropBox struct {
	Width  int
	Height int
}

type PositionKind int

const (
	// PositionPoint anchors the watermark to an edge: a non-negative offset
	// measures margin from the left/top edge, a negative offset measures
	// margin from the right/bottom edge.
	PositionPoint PositionKind = iota
	// PositionCenter centers the watermark and displaces it by (DX, DY).
	PositionCenter
)

type WatermarkPosition struct {
	Kind PositionKind
	DX   int
	DY   int
}

// Watermark describes one overlay. Size is a percentage of the base image's
// reference dimension, Alpha a 0..1 opacity multiplier on the alpha channel.
type Watermark struct {
	ImageAddress string
	Size         int
	Alpha        float64
	Position     WatermarkPosition
}

type TransformRequest struct {
	ImageAddress string
	Size         Size
	Crop         CropBox
	Rotation     int
	Format       ImageFormat
	Quality      int
	Watermarks   []Watermark
	Square       bool
}

const defaultQuality = 75

// ParseTransformRequest builds a TransformRequest from query-string values.
// All failures wrap ErrInvalidRequest.
func ParseTransformRequest(values url.Values) (TransformRequest, error) {
	req := TransformRequest{Quality: defaultQuality}

	req.ImageAddress = strings.TrimSpace(values.Get("image_address"))
	if req.ImageAddress == "" {
		return TransformRequest{}, fmt.Errorf("%w: image_address is required", ErrInvalidRequest)
	}

	format, err := ParseImageFormat(values.Get("format"))
	if err != nil {
		return TransformRequest{}, err
	}
	req.Format = format

	if req.Size.Width, err = intParam(values, "w"); err != nil {
		return TransformRequest{}, err
	}
	if req.Size.Height, err = intParam(values, "h"); err != nil {
		return TransformRequest{}, err
	}
	if req.Crop.Width, err = intParam(values, "crop_w"); err != nil {
		return TransformRequest{}, err
	}
	if req.Crop.Height, err = intParam(values, "crop_h"); err != nil {
		return TransformRequest{}, err
	}
	if req.Size.Width < 0 || req.Size.Height < 0 || req.Crop.Width < 0 || req.Crop.Height < 0 {
		return TransformRequest{}, fmt.Errorf("%w: dimensions must be positive", ErrInvalidRequest)
	}

	if raw := values.Get("rotation"); raw != "" {
		rotation, err := strconv.Atoi(raw)
		if err != nil || (rotation != 0 && rotation != 90 && rotation != 180 && rotation != 270) {
			return TransformRequest{}, fmt.Errorf("%w: rotation must be one of 0, 90, 180, 270", ErrInvalidRequest)
		}
		req.Rotation = rotation
	}

	if raw := values.Get("quality"); raw != "" {
		quality, err := strconv.Atoi(raw)
		if err != nil || quality < 1 || quality > 100 {
			return TransformRequest{}, fmt.Errorf("%w: quality must be between 1 and 100", ErrInvalidRequest)
		}
		req.Quality = quality
	}

	if raw := values.Get("square"); raw != "" {
		square, err := strconv.ParseBool(raw)
		if err != nil {
			return TransformRequest{}, fmt.Errorf("%w: square must be a boolean", ErrInvalidRequest)
		}
		req.Square = square
	}

	watermarks, err := parseWatermarks(values)
	if err != nil {
		return TransformRequest{}, err
	}
	req.Watermarks = watermarks

	return req, nil
}

func intParam(values url.Values, key string) (int, error) {
	raw := values.Get(key)
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidRequest, key)
	}
	return parsed, nil
}

// parseWatermarks collects watermarks[i].<field> keys. Indexes may be sparse
// in the query string but the result preserves ascending index order, which
// defines composite z-order.
func parseWatermarks(values url.Values) ([]Watermark, error) {
	fields := make(map[int]map[string]string)
	for key := range values {
		index, field, ok := splitWatermarkKey(key)
		if !ok {
			continue
		}
		if fields[index] == nil {
			fields[index] = make(map[string]string)
		}
		fields[index][field] = values.Get(key)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	indexes := make([]int, 0, len(fields))
	for index := range fields {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	watermarks := make([]Watermark, 0, len(indexes))
	for _, index := range indexes {
		wm, err := buildWatermark(index, fields[index])
		if err != nil {
			return nil, err
		}
		watermarks = append(watermarks, wm)
	}
	return watermarks, nil
}

func splitWatermarkKey(key string) (int, string, bool) {
	const prefix = "watermarks["
	if !strings.HasPrefix(key, prefix) {
		return 0, "", false
	}
	rest := key[len(prefix):]
	close := strings.Index(rest, "].")
	if close < 1 {
		return 0, "", false
	}
	index, err := strconv.Atoi(rest[:close])
	if err != nil || index < 0 {
		return 0, "", false
	}
	return index, rest[close+2:], true
}

func buildWatermark(index int, fields map[string]string) (Watermark, error) {
	wm := Watermark{Alpha: 1.0}

	wm.ImageAddress = strings.TrimSpace(fields["image_address"])
	if wm.ImageAddress == "" {
		return Watermark{}, fmt.Errorf("%w: watermarks[%d].image_address is required", ErrInvalidRequest, index)
	}

	size, err := strconv.Atoi(fields["size"])
	if err != nil || size < 1 || size > 100 {
		return Watermark{}, fmt.Errorf("%w: watermarks[%d].size must be between 1 and 100", ErrInvalidRequest, index)
	}
	wm.Size = size

	if raw, ok := fields["alpha"]; ok {
		alpha, err := strconv.ParseFloat(raw, 64)
		if err != nil || alpha < 0 || alpha > 1 {
			return Watermark{}, fmt.Errorf("%w: watermarks[%d].alpha must be between 0.0 and 1.0", ErrInvalidRequest, index)
		}
		wm.Alpha = alpha
	}

	switch strings.ToLower(strings.TrimSpace(fields["position"])) {
	case "", "point":
		wm.Position.Kind = PositionPoint
	case "center", "centre":
		wm.Position.Kind = PositionCenter
	default:
		return Watermark{}, fmt.Errorf("%w: watermarks[%d].position must be point or center", ErrInvalidRequest, index)
	}

	if raw, ok := fields["x"]; ok {
		if wm.Position.DX, err = strconv.Atoi(raw); err != nil {
			return Watermark{}, fmt.Errorf("%w: watermarks[%d].x must be an integer", ErrInvalidRequest, index)
		}
	}
	if raw, ok := fields["y"]; ok {
		if wm.Position.DY, err = strconv.Atoi(raw); err != nil {
			return Watermark{}, fmt.Errorf("%w: watermarks[%d].y must be an integer", ErrInvalidRequest, index)
		}
	}

	return wm, nil
}
