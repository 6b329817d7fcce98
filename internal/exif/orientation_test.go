package exif

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"
)

// jpegWithOrientation assembles a minimal JPEG prefix carrying an EXIF APP1
// segment with the given orientation value in a big-endian TIFF header.
func jpegWithOrientation(orientation int) []byte {
	tiff := []byte{
		'M', 'M', 0x00, 0x2A, // byte order + magic
		0x00, 0x00, 0x00, 0x08, // first IFD at offset 8
		0x00, 0x01, // one entry
		0x01, 0x12, // orientation tag
		0x00, 0x03, // SHORT
		0x00, 0x00, 0x00, 0x01, // count 1
		0x00, byte(orientation), 0x00, 0x00, // value
		0x00, 0x00, 0x00, 0x00, // next IFD
	}

	payload := append([]byte("Exif\x00\x00"), tiff...)
	length := len(payload) + 2

	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xD8})
	buf.Write([]byte{0xFF, 0xE1, byte(length >> 8), byte(length & 0xFF)})
	buf.Write(payload)
	buf.Write([]byte{0xFF, 0xDA, 0x00, 0x02})
	return buf.Bytes()
}

func TestOrientationReadsTag(t *testing.T) {
	for _, want := range []int{1, 3, 6, 8} {
		if got := Orientation(jpegWithOrientation(want)); got != want {
			t.Fatalf("expected orientation %d, got %d", want, got)
		}
	}
}

func TestOrientationAbsentOnPlainJpeg(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	if got := Orientation(buf.Bytes()); got != 0 {
		t.Fatalf("expected no orientation tag, got %d", got)
	}
}

func TestOrientationIgnoresNonJpeg(t *testing.T) {
	if got := Orientation([]byte("not an image at all")); got != 0 {
		t.Fatalf("expected 0 for non-jpeg data, got %d", got)
	}
	if got := Orientation(nil); got != 0 {
		t.Fatalf("expected 0 for empty data, got %d", got)
	}
}

func TestOrientationMalformedSegment(t *testing.T) {
	data := jpegWithOrientation(6)
	// Truncate inside the APP1 payload.
	if got := Orientation(data[:10]); got != 0 {
		t.Fatalf("expected 0 for truncated data, got %d", got)
	}
}

func TestNeedsRotation(t *testing.T) {
	if NeedsRotation(jpegWithOrientation(1), 0) {
		t.Fatal("identity orientation without explicit rotation must not need rotation")
	}
	if !NeedsRotation(jpegWithOrientation(6), 0) {
		t.Fatal("orientation 6 must need rotation")
	}
	if !NeedsRotation(jpegWithOrientation(1), 90) {
		t.Fatal("explicit rotation must force rotation handling")
	}
	if NeedsRotation([]byte("plain"), 0) {
		t.Fatal("untagged data without rotation must not need rotation")
	}
}
