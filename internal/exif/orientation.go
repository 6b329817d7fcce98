// Package exif inspects raw JPEG bytes for the EXIF orientation tag without
// decoding pixel data. The result decides the decode access mode: images
// that need a rotation correction cannot be decoded sequentially.
package exif

const (
	markerSOI  = 0xD8
	markerSOS  = 0xDA
	markerAPP1 = 0xE1

	orientationTag = 0x0112
)

// Orientation returns the EXIF orientation value (1-8), or 0 when the data
// is not a JPEG or carries no usable orientation tag. Malformed segments are
// treated as "no tag", never as an error.
func Orientation(data []byte) int {
	if len(data) < 4 || data[0] != 0xFF || data[1] != markerSOI {
		return 0
	}

	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			return 0
		}
		marker := data[pos+1]
		if marker == markerSOS {
			return 0
		}

		length := int(data[pos+2])<<8 | int(data[pos+3])
		if length < 2 || pos+2+length > len(data) {
			return 0
		}

		if marker == markerAPP1 {
			segment := data[pos+4 : pos+2+length]
			if len(segment) > 6 && string(segment[:6]) == "Exif\x00\x00" {
				return tiffOrientation(segment[6:])
			}
		}

		pos += 2 + length
	}
	return 0
}

// NeedsRotation reports whether decoding must use random access: either the
// request carries an explicit rotation or the image has a non-identity
// orientation tag.
func NeedsRotation(data []byte, rotation int) bool {
	if rotation != 0 {
		return true
	}
	orientation := Orientation(data)
	return orientation != 0 && orientation != 1
}

// tiffOrientation walks the first IFD of an embedded TIFF header looking for
// the orientation entry (SHORT, count 1).
func tiffOrientation(tiff []byte) int {
	if len(tiff) < 8 {
		return 0
	}

	var littleEndian bool
	switch {
	case tiff[0] == 'I' && tiff[1] == 'I':
		littleEndian = true
	case tiff[0] == 'M' && tiff[1] == 'M':
		littleEndian = false
	default:
		return 0
	}

	read16 := func(offset int) int {
		if offset < 0 || offset+2 > len(tiff) {
			return -1
		}
		if littleEndian {
			return int(tiff[offset]) | int(tiff[offset+1])<<8
		}
		return int(tiff[offset])<<8 | int(tiff[offset+1])
	}
	read32 := func(offset int) int {
		if offset < 0 || offset+4 > len(tiff) {
			return -1
		}
		if littleEndian {
			return int(tiff[offset]) | int(tiff[offset+1])<<8 | int(tiff[offset+2])<<16 | int(tiff[offset+3])<<24
		}
		return int(tiff[offset])<<24 | int(tiff[offset+1])<<16 | int(tiff[offset+2])<<8 | int(tiff[offset+3])
	}

	if read16(2) != 42 {
		return 0
	}

	ifdOffset := read32(4)
	if ifdOffset < 8 {
		return 0
	}

	entries := read16(ifdOffset)
	if entries <= 0 {
		return 0
	}

	for i := 0; i < entries; i++ {
		entry := ifdOffset + 2 + i*12
		tag := read16(entry)
		if tag < 0 {
			return 0
		}
		if tag != orientationTag {
			continue
		}
		if read16(entry+2) != 3 || read32(entry+4) != 1 {
			return 0
		}
		value := read16(entry + 8)
		if value >= 1 && value <= 8 {
			return value
		}
		return 0
	}
	return 0
}
