// Package imgmeta extracts pixel geometry from raw image buffers without
// decoding them. It recognizes WebP, JPEG, and PNG containers by magic
// bytes, walks each container's header structure to find the declared
// width and height, and reduces a dimension pair to its canonical aspect
// ratio.
//
// Every function is a pure computation over the input slice: no I/O, no
// retained references, no shared state. Calls are safe from any number of
// goroutines.
package imgmeta

import "errors"

// Format identifies a supported image container.
type Format string

const (
	FormatUnknown Format = ""
	FormatWebP    Format = "webp"
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
)

// Dimensions is the pixel geometry declared by an image header. Width and
// Height are always positive when produced by DetectDimensions.
type Dimensions struct {
	Width  uint32
	Height uint32
	Format Format
}

// AspectRatio is a width:height pair in lowest terms.
type AspectRatio struct {
	Width  uint32
	Height uint32
}

var (
	// ErrUnsupportedFormat means the buffer matches no known magic-byte
	// signature, or is too short to classify.
	ErrUnsupportedFormat = errors.New("imgmeta: unsupported image format")

	// ErrMalformedHeader means the format was recognized but a required
	// fixed structure is absent or inconsistent.
	ErrMalformedHeader = errors.New("imgmeta: malformed image header")

	// ErrDimensionsNotFound means the container was walkable but ended
	// before a dimension-bearing chunk or segment was located.
	ErrDimensionsNotFound = errors.New("imgmeta: image dimensions not found")

	// ErrInvalidDimensions means a zero width or height was passed to
	// aspect-ratio reduction.
	ErrInvalidDimensions = errors.New("imgmeta: invalid dimensions")
)

// DetectDimensions classifies data by its magic bytes and extracts the
// declared pixel dimensions using the matching format parser. It never
// reads past the end of data; truncated or malformed input yields an
// error, not a partial result.
func DetectDimensions(data []byte) (Dimensions, error) {
	switch Classify(data) {
	case FormatWebP:
		return parseWebPDimensions(data)
	case FormatJPEG:
		return parseJPEGDimensions(data)
	case FormatPNG:
		return parsePNGDimensions(data)
	default:
		return Dimensions{}, ErrUnsupportedFormat
	}
}
