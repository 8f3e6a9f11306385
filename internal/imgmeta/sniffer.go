package imgmeta

import "bytes"

var (
	riffSignature = []byte("RIFF")
	webpSignature = []byte("WEBP")
	jpegSignature = []byte{0xFF, 0xD8, 0xFF}
	pngSignature  = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
)

// pngMinLen covers the 8-byte signature plus the IHDR length, tag, and
// dimension fields, so a positive PNG match is always parseable.
const pngMinLen = 24

// Classify identifies the image container from magic bytes alone. Checks
// run in a fixed order (WebP, JPEG, PNG) and the first match wins; buffers
// shorter than a signature's minimum length never match it.
func Classify(data []byte) Format {
	if len(data) >= 12 && bytes.HasPrefix(data, riffSignature) && bytes.Equal(data[8:12], webpSignature) {
		return FormatWebP
	}
	if len(data) >= 3 && bytes.HasPrefix(data, jpegSignature) {
		return FormatJPEG
	}
	if len(data) >= pngMinLen && bytes.HasPrefix(data, pngSignature) {
		return FormatPNG
	}
	return FormatUnknown
}
