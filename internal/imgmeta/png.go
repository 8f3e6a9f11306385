package imgmeta

import (
	"encoding/binary"
	"fmt"
)

// parsePNGDimensions reads the IHDR chunk, which must immediately follow
// the 8-byte signature. Classify guarantees the buffer covers the header
// through both dimension fields.
func parsePNGDimensions(data []byte) (Dimensions, error) {
	chunkLen := binary.BigEndian.Uint32(data[8:12])
	if string(data[12:16]) != "IHDR" {
		return Dimensions{}, fmt.Errorf("%w: png IHDR chunk missing", ErrMalformedHeader)
	}
	if chunkLen < 13 {
		return Dimensions{}, fmt.Errorf("%w: png IHDR length %d is too short", ErrMalformedHeader, chunkLen)
	}
	width := binary.BigEndian.Uint32(data[16:20])
	height := binary.BigEndian.Uint32(data[20:24])
	if width == 0 || height == 0 {
		return Dimensions{}, fmt.Errorf("%w: png IHDR declares zero dimension", ErrMalformedHeader)
	}
	return Dimensions{Width: width, Height: height, Format: FormatPNG}, nil
}
