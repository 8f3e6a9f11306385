package imgmeta

import (
	"encoding/binary"
	"fmt"
)

// riffHeaderLen is the RIFF/WEBP envelope preceding the first sub-chunk.
const riffHeaderLen = 12

// parseWebPDimensions walks RIFF sub-chunks until it finds one of the
// three dimension-bearing payload variants. Each chunk is a 4-byte ASCII
// tag, a 4-byte little-endian size, and that many data bytes, padded to an
// even boundary. The first recognized tag wins.
func parseWebPDimensions(data []byte) (Dimensions, error) {
	cursor := riffHeaderLen
	for cursor+8 <= len(data) {
		tag := string(data[cursor : cursor+4])
		chunkSize := binary.LittleEndian.Uint32(data[cursor+4 : cursor+8])
		chunkData := cursor + 8

		switch tag {
		case "VP8 ":
			return parseVP8(data, chunkData)
		case "VP8L":
			return parseVP8L(data, chunkData)
		case "VP8X":
			return parseVP8X(data, chunkData)
		}

		// Skip to the next chunk, accounting for the odd-size pad byte.
		skip := int(chunkSize)
		if chunkSize%2 == 1 {
			skip++
		}
		next := chunkData + skip
		if next <= cursor || next > len(data) {
			return Dimensions{}, fmt.Errorf("%w: webp chunk %q overruns buffer", ErrDimensionsNotFound, tag)
		}
		cursor = next
	}
	return Dimensions{}, fmt.Errorf("%w: no dimension chunk in webp stream", ErrDimensionsNotFound)
}

// parseVP8 reads the lossy bitstream: a 3-byte frame tag and 3-byte start
// code precede two 14-bit little-endian dimension fields.
func parseVP8(data []byte, chunkData int) (Dimensions, error) {
	field := chunkData + 6
	if field+4 > len(data) {
		return Dimensions{}, fmt.Errorf("%w: truncated vp8 chunk", ErrDimensionsNotFound)
	}
	width := uint32(binary.LittleEndian.Uint16(data[field:field+2])&0x3FFF) + 1
	height := uint32(binary.LittleEndian.Uint16(data[field+2:field+4])&0x3FFF) + 1
	return Dimensions{Width: width, Height: height, Format: FormatWebP}, nil
}

// parseVP8L reads the lossless bitstream: after a 1-byte signature, width
// and height are packed as consecutive 14-bit fields of one u32.
func parseVP8L(data []byte, chunkData int) (Dimensions, error) {
	field := chunkData + 1
	if field+4 > len(data) {
		return Dimensions{}, fmt.Errorf("%w: truncated vp8l chunk", ErrDimensionsNotFound)
	}
	packed := binary.LittleEndian.Uint32(data[field : field+4])
	width := (packed & 0x3FFF) + 1
	height := ((packed >> 14) & 0x3FFF) + 1
	return Dimensions{Width: width, Height: height, Format: FormatWebP}, nil
}

// parseVP8X reads the extended header's canvas size: two 24-bit
// little-endian fields. Exactly 3 bytes are read per field; a minimally
// sized chunk ends right after the height field, so a 4-byte load would
// overrun it.
func parseVP8X(data []byte, chunkData int) (Dimensions, error) {
	widthField := chunkData + 12
	heightField := chunkData + 15
	if heightField+3 > len(data) {
		return Dimensions{}, fmt.Errorf("%w: truncated vp8x chunk", ErrDimensionsNotFound)
	}
	width := uint24LE(data[widthField:heightField]) + 1
	height := uint24LE(data[heightField:heightField+3]) + 1
	return Dimensions{Width: width, Height: height, Format: FormatWebP}, nil
}

func uint24LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}
