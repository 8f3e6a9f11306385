package imgmeta

import (
	"encoding/binary"
	"fmt"
)

// isSOFMarker reports whether code is a Start-Of-Frame marker. DHT (0xC4),
// JPG (0xC8), and DAC (0xCC) share the 0xC0 range but carry no dimensions.
func isSOFMarker(code byte) bool {
	if code < 0xC0 || code > 0xCF {
		return false
	}
	return code != 0xC4 && code != 0xC8 && code != 0xCC
}

// parseJPEGDimensions scans marker segments until it reaches a
// Start-Of-Frame segment. Every non-SOF segment is skipped using its
// big-endian length field, which counts itself but not the marker bytes.
func parseJPEGDimensions(data []byte) (Dimensions, error) {
	cursor := 2 // past SOI
	for {
		if cursor+2 > len(data) {
			return Dimensions{}, fmt.Errorf("%w: jpeg stream ended before start-of-frame", ErrDimensionsNotFound)
		}
		if data[cursor] != 0xFF {
			return Dimensions{}, fmt.Errorf("%w: jpeg marker expected at offset %d", ErrDimensionsNotFound, cursor)
		}
		marker := data[cursor+1]

		if isSOFMarker(marker) {
			// Segment layout: length u16, precision u8, height u16, width u16.
			segment := cursor + 2
			if segment+7 > len(data) {
				return Dimensions{}, fmt.Errorf("%w: truncated start-of-frame segment", ErrDimensionsNotFound)
			}
			height := uint32(binary.BigEndian.Uint16(data[segment+3 : segment+5]))
			width := uint32(binary.BigEndian.Uint16(data[segment+5 : segment+7]))
			if width == 0 || height == 0 {
				return Dimensions{}, fmt.Errorf("%w: start-of-frame declares zero dimension", ErrMalformedHeader)
			}
			return Dimensions{Width: width, Height: height, Format: FormatJPEG}, nil
		}

		if cursor+4 > len(data) {
			return Dimensions{}, fmt.Errorf("%w: jpeg stream ended mid-segment", ErrDimensionsNotFound)
		}
		segmentLen := int(binary.BigEndian.Uint16(data[cursor+2 : cursor+4]))
		cursor += 2 + segmentLen
	}
}
