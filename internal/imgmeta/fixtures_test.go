package imgmeta

import "encoding/binary"

// webpFile assembles a RIFF/WEBP envelope around the given chunks.
func webpFile(chunks ...[]byte) []byte {
	var body []byte
	for _, c := range chunks {
		body = append(body, c...)
	}
	file := append([]byte("RIFF"), 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(file[4:8], uint32(len(body)+4))
	file = append(file, []byte("WEBP")...)
	return append(file, body...)
}

// webpChunk builds a tagged chunk with its little-endian size header and
// trailing pad byte when the payload length is odd.
func webpChunk(tag string, payload []byte) []byte {
	chunk := append([]byte(tag), 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(chunk[4:8], uint32(len(payload)))
	chunk = append(chunk, payload...)
	if len(payload)%2 == 1 {
		chunk = append(chunk, 0)
	}
	return chunk
}

// vp8Payload encodes a lossy frame header declaring the given dimensions.
func vp8Payload(width, height uint32) []byte {
	p := make([]byte, 10)
	p[3], p[4], p[5] = 0x9D, 0x01, 0x2A // start code
	binary.LittleEndian.PutUint16(p[6:8], uint16(width-1))
	binary.LittleEndian.PutUint16(p[8:10], uint16(height-1))
	return p
}

// vp8lPayload encodes a lossless header with both 14-bit fields packed
// into one u32 after the signature byte.
func vp8lPayload(width, height uint32) []byte {
	p := make([]byte, 5)
	p[0] = 0x2F
	binary.LittleEndian.PutUint32(p[1:5], (width-1)|(height-1)<<14)
	return p
}

// vp8xPayload encodes an extended header with 24-bit canvas fields.
func vp8xPayload(width, height uint32) []byte {
	p := make([]byte, 18)
	put24LE(p[12:15], width-1)
	put24LE(p[15:18], height-1)
	return p
}

func put24LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

// jpegFile assembles SOI, an APP0 segment, and an SOF0 segment declaring
// the given dimensions.
func jpegFile(width, height uint32) []byte {
	file := []byte{0xFF, 0xD8} // SOI
	file = append(file,
		0xFF, 0xE0, 0x00, 0x10, // APP0, length 16
		'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x01, 0x00, 0x48, 0x00, 0x48, 0x00, 0x00,
	)
	sof := []byte{0xFF, 0xC0, 0x00, 0x0B, 0x08, 0, 0, 0, 0, 0x03}
	binary.BigEndian.PutUint16(sof[5:7], uint16(height))
	binary.BigEndian.PutUint16(sof[7:9], uint16(width))
	return append(file, sof...)
}

// pngFile assembles the signature and an IHDR chunk declaring the given
// dimensions.
func pngFile(width, height uint32) []byte {
	file := append([]byte{}, pngSignature...)
	file = append(file, 0x00, 0x00, 0x00, 0x0D) // IHDR length
	file = append(file, []byte("IHDR")...)
	dims := make([]byte, 8)
	binary.BigEndian.PutUint32(dims[0:4], width)
	binary.BigEndian.PutUint32(dims[4:8], height)
	file = append(file, dims...)
	return append(file, 0x08, 0x02, 0x00, 0x00, 0x00) // depth, color, rest of IHDR
}
