package imgmeta

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestDetectDimensionsWebP(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		wantWidth  uint32
		wantHeight uint32
	}{
		{
			name:       "lossy vp8",
			data:       webpFile(webpChunk("VP8 ", vp8Payload(100, 200))),
			wantWidth:  100,
			wantHeight: 200,
		},
		{
			name:       "lossless vp8l",
			data:       webpFile(webpChunk("VP8L", vp8lPayload(640, 480))),
			wantWidth:  640,
			wantHeight: 480,
		},
		{
			name:       "extended vp8x",
			data:       webpFile(webpChunk("VP8X", vp8xPayload(1920, 1080))),
			wantWidth:  1920,
			wantHeight: 1080,
		},
		{
			name: "dimension chunk after unrecognized chunks",
			data: webpFile(
				webpChunk("ICCP", make([]byte, 7)), // odd size exercises the pad byte
				webpChunk("EXIF", make([]byte, 4)),
				webpChunk("VP8 ", vp8Payload(32, 64)),
			),
			wantWidth:  32,
			wantHeight: 64,
		},
		{
			name: "minimally sized vp8x chunk ends at the height field",
			data: webpFile(webpChunk("VP8X", vp8xPayload(3, 5))),
			wantWidth:  3,
			wantHeight: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dims, err := DetectDimensions(tt.data)
			if err != nil {
				t.Fatalf("DetectDimensions returned error: %v", err)
			}
			if dims.Width != tt.wantWidth || dims.Height != tt.wantHeight {
				t.Fatalf("got %dx%d, want %dx%d", dims.Width, dims.Height, tt.wantWidth, tt.wantHeight)
			}
			if dims.Format != FormatWebP {
				t.Fatalf("got format %q, want %q", dims.Format, FormatWebP)
			}
		})
	}
}

func TestDetectDimensionsWebPFailures(t *testing.T) {
	overrun := webpFile(webpChunk("ICCP", make([]byte, 4)))
	// Inflate the declared chunk size so the skip lands past the buffer.
	binary.LittleEndian.PutUint32(overrun[16:20], 1<<20)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "declared chunk size overruns buffer", data: overrun},
		{name: "no recognized chunk before end", data: webpFile(webpChunk("ICCP", make([]byte, 4)))},
		{name: "truncated vp8 dimension field", data: webpFile(webpChunk("VP8 ", vp8Payload(10, 10)))[:24]},
		{name: "truncated vp8l header", data: webpFile(webpChunk("VP8L", vp8lPayload(10, 10)))[:22]},
		{name: "truncated vp8x height field", data: webpFile(webpChunk("VP8X", vp8xPayload(10, 10)))[:37]},
		{name: "bare riff header", data: webpFile()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DetectDimensions(tt.data)
			if !errors.Is(err, ErrDimensionsNotFound) {
				t.Fatalf("expected ErrDimensionsNotFound, got %v", err)
			}
		})
	}
}
