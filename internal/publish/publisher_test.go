package publish

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/halcyonlabs/skypost/internal/bsky"
	"github.com/halcyonlabs/skypost/internal/imgmeta"
)

type stubFetcher struct {
	data []byte
	err  error
}

func (f stubFetcher) Fetch(context.Context, Request) ([]byte, error) {
	return f.data, f.err
}

type capturePoster struct {
	post bsky.ImagePost
	err  error
}

func (p *capturePoster) PublishImage(_ context.Context, post bsky.ImagePost) (bsky.PostResult, error) {
	p.post = post
	if p.err != nil {
		return bsky.PostResult{}, p.err
	}
	return bsky.PostResult{URI: "at://did:plc:x/app.bsky.feed.post/1", CID: "cid-1"}, nil
}

// minimalPNG declares the given dimensions in an IHDR chunk.
func minimalPNG(width, height uint32) []byte {
	file := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D}
	file = append(file, []byte("IHDR")...)
	dims := make([]byte, 8)
	binary.BigEndian.PutUint32(dims[0:4], width)
	binary.BigEndian.PutUint32(dims[4:8], height)
	file = append(file, dims...)
	return append(file, 0x08, 0x02, 0x00, 0x00, 0x00)
}

func newTestPublisher(t *testing.T, fetcher Fetcher, poster Poster) *Publisher {
	t.Helper()
	p, err := NewPublisher(log.New(io.Discard, "", 0), fetcher, poster)
	if err != nil {
		t.Fatalf("NewPublisher returned error: %v", err)
	}
	return p
}

func TestPublishAttachesReducedAspectRatio(t *testing.T) {
	poster := &capturePoster{}
	p := newTestPublisher(t, stubFetcher{data: minimalPNG(1920, 1080)}, poster)

	result, err := p.Publish(context.Background(), Request{
		PostID:     "post-1",
		SourceType: "local_file",
		ObjectKey:  "library/a.png",
		Caption:    "city lights #night",
		Language:   "en",
	})
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	if result.URI == "" || result.CID == "" {
		t.Fatalf("expected publish identifiers, got %+v", result)
	}
	if result.Format != imgmeta.FormatPNG {
		t.Fatalf("expected png format, got %q", result.Format)
	}
	if result.AspectRatio == nil || *result.AspectRatio != (imgmeta.AspectRatio{Width: 16, Height: 9}) {
		t.Fatalf("expected 16:9 aspect ratio, got %+v", result.AspectRatio)
	}

	if poster.post.ImageMime != "image/png" {
		t.Fatalf("expected image/png mime, got %s", poster.post.ImageMime)
	}
	if poster.post.AspectRatio == nil || poster.post.AspectRatio.Width != 16 || poster.post.AspectRatio.Height != 9 {
		t.Fatalf("expected aspect ratio on outgoing post, got %+v", poster.post.AspectRatio)
	}
	if len(poster.post.Facets) != 1 {
		t.Fatalf("expected one hashtag facet, got %d", len(poster.post.Facets))
	}
	if len(poster.post.Langs) != 1 || poster.post.Langs[0] != "en" {
		t.Fatalf("expected langs [en], got %v", poster.post.Langs)
	}
}

func TestPublishDegradesGracefullyOnUnparsableImage(t *testing.T) {
	poster := &capturePoster{}
	p := newTestPublisher(t, stubFetcher{data: []byte{0x00, 0x01, 0x02, 0x03}}, poster)

	result, err := p.Publish(context.Background(), Request{
		PostID:     "post-2",
		SourceType: "local_file",
		ObjectKey:  "library/mystery.bin",
		Caption:    "still goes out",
	})
	if err != nil {
		t.Fatalf("expected publish to proceed without geometry, got %v", err)
	}

	if result.AspectRatio != nil || result.Dimensions != nil {
		t.Fatalf("expected nil geometry, got %+v", result)
	}
	if poster.post.AspectRatio != nil {
		t.Fatal("expected outgoing post without aspect ratio")
	}
	if poster.post.ImageMime != "application/octet-stream" {
		t.Fatalf("expected fallback mime, got %s", poster.post.ImageMime)
	}
}

func TestPublishFailsWhenFetchFails(t *testing.T) {
	wantErr := errors.New("missing file")
	p := newTestPublisher(t, stubFetcher{err: wantErr}, &capturePoster{})

	_, err := p.Publish(context.Background(), Request{
		PostID:     "post-3",
		SourceType: "local_file",
		ObjectKey:  "library/gone.jpg",
		Caption:    "never posted",
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestPublishFailsWhenPosterFails(t *testing.T) {
	wantErr := errors.New("service down")
	p := newTestPublisher(t, stubFetcher{data: minimalPNG(10, 10)}, &capturePoster{err: wantErr})

	_, err := p.Publish(context.Background(), Request{
		PostID:     "post-4",
		SourceType: "local_file",
		ObjectKey:  "library/a.png",
		Caption:    "caption",
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected poster error, got %v", err)
	}
}
