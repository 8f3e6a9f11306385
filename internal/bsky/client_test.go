package bsky

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, host string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		Host:           host,
		Identifier:     "poster.example.com",
		AppPassword:    "app-pass",
		Timeout:        2 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

func TestPublishImageFlow(t *testing.T) {
	var gotRecord map[string]any
	var uploadedMime string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "com.atproto.server.createSession"):
			json.NewEncoder(w).Encode(map[string]string{
				"accessJwt": "jwt-token",
				"did":       "did:plc:abc123",
				"handle":    "poster.example.com",
			})
		case strings.HasSuffix(r.URL.Path, "com.atproto.repo.uploadBlob"):
			if got := r.Header.Get("Authorization"); got != "Bearer jwt-token" {
				t.Errorf("uploadBlob auth = %q", got)
			}
			uploadedMime = r.Header.Get("Content-Type")
			io.Copy(io.Discard, r.Body)
			json.NewEncoder(w).Encode(map[string]any{
				"blob": map[string]any{"$type": "blob", "mimeType": uploadedMime, "size": 4},
			})
		case strings.HasSuffix(r.URL.Path, "com.atproto.repo.createRecord"):
			var body struct {
				Repo       string         `json:"repo"`
				Collection string         `json:"collection"`
				Record     map[string]any `json:"record"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode createRecord body: %v", err)
			}
			if body.Repo != "did:plc:abc123" || body.Collection != "app.bsky.feed.post" {
				t.Errorf("unexpected repo/collection: %s/%s", body.Repo, body.Collection)
			}
			gotRecord = body.Record
			json.NewEncoder(w).Encode(PostResult{URI: "at://did:plc:abc123/app.bsky.feed.post/xyz", CID: "cid123"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	result, err := client.PublishImage(context.Background(), ImagePost{
		Text:        "harbor at dawn #seascape",
		Langs:       []string{"en"},
		AltText:     "fishing boats at dawn",
		ImageData:   []byte{0xFF, 0xD8, 0xFF, 0xD9},
		ImageMime:   "image/jpeg",
		AspectRatio: &AspectRatio{Width: 3, Height: 2},
		Facets:      ScanTags("harbor at dawn #seascape"),
	})
	if err != nil {
		t.Fatalf("PublishImage returned error: %v", err)
	}
	if result.CID != "cid123" {
		t.Fatalf("expected cid123, got %s", result.CID)
	}
	if uploadedMime != "image/jpeg" {
		t.Fatalf("expected image/jpeg upload, got %s", uploadedMime)
	}

	embed, ok := gotRecord["embed"].(map[string]any)
	if !ok {
		t.Fatalf("record has no embed: %+v", gotRecord)
	}
	images := embed["images"].([]any)
	image := images[0].(map[string]any)
	ratio, ok := image["aspectRatio"].(map[string]any)
	if !ok {
		t.Fatalf("image has no aspectRatio: %+v", image)
	}
	if ratio["width"].(float64) != 3 || ratio["height"].(float64) != 2 {
		t.Fatalf("unexpected aspectRatio: %+v", ratio)
	}
	if _, ok := gotRecord["facets"]; !ok {
		t.Fatal("record has no facets")
	}
}

func TestPublishImageOmitsAspectRatioWhenNil(t *testing.T) {
	var gotRecord map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "com.atproto.server.createSession"):
			json.NewEncoder(w).Encode(map[string]string{"accessJwt": "jwt", "did": "did:plc:x"})
		case strings.HasSuffix(r.URL.Path, "com.atproto.repo.uploadBlob"):
			io.Copy(io.Discard, r.Body)
			json.NewEncoder(w).Encode(map[string]any{"blob": map[string]any{"$type": "blob"}})
		default:
			var body struct {
				Record map[string]any `json:"record"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			gotRecord = body.Record
			json.NewEncoder(w).Encode(PostResult{URI: "at://x", CID: "c"})
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.PublishImage(context.Background(), ImagePost{
		Text:      "no geometry available",
		ImageData: []byte{1, 2, 3},
		ImageMime: "image/png",
	})
	if err != nil {
		t.Fatalf("PublishImage returned error: %v", err)
	}

	images := gotRecord["embed"].(map[string]any)["images"].([]any)
	if _, ok := images[0].(map[string]any)["aspectRatio"]; ok {
		t.Fatal("expected aspectRatio to be omitted")
	}
}

func TestDoXRPCRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"accessJwt": "jwt", "did": "did:plc:x"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	if _, err := client.ensureSession(context.Background()); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestDoXRPCDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "AuthenticationRequired", "message": "bad credentials"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	if _, err := client.ensureSession(context.Background()); err == nil {
		t.Fatal("expected authentication error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}
