// Package bsky is a minimal client for the AT-protocol posting service:
// session auth, blob upload, and image-post record creation. It covers
// exactly the surface the worker needs, nothing more.
package bsky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	postCollection = "app.bsky.feed.post"
	postType       = "app.bsky.feed.post"
	embedType      = "app.bsky.embed.images"
)

type Config struct {
	Host           string
	Identifier     string
	AppPassword    string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Client struct {
	httpClient     *http.Client
	host           string
	identifier     string
	appPassword    string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu      sync.Mutex
	session *session
}

type session struct {
	AccessJwt string `json:"accessJwt"`
	DID       string `json:"did"`
	Handle    string `json:"handle"`
}

// AspectRatio is the geometry hint attached to an image embed.
type AspectRatio struct {
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

// ImagePost is one outgoing post with a single image attachment. A nil
// AspectRatio is valid: the record is created without a geometry hint.
type ImagePost struct {
	Text        string
	Langs       []string
	AltText     string
	ImageData   []byte
	ImageMime   string
	AspectRatio *AspectRatio
	Facets      []Facet
}

type PostResult struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

func NewClient(cfg Config) (*Client, error) {
	host := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if host == "" {
		return nil, fmt.Errorf("bsky host is required")
	}
	if strings.TrimSpace(cfg.Identifier) == "" || strings.TrimSpace(cfg.AppPassword) == "" {
		return nil, fmt.Errorf("bsky identifier and app password are required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	initialBackoff := cfg.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = 1 * time.Second
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff < initialBackoff {
		maxBackoff = initialBackoff
	}

	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		host:           host,
		identifier:     cfg.Identifier,
		appPassword:    cfg.AppPassword,
		maxAttempts:    maxAttempts,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
	}, nil
}

// PublishImage uploads the image blob and creates the post record. The
// returned URI and CID identify the record on the network.
func (c *Client) PublishImage(ctx context.Context, post ImagePost) (PostResult, error) {
	sess, err := c.ensureSession(ctx)
	if err != nil {
		return PostResult{}, fmt.Errorf("authenticate: %w", err)
	}

	blob, err := c.uploadBlob(ctx, sess, post.ImageData, post.ImageMime)
	if err != nil {
		return PostResult{}, fmt.Errorf("upload image blob: %w", err)
	}

	image := map[string]any{
		"alt":   post.AltText,
		"image": blob,
	}
	if post.AspectRatio != nil {
		image["aspectRatio"] = post.AspectRatio
	}

	record := map[string]any{
		"$type":     postType,
		"text":      post.Text,
		"createdAt": time.Now().UTC().Format(time.RFC3339),
		"embed": map[string]any{
			"$type":  embedType,
			"images": []map[string]any{image},
		},
	}
	if len(post.Langs) > 0 {
		record["langs"] = post.Langs
	}
	if len(post.Facets) > 0 {
		record["facets"] = post.Facets
	}

	body := map[string]any{
		"repo":       sess.DID,
		"collection": postCollection,
		"record":     record,
	}

	var result PostResult
	if err := c.doXRPC(ctx, sess, "com.atproto.repo.createRecord", "application/json", mustJSON(body), &result); err != nil {
		c.dropSession()
		return PostResult{}, fmt.Errorf("create post record: %w", err)
	}
	return result, nil
}

func (c *Client) ensureSession(ctx context.Context) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return c.session, nil
	}

	body := mustJSON(map[string]string{
		"identifier": c.identifier,
		"password":   c.appPassword,
	})

	var sess session
	if err := c.doXRPC(ctx, nil, "com.atproto.server.createSession", "application/json", body, &sess); err != nil {
		return nil, err
	}
	if sess.AccessJwt == "" || sess.DID == "" {
		return nil, fmt.Errorf("session response missing credentials")
	}

	c.session = &sess
	return c.session, nil
}

// dropSession forces re-authentication on the next publish. Called after a
// failed record creation since an expired token is the common cause.
func (c *Client) dropSession() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}

func (c *Client) uploadBlob(ctx context.Context, sess *session, data []byte, mime string) (json.RawMessage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("image data is empty")
	}
	if strings.TrimSpace(mime) == "" {
		mime = "application/octet-stream"
	}

	var resp struct {
		Blob json.RawMessage `json:"blob"`
	}
	if err := c.doXRPC(ctx, sess, "com.atproto.repo.uploadBlob", mime, data, &resp); err != nil {
		return nil, err
	}
	if len(resp.Blob) == 0 {
		return nil, fmt.Errorf("upload response missing blob")
	}
	return resp.Blob, nil
}

// doXRPC posts one procedure call with bounded retries. Server-side and
// transport failures back off and retry; client errors return immediately.
func (c *Client) doXRPC(ctx context.Context, sess *session, procedure, contentType string, body []byte, out any) error {
	endpoint := fmt.Sprintf("%s/xrpc/%s", c.host, procedure)

	backoff := c.initialBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build %s request: %w", procedure, err)
		}
		req.Header.Set("Content-Type", contentType)
		if sess != nil {
			req.Header.Set("Authorization", "Bearer "+sess.AccessJwt)
		}

		resp, err := c.httpClient.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			var decodeErr error
			if out != nil {
				decodeErr = json.NewDecoder(resp.Body).Decode(out)
			}
			resp.Body.Close()
			if decodeErr != nil {
				return fmt.Errorf("decode %s response: %w", procedure, decodeErr)
			}
			return nil
		default:
			lastErr = decodeXRPCError(procedure, resp)
			resp.Body.Close()
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return lastErr
			}
		}

		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = minDuration(backoff*2, c.maxBackoff)
	}

	return fmt.Errorf("%s failed after %d attempts: %w", procedure, c.maxAttempts, lastErr)
}

func decodeXRPCError(procedure string, resp *http.Response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("%s returned status=%d error=%s: %s", procedure, resp.StatusCode, body.Error, body.Message)
	}
	return fmt.Errorf("%s returned status=%d", procedure, resp.StatusCode)
}

func mustJSON(v any) []byte {
	body, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return body
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
