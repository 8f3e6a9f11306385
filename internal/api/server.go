package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/halcyonlabs/skypost/internal/domain"
	"github.com/halcyonlabs/skypost/internal/id"
	"github.com/halcyonlabs/skypost/internal/queue"
	"github.com/halcyonlabs/skypost/internal/store"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	logger                *log.Logger
	queueClient           queueEnqueuer
	postStore             store.PostStore
	storage               objectStorage
	presignTTL            time.Duration
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	metrics               *metrics
	tracer                trace.Tracer
	mux                   *http.ServeMux
}

type queueEnqueuer interface {
	EnqueuePublishPost(ctx context.Context, payload queue.PublishPostPayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

type Options struct {
	PresignTTL            time.Duration
	RateLimiter           RateLimiter
	RateLimitUserIDHeader string
}

func NewServer(logger *log.Logger, queueClient queueEnqueuer, postStore store.PostStore, storage objectStorage, opts Options) *Server {
	presignTTL := opts.PresignTTL
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	if storage == nil {
		storage = unavailableObjectStorage{}
	}

	userIDHeader := strings.TrimSpace(opts.RateLimitUserIDHeader)
	if userIDHeader == "" {
		userIDHeader = "X-User-ID"
	}

	s := &Server{
		logger:                logger,
		queueClient:           queueClient,
		postStore:             postStore,
		storage:               storage,
		presignTTL:            presignTTL,
		rateLimiter:           opts.RateLimiter,
		rateLimitUserIDHeader: userIDHeader,
		metrics:               newMetrics(),
		tracer:                otel.Tracer("skypost/api"),
		mux:                   http.NewServeMux(),
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignedPutURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ObjectExists(_ context.Context, _ string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

func (s *Server) Handler() http.Handler {
	return s.withTracing(s.withRateLimit(s.metrics.withHTTPMetrics(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /v1/posts", s.handleCreatePost)
	s.mux.HandleFunc("POST /v1/posts/", s.handlePublishPost)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePostRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	postID := id.New()
	sourceType := strings.ToLower(strings.TrimSpace(req.SourceType))
	objectKey := strings.TrimSpace(req.ObjectKey)
	uploadState := "not_required"
	presignedPutURL := ""

	if sourceType == domain.SourceTypeS3Presigned {
		objectKey = fmt.Sprintf("uploads/%s/image", postID)
		url, err := s.storage.PresignedPutURL(r.Context(), objectKey, s.presignTTL)
		if err != nil {
			s.logger.Printf("generate presigned url failed for post %s: %v", postID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate upload URL"})
			return
		}
		presignedPutURL = url
		uploadState = "ready"
	}

	post := domain.Post{
		ID:         postID,
		Status:     domain.PostStatusQueued,
		SourceType: sourceType,
		ObjectKey:  objectKey,
		Caption:    req.Caption,
		Language:   req.Language,
		AltText:    req.AltText,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.postStore.Create(r.Context(), post); err != nil {
		s.logger.Printf("create post failed for post %s: %v", post.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create post"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"post_id": post.ID,
		"status":  post.Status,
		"upload": map[string]string{
			"object_key":          post.ObjectKey,
			"presigned_put_url":   presignedPutURL,
			"presigned_url_state": uploadState,
		},
		"publish_url": fmt.Sprintf("/v1/posts/%s/publish", post.ID),
	})
}

func (s *Server) handlePublishPost(w http.ResponseWriter, r *http.Request) {
	postID, err := extractPostIDFromPublishPath(r.URL.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	post, ok, err := s.postStore.Get(r.Context(), postID)
	if err != nil {
		s.logger.Printf("fetch post failed for post %s: %v", postID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load post"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "post not found"})
		return
	}
	if post.Status == domain.PostStatusPublished {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "post is already published"})
		return
	}

	if err := s.verifySourceExists(r.Context(), post); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}

	payload := queue.PublishPostPayload{
		PostID:      post.ID,
		RequestedAt: time.Now().UTC(),
	}

	taskInfo, err := s.queueClient.EnqueuePublishPost(r.Context(), payload)
	if err != nil {
		s.logger.Printf("enqueue failed for post %s: %v", post.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue post"})
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if _, err := s.postStore.UpdateStatus(r.Context(), post.ID, domain.PostStatusQueued); err != nil {
		s.logger.Printf("update status failed for post %s: %v", post.ID, err)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"post_id":     post.ID,
		"status":      domain.PostStatusQueued,
		"queue":       taskInfo.Queue,
		"task_id":     taskInfo.ID,
		"state":       taskInfo.State.String(),
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

func (s *Server) verifySourceExists(ctx context.Context, post domain.Post) error {
	switch post.SourceType {
	case domain.SourceTypeLocalFile:
		if _, err := os.Stat(post.ObjectKey); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("source image is missing: %s", post.ObjectKey)
			}
			return fmt.Errorf("source image check failed: %w", err)
		}
		return nil
	default:
		exists, err := s.storage.ObjectExists(ctx, post.ObjectKey)
		if err != nil {
			return fmt.Errorf("source image check failed: %w", err)
		}
		if !exists {
			return fmt.Errorf("source image is missing: %s", post.ObjectKey)
		}
		return nil
	}
}

func extractPostIDFromPublishPath(path string) (string, error) {
	trimmed := strings.TrimPrefix(path, "/v1/posts/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "publish" {
		return "", errors.New("expected path format /v1/posts/{id}/publish")
	}
	return parts[0], nil
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
