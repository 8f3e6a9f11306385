package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/halcyonlabs/skypost/internal/config"
	"github.com/halcyonlabs/skypost/internal/domain"
	"github.com/halcyonlabs/skypost/internal/id"
	"github.com/halcyonlabs/skypost/internal/library"
	"github.com/halcyonlabs/skypost/internal/notify"
	"github.com/halcyonlabs/skypost/internal/publish"
	"github.com/halcyonlabs/skypost/internal/queue"
	"github.com/halcyonlabs/skypost/internal/ratelimit"
	"github.com/halcyonlabs/skypost/internal/storage"
	"github.com/halcyonlabs/skypost/internal/store"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	logger           *log.Logger
	server           *asynq.Server
	scheduler        *asynq.Scheduler
	scheduleInterval time.Duration
	queueName        string
	sem              chan struct{}
	localPublisher   *publish.Publisher
	objectPublisher  *publish.Publisher
	library          *library.Library
	defaultCaption   string
	notifyClient     notifySender
	notifyEndpoint   string
	postStore        store.PostStore
	publicationStore store.PublicationStore
	limiter          publishLimiter
	metrics          *metrics
	tracer           trace.Tracer
}

type notifySender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

type publishLimiter interface {
	Allow(ctx context.Context, subject string) (ratelimit.Decision, error)
}

func NewServer(
	logger *log.Logger,
	cfg config.Config,
	storageClient *storage.Client,
	poster publish.Poster,
	notifyClient *notify.Client,
	postStore store.PostStore,
	publicationStore store.PublicationStore,
	limiter *ratelimit.RedisTokenBucket,
) (*Server, error) {
	if storageClient == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if postStore == nil {
		return nil, fmt.Errorf("post store is required")
	}

	lib, err := library.New(cfg.Library.Dir, cfg.Library.ArchiveDir)
	if err != nil {
		return nil, fmt.Errorf("initialize library: %w", err)
	}

	localPublisher, err := publish.NewPublisher(logger, publish.LibraryFetcher{Library: lib}, poster)
	if err != nil {
		return nil, fmt.Errorf("initialize library publisher: %w", err)
	}

	objectPublisher, err := publish.NewPublisher(logger, publish.ObjectStoreFetcher{Storage: storageClient}, poster)
	if err != nil {
		return nil, fmt.Errorf("initialize object-store publisher: %w", err)
	}

	if publicationStore == nil {
		if postAndPublicationStore, ok := postStore.(store.PublicationStore); ok {
			publicationStore = postAndPublicationStore
		}
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			cfg.Queue.RedisClientOpt(),
			asynq.Config{
				Concurrency: cfg.Worker.Concurrency,
				Queues: map[string]int{
					cfg.Queue.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		scheduleInterval: cfg.Worker.ScheduleInterval,
		queueName:        cfg.Queue.Name,
		sem:              make(chan struct{}, max(1, cfg.Worker.MaxActivePosts)),
		localPublisher:   localPublisher,
		objectPublisher:  objectPublisher,
		library:          lib,
		defaultCaption:   cfg.Library.DefaultCaption,
		notifyEndpoint:   cfg.Notify.Endpoint,
		postStore:        postStore,
		publicationStore: publicationStore,
		metrics:          newMetrics(),
		tracer:           otel.Tracer("skypost/worker"),
	}
	if notifyClient != nil {
		s.notifyClient = notifyClient
	}
	if limiter != nil {
		s.limiter = limiter
	}
	if cfg.Worker.ScheduleInterval > 0 {
		s.scheduler = asynq.NewScheduler(cfg.Queue.RedisClientOpt(), nil)
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypePublishPost, s.handlePublishPost)
	mux.HandleFunc(queue.TypePublishNext, s.handlePublishNext)

	if s.scheduler != nil {
		spec := fmt.Sprintf("@every %s", s.scheduleInterval)
		if _, err := s.scheduler.Register(spec, queue.NewPublishNextTask(), asynq.Queue(s.queueName)); err != nil {
			return fmt.Errorf("register publish schedule: %w", err)
		}
		if err := s.scheduler.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer s.scheduler.Shutdown()
		s.logger.Printf("publish schedule registered interval=%s", s.scheduleInterval)
	}

	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handlePublishPost(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParsePublishPostPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	post, ok, err := s.postStore.Get(ctx, payload.PostID)
	if err != nil {
		return fmt.Errorf("load post: %w", err)
	}
	if !ok {
		return fmt.Errorf("unknown post %s: %w", payload.PostID, asynq.SkipRetry)
	}
	if post.Status == domain.PostStatusPublished {
		s.logger.Printf("skipping already published post_id=%s uri=%s", post.ID, post.PublishedURI)
		return nil
	}

	return s.publishPost(ctx, post)
}

// handlePublishNext drains one image from the local library: it becomes a
// regular post record with the default caption and goes through the same
// publish path as API-submitted posts.
func (s *Server) handlePublishNext(ctx context.Context, _ *asynq.Task) error {
	path, err := s.library.Next(ctx)
	if errors.Is(err, library.ErrLibraryEmpty) {
		s.logger.Printf("library empty, nothing to publish")
		return nil
	}
	if err != nil {
		return fmt.Errorf("pick next image: %w", err)
	}

	now := time.Now().UTC()
	post := domain.Post{
		ID:         id.New(),
		Status:     domain.PostStatusQueued,
		SourceType: domain.SourceTypeLocalFile,
		ObjectKey:  path,
		Caption:    s.defaultCaption,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.postStore.Create(ctx, post); err != nil {
		return fmt.Errorf("create post record: %w", err)
	}

	if err := s.publishPost(ctx, post); err != nil {
		return err
	}

	s.metrics.libraryDrainedTotal.Inc()
	return nil
}

func (s *Server) publishPost(ctx context.Context, post domain.Post) error {
	startedAt := time.Now()
	outcome := domain.PostStatusFailed

	ctx, span := s.tracer.Start(ctx, "worker.publish_post", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("post.id", post.ID),
		attribute.String("post.source_type", post.SourceType),
	)
	defer span.End()
	defer func() {
		s.metrics.postDuration.WithLabelValues(post.SourceType, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.postsTotal.WithLabelValues(post.SourceType, outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activePublishes.Inc()
	defer func() {
		<-s.sem
		s.metrics.activePublishes.Dec()
	}()

	if s.limiter != nil {
		decision, err := s.limiter.Allow(ctx, "publish")
		if err != nil {
			s.logger.Printf("rate limit check failed post_id=%s err=%v", post.ID, err)
		} else if !decision.Allowed {
			s.metrics.rateLimitDeferrals.Inc()
			outcome = domain.PostStatusQueued
			span.SetStatus(codes.Error, "rate limited")
			return fmt.Errorf("posting rate limit reached, retry after %s", decision.RetryAfter)
		}
	}

	s.logger.Printf(
		"Publishing... post_id=%s source_type=%s object_key=%s",
		post.ID,
		post.SourceType,
		post.ObjectKey,
	)

	s.updatePostStatus(ctx, post.ID, domain.PostStatusPublishing)

	request := publish.Request{
		PostID:     post.ID,
		SourceType: post.SourceType,
		ObjectKey:  post.ObjectKey,
		Caption:    post.Caption,
		Language:   post.Language,
		AltText:    post.AltText,
	}

	var (
		result publish.Result
		err    error
	)
	switch post.SourceType {
	case domain.SourceTypeLocalFile:
		result, err = s.localPublisher.Publish(ctx, request)
	default:
		result, err = s.objectPublisher.Publish(ctx, request)
	}
	if err != nil {
		s.updatePostStatus(ctx, post.ID, domain.PostStatusFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		s.dispatchNotify(ctx, notify.EventPostFailed, map[string]any{
			"post_id":     post.ID,
			"status":      domain.PostStatusFailed,
			"source_type": post.SourceType,
			"object_key":  post.ObjectKey,
			"failed_at":   time.Now().UTC(),
			"error":       err.Error(),
		})
		return fmt.Errorf("publish post: %w", err)
	}

	s.observeGeometry(result)

	s.logger.Printf("Published post_id=%s uri=%s cid=%s", post.ID, result.URI, result.CID)
	if _, err := s.postStore.MarkPublished(ctx, post.ID, result.URI, result.CID); err != nil {
		s.logger.Printf("publish record update failed post_id=%s err=%v", post.ID, err)
	}
	s.recordPublication(ctx, post.ID, result, time.Since(startedAt))

	if post.SourceType == domain.SourceTypeLocalFile {
		if archived, err := s.library.Archive(post.ObjectKey); err != nil {
			s.logger.Printf("archive failed post_id=%s path=%s err=%v", post.ID, post.ObjectKey, err)
		} else {
			s.logger.Printf("archived post_id=%s path=%s", post.ID, archived)
		}
	}

	// The post is already live, so a failed callback must not fail the
	// task: retrying would publish the same image twice.
	s.dispatchNotify(ctx, notify.EventPostPublished, map[string]any{
		"post_id":      post.ID,
		"status":       domain.PostStatusPublished,
		"source_type":  post.SourceType,
		"uri":          result.URI,
		"cid":          result.CID,
		"published_at": time.Now().UTC(),
	})

	outcome = domain.PostStatusPublished
	span.SetStatus(codes.Ok, "published")
	return nil
}

func (s *Server) updatePostStatus(ctx context.Context, postID, status string) {
	if _, err := s.postStore.UpdateStatus(ctx, postID, status); err != nil {
		s.logger.Printf("post status update failed post_id=%s status=%s err=%v", postID, status, err)
	}
}

func (s *Server) dispatchNotify(ctx context.Context, event string, body map[string]any) {
	if s.notifyClient == nil || s.notifyEndpoint == "" {
		return
	}
	if err := s.notifyClient.Send(ctx, s.notifyEndpoint, event, body); err != nil {
		s.logger.Printf("notify delivery failed event=%s err=%v", event, err)
	}
}

func (s *Server) observeGeometry(result publish.Result) {
	format := string(result.Format)
	if format == "" {
		format = "unknown"
	}
	if result.AspectRatio == nil {
		s.metrics.geometryTotal.WithLabelValues(format, "failed").Inc()
		s.metrics.aspectFallbacksTotal.Inc()
		return
	}
	s.metrics.geometryTotal.WithLabelValues(format, "extracted").Inc()
}

func (s *Server) recordPublication(ctx context.Context, postID string, result publish.Result, publishDuration time.Duration) {
	if s.publicationStore == nil {
		return
	}

	publishTimeMS := publishDuration.Milliseconds()
	if publishTimeMS < 1 {
		publishTimeMS = 1
	}

	pub := domain.Publication{
		PostID:        postID,
		URI:           result.URI,
		CID:           result.CID,
		ImageBytes:    int64(result.ImageBytes),
		PublishTimeMS: publishTimeMS,
		CreatedAt:     time.Now().UTC(),
	}
	if result.Dimensions != nil {
		pub.Width = result.Dimensions.Width
		pub.Height = result.Dimensions.Height
	}
	if result.AspectRatio != nil {
		pub.AspectWidth = result.AspectRatio.Width
		pub.AspectHeight = result.AspectRatio.Height
	}

	if err := s.publicationStore.CreatePublication(ctx, pub); err != nil {
		s.logger.Printf("publication write failed post_id=%s err=%v", postID, err)
		return
	}

	s.metrics.imageBytesTotal.Add(float64(result.ImageBytes))
	s.metrics.publishTimeMSTotal.Add(float64(publishTimeMS))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
