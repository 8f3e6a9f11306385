package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/halcyonlabs/skypost/internal/bsky"
	"github.com/halcyonlabs/skypost/internal/config"
	"github.com/halcyonlabs/skypost/internal/notify"
	"github.com/halcyonlabs/skypost/internal/ratelimit"
	"github.com/halcyonlabs/skypost/internal/storage"
	"github.com/halcyonlabs/skypost/internal/store"
	"github.com/halcyonlabs/skypost/internal/telemetry"
	"github.com/halcyonlabs/skypost/internal/worker"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmsgprefix)

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), telemetry.TraceConfig{
		ServiceName:  "skypost-worker",
		Exporter:     cfg.Trace.Exporter,
		OTLPEndpoint: cfg.Trace.OTLPEndpoint,
		OTLPInsecure: cfg.Trace.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	storageClient, err := storage.NewClient(storage.Config{
		Endpoint: cfg.Storage.Endpoint,
		Access:   cfg.Storage.AccessKey,
		Secret:   cfg.Storage.SecretKey,
		Bucket:   cfg.Storage.Bucket,
		UseSSL:   cfg.Storage.UseSSL,
	})
	if err != nil {
		logger.Fatalf("object storage setup failed: %v", err)
	}

	ensureCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := storageClient.EnsureBucket(ensureCtx); err != nil {
		logger.Printf("bucket check failed bucket=%s err=%v", storageClient.Bucket(), err)
	}
	cancel()

	bskyClient, err := bsky.NewClient(bsky.Config{
		Host:        cfg.Bluesky.Host,
		Identifier:  cfg.Bluesky.Identifier,
		AppPassword: cfg.Bluesky.AppPassword,
		Timeout:     cfg.Bluesky.Timeout,
	})
	if err != nil {
		logger.Fatalf("bsky client setup failed: %v", err)
	}

	notifyClient := notify.NewClient(notify.Config{
		SigningSecret: cfg.Notify.SigningSecret,
		MaxAttempts:   3,
	})

	var postStore store.PostStore
	if cfg.Database.DSN != "" {
		pg, err := store.NewPostgresPostStore(context.Background(), cfg.Database.DSN)
		if err != nil {
			logger.Fatalf("postgres setup failed: %v", err)
		}
		defer func() {
			if err := pg.Close(); err != nil {
				logger.Printf("postgres close error: %v", err)
			}
		}()
		postStore = pg
	} else {
		logger.Printf("POSTGRES_DSN not set, using in-memory post store")
		postStore = store.NewMemoryPostStore()
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		DB:       cfg.Queue.RedisDB,
	})
	limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.RateLimit.Capacity, cfg.RateLimit.Window, "skypost:ratelimit:publish")
	if err != nil {
		logger.Fatalf("rate limiter setup failed: %v", err)
	}

	srv, err := worker.NewServer(logger, cfg, storageClient, bskyClient, notifyClient, postStore, nil, limiter)
	if err != nil {
		logger.Fatalf("worker setup failed: %v", err)
	}

	go func() {
		metricsServer := &http.Server{
			Addr:         cfg.Worker.MetricsAddr,
			Handler:      srv.MetricsHandler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		logger.Printf("metrics listening on %s", cfg.Worker.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server failed: %v", err)
		}
	}()

	logger.Printf(
		"starting worker concurrency=%d max_active_posts=%d queue=%s redis=%s schedule_interval=%s",
		cfg.Worker.Concurrency,
		cfg.Worker.MaxActivePosts,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
		cfg.Worker.ScheduleInterval,
	)

	if err := srv.Run(); err != nil {
		logger.Fatalf("worker failed: %v", err)
	}
}
