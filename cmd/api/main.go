package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/halcyonlabs/skypost/internal/api"
	"github.com/halcyonlabs/skypost/internal/config"
	"github.com/halcyonlabs/skypost/internal/queue"
	"github.com/halcyonlabs/skypost/internal/ratelimit"
	"github.com/halcyonlabs/skypost/internal/storage"
	"github.com/halcyonlabs/skypost/internal/store"
	"github.com/halcyonlabs/skypost/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), telemetry.TraceConfig{
		ServiceName:  "skypost-api",
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

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
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
	limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.RateLimit.Capacity, cfg.RateLimit.Window, "skypost:ratelimit:api")
	if err != nil {
		logger.Fatalf("rate limiter setup failed: %v", err)
	}

	app := api.NewServer(logger, queueClient, postStore, storageClient, api.Options{
		PresignTTL:  cfg.API.PresignTTL,
		RateLimiter: limiter,
	})

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.API.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}
