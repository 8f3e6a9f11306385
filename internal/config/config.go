package config

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
)

type Config struct {
	API       APIConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Library   LibraryConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Bluesky   BlueskyConfig
	Notify    NotifyConfig
	RateLimit RateLimitConfig
	Trace     TraceConfig
}

type APIConfig struct {
	Addr       string
	PresignTTL time.Duration
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency      int
	MaxActivePosts   int
	MetricsAddr      string
	ScheduleInterval time.Duration
}

type LibraryConfig struct {
	Dir            string
	ArchiveDir     string
	DefaultCaption string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type DatabaseConfig struct {
	DSN string
}

type BlueskyConfig struct {
	Host        string
	Identifier  string
	AppPassword string
	Timeout     time.Duration
}

type NotifyConfig struct {
	Endpoint      string
	SigningSecret string
}

type RateLimitConfig struct {
	Capacity int
	Window   time.Duration
}

type TraceConfig struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

func Load() Config {
	return Config{
		API: APIConfig{
			Addr:       env("SKYPOST_API_ADDR", ":8080"),
			PresignTTL: envDuration("SKYPOST_PRESIGN_TTL", 15*time.Minute),
		},
		Queue: QueueConfig{
			RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
			RedisPassword: env("REDIS_PASSWORD", ""),
			RedisDB:       envInt("REDIS_DB", 0),
			Name:          env("ASYNC_QUEUE", "default"),
		},
		Worker: WorkerConfig{
			Concurrency:      envInt("WORKER_CONCURRENCY", max(2, runtime.NumCPU())),
			MaxActivePosts:   envInt("WORKER_MAX_ACTIVE_POSTS", max(1, runtime.NumCPU()/2)),
			MetricsAddr:      env("WORKER_METRICS_ADDR", ":2112"),
			ScheduleInterval: envDuration("SKYPOST_SCHEDULE_INTERVAL", time.Hour),
		},
		Library: LibraryConfig{
			Dir:            env("SKYPOST_LIBRARY_DIR", "./library"),
			ArchiveDir:     env("SKYPOST_ARCHIVE_DIR", "./library/posted"),
			DefaultCaption: env("SKYPOST_DEFAULT_CAPTION", "Photo of the day #photography"),
		},
		Storage: StorageConfig{
			Endpoint:  env("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    env("MINIO_BUCKET", "skypost-images"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},
		Database: DatabaseConfig{
			DSN: env("POSTGRES_DSN", ""),
		},
		Bluesky: BlueskyConfig{
			Host:        env("BSKY_HOST", "https://bsky.social"),
			Identifier:  env("BSKY_IDENTIFIER", ""),
			AppPassword: env("BSKY_APP_PASSWORD", ""),
			Timeout:     envDuration("BSKY_TIMEOUT", 30*time.Second),
		},
		Notify: NotifyConfig{
			Endpoint:      env("SKYPOST_NOTIFY_URL", ""),
			SigningSecret: env("SKYPOST_NOTIFY_SECRET", ""),
		},
		RateLimit: RateLimitConfig{
			Capacity: envInt("SKYPOST_RATE_LIMIT_CAPACITY", 30),
			Window:   envDuration("SKYPOST_RATE_LIMIT_WINDOW", time.Hour),
		},
		Trace: TraceConfig{
			Exporter:     env("SKYPOST_TRACE_EXPORTER", "none"),
			OTLPEndpoint: env("SKYPOST_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("SKYPOST_OTLP_INSECURE", false),
		},
	}
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
