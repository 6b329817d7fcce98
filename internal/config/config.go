package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pixelgate/pixelgate/internal/domain"
)

type Config struct {
	Server    ServerConfig
	Fetch     FetchConfig
	Compute   ComputeConfig
	RateLimit RateLimitConfig
	Queue     QueueConfig
	Cache     CacheConfig
	Storage   StorageConfig
	Database  DatabaseConfig
}

type ServerConfig struct {
	Addr string
}

type FetchConfig struct {
	CacheRoot string
	Timeout   time.Duration
}

// ComputeConfig sizes the transform worker pool. Workers bound concurrent
// pixel work; QueueDepth absorbs bursts before requests are shed.
type ComputeConfig struct {
	Workers      int
	QueueDepth   int
	QualityRules []domain.QualityRule
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Capacity      int
	Window        time.Duration
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

type CacheConfig struct {
	MaxBytes      int64
	SweepInterval time.Duration
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type DatabaseConfig struct {
	DSN string
}

func Load() Config {
	return Config{
		Server: ServerConfig{
			Addr: env("PIXELGATE_ADDR", ":8080"),
		},
		Fetch: FetchConfig{
			CacheRoot: env("PIXELGATE_CACHE_ROOT", "./.pixelgate-cache"),
			Timeout:   envDuration("PIXELGATE_FETCH_TIMEOUT", 10*time.Second),
		},
		Compute: ComputeConfig{
			Workers:      envInt("PIXELGATE_WORKERS", max(1, runtime.NumCPU())),
			QueueDepth:   envInt("PIXELGATE_QUEUE_DEPTH", 64),
			QualityRules: envQualityRules("PIXELGATE_QUALITY_RULES", domain.DefaultQualityRules()),
		},
		RateLimit: RateLimitConfig{
			Enabled:       envBool("PIXELGATE_RATELIMIT_ENABLED", false),
			RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
			RedisPassword: env("REDIS_PASSWORD", ""),
			RedisDB:       envInt("REDIS_DB", 0),
			Capacity:      envInt("PIXELGATE_RATELIMIT_CAPACITY", 60),
			Window:        envDuration("PIXELGATE_RATELIMIT_WINDOW", time.Minute),
		},
		Queue: QueueConfig{
			RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
			RedisPassword: env("REDIS_PASSWORD", ""),
			RedisDB:       envInt("REDIS_DB", 0),
			Name:          env("ASYNC_QUEUE", "pixelgate"),
		},
		Cache: CacheConfig{
			MaxBytes:      envInt64("PIXELGATE_CACHE_MAX_BYTES", 1<<30),
			SweepInterval: envDuration("PIXELGATE_CACHE_SWEEP_INTERVAL", time.Hour),
		},
		Storage: StorageConfig{
			Enabled:   envBool("MINIO_ENABLED", false),
			Endpoint:  env("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    env("MINIO_BUCKET", "pixelgate-sources"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},
		Database: DatabaseConfig{
			DSN: env("POSTGRES_DSN", ""),
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

func envInt64(key string, fallback int64) int64 {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
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

// envQualityRules parses "suffix=quality" pairs separated by commas, e.g.
// "400X400.jpg=68,100X100.png=80". Malformed pairs are skipped.
func envQualityRules(key string, fallback []domain.QualityRule) []domain.QualityRule {
	value := env(key, "")
	if value == "" {
		return fallback
	}

	var rules []domain.QualityRule
	for _, pair := range strings.Split(value, ",") {
		suffix, quality, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || suffix == "" {
			continue
		}
		parsed, err := strconv.Atoi(quality)
		if err != nil || parsed < 1 || parsed > 100 {
			continue
		}
		rules = append(rules, domain.QualityRule{Suffix: suffix, Quality: parsed})
	}
	if len(rules) == 0 {
		return fallback
	}
	return rules
}
