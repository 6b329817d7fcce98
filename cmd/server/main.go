package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pixelgate/pixelgate/internal/api"
	"github.com/pixelgate/pixelgate/internal/config"
	"github.com/pixelgate/pixelgate/internal/pipeline"
	"github.com/pixelgate/pixelgate/internal/provider"
	"github.com/pixelgate/pixelgate/internal/ratelimit"
	"github.com/pixelgate/pixelgate/internal/storage"
	"github.com/pixelgate/pixelgate/internal/store"
	"github.com/pixelgate/pixelgate/internal/telemetry"
	"github.com/pixelgate/pixelgate/internal/workerpool"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[pixelgate] ", log.LstdFlags|log.Lmsgprefix)

	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "pixelgate",
		Exporter:     os.Getenv("TRACE_EXPORTER"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
		OTLPInsecure: os.Getenv("OTLP_INSECURE") == "true",
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}

	if err := pipeline.Startup(); err != nil {
		logger.Fatalf("image engine startup failed: %v", err)
	}
	defer pipeline.Shutdown()

	processor, err := pipeline.NewProcessor(logger)
	if err != nil {
		logger.Fatalf("processor init failed: %v", err)
	}

	pool, err := workerpool.New(logger, cfg.Compute.Workers, cfg.Compute.QueueDepth)
	if err != nil {
		logger.Fatalf("worker pool init failed: %v", err)
	}
	defer pool.Shutdown()

	var storageClient *storage.Client
	if cfg.Storage.Enabled {
		storageClient, err = storage.NewClient(storage.Config{
			Endpoint: cfg.Storage.Endpoint,
			Access:   cfg.Storage.AccessKey,
			Secret:   cfg.Storage.SecretKey,
			Bucket:   cfg.Storage.Bucket,
			UseSSL:   cfg.Storage.UseSSL,
		})
		if err != nil {
			logger.Fatalf("object storage init failed: %v", err)
		}
	}

	imgProvider, err := provider.New(logger, cfg.Fetch.CacheRoot, cfg.Fetch.Timeout, storageClient)
	if err != nil {
		logger.Fatalf("provider init failed: %v", err)
	}

	var usageStore store.UsageStore
	if cfg.Database.DSN != "" {
		pgStore, err := store.NewPostgresUsageStore(ctx, cfg.Database.DSN)
		if err != nil {
			logger.Fatalf("usage store init failed: %v", err)
		}
		defer pgStore.Close()
		usageStore = pgStore
	} else {
		usageStore = store.NewMemoryUsageStore()
	}

	var limiter api.RateLimiter
	if cfg.RateLimit.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})
		defer redisClient.Close()

		limiter, err = ratelimit.NewRedisTokenBucket(redisClient, cfg.RateLimit.Capacity, cfg.RateLimit.Window, "")
		if err != nil {
			logger.Fatalf("rate limiter init failed: %v", err)
		}
	}

	app := api.NewServer(logger, imgProvider, processor, pool, api.Options{
		UsageStore:   usageStore,
		QualityRules: cfg.Compute.QualityRules,
		RateLimiter:  limiter,
	})

	root := http.NewServeMux()
	root.Handle("/metrics", app.MetricsHandler())
	root.Handle("/", app.Handler())

	httpServer := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     root,
		ReadTimeout: 15 * time.Second,
		// Transforms of large sources can take a while; the write timeout
		// covers pipeline execution, not just streaming.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s workers=%d", cfg.Server.Addr, cfg.Compute.Workers)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Printf("tracing shutdown failed: %v", err)
	}
}
