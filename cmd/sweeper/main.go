package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pixelgate/pixelgate/internal/config"
	"github.com/pixelgate/pixelgate/internal/queue"
	"github.com/pixelgate/pixelgate/internal/sweeper"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[sweeper] ", log.LstdFlags|log.Lmsgprefix)

	payload := queue.CacheSweepPayload{
		CacheRoot:   cfg.Fetch.CacheRoot,
		MaxBytes:    cfg.Cache.MaxBytes,
		RequestedAt: time.Now().UTC(),
	}

	task, err := queue.NewCacheSweepTask(payload)
	if err != nil {
		logger.Fatalf("build sweep task: %v", err)
	}

	scheduler := asynq.NewScheduler(cfg.Queue.RedisClientOpt(), nil)
	if _, err := scheduler.Register(
		fmt.Sprintf("@every %s", cfg.Cache.SweepInterval),
		task,
		asynq.Queue(cfg.Queue.Name),
	); err != nil {
		logger.Fatalf("register sweep schedule: %v", err)
	}

	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Fatalf("scheduler failed: %v", err)
		}
	}()

	// One sweep right away; the scheduler covers the steady state. A cache
	// already over budget should not wait a full interval after a restart.
	client := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := client.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	enqueueCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if _, err := client.EnqueueCacheSweep(enqueueCtx, payload); err != nil {
		logger.Printf("startup sweep enqueue failed: %v", err)
	}
	cancel()

	logger.Printf(
		"starting sweeper root=%s budget=%d bytes interval=%s queue=%s redis=%s",
		cfg.Fetch.CacheRoot,
		cfg.Cache.MaxBytes,
		cfg.Cache.SweepInterval,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
	)

	srv := sweeper.NewServer(logger, cfg.Queue)
	if err := srv.Run(); err != nil {
		logger.Fatalf("sweeper failed: %v", err)
	}
}
