package sweeper

import (
	"context"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/pixelgate/pixelgate/internal/config"
	"github.com/pixelgate/pixelgate/internal/queue"
)

// Server consumes cache:sweep tasks. It runs as its own process so cache
// maintenance never competes with request-serving CPU.
type Server struct {
	logger *log.Logger
	server *asynq.Server
}

func NewServer(logger *log.Logger, queueCfg config.QueueConfig) *Server {
	return &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				// Sweeps are serialized: two concurrent walks of the same
				// tree would double-count and double-evict.
				Concurrency: 1,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
	}
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeCacheSweep, s.handleCacheSweep)
	return s.server.Run(mux)
}

func (s *Server) handleCacheSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseCacheSweepPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	result, err := Sweep(s.logger, payload.CacheRoot, payload.MaxBytes)
	if err != nil {
		return fmt.Errorf("sweep cache: %w", err)
	}

	s.logger.Printf(
		"swept cache root=%s scanned=%d (%d bytes) evicted=%d (%d bytes)",
		payload.CacheRoot,
		result.ScannedFiles,
		result.ScannedBytes,
		result.EvictedFiles,
		result.EvictedBytes,
	)
	return nil
}
