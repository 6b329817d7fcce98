package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TypeCacheSweep = "cache:sweep"

// CacheSweepPayload asks a sweeper worker to trim the source-image disk
// cache back under its size budget.
type CacheSweepPayload struct {
	CacheRoot   string    `json:"cache_root"`
	MaxBytes    int64     `json:"max_bytes"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewCacheSweepTask(payload CacheSweepPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal sweep payload: %w", err)
	}
	return asynq.NewTask(TypeCacheSweep, body), nil
}

func ParseCacheSweepPayload(task *asynq.Task) (CacheSweepPayload, error) {
	var payload CacheSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return CacheSweepPayload{}, fmt.Errorf("unmarshal sweep payload: %w", err)
	}
	if payload.CacheRoot == "" {
		return CacheSweepPayload{}, fmt.Errorf("sweep payload missing cache root")
	}
	return payload, nil
}
