package store

import (
	"context"
	"sync"

	"github.com/pixelgate/pixelgate/internal/domain"
)

// MemoryUsageStore keeps usage records in process memory. It backs tests and
// deployments that run without Postgres.
type MemoryUsageStore struct {
	mu   sync.RWMutex
	logs []domain.UsageLog
}

func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{}
}

func (s *MemoryUsageStore) CreateUsageLog(_ context.Context, usage domain.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, usage)
	return nil
}

func (s *MemoryUsageStore) Logs() []domain.UsageLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UsageLog, len(s.logs))
	copy(out, s.logs)
	return out
}
