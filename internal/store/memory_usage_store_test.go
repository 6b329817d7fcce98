package store

import (
	"context"
	"testing"
	"time"

	"github.com/pixelgate/pixelgate/internal/domain"
)

func TestMemoryUsageStoreAppends(t *testing.T) {
	s := NewMemoryUsageStore()

	first := domain.UsageLog{
		RequestID:       "req-1",
		ImageAddress:    "photos/cat.jpg",
		Format:          domain.FormatJpeg,
		InputBytes:      2048,
		OutputBytes:     512,
		PixelsProcessed: 640 * 480,
		ComputeTimeMS:   12,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.CreateUsageLog(context.Background(), first); err != nil {
		t.Fatalf("create usage log: %v", err)
	}
	if err := s.CreateUsageLog(context.Background(), domain.UsageLog{RequestID: "req-2"}); err != nil {
		t.Fatalf("create second usage log: %v", err)
	}

	logs := s.Logs()
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if logs[0].RequestID != "req-1" || logs[1].RequestID != "req-2" {
		t.Fatalf("logs out of order: %+v", logs)
	}
	if logs[0].PixelsProcessed != 640*480 {
		t.Fatalf("unexpected pixel count: %d", logs[0].PixelsProcessed)
	}
}

func TestMemoryUsageStoreCopiesOnRead(t *testing.T) {
	s := NewMemoryUsageStore()
	if err := s.CreateUsageLog(context.Background(), domain.UsageLog{RequestID: "req-1"}); err != nil {
		t.Fatalf("create usage log: %v", err)
	}

	logs := s.Logs()
	logs[0].RequestID = "mutated"

	if s.Logs()[0].RequestID != "req-1" {
		t.Fatal("Logs must return a copy")
	}
}
