package queue

import (
	"testing"
	"time"

	"github.com/hibiken/asynq"
)

func TestCacheSweepTaskRoundTrip(t *testing.T) {
	payload := CacheSweepPayload{
		CacheRoot:   "/var/cache/pixelgate",
		MaxBytes:    512 << 20,
		RequestedAt: time.Now().UTC(),
	}

	task, err := NewCacheSweepTask(payload)
	if err != nil {
		t.Fatalf("NewCacheSweepTask returned error: %v", err)
	}

	parsed, err := ParseCacheSweepPayload(task)
	if err != nil {
		t.Fatalf("ParseCacheSweepPayload returned error: %v", err)
	}

	if parsed.CacheRoot != payload.CacheRoot {
		t.Fatalf("expected cache root %q, got %q", payload.CacheRoot, parsed.CacheRoot)
	}
	if parsed.MaxBytes != payload.MaxBytes {
		t.Fatalf("expected max bytes %d, got %d", payload.MaxBytes, parsed.MaxBytes)
	}
}

func TestParseCacheSweepPayloadRejectsEmptyRoot(t *testing.T) {
	task := asynq.NewTask(TypeCacheSweep, []byte(`{"max_bytes": 100}`))
	if _, err := ParseCacheSweepPayload(task); err == nil {
		t.Fatal("expected an error for a payload without a cache root")
	}
}
