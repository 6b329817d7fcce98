package sweeper

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeCacheFile(t *testing.T, root, name string, size int, age time.Duration) string {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	return path
}

func TestSweepUnderBudgetEvictsNothing(t *testing.T) {
	root := t.TempDir()
	writeCacheFile(t, root, "a/one.jpg", 100, time.Hour)
	writeCacheFile(t, root, "b/two.jpg", 100, time.Minute)

	result, err := Sweep(log.New(io.Discard, "", 0), root, 1000)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.ScannedFiles != 2 || result.ScannedBytes != 200 {
		t.Fatalf("unexpected scan: %+v", result)
	}
	if result.EvictedFiles != 0 {
		t.Fatalf("expected no evictions, got %+v", result)
	}
}

func TestSweepEvictsOldestFirst(t *testing.T) {
	root := t.TempDir()
	oldest := writeCacheFile(t, root, "a/oldest.jpg", 400, 3*time.Hour)
	middle := writeCacheFile(t, root, "b/middle.jpg", 400, 2*time.Hour)
	newest := writeCacheFile(t, root, "c/newest.jpg", 400, time.Hour)

	result, err := Sweep(log.New(io.Discard, "", 0), root, 500)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if result.EvictedFiles != 2 || result.EvictedBytes != 800 {
		t.Fatalf("unexpected eviction: %+v", result)
	}
	if _, err := os.Stat(oldest); !os.IsNotExist(err) {
		t.Fatal("oldest file should be evicted")
	}
	if _, err := os.Stat(middle); !os.IsNotExist(err) {
		t.Fatal("middle file should be evicted")
	}
	if _, err := os.Stat(newest); err != nil {
		t.Fatalf("newest file should survive: %v", err)
	}
}

func TestSweepMissingRootIsNoop(t *testing.T) {
	result, err := Sweep(log.New(io.Discard, "", 0), filepath.Join(t.TempDir(), "nope"), 1000)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.ScannedFiles != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestSweepRejectsNonPositiveBudget(t *testing.T) {
	if _, err := Sweep(log.New(io.Discard, "", 0), t.TempDir(), 0); err == nil {
		t.Fatal("expected an error for a zero budget")
	}
}
