package sweeper

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Result summarizes one sweep pass.
type Result struct {
	ScannedFiles int
	ScannedBytes int64
	EvictedFiles int
	EvictedBytes int64
}

type cacheEntry struct {
	path    string
	size    int64
	modTime time.Time
}

// Sweep walks the cache root and, when total size exceeds maxBytes, evicts
// files oldest-first until the cache fits the budget again. Eviction is by
// modification time, which the fetch layer refreshes on every cache write.
func Sweep(logger *log.Logger, root string, maxBytes int64) (Result, error) {
	if maxBytes <= 0 {
		return Result{}, fmt.Errorf("max bytes must be positive, got %d", maxBytes)
	}

	var entries []cacheEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, cacheEntry{
			path:    path,
			size:    info.Size(),
			modTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("walk cache root %s: %w", root, err)
	}

	result := Result{ScannedFiles: len(entries)}
	for _, e := range entries {
		result.ScannedBytes += e.size
	}
	if result.ScannedBytes <= maxBytes {
		return result, nil
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.Before(entries[j].modTime)
	})

	remaining := result.ScannedBytes
	for _, e := range entries {
		if remaining <= maxBytes {
			break
		}
		if err := os.Remove(e.path); err != nil {
			logger.Printf("cache evict failed path=%s err=%v", e.path, err)
			continue
		}
		remaining -= e.size
		result.EvictedFiles++
		result.EvictedBytes += e.size
	}

	return result, nil
}
