package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"media-optimizer/internal/filesystem"
	"media-optimizer/internal/logging"
	"media-optimizer/internal/metrics"
)

// DiskBackend keeps entries as flat files under <dir>/entries.
type DiskBackend struct {
	dir   string
	retry filesystem.RetryConfig
}

// NewDiskBackend creates the entries directory under dir if needed.
func NewDiskBackend(dir string) (*DiskBackend, error) {
	entries := filepath.Join(dir, "entries")
	if err := os.MkdirAll(entries, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory %s: %w", entries, err)
	}
	return &DiskBackend{dir: dir, retry: filesystem.DefaultRetryConfig()}, nil
}

// Dir returns the cache root.
func (d *DiskBackend) Dir() string {
	return d.dir
}

// Name implements Backend.
func (d *DiskBackend) Name() string {
	return "disk"
}

func (d *DiskBackend) entryPath(key string) string {
	return filepath.Join(d.dir, "entries", key)
}

// Restore implements Backend.
func (d *DiskBackend) Restore(_ context.Context, key, target string) (bool, error) {
	entry := d.entryPath(key)
	if _, err := filesystem.StatWithRetry(entry, d.retry); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return true, err
	}

	if _, err := filesystem.CopyFile(entry, target, d.retry); err != nil {
		return true, err
	}
	return true, nil
}

// Populate implements Backend.
func (d *DiskBackend) Populate(_ context.Context, key, source string) error {
	_, err := filesystem.CopyFile(source, d.entryPath(key), d.retry)
	return err
}

// GetStats implements metrics.StatsProvider. Temp files from in-flight
// populates are not counted.
func (d *DiskBackend) GetStats() metrics.Stats {
	var stats metrics.Stats

	dirEntries, err := os.ReadDir(filepath.Join(d.dir, "entries"))
	if err != nil {
		logging.Debug("Failed to read cache directory: %v", err)
		return stats
	}

	for _, e := range dirEntries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stats.Entries++
		stats.Bytes += info.Size()
	}
	return stats
}

// Clear removes every entry. The directory itself is kept.
func (d *DiskBackend) Clear() (int, error) {
	entries := filepath.Join(d.dir, "entries")
	dirEntries, err := os.ReadDir(entries)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	var errs []error
	for _, e := range dirEntries {
		if err := os.RemoveAll(filepath.Join(entries, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
