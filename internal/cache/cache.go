// Package cache implements the persistent artifact cache that lets repeated
// builds skip transcoding.
//
// Entries are keyed by Key and never invalidated by the pipeline; changing
// the encoding profile changes every key instead.
package cache

import (
	"context"
	"os"

	"golang.org/x/sync/singleflight"

	"media-optimizer/internal/logging"
	"media-optimizer/internal/metrics"
)

// CopyOutcome records what happened to a copy between the cache and the
// build output. A failed copy is an outcome, not an error: the build is
// still valid, just less cache-efficient.
type CopyOutcome int

const (
	// NotAttempted means no copy was needed in that direction.
	NotAttempted CopyOutcome = iota
	// Copied means the bytes were transferred.
	Copied
	// Skipped means the copy failed and was ignored.
	Skipped
)

func (o CopyOutcome) String() string {
	switch o {
	case Copied:
		return "copied"
	case Skipped:
		return "skipped"
	default:
		return "not_attempted"
	}
}

// Result describes one GetOrCompute call.
type Result struct {
	// Hit is true when an entry existed for the key.
	Hit bool
	// Computed is true when compute ran, including after a failed restore.
	Computed bool
	// Shared is true when the call joined another caller's in-flight work.
	Shared  bool
	Restore CopyOutcome
	// Populate is Copied or Skipped after a compute.
	Populate CopyOutcome
}

// ComputeFunc materialises the target file.
type ComputeFunc func(ctx context.Context) error

// Recorder observes cache traffic, e.g. the build ledger.
type Recorder interface {
	RecordHit(ctx context.Context, key string) error
	RecordMiss(ctx context.Context, key string) error
	RecordPopulate(ctx context.Context, key string, size int64) error
}

// Store is the cache front end used by the media processor.
type Store struct {
	backend  Backend
	recorder Recorder
	group    singleflight.Group
}

// Option configures a Store.
type Option func(*Store)

// WithRecorder attaches a Recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		s.recorder = r
	}
}

// New creates a Store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{backend: backend}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// GetOrCompute ensures target holds the output for key. On a hit the entry
// is copied to target. On a miss, or when the restore copy fails, compute
// runs and target is then copied into the cache. Errors from compute are
// returned unchanged; copy failures never are.
//
// Concurrent calls with the same key share one execution. Keys embed the
// output path, so sharing callers also share the target.
func (s *Store) GetOrCompute(ctx context.Context, key, target string, compute ComputeFunc) (Result, error) {
	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		return s.getOrCompute(ctx, key, target, compute)
	})
	res, _ := v.(Result)
	res.Shared = shared
	return res, err
}

func (s *Store) getOrCompute(ctx context.Context, key, target string, compute ComputeFunc) (Result, error) {
	var res Result

	found, err := s.backend.Restore(ctx, key, target)
	switch {
	case found && err == nil:
		res.Hit = true
		res.Restore = Copied
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		metrics.CacheCopyOutcomes.WithLabelValues("restore", "copied").Inc()
		s.record(func(r Recorder) error { return r.RecordHit(ctx, key) })
		logging.Debug("Cache hit %s -> %s", key, target)
		return res, nil

	case found:
		res.Hit = true
		res.Restore = Skipped
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		metrics.CacheCopyOutcomes.WithLabelValues("restore", "skipped").Inc()
		logging.Warn("Cache restore of %s failed, recomputing: %v", key, err)

	default:
		if err != nil {
			logging.Debug("Cache lookup for %s failed, treating as miss: %v", key, err)
		}
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		s.record(func(r Recorder) error { return r.RecordMiss(ctx, key) })
		logging.Debug("Cache miss %s", key)
	}

	res.Computed = true
	if err := compute(ctx); err != nil {
		return res, err
	}

	if err := s.backend.Populate(ctx, key, target); err != nil {
		res.Populate = Skipped
		metrics.CacheCopyOutcomes.WithLabelValues("populate", "skipped").Inc()
		logging.Warn("Failed to populate cache entry %s: %v", key, err)
		return res, nil
	}

	res.Populate = Copied
	metrics.CacheCopyOutcomes.WithLabelValues("populate", "copied").Inc()
	if info, err := os.Stat(target); err == nil {
		s.record(func(r Recorder) error { return r.RecordPopulate(ctx, key, info.Size()) })
	}
	return res, nil
}

func (s *Store) record(fn func(Recorder) error) {
	if s.recorder == nil {
		return
	}
	if err := fn(s.recorder); err != nil {
		logging.Warn("Failed to record cache event: %v", err)
	}
}
