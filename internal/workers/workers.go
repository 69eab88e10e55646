package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EnvOverride names the environment variable that pins the worker count.
const EnvOverride = "MEDIA_WORKERS"

// Count returns the number of media references to process concurrently.
// It respects container CPU limits via GOMAXPROCS.
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for libvips encoding, which is CPU-bound
//   - 2.0 when most references are expected to be cache hits (file copies)
//
// The limit parameter caps the worker count. Use 0 for no limit.
// MEDIA_WORKERS overrides the computed value but is still capped by limit.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(EnvOverride); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			return capped(count, limit)
		}
	}

	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if workers < 1 {
		workers = 1
	}
	return capped(workers, limit)
}

func capped(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}

// ForCPU returns a worker count for transcoding (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns a worker count for copy-dominated runs (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// Resolve turns a requested worker count into an effective one: values
// above zero are used as-is, zero means ForCPU(limit).
func Resolve(requested, limit int) int {
	if requested > 0 {
		return capped(requested, limit)
	}
	return ForCPU(limit)
}
