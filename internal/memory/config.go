package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"media-optimizer/internal/logging"
)

const (
	// DefaultMemoryRatio is the share of the container limit given to the Go heap.
	// libvips allocates pixel buffers outside the Go heap, so the rest is left to it.
	DefaultMemoryRatio = 0.6

	// DefaultVipsCacheBytes is the libvips operation cache size when no limit is known.
	DefaultVipsCacheBytes = 50 * 1024 * 1024

	// maxVipsCacheBytes caps the libvips operation cache regardless of the limit.
	maxVipsCacheBytes = 512 * 1024 * 1024
)

// ConfigResult describes what ConfigureFromEnv decided.
type ConfigResult struct {
	// Configured indicates whether GOMEMLIMIT is in effect
	Configured bool

	// Source is "GOMEMLIMIT", "MEMORY_LIMIT" or "none"
	Source string

	// ContainerLimit is the container memory limit in bytes (0 if not set)
	ContainerLimit int64

	// GoMemLimit is the effective GOMEMLIMIT in bytes (0 if not set)
	GoMemLimit int64

	// Ratio is the heap share applied to ContainerLimit (0 if not applicable)
	Ratio float64

	// VipsCacheBytes is the suggested libvips operation cache size
	VipsCacheBytes int
}

// ConfigureFromEnv sets GOMEMLIMIT from a container limit and sizes the
// libvips cache to fit beside it. Call it before InitVips.
//
// Environment variables:
//   - GOMEMLIMIT: standard Go variable, takes precedence and is left untouched
//   - MEMORY_LIMIT: container memory limit in bytes
//   - MEMORY_RATIO: heap share of MEMORY_LIMIT (default: 0.6)
func ConfigureFromEnv() ConfigResult {
	result := ConfigResult{Source: "none", VipsCacheBytes: DefaultVipsCacheBytes}

	if goMemLimitEnv := os.Getenv("GOMEMLIMIT"); goMemLimitEnv != "" {
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.Source = "GOMEMLIMIT"
			result.GoMemLimit = limit
		}
		logging.Debug("GOMEMLIMIT set via environment: %s", goMemLimitEnv)
		return result
	}

	memLimitStr := os.Getenv("MEMORY_LIMIT")
	if memLimitStr == "" {
		return result
	}

	memLimit, err := strconv.ParseInt(memLimitStr, 10, 64)
	if err != nil || memLimit <= 0 {
		logging.Warn("Ignoring MEMORY_LIMIT %q: not a positive byte count", memLimitStr)
		return result
	}
	result.ContainerLimit = memLimit

	ratio := ParseRatio(os.Getenv("MEMORY_RATIO"))
	result.Ratio = ratio

	goMemLimit := int64(float64(memLimit) * ratio)
	debug.SetMemoryLimit(goMemLimit)

	result.Configured = true
	result.Source = "MEMORY_LIMIT"
	result.GoMemLimit = goMemLimit
	result.VipsCacheBytes = VipsCacheBudget(memLimit - goMemLimit)

	logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s), libvips cache %s",
		FormatBytes(goMemLimit),
		ratio*100,
		FormatBytes(memLimit),
		FormatBytes(int64(result.VipsCacheBytes)),
	)

	return result
}

// ParseRatio parses MEMORY_RATIO, falling back to DefaultMemoryRatio for
// empty, malformed or out-of-range values.
func ParseRatio(s string) float64 {
	if s == "" {
		return DefaultMemoryRatio
	}
	ratio, err := strconv.ParseFloat(s, 64)
	if err != nil || ratio <= 0 || ratio > 1.0 {
		logging.Warn("MEMORY_RATIO %q invalid (want 0.0-1.0), using %.2f", s, DefaultMemoryRatio)
		return DefaultMemoryRatio
	}
	return ratio
}

// VipsCacheBudget gives libvips a quarter of the memory left outside the Go heap.
func VipsCacheBudget(nonHeap int64) int {
	budget := nonHeap / 4
	switch {
	case budget <= 0:
		return DefaultVipsCacheBytes
	case budget > maxVipsCacheBytes:
		return maxVipsCacheBytes
	}
	return int(budget)
}

// FormatBytes formats bytes into a human-readable string
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
