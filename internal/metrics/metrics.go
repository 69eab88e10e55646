package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Build metrics
var (
	BuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_builds_total",
			Help: "Total number of optimize runs",
		},
		[]string{"status"}, // "success", "error", "dry_run"
	)

	BuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_optimizer_build_duration_seconds",
			Help:    "Duration of a complete optimize run in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	BuildLastTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_optimizer_build_last_timestamp",
			Help: "Unix timestamp of the last completed optimize run",
		},
	)

	PagesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_optimizer_pages_processed_total",
			Help: "Total number of HTML pages scanned for media placeholders",
		},
	)

	ReferencesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_references_processed_total",
			Help: "Total number of media references processed",
		},
		[]string{"policy", "status"},
	)

	ReferencesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_optimizer_references_in_flight",
			Help: "Number of media references currently being processed",
		},
	)
)

// Cache metrics
var (
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_cache_lookups_total",
			Help: "Total number of cache lookups by result",
		},
		[]string{"result"}, // "hit", "miss"
	)

	CacheCopyOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_cache_copy_outcomes_total",
			Help: "Outcome of cache restore and populate copies",
		},
		[]string{"direction", "outcome"}, // "restore"/"populate", "copied"/"skipped"
	)

	CacheRemoteTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_cache_remote_operations_total",
			Help: "Operations against the remote cache tier",
		},
		[]string{"operation", "status"},
	)

	CacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_optimizer_cache_size_bytes",
			Help: "Total size of the on-disk cache in bytes",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_optimizer_cache_entries",
			Help: "Number of entries in the on-disk cache",
		},
	)
)

// Transcode metrics
var (
	TranscodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_transcodes_total",
			Help: "Total number of transcode operations",
		},
		[]string{"kind", "format", "status"},
	)

	TranscodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_optimizer_transcode_duration_seconds",
			Help:    "Transcode duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind", "format"},
	)

	BytesSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_bytes_saved_total",
			Help: "Bytes saved by recompressing originals in place",
		},
		[]string{"format"},
	)

	ExternalToolRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_external_tool_runs_total",
			Help: "Total number of external optimizer invocations",
		},
		[]string{"tool", "status"}, // "success", "error", "timeout"
	)

	ExternalToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_optimizer_external_tool_duration_seconds",
			Help:    "External optimizer run duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 120},
		},
		[]string{"tool"},
	)
)

// Ledger metrics
var (
	LedgerQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_ledger_queries_total",
			Help: "Total number of ledger queries",
		},
		[]string{"operation", "status"},
	)

	LedgerQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_optimizer_ledger_query_duration_seconds",
			Help:    "Ledger query duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"operation"},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_optimizer_filesystem_operation_duration_seconds",
			Help:    "Duration of filesystem operations by volume",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_filesystem_operation_errors_total",
			Help: "Total number of failed filesystem operations by volume",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_filesystem_retry_attempts_total",
			Help: "Total number of retries after a stale file handle",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_filesystem_retry_success_total",
			Help: "Operations that succeeded after at least one retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_filesystem_retry_failures_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_optimizer_filesystem_retry_duration_seconds",
			Help:    "Total time spent in retried filesystem operations",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_filesystem_stale_errors_total",
			Help: "Total number of ESTALE errors observed",
		},
		[]string{"operation", "volume"},
	)
)

// Application info
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_optimizer_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
