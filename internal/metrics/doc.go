// Package metrics provides Prometheus instrumentation for media-optimizer.
//
// All metrics are prefixed with "media_optimizer_" and registered on the
// default registry via promauto.
//
// # Metric Categories
//
// ## Build Metrics
//
//   - BuildsTotal: Counter of optimize runs by status
//   - BuildDuration: Histogram of run duration
//   - PagesProcessed: Counter of HTML pages scanned
//   - ReferencesProcessed: Counter of media references by policy and status
//
// ## Cache Metrics
//
//   - CacheLookupsTotal: Counter of lookups by result (hit, miss)
//   - CacheCopyOutcomes: Counter of restore/populate copies by outcome
//   - CacheRemoteTotal: Counter of remote tier operations
//   - CacheSizeBytes, CacheEntries: Gauges sampled by Collector
//
// ## Transcode Metrics
//
//   - TranscodesTotal, TranscodeDuration: by kind (derivative, original) and format
//   - BytesSaved: bytes removed from originals by in-place recompression
//   - ExternalToolRuns, ExternalToolDuration: gifsicle invocations
//
// ## Filesystem Metrics
//
// Recorded through the filesystem.Observer returned by NewFilesystemObserver.
// Volumes are "output" (the site being optimized) and "cache".
//
// # Export
//
// A build is short-lived, so the primary export is WriteTextfile, suitable
// for the node_exporter textfile collector. For long builds NewServer serves
// /metrics and /healthz while the build runs.
package metrics
