// Package startup loads the build configuration and prints the lifecycle
// log of a run.
//
// # Configuration
//
// [LoadConfig] reads defaults from the environment; the optimize command
// then applies its flags and calls [Config.Prepare], which resolves paths,
// creates the cache directory and logs the effective values.
//
//   - OUTPUT_DIR: site output directory (the optimize argument wins)
//   - MEDIA_OPTIMIZER_CACHE_DIR: artifact cache (default: $XDG_CACHE_HOME/media-optimizer)
//   - PROFILE_FILE: YAML encoding profile (default: built-in)
//   - GIFSICLE_PATH: gifsicle binary (default: gifsicle)
//   - GIFSICLE_TIMEOUT: per-file gifsicle timeout (default: 2m)
//   - MEDIA_WORKERS: concurrent references, 0 for one per CPU
//   - LOSSLESS_THRESHOLD_KB: overrides the profile's WebP lossless threshold
//   - REDIS_URL: shared remote cache tier (default: disabled)
//   - REDIS_TTL: lifetime of remote entries (default: 720h)
//   - LEDGER_ENABLED: record builds and cache use in sqlite (default: true)
//   - METRICS_FILE: Prometheus textfile written when the build ends
//   - METRICS_ADDR: serve /metrics and /healthz while the build runs
//   - LOG_LEVEL, DEBUG: see package logging
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT: see package memory
//
// # Build Information
//
// Version, Commit and BuildTime are injected via ldflags and exposed via
// [GetBuildInfo].
package startup
