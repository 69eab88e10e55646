// Package main provides the entry point for media-optimizer.
//
// media-optimizer runs once after a static site generator has written its
// output. It finds <picture optimize-image> placeholders in the generated
// HTML, writes responsive WebP derivatives beside each referenced image,
// rewrites the markup to reference them and recompresses the originals in
// place.
//
// # Run Sequence
//
//  1. Memory configuration: GOMEMLIMIT from MEMORY_LIMIT and the libvips cache size
//  2. Configuration: environment variables, then command-line flags
//  3. Cache setup: disk entries, optional Redis tier, sqlite ledger
//  4. libvips and gifsicle initialization
//  5. Phase 1: every page validated and rewritten in memory, then written
//  6. Phase 2: every reference processed with bounded parallelism
//  7. Metrics textfile and ledger build record
//
// SIGINT and SIGTERM cancel the references still in flight. Completed
// outputs stay in the cache and are reused by the next run.
//
// # Exit Status
//
// Any failure exits 1 with the asset and stage named, e.g.
//
//	Error: img/hero.png (from index.html): img/hero.png: open stage: decode img/hero.png: ...
//
// # Build
//
//	go build -ldflags "-X media-optimizer/internal/startup.Version=v1.2.0 \
//	  -X media-optimizer/internal/startup.Commit=$(git rev-parse --short HEAD)" \
//	  ./cmd/media-optimizer
package main
