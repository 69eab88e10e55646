// Package ledger keeps a SQLite record of cache traffic and build history
// inside the cache directory.
//
// The ledger is informational. The cache works without it, and a ledger
// write failure never fails a build; it backs "media-optimizer cache stats".
//
// Tables:
//
//   - cache_entries: key, size, created_at, last_used_at, hits, misses
//   - builds: one row per optimize run, keyed by a random UUID
package ledger
