// Package media processes one media reference at a time: it plans the
// derivatives, produces each one through the cache, and then recompresses
// the original in place, also through the cache.
//
// Derivatives are always fully written before the original is touched, and
// they are encoded from the decode taken before recompression. The source is
// decoded lazily, so a reference whose outputs are all cached costs only a
// header read.
package media
