// Package cli implements the media-optimizer command tree with cobra.
//
// The optimize command wires the disk cache (optionally tiered over Redis
// and recorded in the sqlite ledger), the libvips transcoder, gifsicle and
// the pipeline. The cache commands inspect and clear the same directory.
package cli
