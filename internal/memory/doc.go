// Package memory fits the optimizer into a container memory limit.
//
// Image decoding is the memory-heavy part of a build, and most of it happens
// inside libvips rather than on the Go heap. ConfigureFromEnv therefore caps
// the Go heap (GOMEMLIMIT) at a share of MEMORY_LIMIT and sizes the libvips
// operation cache from what remains.
package memory
