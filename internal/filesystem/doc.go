/*
Package filesystem provides the file operations the optimizer relies on for
its cache and build output.

# Retry

Build caches are often mounted from NFS on CI runners. StatWithRetry,
OpenWithRetry and ReadFileWithRetry retry ESTALE (stale file handle) errors
with exponential backoff and return every other error immediately:

	info, err := filesystem.StatWithRetry(entry, filesystem.DefaultRetryConfig())

# Atomic writes

WriteFileAtomic and CopyFile write to a temporary file in the destination
directory and rename it into place. A reader, including a concurrent build
sharing the same cache directory, sees either the old file or the complete
new one.

# Metrics

Set an Observer with SetObserver to record operation durations and retry
counts; metrics.NewFilesystemObserver provides the Prometheus implementation.
Volume labels come from a VolumeResolver ("output", "cache").
*/
package filesystem
