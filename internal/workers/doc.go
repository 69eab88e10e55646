/*
Package workers sizes the pool that processes media references in parallel.

Transcoding through libvips is CPU-bound, so the default is one reference per
available CPU. In containers runtime.NumCPU reports the host's CPUs, while
GOMAXPROCS follows the cgroup limit (Go 1.19+), so the pool is sized from
GOMAXPROCS:

	n := workers.ForCPU(8) // at most 8 concurrent references

A build whose references are mostly cache hits is dominated by file copies,
for which ForIO doubles the count.

# Environment Variable Override

MEDIA_WORKERS pins the count regardless of CPU detection. MEDIA_WORKERS=1
restores strictly sequential processing:

	MEDIA_WORKERS=1 media-optimizer optimize ./dist

The override is still capped by the limit passed in.
*/
package workers
