/*
Package pipeline is the orchestrator of a build's media pass.

A run has two phases. The first walks every HTML page under the output
directory and rewrites its placeholders in memory; a single malformed
placeholder or unknown resize policy aborts the run before any page or
image is touched. The rewritten pages are then written back atomically.

The second phase hands every media reference to a [ReferenceProcessor],
bounded by Options.Workers:

	p := pipeline.New(processor, pipeline.Options{Workers: workers.ForCPU(0)})
	summary, err := p.Run(ctx, "./public")

References are not deduplicated; two pages pointing at one image both
process it and the second is served from the cache. The first failure
cancels the references still in flight.
*/
package pipeline
