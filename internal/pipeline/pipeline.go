package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"media-optimizer/internal/filesystem"
	"media-optimizer/internal/logging"
	"media-optimizer/internal/markup"
	"media-optimizer/internal/media"
	"media-optimizer/internal/metrics"
	"media-optimizer/internal/plan"
	"media-optimizer/internal/workers"
)

// ReferenceProcessor handles one media reference.
type ReferenceProcessor interface {
	Process(ctx context.Context, ref plan.MediaReference) (media.Report, error)
}

// Options configures a run.
type Options struct {
	// Workers bounds how many references are processed at once. Zero
	// sizes the pool from the CPU count; 1 is sequential.
	Workers int
	// DryRun validates and rewrites pages in memory but writes nothing.
	DryRun bool
}

// Summary describes a completed run.
type Summary struct {
	Pages       int
	Rewritten   int
	References  int
	Derivatives int
	// Hits counts outputs restored from the cache, Misses outputs computed.
	Hits     int
	Misses   int
	DryRun   bool
	Duration time.Duration
}

// Pipeline is the orchestrator.
type Pipeline struct {
	processor ReferenceProcessor
	opts      Options
}

// New creates a Pipeline.
func New(processor ReferenceProcessor, opts Options) *Pipeline {
	opts.Workers = workers.Resolve(opts.Workers, 0)
	return &Pipeline{processor: processor, opts: opts}
}

type page struct {
	rel    string
	abs    string
	mode   fs.FileMode
	result markup.Result
}

// Run rewrites every page under outputDir and then processes every media
// reference found. Every page is validated before any file is written, so
// a malformed placeholder leaves the output untouched. The first processing
// failure cancels the remaining references and is returned.
func (p *Pipeline) Run(ctx context.Context, outputDir string) (summary Summary, err error) {
	start := time.Now()
	summary.DryRun = p.opts.DryRun
	defer func() {
		summary.Duration = time.Since(start)
		status := "success"
		switch {
		case err != nil:
			status = "error"
		case p.opts.DryRun:
			status = "dry_run"
		}
		metrics.BuildsTotal.WithLabelValues(status).Inc()
		metrics.BuildDuration.Observe(summary.Duration.Seconds())
		metrics.BuildLastTimestamp.SetToCurrentTime()
	}()

	pages, err := p.scan(outputDir)
	if err != nil {
		return summary, err
	}
	summary.Pages = len(pages)

	var refs []plan.MediaReference
	for _, pg := range pages {
		if pg.result.Changed() {
			summary.Rewritten++
			refs = append(refs, pg.result.References...)
		}
	}
	summary.References = len(refs)
	logging.Info("Found %d media reference(s) in %d of %d page(s)", len(refs), summary.Rewritten, len(pages))

	if p.opts.DryRun {
		for _, ref := range refs {
			derivatives, err := plan.Plan(ref.Policy, nil)
			if err != nil {
				return summary, err
			}
			summary.Derivatives += len(derivatives.Derivatives)
			logging.Info("[dry-run] %s (%s, from %s): %d derivative(s)",
				ref.SourcePath, ref.Policy, ref.Page, len(derivatives.Derivatives))
		}
		return summary, nil
	}

	if err := p.writePages(pages); err != nil {
		return summary, err
	}

	reports, err := p.process(ctx, refs)
	for _, r := range reports {
		summary.Derivatives += len(r.Derivatives)
		summary.Hits += r.Hits
		summary.Misses += r.Transcodes
	}
	return summary, err
}

// scan reads and rewrites every page in memory. Nothing is written.
func (p *Pipeline) scan(outputDir string) ([]page, error) {
	var pages []page
	err := filepath.WalkDir(outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isPage(path) {
			return nil
		}

		rel, err := filepath.Rel(outputDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		content, err := filesystem.ReadFileWithRetry(path, filesystem.DefaultRetryConfig())
		if err != nil {
			return fmt.Errorf("read page %s: %w", rel, err)
		}

		result, err := markup.Rewrite(filepath.ToSlash(rel), content)
		if err != nil {
			return err
		}
		metrics.PagesProcessed.Inc()
		pages = append(pages, page{rel: rel, abs: path, mode: info.Mode().Perm(), result: result})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].rel < pages[j].rel })
	return pages, nil
}

func isPage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return true
	}
	return false
}

func (p *Pipeline) writePages(pages []page) error {
	for _, pg := range pages {
		if !pg.result.Changed() {
			continue
		}
		if err := filesystem.WriteFileAtomic(pg.abs, pg.result.HTML, pg.mode); err != nil {
			return fmt.Errorf("write page %s: %w", pg.rel, err)
		}
		logging.Debug("Rewrote %s (%d reference(s))", pg.rel, len(pg.result.References))
	}
	return nil
}

func (p *Pipeline) process(ctx context.Context, refs []plan.MediaReference) ([]media.Report, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	var (
		mu      sync.Mutex
		reports = make([]media.Report, 0, len(refs))
	)

	for _, ref := range refs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			metrics.ReferencesInFlight.Inc()
			defer metrics.ReferencesInFlight.Dec()

			report, err := p.processor.Process(gctx, ref)
			if err != nil {
				return fmt.Errorf("%s (from %s): %w", ref.SourcePath, ref.Page, err)
			}
			mu.Lock()
			reports = append(reports, report)
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error("Media pass failed: %v", err)
	}
	return reports, err
}

// EnsureOutputDir checks that dir exists and is a directory.
func EnsureOutputDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("output directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output directory %s is not a directory", dir)
	}
	return nil
}
