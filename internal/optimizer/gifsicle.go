// Package optimizer runs external optimizers on files in place.
package optimizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"media-optimizer/internal/logging"
	"media-optimizer/internal/mediaerr"
	"media-optimizer/internal/metrics"
	"media-optimizer/internal/profile"
)

// DefaultTimeout bounds a single gifsicle run.
const DefaultTimeout = 2 * time.Minute

const toolName = "gifsicle"

// Gifsicle optimizes animated GIFs in place.
type Gifsicle struct {
	// Path is the executable; a bare name is looked up in PATH.
	Path          string
	Timeout       time.Duration
	OptimizeLevel int
	Lossy         int
}

// NewGifsicle configures gifsicle from the encoding profile.
func NewGifsicle(path string, timeout time.Duration, p profile.GifsicleProfile) *Gifsicle {
	if path == "" {
		path = toolName
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gifsicle{Path: path, Timeout: timeout, OptimizeLevel: p.Optimize, Lossy: p.Lossy}
}

// Available reports whether the executable can be found.
func (g *Gifsicle) Available() bool {
	_, err := exec.LookPath(g.Path)
	return err == nil
}

// Args returns the command line arguments for file.
func (g *Gifsicle) Args(file string) []string {
	return []string{
		"--batch",
		fmt.Sprintf("--optimize=%d", g.OptimizeLevel),
		fmt.Sprintf("--lossy=%d", g.Lossy),
		file,
	}
}

// Optimize rewrites file in place. A nonzero exit or timeout is returned
// as *mediaerr.ExternalToolError.
func (g *Gifsicle) Optimize(ctx context.Context, file string) error {
	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, g.Path, g.Args(file)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	metrics.ExternalToolDuration.WithLabelValues(toolName).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.ExternalToolRuns.WithLabelValues(toolName, "success").Inc()
		logging.Debug("gifsicle optimized %s in %v", file, time.Since(start))
		return nil
	}

	toolErr := &mediaerr.ExternalToolError{
		Tool:   toolName,
		Path:   file,
		Stderr: strings.TrimSpace(stderr.String()),
		Err:    err,
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		toolErr.TimedOut = true
		metrics.ExternalToolRuns.WithLabelValues(toolName, "timeout").Inc()
	case errors.As(err, &exitErr):
		toolErr.ExitCode = exitErr.ExitCode()
		metrics.ExternalToolRuns.WithLabelValues(toolName, "error").Inc()
	default:
		metrics.ExternalToolRuns.WithLabelValues(toolName, "error").Inc()
	}
	return toolErr
}
