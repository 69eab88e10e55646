package optimizer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"media-optimizer/internal/mediaerr"
	"media-optimizer/internal/profile"
)

// fakeTool writes an executable shell script standing in for gifsicle.
func fakeTool(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "gifsicle")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewGifsicleDefaults(t *testing.T) {
	g := NewGifsicle("", 0, profile.Default().Gifsicle)
	if g.Path != "gifsicle" {
		t.Errorf("Path = %q, want gifsicle", g.Path)
	}
	if g.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", g.Timeout, DefaultTimeout)
	}
}

func TestArgs(t *testing.T) {
	g := NewGifsicle("", 0, profile.Default().Gifsicle)
	got := strings.Join(g.Args("img/anim.gif"), " ")
	want := "--batch --optimize=3 --lossy=80 img/anim.gif"
	if got != want {
		t.Errorf("Args() = %q, want %q", got, want)
	}
}

func TestOptimize_Success(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	tool := fakeTool(t, `echo "$@" > `+argsFile)

	target := filepath.Join(t.TempDir(), "anim.gif")
	g := NewGifsicle(tool, time.Minute, profile.Default().Gifsicle)
	if !g.Available() {
		t.Fatal("fake tool should be available")
	}
	if err := g.Optimize(context.Background(), target); err != nil {
		t.Fatalf("Optimize() error: %v", err)
	}

	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(data)); got != "--batch --optimize=3 --lossy=80 "+target {
		t.Errorf("tool called with %q", got)
	}
}

func TestOptimize_NonZeroExit(t *testing.T) {
	tool := fakeTool(t, `echo "gifsicle: not a GIF" >&2; exit 1`)
	g := NewGifsicle(tool, time.Minute, profile.Default().Gifsicle)

	err := g.Optimize(context.Background(), "broken.gif")
	var toolErr *mediaerr.ExternalToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("error = %v, want ExternalToolError", err)
	}
	if toolErr.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", toolErr.ExitCode)
	}
	if toolErr.Stderr != "gifsicle: not a GIF" {
		t.Errorf("Stderr = %q", toolErr.Stderr)
	}
	if toolErr.TimedOut {
		t.Error("TimedOut should be false")
	}
}

func TestOptimize_Timeout(t *testing.T) {
	tool := fakeTool(t, `exec sleep 5`)
	g := NewGifsicle(tool, 50*time.Millisecond, profile.Default().Gifsicle)

	start := time.Now()
	err := g.Optimize(context.Background(), "slow.gif")
	var toolErr *mediaerr.ExternalToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("error = %v, want ExternalToolError", err)
	}
	if !toolErr.TimedOut {
		t.Error("TimedOut should be true")
	}
	if time.Since(start) > 3*time.Second {
		t.Error("timeout did not stop the tool")
	}
}

func TestOptimize_MissingExecutable(t *testing.T) {
	g := NewGifsicle(filepath.Join(t.TempDir(), "nope"), time.Minute, profile.Default().Gifsicle)
	if g.Available() {
		t.Error("missing tool reported available")
	}

	err := g.Optimize(context.Background(), "a.gif")
	var toolErr *mediaerr.ExternalToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("error = %v, want ExternalToolError", err)
	}
	if toolErr.ExitCode != 0 || toolErr.TimedOut {
		t.Errorf("unexpected %+v", toolErr)
	}
}
