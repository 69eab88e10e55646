package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"media-optimizer/internal/cache"
	"media-optimizer/internal/media"
	"media-optimizer/internal/mediaerr"
	"media-optimizer/internal/plan"
)

type fakeProcessor struct {
	mu    sync.Mutex
	seen  []plan.MediaReference
	fail  string
	block bool
	calls atomic.Int32
}

func (f *fakeProcessor) Process(ctx context.Context, ref plan.MediaReference) (media.Report, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, ref)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return media.Report{}, ctx.Err()
	}
	if ref.SourcePath == f.fail {
		return media.Report{}, &mediaerr.StageError{Asset: ref.SourcePath, Stage: mediaerr.StageOpen, Err: errors.New("corrupt")}
	}

	derivatives, _ := plan.Plan(ref.Policy, nil)
	report := media.Report{Reference: ref, Original: cache.Result{Computed: true}}
	for _, d := range derivatives.Derivatives {
		report.Derivatives = append(report.Derivatives, media.DerivativeOutput{Derivative: d})
	}
	report.Transcodes = len(report.Derivatives) + 1
	return report, nil
}

func writeSite(t *testing.T, pages map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range pages {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

const (
	upPage    = `<html><body><picture optimize-image resize="up"><img src="/img/a.jpg"></picture></body></html>`
	plainPage = `<html><body><p>nothing to see</p></body></html>`
)

func TestRun_RewritesPagesAndProcessesReferences(t *testing.T) {
	dir := writeSite(t, map[string]string{
		"index.html":       upPage,
		"about/index.html": `<html><body><img optimize-image src="../img/b.png"></body></html>`,
		"plain.html":       plainPage,
		"style.css":        "body{}",
	})
	proc := &fakeProcessor{}

	summary, err := New(proc, Options{Workers: 2}).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if summary.Pages != 3 {
		t.Errorf("Pages = %d, want 3", summary.Pages)
	}
	if summary.Rewritten != 2 {
		t.Errorf("Rewritten = %d, want 2", summary.Rewritten)
	}
	if summary.References != 2 {
		t.Errorf("References = %d, want 2", summary.References)
	}
	if summary.Derivatives != 6 {
		t.Errorf("Derivatives = %d, want 6", summary.Derivatives)
	}
	if summary.Misses != 8 || summary.Hits != 0 {
		t.Errorf("Hits/Misses = %d/%d, want 0/8", summary.Hits, summary.Misses)
	}

	var sources []string
	for _, ref := range proc.seen {
		sources = append(sources, ref.SourcePath)
	}
	sort.Strings(sources)
	if strings.Join(sources, ",") != "img/a.jpg,img/b.png" {
		t.Errorf("processed = %v", sources)
	}

	index := readFile(t, filepath.Join(dir, "index.html"))
	if !strings.Contains(index, `srcset="/img/aa.webp 1x,`) {
		t.Errorf("index.html not rewritten: %s", index)
	}
	if got := readFile(t, filepath.Join(dir, "plain.html")); got != plainPage {
		t.Errorf("plain.html changed: %s", got)
	}
}

func TestRun_DuplicateReferencesAreNotDeduplicated(t *testing.T) {
	dir := writeSite(t, map[string]string{
		"one.html": upPage,
		"two.html": upPage,
	})
	proc := &fakeProcessor{}

	summary, err := New(proc, Options{Workers: 1}).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if summary.References != 2 || proc.calls.Load() != 2 {
		t.Errorf("References = %d, calls = %d, want 2 and 2", summary.References, proc.calls.Load())
	}
}

func TestRun_InvalidPlaceholderWritesNothing(t *testing.T) {
	tests := []struct {
		name    string
		bad     string
		wantErr func(error) bool
	}{
		{
			name: "missing src",
			bad:  `<picture optimize-image><img alt="x"></picture>`,
			wantErr: func(err error) bool {
				var target *mediaerr.MissingRequiredAttributeError
				return errors.As(err, &target)
			},
		},
		{
			name: "unknown policy",
			bad:  `<picture optimize-image resize="sideways"><img src="/img/c.jpg"></picture>`,
			wantErr: func(err error) bool {
				var target *mediaerr.UnknownResizePolicyError
				return errors.As(err, &target) && target.Token == "sideways"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeSite(t, map[string]string{
				"a.html": upPage,
				"z.html": tt.bad,
			})
			proc := &fakeProcessor{}

			_, err := New(proc, Options{Workers: 1}).Run(context.Background(), dir)
			if err == nil || !tt.wantErr(err) {
				t.Fatalf("Run() error = %v", err)
			}
			if proc.calls.Load() != 0 {
				t.Errorf("processor called %d times, want 0", proc.calls.Load())
			}
			if got := readFile(t, filepath.Join(dir, "a.html")); got != upPage {
				t.Errorf("a.html was written before validation finished: %s", got)
			}
		})
	}
}

func TestRun_DryRun(t *testing.T) {
	dir := writeSite(t, map[string]string{"index.html": upPage})
	proc := &fakeProcessor{}

	summary, err := New(proc, Options{Workers: 1, DryRun: true}).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !summary.DryRun || summary.References != 1 || summary.Derivatives != 5 {
		t.Errorf("summary = %+v", summary)
	}
	if proc.calls.Load() != 0 {
		t.Errorf("processor called during dry run")
	}
	if got := readFile(t, filepath.Join(dir, "index.html")); got != upPage {
		t.Errorf("dry run wrote index.html: %s", got)
	}
}

func TestRun_ProcessorErrorIsReturned(t *testing.T) {
	dir := writeSite(t, map[string]string{
		"index.html": `<img optimize-image src="/img/good.png"><img optimize-image src="/img/bad.png">`,
	})
	proc := &fakeProcessor{fail: "img/bad.png"}

	_, err := New(proc, Options{Workers: 1}).Run(context.Background(), dir)
	var stage *mediaerr.StageError
	if !errors.As(err, &stage) {
		t.Fatalf("Run() error = %v, want StageError", err)
	}
	if stage.Asset != "img/bad.png" {
		t.Errorf("Asset = %q", stage.Asset)
	}
	if !strings.Contains(err.Error(), "index.html") {
		t.Errorf("error %q does not name the page", err)
	}
}

func TestRun_Cancellation(t *testing.T) {
	dir := writeSite(t, map[string]string{"index.html": upPage})
	proc := &fakeProcessor{block: true}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := New(proc, Options{Workers: 1}).Run(ctx, dir)
		done <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for proc.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
}

func TestEnsureOutputDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := EnsureOutputDir(dir); err != nil {
		t.Errorf("EnsureOutputDir(dir) error: %v", err)
	}
	if err := EnsureOutputDir(file); err == nil {
		t.Error("EnsureOutputDir(file) expected error")
	}
	if err := EnsureOutputDir(filepath.Join(dir, "missing")); err == nil {
		t.Error("EnsureOutputDir(missing) expected error")
	}
}
