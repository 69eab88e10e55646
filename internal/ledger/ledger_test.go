package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() {
		if err := l.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	})
	return l
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	ctx := context.Background()

	l, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.RecordPopulate(ctx, "k", 10); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	l, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer l.Close()

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 1 {
		t.Errorf("Entries after reopen = %d, want 1", stats.Entries)
	}
	if l.Path() != path {
		t.Errorf("Path() = %q, want %q", l.Path(), path)
	}
}

func TestOpen_MissingDirectory(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing", FileName))
	if err == nil {
		t.Error("expected error opening a ledger in a missing directory")
	}
}

func TestCacheTraffic(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	steps := []func() error{
		func() error { return l.RecordMiss(ctx, "a") },
		func() error { return l.RecordPopulate(ctx, "a", 100) },
		func() error { return l.RecordHit(ctx, "a") },
		func() error { return l.RecordHit(ctx, "a") },
		func() error { return l.RecordMiss(ctx, "b") },
		func() error { return l.RecordPopulate(ctx, "b", 50) },
		// A miss whose compute failed never gets a size.
		func() error { return l.RecordMiss(ctx, "c") },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d error: %v", i, err)
		}
	}

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}

	if stats.Entries != 2 {
		t.Errorf("Entries = %d, want 2", stats.Entries)
	}
	if stats.TotalBytes != 150 {
		t.Errorf("TotalBytes = %d, want 150", stats.TotalBytes)
	}
	if stats.Hits != 2 || stats.Misses != 3 {
		t.Errorf("Hits/Misses = %d/%d, want 2/3", stats.Hits, stats.Misses)
	}
	if got := stats.HitRatio(); got != 0.4 {
		t.Errorf("HitRatio() = %v, want 0.4", got)
	}
}

func TestBuilds(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	first, err := l.BeginBuild(ctx, "/site/dist")
	if err != nil {
		t.Fatalf("BeginBuild() error: %v", err)
	}
	if err := l.FinishBuild(ctx, first, BuildResult{Pages: 3, References: 4, Derivatives: 12, Misses: 16}); err != nil {
		t.Fatalf("FinishBuild() error: %v", err)
	}

	second, err := l.BeginBuild(ctx, "/site/dist")
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("build ids must be unique")
	}
	if err := l.FinishBuild(ctx, second, BuildResult{Err: errors.New("decode img/x.png: corrupt")}); err != nil {
		t.Fatal(err)
	}

	builds, err := l.RecentBuilds(ctx, 10)
	if err != nil {
		t.Fatalf("RecentBuilds() error: %v", err)
	}
	if len(builds) != 2 {
		t.Fatalf("len(builds) = %d, want 2", len(builds))
	}

	latest := builds[0]
	if latest.ID != second || latest.Status != "error" || latest.Error == "" {
		t.Errorf("latest build = %+v, want failed second build", latest)
	}
	if builds[1].Derivatives != 12 || builds[1].Status != "success" {
		t.Errorf("first build = %+v", builds[1])
	}

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Builds != 2 || stats.LastBuild == nil {
		t.Errorf("Stats builds = %d, last = %v", stats.Builds, stats.LastBuild)
	}
	if time.Since(*stats.LastBuild) > time.Minute {
		t.Errorf("LastBuild = %v, want recent", stats.LastBuild)
	}
}

func TestClear(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	if err := l.RecordPopulate(ctx, "k", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := l.BeginBuild(ctx, "/out"); err != nil {
		t.Fatal(err)
	}
	if err := l.Clear(ctx); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 0 {
		t.Errorf("Entries after Clear = %d, want 0", stats.Entries)
	}
	if stats.Builds != 1 {
		t.Errorf("Builds after Clear = %d, want history kept", stats.Builds)
	}
}

func TestHitRatio_NoTraffic(t *testing.T) {
	if got := (Stats{}).HitRatio(); got != 0 {
		t.Errorf("HitRatio() = %v, want 0", got)
	}
}
