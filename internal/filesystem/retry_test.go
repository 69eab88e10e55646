package filesystem

import (
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.InitialBackoff != 50*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 50ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 500*time.Millisecond {
		t.Errorf("MaxBackoff = %v, want 500ms", config.MaxBackoff)
	}
	if config.VolumeResolver != nil {
		t.Error("VolumeResolver should be nil by default")
	}
}

func TestIsNFSStaleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "ESTALE error", err: syscall.ESTALE, want: true},
		{name: "wrapped ESTALE", err: &os.PathError{Op: "open", Path: "/x", Err: syscall.ESTALE}, want: true},
		{name: "ENOENT error", err: syscall.ENOENT, want: false},
		{name: "generic error", err: os.ErrNotExist, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNFSStaleError(tt.err); got != tt.want {
				t.Errorf("isNFSStaleError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVolumeResolver_Resolve(t *testing.T) {
	vr := NewVolumeResolver(map[string]string{
		"output": "/site/dist",
		"cache":  "/var/cache/media-optimizer",
		"nested": "/site/dist/static",
	})

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "output root", path: "/site/dist", want: "output"},
		{name: "output file", path: "/site/dist/img/photo.jpg", want: "output"},
		{name: "longest prefix wins", path: "/site/dist/static/logo.png", want: "nested"},
		{name: "cache entry", path: "/var/cache/media-optimizer/entries/ab-photo.webp", want: "cache"},
		{name: "sibling with shared prefix", path: "/site/distribution/x.png", want: "unknown"},
		{name: "unknown path", path: "/etc/hosts", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := vr.Resolve(tt.path); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestVolumeResolver_Nil(t *testing.T) {
	var vr *VolumeResolver
	if got := vr.Resolve("/anything"); got != "unknown" {
		t.Errorf("nil resolver Resolve() = %q, want unknown", got)
	}
}

func TestStatWithRetry(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "a.png")
	if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := StatWithRetry(path, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("StatWithRetry() error: %v", err)
	}
	if info.Size() != 3 {
		t.Errorf("Size() = %d, want 3", info.Size())
	}

	start := time.Now()
	_, err = StatWithRetry(filepath.Join(tmpDir, "missing"), DefaultRetryConfig())
	if !os.IsNotExist(err) {
		t.Errorf("StatWithRetry(missing) error = %v, want not-exist", err)
	}
	if time.Since(start) > 40*time.Millisecond {
		t.Error("non-ESTALE errors must not be retried")
	}
}

func TestWithRetry_RetriesStaleHandles(t *testing.T) {
	obs := &recordingObserver{}
	SetObserver(obs)
	defer SetObserver(nil)

	config := RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

	calls := 0
	err := withRetry("open", "/cache/x", config, func() error {
		calls++
		if calls < 3 {
			return syscall.ESTALE
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry() error: %v", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
	if obs.count("stale") != 2 || obs.count("success") != 1 {
		t.Errorf("observer stale=%d success=%d, want 2 and 1", obs.count("stale"), obs.count("success"))
	}

	calls = 0
	err = withRetry("stat", "/cache/y", config, func() error {
		calls++
		return syscall.ESTALE
	})
	if err != syscall.ESTALE {
		t.Errorf("withRetry() error = %v, want ESTALE", err)
	}
	if calls != config.MaxRetries+1 {
		t.Errorf("fn called %d times, want %d", calls, config.MaxRetries+1)
	}
	if obs.count("failure") != 1 {
		t.Errorf("observer failure = %d, want 1", obs.count("failure"))
	}
}

func TestReadFileWithRetry(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "entry")
	if err := os.WriteFile(path, []byte("cached bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := ReadFileWithRetry(path, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("ReadFileWithRetry() error: %v", err)
	}
	if string(data) != "cached bytes" {
		t.Errorf("ReadFileWithRetry() = %q", data)
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	events map[string]int
}

func (o *recordingObserver) add(event string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.events == nil {
		o.events = make(map[string]int)
	}
	o.events[event]++
}

func (o *recordingObserver) count(event string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.events[event]
}

func (o *recordingObserver) ObserveOperation(volume, operation string, _ float64, err error) {
	o.add("op:" + operation)
	if err != nil {
		o.add("op-error:" + operation)
	}
}
func (o *recordingObserver) ObserveRetryAttempt(string, string)           { o.add("attempt") }
func (o *recordingObserver) ObserveRetrySuccess(string, string)           { o.add("success") }
func (o *recordingObserver) ObserveRetryFailure(string, string)           { o.add("failure") }
func (o *recordingObserver) ObserveRetryDuration(string, string, float64) { o.add("duration") }
func (o *recordingObserver) ObserveStaleError(string, string)             { o.add("stale") }
