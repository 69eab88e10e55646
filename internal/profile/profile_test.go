package profile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	p := Default()

	if p.PNG.Compression != 9 || !p.PNG.Palette {
		t.Errorf("PNG = %+v, want compression 9 with palette", p.PNG)
	}
	if p.WebP.Effort != 6 {
		t.Errorf("WebP.Effort = %d, want 6", p.WebP.Effort)
	}
	if p.WebP.LosslessThresholdKB != 1000 {
		t.Errorf("WebP.LosslessThresholdKB = %d, want 1000", p.WebP.LosslessThresholdKB)
	}
	if p.Gifsicle.Optimize != 3 || p.Gifsicle.Lossy != 80 {
		t.Errorf("Gifsicle = %+v, want optimize 3 lossy 80", p.Gifsicle)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Default().Validate() error: %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := writeProfile(t, `
webp:
  quality: 70
  lossless_threshold_kb: 500
jpeg:
  interlace: false
`)

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if p.WebP.Quality != 70 {
		t.Errorf("WebP.Quality = %d, want 70", p.WebP.Quality)
	}
	if p.WebP.LosslessThresholdKB != 500 {
		t.Errorf("WebP.LosslessThresholdKB = %d, want 500", p.WebP.LosslessThresholdKB)
	}
	if p.JPEG.Interlace {
		t.Error("JPEG.Interlace should be overridden to false")
	}
	// Untouched fields keep defaults.
	if p.WebP.Effort != 6 {
		t.Errorf("WebP.Effort = %d, want default 6", p.WebP.Effort)
	}
	if p.PNG.Compression != 9 {
		t.Errorf("PNG.Compression = %d, want default 9", p.PNG.Compression)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	p, err := Load(writeProfile(t, ""))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if p != Default() {
		t.Errorf("empty profile = %+v, want defaults", p)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "unknown field", content: "webp:\n  qualty: 70\n", wantErr: "qualty"},
		{name: "out of range", content: "webp:\n  effort: 9\n", wantErr: "webp.effort"},
		{name: "negative threshold", content: "webp:\n  lossless_threshold_kb: -1\n", wantErr: "lossless_threshold_kb"},
		{name: "malformed", content: "png: [\n", wantErr: "parse profile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeProfile(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) error = %v, want not-exist", err)
	}
}

func TestFingerprint(t *testing.T) {
	a := Default()
	b := Default()

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical profiles must have identical fingerprints")
	}
	if len(a.Fingerprint()) != 16 {
		t.Errorf("fingerprint length = %d, want 16", len(a.Fingerprint()))
	}

	b.WebP.Quality = 81
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("changing WebP quality must change the fingerprint")
	}

	c := Default()
	c.PNG.Palette = false
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("changing PNG palette must change the fingerprint")
	}
}
