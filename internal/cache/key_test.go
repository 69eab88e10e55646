package cache

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestKey(t *testing.T) {
	a := Key("fp1", "blog/img/photo.webp")
	b := Key("fp1", "docs/img/photo.webp")
	c := Key("fp2", "blog/img/photo.webp")

	if a == b {
		t.Error("same base name in different directories must not collide")
	}
	if a == c {
		t.Error("different profiles must produce different keys")
	}
	if a != Key("fp1", "blog/img/photo.webp") {
		t.Error("Key must be deterministic")
	}
	if !strings.HasSuffix(a, "-photo.webp") {
		t.Errorf("Key = %q, want base name suffix", a)
	}
	if len(a) != 16+len("-photo.webp") {
		t.Errorf("len(Key) = %d", len(a))
	}
	if Key("fp1", filepath.Join("blog", "img", "photo.webp")) != a {
		t.Error("OS separators must be normalised")
	}
}

func TestVariantKey(t *testing.T) {
	rel := "img/photoa.webp"
	up := VariantKey("fp", "up:1:800x600", rel)
	down := VariantKey("fp", "down:0.25:200x150", rel)

	if up == down {
		t.Error("different variants of one output path must not collide")
	}
	if VariantKey("fp", "", rel) != Key("fp", rel) {
		t.Error("empty variant must match Key")
	}
	if up == Key("fp", rel) {
		t.Error("a variant must change the key")
	}
	if !strings.HasSuffix(down, "-photoa.webp") {
		t.Errorf("VariantKey = %q, want base name suffix", down)
	}
}

func TestDefaultDir(t *testing.T) {
	t.Run("explicit override", func(t *testing.T) {
		t.Setenv(EnvCacheDir, "/tmp/explicit")
		t.Setenv("XDG_CACHE_HOME", "/tmp/xdg")
		got, err := DefaultDir()
		if err != nil || got != "/tmp/explicit" {
			t.Errorf("DefaultDir() = %q, %v", got, err)
		}
	})

	t.Run("xdg", func(t *testing.T) {
		t.Setenv(EnvCacheDir, "")
		t.Setenv("XDG_CACHE_HOME", "/tmp/xdg")
		got, err := DefaultDir()
		if err != nil || got != filepath.Join("/tmp/xdg", "media-optimizer") {
			t.Errorf("DefaultDir() = %q, %v", got, err)
		}
	})

	t.Run("home", func(t *testing.T) {
		t.Setenv(EnvCacheDir, "")
		t.Setenv("XDG_CACHE_HOME", "")
		t.Setenv("HOME", "/tmp/home")
		got, err := DefaultDir()
		if err != nil || got != filepath.Join("/tmp/home", ".cache", "media-optimizer") {
			t.Errorf("DefaultDir() = %q, %v", got, err)
		}
	})
}
