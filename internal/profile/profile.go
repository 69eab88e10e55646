// Package profile holds the per-format encoding parameters used for
// derivatives and in-place recompression.
package profile

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"
)

// PNGProfile configures native PNG re-encoding.
type PNGProfile struct {
	Compression int  `yaml:"compression"`
	Palette     bool `yaml:"palette"`
	// Quality only applies when Palette is set.
	Quality int `yaml:"quality"`
}

// JPEGProfile configures native JPEG re-encoding.
type JPEGProfile struct {
	Quality        int  `yaml:"quality"`
	OptimizeCoding bool `yaml:"optimize_coding"`
	Interlace      bool `yaml:"interlace"`
}

// GIFProfile configures native GIF re-encoding of static GIFs.
type GIFProfile struct {
	Effort   int `yaml:"effort"`
	Bitdepth int `yaml:"bitdepth"`
}

// WebPProfile configures derivative encoding.
type WebPProfile struct {
	Quality int `yaml:"quality"`
	Effort  int `yaml:"effort"`
	// LosslessThresholdKB: animated sources smaller than this (in units of
	// 1000 bytes) are encoded lossless.
	LosslessThresholdKB int `yaml:"lossless_threshold_kb"`
}

// GifsicleProfile configures the external optimizer for animated GIFs.
type GifsicleProfile struct {
	Optimize int `yaml:"optimize"`
	Lossy    int `yaml:"lossy"`
}

// EncodingProfile is loaded once per build and never mutated afterwards.
type EncodingProfile struct {
	PNG      PNGProfile      `yaml:"png"`
	JPEG     JPEGProfile     `yaml:"jpeg"`
	GIF      GIFProfile      `yaml:"gif"`
	WebP     WebPProfile     `yaml:"webp"`
	Gifsicle GifsicleProfile `yaml:"gifsicle"`
}

// Default returns the built-in profile.
func Default() EncodingProfile {
	return EncodingProfile{
		PNG:      PNGProfile{Compression: 9, Palette: true, Quality: 90},
		JPEG:     JPEGProfile{Quality: 80, OptimizeCoding: true, Interlace: true},
		GIF:      GIFProfile{Effort: 7, Bitdepth: 8},
		WebP:     WebPProfile{Quality: 80, Effort: 6, LosslessThresholdKB: 1000},
		Gifsicle: GifsicleProfile{Optimize: 3, Lossy: 80},
	}
}

// Load reads a YAML profile. Fields absent from the file keep their
// defaults; unknown fields are an error.
func Load(path string) (EncodingProfile, error) {
	p := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read profile %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return p, fmt.Errorf("parse profile %s: %w", path, err)
	}

	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("invalid profile %s: %w", path, err)
	}
	return p, nil
}

// Validate checks every parameter against the range libvips accepts.
func (p EncodingProfile) Validate() error {
	var errs []error
	check := func(name string, v, lo, hi int) {
		if v < lo || v > hi {
			errs = append(errs, fmt.Errorf("%s must be in [%d, %d], got %d", name, lo, hi, v))
		}
	}

	check("png.compression", p.PNG.Compression, 0, 9)
	check("png.quality", p.PNG.Quality, 0, 100)
	check("jpeg.quality", p.JPEG.Quality, 1, 100)
	check("gif.effort", p.GIF.Effort, 1, 10)
	check("gif.bitdepth", p.GIF.Bitdepth, 1, 8)
	check("webp.quality", p.WebP.Quality, 0, 100)
	check("webp.effort", p.WebP.Effort, 0, 6)
	check("gifsicle.optimize", p.Gifsicle.Optimize, 1, 3)
	check("gifsicle.lossy", p.Gifsicle.Lossy, 0, 200)
	if p.WebP.LosslessThresholdKB < 0 {
		errs = append(errs, fmt.Errorf("webp.lossless_threshold_kb must not be negative, got %d", p.WebP.LosslessThresholdKB))
	}

	return errors.Join(errs...)
}

// Fingerprint is a stable hash of every parameter that affects output bytes.
// Changing the profile changes every cache key.
func (p EncodingProfile) Fingerprint() string {
	data, err := yaml.Marshal(p)
	if err != nil {
		// Plain structs of ints and bools always marshal.
		panic(fmt.Sprintf("marshal profile: %v", err))
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
