package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"

	"media-optimizer/internal/filesystem"
	"media-optimizer/internal/logging"
	"media-optimizer/internal/mediaerr"
	"media-optimizer/internal/mediatypes"
	"media-optimizer/internal/metrics"
	"media-optimizer/internal/plan"
	"media-optimizer/internal/profile"
)

// ErrVipsUnavailable is returned for work that has no pure-Go fallback.
var ErrVipsUnavailable = errors.New("libvips not available")

// ExternalOptimizer rewrites a file in place, e.g. gifsicle for animated GIFs.
type ExternalOptimizer interface {
	Optimize(ctx context.Context, path string) error
}

// Transcoder encodes derivatives and recompresses originals.
type Transcoder struct {
	profile  profile.EncodingProfile
	external ExternalOptimizer
}

// New creates a Transcoder. external may be nil, in which case animated
// GIF originals are left untouched.
func New(p profile.EncodingProfile, external ExternalOptimizer) *Transcoder {
	return &Transcoder{profile: p, external: external}
}

// Open decodes the source at path.
func (t *Transcoder) Open(path string) (*Source, error) {
	return Open(path)
}

// SelectLossless decides the WebP mode: animated sources below the
// threshold are encoded lossless. Sizes are in units of 1000 bytes.
func SelectLossless(animated bool, sizeBytes int64, thresholdKB int) bool {
	return animated && sizeBytes/1000 < int64(thresholdKB)
}

func (t *Transcoder) webpParams(src *Source) *vips.WebpExportParams {
	return &vips.WebpExportParams{
		StripMetadata:   true,
		Quality:         t.profile.WebP.Quality,
		Lossless:        SelectLossless(src.Animated(), src.Size, t.profile.WebP.LosslessThresholdKB),
		ReductionEffort: t.profile.WebP.Effort,
	}
}

// EncodeDerivative encodes one planned derivative of src as WebP and writes
// it to dst atomically.
func (t *Transcoder) EncodeDerivative(_ context.Context, src *Source, d plan.Derivative, dst string) error {
	start := time.Now()
	err := t.encodeDerivative(src, d, dst)
	recordTranscode("derivative", src.Format, start, err)
	return err
}

func (t *Transcoder) encodeDerivative(src *Source, d plan.Derivative, dst string) error {
	if src.ref == nil {
		return &mediaerr.EncodeError{Path: dst, Format: string(mediatypes.DerivativeFormat), Err: ErrVipsUnavailable}
	}

	img, err := src.ref.Copy()
	if err != nil {
		return &mediaerr.EncodeError{Path: dst, Format: string(mediatypes.DerivativeFormat), Err: err}
	}
	defer func() { img.Close() }()

	if d.Resize {
		if err := resize(img, src, d); err != nil {
			return &mediaerr.EncodeError{Path: dst, Format: string(mediatypes.DerivativeFormat), Err: fmt.Errorf("resize: %w", err)}
		}
	}

	// Static sources go through their native encoder first so the WebP is
	// built from the same quantised pixels the recompressed original has.
	if !src.Animated() && src.Format != mediatypes.FormatWebP {
		native, err := t.exportNative(img, src.Format)
		if err != nil {
			return &mediaerr.EncodeError{Path: dst, Format: string(src.Format), Err: err}
		}
		img.Close()
		img, err = vips.LoadImageFromBuffer(native, vips.NewImportParams())
		if err != nil {
			return &mediaerr.EncodeError{Path: dst, Format: string(src.Format), Err: fmt.Errorf("reload intermediate: %w", err)}
		}
	}

	out, _, err := img.ExportWebp(t.webpParams(src))
	if err != nil {
		return &mediaerr.EncodeError{Path: dst, Format: string(mediatypes.DerivativeFormat), Err: err}
	}

	if err := filesystem.WriteFileAtomic(dst, out, 0o644); err != nil {
		return fmt.Errorf("write derivative %s: %w", dst, err)
	}
	logging.Debug("Encoded %s (%dx%d, %d bytes)", dst, d.Width, d.Height, len(out))
	return nil
}

func resize(img *vips.ImageRef, src *Source, d plan.Derivative) error {
	hscale := float64(d.Width) / float64(src.Width)
	vscale := float64(d.Height) / float64(src.Height)
	// For animations src.Height is the page height, so ResizeWithVScale
	// rounds each frame to d.Height and sets the page height itself.
	return img.ResizeWithVScale(hscale, vscale, vips.KernelLanczos3)
}

func (t *Transcoder) exportNative(img *vips.ImageRef, format mediatypes.Format) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch format {
	case mediatypes.FormatPNG:
		out, _, err = img.ExportPng(&vips.PngExportParams{
			StripMetadata: true,
			Compression:   t.profile.PNG.Compression,
			Palette:       t.profile.PNG.Palette,
			Quality:       t.profile.PNG.Quality,
		})
	case mediatypes.FormatJPEG:
		out, _, err = img.ExportJpeg(&vips.JpegExportParams{
			StripMetadata:  true,
			Quality:        t.profile.JPEG.Quality,
			OptimizeCoding: t.profile.JPEG.OptimizeCoding,
			Interlace:      t.profile.JPEG.Interlace,
		})
	case mediatypes.FormatGIF:
		out, _, err = img.ExportGIF(&vips.GifExportParams{
			StripMetadata: true,
			Effort:        t.profile.GIF.Effort,
			Bitdepth:      t.profile.GIF.Bitdepth,
		})
	default:
		err = fmt.Errorf("no native encoder for %s", format)
	}
	return out, err
}

// RecompressOriginal writes a recompressed copy of src to dst, usually
// src.Path itself. Animated GIFs go through the external optimizer; WebP
// sources are already in the target format and are written unchanged.
func (t *Transcoder) RecompressOriginal(ctx context.Context, src *Source, dst string) error {
	start := time.Now()
	err := t.recompressOriginal(ctx, src, dst)
	recordTranscode("original", src.Format, start, err)
	return err
}

func (t *Transcoder) recompressOriginal(ctx context.Context, src *Source, dst string) error {
	switch {
	case src.Format == mediatypes.FormatWebP:
		logging.Debug("Skipping recompression of %s: already WebP", src.Path)
		return t.writeUnchanged(src, dst)

	case src.Format == mediatypes.FormatGIF && src.Animated():
		if err := t.writeUnchanged(src, dst); err != nil {
			return err
		}
		if t.external == nil {
			logging.Debug("No external optimizer configured, leaving %s as is", src.Path)
			return nil
		}
		return t.external.Optimize(ctx, dst)
	}

	var (
		out []byte
		err error
	)
	if src.ref != nil {
		out, err = t.exportNative(src.ref, src.Format)
	} else {
		out, err = t.encodeFallback(src)
	}
	if err != nil {
		return &mediaerr.EncodeError{Path: dst, Format: string(src.Format), Err: err}
	}

	if err := filesystem.WriteFileAtomic(dst, out, 0o644); err != nil {
		return fmt.Errorf("write original %s: %w", dst, err)
	}

	if saved := src.Size - int64(len(out)); saved > 0 {
		metrics.BytesSaved.WithLabelValues(string(src.Format)).Add(float64(saved))
	}
	logging.Debug("Recompressed %s: %d -> %d bytes", dst, src.Size, len(out))
	return nil
}

// writeUnchanged puts the original bytes at dst unless dst is the source itself.
func (t *Transcoder) writeUnchanged(src *Source, dst string) error {
	if dst == src.Path {
		return nil
	}
	return filesystem.WriteFileAtomic(dst, src.data, 0o644)
}

// encodeFallback re-encodes a static image with the pure-Go encoders.
func (t *Transcoder) encodeFallback(src *Source) ([]byte, error) {
	if src.img == nil {
		return nil, ErrVipsUnavailable
	}

	var buf bytes.Buffer
	var err error
	switch src.Format {
	case mediatypes.FormatPNG:
		level := png.DefaultCompression
		if t.profile.PNG.Compression >= 7 {
			level = png.BestCompression
		}
		err = imaging.Encode(&buf, src.img, imaging.PNG, imaging.PNGCompressionLevel(level))
	case mediatypes.FormatJPEG:
		err = imaging.Encode(&buf, src.img, imaging.JPEG, imaging.JPEGQuality(t.profile.JPEG.Quality))
	case mediatypes.FormatGIF:
		err = imaging.Encode(&buf, src.img, imaging.GIF, imaging.GIFNumColors(1<<t.profile.GIF.Bitdepth))
	default:
		err = fmt.Errorf("no fallback encoder for %s", src.Format)
	}
	return buf.Bytes(), err
}

func recordTranscode(kind string, format mediatypes.Format, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.TranscodesTotal.WithLabelValues(kind, string(format), status).Inc()
	metrics.TranscodeDuration.WithLabelValues(kind, string(format)).Observe(time.Since(start).Seconds())
}
