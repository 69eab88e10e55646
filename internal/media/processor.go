package media

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"media-optimizer/internal/cache"
	"media-optimizer/internal/logging"
	"media-optimizer/internal/mediaerr"
	"media-optimizer/internal/mediatypes"
	"media-optimizer/internal/metrics"
	"media-optimizer/internal/plan"
	"media-optimizer/internal/transcode"
)

// Codec decodes sources and produces output files.
type Codec interface {
	Open(path string) (*transcode.Source, error)
	EncodeDerivative(ctx context.Context, src *transcode.Source, d plan.Derivative, dst string) error
	RecompressOriginal(ctx context.Context, src *transcode.Source, dst string) error
}

// Store is the cache as seen by the processor.
type Store interface {
	GetOrCompute(ctx context.Context, key, target string, compute cache.ComputeFunc) (cache.Result, error)
}

// DimensionProbe reads image dimensions without a full decode.
type DimensionProbe func(path string) (*mediatypes.ImageDimensions, error)

// DerivativeOutput is one derivative written for a reference.
type DerivativeOutput struct {
	Derivative   plan.Derivative
	AbsolutePath string
	CacheKey     string
	Result       cache.Result
}

// Report summarises the work done for one reference.
type Report struct {
	Reference   plan.MediaReference
	Derivatives []DerivativeOutput
	Original    cache.Result
	// Hits counts outputs restored from the cache; Transcodes counts
	// outputs computed by this call.
	Hits       int
	Transcodes int
}

func (r *Report) count(res cache.Result) {
	if res.Hit && res.Restore == cache.Copied {
		r.Hits++
	}
	if res.Computed && !res.Shared {
		r.Transcodes++
	}
}

// Processor turns one media reference into its derivatives and a
// recompressed original.
type Processor struct {
	outputDir   string
	codec       Codec
	store       Store
	fingerprint string
	probe       DimensionProbe
}

// NewProcessor creates a processor for the build rooted at outputDir.
// fingerprint identifies the encoding profile and is mixed into cache keys.
func NewProcessor(outputDir string, codec Codec, store Store, fingerprint string) *Processor {
	return &Processor{
		outputDir:   outputDir,
		codec:       codec,
		store:       store,
		fingerprint: fingerprint,
		probe:       mediatypes.GetImageDimensions,
	}
}

// WithProbe replaces the dimension probe.
func (p *Processor) WithProbe(probe DimensionProbe) *Processor {
	p.probe = probe
	return p
}

// lazySource decodes the source on first use. A fully cached reference is
// never decoded.
type lazySource struct {
	once sync.Once
	open func() (*transcode.Source, error)
	src  *transcode.Source
	err  error
}

func (l *lazySource) get() (*transcode.Source, error) {
	l.once.Do(func() {
		l.src, l.err = l.open()
	})
	return l.src, l.err
}

func (l *lazySource) close() {
	if l.src != nil {
		l.src.Close()
	}
}

// derivativeVariant names what, besides the profile and path, decides a
// derivative's bytes. The same suffix is a different size under up and down.
func derivativeVariant(policy plan.ResizePolicy, d plan.Derivative) string {
	return fmt.Sprintf("%s:%g:%dx%d", policy, d.Multiplier, d.Width, d.Height)
}

// Process writes every planned derivative beside the source, then
// recompresses the source in place. Both go through the cache. Failures
// are returned as *mediaerr.StageError.
func (p *Processor) Process(ctx context.Context, ref plan.MediaReference) (report Report, err error) {
	report.Reference = ref
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.ReferencesProcessed.WithLabelValues(ref.Policy.String(), status).Inc()
	}()

	srcPath := filepath.Join(p.outputDir, filepath.FromSlash(ref.SourcePath))
	stageErr := func(stage mediaerr.Stage, err error) error {
		var de *mediaerr.DecodeError
		if errors.As(err, &de) {
			stage = mediaerr.StageOpen
		}
		return &mediaerr.StageError{Asset: ref.SourcePath, Stage: stage, Err: err}
	}

	if mediatypes.FormatFromPath(srcPath) == mediatypes.FormatUnknown {
		return report, stageErr(mediaerr.StageOpen, &mediaerr.DecodeError{
			Path: srcPath,
			Err:  fmt.Errorf("unsupported extension %q", filepath.Ext(srcPath)),
		})
	}

	var dims *plan.Dimensions
	if d, err := p.probe(srcPath); err == nil {
		dims = &plan.Dimensions{Width: d.Width, Height: d.Height}
	} else {
		logging.Debug("Could not read dimensions of %s, derivatives keep source size: %v", srcPath, err)
	}

	derivPlan, err := plan.Plan(ref.Policy, dims)
	if err != nil {
		return report, stageErr(mediaerr.StageDerivative, err)
	}

	src := &lazySource{open: func() (*transcode.Source, error) { return p.codec.Open(srcPath) }}
	defer src.close()

	for _, d := range derivPlan.Derivatives {
		rel := plan.OutputPath(ref.SourcePath, d.Suffix)
		dst := filepath.Join(p.outputDir, filepath.FromSlash(rel))
		if dst == srcPath {
			logging.Debug("Derivative of %s is the source itself, skipping", ref.SourcePath)
			continue
		}

		out := DerivativeOutput{Derivative: d, AbsolutePath: dst, CacheKey: cache.VariantKey(p.fingerprint, derivativeVariant(ref.Policy, d), rel)}
		out.Result, err = p.store.GetOrCompute(ctx, out.CacheKey, dst, func(ctx context.Context) error {
			s, err := src.get()
			if err != nil {
				return err
			}
			return p.codec.EncodeDerivative(ctx, s, d, dst)
		})
		if err != nil {
			return report, stageErr(mediaerr.StageDerivative, err)
		}

		report.count(out.Result)
		report.Derivatives = append(report.Derivatives, out)
	}

	report.Original, err = p.store.GetOrCompute(ctx, cache.Key(p.fingerprint, ref.SourcePath), srcPath, func(ctx context.Context) error {
		s, err := src.get()
		if err != nil {
			return err
		}
		return p.codec.RecompressOriginal(ctx, s, srcPath)
	})
	if err != nil {
		return report, stageErr(mediaerr.StageOriginal, err)
	}
	report.count(report.Original)

	logging.Debug("Processed %s (%s): %d derivative(s), %d cached, %d transcoded",
		ref.SourcePath, ref.Policy, len(report.Derivatives), report.Hits, report.Transcodes)
	return report, nil
}
