package transcode

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"

	"media-optimizer/internal/filesystem"
	"media-optimizer/internal/logging"
	"media-optimizer/internal/mediaerr"
	"media-optimizer/internal/mediatypes"
	"media-optimizer/internal/plan"
)

// Source is a decoded original. Derivatives are always produced from this
// decode, so the original file may be rewritten while a Source is open.
type Source struct {
	Path   string
	Format mediatypes.Format
	Width  int
	// Height of one frame for animated sources.
	Height int
	Pages  int
	Size   int64

	data []byte
	ref  *vips.ImageRef
	// img is the pure-Go decode used when libvips is unavailable.
	img image.Image
}

// Animated reports whether the source has more than one frame.
func (s *Source) Animated() bool {
	return s.Pages > 1
}

// Dimensions returns the frame size for planning.
func (s *Source) Dimensions() *plan.Dimensions {
	if s.Width <= 0 || s.Height <= 0 {
		return nil
	}
	return &plan.Dimensions{Width: s.Width, Height: s.Height}
}

// Close releases the decoded image.
func (s *Source) Close() {
	if s.ref != nil {
		s.ref.Close()
		s.ref = nil
	}
	s.img = nil
}

// Open reads and decodes path. Every frame is loaded so animation survives
// re-encoding.
func Open(path string) (*Source, error) {
	data, err := filesystem.ReadFileWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, &mediaerr.DecodeError{Path: path, Err: err}
	}

	format := mediatypes.SniffFormat(data)
	if format == mediatypes.FormatUnknown {
		return nil, &mediaerr.DecodeError{Path: path, Err: fmt.Errorf("unrecognised image data")}
	}

	src := &Source{Path: path, Format: format, Size: int64(len(data)), data: data}

	if IsVipsAvailable() {
		err = src.decodeVips()
	} else {
		err = src.decodeFallback()
	}
	if err != nil {
		return nil, &mediaerr.DecodeError{Path: path, Err: err}
	}

	logging.Debug("Opened %s: %s %dx%d, %d page(s), %d bytes",
		path, src.Format, src.Width, src.Height, src.Pages, src.Size)
	return src, nil
}

func (s *Source) decodeVips() error {
	params := vips.NewImportParams()
	// Only the multi-frame loaders accept a page count.
	if s.Format == mediatypes.FormatGIF || s.Format == mediatypes.FormatWebP {
		params.NumPages.Set(-1)
	}

	ref, err := vips.LoadImageFromBuffer(s.data, params)
	if err != nil {
		return err
	}

	s.ref = ref
	s.Pages = max(1, ref.Pages())
	s.Width = ref.Width()
	s.Height = ref.Height()
	if s.Pages > 1 {
		s.Height = ref.PageHeight()
	}
	return nil
}

func (s *Source) decodeFallback() error {
	s.Pages = 1
	if s.Format == mediatypes.FormatGIF {
		g, err := gif.DecodeAll(bytes.NewReader(s.data))
		if err != nil {
			return err
		}
		s.Pages = max(1, len(g.Image))
	}

	img, err := imaging.Decode(bytes.NewReader(s.data), imaging.AutoOrientation(true))
	if err != nil {
		return err
	}
	s.img = img
	s.Width = img.Bounds().Dx()
	s.Height = img.Bounds().Dy()
	return nil
}
