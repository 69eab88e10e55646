package mediatypes

import (
	"path/filepath"
	"strings"
)

// Format identifies a raster image encoding.
type Format string

const (
	// FormatJPEG is baseline or progressive JPEG.
	FormatJPEG Format = "jpeg"
	// FormatPNG is PNG, with or without a palette.
	FormatPNG Format = "png"
	// FormatGIF is GIF, possibly animated.
	FormatGIF Format = "gif"
	// FormatWebP is WebP, the derivative format.
	FormatWebP Format = "webp"
	// FormatUnknown is anything the optimizer does not handle.
	FormatUnknown Format = ""
)

// DerivativeFormat is the format every derivative is encoded to.
const DerivativeFormat = FormatWebP

// SourceExtensions maps file extensions to the format of an optimizable source.
var SourceExtensions = map[string]Format{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
	".gif":  FormatGIF,
	".webp": FormatWebP,
}

// MimeTypes maps formats to the MIME type used in <source type="...">.
var MimeTypes = map[Format]string{
	FormatJPEG: "image/jpeg",
	FormatPNG:  "image/png",
	FormatGIF:  "image/gif",
	FormatWebP: "image/webp",
}

// FormatFromExtension returns the Format for a file extension.
// The extension may be in any case and must include the leading dot.
func FormatFromExtension(ext string) Format {
	return SourceExtensions[strings.ToLower(ext)]
}

// FormatFromPath returns the Format implied by a path's extension.
func FormatFromPath(path string) Format {
	return FormatFromExtension(filepath.Ext(path))
}

// IsOptimizable returns true if the extension is a source the pipeline can process.
func IsOptimizable(ext string) bool {
	return FormatFromExtension(ext) != FormatUnknown
}

// Extension returns the canonical file extension for the format.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatPNG:
		return ".png"
	case FormatGIF:
		return ".gif"
	case FormatWebP:
		return ".webp"
	default:
		return ""
	}
}

// MimeType returns the MIME type for the format, or application/octet-stream.
func (f Format) MimeType() string {
	if mime, ok := MimeTypes[f]; ok {
		return mime
	}
	return "application/octet-stream"
}

func (f Format) String() string {
	if f == FormatUnknown {
		return "unknown"
	}
	return string(f)
}
