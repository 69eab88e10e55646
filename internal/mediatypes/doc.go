// Package mediatypes holds the image formats the optimizer understands and
// small helpers to identify them.
//
// It is a leaf package: nothing here imports other internal packages, so the
// planner, transcoder and markup pass can all depend on it.
//
// # Formats
//
// Sources may be JPEG, PNG, GIF or WebP. Derivatives are always WebP:
//
//	f := mediatypes.FormatFromPath("img/photo.JPG") // FormatJPEG
//	f.MimeType()                                   // "image/jpeg"
//	mediatypes.DerivativeFormat.Extension()        // ".webp"
//
// # Detection
//
// DetectFormat reads magic bytes rather than trusting the extension, and
// GetImageDimensions reads only the image header.
package mediatypes
