/*
Package transcode decodes source images and encodes WebP derivatives and
recompressed originals with libvips.

# Derivatives

EncodeDerivative copies the decoded image, resizes it when the plan asks
for it, and exports WebP. Static sources first pass through their native
encoder (PNG palette quantisation, JPEG at the profile quality) and are
reloaded, so derivative and recompressed original agree visually.

Animated sources keep every frame. They are encoded lossless when smaller
than the profile's threshold (SelectLossless), lossy otherwise.

# Originals

RecompressOriginal re-encodes static PNG, JPEG and GIF sources with the
native profile and hands animated GIFs to an ExternalOptimizer (gifsicle).
Writes are atomic, so an interrupted build never leaves a truncated
original behind.

When libvips has not been initialized, static originals are re-encoded
with the pure-Go imaging encoders; derivatives require libvips.

NOTE: govips cannot restart libvips after vips.Shutdown, so call
ShutdownVips only on process exit.
*/
package transcode
