package cache

import (
	"encoding/hex"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/crypto/blake2b"
)

const appName = "media-optimizer"

// EnvCacheDir overrides the cache directory.
const EnvCacheDir = "MEDIA_OPTIMIZER_CACHE_DIR"

// Key returns the cache key for an output file. relPath is the file's path
// relative to the build output root and fingerprint identifies the encoding
// profile; both are hashed so equal base names in different directories
// never share an entry. The base name is kept for readability.
func Key(fingerprint, relPath string) string {
	return VariantKey(fingerprint, "", relPath)
}

// VariantKey is Key for outputs whose bytes depend on more than the profile
// and the path. variant names what else went into the file, such as the
// resize policy and target size of a derivative. An empty variant gives
// the same key as Key.
func VariantKey(fingerprint, variant, relPath string) string {
	rel := filepath.ToSlash(relPath)
	material := fingerprint + "\x00" + rel
	if variant != "" {
		material = fingerprint + "\x00" + variant + "\x00" + rel
	}
	sum := blake2b.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])[:16] + "-" + path.Base(rel)
}

// DefaultDir resolves the cache directory: $MEDIA_OPTIMIZER_CACHE_DIR,
// then $XDG_CACHE_HOME/media-optimizer, then ~/.cache/media-optimizer.
func DefaultDir() (string, error) {
	if dir := os.Getenv(EnvCacheDir); dir != "" {
		return dir, nil
	}
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
