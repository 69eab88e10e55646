package filesystem

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"media-optimizer/internal/logging"
)

// WriteFileAtomic writes data to a temporary file beside path and renames it
// into place, so readers never observe a partially written file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	start := time.Now()
	err := writeAtomic(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if obs := observe(); obs != nil {
		obs.ObserveOperation(defaultResolver.Resolve(path), "write", time.Since(start).Seconds(), err)
	}
	return err
}

// CopyFile copies src to dst atomically and returns the number of bytes copied.
// The source is opened with NFS retry.
func CopyFile(src, dst string, config RetryConfig) (int64, error) {
	start := time.Now()

	in, err := OpenWithRetry(src, config)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := in.Close(); err != nil {
			logging.Warn("failed to close %s: %v", src, err)
		}
	}()

	var written int64
	err = writeAtomic(dst, 0o644, func(w io.Writer) error {
		var err error
		written, err = io.Copy(w, in)
		return err
	})
	if obs := observe(); obs != nil {
		obs.ObserveOperation(config.resolveVolume(dst), "copy", time.Since(start).Seconds(), err)
	}
	if err != nil {
		return 0, err
	}
	return written, nil
}

func writeAtomic(path string, perm os.FileMode, fill func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			if rmErr := os.Remove(tmpName); rmErr != nil && !os.IsNotExist(rmErr) {
				logging.Warn("failed to remove temp file %s: %v", tmpName, rmErr)
			}
		}
	}()

	if err = fill(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
