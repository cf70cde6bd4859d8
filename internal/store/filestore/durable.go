package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Rename is retried because antivirus or indexers may briefly hold the target.
const (
	renameRetries    = 3
	renameRetryDelay = 100 * time.Millisecond
)

// WriteFile atomically replaces path with data. The bytes go to a temp file in
// the same directory, which is fsynced, closed and renamed over path. If any
// step fails the previous file is left untouched and the temp file removed.
func WriteFile(ctx context.Context, path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(renameRetryDelay), renameRetries),
		ctx,
	)
	if err := backoff.Retry(func() error { return os.Rename(tmpName, path) }, policy); err != nil {
		return fmt.Errorf("renaming %s: %w", filepath.Base(path), err)
	}
	committed = true

	syncDir(dir)
	return nil
}

// ReadFile returns the contents of path, or nil if it does not exist.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

// syncDir flushes the directory entry so the rename survives a crash. Not
// every platform supports syncing a directory, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(filepath.Clean(dir))
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
