// Package filestore provides the default store.Backend: one JSON file per
// collection, replaced atomically on every save.
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jensholdgaard/auctionhouse/internal/config"
	"github.com/jensholdgaard/auctionhouse/internal/store"
)

func init() {
	store.Register("file", func(_ context.Context, cfg config.StorageConfig) (store.Backend, error) {
		return New(cfg.Dir)
	})
}

// Backend stores each collection as <dir>/<name>.json.
type Backend struct {
	dir string
}

// New creates dir if needed and returns a Backend rooted there.
func New(dir string) (*Backend, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &Backend{dir: dir}, nil
}

// Path returns the snapshot file used for name.
func (b *Backend) Path(name string) string {
	return filepath.Join(b.dir, name+".json")
}

func (b *Backend) Load(_ context.Context, name string) ([]byte, error) {
	return ReadFile(b.Path(name))
}

func (b *Backend) Save(ctx context.Context, name string, data []byte) error {
	return WriteFile(ctx, b.Path(name), data, 0o600)
}

// Ping checks that the data directory is still present.
func (b *Backend) Ping(context.Context) error {
	info, err := os.Stat(b.dir)
	if err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data dir %s is not a directory", b.dir)
	}
	return nil
}

func (b *Backend) Close() error { return nil }
