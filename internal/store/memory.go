package store

import (
	"context"
	"sync"

	"github.com/jensholdgaard/auctionhouse/internal/config"
)

func init() {
	Register("memory", func(context.Context, config.StorageConfig) (Backend, error) {
		return NewMemoryBackend(), nil
	})
}

// MemoryBackend keeps snapshots in process memory. It backs the "memory"
// driver and service tests.
type MemoryBackend struct {
	mu        sync.Mutex
	snapshots map[string][]byte
	saves     map[string]int
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		snapshots: make(map[string][]byte),
		saves:     make(map[string]int),
	}
}

// Load returns a copy of the stored snapshot, or nil.
func (b *MemoryBackend) Load(_ context.Context, name string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.snapshots[name]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

// Save stores a copy of data.
func (b *MemoryBackend) Save(_ context.Context, name string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots[name] = append([]byte(nil), data...)
	b.saves[name]++
	return nil
}

// Saves reports how many times name has been saved.
func (b *MemoryBackend) Saves(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves[name]
}

func (b *MemoryBackend) Ping(context.Context) error { return nil }

func (b *MemoryBackend) Close() error { return nil }
