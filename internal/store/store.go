// Package store provides Collection, a generic in-memory record cache with a
// single writer per collection, optimistic concurrency and full-snapshot
// persistence through a pluggable Backend.
package store

import (
	"context"
	"errors"
	"math"
)

// Record is implemented by every value kept in a Collection. Records are
// value types; the collection owns the version counter.
type Record[T any] interface {
	RecordID() string
	RecordVersion() int64
	WithVersion(v int64) T
}

var (
	// ErrDuplicateID is returned when inserting a record whose id already exists.
	ErrDuplicateID = errors.New("record id already exists")
	// ErrEmptyID is returned when inserting a record without an id.
	ErrEmptyID = errors.New("record id is empty")
	// ErrClosed is returned for mutations submitted after Close.
	ErrClosed = errors.New("collection closed")
)

// Backend persists whole-collection snapshots keyed by collection name.
type Backend interface {
	// Load returns the last saved snapshot, or nil if none exists.
	Load(ctx context.Context, name string) ([]byte, error)
	// Save atomically replaces the snapshot for name.
	Save(ctx context.Context, name string, data []byte) error
	Ping(ctx context.Context) error
	Close() error
}

// Query selects, orders and pages records of a Collection.
type Query[T any] struct {
	// Filter keeps records for which it returns true. Nil keeps all.
	Filter func(T) bool
	// Compare orders the result. Nil keeps insertion order.
	Compare func(a, b T) int
	Offset  int
	// Limit caps the result size. Zero or negative means no limit.
	Limit int
}

// Window turns a 1-based page and a page size into a clamped page, size and
// query offset. A size of zero or less becomes def and sizes above max are
// capped. Page is capped so the offset cannot overflow.
func Window(page, size, def, max int) (int, int, int) {
	if size <= 0 {
		size = def
	}
	size = min(size, max)
	if page < 1 {
		page = 1
	}
	if limit := math.MaxInt/size - 1; page > limit {
		page = limit
	}
	return page, size, (page - 1) * size
}
