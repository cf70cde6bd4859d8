// Package session keeps short-lived per-player state, such as a pending
// search prompt or debug mode, with an explicit lifecycle and a TTL.
package session

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Store maps keys to values that disappear after ttl or when ended.
type Store[K comparable, V any] struct {
	entries *expirable.LRU[K, V]
}

// New returns a Store holding at most size entries (0 for no limit) for ttl
// each.
func New[K comparable, V any](size int, ttl time.Duration) *Store[K, V] {
	return &Store[K, V]{entries: expirable.NewLRU[K, V](size, nil, ttl)}
}

// Start begins or restarts the session for key.
func (s *Store[K, V]) Start(key K, value V) {
	s.entries.Add(key, value)
}

// Get returns the live session value for key.
func (s *Store[K, V]) Get(key K) (V, bool) {
	return s.entries.Get(key)
}

// Active reports whether key has a live session.
func (s *Store[K, V]) Active(key K) bool {
	_, ok := s.entries.Get(key)
	return ok
}

// End removes the session for key and reports whether one existed.
func (s *Store[K, V]) End(key K) bool {
	return s.entries.Remove(key)
}

// Len returns the number of sessions, possibly including expired ones not
// yet purged.
func (s *Store[K, V]) Len() int {
	return s.entries.Len()
}
