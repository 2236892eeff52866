package embedcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LocalStore is a bounded in-memory LRU with per-entry TTL. It is the
// terminal fallback layer: it cannot fail, only miss.
type LocalStore struct {
	lru *expirable.LRU[string, []float32]
}

// NewLocalStore creates a local store holding at most maxEntries vectors,
// each valid for ttl. A non-positive maxEntries falls back to 1024.
func NewLocalStore(maxEntries int, ttl time.Duration) *LocalStore {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &LocalStore{
		lru: expirable.NewLRU[string, []float32](maxEntries, nil, ttl),
	}
}

// Get returns the cached vector if present and unexpired.
func (s *LocalStore) Get(_ context.Context, key Key) ([]float32, bool) {
	vec, ok := s.lru.Get(key.String())
	if !ok || !validVector(vec) {
		return nil, false
	}
	return vec, true
}

// Put stores the vector, evicting the least-recently-used entry when full.
func (s *LocalStore) Put(_ context.Context, key Key, vec []float32) {
	if !validVector(vec) {
		return
	}
	s.lru.Add(key.String(), vec)
}

// Len returns the current entry count.
func (s *LocalStore) Len() int {
	return s.lru.Len()
}

// Close is a no-op for the in-memory store.
func (s *LocalStore) Close() error {
	return nil
}
