// Package embedcache provides a bounded, TTL-expiring store for precomputed
// embedding vectors.
//
// The cache is an optimization, never a correctness dependency: every
// failure mode degrades to a miss. A remote backing store (redis or a
// persistent chromem collection) can sit in front of the local in-memory
// store; when it is unreachable, reads and writes transparently fall back to
// the local store without surfacing an error to callers.
package embedcache

import (
	"context"
	"errors"
)

// ErrClosed is returned by Put/Get on a closed store implementation that
// cannot accept operations.
var ErrClosed = errors.New("embedcache: store closed")

// Key addresses one cached vector. ModelTag prevents vectors written by one
// embedding model from being served for another after a model upgrade.
type Key struct {
	Identity string
	ModelTag string
}

// String renders the storage key.
func (k Key) String() string {
	return k.ModelTag + "/" + k.Identity
}

// Cache is the synchronized get/put interface shared across requests.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the cached vector, or ok=false on miss, expiry, or any
	// internal failure.
	Get(ctx context.Context, key Key) (vec []float32, ok bool)

	// Put stores the vector. Failures are absorbed; a write failure must
	// never fail the compute path that triggered it.
	Put(ctx context.Context, key Key, vec []float32)

	// Close releases resources.
	Close() error
}

// validVector reports whether a decoded cache entry has a usable shape.
// Corrupted entries are treated as misses rather than propagated as errors.
func validVector(vec []float32) bool {
	return len(vec) > 0
}
