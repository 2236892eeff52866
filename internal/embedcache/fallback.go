package embedcache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/rankd/internal/logging"
)

// RemoteStore is a backing store that can fail: redis or chromem. Errors
// from it are absorbed by Fallback, never surfaced to cache callers.
type RemoteStore interface {
	GetErr(ctx context.Context, key Key) ([]float32, bool, error)
	PutErr(ctx context.Context, key Key, vec []float32) error
	Ping(ctx context.Context) error
	Close() error
}

// maxInflightWrites bounds the fire-and-forget write goroutines.
const maxInflightWrites = 32

// Fallback implements Cache over a remote primary with a local in-memory
// fallback. Reads consult the local store first (it is cheaper and already
// validated), then the remote. Writes go to both; remote writes are
// fire-and-forget.
//
// After failureThreshold consecutive remote errors the remote is skipped
// entirely for cooldown, then probed again. This keeps a dead redis from
// adding a timeout to every single candidate lookup.
type Fallback struct {
	remote RemoteStore
	local  *LocalStore
	logger *logging.Logger

	metrics *Metrics

	failures  atomic.Int32
	openUntil atomic.Int64 // unix nano; remote skipped until then

	writeSem chan struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool

	failureThreshold int32
	cooldown         time.Duration
}

// NewFallback wraps remote and local stores. remote may be nil, in which
// case the cache is purely local.
func NewFallback(remote RemoteStore, local *LocalStore, logger *logging.Logger) *Fallback {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Fallback{
		remote:           remote,
		local:            local,
		logger:           logger.Named("embedcache"),
		metrics:          NewMetrics(logger.Underlying()),
		writeSem:         make(chan struct{}, maxInflightWrites),
		failureThreshold: 5,
		cooldown:         30 * time.Second,
	}
}

// Get returns the cached vector, consulting local then remote. Any remote
// failure is recorded and degraded to a miss.
func (f *Fallback) Get(ctx context.Context, key Key) ([]float32, bool) {
	if vec, ok := f.local.Get(ctx, key); ok {
		f.metrics.RecordHit(ctx, "local")
		return vec, true
	}

	if f.remote == nil || !f.remoteAvailable(ctx) {
		f.metrics.RecordMiss(ctx)
		return nil, false
	}

	vec, ok, err := f.remote.GetErr(ctx, key)
	if err != nil {
		f.recordRemoteFailure(ctx, "get", err)
		f.metrics.RecordMiss(ctx)
		return nil, false
	}
	f.recordRemoteSuccess()

	if !ok || !validVector(vec) {
		f.metrics.RecordMiss(ctx)
		return nil, false
	}

	// Promote to local so repeated lookups in this request stay in memory.
	f.local.Put(ctx, key, vec)
	f.metrics.RecordHit(ctx, "remote")
	return vec, true
}

// Put stores locally and schedules a fire-and-forget remote write. A write
// failure must not fail the read/compute path that triggered it.
func (f *Fallback) Put(ctx context.Context, key Key, vec []float32) {
	if !validVector(vec) {
		return
	}
	f.local.Put(ctx, key, vec)

	if f.remote == nil || !f.remoteAvailable(ctx) || f.closed.Load() {
		return
	}

	select {
	case f.writeSem <- struct{}{}:
	default:
		// Write backlog full; the local copy is enough.
		f.metrics.RecordDroppedWrite(ctx)
		return
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer func() { <-f.writeSem }()

		// Detach from the request context: the write should outlive request
		// cancellation, within reason.
		wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := f.remote.PutErr(wctx, key, vec); err != nil {
			f.recordRemoteFailure(wctx, "put", err)
			return
		}
		f.recordRemoteSuccess()
	}()
}

// Close drains in-flight writes and closes the remote store.
func (f *Fallback) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	f.wg.Wait()
	if f.remote != nil {
		return f.remote.Close()
	}
	return nil
}

// remoteAvailable reports whether the circuit allows remote operations.
// When the cooldown elapses, a single caller pings the remote; the circuit
// closes only on a healthy response, so a still-dead remote costs one ping
// per cooldown instead of a timeout per lookup.
func (f *Fallback) remoteAvailable(ctx context.Context) bool {
	until := f.openUntil.Load()
	if until == 0 {
		return true
	}
	if time.Now().UnixNano() < until {
		return false
	}
	// The CAS elects one prober; everyone else stays local until the next
	// cooldown expiry.
	if !f.openUntil.CompareAndSwap(until, time.Now().Add(f.cooldown).UnixNano()) {
		return false
	}

	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := f.remote.Ping(pctx); err != nil {
		f.metrics.RecordRemoteError(ctx, "ping")
		f.logger.Debug(ctx, "remote cache probe failed, circuit stays open",
			zap.Duration("cooldown", f.cooldown), zap.Error(err))
		return false
	}

	f.failures.Store(0)
	f.openUntil.Store(0)
	f.logger.Info(ctx, "remote cache recovered, circuit closed")
	return true
}

func (f *Fallback) recordRemoteFailure(ctx context.Context, op string, err error) {
	f.metrics.RecordRemoteError(ctx, op)
	n := f.failures.Add(1)
	if n < f.failureThreshold {
		f.logger.Debug(ctx, "remote cache error, degrading to local",
			zap.String("op", op), zap.Error(err))
		return
	}
	f.failures.Store(0)
	f.openUntil.Store(time.Now().Add(f.cooldown).UnixNano())
	f.logger.Warn(ctx, "remote cache unavailable, circuit open",
		zap.String("op", op),
		zap.Duration("cooldown", f.cooldown),
		zap.Error(err))
}

func (f *Fallback) recordRemoteSuccess() {
	f.failures.Store(0)
}
