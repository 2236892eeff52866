package embedcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/rankd/internal/logging"
)

// fakeRemote is an in-memory RemoteStore with injectable failures.
type fakeRemote struct {
	mu      sync.Mutex
	data    map[string][]float32
	err     error
	gets    int
	puts    int
	pings   int
	closed  bool
	corrupt map[string]bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{data: map[string][]float32{}, corrupt: map[string]bool{}}
}

func (r *fakeRemote) GetErr(_ context.Context, key Key) ([]float32, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	if r.err != nil {
		return nil, false, r.err
	}
	if r.corrupt[key.String()] {
		// Simulates a malformed payload: decode failed upstream -> miss.
		return nil, false, nil
	}
	vec, ok := r.data[key.String()]
	return vec, ok, nil
}

func (r *fakeRemote) PutErr(_ context.Context, key Key, vec []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.puts++
	if r.err != nil {
		return r.err
	}
	r.data[key.String()] = vec
	return nil
}

func (r *fakeRemote) Ping(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pings++
	return r.err
}
func (r *fakeRemote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeRemote) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func testKey(id string) Key {
	return Key{Identity: id, ModelTag: "test-model"}
}

func TestFallbackLocalHit(t *testing.T) {
	remote := newFakeRemote()
	f := NewFallback(remote, NewLocalStore(10, time.Minute), logging.Nop())
	defer f.Close()

	ctx := context.Background()
	f.Put(ctx, testKey("a"), []float32{1, 2, 3})

	vec, ok := f.Get(ctx, testKey("a"))
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, vec)

	// Served from local; the remote was not consulted on read.
	remote.mu.Lock()
	defer remote.mu.Unlock()
	assert.Zero(t, remote.gets)
}

func TestFallbackRemoteHitPromotesToLocal(t *testing.T) {
	remote := newFakeRemote()
	remote.data[testKey("b").String()] = []float32{4, 5}

	f := NewFallback(remote, NewLocalStore(10, time.Minute), logging.Nop())
	defer f.Close()

	ctx := context.Background()
	vec, ok := f.Get(ctx, testKey("b"))
	require.True(t, ok)
	assert.Equal(t, []float32{4, 5}, vec)

	// Second read is local.
	_, ok = f.Get(ctx, testKey("b"))
	require.True(t, ok)
	remote.mu.Lock()
	defer remote.mu.Unlock()
	assert.Equal(t, 1, remote.gets)
}

func TestFallbackRemoteDownIsNotAnError(t *testing.T) {
	remote := newFakeRemote()
	remote.fail(errors.New("connection refused"))

	f := NewFallback(remote, NewLocalStore(10, time.Minute), logging.Nop())
	defer f.Close()

	ctx := context.Background()

	// Writes and reads still work through the local store.
	f.Put(ctx, testKey("c"), []float32{9})
	vec, ok := f.Get(ctx, testKey("c"))
	require.True(t, ok)
	assert.Equal(t, []float32{9}, vec)

	// Unknown keys miss quietly.
	_, ok = f.Get(ctx, testKey("unknown"))
	assert.False(t, ok)
}

func TestFallbackCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	remote := newFakeRemote()
	remote.fail(errors.New("down"))

	f := NewFallback(remote, NewLocalStore(10, time.Minute), logging.Nop())
	defer f.Close()
	f.failureThreshold = 3

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.Get(ctx, testKey("x"))
	}

	remote.mu.Lock()
	gets := remote.gets
	remote.mu.Unlock()
	// After the third consecutive failure the remote is skipped.
	assert.Equal(t, 3, gets)
}

func TestFallbackCircuitProbesAfterCooldown(t *testing.T) {
	remote := newFakeRemote()
	remote.fail(errors.New("down"))

	f := NewFallback(remote, NewLocalStore(10, time.Minute), logging.Nop())
	defer f.Close()
	f.failureThreshold = 1
	f.cooldown = 10 * time.Millisecond

	ctx := context.Background()
	f.Get(ctx, testKey("x")) // opens the circuit
	f.Get(ctx, testKey("x")) // skipped

	remote.fail(nil)
	time.Sleep(20 * time.Millisecond)

	remote.data[testKey("x").String()] = []float32{7}
	vec, ok := f.Get(ctx, testKey("x"))
	require.True(t, ok)
	assert.Equal(t, []float32{7}, vec)
}

func TestFallbackCooldownProbePings(t *testing.T) {
	remote := newFakeRemote()
	remote.fail(errors.New("down"))

	f := NewFallback(remote, NewLocalStore(10, time.Minute), logging.Nop())
	defer f.Close()
	f.failureThreshold = 1
	f.cooldown = 10 * time.Millisecond

	ctx := context.Background()
	f.Get(ctx, testKey("p")) // opens the circuit

	// Remote still down: the post-cooldown probe pings, fails, and keeps
	// the circuit open without issuing the lookup itself.
	time.Sleep(20 * time.Millisecond)
	_, ok := f.Get(ctx, testKey("p"))
	assert.False(t, ok)
	remote.mu.Lock()
	assert.Equal(t, 1, remote.pings)
	assert.Equal(t, 1, remote.gets)
	remote.mu.Unlock()

	// Remote healthy again: the next probe closes the circuit and the
	// lookup goes through.
	remote.fail(nil)
	remote.mu.Lock()
	remote.data[testKey("p").String()] = []float32{3}
	remote.mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	vec, ok := f.Get(ctx, testKey("p"))
	require.True(t, ok)
	assert.Equal(t, []float32{3}, vec)
	remote.mu.Lock()
	assert.Equal(t, 2, remote.pings)
	remote.mu.Unlock()
}

func TestFallbackNilRemote(t *testing.T) {
	f := NewFallback(nil, NewLocalStore(10, time.Minute), logging.Nop())
	defer f.Close()

	ctx := context.Background()
	f.Put(ctx, testKey("k"), []float32{1})
	vec, ok := f.Get(ctx, testKey("k"))
	require.True(t, ok)
	assert.Equal(t, []float32{1}, vec)
}

func TestFallbackWriteReachesRemote(t *testing.T) {
	remote := newFakeRemote()
	f := NewFallback(remote, NewLocalStore(10, time.Minute), logging.Nop())

	f.Put(context.Background(), testKey("w"), []float32{1, 2})
	require.NoError(t, f.Close()) // Close drains in-flight writes

	remote.mu.Lock()
	defer remote.mu.Unlock()
	assert.Equal(t, 1, remote.puts)
	assert.Contains(t, remote.data, testKey("w").String())
	assert.True(t, remote.closed)
}

func TestFallbackRejectsInvalidVectors(t *testing.T) {
	f := NewFallback(nil, NewLocalStore(10, time.Minute), logging.Nop())
	defer f.Close()

	ctx := context.Background()
	f.Put(ctx, testKey("bad"), nil)
	f.Put(ctx, testKey("bad"), []float32{})

	_, ok := f.Get(ctx, testKey("bad"))
	assert.False(t, ok)
}
