package embedcache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreGetPut(t *testing.T) {
	s := NewLocalStore(4, time.Minute)
	ctx := context.Background()

	_, ok := s.Get(ctx, testKey("missing"))
	assert.False(t, ok)

	s.Put(ctx, testKey("a"), []float32{1})
	vec, ok := s.Get(ctx, testKey("a"))
	require.True(t, ok)
	assert.Equal(t, []float32{1}, vec)
}

func TestLocalStoreModelTagSeparatesEntries(t *testing.T) {
	s := NewLocalStore(4, time.Minute)
	ctx := context.Background()

	s.Put(ctx, Key{Identity: "doc", ModelTag: "model-a"}, []float32{1})

	_, ok := s.Get(ctx, Key{Identity: "doc", ModelTag: "model-b"})
	assert.False(t, ok, "an entry written under one model tag must not serve another")
}

func TestLocalStoreEvictsLRU(t *testing.T) {
	s := NewLocalStore(2, time.Minute)
	ctx := context.Background()

	s.Put(ctx, testKey("a"), []float32{1})
	s.Put(ctx, testKey("b"), []float32{2})
	s.Get(ctx, testKey("a")) // refresh a
	s.Put(ctx, testKey("c"), []float32{3})

	_, okA := s.Get(ctx, testKey("a"))
	_, okB := s.Get(ctx, testKey("b"))
	_, okC := s.Get(ctx, testKey("c"))
	assert.True(t, okA)
	assert.False(t, okB, "least-recently-used entry should be evicted")
	assert.True(t, okC)
}

func TestLocalStoreTTLExpiry(t *testing.T) {
	s := NewLocalStore(4, 20*time.Millisecond)
	ctx := context.Background()

	s.Put(ctx, testKey("a"), []float32{1})
	time.Sleep(50 * time.Millisecond)

	_, ok := s.Get(ctx, testKey("a"))
	assert.False(t, ok, "expired entries are treated as absent")
}

func TestLocalStoreBounded(t *testing.T) {
	s := NewLocalStore(8, time.Minute)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		s.Put(ctx, testKey(fmt.Sprintf("k%d", i)), []float32{float32(i)})
	}
	assert.LessOrEqual(t, s.Len(), 8)
}

func TestCodecRejectsCorruptPayloads(t *testing.T) {
	vec := []float32{1.5, -2.25, 0}
	buf := encodeVector(vec)

	decoded, ok := decodeVector(buf)
	require.True(t, ok)
	assert.Equal(t, vec, decoded)

	for name, corrupt := range map[string][]byte{
		"empty":          {},
		"truncated_head": buf[:3],
		"truncated_body": buf[:len(buf)-2],
		"zero_dim":       {0, 0, 0, 0},
		"garbage_header": {255, 255, 255, 255},
	} {
		_, ok := decodeVector(corrupt)
		assert.False(t, ok, "case %s", name)
	}
}
