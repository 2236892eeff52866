package reranker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/rankd/internal/embedcache"
	"github.com/fyrsmithlabs/rankd/internal/paper"
	"github.com/fyrsmithlabs/rankd/internal/themefit"
)

// fakeEmbedder maps texts to fixed vectors and counts inference calls.
type fakeEmbedder struct {
	mu         sync.Mutex
	vectors    map[string][]float32
	deflt      []float32
	calls      int
	batchSizes []int
	fail       bool
}

func (f *fakeEmbedder) Submit(ctx context.Context, texts []string, _ time.Time) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.batchSizes = append(f.batchSizes, len(texts))
	fail := f.fail
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fail {
		return nil, errors.New("inference down")
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		f.mu.Lock()
		vec, ok := f.vectors[text]
		f.mu.Unlock()
		if !ok {
			vec = f.deflt
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) DynamicBatchSize() int { return 8 }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testCandidates(n int) []*paper.Candidate {
	cands := make([]*paper.Candidate, n)
	for i := range cands {
		cands[i] = &paper.Candidate{
			DOI:   fmt.Sprintf("10.1000/test.%d", i),
			Title: fmt.Sprintf("candidate %d", i),
			Scores: paper.Scores{
				Lexical: float64(n - i), // descending lexical order by index
			},
		}
	}
	return cands
}

func testConfig() Config {
	return Config{
		StrictThreshold:  0.75,
		RelaxedThreshold: 0.50,
		LexicalWeight:    0.30,
		SemanticWeight:   0.30,
		ThemeFitWeight:   0.40,
		Concurrency:      2,
		ModelTag:         "test-model",
	}
}

func TestStrictTierServedWhenSimilarityHigh(t *testing.T) {
	// Every candidate embeds to the query vector: cosine 1.0, passes strict.
	fe := &fakeEmbedder{deflt: []float32{1, 0}}
	r := New(testConfig(), fe, nil, themefit.NewScorer(themefit.Weights{}), nil)

	cands := testCandidates(5)
	res := r.Rerank(context.Background(), paper.NewQuery("graph neural network survey"), cands, 3, 0)

	assert.Equal(t, TierStrict, res.Tier)
	require.Len(t, res.Candidates, 3)
	for _, c := range res.Candidates {
		assert.True(t, c.Scores.SemanticValid)
		assert.InDelta(t, 1.0, c.Scores.Semantic, 1e-9)
		assert.Greater(t, c.Scores.Combined, 0.0)
	}
	assert.True(t, res.Provenance.PoolUsed)
	assert.Equal(t, 6, res.Provenance.FreshEmbeddings, "5 candidates + 1 query")
}

func TestRelaxedTierWhenStrictEmpty(t *testing.T) {
	// cos(45°) ≈ 0.707: below strict 0.75, above relaxed 0.50.
	fe := &fakeEmbedder{
		vectors: map[string][]float32{"the query": {1, 0}},
		deflt:   []float32{1, 1},
	}
	r := New(testConfig(), fe, nil, nil, nil)

	res := r.Rerank(context.Background(), paper.NewQuery("the query"), testCandidates(4), 10, 0)

	assert.Equal(t, TierRelaxed, res.Tier)
	assert.Len(t, res.Candidates, 4)
}

func TestLexicalFallbackWhenSemanticTiersEmpty(t *testing.T) {
	// Orthogonal vectors: similarity 0, both semantic tiers empty.
	fe := &fakeEmbedder{
		vectors: map[string][]float32{"the query": {1, 0}},
		deflt:   []float32{0, 1},
	}
	r := New(testConfig(), fe, nil, nil, nil)

	cands := testCandidates(10)
	res := r.Rerank(context.Background(), paper.NewQuery("the query"), cands, 4, 0)

	assert.Equal(t, TierLexicalFallback, res.Tier)
	require.Len(t, res.Candidates, 4)

	// Exactly the top-N by descending lexical score.
	for i, c := range res.Candidates {
		assert.Equal(t, cands[i], c)
		assert.Equal(t, c.Scores.Lexical, c.Scores.Combined)
	}
}

func TestFallbackWhenInferenceUnavailable(t *testing.T) {
	fe := &fakeEmbedder{fail: true}
	r := New(testConfig(), fe, nil, nil, nil)

	cands := testCandidates(3)
	res := r.Rerank(context.Background(), paper.NewQuery("anything"), cands, 10, 0)

	assert.Equal(t, TierLexicalFallback, res.Tier)
	assert.Len(t, res.Candidates, 3)
	assert.False(t, res.Provenance.PoolUsed)
}

func TestCacheHitBypassesInference(t *testing.T) {
	cache := embedcache.NewLocalStore(128, time.Hour)
	defer cache.Close()

	ctx := context.Background()
	query := paper.NewQuery("cached query text")
	cands := testCandidates(3)

	// Preload every vector, query included.
	cache.Put(ctx, embedcache.Key{Identity: queryIdentity(query.Text), ModelTag: "test-model"}, []float32{1, 0})
	for _, c := range cands {
		cache.Put(ctx, embedcache.Key{Identity: c.Identity(), ModelTag: "test-model"}, []float32{1, 0})
	}

	fe := &fakeEmbedder{deflt: []float32{1, 0}}
	r := New(testConfig(), fe, cache, nil, nil)

	res := r.Rerank(ctx, query, cands, 10, 0)

	assert.Equal(t, TierStrict, res.Tier)
	assert.Zero(t, fe.callCount(), "cache hits must not trigger inference")
	assert.Equal(t, 4, res.Provenance.CacheHits)
	assert.Zero(t, res.Provenance.FreshEmbeddings)
	assert.False(t, res.Provenance.PoolUsed)
}

func TestFreshEmbeddingsAreWrittenBack(t *testing.T) {
	cache := embedcache.NewLocalStore(128, time.Hour)
	defer cache.Close()

	fe := &fakeEmbedder{deflt: []float32{1, 0}}
	r := New(testConfig(), fe, cache, nil, nil)

	cands := testCandidates(3)
	_ = r.Rerank(context.Background(), paper.NewQuery("write back"), cands, 10, 0)
	firstCalls := fe.callCount()
	require.Positive(t, firstCalls)

	// Second identical request: everything served from cache.
	cands2 := testCandidates(3)
	res := r.Rerank(context.Background(), paper.NewQuery("write back"), cands2, 10, 0)
	assert.Equal(t, firstCalls, fe.callCount(), "repeat request must not add inference calls")
	assert.Equal(t, 4, res.Provenance.CacheHits)
}

func TestCancelledContextDegradesToLexical(t *testing.T) {
	fe := &fakeEmbedder{deflt: []float32{1, 0}}
	r := New(testConfig(), fe, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cands := testCandidates(5)
	res := r.Rerank(ctx, paper.NewQuery("cancelled"), cands, 2, 0)

	assert.Equal(t, TierLexicalFallback, res.Tier)
	assert.Len(t, res.Candidates, 2, "fallback still serves accumulated lexical ranking")
}

func TestEmptyCandidates(t *testing.T) {
	r := New(testConfig(), &fakeEmbedder{}, nil, nil, nil)
	res := r.Rerank(context.Background(), paper.NewQuery("q"), nil, 10, 0)
	assert.Equal(t, TierLexicalFallback, res.Tier)
	assert.Empty(t, res.Candidates)
}

func TestQueryEmbeddingComputedOnce(t *testing.T) {
	fe := &fakeEmbedder{deflt: []float32{1, 0}}
	r := New(testConfig(), fe, nil, nil, nil)

	query := paper.NewQuery("once only")
	_ = r.Rerank(context.Background(), query, testCandidates(2), 10, 0)
	require.NotEmpty(t, query.Embedding)

	calls := fe.callCount()
	_ = r.Rerank(context.Background(), query, testCandidates(2), 10, 0)
	// Second run embeds only the two fresh candidates, not the query.
	assert.Equal(t, calls+1, fe.callCount())
}

func TestFixedBatchSizeIsHonored(t *testing.T) {
	fe := &fakeEmbedder{deflt: []float32{1, 0}}
	r := New(testConfig(), fe, nil, nil, nil)

	// 5 candidates with a per-request batch size of 2: the query embeds
	// alone, then batches of 2, 2, and 1.
	_ = r.Rerank(context.Background(), paper.NewQuery("fixed batches"), testCandidates(5), 10, 2)

	fe.mu.Lock()
	defer fe.mu.Unlock()
	require.Len(t, fe.batchSizes, 4)
	assert.Equal(t, 1, fe.batchSizes[0], "query embedding")
	sizes := append([]int(nil), fe.batchSizes[1:]...)
	sort.Ints(sizes)
	assert.Equal(t, []int{1, 2, 2}, sizes)
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "strict", TierStrict.String())
	assert.Equal(t, "relaxed", TierRelaxed.String())
	assert.Equal(t, "lexical_fallback", TierLexicalFallback.String())
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"empty", nil, nil, 0.0},
		{"dimension mismatch", []float32{1}, []float32{1, 2}, 0.0},
		{"zero magnitude", []float32{0, 0}, []float32{1, 1}, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosine(tt.a, tt.b), 1e-9)
		})
	}
}
