// Package reranker applies semantic reranking to lexically scored
// candidates through a three-tier fallback cascade.
//
// The cascade exists because broad queries in thinly covered domains
// routinely produce zero high-confidence semantic matches. Rather than
// return nothing despite thousands of keyword-relevant candidates, the
// reranker lowers its similarity cutoff once and then abandons semantic
// filtering entirely, ranking by lexical score alone. The terminal tier is
// never empty when candidates existed at input.
//
// Embeddings are obtained cache-first: the embedding cache is consulted for
// every candidate before any inference is scheduled, and freshly computed
// vectors are written back fire-and-forget. Inference runs as concurrent
// batches against the worker pool with a bounded concurrency factor.
package reranker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/rankd/internal/embedcache"
	"github.com/fyrsmithlabs/rankd/internal/logging"
	"github.com/fyrsmithlabs/rankd/internal/paper"
	"github.com/fyrsmithlabs/rankd/internal/pool"
	"github.com/fyrsmithlabs/rankd/internal/themefit"
)

// Embedder is the slice of the worker pool the reranker needs. Satisfied by
// *pool.Pool.
type Embedder interface {
	Submit(ctx context.Context, texts []string, deadline time.Time) ([][]float32, error)
	DynamicBatchSize() int
}

// Config tunes the cascade.
type Config struct {
	// StrictThreshold and RelaxedThreshold are the cosine-similarity cutoffs
	// for the first two tiers. Strict must be >= relaxed.
	StrictThreshold  float64
	RelaxedThreshold float64

	// Combined-score weights, normalized internally.
	LexicalWeight  float64
	SemanticWeight float64
	ThemeFitWeight float64

	// Concurrency bounds concurrent embedding batches per request.
	Concurrency int

	// BatchSize fixes the per-batch candidate count; 0 asks the pool for a
	// size derived from current memory pressure.
	BatchSize int

	// ModelTag namespaces cache keys per embedding model.
	ModelTag string
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.StrictThreshold == 0 {
		c.StrictThreshold = 0.75
	}
	if c.RelaxedThreshold == 0 {
		c.RelaxedThreshold = 0.50
	}
	if c.LexicalWeight == 0 && c.SemanticWeight == 0 && c.ThemeFitWeight == 0 {
		c.LexicalWeight = 0.30
		c.SemanticWeight = 0.30
		c.ThemeFitWeight = 0.40
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.ModelTag == "" {
		c.ModelTag = "default"
	}
}

// Provenance records how a rerank's scores were obtained.
type Provenance struct {
	// CacheHits counts candidate embeddings served from the cache.
	CacheHits int `json:"cache_hits"`

	// FreshEmbeddings counts vectors computed by inference this request.
	FreshEmbeddings int `json:"fresh_embeddings"`

	// PoolUsed reports whether any inference went through the worker pool.
	PoolUsed bool `json:"pool_used"`
}

func (p *Provenance) merge(other Provenance) {
	p.CacheHits += other.CacheHits
	p.FreshEmbeddings += other.FreshEmbeddings
	p.PoolUsed = p.PoolUsed || other.PoolUsed
}

// Result is the outcome of one cascade run.
type Result struct {
	// Tier is the cascade stage that produced the candidates.
	Tier Tier

	// Candidates is sorted by descending combined score and already
	// truncated to the requested size. Their Scores records are annotated
	// in place.
	Candidates []*paper.Candidate

	Provenance Provenance
}

// Reranker runs the cascade. Safe for concurrent use across requests; the
// candidates of any single request must not be shared between concurrent
// Rerank calls.
type Reranker struct {
	cfg    Config
	pool   Embedder
	cache  embedcache.Cache
	themes *themefit.Scorer
	logger *logging.Logger
}

// New creates a reranker. cache and themes may be nil: a nil cache means
// every embedding is computed fresh, a nil themes scorer zeroes the
// theme-fit term of the combined score.
func New(cfg Config, embedder Embedder, cache embedcache.Cache, themes *themefit.Scorer, logger *logging.Logger) *Reranker {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = logging.Nop()
	}
	return &Reranker{
		cfg:    cfg,
		pool:   embedder,
		cache:  cache,
		themes: themes,
		logger: logger.Named("reranker"),
	}
}

// Rerank runs the cascade over lexically scored candidates and returns the
// first non-empty tier, truncated to topN. A positive batchSize fixes the
// embedding batch size for this request; 0 falls back to the configured or
// memory-derived size.
//
// Cancellation mid-request is not an error: annotation stops at the next
// batch-group boundary and the cascade proceeds over whatever semantic
// scores were accumulated, degrading to the lexical fallback if none were.
func (r *Reranker) Rerank(ctx context.Context, query *paper.Query, candidates []*paper.Candidate, topN, batchSize int) *Result {
	if len(candidates) == 0 {
		return &Result{Tier: TierLexicalFallback}
	}
	if topN <= 0 || topN > len(candidates) {
		topN = len(candidates)
	}

	var prov Provenance
	if r.ensureQueryEmbedding(ctx, query, &prov) {
		prov.merge(r.annotateSemantic(ctx, query.Embedding, candidates, batchSize))
	}

	for _, tier := range []Tier{TierStrict, TierRelaxed} {
		if ctx.Err() != nil {
			break
		}
		selected := r.semanticTier(tier, candidates)
		if len(selected) == 0 {
			r.logger.Debug(ctx, "tier empty, cascading",
				zap.Stringer("tier", tier),
				zap.Int("candidates", len(candidates)))
			continue
		}
		recordTierServed(ctx, tier)
		return &Result{Tier: tier, Candidates: truncate(selected, topN), Provenance: prov}
	}

	recordTierServed(ctx, TierLexicalFallback)
	return &Result{
		Tier:       TierLexicalFallback,
		Candidates: r.lexicalFallback(candidates, topN),
		Provenance: prov,
	}
}

// ensureQueryEmbedding computes the query embedding at most once per
// request, consulting the cache first. Returns false when no embedding
// could be obtained, which skips the semantic tiers entirely.
func (r *Reranker) ensureQueryEmbedding(ctx context.Context, query *paper.Query, prov *Provenance) bool {
	if query == nil || query.Text == "" {
		return false
	}
	if len(query.Embedding) > 0 {
		return true
	}

	key := embedcache.Key{Identity: queryIdentity(query.Text), ModelTag: r.cfg.ModelTag}
	if r.cache != nil {
		if vec, ok := r.cache.Get(ctx, key); ok {
			query.Embedding = vec
			prov.CacheHits++
			return true
		}
	}

	vectors, err := r.pool.Submit(ctx, []string{query.Text}, time.Time{})
	if err != nil || len(vectors) != 1 {
		r.logger.Warn(ctx, "query embedding unavailable, skipping semantic tiers", zap.Error(err))
		return false
	}
	query.Embedding = vectors[0]
	prov.FreshEmbeddings++
	prov.PoolUsed = true
	if r.cache != nil {
		r.cache.Put(ctx, key, vectors[0])
	}
	return true
}

// annotateSemantic fills Scores.Semantic for every candidate it can,
// cache-first, with misses embedded in concurrent batches. Candidates whose
// vector could not be obtained keep SemanticValid false and simply fail the
// semantic tiers.
func (r *Reranker) annotateSemantic(ctx context.Context, queryVec []float32, candidates []*paper.Candidate, batchSize int) Provenance {
	var hits, fresh, poolUsed atomic.Int64

	var misses []*paper.Candidate
	for _, c := range candidates {
		if c.Scores.SemanticValid {
			continue
		}
		if r.cache != nil {
			key := embedcache.Key{Identity: c.Identity(), ModelTag: r.cfg.ModelTag}
			if vec, ok := r.cache.Get(ctx, key); ok {
				c.Scores.Semantic = clamp01(cosine(queryVec, vec))
				c.Scores.SemanticValid = true
				hits.Add(1)
				continue
			}
		}
		misses = append(misses, c)
	}

	if batchSize <= 0 {
		batchSize = r.cfg.BatchSize
	}
	if batchSize <= 0 {
		batchSize = r.pool.DynamicBatchSize()
	}
	if batchSize <= 0 {
		batchSize = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for _, batch := range pool.Batches(misses, batchSize) {
		// Cancellation boundary between batch groups: accumulated scores
		// stand, no new batch is issued.
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text()
			}
			vectors, err := r.pool.Submit(gctx, texts, time.Time{})
			if err != nil {
				r.logger.Warn(gctx, "embedding batch failed, candidates stay lexical-only",
					zap.Int("batch_size", len(batch)), zap.Error(err))
				return nil
			}
			poolUsed.Store(1)
			fresh.Add(int64(len(batch)))
			for i, c := range batch {
				if i >= len(vectors) {
					break
				}
				c.Scores.Semantic = clamp01(cosine(queryVec, vectors[i]))
				c.Scores.SemanticValid = true
				if r.cache != nil {
					r.cache.Put(gctx, embedcache.Key{Identity: c.Identity(), ModelTag: r.cfg.ModelTag}, vectors[i])
				}
			}
			return nil
		})
	}
	// Batch failures are absorbed above, so the only wait outcome that
	// matters is completion.
	_ = g.Wait()

	recordCacheHits(ctx, hits.Load())
	recordFreshEmbeddings(ctx, fresh.Load())

	return Provenance{
		CacheHits:       int(hits.Load()),
		FreshEmbeddings: int(fresh.Load()),
		PoolUsed:        poolUsed.Load() == 1,
	}
}

// semanticTier filters candidates by the tier's similarity cutoff and ranks
// survivors by combined score.
func (r *Reranker) semanticTier(tier Tier, candidates []*paper.Candidate) []*paper.Candidate {
	var threshold float64
	switch tier {
	case TierStrict:
		threshold = r.cfg.StrictThreshold
	case TierRelaxed:
		threshold = r.cfg.RelaxedThreshold
	case TierLexicalFallback:
		// Terminal tier has no semantic cutoff; handled by lexicalFallback.
		return nil
	}

	var selected []*paper.Candidate
	for _, c := range candidates {
		if !c.Scores.SemanticValid || c.Scores.Semantic < threshold {
			continue
		}
		c.Scores.Combined = r.combined(c)
		selected = append(selected, c)
	}
	sortByCombined(selected)
	return selected
}

// lexicalFallback ranks by lexical score alone. Never empty for non-empty
// input.
func (r *Reranker) lexicalFallback(candidates []*paper.Candidate, topN int) []*paper.Candidate {
	ranked := make([]*paper.Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Scores.Lexical > ranked[j].Scores.Lexical
	})
	ranked = truncate(ranked, topN)
	for _, c := range ranked {
		c.Scores.Combined = c.Scores.Lexical
	}
	return ranked
}

// combined computes the weighted sum of lexical, semantic and theme-fit
// scores. Lexical BM25 scores are unbounded above, so they are squashed
// into [0,1) before weighting.
func (r *Reranker) combined(c *paper.Candidate) float64 {
	if r.themes != nil && c.Scores.ThemeFit == 0 {
		c.Scores.ThemeFit = r.themes.Score(c.Text(), c.CitationCount, c.Year).Composite
	}

	total := r.cfg.LexicalWeight + r.cfg.SemanticWeight + r.cfg.ThemeFitWeight
	lex := c.Scores.Lexical / (c.Scores.Lexical + 1)
	return (r.cfg.LexicalWeight*lex +
		r.cfg.SemanticWeight*c.Scores.Semantic +
		r.cfg.ThemeFitWeight*c.Scores.ThemeFit) / total
}

func sortByCombined(candidates []*paper.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Scores.Combined > candidates[j].Scores.Combined
	})
}

func truncate(candidates []*paper.Candidate, n int) []*paper.Candidate {
	if len(candidates) > n {
		return candidates[:n]
	}
	return candidates
}

// queryIdentity derives a stable cache identity for query text so the query
// embedding is itself cache-eligible across requests.
func queryIdentity(text string) string {
	sum := sha256.Sum256([]byte(paper.Normalize(text)))
	return "query:" + hex.EncodeToString(sum[:8])
}
