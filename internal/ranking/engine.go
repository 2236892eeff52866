// Package ranking drives the full relevance pipeline: lexical scoring,
// tiered neural reranking, domain filtering and theme-fit annotation,
// streamed to the caller as progressively refined tier results.
//
// The engine owns every stateful resource the pipeline needs (the
// embedding cache, the worker pool, the reranker) with an explicit
// construction and teardown lifecycle. Nothing here is process-global.
package ranking

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/rankd/internal/classify"
	"github.com/fyrsmithlabs/rankd/internal/config"
	"github.com/fyrsmithlabs/rankd/internal/embedcache"
	"github.com/fyrsmithlabs/rankd/internal/embeddings"
	"github.com/fyrsmithlabs/rankd/internal/logging"
	"github.com/fyrsmithlabs/rankd/internal/pool"
	"github.com/fyrsmithlabs/rankd/internal/reranker"
	"github.com/fyrsmithlabs/rankd/internal/themefit"
)

var (
	// ErrEmptyQuery is returned by Rank for a blank query.
	ErrEmptyQuery = errors.New("ranking: empty query")

	// ErrNoCandidates is returned by Rank when no candidates were supplied.
	ErrNoCandidates = errors.New("ranking: no candidates provided")
)

// Engine runs ranking requests. Safe for concurrent use; per-request state
// never leaks between Rank calls.
type Engine struct {
	cfg    *config.Config
	logger *logging.Logger

	cache      embedcache.Cache
	pool       *pool.Pool
	rerank     *reranker.Reranker
	classifier *classify.Classifier
	themes     *themefit.Scorer
}

// NewEngine builds a fully wired engine from configuration. The embedding
// factory is handed to the worker pool; each worker constructs its own
// isolated provider from it.
//
// Pool startup failure is not fatal: the pool degrades to its synchronous
// fallback path, trading latency for availability.
func NewEngine(cfg *config.Config, factory embeddings.Factory, logger *logging.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.Named("ranking")

	cache, err := buildCache(cfg, logger)
	if err != nil {
		return nil, err
	}

	p := pool.New(pool.Config{
		Workers:         cfg.Pool.Workers,
		TaskTimeout:     cfg.Pool.TaskTimeout.Duration(),
		MemoryCeilingMB: cfg.Pool.MemoryCeilingMB,
		MinBatchSize:    cfg.Pool.MinBatchSize,
		MaxBatchSize:    cfg.Pool.MaxBatchSize,
		FallbackRPS:     cfg.Pool.FallbackRPS,
	}, factory, logger)
	if err := p.Start(context.Background()); err != nil {
		logger.Warn(context.Background(), "worker pool unavailable, using synchronous embedding path", zap.Error(err))
	}

	themes := themefit.NewScorer(themefit.Weights{
		Clarity:     cfg.ThemeFit.ClarityWeight,
		Controversy: cfg.ThemeFit.ControversyWeight,
		Diversity:   cfg.ThemeFit.DiversityWeight,
		Citation:    cfg.ThemeFit.CitationWeight,
	})

	rr := reranker.New(reranker.Config{
		StrictThreshold:  cfg.Scoring.StrictThreshold,
		RelaxedThreshold: cfg.Scoring.RelaxedThreshold,
		LexicalWeight:    cfg.Scoring.LexicalWeight,
		SemanticWeight:   cfg.Scoring.SemanticWeight,
		ThemeFitWeight:   cfg.Scoring.ThemeFitWeight,
		Concurrency:      cfg.Ranking.BatchConcurrency,
		ModelTag:         cfg.Cache.ModelTag,
	}, p, cache, themes, logger)

	return &Engine{
		cfg:        cfg,
		logger:     logger,
		cache:      cache,
		pool:       p,
		rerank:     rr,
		classifier: classify.NewClassifier(nil),
		themes:     themes,
	}, nil
}

// buildCache assembles the local store plus the configured remote backing
// store. A remote backend failing to construct degrades to local-only; the
// cache is an optimization, never a hard dependency.
func buildCache(cfg *config.Config, logger *logging.Logger) (embedcache.Cache, error) {
	local := embedcache.NewLocalStore(cfg.Cache.MaxEntries, cfg.Cache.TTL.Duration())

	switch cfg.Cache.Backend {
	case "none", "":
		return local, nil
	case "redis":
		remote := embedcache.NewRedisStore(embedcache.RedisConfig{
			Addr: cfg.Cache.RedisAddr,
			TTL:  cfg.Cache.TTL.Duration(),
		})
		return embedcache.NewFallback(remote, local, logger), nil
	case "chromem":
		remote, err := embedcache.NewChromemStore(embedcache.ChromemConfig{
			Path:     cfg.Cache.ChromemPath,
			Compress: cfg.Cache.Compress,
			TTL:      cfg.Cache.TTL.Duration(),
		})
		if err != nil {
			logger.Warn(context.Background(), "persistent cache unavailable, local-only", zap.Error(err))
			return local, nil
		}
		return embedcache.NewFallback(remote, local, logger), nil
	default:
		local.Close()
		return nil, fmt.Errorf("ranking: unknown cache backend %q", cfg.Cache.Backend)
	}
}

// Close releases the pool and cache. The engine must not be used after
// Close; in-flight Rank streams observe pool shutdown as degraded tiers,
// not corruption.
func (e *Engine) Close() error {
	var firstErr error
	if err := e.pool.Close(); err != nil {
		firstErr = err
	}
	if err := e.cache.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Options tunes one Rank call. Zero values fall back to configuration.
type Options struct {
	// MinThreshold drops complete-tier candidates whose combined score is
	// below it. 0 disables the cutoff.
	MinThreshold float64

	// MaxResults caps each tier's candidate count.
	MaxResults int

	// BatchSize fixes the embedding batch size; 0 derives it from memory
	// pressure.
	BatchSize int

	// MinThemeFit drops complete-tier candidates below this theme-fit
	// composite. Opt-in; 0 disables the cutoff.
	MinThemeFit float64
}

func (o *Options) applyDefaults(cfg *config.Config) {
	if o.MaxResults <= 0 {
		o.MaxResults = cfg.Ranking.MaxResults
	}
}
