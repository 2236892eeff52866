// Package config provides configuration loading for rankd.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables. All weights and limits that tune ranking behavior live here so
// that deployments can adjust them without code changes.
package config

import (
	"fmt"
	"time"
)

// Config holds the complete rankd configuration.
type Config struct {
	Scoring   ScoringConfig   `koanf:"scoring"`
	ThemeFit  ThemeFitConfig  `koanf:"themefit"`
	Cache     CacheConfig     `koanf:"cache"`
	Pool      PoolConfig      `koanf:"pool"`
	Ranking   RankingConfig   `koanf:"ranking"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ScoringConfig holds the combined-score weights used by the reranker when
// semantic similarity is available. Weights are normalized at load time so
// they need not sum to exactly 1.
type ScoringConfig struct {
	LexicalWeight  float64 `koanf:"lexical_weight"`
	SemanticWeight float64 `koanf:"semantic_weight"`
	ThemeFitWeight float64 `koanf:"themefit_weight"`

	// StrictThreshold and RelaxedThreshold are the cosine-similarity cutoffs
	// for the first two reranking tiers.
	StrictThreshold  float64 `koanf:"strict_threshold"`
	RelaxedThreshold float64 `koanf:"relaxed_threshold"`
}

// ThemeFitConfig holds sub-score weights for the theme-fit composite.
type ThemeFitConfig struct {
	ClarityWeight     float64 `koanf:"clarity_weight"`
	ControversyWeight float64 `koanf:"controversy_weight"`
	DiversityWeight   float64 `koanf:"diversity_weight"`
	CitationWeight    float64 `koanf:"citation_weight"`
}

// CacheConfig holds embedding-cache configuration.
type CacheConfig struct {
	// Backend selects the remote backing store: "redis", "chromem" or "none".
	Backend string `koanf:"backend"`

	// RedisAddr is the redis host:port (redis backend only).
	RedisAddr string `koanf:"redis_addr"`

	// ChromemPath is the persistent store directory (chromem backend only).
	ChromemPath string `koanf:"chromem_path"`

	// Compress enables compressed on-disk entries (chromem backend only).
	Compress bool `koanf:"compress"`

	// MaxEntries bounds the local in-memory store.
	MaxEntries int `koanf:"max_entries"`

	// TTL is how long an entry stays valid.
	TTL Duration `koanf:"ttl"`

	// ModelTag is appended to cache keys so entries written by one embedding
	// model are never served for another.
	ModelTag string `koanf:"model_tag"`
}

// PoolConfig holds embedding worker pool configuration.
type PoolConfig struct {
	Workers     int      `koanf:"workers"`
	TaskTimeout Duration `koanf:"task_timeout"`

	// MemoryCeilingMB retires a worker whose process-share of heap exceeds it.
	MemoryCeilingMB int `koanf:"memory_ceiling_mb"`

	MinBatchSize int `koanf:"min_batch_size"`
	MaxBatchSize int `koanf:"max_batch_size"`

	// FallbackRPS limits the synchronous embedding path used when the pool
	// is unavailable.
	FallbackRPS float64 `koanf:"fallback_rps"`
}

// RankingConfig holds orchestrator configuration.
type RankingConfig struct {
	// MaxResults caps the ranked set size per tier.
	MaxResults int `koanf:"max_results"`

	// RefineLimit is how many lexically top-ranked candidates the refined
	// tier reranking considers.
	RefineLimit int `koanf:"refine_limit"`

	// BatchConcurrency bounds the concurrent batch groups per reranking tier.
	BatchConcurrency int `koanf:"batch_concurrency"`
}

// EmbeddingConfig selects the embedding inference backend handed to pool
// workers.
type EmbeddingConfig struct {
	// Provider is "fastembed" (local ONNX) or "tei" (remote inference server).
	Provider string `koanf:"provider"`

	// Model is the embedding model name.
	Model string `koanf:"model"`

	// BaseURL is the TEI server URL (tei provider only).
	BaseURL string `koanf:"base_url"`

	// CacheDir is the local model cache directory (fastembed provider only).
	CacheDir string `koanf:"cache_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// NewDefaultConfig returns config with production-ready defaults.
//
// The 30/30/40 combined-score split and the theme-fit sub-weights are
// deliberate defaults, not contracts; override them per deployment.
func NewDefaultConfig() *Config {
	return &Config{
		Scoring: ScoringConfig{
			LexicalWeight:    0.30,
			SemanticWeight:   0.30,
			ThemeFitWeight:   0.40,
			StrictThreshold:  0.75,
			RelaxedThreshold: 0.50,
		},
		ThemeFit: ThemeFitConfig{
			ClarityWeight:     0.30,
			ControversyWeight: 0.30,
			DiversityWeight:   0.20,
			CitationWeight:    0.20,
		},
		Cache: CacheConfig{
			Backend:    "none",
			RedisAddr:  "localhost:6379",
			MaxEntries: 10000,
			TTL:        Duration(24 * time.Hour),
			ModelTag:   "bge-small-en-v1.5",
		},
		Pool: PoolConfig{
			Workers:         4,
			TaskTimeout:     Duration(30 * time.Second),
			MemoryCeilingMB: 1024,
			MinBatchSize:    8,
			MaxBatchSize:    64,
			FallbackRPS:     2,
		},
		Ranking: RankingConfig{
			MaxResults:       200,
			RefineLimit:      200,
			BatchConcurrency: 4,
		},
		Embedding: EmbeddingConfig{
			Provider: "fastembed",
			Model:    "BAAI/bge-small-en-v1.5",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Scoring.LexicalWeight < 0 || c.Scoring.SemanticWeight < 0 || c.Scoring.ThemeFitWeight < 0 {
		return fmt.Errorf("scoring: weights must be non-negative")
	}
	if c.Scoring.LexicalWeight+c.Scoring.SemanticWeight+c.Scoring.ThemeFitWeight == 0 {
		return fmt.Errorf("scoring: at least one weight must be positive")
	}
	if c.Scoring.StrictThreshold < c.Scoring.RelaxedThreshold {
		return fmt.Errorf("scoring: strict_threshold must be >= relaxed_threshold")
	}
	if c.Scoring.StrictThreshold > 1 || c.Scoring.RelaxedThreshold < 0 {
		return fmt.Errorf("scoring: thresholds must be within [0,1]")
	}
	switch c.Cache.Backend {
	case "redis", "chromem", "none":
	default:
		return fmt.Errorf("cache: unknown backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return fmt.Errorf("cache: redis_addr required for redis backend")
	}
	if c.Cache.Backend == "chromem" && c.Cache.ChromemPath == "" {
		return fmt.Errorf("cache: chromem_path required for chromem backend")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache: max_entries must be positive")
	}
	if c.Pool.Workers <= 0 {
		return fmt.Errorf("pool: workers must be positive")
	}
	if c.Pool.MinBatchSize <= 0 || c.Pool.MaxBatchSize < c.Pool.MinBatchSize {
		return fmt.Errorf("pool: batch sizes must satisfy 0 < min <= max")
	}
	if c.Ranking.MaxResults <= 0 {
		return fmt.Errorf("ranking: max_results must be positive")
	}
	if c.Ranking.BatchConcurrency <= 0 {
		return fmt.Errorf("ranking: batch_concurrency must be positive")
	}
	switch c.Embedding.Provider {
	case "fastembed", "tei", "":
	default:
		return fmt.Errorf("embedding: unknown provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "tei" && c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding: base_url required for tei provider")
	}
	return nil
}
