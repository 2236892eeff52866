package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/rankd/internal/config"
	"github.com/fyrsmithlabs/rankd/internal/embeddings"
	"github.com/fyrsmithlabs/rankd/internal/logging"
	"github.com/fyrsmithlabs/rankd/internal/paper"
	"github.com/fyrsmithlabs/rankd/internal/ranking"
)

var (
	configPath     string
	queryText      string
	candidatesPath string
	maxResults     int
	batchSize      int
	minThemeFit    float64
	minThreshold   float64
	timeout        time.Duration
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank a candidate set against a query",
	Long: `Rank reads a JSON array of candidate documents, ranks them against the
query, and writes each tier result to stdout as one JSON line.

Examples:
  # Rank candidates from a file
  rankd rank --query "graph neural networks" --candidates papers.json

  # With a config file and a result cap
  rankd rank --config rankd.yaml --query "crispr off-target effects" \
    --candidates papers.json --max-results 50`,
	RunE: runRank,
}

func init() {
	rankCmd.Flags().StringVar(&configPath, "config", "", "config file path (YAML)")
	rankCmd.Flags().StringVarP(&queryText, "query", "q", "", "free-text query (required)")
	rankCmd.Flags().StringVarP(&candidatesPath, "candidates", "c", "", "JSON file with the candidate array (required)")
	rankCmd.Flags().IntVar(&maxResults, "max-results", 0, "cap per-tier result count (0 = config default)")
	rankCmd.Flags().IntVar(&batchSize, "batch-size", 0, "fixed embedding batch size (0 = derive from memory pressure)")
	rankCmd.Flags().Float64Var(&minThemeFit, "min-theme-fit", 0, "drop complete-tier candidates below this theme-fit composite")
	rankCmd.Flags().Float64Var(&minThreshold, "min-threshold", 0, "drop complete-tier candidates below this combined score")
	rankCmd.Flags().DurationVar(&timeout, "timeout", 0, "overall request timeout (0 = none)")
	_ = rankCmd.MarkFlagRequired("query")
	_ = rankCmd.MarkFlagRequired("candidates")
}

func runRank(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	candidates, err := loadCandidates(candidatesPath)
	if err != nil {
		return err
	}

	factory := embeddings.NewFactory(embeddings.ProviderConfig{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		CacheDir: cfg.Embedding.CacheDir,
	})

	engine, err := ranking.NewEngine(cfg, factory, logger)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	results, err := engine.Rank(ctx, queryText, candidates, ranking.Options{
		MinThreshold: minThreshold,
		MaxResults:   maxResults,
		BatchSize:    batchSize,
		MinThemeFit:  minThemeFit,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for res := range results {
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("writing tier result: %w", err)
		}
	}
	return nil
}

func loadCandidates(path string) ([]*paper.Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading candidates: %w", err)
	}
	var candidates []*paper.Candidate
	if err := json.Unmarshal(data, &candidates); err != nil {
		return nil, fmt.Errorf("parsing candidates: %w", err)
	}
	return candidates, nil
}
