package ranking

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/rankd/internal/lexical"
	"github.com/fyrsmithlabs/rankd/internal/paper"
	"github.com/fyrsmithlabs/rankd/internal/reranker"
)

// Rank streams progressively refined tier results for one query over one
// candidate set.
//
// The returned channel is finite and non-restartable: it yields at most
// three emissions (immediate, refined, complete) in strictly increasing
// version order, then closes. Cancellation is honored between emissions,
// never mid-candidate; on cancellation the channel closes after whatever
// tiers were already delivered, with no error. The only explicit errors are
// a blank query and an empty candidate set.
func (e *Engine) Rank(ctx context.Context, queryText string, candidates []*paper.Candidate, opts Options) (<-chan TierResult, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, ErrEmptyQuery
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	opts.applyDefaults(e.cfg)

	// Buffered for every possible emission so an abandoned consumer never
	// wedges the producer goroutine.
	out := make(chan TierResult, 3)
	go e.run(ctx, paper.NewQuery(queryText), candidates, opts, out)
	return out, nil
}

func (e *Engine) run(ctx context.Context, query *paper.Query, candidates []*paper.Candidate, opts Options, out chan<- TierResult) {
	defer close(out)

	start := time.Now()
	version := uint64(0)
	emit := func(tier TierLabel, cands []*paper.Candidate, complete bool, prov reranker.Provenance) {
		version++
		out <- TierResult{
			Tier:       tier,
			Version:    version,
			Candidates: snapshot(cands),
			Elapsed:    time.Since(start),
			Complete:   complete,
			Provenance: prov,
		}
	}

	// Lexical scoring always runs; it is cheap and every later stage
	// depends on it.
	e.scoreLexical(query, candidates)

	// Immediate: lexical-only, sub-second.
	immediate := topByLexical(candidates, opts.MaxResults)
	emit(TierImmediate, immediate, false, reranker.Provenance{})

	if ctx.Err() != nil {
		e.logger.Debug(ctx, "cancelled after immediate tier",
			zap.String("query_complexity", string(query.Complexity)))
		return
	}

	// Refined: neural reranking over the lexically best slice.
	refineSet := topByLexical(candidates, e.refineLimit(len(candidates)))
	refined := e.rerank.Rerank(ctx, query, refineSet, opts.MaxResults, opts.BatchSize)
	emit(TierRefined, refined.Candidates, false, refined.Provenance)

	if ctx.Err() != nil {
		e.logger.Debug(ctx, "cancelled after refined tier")
		return
	}

	// Complete: full cascade over every candidate, then classification and
	// theme-fit annotation. An emptier-than-expected result here never
	// retracts the tiers already delivered.
	complete := e.rerank.Rerank(ctx, query, candidates, opts.MaxResults, opts.BatchSize)
	prov := refined.Provenance
	prov.CacheHits += complete.Provenance.CacheHits
	prov.FreshEmbeddings += complete.Provenance.FreshEmbeddings
	prov.PoolUsed = prov.PoolUsed || complete.Provenance.PoolUsed

	final := e.finalize(ctx, complete.Candidates, opts)
	e.logger.Info(ctx, "ranking complete",
		zap.Stringer("cascade_tier", complete.Tier),
		zap.Int("candidates_in", len(candidates)),
		zap.Int("candidates_out", len(final)),
		zap.Int("cache_hits", prov.CacheHits),
		zap.Int("fresh_embeddings", prov.FreshEmbeddings),
		zap.Duration("elapsed", time.Since(start)))
	emit(TierComplete, final, true, prov)
}

// scoreLexical builds per-request corpus statistics and annotates every
// candidate's lexical score. Candidates without text score 0.
func (e *Engine) scoreLexical(query *paper.Query, candidates []*paper.Candidate) {
	docs := make([]lexical.Doc, len(candidates))
	for i, c := range candidates {
		docs[i] = lexical.Doc{Title: c.Title, Body: c.Abstract}
	}
	scorer := lexical.NewScorer(docs)
	parsed := scorer.ParseQuery(query.Text)
	for i, c := range candidates {
		c.Scores.Lexical = scorer.Score(parsed, docs[i])
	}
}

// finalize applies the complete tier's classification pass: domain
// filtering, theme-fit annotation, optional score cutoffs, and final rank
// positions.
func (e *Engine) finalize(ctx context.Context, candidates []*paper.Candidate, opts Options) []*paper.Candidate {
	out := make([]*paper.Candidate, 0, len(candidates))
	for _, c := range candidates {
		res := e.classifier.Classify(paper.Normalize(c.Text()))
		c.Scores.Domain = string(res.Domain)
		c.Scores.Aspects = res.Aspects
		if !e.classifier.Allowed(res.Domain) {
			continue
		}

		if c.Scores.ThemeFit == 0 {
			c.Scores.ThemeFit = e.themes.Score(c.Text(), c.CitationCount, c.Year).Composite
		}
		if opts.MinThemeFit > 0 && c.Scores.ThemeFit < opts.MinThemeFit {
			continue
		}
		if opts.MinThreshold > 0 && c.Scores.Combined < opts.MinThreshold {
			continue
		}
		out = append(out, c)
	}

	dropped := len(candidates) - len(out)
	if dropped > 0 {
		e.logger.Debug(ctx, "complete tier filtered candidates", zap.Int("dropped", dropped))
	}
	for i, c := range out {
		c.Scores.Rank = i + 1
	}
	return out
}

// refineLimit bounds the refined tier's candidate slice.
func (e *Engine) refineLimit(total int) int {
	limit := e.cfg.Ranking.RefineLimit
	if limit <= 0 || limit > total {
		return total
	}
	return limit
}

// topByLexical returns the n lexically best candidates without reordering
// the caller's slice.
func topByLexical(candidates []*paper.Candidate, n int) []*paper.Candidate {
	ranked := make([]*paper.Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Scores.Lexical > ranked[j].Scores.Lexical
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
