package ranking

import (
	"time"

	"github.com/fyrsmithlabs/rankd/internal/paper"
	"github.com/fyrsmithlabs/rankd/internal/reranker"
)

// TierLabel names one emission of the progressive stream.
type TierLabel string

const (
	// TierImmediate is the sub-second lexical-only ranking.
	TierImmediate TierLabel = "immediate"

	// TierRefined applies neural reranking to the lexically best slice.
	TierRefined TierLabel = "refined"

	// TierComplete is the full cascade over all candidates, with domain
	// filtering and theme-fit annotation applied. Always the last emission.
	TierComplete TierLabel = "complete"
)

// TierResult is one immutable snapshot of the progressive ranking stream.
//
// Versions are strictly increasing within a request. A consumer must
// discard any TierResult whose version is not greater than the last one it
// accepted; later emissions refine but never retract earlier ones.
type TierResult struct {
	Tier    TierLabel `json:"tier"`
	Version uint64    `json:"version"`

	// Candidates are value snapshots: later pipeline stages mutating the
	// underlying candidates cannot alter an emission already delivered.
	Candidates []paper.Candidate `json:"candidates"`

	// Elapsed is latency from request start to this emission.
	Elapsed time.Duration `json:"elapsed"`

	// Complete marks the terminal emission of the stream.
	Complete bool `json:"complete"`

	Provenance reranker.Provenance `json:"provenance"`
}

func snapshot(candidates []*paper.Candidate) []paper.Candidate {
	out := make([]paper.Candidate, len(candidates))
	for i, c := range candidates {
		out[i] = *c
	}
	return out
}
