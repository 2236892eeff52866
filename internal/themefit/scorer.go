// Package themefit computes a composite suitability score estimating how
// well a candidate supports downstream theme building.
//
// Four independent sub-scores in [0,1] are combined into a weighted
// composite: controversy potential, statement clarity, perspective
// diversity, and citation-based controversy. The composite is advisory
// metadata on each candidate; it only filters when a caller opts in to a
// minimum threshold.
package themefit

import (
	"strings"
	"time"
)

// Weights holds the sub-score weighting. Normalized at use so they need not
// sum to 1.
type Weights struct {
	Clarity     float64
	Controversy float64
	Diversity   float64
	Citation    float64
}

// DefaultWeights weights clarity and controversy most heavily.
func DefaultWeights() Weights {
	return Weights{Clarity: 0.3, Controversy: 0.3, Diversity: 0.2, Citation: 0.2}
}

// Result carries the four sub-scores and their weighted composite, all in [0,1].
type Result struct {
	Controversy         float64
	Clarity             float64
	Diversity           float64
	CitationControversy float64
	Composite           float64
}

// controversyCues signal debate or contrast language.
var controversyCues = []string{
	"however", "contrary", "dispute", "debate", "challenge", "contradict",
	"versus", "in contrast", "disagree", "criticiz", "contested", "refute",
	"controvers", "conflicting",
}

// clarityCues signal well-formed, quotable assertions.
var clarityCues = []string{
	"we show", "we demonstrate", "we find", "we prove", "results indicate",
	"evidence suggests", "we conclude", "this implies", "demonstrates that",
	"shows that", "findings reveal",
}

// diversityCues signal the presence of multiple viewpoints.
var diversityCues = []string{
	"some argue", "others", "alternatively", "on the other hand",
	"proponents", "critics", "one view", "another perspective",
	"competing", "both sides", "multiple perspectives",
}

// Scorer computes theme-fit scores with configurable weights.
type Scorer struct {
	weights Weights
	now     func() time.Time
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithClock overrides the clock used for citation velocity. Tests use this
// to pin "years since publication".
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// NewScorer creates a theme-fit scorer. Zero-valued weights fall back to
// DefaultWeights.
func NewScorer(w Weights, opts ...Option) *Scorer {
	if w.Clarity == 0 && w.Controversy == 0 && w.Diversity == 0 && w.Citation == 0 {
		w = DefaultWeights()
	}
	s := &Scorer{weights: w, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes the four sub-scores and composite for the candidate's
// text and citation record. Empty text yields all zeros.
func (s *Scorer) Score(text string, citationCount, year int) Result {
	lower := strings.ToLower(text)

	res := Result{
		Controversy:         cueScore(lower, controversyCues, 3),
		Clarity:             cueScore(lower, clarityCues, 2),
		Diversity:           cueScore(lower, diversityCues, 2),
		CitationControversy: s.citationVelocityScore(citationCount, year),
	}

	total := s.weights.Clarity + s.weights.Controversy + s.weights.Diversity + s.weights.Citation
	res.Composite = (s.weights.Clarity*res.Clarity +
		s.weights.Controversy*res.Controversy +
		s.weights.Diversity*res.Diversity +
		s.weights.Citation*res.CitationControversy) / total

	return res
}

// cueScore counts distinct cue hits and saturates at `saturation` hits.
func cueScore(lower string, cues []string, saturation int) float64 {
	if lower == "" {
		return 0
	}
	hits := 0
	for _, cue := range cues {
		if strings.Contains(lower, cue) {
			hits++
		}
	}
	score := float64(hits) / float64(saturation)
	if score > 1 {
		return 1
	}
	return score
}

// citationVelocityScore uses citations per year since publication as a proxy
// for ongoing debate, squashed into [0,1). About 20 citations/year maps to
// 0.5.
func (s *Scorer) citationVelocityScore(citationCount, year int) float64 {
	if citationCount <= 0 || year <= 0 {
		return 0
	}
	age := s.now().Year() - year
	if age < 1 {
		age = 1
	}
	velocity := float64(citationCount) / float64(age)
	return velocity / (velocity + 20)
}
