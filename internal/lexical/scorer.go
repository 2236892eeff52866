// Package lexical scores (query, candidate) pairs with a BM25-style
// term-frequency formula over the request's candidate set.
//
// The scorer is a pure function of its inputs once constructed: corpus
// statistics (document frequency, average length) are computed from the
// candidate set handed to NewScorer and never mutated afterwards, so one
// Scorer may be shared by concurrent readers.
package lexical

import (
	"math"
	"strings"
)

// BM25 constants. k1 controls term-frequency saturation, b controls
// document-length normalization.
const (
	k1 = 1.2
	b  = 0.75

	// titleWeight counts a title occurrence as this many body occurrences.
	titleWeight = 3.0

	// phraseBonus is added when the exact query phrase appears in the text.
	phraseBonus = 2.0

	// coverageFloor is the term-coverage ratio below which the multiplicative
	// coveragePenalty applies.
	coverageFloor   = 0.4
	coveragePenalty = 0.5
)

// Doc is a candidate's scorable text split by field.
type Doc struct {
	Title string
	Body  string
}

// Query is a parsed query ready for scoring.
type Query struct {
	Terms  []string
	phrase string
}

// Scorer holds per-request corpus statistics.
type Scorer struct {
	df     map[string]int
	docs   int
	avgLen float64
}

// NewScorer computes corpus statistics over the request's candidate set.
// An empty corpus yields a scorer that scores everything 0.
func NewScorer(docs []Doc) *Scorer {
	s := &Scorer{df: make(map[string]int)}
	totalLen := 0
	for _, d := range docs {
		tokens := docTokens(d)
		totalLen += len(tokens)
		seen := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			s.df[tok]++
		}
	}
	s.docs = len(docs)
	if s.docs > 0 {
		s.avgLen = float64(totalLen) / float64(s.docs)
	}
	return s
}

// ParseQuery tokenizes the query once for reuse across candidates.
func (s *Scorer) ParseQuery(text string) Query {
	return Query{
		Terms:  Tokenize(text),
		phrase: normalizePhrase(text),
	}
}

// Score returns a non-negative relevance score for the document.
// Malformed or empty inputs score 0, never an error.
func (s *Scorer) Score(q Query, d Doc) float64 {
	if len(q.Terms) == 0 || s.docs == 0 {
		return 0
	}

	titleTF := termFrequencies(Tokenize(d.Title))
	bodyTF := termFrequencies(Tokenize(d.Body))
	docLen := float64(tokenCount(titleTF) + tokenCount(bodyTF))
	if docLen == 0 {
		return 0
	}

	score := 0.0
	matched := make(map[string]struct{}, len(q.Terms))
	for _, term := range q.Terms {
		tf := float64(bodyTF[term]) + titleWeight*float64(titleTF[term])
		if tf == 0 {
			continue
		}
		matched[term] = struct{}{}
		score += s.idf(term) * (tf * (k1 + 1)) / (tf + k1*(1-b+b*docLen/s.avgLen))
	}

	// Exact phrase match bonus, title or body.
	if len(q.phrase) > 0 {
		if strings.Contains(normalizePhrase(d.Title), q.phrase) ||
			strings.Contains(normalizePhrase(d.Body), q.phrase) {
			score += phraseBonus
		}
	}

	// Penalize candidates covering too few of the query's distinct terms.
	if coverage(matched, q.Terms) < coverageFloor {
		score *= coveragePenalty
	}

	return score
}

// Coverage returns the fraction of distinct query terms present in the doc.
func (s *Scorer) Coverage(q Query, d Doc) float64 {
	titleTF := termFrequencies(Tokenize(d.Title))
	bodyTF := termFrequencies(Tokenize(d.Body))
	matched := make(map[string]struct{}, len(q.Terms))
	for _, term := range q.Terms {
		if titleTF[term] > 0 || bodyTF[term] > 0 {
			matched[term] = struct{}{}
		}
	}
	return coverage(matched, q.Terms)
}

// idf uses the standard BM25 formulation, floored at zero so very common
// terms cannot produce negative contributions.
func (s *Scorer) idf(term string) float64 {
	df := float64(s.df[term])
	n := float64(s.docs)
	v := math.Log(1 + (n-df+0.5)/(df+0.5))
	if v < 0 {
		return 0
	}
	return v
}

func coverage(matched map[string]struct{}, terms []string) float64 {
	distinct := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		distinct[t] = struct{}{}
	}
	if len(distinct) == 0 {
		return 0
	}
	return float64(len(matched)) / float64(len(distinct))
}

func termFrequencies(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

func tokenCount(tf map[string]int) int {
	n := 0
	for _, c := range tf {
		n += c
	}
	return n
}

func docTokens(d Doc) []string {
	title := Tokenize(d.Title)
	body := Tokenize(d.Body)
	return append(title, body...)
}
