// Package paper defines the candidate and query data model shared by the
// ranking pipeline.
//
// Candidates arrive from an external retrieval collaborator and live for one
// request. Each pipeline stage annotates the candidate's Scores record in
// place; nothing here is safe for concurrent mutation of the same candidate.
package paper

import "strings"

// Candidate is a document under consideration for ranking.
type Candidate struct {
	// DOI is the persistent document identifier, if known.
	DOI string `json:"doi,omitempty"`
	// InternalID is an opaque identifier assigned by the retrieval layer.
	InternalID string `json:"internal_id,omitempty"`

	Title    string   `json:"title"`
	Abstract string   `json:"abstract,omitempty"`
	Authors  []string `json:"authors,omitempty"`
	Year     int      `json:"year,omitempty"`
	Venue    string   `json:"venue,omitempty"`
	// CitationCount is the total citations reported by the source.
	CitationCount int `json:"citation_count,omitempty"`

	// Scores is the mutable scoring record filled in by pipeline stages.
	Scores Scores `json:"scores"`

	// identity memoizes Identity() so cache keys stay stable even when an
	// opaque fallback ID had to be generated.
	identity string
}

// Scores is the per-request scoring record attached to a candidate.
type Scores struct {
	Lexical  float64 `json:"lexical"`
	Semantic float64 `json:"semantic"`
	// SemanticValid distinguishes "similarity is 0" from "never computed".
	SemanticValid bool `json:"semantic_valid"`

	Domain  string   `json:"domain,omitempty"`
	Aspects []string `json:"aspects,omitempty"`

	ThemeFit float64 `json:"theme_fit"`

	Combined float64 `json:"combined"`
	Rank     int     `json:"rank"`
}

// Text returns the candidate's scorable text: title plus abstract.
func (c *Candidate) Text() string {
	if c.Abstract == "" {
		return c.Title
	}
	return c.Title + ". " + c.Abstract
}

// FirstAuthor returns the first listed author, or "".
func (c *Candidate) FirstAuthor() string {
	if len(c.Authors) == 0 {
		return ""
	}
	return c.Authors[0]
}

// QueryComplexity classifies a query as narrow or broad. Broad queries are
// the ones most likely to exhaust the strict semantic tier.
type QueryComplexity string

const (
	QueryNarrow QueryComplexity = "narrow"
	QueryBroad  QueryComplexity = "broad"
)

// Query is a free-text ranking request with derived metadata.
type Query struct {
	Text       string
	Complexity QueryComplexity

	// Embedding is computed at most once per request; nil until set.
	Embedding []float32
}

// NewQuery builds a Query with its complexity classification.
//
// A query is narrow when it carries a quoted phrase or at least four
// distinct terms; everything else is broad.
func NewQuery(text string) *Query {
	return &Query{
		Text:       text,
		Complexity: classifyComplexity(text),
	}
}

func classifyComplexity(text string) QueryComplexity {
	if strings.Contains(text, `"`) {
		return QueryNarrow
	}
	distinct := map[string]struct{}{}
	for _, f := range strings.Fields(strings.ToLower(text)) {
		distinct[f] = struct{}{}
	}
	if len(distinct) >= 4 {
		return QueryNarrow
	}
	return QueryBroad
}
