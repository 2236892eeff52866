package lexical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corpus() []Doc {
	return []Doc{
		{Title: "Neural ranking models for information retrieval", Body: "We survey neural ranking models and their training objectives."},
		{Title: "BM25 revisited", Body: "Classic term frequency scoring with saturation and length normalization remains competitive."},
		{Title: "Protein folding with deep networks", Body: "Structure prediction using attention over residue pairs."},
		{Title: "Climate impacts on crop yield", Body: "Longitudinal analysis across regions."},
	}
}

func TestScoreRelevantDocOutranksIrrelevant(t *testing.T) {
	docs := corpus()
	s := NewScorer(docs)
	q := s.ParseQuery("neural ranking models")

	relevant := s.Score(q, docs[0])
	irrelevant := s.Score(q, docs[3])
	assert.Greater(t, relevant, irrelevant)
	assert.GreaterOrEqual(t, irrelevant, 0.0)
}

func TestScoreEmptyInputs(t *testing.T) {
	s := NewScorer(corpus())

	assert.Zero(t, s.Score(s.ParseQuery(""), corpus()[0]))
	assert.Zero(t, s.Score(s.ParseQuery("   "), corpus()[0]))
	assert.Zero(t, s.Score(s.ParseQuery("neural ranking"), Doc{}))

	empty := NewScorer(nil)
	assert.Zero(t, empty.Score(empty.ParseQuery("anything"), Doc{Title: "anything"}))
}

func TestTitleOccurrencesWeighHeavier(t *testing.T) {
	docs := []Doc{
		{Title: "quantum computing advances", Body: "filler text about unrelated topics entirely"},
		{Title: "a study of various things", Body: "quantum computing advances slowly"},
		{Title: "background noise", Body: "nothing relevant here at all"},
	}
	s := NewScorer(docs)
	q := s.ParseQuery("quantum computing")

	inTitle := s.Score(q, docs[0])
	inBody := s.Score(q, docs[1])
	assert.Greater(t, inTitle, inBody)
}

func TestExactPhraseBonus(t *testing.T) {
	docs := []Doc{
		{Title: "graph neural networks", Body: "message passing"},
		{Title: "networks neural graph", Body: "message passing"},
	}
	s := NewScorer(docs)
	q := s.ParseQuery("graph neural networks")

	phrase := s.Score(q, docs[0])
	scrambled := s.Score(q, docs[1])
	assert.Greater(t, phrase, scrambled)
	assert.InDelta(t, phraseBonus, phrase-scrambled, 0.0001)
}

func TestLowCoveragepenalized(t *testing.T) {
	docs := []Doc{
		{Title: "transformers attention scaling efficiency benchmarks", Body: "covers all query terms"},
		{Title: "transformers only", Body: "single query term present"},
		{Title: "irrelevant", Body: "padding"},
	}
	s := NewScorer(docs)
	q := s.ParseQuery("transformers attention scaling efficiency benchmarks")

	require.Less(t, s.Coverage(q, docs[1]), 0.4)
	require.GreaterOrEqual(t, s.Coverage(q, docs[0]), 0.4)
	assert.Greater(t, s.Score(q, docs[0]), s.Score(q, docs[1]))
}

// Score must be monotonic non-decreasing in term coverage at constant
// document length.
func TestScoreMonotonicInCoverage(t *testing.T) {
	docs := []Doc{
		{Title: "alpha beta gamma delta", Body: ""},
		{Title: "alpha beta gamma filler1", Body: ""},
		{Title: "alpha beta filler1 filler2", Body: ""},
		{Title: "alpha filler1 filler2 filler3", Body: ""},
		{Title: "filler1 filler2 filler3 filler4", Body: ""},
	}
	s := NewScorer(docs)
	q := s.ParseQuery("alpha beta gamma delta")

	prev := -1.0
	for i := len(docs) - 1; i >= 0; i-- {
		score := s.Score(q, docs[i])
		assert.GreaterOrEqual(t, score, prev, "doc %d", i)
		prev = score
	}
}

func TestTermFrequencySaturation(t *testing.T) {
	docs := []Doc{
		{Body: "echo"},
		{Body: "echo echo echo echo echo echo echo echo"},
		{Body: "noise padding words here"},
	}
	s := NewScorer(docs)
	q := s.ParseQuery("echo")

	once := s.Score(q, docs[0])
	many := s.Score(q, docs[1])
	// Repetition helps, but with diminishing returns: eight occurrences must
	// score less than eight times a single occurrence.
	assert.Greater(t, many, 0.0)
	assert.Less(t, many, once*8)
}

func TestTokenizeFiltersStopwordsAndShortTokens(t *testing.T) {
	tokens := Tokenize("The quick brown fox is at an AI lab")
	assert.NotContains(t, tokens, "the")
	assert.NotContains(t, tokens, "is")
	assert.NotContains(t, tokens, "ai") // below min length
	assert.Contains(t, tokens, "quick")
	assert.Contains(t, tokens, "lab")
}
