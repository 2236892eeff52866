package paper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityPriorityOrder(t *testing.T) {
	tests := []struct {
		name       string
		candidate  Candidate
		wantPrefix string
	}{
		{
			name: "doi wins over everything",
			candidate: Candidate{
				DOI:        "10.1000/xyz123",
				InternalID: "abc",
				Title:      "Some Paper",
			},
			wantPrefix: "doi:10.1000/xyz123",
		},
		{
			name: "content key when doi missing",
			candidate: Candidate{
				InternalID: "abc",
				Title:      "Deep Learning for Ranking",
				Authors:    []string{"Ada Lovelace", "Alan Turing"},
				Year:       2021,
			},
			wantPrefix: "key:deep learning for ranking|ada lovelace|2021",
		},
		{
			name:       "internal id when no doi or title",
			candidate:  Candidate{InternalID: "abc"},
			wantPrefix: "int:abc",
		},
		{
			name:       "opaque fallback when nothing is known",
			candidate:  Candidate{},
			wantPrefix: "anon:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.candidate.Identity()
			assert.True(t, strings.HasPrefix(got, tt.wantPrefix), "got %q", got)
		})
	}
}

func TestIdentityIsStableAcrossCalls(t *testing.T) {
	c := Candidate{} // forces the generated-ID path
	first := c.Identity()
	second := c.Identity()
	require.Equal(t, first, second)
}

func TestIdentitySurvivesMetadataDifferences(t *testing.T) {
	a := Candidate{Title: "Attention Is All You Need!", Authors: []string{"A. Vaswani"}, Year: 2017}
	b := Candidate{Title: "attention is all you need", Authors: []string{"a vaswani"}, Year: 2017}
	assert.Equal(t, a.Identity(), b.Identity())
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello, World!", "hello world"},
		{"  spaced   out  ", "spaced out"},
		{"UPPER-case_mix 42", "upper case mix 42"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "input %q", tt.in)
	}
}

func TestNewQueryComplexity(t *testing.T) {
	assert.Equal(t, QueryBroad, NewQuery("machine learning").Complexity)
	assert.Equal(t, QueryNarrow, NewQuery("sparse mixture of experts routing").Complexity)
	assert.Equal(t, QueryNarrow, NewQuery(`"exact phrase"`).Complexity)
}

func TestCandidateText(t *testing.T) {
	c := Candidate{Title: "T", Abstract: "A"}
	assert.Equal(t, "T. A", c.Text())
	c.Abstract = ""
	assert.Equal(t, "T", c.Text())
}
