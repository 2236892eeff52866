package paper

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Identity resolves the candidate's stable identity used for cache keys.
//
// Resolution priority:
//  1. DOI, persistent across sources and sessions.
//  2. Normalized title + first author + year, which survives metadata gaps
//     between sources that report the same work differently.
//  3. InternalID from the retrieval layer.
//  4. A generated opaque ID. Cache-ineffective, but safe: repeated requests
//     for the same metadata-free candidate simply miss the cache.
//
// The result is memoized so the generated-ID fallback stays stable for one
// candidate within a request.
func (c *Candidate) Identity() string {
	if c.identity != "" {
		return c.identity
	}
	switch {
	case c.DOI != "":
		c.identity = "doi:" + strings.ToLower(strings.TrimSpace(c.DOI))
	case c.Title != "":
		c.identity = contentKey(c.Title, c.FirstAuthor(), c.Year)
	case c.InternalID != "":
		c.identity = "int:" + c.InternalID
	default:
		c.identity = "anon:" + uuid.NewString()
	}
	return c.identity
}

// contentKey derives an identity from normalized metadata.
func contentKey(title, author string, year int) string {
	return fmt.Sprintf("key:%s|%s|%d", Normalize(title), Normalize(author), year)
}

// Normalize lowercases text, strips everything but letters, digits and
// spaces, and collapses runs of whitespace. Used both for identity keys and
// for classifier input.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}
