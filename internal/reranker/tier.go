package reranker

import "fmt"

// Tier identifies one stage of the fallback cascade. The set is closed:
// every switch over Tier handles all three values, and TierLexicalFallback
// is terminal.
type Tier uint8

const (
	// TierStrict admits only high-confidence semantic matches.
	TierStrict Tier = iota

	// TierRelaxed lowers the similarity cutoff over the same candidate set.
	TierRelaxed

	// TierLexicalFallback abandons semantic filtering and ranks the top-N
	// candidates by lexical score alone. It never returns an empty set when
	// candidates existed at input.
	TierLexicalFallback
)

// String returns the tier label used in logs and provenance.
func (t Tier) String() string {
	switch t {
	case TierStrict:
		return "strict"
	case TierRelaxed:
		return "relaxed"
	case TierLexicalFallback:
		return "lexical_fallback"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}
