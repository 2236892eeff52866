// Package classify assigns a primary subject domain and salient aspect terms
// to candidate text using precomputed keyword allow-lists.
//
// Classification is rule-based and pure. Candidates whose primary domain
// falls outside the allow-list are filtered out of ranked sets downstream,
// independent of relevance score.
package classify

import (
	"sort"
	"strings"
)

// Domain is a primary subject-area label from the closed allow-list.
type Domain string

const (
	DomainComputerScience Domain = "computer_science"
	DomainBiology         Domain = "biology"
	DomainMedicine        Domain = "medicine"
	DomainPhysics         Domain = "physics"
	DomainChemistry       Domain = "chemistry"
	DomainEnvironment     Domain = "environment"
	DomainSocialScience   Domain = "social_science"
	DomainEconomics       Domain = "economics"
	DomainPsychology      Domain = "psychology"
	DomainEngineering     Domain = "engineering"
	DomainMathematics     Domain = "mathematics"

	// DomainUnknown marks text matching no allow-listed domain. Unknown
	// candidates are removed by the domain filter.
	DomainUnknown Domain = "unknown"
)

// domainKeywords maps each allow-listed domain to its cue terms. Lookups at
// classification time are O(1) set-membership tests against the inverted
// index built in NewClassifier.
var domainKeywords = map[Domain][]string{
	DomainComputerScience: {"algorithm", "neural", "computing", "software", "machine", "learning", "network", "data", "model", "compiler", "database", "retrieval"},
	DomainBiology:         {"gene", "protein", "cell", "genome", "evolution", "species", "organism", "dna", "rna", "enzyme"},
	DomainMedicine:        {"patient", "clinical", "disease", "treatment", "therapy", "diagnosis", "drug", "trial", "symptom", "vaccine"},
	DomainPhysics:         {"quantum", "particle", "relativity", "photon", "plasma", "cosmology", "electron", "boson"},
	DomainChemistry:       {"molecule", "catalyst", "polymer", "reaction", "synthesis", "compound", "solvent"},
	DomainEnvironment:     {"climate", "emission", "ecosystem", "biodiversity", "warming", "pollution", "sustainability", "carbon"},
	DomainSocialScience:   {"society", "social", "policy", "inequality", "demographic", "survey", "ethnographic"},
	DomainEconomics:       {"market", "economic", "inflation", "labor", "trade", "monetary", "fiscal", "investment"},
	DomainPsychology:      {"cognitive", "behavior", "perception", "memory", "emotion", "psychological", "mental"},
	DomainEngineering:     {"design", "manufacturing", "mechanical", "electrical", "structural", "robotics", "sensor"},
	DomainMathematics:     {"theorem", "proof", "topology", "algebra", "geometry", "stochastic", "combinatorial"},
}

// aspectMarkers are patterns whose presence tags a candidate with a salient
// aspect; aspects feed downstream theming, not filtering.
var aspectMarkers = map[string]string{
	"survey":        "survey",
	"review":        "survey",
	"meta-analysis": "meta_analysis",
	"benchmark":     "benchmark",
	"dataset":       "dataset",
	"replication":   "replication",
	"randomized":    "randomized_trial",
	"longitudinal":  "longitudinal",
	"case study":    "case_study",
	"open source":   "open_source",
	"theoretical":   "theory",
	"empirical":     "empirical",
}

// Result is a classification outcome.
type Result struct {
	Domain  Domain
	Aspects []string
}

// Classifier classifies normalized text against precomputed allow-lists.
type Classifier struct {
	// keywordDomain inverts domainKeywords for O(1) per-token lookup.
	keywordDomain map[string]Domain
	allowed       map[Domain]struct{}
}

// NewClassifier builds a classifier. If allowedDomains is empty, the full
// allow-list is used.
func NewClassifier(allowedDomains []Domain) *Classifier {
	c := &Classifier{
		keywordDomain: make(map[string]Domain),
		allowed:       make(map[Domain]struct{}),
	}
	for domain, words := range domainKeywords {
		for _, w := range words {
			c.keywordDomain[w] = domain
		}
	}
	if len(allowedDomains) == 0 {
		for domain := range domainKeywords {
			c.allowed[domain] = struct{}{}
		}
	} else {
		for _, d := range allowedDomains {
			c.allowed[d] = struct{}{}
		}
	}
	return c
}

// Classify returns the primary domain (most cue-term hits) and extracted
// aspects for the given normalized text. Empty text yields DomainUnknown.
func (c *Classifier) Classify(normalized string) Result {
	hits := make(map[Domain]int)
	for _, token := range strings.Fields(normalized) {
		if domain, ok := c.keywordDomain[token]; ok {
			hits[domain]++
		}
	}

	primary := DomainUnknown
	best := 0
	for domain, n := range hits {
		if n > best || (n == best && primary != DomainUnknown && domain < primary) {
			primary = domain
			best = n
		}
	}

	var aspects []string
	seen := make(map[string]struct{})
	for marker, aspect := range aspectMarkers {
		if strings.Contains(normalized, marker) {
			if _, dup := seen[aspect]; !dup {
				seen[aspect] = struct{}{}
				aspects = append(aspects, aspect)
			}
		}
	}

	sort.Strings(aspects)
	return Result{Domain: primary, Aspects: aspects}
}

// Allowed reports whether the domain passes the allow-list filter.
// DomainUnknown is never allowed.
func (c *Classifier) Allowed(d Domain) bool {
	_, ok := c.allowed[d]
	return ok
}
