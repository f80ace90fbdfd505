package genes

import "strings"

// ProteinCoding is the feature type preferred by PreferProteinCoding.
const ProteinCoding = "protein_coding"

// Candidate is one of several Ensembl IDs sharing a gene symbol.
type Candidate struct {
	ID          string
	FeatureType string
}

// Disambiguator picks a single winner among candidates that share a symbol.
// Candidates are in source order. It returns false when no single
// candidate can be chosen.
type Disambiguator interface {
	Disambiguate(candidates []Candidate) (Candidate, bool)
}

// DisambiguatorFunc adapts a function to the Disambiguator interface.
type DisambiguatorFunc func([]Candidate) (Candidate, bool)

func (f DisambiguatorFunc) Disambiguate(c []Candidate) (Candidate, bool) { return f(c) }

// NoDisambiguation never picks a winner, so every multi-ID symbol is
// reported as ambiguous.
var NoDisambiguation Disambiguator = DisambiguatorFunc(func([]Candidate) (Candidate, bool) {
	return Candidate{}, false
})

// PreferProteinCoding picks the candidate whose feature type is exactly
// protein_coding, if there is exactly one.
var PreferProteinCoding Disambiguator = DisambiguatorFunc(func(c []Candidate) (Candidate, bool) {
	return single(c, func(x Candidate) bool { return x.FeatureType == ProteinCoding })
})

// PreferIDPrefix picks the single candidate whose ID starts with prefix,
// e.g. "ENSG" to prefer primary-assembly human IDs.
func PreferIDPrefix(prefix string) Disambiguator {
	prefix = strings.ToUpper(prefix)
	return DisambiguatorFunc(func(c []Candidate) (Candidate, bool) {
		return single(c, func(x Candidate) bool { return strings.HasPrefix(strings.ToUpper(x.ID), prefix) })
	})
}

// FirstOf tries each policy in order and returns the first winner.
func FirstOf(policies ...Disambiguator) Disambiguator {
	return DisambiguatorFunc(func(c []Candidate) (Candidate, bool) {
		for _, p := range policies {
			if p == nil {
				continue
			}
			if w, ok := p.Disambiguate(c); ok {
				return w, true
			}
		}
		return Candidate{}, false
	})
}

// single returns the only candidate matching keep.
func single(c []Candidate, keep func(Candidate) bool) (Candidate, bool) {
	var (
		winner Candidate
		n      int
	)
	for _, x := range c {
		if keep(x) {
			winner = x
			n++
		}
	}
	if n != 1 {
		return Candidate{}, false
	}
	return winner, true
}
