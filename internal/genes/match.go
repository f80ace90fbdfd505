package genes

import (
	"regexp"
	"strings"
)

// Match is the result of resolving a single gene query (symbol or Ensembl ID).
type Match struct {
	Query         string   `json:"query" yaml:"query"`
	EnsemblIDs    []string `json:"ensembl_ids" yaml:"ensembl_ids"`
	CanonicalName string   `json:"canonical_name,omitempty" yaml:"canonical_name,omitempty"` // empty when unresolved
	Ambiguous     bool     `json:"is_ambiguous" yaml:"is_ambiguous"`
	FeatureTypes  []string `json:"feature_types" yaml:"feature_types"`
}

// Resolved returns true if the query mapped to at least one ID.
func (m Match) Resolved() bool {
	return len(m.EnsemblIDs) > 0
}

var ensemblPattern = regexp.MustCompile(`(?i)^ENS[A-Z]*G\d+$`)

// LooksLikeStableID returns true if token has the shape of an Ensembl gene ID
// (ENSG00000141510, ENSMUSG00000051951), ignoring case.
func LooksLikeStableID(token string) bool {
	return ensemblPattern.MatchString(token)
}

// ResolveWith resolves queries against d using policy to pick between
// several IDs sharing a symbol. A nil policy disables disambiguation.
// The result has one Match per query, in input order.
func ResolveWith(d *Dictionary, queries []string, policy Disambiguator) []Match {
	if d == nil {
		d = NewDictionary()
	}
	if policy == nil {
		policy = NoDisambiguation
	}

	results := make([]Match, 0, len(queries))
	for _, raw := range queries {
		results = append(results, resolveOne(d, strings.TrimSpace(raw), policy))
	}
	return results
}

func resolveOne(d *Dictionary, query string, policy Disambiguator) Match {
	// Ensembl IDs pass through, known or not.
	if LooksLikeStableID(query) {
		id := strings.ToUpper(query)
		m := Match{Query: query, EnsemblIDs: []string{id}, FeatureTypes: []string{}}
		if name, ok := d.IDToName[id]; ok {
			m.CanonicalName = name
			if ft := d.IDToFeatureType[id]; ft != "" {
				m.FeatureTypes = []string{ft}
			}
		}
		return m
	}

	ids := d.NameToIDs[strings.ToUpper(query)]
	if len(ids) == 0 {
		return Match{Query: query, EnsemblIDs: []string{}, FeatureTypes: []string{}}
	}

	candidates := make([]Candidate, len(ids))
	ftypes := make([]string, len(ids))
	for i, id := range ids {
		ftypes[i] = d.IDToFeatureType[id]
		candidates[i] = Candidate{ID: id, FeatureType: ftypes[i]}
	}

	if len(ids) == 1 {
		return Match{
			Query:         query,
			EnsemblIDs:    []string{ids[0]},
			CanonicalName: nameOr(d, ids[0], query),
			FeatureTypes:  ftypes,
		}
	}

	if winner, ok := policy.Disambiguate(candidates); ok {
		return Match{
			Query:         query,
			EnsemblIDs:    []string{winner.ID},
			CanonicalName: nameOr(d, winner.ID, query),
			FeatureTypes:  []string{winner.FeatureType},
		}
	}

	return Match{
		Query:         query,
		EnsemblIDs:    append([]string(nil), ids...),
		CanonicalName: nameOr(d, ids[0], query),
		Ambiguous:     true,
		FeatureTypes:  ftypes,
	}
}

func nameOr(d *Dictionary, id, fallback string) string {
	if name, ok := d.IDToName[id]; ok {
		return name
	}
	return fallback
}
