package genes

import (
	"fmt"
	"sort"
	"strings"
)

// BuildIdentifierFilter builds a var_value_filter expression such as
//
//	feature_id in ['ENSG00000012048', 'ENSG00000141510']
//
// IDs are deduplicated and sorted. An empty input yields "", which callers
// must treat as "no filter clause".
func BuildIdentifierFilter(ids []string) string {
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	if len(unique) == 0 {
		return ""
	}
	sort.Strings(unique)

	quoted := make([]string, len(unique))
	for i, id := range unique {
		quoted[i] = "'" + id + "'"
	}
	return "feature_id in [" + strings.Join(quoted, ", ") + "]"
}

// AmbiguityMode controls how CollectIDs treats ambiguous matches.
type AmbiguityMode string

const (
	AmbiguousInclude AmbiguityMode = "include" // keep every candidate ID
	AmbiguousSkip    AmbiguityMode = "skip"    // drop ambiguous matches
	AmbiguousReject  AmbiguityMode = "reject"  // fail with *AmbiguousError
)

// ParseAmbiguityMode parses a mode name; the empty string means include.
func ParseAmbiguityMode(s string) (AmbiguityMode, error) {
	switch m := AmbiguityMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return AmbiguousInclude, nil
	case AmbiguousInclude, AmbiguousSkip, AmbiguousReject:
		return m, nil
	}
	return "", fmt.Errorf("unknown ambiguity mode %q (want include, skip or reject)", s)
}

// AmbiguousError lists the queries that resolved to more than one ID.
type AmbiguousError struct {
	Matches []Match
}

func (e *AmbiguousError) Error() string {
	parts := make([]string, len(e.Matches))
	for i, m := range e.Matches {
		parts[i] = fmt.Sprintf("%s -> [%s]", m.Query, strings.Join(m.EnsemblIDs, ", "))
	}
	return "ambiguous gene names: " + strings.Join(parts, "; ")
}

// CollectIDs flattens the IDs of matches, in match order.
func CollectIDs(matches []Match, mode AmbiguityMode) ([]string, error) {
	var (
		ids       []string
		ambiguous []Match
	)
	for _, m := range matches {
		if m.Ambiguous {
			switch mode {
			case AmbiguousSkip:
				continue
			case AmbiguousReject:
				ambiguous = append(ambiguous, m)
				continue
			}
		}
		ids = append(ids, m.EnsemblIDs...)
	}
	if len(ambiguous) > 0 {
		return nil, &AmbiguousError{Matches: ambiguous}
	}
	return ids, nil
}

// Filters pairs an obs_value_filter (cell metadata, usually the output of
// the ontology enhancer) with a var_value_filter (genes).
type Filters struct {
	Obs string `json:"obs_value_filter,omitempty" yaml:"obs_value_filter,omitempty"`
	Var string `json:"var_value_filter,omitempty" yaml:"var_value_filter,omitempty"`
}

// NewFilters combines an obs filter with a var filter built from ids.
func NewFilters(obs string, ids []string) Filters {
	return Filters{Obs: strings.TrimSpace(obs), Var: BuildIdentifierFilter(ids)}
}

// Empty returns true if neither clause is set.
func (f Filters) Empty() bool {
	return f.Obs == "" && f.Var == ""
}
