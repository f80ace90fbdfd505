// Package genes resolves gene symbols and Ensembl IDs against census
// feature tables and builds var value filters from the results.
package genes

import (
	"errors"
	"fmt"
	"strings"
)

// Feature is one row of a census var (feature) table.
type Feature struct {
	ID   string // feature_id, e.g. ENSG00000141510
	Name string // feature_name, e.g. TP53
	Type string // feature_type, e.g. protein_coding
}

// ErrOrganismNotFound is returned by a FeatureSource when the census has no
// feature table for the requested organism.
var ErrOrganismNotFound = errors.New("organism not found in census")

// ErrVersionNotFound is returned by a FeatureSource that has the organism
// but not the requested census version.
var ErrVersionNotFound = errors.New("census version not found")

// FetchError reports a failure to acquire the feature table for a
// (version, organism) pair from a FeatureSource.
type FetchError struct {
	Version  string
	Organism string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch gene table %s/%s: %v", e.Version, e.Organism, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Dictionary is a bidirectional mapping between gene symbols and Ensembl IDs
// built from a census var table. It is not modified after construction.
type Dictionary struct {
	NameToIDs       map[string][]string // uppercased symbol -> IDs in source order
	IDToName        map[string]string
	IDToFeatureType map[string]string
}

// NewDictionary returns an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{
		NameToIDs:       make(map[string][]string),
		IDToName:        make(map[string]string),
		IDToFeatureType: make(map[string]string),
	}
}

// BuildDictionary builds a dictionary from feature rows, in row order.
func BuildDictionary(features []Feature) *Dictionary {
	d := NewDictionary()
	for _, f := range features {
		d.add(f)
	}
	return d
}

func (d *Dictionary) add(f Feature) {
	key := strings.ToUpper(f.Name)
	d.NameToIDs[key] = append(d.NameToIDs[key], f.ID)
	d.IDToName[f.ID] = f.Name
	d.IDToFeatureType[f.ID] = f.Type
}

// Empty reports whether the dictionary holds no genes.
func (d *Dictionary) Empty() bool {
	return d == nil || (len(d.NameToIDs) == 0 && len(d.IDToName) == 0 && len(d.IDToFeatureType) == 0)
}

// Len returns the number of distinct Ensembl IDs.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.IDToName)
}

// Validate checks that every ID listed under a symbol has a name and a
// feature type.
func (d *Dictionary) Validate() error {
	for name, ids := range d.NameToIDs {
		for _, id := range ids {
			if _, ok := d.IDToName[id]; !ok {
				return fmt.Errorf("gene %s: id %s has no name", name, id)
			}
			if _, ok := d.IDToFeatureType[id]; !ok {
				return fmt.Errorf("gene %s: id %s has no feature type", name, id)
			}
		}
	}
	return nil
}
