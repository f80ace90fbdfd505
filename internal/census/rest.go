// Package census provides census var (feature) table sources for gene
// resolution.
package census

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/inodb/cxg-query/internal/genes"
)

// Var table column names.
const (
	ColumnFeatureID   = "feature_id"
	ColumnFeatureName = "feature_name"
	ColumnFeatureType = "feature_type"
)

// Organism converts an organism label to the census key, e.g.
// "Homo sapiens" -> "homo_sapiens".
func Organism(organism string) string {
	return strings.ToLower(strings.ReplaceAll(organism, " ", "_"))
}

// RESTSource loads var tables from an HTTP endpoint serving
//
//	GET {baseURL}/{version}/{organism}/var
//
// as a column-oriented JSON object:
//
//	{"feature_id": [...], "feature_name": [...], "feature_type": [...]}
type RESTSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewRESTSource creates a REST source. A zero timeout defaults to 30s.
func NewRESTSource(baseURL string, timeout time.Duration) *RESTSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RESTSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchFeatures fetches the var table for organism. It returns
// genes.ErrOrganismNotFound on HTTP 404.
func (s *RESTSource) FetchFeatures(ctx context.Context, version, organism string) ([]genes.Feature, error) {
	u := fmt.Sprintf("%s/%s/%s/var", s.baseURL, url.PathEscape(version), url.PathEscape(Organism(organism)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("census request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, genes.ErrOrganismNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("census error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var columns map[string][]string
	if err := json.NewDecoder(resp.Body).Decode(&columns); err != nil {
		return nil, fmt.Errorf("decode var table: %w", err)
	}
	return featuresFromColumns(columns)
}

// featuresFromColumns zips the three var columns into rows.
func featuresFromColumns(columns map[string][]string) ([]genes.Feature, error) {
	names := []string{ColumnFeatureID, ColumnFeatureName, ColumnFeatureType}
	for _, name := range names {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("var table: missing %q column", name)
		}
	}

	ids := columns[ColumnFeatureID]
	for _, name := range names[1:] {
		if len(columns[name]) != len(ids) {
			return nil, fmt.Errorf("var table: column %q has %d rows, %q has %d",
				name, len(columns[name]), ColumnFeatureID, len(ids))
		}
	}

	features := make([]genes.Feature, len(ids))
	for i, id := range ids {
		features[i] = genes.Feature{
			ID:   id,
			Name: columns[ColumnFeatureName][i],
			Type: columns[ColumnFeatureType][i],
		}
	}
	return features, nil
}
