package census

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/inodb/cxg-query/internal/genes"
)

// LoadFeatureTSV reads a var table from a TSV file.
func LoadFeatureTSV(path string) ([]genes.Feature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open var table: %w", err)
	}
	defer f.Close()

	return ReadFeatureTSV(f)
}

// ReadFeatureTSV reads a var table exported as TSV. The header must name
// the feature_id, feature_name and feature_type columns, in any order;
// other columns (soma_joinid, feature_length, ...) are ignored.
func ReadFeatureTSV(r io.Reader) ([]genes.Feature, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read var table: %w", err)
		}
		return nil, fmt.Errorf("var table: empty file")
	}
	header := strings.Split(strings.TrimRight(scanner.Text(), "\r"), "\t")

	idIdx, nameIdx, typeIdx := -1, -1, -1
	for i, col := range header {
		switch strings.TrimSpace(col) {
		case ColumnFeatureID:
			idIdx = i
		case ColumnFeatureName:
			nameIdx = i
		case ColumnFeatureType:
			typeIdx = i
		}
	}
	if idIdx < 0 {
		return nil, fmt.Errorf("var table: missing %q column", ColumnFeatureID)
	}
	if nameIdx < 0 {
		return nil, fmt.Errorf("var table: missing %q column", ColumnFeatureName)
	}
	if typeIdx < 0 {
		return nil, fmt.Errorf("var table: missing %q column", ColumnFeatureType)
	}
	width := max(idIdx, nameIdx, typeIdx) + 1

	var features []genes.Feature
	line := 1
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < width {
			return nil, fmt.Errorf("var table line %d: expected at least %d columns, got %d", line, width, len(fields))
		}
		id := strings.TrimSpace(fields[idIdx])
		if id == "" {
			continue
		}
		features = append(features, genes.Feature{
			ID:   id,
			Name: strings.TrimSpace(fields[nameIdx]),
			Type: strings.TrimSpace(fields[typeIdx]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading var table: %w", err)
	}

	return features, nil
}
