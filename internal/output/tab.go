// Package output provides resolution result formatters.
package output

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/inodb/cxg-query/internal/genes"
)

// Format names accepted by NewMatchWriter.
const (
	FormatTab  = "tab"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// MatchWriter renders resolution results.
type MatchWriter interface {
	WriteHeader() error
	Write(m genes.Match) error
	Flush() error
}

// NewMatchWriter returns the writer for format.
func NewMatchWriter(w io.Writer, format string) (MatchWriter, error) {
	switch format {
	case FormatTab, "":
		return NewTabWriter(w), nil
	case FormatJSON:
		return NewJSONWriter(w), nil
	case FormatYAML:
		return NewYAMLWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (use tab, json or yaml)", format)
	}
}

// WriteAll writes the header, every match and flushes.
func WriteAll(mw MatchWriter, matches []genes.Match) error {
	if err := mw.WriteHeader(); err != nil {
		return err
	}
	for _, m := range matches {
		if err := mw.Write(m); err != nil {
			return err
		}
	}
	return mw.Flush()
}

// TabWriter writes matches in tab-delimited format.
type TabWriter struct {
	w       *bufio.Writer
	columns []string
}

// NewTabWriter creates a new tab-delimited writer.
func NewTabWriter(w io.Writer) *TabWriter {
	return &TabWriter{
		w: bufio.NewWriter(w),
		columns: []string{
			"#Query",
			"Ensembl_ID",
			"Canonical_name",
			"Ambiguous",
			"Feature_type",
		},
	}
}

// WriteHeader writes the header line.
func (tw *TabWriter) WriteHeader() error {
	_, err := tw.w.WriteString(strings.Join(tw.columns, "\t") + "\n")
	return err
}

// Write writes a single match. Multi-valued columns are comma-joined and
// empty values are written as "-".
func (tw *TabWriter) Write(m genes.Match) error {
	ambiguous := "-"
	if m.Ambiguous {
		ambiguous = "YES"
	}

	values := []string{
		orDash(m.Query),
		orDash(strings.Join(m.EnsemblIDs, ",")),
		orDash(m.CanonicalName),
		ambiguous,
		orDash(strings.Join(m.FeatureTypes, ",")),
	}

	_, err := tw.w.WriteString(strings.Join(values, "\t") + "\n")
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (tw *TabWriter) Flush() error {
	return tw.w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
