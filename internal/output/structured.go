package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/inodb/cxg-query/internal/genes"
)

// JSONWriter collects matches and writes them as one JSON array on Flush.
type JSONWriter struct {
	w       io.Writer
	matches []genes.Match
	flushed bool
}

// NewJSONWriter creates a JSON writer.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{w: w, matches: []genes.Match{}}
}

// WriteHeader is a no-op.
func (jw *JSONWriter) WriteHeader() error { return nil }

// Write buffers a match.
func (jw *JSONWriter) Write(m genes.Match) error {
	jw.matches = append(jw.matches, normalize(m))
	return nil
}

// Flush writes the buffered matches. Subsequent calls do nothing.
func (jw *JSONWriter) Flush() error {
	if jw.flushed {
		return nil
	}
	jw.flushed = true
	enc := json.NewEncoder(jw.w)
	enc.SetIndent("", "  ")
	return enc.Encode(jw.matches)
}

// YAMLWriter collects matches and writes them as one YAML sequence on Flush.
type YAMLWriter struct {
	w       io.Writer
	matches []genes.Match
	flushed bool
}

// NewYAMLWriter creates a YAML writer.
func NewYAMLWriter(w io.Writer) *YAMLWriter {
	return &YAMLWriter{w: w, matches: []genes.Match{}}
}

// WriteHeader is a no-op.
func (yw *YAMLWriter) WriteHeader() error { return nil }

// Write buffers a match.
func (yw *YAMLWriter) Write(m genes.Match) error {
	yw.matches = append(yw.matches, normalize(m))
	return nil
}

// Flush writes the buffered matches. Subsequent calls do nothing.
func (yw *YAMLWriter) Flush() error {
	if yw.flushed {
		return nil
	}
	yw.flushed = true
	enc := yaml.NewEncoder(yw.w)
	enc.SetIndent(2)
	if err := enc.Encode(yw.matches); err != nil {
		return err
	}
	return enc.Close()
}

// normalize replaces nil slices so they render as [] rather than null.
func normalize(m genes.Match) genes.Match {
	if m.EnsemblIDs == nil {
		m.EnsemblIDs = []string{}
	}
	if m.FeatureTypes == nil {
		m.FeatureTypes = []string{}
	}
	return m
}

// WriteFilters renders query filters. The tab format prints one
// "name<TAB>expression" line per non-empty filter.
func WriteFilters(w io.Writer, format string, f genes.Filters) error {
	switch format {
	case FormatTab, "":
		var b strings.Builder
		if f.Obs != "" {
			fmt.Fprintf(&b, "obs_value_filter\t%s\n", f.Obs)
		}
		if f.Var != "" {
			fmt.Fprintf(&b, "var_value_filter\t%s\n", f.Var)
		}
		_, err := io.WriteString(w, b.String())
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(f)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format: %s (use tab, json or yaml)", format)
	}
}
