package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inodb/cxg-query/internal/genes"
	"github.com/inodb/cxg-query/internal/output"
)

func newResolveCmd() *cobra.Command {
	var (
		outputFormat string
		outputFile   string
		inputFile    string
		noPreferPC   bool
		strict       bool
	)

	cmd := &cobra.Command{
		Use:   "resolve [flags] <gene>...",
		Short: "Resolve gene symbols and Ensembl IDs",
		Long: `Resolve gene symbols and Ensembl IDs against the census var table.

Genes may be given as arguments (comma or space separated) or read from a
file with --input, one or more per line ('-' reads stdin). Symbols match
case-insensitively. When a symbol maps to several IDs and exactly one is
protein_coding, that one is chosen.`,
		Example: `  cxg-query resolve TP53 BRCA1
  cxg-query resolve -f json tp53,ENSG00000012048
  cxg-query resolve --organism mus_musculus -i genes.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			queries, err := readQueries(args, inputFile)
			if err != nil {
				return err
			}
			if len(queries) == 0 {
				return &usageError{err: fmt.Errorf("no genes given")}
			}

			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()
			if noPreferPC {
				s.resolver.SetPreferProteinCoding(false)
			}

			matches, err := resolveQueries(cmd, s, queries, strict)
			if err != nil {
				return err
			}
			reportMatches(matches)

			return withOutput(outputFile, func(w io.Writer) error {
				mw, err := output.NewMatchWriter(w, outputFormat)
				if err != nil {
					return &usageError{err: err}
				}
				return output.WriteAll(mw, matches)
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&outputFormat, "output-format", "f", output.FormatTab, "Output format: tab, json, yaml")
	f.StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	f.StringVarP(&inputFile, "input", "i", "", "Read genes from file ('-' for stdin)")
	f.BoolVar(&noPreferPC, "no-prefer-protein-coding", false, "Report every ID for ambiguous symbols")
	f.BoolVar(&strict, "strict", false, "Fail if the gene dictionary cannot be loaded")

	return cmd
}

// resolveQueries resolves against the session's census version and
// organism. In strict mode dictionary acquisition errors are returned.
func resolveQueries(cmd *cobra.Command, s *session, queries []string, strict bool) ([]genes.Match, error) {
	ctx := cmd.Context()
	if !strict {
		return s.resolver.Resolve(ctx, s.version, s.organism, queries), nil
	}
	matches, err := s.resolver.ResolveStrict(ctx, s.version, s.organism, queries)
	if err != nil {
		return nil, fmt.Errorf("loading gene dictionary for %s %s: %w", s.organism, s.version, err)
	}
	return matches, nil
}

// reportMatches logs unresolved and ambiguous queries.
func reportMatches(matches []genes.Match) {
	for _, m := range matches {
		switch {
		case !m.Resolved():
			logger.Warn("gene not found", zap.String("query", m.Query))
		case m.Ambiguous:
			logger.Warn("ambiguous gene name",
				zap.String("query", m.Query),
				zap.Strings("ensembl_ids", m.EnsemblIDs),
				zap.Strings("feature_types", m.FeatureTypes))
		case m.CanonicalName == "" && genes.LooksLikeStableID(m.Query):
			logger.Debug("Ensembl ID not in census, passing through", zap.String("query", m.Query))
		}
	}
}

// readQueries splits args and, if path is set, the lines of that file into
// gene tokens. Commas and whitespace separate tokens.
func readQueries(args []string, path string) ([]string, error) {
	var queries []string
	for _, a := range args {
		queries = append(queries, splitQueries(a)...)
	}
	if path == "" {
		return queries, nil
	}

	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening gene list: %w", err)
		}
		defer f.Close()
		r = f
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		queries = append(queries, splitQueries(line)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading gene list: %w", err)
	}
	return queries, nil
}

func splitQueries(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\r' || r == '\n'
	})
}

// withOutput runs write against path, or stdout when path is empty.
func withOutput(path string, write func(io.Writer) error) error {
	if path == "" {
		return write(os.Stdout)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := write(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
