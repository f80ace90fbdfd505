package main

import (
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/cxg-query/internal/genes"
	"github.com/inodb/cxg-query/internal/output"
)

func newFilterCmd() *cobra.Command {
	var (
		obs          string
		outputFormat string
		outputFile   string
		inputFile    string
		noPreferPC   bool
		strict       bool
		ambiguous    string
	)

	cmd := &cobra.Command{
		Use:   "filter [flags] <gene>...",
		Short: "Build census value filters for a set of genes",
		Long: `Resolve genes and print the var_value_filter restricting a census query
to their feature IDs, optionally paired with an obs_value_filter.

The var filter has the form feature_id in ['ENSG...', 'ENSG...'] with IDs
deduplicated and sorted. When no gene resolves, the var filter is omitted.

--ambiguous controls symbols that still map to several IDs:
  include  keep every candidate ID (default)
  skip     leave the symbol out
  reject   fail and list the ambiguous symbols`,
		Example: `  cxg-query filter TP53 BRCA1
  cxg-query filter --obs "tissue_general == 'lung'" -f json TP53
  cxg-query filter --ambiguous reject -i genes.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("ambiguous") {
				ambiguous = viper.GetString("resolve.ambiguous")
			}
			mode, err := genes.ParseAmbiguityMode(ambiguous)
			if err != nil {
				return &usageError{err: err}
			}

			queries, err := readQueries(args, inputFile)
			if err != nil {
				return err
			}

			var ids []string
			if len(queries) > 0 {
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

				ids, err = genes.CollectIDs(matches, mode)
				if err != nil {
					return err
				}
			}

			filters := genes.NewFilters(obs, ids)
			if filters.Var == "" && len(queries) > 0 {
				logger.Warn("no gene resolved, var filter omitted", zap.Int("queries", len(queries)))
			}
			return withOutput(outputFile, func(w io.Writer) error {
				return output.WriteFilters(w, outputFormat, filters)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&obs, "obs", "", "obs_value_filter to pass through")
	f.StringVarP(&outputFormat, "output-format", "f", output.FormatTab, "Output format: tab, json, yaml")
	f.StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	f.StringVarP(&inputFile, "input", "i", "", "Read genes from file ('-' for stdin)")
	f.BoolVar(&noPreferPC, "no-prefer-protein-coding", false, "Keep every ID for ambiguous symbols")
	f.BoolVar(&strict, "strict", false, "Fail if the gene dictionary cannot be loaded")
	f.StringVar(&ambiguous, "ambiguous", string(genes.AmbiguousInclude), "Ambiguous symbols: include, skip, reject")

	return cmd
}
