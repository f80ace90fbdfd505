package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/cxg-query/internal/cache"
	"github.com/inodb/cxg-query/internal/census"
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [flags] <var.tsv>",
		Short: "Load a var table into the DuckDB census database",
		Long: `Load a var table exported as TSV into the DuckDB database at source.path.

The TSV header must contain feature_id, feature_name and feature_type; other
columns are ignored. Rows already stored for the same census version and
organism are replaced, and the cached gene dictionary for that pair is
removed.`,
		Example: `  cxg-query import --census-version 2025-01-30 --organism homo_sapiens var.tsv
  cxg-query import --source-path /data/census.duckdb --census-version 2025-01-30 mouse_var.tsv`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			version := viper.GetString("census.version")
			organism := census.Organism(viper.GetString("census.organism"))
			if version == "" || version == census.LatestVersion {
				return &usageError{err: fmt.Errorf("--census-version must name a concrete census version")}
			}

			features, err := census.LoadFeatureTSV(args[0])
			if err != nil {
				return err
			}

			db, err := openDuckDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Import(cmd.Context(), version, organism, features); err != nil {
				return fmt.Errorf("importing %s: %w", args[0], err)
			}
			logger.Info("imported var table",
				zap.String("version", version),
				zap.String("organism", organism),
				zap.Int("features", len(features)))

			files := cache.NewDictionaryFiles(expandHome(viper.GetString("cache.dir")))
			for _, v := range []string{version, census.LatestVersion} {
				if err := files.Clear(v, organism); err != nil {
					logger.Warn("could not clear gene dict cache", zap.String("version", v), zap.Error(err))
				}
			}
			return nil
		},
	}
	return cmd
}

func newTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List var tables stored in the DuckDB census database",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDuckDB()
			if err != nil {
				return err
			}
			defer db.Close()

			tables, err := db.Tables(cmd.Context())
			if err != nil {
				return err
			}
			if len(tables) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "# No var tables imported.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tORGANISM\tFEATURES")
			for _, t := range tables {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", t.Version, t.Organism, t.Features)
			}
			return tw.Flush()
		},
	}
}
