package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inodb/cxg-query/internal/cache"
	"github.com/inodb/cxg-query/internal/census"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the gene dictionary cache",
		Long:  "Gene dictionaries are cached per census version and organism in cache.dir (default ~/.cxg-query/cache).",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  requireSubcommand,
	}
	cmd.AddCommand(newCacheListCmd())
	cmd.AddCommand(newCacheClearCmd())
	return cmd
}

func cacheFiles() *cache.DictionaryFiles {
	return cache.NewDictionaryFiles(expandHome(viper.GetString("cache.dir")))
}

func newCacheListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached gene dictionaries",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := cacheFiles()
			entries, err := files.List()
			if err != nil {
				return fmt.Errorf("listing cache: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "# No cached gene dictionaries in %s\n", files.Dir())
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tORGANISM\tFEATURES\tSIZE\tCREATED\tFILE")
			for _, e := range entries {
				created := "-"
				if !e.CreatedAt.IsZero() {
					created = e.CreatedAt.Local().Format("2006-01-02 15:04")
				}
				version := orUnknown(e.Version)
				if !e.Current() {
					version += " (stale)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
					version, orUnknown(e.Organism), e.Features, formatSize(e.Size), created, filepath.Base(e.Path))
			}
			return tw.Flush()
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached gene dictionaries",
		Long:  "Remove the cached dictionary for the configured census version and organism, or every cached dictionary with --all.",
		Example: `  cxg-query cache clear --organism mus_musculus
  cxg-query cache clear --all`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := cacheFiles()
			out := cmd.OutOrStdout()
			if all {
				n, err := files.ClearAll()
				if err != nil {
					return fmt.Errorf("clearing cache: %w", err)
				}
				fmt.Fprintf(out, "Removed %d cached gene dictionaries from %s\n", n, files.Dir())
				return nil
			}

			version := viper.GetString("census.version")
			organism := census.Organism(viper.GetString("census.organism"))
			if err := files.Clear(version, organism); err != nil {
				return fmt.Errorf("clearing cache: %w", err)
			}
			fmt.Fprintf(out, "Removed cached gene dictionary for %s %s\n", organism, version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Remove every cached dictionary")
	return cmd
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
