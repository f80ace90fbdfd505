// Package main provides the cxg-query command-line tool.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const configName = ".cxg-query.yaml"

// logger is replaced by the root command before any subcommand runs.
var logger = zap.NewNop()

// usageError marks errors caused by bad flags or arguments.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)

	err := root.Execute()
	logger.Sync() //nolint:errcheck
	if err == nil {
		return ExitSuccess
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	var ue *usageError
	if errors.As(err, &ue) {
		return ExitUsage
	}
	return ExitError
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "cxg-query",
		Short: "Resolve gene names for CELLxGENE census queries",
		Long: `cxg-query - gene resolution for CELLxGENE census queries

Maps gene symbols and Ensembl IDs to census feature IDs and builds the
var_value_filter expression that restricts a census query to those genes.
Gene dictionaries are cached on disk in ~/.cxg-query/cache.`,
		Example: `  # Resolve gene symbols
  cxg-query resolve TP53 BRCA1 ENSG00000012048

  # Build the var filter for a census query
  cxg-query filter --obs "tissue_general == 'lung'" TP53,BRCA1

  # Load an exported var table into a local DuckDB census
  cxg-query import --census-version 2025-01-30 --organism homo_sapiens var.tsv`,
		Version:       fmt.Sprintf("%s (%s) built %s", version, commit, date),
		Args:          usageArgs(cobra.NoArgs),
		RunE:          requireSubcommand,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(cfgFile); err != nil {
				return err
			}
			logger = newLogger(verbose || viper.GetBool("verbose"))
			return nil
		},
	}

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: ~/"+configName+")")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
	pf.String("census-version", "", "Census version (default: latest)")
	pf.String("organism", "", "Organism (default: homo_sapiens)")
	pf.String("cache-dir", "", "Gene dictionary cache directory")
	pf.Bool("no-cache", false, "Do not read or write the on-disk dictionary cache")
	pf.String("source", "", "Var table source: rest or duckdb")
	pf.String("source-url", "", "Base URL of the REST var table source")
	pf.String("source-path", "", "DuckDB database path or s3:// / https:// URL")

	mustBind(cmd, "census.version", "census-version")
	mustBind(cmd, "census.organism", "organism")
	mustBind(cmd, "cache.dir", "cache-dir")
	mustBind(cmd, "cache.disabled", "no-cache")
	mustBind(cmd, "source.kind", "source")
	mustBind(cmd, "source.url", "source-url")
	mustBind(cmd, "source.path", "source-path")

	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newFilterCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newTablesCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func mustBind(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

// setDefaults registers the built-in configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("census.version", "latest")
	v.SetDefault("census.organism", "homo_sapiens")
	v.SetDefault("source.kind", "rest")
	v.SetDefault("source.url", "")
	v.SetDefault("source.path", "~/.cxg-query/census.duckdb")
	v.SetDefault("source.timeout", "30s")
	v.SetDefault("cache.dir", "~/.cxg-query/cache")
	v.SetDefault("cache.disabled", false)
	v.SetDefault("resolve.prefer_protein_coding", true)
	v.SetDefault("resolve.ambiguous", "include")
}

// initConfig reads the config file and CXG_QUERY_* environment variables
// into the global viper instance. A missing default config file is not an
// error.
func initConfig(cfgFile string) error {
	viper.SetEnvPrefix("CXG_QUERY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		viper.SetConfigFile(filepath.Join(home, configName))
	}
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		if cfgFile == "" && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", viper.ConfigFileUsed(), err)
	}
	return nil
}

// newLogger builds a human-readable logger on stderr.
func newLogger(verbose bool) *zap.Logger {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	encoderConfig.CallerKey = ""

	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(os.Stderr),
		level,
	))
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// requireSubcommand backs commands that only group subcommands. It prints
// help and exits with ExitUsage.
func requireSubcommand(cmd *cobra.Command, args []string) error {
	cmd.Help() //nolint:errcheck
	return &usageError{err: fmt.Errorf("%s requires a subcommand", cmd.CommandPath())}
}

// usageArgs wraps a cobra argument validator so its failures exit with
// ExitUsage.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}
