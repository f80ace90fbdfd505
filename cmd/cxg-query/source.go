package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/cxg-query/internal/cache"
	"github.com/inodb/cxg-query/internal/census"
	"github.com/inodb/cxg-query/internal/genes"
)

// Source kinds accepted by source.kind.
const (
	sourceREST   = "rest"
	sourceDuckDB = "duckdb"
	sourceNone   = "none"
)

// session bundles a resolver with the resources backing it.
type session struct {
	resolver *genes.Resolver
	store    *cache.DictionaryFiles
	closers  []func() error
	version  string
	organism string
}

func (s *session) Close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}
}

// newSession builds a resolver from the current configuration.
func newSession() (*session, error) {
	s := &session{
		version:  viper.GetString("census.version"),
		organism: census.Organism(viper.GetString("census.organism")),
	}
	if s.version == "" {
		s.version = census.LatestVersion
	}

	source, closer, err := newFeatureSource()
	if err != nil {
		return nil, err
	}
	if closer != nil {
		s.closers = append(s.closers, closer)
	}

	var store genes.DictionaryStore
	if !viper.GetBool("cache.disabled") {
		s.store = cache.NewDictionaryFiles(expandHome(viper.GetString("cache.dir")))
		store = s.store
	}

	r := genes.NewResolver(source, store)
	r.SetLogger(logger)
	r.SetPreferProteinCoding(viper.GetBool("resolve.prefer_protein_coding"))
	s.resolver = r
	return s, nil
}

// newFeatureSource opens the var table source named by source.kind. The
// returned closer may be nil.
func newFeatureSource() (genes.FeatureSource, func() error, error) {
	kind := strings.ToLower(strings.TrimSpace(viper.GetString("source.kind")))
	switch kind {
	case sourceREST, "":
		url := viper.GetString("source.url")
		if url == "" {
			logger.Debug("no source.url configured, using cached dictionaries only")
			return nil, nil, nil
		}
		timeout, err := time.ParseDuration(viper.GetString("source.timeout"))
		if err != nil {
			return nil, nil, &usageError{err: fmt.Errorf("invalid source.timeout: %w", err)}
		}
		return census.NewRESTSource(url, timeout), nil, nil
	case sourceDuckDB:
		db, err := openDuckDB()
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	case sourceNone:
		return nil, nil, nil
	default:
		return nil, nil, &usageError{err: fmt.Errorf("unknown source.kind %q (use rest, duckdb or none)", kind)}
	}
}

func openDuckDB() (*census.DuckDBSource, error) {
	path := viper.GetString("source.path")
	if !census.IsRemote(path) {
		path = expandHome(path)
	}
	db, err := census.OpenDuckDB(path)
	if err != nil {
		return nil, fmt.Errorf("opening census database %s: %w", path, err)
	}
	logger.Debug("opened census database", zap.String("path", path))
	return db, nil
}
