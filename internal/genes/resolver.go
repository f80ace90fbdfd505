package genes

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Cache errors returned by a DictionaryStore.
var (
	ErrCacheMiss    = errors.New("gene dictionary not cached")
	ErrCacheCorrupt = errors.New("gene dictionary cache corrupt")
)

// FeatureSource fetches the var table of one organism from one census
// release.
type FeatureSource interface {
	FetchFeatures(ctx context.Context, version, organism string) ([]Feature, error)
}

// DictionaryStore persists built dictionaries between process runs.
// Load returns ErrCacheMiss when nothing is stored for the key.
type DictionaryStore interface {
	Load(version, organism string) (*Dictionary, error)
	Save(version, organism string, d *Dictionary) error
}

// DictKey identifies a dictionary by census version and organism, exactly
// as given by the caller.
type DictKey struct {
	Version  string
	Organism string
}

func (k DictKey) String() string {
	return k.Version + "\x00" + k.Organism
}

// Resolver resolves gene queries against census dictionaries. Dictionaries
// are built on first use per (version, organism) and kept in memory and,
// when a store is set, on disk.
type Resolver struct {
	source FeatureSource
	store  DictionaryStore
	mu     sync.RWMutex // guards policy
	policy Disambiguator
	logger *zap.Logger
	memo   *Memo[DictKey, *Dictionary]
}

// NewResolver creates a resolver that fetches from source and persists to
// store. store may be nil to disable the on-disk cache.
func NewResolver(source FeatureSource, store DictionaryStore) *Resolver {
	r := &Resolver{
		source: source,
		store:  store,
		policy: PreferProteinCoding,
		logger: zap.NewNop(),
	}
	r.memo = NewMemo(r.load)
	return r
}

// SetLogger sets the logger for cache and fetch messages. Call it before
// the resolver is shared between goroutines.
func (r *Resolver) SetLogger(l *zap.Logger) {
	r.logger = l
}

// SetPolicy sets the disambiguation policy. nil disables disambiguation.
func (r *Resolver) SetPolicy(p Disambiguator) {
	if p == nil {
		p = NoDisambiguation
	}
	r.mu.Lock()
	r.policy = p
	r.mu.Unlock()
}

// SetPreferProteinCoding toggles between PreferProteinCoding (the default)
// and NoDisambiguation.
func (r *Resolver) SetPreferProteinCoding(prefer bool) {
	if prefer {
		r.SetPolicy(PreferProteinCoding)
	} else {
		r.SetPolicy(NoDisambiguation)
	}
}

func (r *Resolver) currentPolicy() Disambiguator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policy
}

// Resolve resolves gene symbols or Ensembl IDs, returning one Match per
// query in input order. If the dictionary cannot be acquired, every symbol
// is reported unresolved and Ensembl IDs pass through.
func (r *Resolver) Resolve(ctx context.Context, version, organism string, queries []string) []Match {
	d := r.Dictionary(ctx, version, organism)
	return ResolveWith(d, queries, r.currentPolicy())
}

// ResolveStrict is like Resolve but fails when the dictionary cannot be
// acquired instead of reporting every symbol unresolved.
func (r *Resolver) ResolveStrict(ctx context.Context, version, organism string, queries []string) ([]Match, error) {
	d, err := r.LoadDictionary(ctx, version, organism)
	if err != nil {
		return nil, err
	}
	return ResolveWith(d, queries, r.currentPolicy()), nil
}

// Dictionary returns the dictionary for (version, organism). Acquisition
// failures are logged and yield an empty dictionary.
func (r *Resolver) Dictionary(ctx context.Context, version, organism string) *Dictionary {
	d, err := r.LoadDictionary(ctx, version, organism)
	if err != nil {
		switch {
		case errors.Is(err, ErrOrganismNotFound):
			r.logger.Warn("organism not found in census",
				zap.String("version", version),
				zap.String("organism", organism))
		case errors.Is(err, ErrVersionNotFound):
			r.logger.Warn("census version not found for organism",
				zap.String("version", version),
				zap.String("organism", organism),
				zap.Error(err))
		default:
			r.logger.Error("error fetching gene var table",
				zap.String("version", version),
				zap.String("organism", organism),
				zap.Error(err))
		}
		return NewDictionary()
	}
	return d
}

// LoadDictionary is like Dictionary but returns acquisition errors:
// ErrOrganismNotFound when the census lacks the organism,
// ErrVersionNotFound when it lacks the version, or a *FetchError.
func (r *Resolver) LoadDictionary(ctx context.Context, version, organism string) (*Dictionary, error) {
	return r.memo.Get(ctx, DictKey{Version: version, Organism: organism})
}

// Cached returns true if the dictionary for (version, organism) is held in
// memory.
func (r *Resolver) Cached(version, organism string) bool {
	_, ok := r.memo.Peek(DictKey{Version: version, Organism: organism})
	return ok
}

func (r *Resolver) load(ctx context.Context, key DictKey) (*Dictionary, error) {
	log := r.logger.With(zap.String("version", key.Version), zap.String("organism", key.Organism))

	if r.store != nil {
		d, err := r.store.Load(key.Version, key.Organism)
		switch {
		case err == nil:
			log.Info("loaded cached gene dict", zap.Int("features", d.Len()))
			return d, nil
		case errors.Is(err, ErrCacheMiss):
		default:
			log.Warn("gene dict cache unusable, refetching", zap.Error(err))
		}
	}

	if r.source == nil {
		return nil, &FetchError{Version: key.Version, Organism: key.Organism, Err: errors.New("no feature source configured")}
	}

	log.Info("fetching gene var table from census")
	features, err := r.source.FetchFeatures(ctx, key.Version, key.Organism)
	if err != nil {
		if errors.Is(err, ErrOrganismNotFound) || errors.Is(err, ErrVersionNotFound) {
			return nil, fmt.Errorf("%s/%s: %w", key.Version, key.Organism, err)
		}
		return nil, &FetchError{Version: key.Version, Organism: key.Organism, Err: err}
	}

	d := BuildDictionary(features)

	if r.store != nil {
		if err := r.store.Save(key.Version, key.Organism, d); err != nil {
			log.Warn("could not save gene dict cache", zap.Error(err))
		} else {
			log.Info("saved gene dict to cache", zap.Int("features", d.Len()))
		}
	}
	return d, nil
}
