package genes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSource struct {
	features map[string][]Feature // organism -> rows
	err      error
	calls    atomic.Int32
}

func (s *fakeSource) FetchFeatures(_ context.Context, version, organism string) ([]Feature, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	rows, ok := s.features[organism]
	if !ok {
		return nil, ErrOrganismNotFound
	}
	return rows, nil
}

type memStore struct {
	dicts   map[DictKey]*Dictionary
	loadErr error
	saves   int
}

func newMemStore() *memStore {
	return &memStore{dicts: make(map[DictKey]*Dictionary)}
}

func (s *memStore) Load(version, organism string) (*Dictionary, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	d, ok := s.dicts[DictKey{version, organism}]
	if !ok {
		return nil, ErrCacheMiss
	}
	return d, nil
}

func (s *memStore) Save(version, organism string, d *Dictionary) error {
	s.saves++
	s.dicts[DictKey{version, organism}] = d
	return nil
}

func humanSource() *fakeSource {
	return &fakeSource{features: map[string][]Feature{
		"homo_sapiens": {
			{ID: "ENSG00000141510", Name: "TP53", Type: "protein_coding"},
			{ID: "ENSG00000012048", Name: "BRCA1", Type: "protein_coding"},
			{ID: "ENSG00000000001", Name: "AMBIG", Type: "protein_coding"},
			{ID: "ENSG00000000002", Name: "AMBIG", Type: "lncRNA"},
		},
	}}
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestResolver_Resolve(t *testing.T) {
	src := humanSource()
	r := NewResolver(src, nil)
	ctx := context.Background()

	results := r.Resolve(ctx, "latest", "homo_sapiens", []string{"TP53", "BRCA1"})
	require.Len(t, results, 2)
	assert.Equal(t, []string{"ENSG00000141510"}, results[0].EnsemblIDs)
	assert.Equal(t, []string{"ENSG00000012048"}, results[1].EnsemblIDs)

	// second call is served from memory
	r.Resolve(ctx, "latest", "homo_sapiens", []string{"TP53"})
	assert.Equal(t, int32(1), src.calls.Load())
	assert.True(t, r.Cached("latest", "homo_sapiens"))
	assert.False(t, r.Cached("latest", "Homo sapiens"))
}

func TestResolver_PreferProteinCodingToggle(t *testing.T) {
	r := NewResolver(humanSource(), nil)
	ctx := context.Background()

	m := r.Resolve(ctx, "latest", "homo_sapiens", []string{"AMBIG"})[0]
	assert.False(t, m.Ambiguous)
	assert.Equal(t, []string{"ENSG00000000001"}, m.EnsemblIDs)

	r.SetPreferProteinCoding(false)
	m = r.Resolve(ctx, "latest", "homo_sapiens", []string{"AMBIG"})[0]
	assert.True(t, m.Ambiguous)
	assert.Len(t, m.EnsemblIDs, 2)

	r.SetPolicy(nil)
	m = r.Resolve(ctx, "latest", "homo_sapiens", []string{"AMBIG"})[0]
	assert.True(t, m.Ambiguous)

	r.SetPreferProteinCoding(true)
	m = r.Resolve(ctx, "latest", "homo_sapiens", []string{"AMBIG"})[0]
	assert.False(t, m.Ambiguous)
}

func TestResolver_PersistsAndReloads(t *testing.T) {
	store := newMemStore()
	src := humanSource()

	r := NewResolver(src, store)
	r.Resolve(context.Background(), "2025-01-30", "homo_sapiens", []string{"TP53"})
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, int32(1), src.calls.Load())

	// a fresh process picks the dictionary up from the store
	r2 := NewResolver(src, store)
	m := r2.Resolve(context.Background(), "2025-01-30", "homo_sapiens", []string{"TP53"})[0]
	assert.Equal(t, "TP53", m.CanonicalName)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, 1, store.saves)
}

func TestResolver_CorruptCacheRefetches(t *testing.T) {
	store := newMemStore()
	store.loadErr = ErrCacheCorrupt
	src := humanSource()
	logger, logs := observedLogger()

	r := NewResolver(src, store)
	r.SetLogger(logger)

	m := r.Resolve(context.Background(), "latest", "homo_sapiens", []string{"TP53"})[0]
	assert.Equal(t, []string{"ENSG00000141510"}, m.EnsemblIDs)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, 1, logs.FilterMessage("gene dict cache unusable, refetching").Len())
}

func TestResolver_OrganismNotFound(t *testing.T) {
	logger, logs := observedLogger()
	r := NewResolver(humanSource(), newMemStore())
	r.SetLogger(logger)

	d := r.Dictionary(context.Background(), "latest", "danio_rerio")
	assert.True(t, d.Empty())
	assert.Equal(t, 1, logs.FilterMessage("organism not found in census").Len())

	_, err := r.LoadDictionary(context.Background(), "latest", "danio_rerio")
	assert.ErrorIs(t, err, ErrOrganismNotFound)
}

func TestResolver_FetchErrorDegradesToEmpty(t *testing.T) {
	src := humanSource()
	src.err = errors.New("connection refused")
	store := newMemStore()
	logger, logs := observedLogger()

	r := NewResolver(src, store)
	r.SetLogger(logger)
	ctx := context.Background()

	results := r.Resolve(ctx, "latest", "homo_sapiens", []string{"TP53", "ENSG00000141510"})
	require.Len(t, results, 2)
	assert.Empty(t, results[0].EnsemblIDs)
	assert.Equal(t, []string{"ENSG00000141510"}, results[1].EnsemblIDs)
	assert.Empty(t, results[1].CanonicalName)

	errLogs := logs.FilterMessage("error fetching gene var table").All()
	require.Len(t, errLogs, 1)
	assert.Equal(t, "homo_sapiens", errLogs[0].ContextMap()["organism"])
	assert.Equal(t, 0, store.saves)

	_, err := r.LoadDictionary(ctx, "latest", "homo_sapiens")
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, "homo_sapiens", fetchErr.Organism)

	// failures are not memoized
	src.err = nil
	m := r.Resolve(ctx, "latest", "homo_sapiens", []string{"TP53"})[0]
	assert.Equal(t, []string{"ENSG00000141510"}, m.EnsemblIDs)
	assert.Equal(t, 1, store.saves)
}

func TestResolver_NoSource(t *testing.T) {
	r := NewResolver(nil, nil)
	_, err := r.LoadDictionary(context.Background(), "latest", "homo_sapiens")
	var fetchErr *FetchError
	assert.True(t, errors.As(err, &fetchErr))
}

func TestMemo_LoadsOncePerKey(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	m := NewMemo(func(_ context.Context, k DictKey) (int, error) {
		calls.Add(1)
		<-release
		return len(k.Organism), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := m.Get(context.Background(), DictKey{"latest", "mus_musculus"})
			assert.NoError(t, err)
			assert.Equal(t, 12, v)
		}()
	}
	close(release)
	wg.Wait()

	v, err := m.Get(context.Background(), DictKey{"latest", "mus_musculus"})
	require.NoError(t, err)
	assert.Equal(t, 12, v)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, m.Len())
}

func TestMemo_DoesNotCacheErrors(t *testing.T) {
	fail := true
	m := NewMemo(func(_ context.Context, k DictKey) (string, error) {
		if fail {
			return "", errors.New("boom")
		}
		return k.Version, nil
	})

	_, err := m.Get(context.Background(), DictKey{"v1", "x"})
	assert.Error(t, err)
	assert.Equal(t, 0, m.Len())

	fail = false
	v, err := m.Get(context.Background(), DictKey{"v1", "x"})
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
}

func TestDictKey_CaseSensitive(t *testing.T) {
	assert.NotEqual(t, DictKey{"latest", "homo_sapiens"}.String(), DictKey{"latest", "Homo_sapiens"}.String())
	assert.NotEqual(t, DictKey{"a", "b_c"}.String(), DictKey{"a_b", "c"}.String())
}

func TestResolver_ResolveStrict(t *testing.T) {
	r := NewResolver(humanSource(), nil)
	ctx := context.Background()

	m, err := r.ResolveStrict(ctx, "latest", "homo_sapiens", []string{"tp53"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ENSG00000141510"}, m[0].EnsemblIDs)

	_, err = r.ResolveStrict(ctx, "latest", "danio_rerio", []string{"tp53"})
	assert.ErrorIs(t, err, ErrOrganismNotFound)
}

func TestResolver_VersionNotFound(t *testing.T) {
	src := humanSource()
	src.err = fmt.Errorf("%w: latest is 2025-01-30", ErrVersionNotFound)
	logger, logs := observedLogger()

	r := NewResolver(src, newMemStore())
	r.SetLogger(logger)

	_, err := r.LoadDictionary(context.Background(), "2020-01-01", "homo_sapiens")
	assert.ErrorIs(t, err, ErrVersionNotFound)
	var fetchErr *FetchError
	assert.False(t, errors.As(err, &fetchErr))

	d := r.Dictionary(context.Background(), "2020-01-01", "homo_sapiens")
	assert.True(t, d.Empty())
	assert.Equal(t, 1, logs.FilterMessage("census version not found for organism").Len())
}

func TestResolver_SetPolicyWhileResolving(t *testing.T) {
	r := NewResolver(humanSource(), nil)
	ctx := context.Background()
	_, err := r.LoadDictionary(ctx, "latest", "homo_sapiens")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(prefer bool) {
			defer wg.Done()
			r.SetPreferProteinCoding(prefer)
		}(i%2 == 0)
		go func() {
			defer wg.Done()
			m := r.Resolve(ctx, "latest", "homo_sapiens", []string{"TP53"})
			assert.Equal(t, []string{"ENSG00000141510"}, m[0].EnsemblIDs)
		}()
	}
	wg.Wait()
}
