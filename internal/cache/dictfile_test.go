package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/cxg-query/internal/genes"
)

func testDictionary() *genes.Dictionary {
	return genes.BuildDictionary([]genes.Feature{
		{ID: "ENSG00000141510", Name: "TP53", Type: "protein_coding"},
		{ID: "ENSG00000000001", Name: "AMBIG", Type: "protein_coding"},
		{ID: "ENSG00000000002", Name: "AMBIG", Type: "lncRNA"},
	})
}

func TestSanitizeOrganism(t *testing.T) {
	assert.Equal(t, "homosapiens", SanitizeOrganism("homo_sapiens"))
	assert.Equal(t, "Homosapiens", SanitizeOrganism("Homo sapiens"))
	assert.Equal(t, "musmusculus10", SanitizeOrganism("mus-musculus/../10"))
	assert.Equal(t, "", SanitizeOrganism("__ "))
}

func TestDictionaryFiles_Path(t *testing.T) {
	c := NewDictionaryFiles("/tmp/cxg")
	assert.Equal(t, filepath.Join("/tmp/cxg", "2025-01-30_homosapiens_gene_dict.gob"), c.Path("2025-01-30", "homo_sapiens"))
	assert.Equal(t, filepath.Join("/tmp/cxg", "latest_Musmusculus_gene_dict.gob"), c.Path("latest", "Mus musculus"))
	assert.Equal(t, "/tmp/cxg", filepath.Dir(c.Path("a/b", "x")))
}

func TestDictionaryFiles_SaveAndLoad(t *testing.T) {
	c := NewDictionaryFiles(filepath.Join(t.TempDir(), "nested", "cache"))
	d := testDictionary()

	require.NoError(t, c.Save("latest", "homo_sapiens", d))

	got, err := c.Load("latest", "homo_sapiens")
	require.NoError(t, err)
	assert.Equal(t, d, got)
	assert.Equal(t, []string{"ENSG00000000001", "ENSG00000000002"}, got.NameToIDs["AMBIG"])

	// no temp files left behind
	tmp, err := filepath.Glob(filepath.Join(c.Dir(), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, tmp)
}

func TestDictionaryFiles_SaveEmpty(t *testing.T) {
	c := NewDictionaryFiles(t.TempDir())
	require.NoError(t, c.Save("latest", "homo_sapiens", genes.NewDictionary()))

	got, err := c.Load("latest", "homo_sapiens")
	require.NoError(t, err)
	assert.True(t, got.Empty())
	assert.NotNil(t, got.NameToIDs)
}

func TestDictionaryFiles_Miss(t *testing.T) {
	c := NewDictionaryFiles(t.TempDir())

	_, err := c.Load("latest", "homo_sapiens")
	assert.ErrorIs(t, err, genes.ErrCacheMiss)
}

func TestDictionaryFiles_Corrupt(t *testing.T) {
	c := NewDictionaryFiles(t.TempDir())
	require.NoError(t, c.Save("latest", "homo_sapiens", testDictionary()))

	path := c.Path("latest", "homo_sapiens")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// truncated
	require.NoError(t, os.WriteFile(path, data[:len(data)/2], 0644))
	_, err = c.Load("latest", "homo_sapiens")
	assert.ErrorIs(t, err, genes.ErrCacheCorrupt)

	// garbage
	require.NoError(t, os.WriteFile(path, []byte("not a gob file"), 0644))
	_, err = c.Load("latest", "homo_sapiens")
	assert.ErrorIs(t, err, genes.ErrCacheCorrupt)
}

func TestDictionaryFiles_MissingMetaIsCorrupt(t *testing.T) {
	c := NewDictionaryFiles(t.TempDir())
	require.NoError(t, c.Save("latest", "homo_sapiens", testDictionary()))
	require.NoError(t, os.Remove(c.Path("latest", "homo_sapiens")+".meta"))

	_, err := c.Load("latest", "homo_sapiens")
	assert.ErrorIs(t, err, genes.ErrCacheCorrupt)
}

func TestDictionaryFiles_FormatVersionMismatchIsMiss(t *testing.T) {
	c := NewDictionaryFiles(t.TempDir())
	require.NoError(t, c.Save("latest", "homo_sapiens", testDictionary()))

	meta := c.Path("latest", "homo_sapiens") + ".meta"
	data, err := os.ReadFile(meta)
	require.NoError(t, err)
	old := strings.Replace(string(data), "format_version=1", "format_version=0", 1)
	require.NoError(t, os.WriteFile(meta, []byte(old), 0644))

	_, err = c.Load("latest", "homo_sapiens")
	assert.ErrorIs(t, err, genes.ErrCacheMiss)
	assert.NotErrorIs(t, err, genes.ErrCacheCorrupt)
}

func TestDictionaryFiles_ListAndClear(t *testing.T) {
	c := NewDictionaryFiles(t.TempDir())
	require.NoError(t, c.Save("2025-01-30", "homo_sapiens", testDictionary()))
	require.NoError(t, c.Save("2025-01-30", "mus_musculus", genes.NewDictionary()))

	entries, err := c.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "homo_sapiens", entries[0].Organism)
	assert.Equal(t, "2025-01-30", entries[0].Version)
	assert.Equal(t, 3, entries[0].Features)
	assert.True(t, entries[0].Current())
	assert.Positive(t, entries[0].Size)
	assert.False(t, entries[0].CreatedAt.IsZero())
	assert.Equal(t, "mus_musculus", entries[1].Organism)
	assert.Equal(t, 0, entries[1].Features)

	require.NoError(t, c.Clear("2025-01-30", "homo_sapiens"))
	_, err = c.Load("2025-01-30", "homo_sapiens")
	assert.ErrorIs(t, err, genes.ErrCacheMiss)
	assert.NoFileExists(t, c.Path("2025-01-30", "homo_sapiens")+".meta")

	// clearing twice is fine
	require.NoError(t, c.Clear("2025-01-30", "homo_sapiens"))

	n, err := c.ClearAll()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries, err = c.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDictionaryFiles_WithResolver(t *testing.T) {
	c := NewDictionaryFiles(t.TempDir())
	require.NoError(t, c.Save("latest", "homo_sapiens", testDictionary()))

	// no source: everything must come from disk
	r := genes.NewResolver(nil, c)
	m := r.Resolve(context.Background(), "latest", "homo_sapiens", []string{"tp53", "AMBIG"})
	require.Len(t, m, 2)
	assert.Equal(t, "TP53", m[0].CanonicalName)
	assert.Equal(t, []string{"ENSG00000000001"}, m[1].EnsemblIDs)
}
