// Package cache persists gene dictionaries on disk between runs.
package cache

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/inodb/cxg-query/internal/genes"
)

// FormatVersion is the on-disk layout version of the gob payload. It is
// independent of the census version in the file name; bump it whenever
// genes.Dictionary changes shape so old files are refetched.
const FormatVersion = 1

const fileSuffix = "_gene_dict.gob"

// DictionaryFiles stores gob-serialized gene dictionaries, one file per
// (census version, organism):
//
//	{dir}/{version}_{organism}_gene_dict.gob       (serialized dictionary)
//	{dir}/{version}_{organism}_gene_dict.gob.meta  (format version, provenance)
type DictionaryFiles struct {
	dir string
}

// NewDictionaryFiles creates a dictionary cache rooted at dir.
func NewDictionaryFiles(dir string) *DictionaryFiles {
	return &DictionaryFiles{dir: dir}
}

// Dir returns the cache directory.
func (c *DictionaryFiles) Dir() string {
	return c.dir
}

// SanitizeOrganism strips everything except letters and digits, so
// "Homo sapiens" and "homo_sapiens" become "Homosapiens" and "homosapiens".
func SanitizeOrganism(organism string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, organism)
}

// Path returns the gob path for (version, organism).
func (c *DictionaryFiles) Path(version, organism string) string {
	safeVersion := strings.NewReplacer("/", "-", string(os.PathSeparator), "-").Replace(version)
	return filepath.Join(c.dir, safeVersion+"_"+SanitizeOrganism(organism)+fileSuffix)
}

func metaPath(gobPath string) string {
	return gobPath + ".meta"
}

// Load reads the cached dictionary for (version, organism). It returns
// genes.ErrCacheMiss when no file exists or the file was written by a
// different FormatVersion, and genes.ErrCacheCorrupt when it cannot be
// decoded.
func (c *DictionaryFiles) Load(version, organism string) (*genes.Dictionary, error) {
	path := c.Path(version, organism)

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, genes.ErrCacheMiss
		}
		return nil, fmt.Errorf("stat gene dict cache: %w", err)
	}

	meta, err := readMeta(metaPath(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: metadata: %v", genes.ErrCacheCorrupt, path, err)
	}
	if meta["format_version"] != strconv.Itoa(FormatVersion) {
		return nil, fmt.Errorf("%w: %s has format version %q, want %d",
			genes.ErrCacheMiss, path, meta["format_version"], FormatVersion)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gene dict cache: %w", err)
	}
	defer f.Close()

	var d genes.Dictionary
	if err := gob.NewDecoder(f).Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", genes.ErrCacheCorrupt, path, err)
	}
	// gob leaves empty maps nil
	if d.NameToIDs == nil {
		d.NameToIDs = make(map[string][]string)
	}
	if d.IDToName == nil {
		d.IDToName = make(map[string]string)
	}
	if d.IDToFeatureType == nil {
		d.IDToFeatureType = make(map[string]string)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", genes.ErrCacheCorrupt, path, err)
	}
	return &d, nil
}

// Save writes d for (version, organism). Files are written to a temporary
// name and renamed, so concurrent readers see either the old or the new
// file.
func (c *DictionaryFiles) Save(version, organism string, d *genes.Dictionary) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	path := c.Path(version, organism)
	if err := writeAtomic(path, func(f *os.File) error {
		return gob.NewEncoder(f).Encode(d)
	}); err != nil {
		return fmt.Errorf("write gene dict cache: %w", err)
	}

	lines := []string{
		"format_version=" + strconv.Itoa(FormatVersion),
		"census_version=" + version,
		"organism=" + organism,
		"features=" + strconv.Itoa(d.Len()),
		"created_at=" + time.Now().UTC().Format(time.RFC3339),
		"",
	}
	if err := writeAtomic(metaPath(path), func(f *os.File) error {
		_, err := f.WriteString(strings.Join(lines, "\n"))
		return err
	}); err != nil {
		return fmt.Errorf("write gene dict metadata: %w", err)
	}
	return nil
}

// Clear removes the cached files for (version, organism).
func (c *DictionaryFiles) Clear(version, organism string) error {
	return removeFiles(c.Path(version, organism))
}

// ClearAll removes every cached dictionary in the directory and returns
// the number of dictionaries removed.
func (c *DictionaryFiles) ClearAll() (int, error) {
	paths, err := filepath.Glob(filepath.Join(c.dir, "*"+fileSuffix))
	if err != nil {
		return 0, err
	}
	for _, p := range paths {
		if err := removeFiles(p); err != nil {
			return 0, err
		}
	}
	return len(paths), nil
}

// Entry describes one cached dictionary.
type Entry struct {
	Path          string
	Size          int64
	ModTime       time.Time
	FormatVersion string
	Version       string
	Organism      string
	Features      int
	CreatedAt     time.Time
}

// Current returns true if the entry was written with the current
// FormatVersion.
func (e Entry) Current() bool {
	return e.FormatVersion == strconv.Itoa(FormatVersion)
}

// List returns the cached dictionaries, sorted by path. Entries with a
// missing or unreadable .meta file are listed with empty provenance.
func (c *DictionaryFiles) List() ([]Entry, error) {
	paths, err := filepath.Glob(filepath.Join(c.dir, "*"+fileSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	entries := make([]Entry, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		e := Entry{Path: p, Size: info.Size(), ModTime: info.ModTime()}
		if meta, err := readMeta(metaPath(p)); err == nil {
			e.FormatVersion = meta["format_version"]
			e.Version = meta["census_version"]
			e.Organism = meta["organism"]
			e.Features, _ = strconv.Atoi(meta["features"])
			e.CreatedAt, _ = time.Parse(time.RFC3339, meta["created_at"])
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func removeFiles(gobPath string) error {
	for _, p := range []string{gobPath, metaPath(gobPath)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := f.Name()

	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func readMeta(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	meta := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			meta[k] = v
		}
	}
	return meta, nil
}
