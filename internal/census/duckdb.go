package census

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/inodb/cxg-query/internal/genes"
)

// LatestVersion selects the newest census version present in a DuckDB
// source.
const LatestVersion = "latest"

// varTable is the table holding every (census version, organism) var table.
const varTable = "census_var"

// DuckDBSource serves var tables from a DuckDB database with one
// census_var table holding every (census version, organism) pair.
// The path can be a local file, "" for in-memory, or an s3:// or
// https:// URL, which is attached read-only through httpfs.
type DuckDBSource struct {
	db       *sql.DB
	path     string
	table    string // qualified with the catalog alias when attached
	readOnly bool
}

// IsRemote returns true if path must be read through httpfs.
func IsRemote(path string) bool {
	return strings.HasPrefix(path, "s3://") ||
		strings.HasPrefix(path, "https://") ||
		strings.HasPrefix(path, "http://")
}

// OpenDuckDB opens or creates a DuckDB var-table database.
func OpenDuckDB(path string) (*DuckDBSource, error) {
	if IsRemote(path) {
		return openRemote(path)
	}

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &DuckDBSource{db: db, path: path, table: varTable}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func openRemote(path string) (*DuckDBSource, error) {
	return openAttached(path, true)
}

// openAttached attaches path read-only under the "census" alias of an
// in-memory database. Queries name the table as census.census_var since
// USE would only apply to the connection it ran on, not to the rest of
// the pool.
func openAttached(path string, httpfs bool) (*DuckDBSource, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if httpfs {
		if _, err := db.Exec("INSTALL httpfs; LOAD httpfs;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("load httpfs extension: %w", err)
		}
	}
	attach := fmt.Sprintf("ATTACH '%s' AS census (READ_ONLY)", strings.ReplaceAll(path, "'", "''"))
	if _, err := db.Exec(attach); err != nil {
		db.Close()
		return nil, fmt.Errorf("attach %s: %w", path, err)
	}
	return &DuckDBSource{db: db, path: path, table: "census." + varTable, readOnly: true}, nil
}

// Close closes the database connection.
func (s *DuckDBSource) Close() error {
	return s.db.Close()
}

func (s *DuckDBSource) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS census_var (
			census_version VARCHAR,
			organism VARCHAR,
			row_idx BIGINT,
			feature_id VARCHAR,
			feature_name VARCHAR,
			feature_type VARCHAR,
			PRIMARY KEY (census_version, organism, row_idx)
		);
		CREATE INDEX IF NOT EXISTS idx_census_var_org ON census_var(organism, census_version);
	`)
	return err
}

// FetchFeatures returns the var table for (version, organism) in import
// order. The version "latest" selects the highest version stored for the
// organism. It returns genes.ErrOrganismNotFound when nothing is stored for
// the organism and genes.ErrVersionNotFound when the organism is stored
// under other versions only.
func (s *DuckDBSource) FetchFeatures(ctx context.Context, version, organism string) ([]genes.Feature, error) {
	organism = Organism(organism)

	var latest sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT max(census_version) FROM `+s.table+` WHERE organism = ?`, organism).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("query latest version: %w", err)
	}
	if !latest.Valid {
		return nil, genes.ErrOrganismNotFound
	}
	if version == LatestVersion {
		version = latest.String
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT feature_id, feature_name, feature_type
		FROM `+s.table+`
		WHERE census_version = ? AND organism = ?
		ORDER BY row_idx
	`, version, organism)
	if err != nil {
		return nil, fmt.Errorf("query var table: %w", err)
	}
	defer rows.Close()

	var features []genes.Feature
	for rows.Next() {
		var f genes.Feature
		var name, ftype sql.NullString
		if err := rows.Scan(&f.ID, &name, &ftype); err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		f.Name = name.String
		f.Type = ftype.String
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate features: %w", err)
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: %s has no %s table (latest is %s)",
			genes.ErrVersionNotFound, organism, version, latest.String)
	}
	return features, nil
}

// Import replaces the var table for (version, organism) with features,
// bulk-inserted through the DuckDB Appender API. The replacement runs in
// one transaction: on error the previous rows are kept.
func (s *DuckDBSource) Import(ctx context.Context, version, organism string, features []genes.Feature) (err error) {
	if s.readOnly {
		return fmt.Errorf("import into %s: database is read-only", s.path)
	}
	if version == "" || version == LatestVersion {
		return fmt.Errorf("import: a concrete census version is required, got %q", version)
	}
	organism = Organism(organism)

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN TRANSACTION"); err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() {
		if err != nil {
			conn.ExecContext(context.Background(), "ROLLBACK") //nolint:errcheck
		}
	}()

	if _, err := conn.ExecContext(ctx,
		`DELETE FROM `+s.table+` WHERE census_version = ? AND organism = ?`, version, organism); err != nil {
		return fmt.Errorf("clear var table: %w", err)
	}

	if len(features) > 0 {
		var appender *goduckdb.Appender
		if err := conn.Raw(func(driverConn any) error {
			var err error
			appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", s.table)
			return err
		}); err != nil {
			return fmt.Errorf("create appender: %w", err)
		}

		appendErr := appendFeatures(appender, version, organism, features)
		closeErr := appender.Close()
		if appendErr != nil {
			return appendErr
		}
		if closeErr != nil {
			return fmt.Errorf("flush features: %w", closeErr)
		}
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

func appendFeatures(appender *goduckdb.Appender, version, organism string, features []genes.Feature) error {
	for i, f := range features {
		if f.ID == "" {
			return fmt.Errorf("feature row %d: empty %s", i, ColumnFeatureID)
		}
		if err := appender.AppendRow(version, organism, int64(i), f.ID, f.Name, f.Type); err != nil {
			return fmt.Errorf("append feature %s: %w", f.ID, err)
		}
	}
	return nil
}

// Table summarizes one stored var table.
type Table struct {
	Version  string
	Organism string
	Features int64
}

// Tables lists the stored (version, organism) pairs.
func (s *DuckDBSource) Tables(ctx context.Context) ([]Table, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT census_version, organism, COUNT(*)
		FROM `+s.table+`
		GROUP BY census_version, organism
		ORDER BY census_version, organism
	`)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var t Table
		if err := rows.Scan(&t.Version, &t.Organism, &t.Features); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}
