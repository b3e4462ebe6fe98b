// Package migrate applies versioned .sql files to a database.
//
// Files are named <version>_<description>.sql, for example 2_create_tokens.sql.
// They are applied in numeric version order and every applied version is
// recorded in the schema_migrations table.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNoTable indicates the schema_migrations table does not exist.
	ErrNoTable = errors.New("migrations table does not exist")
	// ErrMigrationsMismatch indicates the applied versions don't match the available files.
	ErrMigrationsMismatch = errors.New("migrations mismatch")
	// ErrBadFilename indicates a .sql file without a version prefix.
	ErrBadFilename = errors.New("migration filename has no version prefix")
	// ErrDuplicateVersion indicates two files share a version.
	ErrDuplicateVersion = errors.New("duplicate migration version")
)

// Migration is an applied migration.
type Migration struct {
	Version  int
	Filename string
	Metadata Metadata
}

// Equal reports whether m and other describe the same applied migration.
func (m Migration) Equal(other Migration) bool {
	return m.Version == other.Version &&
		m.Filename == other.Filename &&
		m.Metadata.AppVersion == other.Metadata.AppVersion &&
		m.Metadata.Timestamp.Equal(other.Metadata.Timestamp)
}

// Metadata is recorded alongside every applied migration.
type Metadata struct {
	AppVersion string
	Timestamp  time.Time
}

// MigrationError is returned when the SQL of a migration fails.
type MigrationError struct {
	Version  int
	Filename string
	Err      error
}

func (m MigrationError) Error() string {
	return fmt.Sprintf("migration %d (%s) failed: %v", m.Version, m.Filename, m.Err)
}

func (m MigrationError) Unwrap() error {
	return m.Err
}

// RunFS applies the migrations in the root of fileSys that were not applied
// before. All of them run in a single transaction, so either every pending
// migration is applied or none is. It returns the migrations it applied.
func RunFS(ctx context.Context, db *sql.DB, fileSys fs.FS, meta Metadata) ([]Migration, error) {
	pending, err := readScripts(fileSys)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	applied, err := func() ([]Migration, error) {
		_, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			filename    TEXT NOT NULL,
			app_version TEXT NOT NULL,
			applied_at  INTEGER NOT NULL
		)`)
		if err != nil {
			return nil, fmt.Errorf("failed to create migrations table: %w", err)
		}

		history, err := selectMigrations(ctx, tx)
		if err != nil {
			return nil, err
		}

		pending, err := unapplied(history, pending)
		if err != nil {
			return nil, err
		}

		return applyAll(ctx, tx, pending, meta)
	}()
	if err != nil {
		if rErr := tx.Rollback(); rErr != nil {
			return nil, errors.Join(err, rErr)
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return applied, nil
}

// QueryMigrations returns the applied migrations ordered by version.
// It returns ErrNoTable when nothing was ever applied to db.
func QueryMigrations(ctx context.Context, db *sql.DB) ([]Migration, error) {
	return selectMigrations(ctx, db)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func selectMigrations(ctx context.Context, q querier) ([]Migration, error) {
	rows, err := q.QueryContext(ctx, `SELECT version, filename, app_version, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return nil, ErrNoTable
		}
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	out := make([]Migration, 0)
	for rows.Next() {
		var (
			m         Migration
			appliedAt int64
		)
		if err := rows.Scan(&m.Version, &m.Filename, &m.Metadata.AppVersion, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		m.Metadata.Timestamp = time.UnixMilli(appliedAt).UTC()
		out = append(out, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate over migrations: %w", err)
	}

	return out, nil
}

// unapplied checks history against the scripts and returns the scripts that
// still need to run. The history must be a prefix of the scripts.
func unapplied(history []Migration, scripts []script) ([]script, error) {
	if len(history) > len(scripts) {
		return nil, fmt.Errorf("%d migrations applied but only %d files available: %w",
			len(history), len(scripts), ErrMigrationsMismatch)
	}

	for i, h := range history {
		s := scripts[i]
		if h.Version != s.version || h.Filename != s.filename {
			return nil, fmt.Errorf("applied migration %d (%s) does not match file %s: %w",
				h.Version, h.Filename, s.filename, ErrMigrationsMismatch)
		}
	}

	return scripts[len(history):], nil
}

func applyAll(ctx context.Context, tx *sql.Tx, scripts []script, meta Metadata) ([]Migration, error) {
	applied := make([]Migration, 0, len(scripts))
	for _, s := range scripts {
		if _, err := tx.ExecContext(ctx, s.body); err != nil {
			return nil, MigrationError{Version: s.version, Filename: s.filename, Err: err}
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, filename, app_version, applied_at) VALUES (?, ?, ?, ?)`,
			s.version, s.filename, meta.AppVersion, meta.Timestamp.UnixMilli(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to record migration %d: %w", s.version, err)
		}

		applied = append(applied, Migration{Version: s.version, Filename: s.filename, Metadata: meta})
	}

	return applied, nil
}

type script struct {
	version  int
	filename string
	body     string
}

// readScripts reads the .sql files in the root of fileSys ordered by version.
func readScripts(fileSys fs.FS) ([]script, error) {
	entries, err := fs.ReadDir(fileSys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var scripts []script
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" {
			continue
		}

		prefix, _, _ := strings.Cut(name, "_")
		version, err := strconv.Atoi(prefix)
		if err != nil || version < 1 {
			return nil, fmt.Errorf("%s: %w", name, ErrBadFilename)
		}

		body, err := fs.ReadFile(fileSys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		scripts = append(scripts, script{version: version, filename: name, body: string(body)})
	}

	// ReadDir sorts by name, which puts 10_x.sql before 2_x.sql.
	slices.SortFunc(scripts, func(a, b script) int {
		return a.version - b.version
	})

	for i := 1; i < len(scripts); i++ {
		if scripts[i].version == scripts[i-1].version {
			return nil, fmt.Errorf("%s and %s: %w", scripts[i-1].filename, scripts[i].filename, ErrDuplicateVersion)
		}
	}

	return scripts, nil
}
