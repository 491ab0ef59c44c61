package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/dshills/livesettings/internal/settings/schema"
)

// SQLiteBackend stores values in a SQLite table, one row per key.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (or creates) a SQLite settings database at path.
// Pass ":memory:" for an in-memory database (used by tests).
func OpenSQLite(path string) (*SQLiteBackend, error) {
	dsn := path
	if path != ":memory:" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, path, err)
		}
		if _, err := os.Stat(filepath.Dir(abs)); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, abs, err)
		}
		// The rollback journal is created next to the database.
		if err := checkDirWritable(filepath.Dir(abs)); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, abs, err)
		}
		path, dsn = abs, abs
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", ErrStoreUnavailable, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: pinging database: %w", ErrStoreUnavailable, err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: setting busy timeout: %w", ErrStoreUnavailable, err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		kind  TEXT NOT NULL,
		value TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating settings table: %w", ErrStoreUnavailable, err)
	}

	// SQLite falls back to read-only access silently; fail now rather
	// than on the first flush.
	if err := checkWritable(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s is not writable: %w", ErrStoreUnavailable, path, err)
	}

	return &SQLiteBackend{db: db, path: path}, nil
}

// checkWritable performs a write inside a transaction and rolls it back.
func checkWritable(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	_, err = tx.Exec("INSERT OR REPLACE INTO settings (key, kind, value) VALUES ('', 'string', '')")
	return err
}

// Location returns the database path.
func (b *SQLiteBackend) Location() string {
	return b.path
}

// Load reads every row.
func (b *SQLiteBackend) Load() (map[string]any, error) {
	rows, err := b.db.Query("SELECT key, kind, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]any)
	for rows.Next() {
		var key, kind, text string
		if err := rows.Scan(&key, &kind, &text); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		t, err := schema.ParseType(kind)
		if err != nil {
			return nil, fmt.Errorf("setting %s: %w", key, err)
		}
		v, err := t.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("setting %s: %w", key, schema.WithPath(err, key))
		}
		values[key] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	return values, nil
}

// Save replaces all rows in one transaction.
func (b *SQLiteBackend) Save(values map[string]any) error {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM settings"); err != nil {
		tx.Rollback()
		return fmt.Errorf("clearing settings: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO settings (key, kind, value) VALUES (?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for key, v := range values {
		t, ok := schema.TypeOf(v)
		if !ok {
			tx.Rollback()
			return fmt.Errorf("setting %s: unsupported value %T", key, v)
		}
		if _, err := stmt.Exec(key, t.String(), format(v)); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting setting %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing settings: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func format(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(v)
	}
}
