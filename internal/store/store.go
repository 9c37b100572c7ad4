// Package store is the SQLite-backed extraction cache. Repeated analyses
// of a mostly-unchanged tree skip re-parsing files whose content hash
// matches a cached entry; the cached value is the file's normalized
// syntax stream, not the final document, so downstream resolution always
// runs against the full project.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codeatlas-dev/codeatlas/internal/syntax"
)

// Cache is the SQLite data access layer.
type Cache struct {
	db *sql.DB
}

// Open opens (or creates) a cache database at dbPath with WAL mode.
func Open(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Migrate creates the schema. Idempotent.
func (c *Cache) Migrate() error {
	if _, err := c.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate cache: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
  path    TEXT PRIMARY KEY,
  hash    TEXT NOT NULL,
  syntax  BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
  key     TEXT PRIMARY KEY,
  value   TEXT NOT NULL
);
`

// Get returns the cached syntax stream for path if the stored content
// hash matches. A miss is (nil, false, nil).
func (c *Cache) Get(path, hash string) (*syntax.FileSyntax, bool, error) {
	var storedHash string
	var blob []byte
	err := c.db.QueryRow(
		"SELECT hash, syntax FROM files WHERE path = ?", path,
	).Scan(&storedHash, &blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup %s: %w", path, err)
	}
	if storedHash != hash {
		return nil, false, nil
	}
	var fs syntax.FileSyntax
	if err := json.Unmarshal(blob, &fs); err != nil {
		// A corrupt entry behaves like a miss; it will be overwritten.
		return nil, false, nil
	}
	return &fs, true, nil
}

// Put stores the syntax stream for path under the given content hash,
// replacing any previous entry.
func (c *Cache) Put(path, hash string, fs *syntax.FileSyntax) error {
	blob, err := json.Marshal(fs)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", path, err)
	}
	_, err = c.db.Exec(
		"INSERT INTO files (path, hash, syntax) VALUES (?, ?, ?) "+
			"ON CONFLICT(path) DO UPDATE SET hash = excluded.hash, syntax = excluded.syntax",
		path, hash, blob,
	)
	if err != nil {
		return fmt.Errorf("cache store %s: %w", path, err)
	}
	return nil
}

// Prune drops entries for files no longer present in the tree.
func (c *Cache) Prune(keep []string) error {
	keepSet := make(map[string]bool, len(keep))
	for _, p := range keep {
		keepSet[p] = true
	}
	rows, err := c.db.Query("SELECT path FROM files")
	if err != nil {
		return fmt.Errorf("cache prune: %w", err)
	}
	var stale []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return fmt.Errorf("cache prune: %w", err)
		}
		if !keepSet[p] {
			stale = append(stale, p)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("cache prune: %w", err)
	}
	for _, p := range stale {
		if _, err := c.db.Exec("DELETE FROM files WHERE path = ?", p); err != nil {
			return fmt.Errorf("cache prune %s: %w", p, err)
		}
	}
	return nil
}

// GetMetadata returns the value stored for key, or "" when absent.
func (c *Cache) GetMetadata(key string) (string, error) {
	var value string
	err := c.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cache metadata %s: %w", key, err)
	}
	return value, nil
}

// SetMetadata stores a key/value pair, replacing any previous value.
func (c *Cache) SetMetadata(key, value string) error {
	_, err := c.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) "+
			"ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("cache metadata %s: %w", key, err)
	}
	return nil
}

// Reset clears every cached entry. Used when the analyzer version
// changes, since cached streams may have been produced by older parsing
// rules.
func (c *Cache) Reset() error {
	if _, err := c.db.Exec("DELETE FROM files"); err != nil {
		return fmt.Errorf("cache reset: %w", err)
	}
	return nil
}
