// Package sqlite persists compressed entity payloads in a single SQLite
// table, bounding memory for large experiment graphs at the cost of a disk
// round trip per materialization.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"chadograph/internal/cache"
)

// Compile-time contract assertion.
var _ cache.PayloadStore = (*Store)(nil)

// Store writes each payload as one row keyed by (entity_type, entity_id).
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the payload database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "chadograph-payloads.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS payloads (
		entity_type TEXT NOT NULL,
		entity_id   TEXT NOT NULL,
		body        BLOB NOT NULL,
		PRIMARY KEY (entity_type, entity_id)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create payloads table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Put upserts the payload row for (typ, id).
func (s *Store) Put(typ cache.EntityType, id string, payload []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO payloads(entity_type, entity_id, body) VALUES(?,?,?)
		 ON CONFLICT(entity_type, entity_id) DO UPDATE SET body=excluded.body`,
		string(typ), id, payload,
	)
	if err != nil {
		return fmt.Errorf("upsert payload %s/%s: %w", typ, id, err)
	}
	return nil
}

// Get fetches the payload row for (typ, id).
func (s *Store) Get(typ cache.EntityType, id string) ([]byte, bool, error) {
	var body []byte
	err := s.db.QueryRow(
		`SELECT body FROM payloads WHERE entity_type = ? AND entity_id = ?`,
		string(typ), id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select payload %s/%s: %w", typ, id, err)
	}
	return body, true, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
