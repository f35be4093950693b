// Package postgres provides a Postgres-backed payload store for deployments
// that already run the target database server.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"chadograph/internal/cache"
)

// Compile-time contract assertion.
var _ cache.PayloadStore = (*Store)(nil)

const (
	driverName = "pgx"
	defaultDSN = "postgres://localhost/chadograph?sslmode=disable"
)

// Store writes each payload as one row keyed by (entity_type, entity_id).
type Store struct {
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN) and ensures the payloads table exists.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS payloads (
		entity_type TEXT NOT NULL,
		entity_id   TEXT NOT NULL,
		body        BYTEA NOT NULL,
		PRIMARY KEY (entity_type, entity_id)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create payloads table: %w", err)
	}
	return &Store{db: db}, nil
}

// Put upserts the payload row for (typ, id).
func (s *Store) Put(typ cache.EntityType, id string, payload []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO payloads(entity_type, entity_id, body) VALUES($1,$2,$3)
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
		`SELECT body FROM payloads WHERE entity_type = $1 AND entity_id = $2`,
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
