// Package pgkv provides a PostgreSQL-backed checkpoint medium for medrex,
// for deployments where jobs may restart on a different host than the one
// that wrote the checkpoint.
package pgkv

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	id         BIGSERIAL PRIMARY KEY,
	key        TEXT NOT NULL,
	value      BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_key ON checkpoints (key, id);
`

// Store is a medrex.KV backed by a PostgreSQL database.
type Store struct {
	db *sql.DB
}

// Open connects with the given DSN and ensures the checkpoint table exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle and ensures the checkpoint table
// exists.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create checkpoint table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (key, value) VALUES ($1, $2)`,
		key, value,
	)
	return err
}

func (s *Store) Recent(ctx context.Context, key string, n int) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT value FROM checkpoints WHERE key = $1 ORDER BY id DESC LIMIT $2`,
		key, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) Prune(ctx context.Context, key string, keep int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints
		 WHERE key = $1 AND id NOT IN (
			SELECT id FROM checkpoints WHERE key = $1 ORDER BY id DESC LIMIT $2
		 )`,
		key, keep,
	)
	return err
}
