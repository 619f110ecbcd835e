// Package sqlitekv provides a SQLite-backed checkpoint medium for
// medrex. It suits single-host deployments where checkpoints must survive
// process restarts without running a database server.
package sqlitekv

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	key        TEXT NOT NULL,
	value      BLOB NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_key ON checkpoints (key, id);
`

// Store is a medrex.KV backed by a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite database at path and ensures
// the checkpoint table exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle and ensures the checkpoint table
// exists.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create checkpoint table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (key, value, created_at) VALUES (?, ?, ?)`,
		key, value, time.Now().UTC(),
	)
	return err
}

func (s *Store) Recent(ctx context.Context, key string, n int) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT value FROM checkpoints WHERE key = ? ORDER BY id DESC LIMIT ?`,
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
		 WHERE key = ? AND id NOT IN (
			SELECT id FROM checkpoints WHERE key = ? ORDER BY id DESC LIMIT ?
		 )`,
		key, key, keep,
	)
	return err
}
