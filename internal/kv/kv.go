// Package kv is the device-local key-value store. The offline queue, the
// response cache, and (local-only mode) the pairing collections all live
// here under fixed key prefixes.
package kv

import (
	"database/sql"
	"fmt"
	"time"
)

// Pair is one stored record.
type Pair struct {
	Key   string
	Value []byte
}

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the value for key. The second return reports whether the key
// exists.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Put inserts or replaces the value for key.
func (s *Store) Put(key string, value []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// List returns all records under a key prefix, ordered by key ascending.
func (s *Store) List(prefix string) ([]Pair, error) {
	rows, err := s.db.Query(
		`SELECT key, value FROM kv WHERE key >= ? AND key < ? ORDER BY key ASC`,
		prefix, prefix+"\xff",
	)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	defer rows.Close()

	var pairs []Pair
	for rows.Next() {
		var p Pair
		if err := rows.Scan(&p.Key, &p.Value); err != nil {
			return nil, fmt.Errorf("scan pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// DeletePrefix removes every key under the prefix and returns the count.
func (s *Store) DeletePrefix(prefix string) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM kv WHERE key >= ? AND key < ?`,
		prefix, prefix+"\xff",
	)
	if err != nil {
		return 0, fmt.Errorf("delete prefix %q: %w", prefix, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
