// Package relay is the optional backend that makes links, codes, and
// assignments visible across devices. It applies the same pairing rules as
// local mode, over one persisted document.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/hearthkin/questlink/internal/pairing"
)

// Store holds the shared state as a single document, rewritten wholesale
// after every mutation. Mutations are serialized under one mutex, which is
// what makes the approval-time limit re-check atomic within the process.
type Store struct {
	path string

	mu     sync.Mutex
	ledger pairing.Ledger
}

// OpenStore loads the document at path, or starts empty if none exists yet.
// An empty path keeps the store in memory only (tests).
func OpenStore(path string) (*Store, error) {
	s := &Store{path: path}
	if path == "" {
		return s, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	if err := json.Unmarshal(raw, &s.ledger); err != nil {
		return nil, fmt.Errorf("decode store %s: %w", path, err)
	}
	return s, nil
}

// Mutate applies fn to the ledger and rewrites the document if fn succeeds.
func (s *Store) Mutate(fn func(l *pairing.Ledger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(&s.ledger); err != nil {
		return err
	}
	return s.save()
}

// View runs a read-only query against the ledger.
func (s *Store) View(fn func(l *pairing.Ledger)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.ledger)
}

// save rewrites the whole document. Called with the mutex held.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(&s.ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}
