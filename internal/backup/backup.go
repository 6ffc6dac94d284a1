// Package backup exports a device's pairing data as an encrypted archive
// and restores it onto another (or a wiped) device.
package backup

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hearthkin/questlink/internal/kv"
)

const archiveVersion = 1

// dataPrefixes are the record families included in an archive. The response
// cache and the offline queue are device-transient and stay out.
var dataPrefixes = []string{"links/", "codes/", "tasks/"}

type archive struct {
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exportedAt"`
	Records    []record  `json:"records"`
}

type record struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Export snapshots links, codes, and assignments and seals them under the
// passphrase.
func Export(store *kv.Store, passphrase string) ([]byte, error) {
	a := archive{Version: archiveVersion, ExportedAt: time.Now().UTC()}
	for _, prefix := range dataPrefixes {
		pairs, err := store.List(prefix)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", prefix, err)
		}
		for _, p := range pairs {
			a.Records = append(a.Records, record{Key: p.Key, Value: json.RawMessage(p.Value)})
		}
	}

	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode archive: %w", err)
	}
	return Seal(raw, passphrase)
}

// Import decrypts an archive and replaces the device's pairing data with
// its contents. Existing records under the covered prefixes are dropped
// first so the restore is a faithful copy, not a merge.
func Import(store *kv.Store, blob []byte, passphrase string) (int, error) {
	raw, err := Open(blob, passphrase)
	if err != nil {
		return 0, err
	}

	var a archive
	if err := json.Unmarshal(raw, &a); err != nil {
		return 0, fmt.Errorf("decode archive: %w", err)
	}
	if a.Version != archiveVersion {
		return 0, fmt.Errorf("unsupported archive version %d", a.Version)
	}

	for _, prefix := range dataPrefixes {
		if _, err := store.DeletePrefix(prefix); err != nil {
			return 0, fmt.Errorf("clear %s: %w", prefix, err)
		}
	}
	for _, rec := range a.Records {
		if err := store.Put(rec.Key, []byte(rec.Value)); err != nil {
			return 0, fmt.Errorf("restore %s: %w", rec.Key, err)
		}
	}
	return len(a.Records), nil
}
