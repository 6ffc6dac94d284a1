// Package cache memoizes idempotent read responses for a caller-supplied
// freshness window.
package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hearthkin/questlink/internal/kv"
)

const keyPrefix = "cache/"

type entry struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt time.Time       `json:"expires_at"`
}

type Cache struct {
	kv  *kv.Store
	now func() time.Time
}

func New(store *kv.Store) *Cache {
	return &Cache{kv: store, now: time.Now}
}

// Get returns the cached value for key if it has not expired. Expired
// entries are removed on read; nothing sweeps the cache in the background.
func (c *Cache) Get(key string) ([]byte, bool, error) {
	raw, ok, err := c.kv.Get(keyPrefix + key)
	if err != nil || !ok {
		return nil, false, err
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		// Unreadable entry; drop it and report a miss.
		c.kv.Delete(keyPrefix + key)
		return nil, false, nil
	}
	if !c.now().Before(e.ExpiresAt) {
		if err := c.kv.Delete(keyPrefix + key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return e.Value, true, nil
}

// Set stores value under key for the given freshness window.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) error {
	e := entry{Value: value, ExpiresAt: c.now().Add(ttl)}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	return c.kv.Put(keyPrefix+key, raw)
}

// Invalidate removes every cached entry whose key starts with prefix.
func (c *Cache) Invalidate(prefix string) error {
	if _, err := c.kv.DeletePrefix(keyPrefix + prefix); err != nil {
		return fmt.Errorf("invalidate %q: %w", prefix, err)
	}
	return nil
}
