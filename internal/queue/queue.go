// Package queue persists write calls that could not be delivered and
// replays them with a bounded retry budget once the device is back online.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hearthkin/questlink/internal/kv"
	"github.com/hearthkin/questlink/internal/model"
)

const (
	keyPrefix = "queue/"
	// maxAttempts is the delivery budget per entry; an entry that fails this
	// many retryable attempts is dropped and counted as failed.
	maxAttempts = 3
)

// Result summarizes one flush.
type Result struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Sender performs a single delivery attempt for a queued entry.
type Sender interface {
	Send(ctx context.Context, entry model.QueueEntry) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, entry model.QueueEntry) error

func (f SenderFunc) Send(ctx context.Context, entry model.QueueEntry) error {
	return f(ctx, entry)
}

type Queue struct {
	kv        *kv.Store
	sender    Sender
	online    func() bool
	retryable func(error) bool
	logger    *slog.Logger
	now       func() time.Time

	// flushing serializes flushes: connectivity flapping must not run two
	// replays of the same entry concurrently.
	flushing atomic.Bool
}

func New(store *kv.Store, sender Sender, online func() bool, retryable func(error) bool, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		kv:        store,
		sender:    sender,
		online:    online,
		retryable: retryable,
		logger:    logger,
		now:       time.Now,
	}
}

// key orders entries most-recent-first under the queue prefix.
func key(createdAt time.Time, id string) string {
	return fmt.Sprintf("%s%020d-%s", keyPrefix, math.MaxInt64-createdAt.UnixNano(), id)
}

// Enqueue appends a deferred write call. If the device is already online, a
// flush is kicked off opportunistically.
func (q *Queue) Enqueue(method, path string, body []byte, headers map[string]string) (*model.QueueEntry, error) {
	entry := model.QueueEntry{
		ID:        uuid.NewString(),
		Method:    method,
		Path:      path,
		Body:      body,
		Headers:   headers,
		CreatedAt: q.now(),
		Attempts:  0,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal queue entry: %w", err)
	}
	if err := q.kv.Put(key(entry.CreatedAt, entry.ID), raw); err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	q.logger.Info("queued mutation", "method", method, "path", path, "id", entry.ID)

	if q.online != nil && q.online() {
		go q.Flush(context.Background())
	}
	return &entry, nil
}

// Entries returns the pending entries, most recent first.
func (q *Queue) Entries() ([]model.QueueEntry, error) {
	pairs, err := q.kv.List(keyPrefix)
	if err != nil {
		return nil, err
	}
	entries := make([]model.QueueEntry, 0, len(pairs))
	for _, p := range pairs {
		var e model.QueueEntry
		if err := json.Unmarshal(p.Value, &e); err != nil {
			return nil, fmt.Errorf("decode queue entry %q: %w", p.Key, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Len returns the number of pending entries.
func (q *Queue) Len() (int, error) {
	pairs, err := q.kv.List(keyPrefix)
	if err != nil {
		return 0, err
	}
	return len(pairs), nil
}

// Flush replays pending entries. While offline it is a no-op. A successful
// delivery removes the entry; a retryable failure re-queues it with an
// incremented attempt count until the budget runs out; anything else drops
// it immediately. Concurrent calls coalesce: only one flush runs at a time.
func (q *Queue) Flush(ctx context.Context) (Result, error) {
	if q.online != nil && !q.online() {
		return Result{}, nil
	}
	if !q.flushing.CompareAndSwap(false, true) {
		return Result{}, nil
	}
	defer q.flushing.Store(false)

	pairs, err := q.kv.List(keyPrefix)
	if err != nil {
		return Result{}, fmt.Errorf("flush: %w", err)
	}

	var res Result
	for _, p := range pairs {
		var entry model.QueueEntry
		if err := json.Unmarshal(p.Value, &entry); err != nil {
			q.logger.Warn("dropping unreadable queue entry", "key", p.Key, "error", err)
			q.kv.Delete(p.Key)
			res.Failed++
			continue
		}

		sendErr := q.sender.Send(ctx, entry)
		if sendErr == nil {
			if err := q.kv.Delete(p.Key); err != nil {
				return res, fmt.Errorf("remove delivered entry: %w", err)
			}
			res.Processed++
			continue
		}

		if q.retryable != nil && q.retryable(sendErr) {
			entry.Attempts++
			if entry.Attempts >= maxAttempts {
				q.logger.Warn("dropping queued mutation after retry budget",
					"id", entry.ID, "method", entry.Method, "path", entry.Path, "error", sendErr)
				q.kv.Delete(p.Key)
				res.Failed++
				continue
			}
			raw, err := json.Marshal(entry)
			if err != nil {
				return res, fmt.Errorf("re-queue entry: %w", err)
			}
			if err := q.kv.Put(p.Key, raw); err != nil {
				return res, fmt.Errorf("re-queue entry: %w", err)
			}
			continue
		}

		q.logger.Warn("dropping queued mutation",
			"id", entry.ID, "method", entry.Method, "path", entry.Path, "error", sendErr)
		q.kv.Delete(p.Key)
		res.Failed++
	}
	return res, nil
}
