package model

import (
	"encoding/json"
	"time"
)

// QueueEntry is a write call that could not be delivered while offline,
// persisted for later replay.
type QueueEntry struct {
	ID        string            `json:"id"`
	Method    string            `json:"method"`
	Path      string            `json:"path"`
	Body      json.RawMessage   `json:"body,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Attempts  int               `json:"attempts"`
}
