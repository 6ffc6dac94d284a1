package model

import "time"

type CodeIssuer string

const (
	IssuedByParent CodeIssuer = "parent"
	IssuedByChild  CodeIssuer = "child"
)

type CodeStatus string

const (
	CodeActive   CodeStatus = "active"
	CodeConsumed CodeStatus = "consumed"
	CodeExpired  CodeStatus = "expired"
)

// LinkCode is a short-lived, single-use numeric token that bootstraps a Link.
// Codes are kept after use as an audit trail.
type LinkCode struct {
	Code       string     `json:"code"`
	IssuedBy   CodeIssuer `json:"issued_by"`
	ParentID   string     `json:"parent_id,omitempty"`
	ChildID    string     `json:"child_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Status     CodeStatus `json:"status"`
	UsedByID   string     `json:"used_by_id,omitempty"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

// IsExpired reports whether a timestamp has passed. Expiry is evaluated
// lazily wherever a code is read; nothing sweeps codes in the background.
func IsExpired(expiresAt, now time.Time) bool {
	return !now.Before(expiresAt)
}

// StatusAt returns the code's effective status at the given instant.
// A stored active code past its expiry reads as expired without ever
// being rewritten.
func (c *LinkCode) StatusAt(now time.Time) CodeStatus {
	if c.Status == CodeActive && IsExpired(c.ExpiresAt, now) {
		return CodeExpired
	}
	return c.Status
}
