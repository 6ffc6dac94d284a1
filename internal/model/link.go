package model

import "time"

type LinkStatus string

const (
	LinkPendingParent LinkStatus = "pending_parent"
	// LinkPendingChild is reserved for a child-issued code flow. No entry
	// point creates it today.
	LinkPendingChild LinkStatus = "pending_child"
	LinkActive       LinkStatus = "active"
	LinkDeclined     LinkStatus = "declined"
	LinkExpired      LinkStatus = "expired"
)

// Link is the pairing relationship between one parent and one child.
// Links are never physically deleted; unlink reuses the declined state.
type Link struct {
	ID        string     `json:"id"`
	ParentID  string     `json:"parent_id"`
	ChildID   string     `json:"child_id"`
	Status    LinkStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
