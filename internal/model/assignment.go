package model

import "time"

// AssignedTask maps a parent-owned quest to a child. Title and points are
// copied by value at assignment time; later edits or deletion of the quest
// definition must not alter historical assignments.
type AssignedTask struct {
	ID         string    `json:"id"`
	ParentID   string    `json:"parent_id"`
	ChildID    string    `json:"child_id"`
	QuestID    string    `json:"quest_id"`
	Title      string    `json:"title"`
	Points     int       `json:"points"`
	AssignedAt time.Time `json:"assigned_at"`
	Active     bool      `json:"active"`
}
