// Package client selects, once per process, how pairing and assignment
// operations execute on this device: against the device's own collections,
// or against the relay server.
package client

import (
	"context"
	"time"

	"github.com/hearthkin/questlink/internal/model"
	"github.com/hearthkin/questlink/internal/pairing"
)

// Service is the one contract both execution modes implement. Local mode
// applies the shared rules to device-local collections; remote mode defers
// to the relay, which applies the same rules server-side.
type Service interface {
	GenerateCode(ctx context.Context, parentID string, ttl time.Duration) (*model.LinkCode, error)
	EnterCodeAsChild(ctx context.Context, childID, code string) (*model.Link, error)

	PendingForParent(ctx context.Context, parentID string) ([]model.Link, error)
	ActiveForParent(ctx context.Context, parentID string) ([]model.Link, error)
	ActiveForChild(ctx context.Context, childID string) ([]model.Link, error)
	Approve(ctx context.Context, parentID, linkID string) (*model.Link, error)
	Decline(ctx context.Context, linkID string) error
	Unlink(ctx context.Context, parentID, childID string) error

	Assign(ctx context.Context, parentID, childID, questID, title string, points int) (*model.AssignedTask, error)
	TasksForChild(ctx context.Context, childID string) ([]model.AssignedTask, error)
	TasksForParentChild(ctx context.Context, parentID, childID string) ([]model.AssignedTask, error)
	Unassign(ctx context.Context, id string) error
	MigrateSnapshots(ctx context.Context, questMap map[string]pairing.QuestSnapshot, onlyMissing bool) (int, error)
}
