// Package pairing holds the one shared rule set for link codes, links, and
// task assignments. The embedded local store and the relay server both apply
// these rules through a Ledger, so limits and legal transitions cannot drift
// between the two.
package pairing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hearthkin/questlink/internal/model"
)

const (
	// ParentMaxChildren is the most active links a parent may hold.
	ParentMaxChildren = 5
	// ChildMaxParents is the most active links a child may hold.
	ChildMaxParents = 2

	// DefaultCodeTTL applies when the caller does not supply one.
	DefaultCodeTTL = 15 * time.Minute

	// codeRerolls bounds collision avoidance when issuing a code.
	codeRerolls = 10
)

// QuestSnapshot carries the title/points pair used to repair assignment
// snapshots.
type QuestSnapshot struct {
	Title  string `json:"title"`
	Points int    `json:"points"`
}

// Ledger is the in-memory state the rules operate on. Hosts load it from
// their own persistence, apply operations, and persist the result. Methods
// take the current time explicitly so expiry stays a pure predicate.
type Ledger struct {
	Links []model.Link         `json:"links"`
	Codes []model.LinkCode     `json:"linkCodes"`
	Tasks []model.AssignedTask `json:"assignedTasks"`

	// newCode is swappable for tests; defaults to crypto/rand.
	newCode func() (string, error)
}

func (l *Ledger) codeFn() func() (string, error) {
	if l.newCode != nil {
		return l.newCode
	}
	return randomCode
}

func (l *Ledger) activeCount(match func(model.Link) bool) int {
	n := 0
	for _, ln := range l.Links {
		if ln.Status == model.LinkActive && match(ln) {
			n++
		}
	}
	return n
}

func (l *Ledger) activeLinksForParent(parentID string) int {
	return l.activeCount(func(ln model.Link) bool { return ln.ParentID == parentID })
}

func (l *Ledger) activeLinksForChild(childID string) int {
	return l.activeCount(func(ln model.Link) bool { return ln.ChildID == childID })
}

// findCode scans newest-first: a code value can recur once its earlier
// issue is no longer live, and the latest record is the one in play.
func (l *Ledger) findCode(code string) *model.LinkCode {
	for i := len(l.Codes) - 1; i >= 0; i-- {
		if l.Codes[i].Code == code {
			return &l.Codes[i]
		}
	}
	return nil
}

func (l *Ledger) findLink(id string) *model.Link {
	for i := range l.Links {
		if l.Links[i].ID == id {
			return &l.Links[i]
		}
	}
	return nil
}

// GenerateCode issues a parent pairing code. The parent's active-link limit
// is enforced before anything is persisted.
func (l *Ledger) GenerateCode(parentID string, ttl time.Duration, now time.Time) (*model.LinkCode, error) {
	parentID = strings.TrimSpace(parentID)
	if parentID == "" {
		return nil, fmt.Errorf("%w: parent id is required", ErrValidation)
	}
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	if l.activeLinksForParent(parentID) >= ParentMaxChildren {
		return nil, fmt.Errorf("%w: parent already has %d active links", ErrLimitExceeded, ParentMaxChildren)
	}

	gen := l.codeFn()
	var code string
	for i := 0; i <= codeRerolls; i++ {
		c, err := gen()
		if err != nil {
			return nil, err
		}
		if existing := l.findCode(c); existing != nil && existing.StatusAt(now) == model.CodeActive {
			// Collision with a live code; re-roll.
			continue
		}
		code = c
		break
	}
	if code == "" {
		return nil, fmt.Errorf("could not issue a unique code after %d attempts", codeRerolls)
	}

	lc := model.LinkCode{
		Code:      code,
		IssuedBy:  model.IssuedByParent,
		ParentID:  parentID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Status:    model.CodeActive,
	}
	l.Codes = append(l.Codes, lc)
	return &lc, nil
}

// ValidateCode looks up a code and checks that it is still usable. Expiry is
// evaluated lazily against now; the stored record is not rewritten.
func (l *Ledger) ValidateCode(code string, now time.Time) (*model.LinkCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: code is required", ErrValidation)
	}
	lc := l.findCode(code)
	if lc == nil {
		return nil, ErrInvalidCode
	}
	switch lc.StatusAt(now) {
	case model.CodeActive:
		c := *lc
		return &c, nil
	case model.CodeExpired:
		return nil, fmt.Errorf("%w: code expired", ErrCodeInactive)
	default:
		return nil, fmt.Errorf("%w: code already used", ErrCodeInactive)
	}
}

// EnterCodeAsChild redeems a parent-issued code for a child. On success the
// code is consumed and a link is created in pending_parent, awaiting the
// parent's approval.
func (l *Ledger) EnterCodeAsChild(childID, code string, now time.Time) (*model.Link, error) {
	childID = strings.TrimSpace(childID)
	if childID == "" {
		return nil, fmt.Errorf("%w: child id is required", ErrValidation)
	}
	if l.activeLinksForChild(childID) >= ChildMaxParents {
		return nil, fmt.Errorf("%w: child already has %d active links", ErrLimitExceeded, ChildMaxParents)
	}
	if _, err := l.ValidateCode(code, now); err != nil {
		return nil, err
	}
	lc := l.findCode(strings.TrimSpace(code))
	if lc.IssuedBy != model.IssuedByParent {
		return nil, ErrWrongRole
	}

	link := model.Link{
		ID:        uuid.NewString(),
		ParentID:  lc.ParentID,
		ChildID:   childID,
		Status:    model.LinkPendingParent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.Links = append(l.Links, link)

	consumedAt := now
	lc.Status = model.CodeConsumed
	lc.UsedByID = childID
	lc.ConsumedAt = &consumedAt

	return &link, nil
}

// Approve moves a pending link to active. Both actors' limits are re-checked
// here, not only at issuance, closing the race between concurrent pairings.
func (l *Ledger) Approve(parentID, linkID string, now time.Time) (*model.Link, error) {
	link := l.findLink(linkID)
	if link == nil {
		return nil, fmt.Errorf("%w: link %s", ErrNotFound, linkID)
	}
	if link.ParentID != parentID {
		return nil, fmt.Errorf("%w: link belongs to another parent", ErrUnauthorized)
	}
	if link.Status != model.LinkPendingParent {
		return nil, fmt.Errorf("%w: link is %s", ErrInvalidState, link.Status)
	}
	if l.activeLinksForParent(link.ParentID) >= ParentMaxChildren {
		return nil, fmt.Errorf("%w: parent already has %d active links", ErrLimitExceeded, ParentMaxChildren)
	}
	if l.activeLinksForChild(link.ChildID) >= ChildMaxParents {
		return nil, fmt.Errorf("%w: child already has %d active links", ErrLimitExceeded, ChildMaxParents)
	}

	link.Status = model.LinkActive
	link.UpdatedAt = now
	ln := *link
	return &ln, nil
}

// Decline moves a link to declined. Declining an already-declined link is a
// no-op, not an error.
func (l *Ledger) Decline(linkID string, now time.Time) error {
	link := l.findLink(linkID)
	if link == nil {
		return fmt.Errorf("%w: link %s", ErrNotFound, linkID)
	}
	if link.Status == model.LinkDeclined {
		return nil
	}
	link.Status = model.LinkDeclined
	link.UpdatedAt = now
	return nil
}

// Unlink declines the active link between the pair, if one exists. It
// reports whether anything changed.
func (l *Ledger) Unlink(parentID, childID string, now time.Time) bool {
	for i := range l.Links {
		ln := &l.Links[i]
		if ln.ParentID == parentID && ln.ChildID == childID && ln.Status == model.LinkActive {
			ln.Status = model.LinkDeclined
			ln.UpdatedAt = now
			return true
		}
	}
	return false
}

func (l *Ledger) filterLinks(match func(model.Link) bool) []model.Link {
	out := []model.Link{}
	for _, ln := range l.Links {
		if match(ln) {
			out = append(out, ln)
		}
	}
	return out
}

// PendingForParent returns links awaiting this parent's approval.
func (l *Ledger) PendingForParent(parentID string) []model.Link {
	return l.filterLinks(func(ln model.Link) bool {
		return ln.ParentID == parentID && ln.Status == model.LinkPendingParent
	})
}

// ActiveForParent returns this parent's active links.
func (l *Ledger) ActiveForParent(parentID string) []model.Link {
	return l.filterLinks(func(ln model.Link) bool {
		return ln.ParentID == parentID && ln.Status == model.LinkActive
	})
}

// ActiveForChild returns this child's active links.
func (l *Ledger) ActiveForChild(childID string) []model.Link {
	return l.filterLinks(func(ln model.Link) bool {
		return ln.ChildID == childID && ln.Status == model.LinkActive
	})
}

// Assign records a quest assignment, snapshotting title and points by value.
// Any prior active assignment for the same (child, quest) pair is deactivated
// first, so at most one stays active.
func (l *Ledger) Assign(parentID, childID, questID, title string, points int, now time.Time) (*model.AssignedTask, error) {
	if strings.TrimSpace(parentID) == "" || strings.TrimSpace(childID) == "" || strings.TrimSpace(questID) == "" {
		return nil, fmt.Errorf("%w: parent, child, and quest ids are required", ErrValidation)
	}
	for i := range l.Tasks {
		t := &l.Tasks[i]
		if t.ChildID == childID && t.QuestID == questID && t.Active {
			t.Active = false
		}
	}
	task := model.AssignedTask{
		ID:         uuid.NewString(),
		ParentID:   parentID,
		ChildID:    childID,
		QuestID:    questID,
		Title:      title,
		Points:     points,
		AssignedAt: now,
		Active:     true,
	}
	l.Tasks = append(l.Tasks, task)
	return &task, nil
}

func (l *Ledger) filterTasks(match func(model.AssignedTask) bool) []model.AssignedTask {
	out := []model.AssignedTask{}
	for _, t := range l.Tasks {
		if match(t) {
			out = append(out, t)
		}
	}
	return out
}

// TasksForChild returns the child's active assignments.
func (l *Ledger) TasksForChild(childID string) []model.AssignedTask {
	return l.filterTasks(func(t model.AssignedTask) bool {
		return t.ChildID == childID && t.Active
	})
}

// TasksForParentChild returns the pair's active assignments.
func (l *Ledger) TasksForParentChild(parentID, childID string) []model.AssignedTask {
	return l.filterTasks(func(t model.AssignedTask) bool {
		return t.ParentID == parentID && t.ChildID == childID && t.Active
	})
}

// Unassign deactivates an assignment. Unassigning an already-inactive
// assignment is a no-op.
func (l *Ledger) Unassign(id string) error {
	for i := range l.Tasks {
		if l.Tasks[i].ID == id {
			l.Tasks[i].Active = false
			return nil
		}
	}
	return fmt.Errorf("%w: assignment %s", ErrNotFound, id)
}

// MigrateSnapshots repairs title/points snapshots from the quest map. With
// onlyMissing set, only assignments with an empty title or zero points are
// rewritten. Active flags are never touched. Returns the number of
// assignments updated.
func (l *Ledger) MigrateSnapshots(questMap map[string]QuestSnapshot, onlyMissing bool) int {
	updated := 0
	for i := range l.Tasks {
		t := &l.Tasks[i]
		snap, ok := questMap[t.QuestID]
		if !ok {
			continue
		}
		if onlyMissing && t.Title != "" && t.Points != 0 {
			continue
		}
		t.Title = snap.Title
		t.Points = snap.Points
		updated++
	}
	return updated
}
