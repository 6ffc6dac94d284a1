// Package remote runs pairing and assignment operations against the relay
// server. Reads are cached and degrade to empty results when the relay is
// unreachable; writes queue while offline and surface as "queued".
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/hearthkin/questlink/internal/model"
	"github.com/hearthkin/questlink/internal/pairing"
	"github.com/hearthkin/questlink/internal/transport"
)

// defaultReadTTL is the freshness window for list reads when the caller
// does not configure one.
const defaultReadTTL = 10 * time.Second

type Service struct {
	tc      *transport.Client
	readTTL time.Duration
	logger  *slog.Logger
}

func New(tc *transport.Client, readTTL time.Duration, logger *slog.Logger) *Service {
	if readTTL <= 0 {
		readTTL = defaultReadTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{tc: tc, readTTL: readTTL, logger: logger}
}

// listLinks swallows remote failure: an unreachable relay yields an empty
// list, not an error, so screens keep rendering.
func (s *Service) listLinks(ctx context.Context, path string) ([]model.Link, error) {
	var links []model.Link
	if err := s.tc.Get(ctx, path, s.readTTL, &links); err != nil {
		s.logger.Warn("link list unavailable", "path", path, "error", err)
		return []model.Link{}, nil
	}
	if links == nil {
		links = []model.Link{}
	}
	return links, nil
}

func (s *Service) listTasks(ctx context.Context, path string) ([]model.AssignedTask, error) {
	var tasks []model.AssignedTask
	if err := s.tc.Get(ctx, path, s.readTTL, &tasks); err != nil {
		s.logger.Warn("task list unavailable", "path", path, "error", err)
		return []model.AssignedTask{}, nil
	}
	if tasks == nil {
		tasks = []model.AssignedTask{}
	}
	return tasks, nil
}

type generateCodeResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Service) GenerateCode(ctx context.Context, parentID string, ttl time.Duration) (*model.LinkCode, error) {
	body := map[string]any{"parentId": parentID}
	if ttl > 0 {
		body["ttlMinutes"] = int(ttl / time.Minute)
	}
	// The caller needs the code to show it; generating is never queued.
	var resp generateCodeResponse
	if err := s.tc.Post(ctx, "/api/link-codes", body, &resp, false); err != nil {
		return nil, err
	}
	return &model.LinkCode{
		Code:      resp.Code,
		IssuedBy:  model.IssuedByParent,
		ParentID:  parentID,
		ExpiresAt: resp.ExpiresAt,
		Status:    model.CodeActive,
	}, nil
}

type enterCodeResponse struct {
	Pending bool   `json:"pending"`
	LinkID  string `json:"linkId"`
}

func (s *Service) EnterCodeAsChild(ctx context.Context, childID, code string) (*model.Link, error) {
	var resp enterCodeResponse
	err := s.tc.Post(ctx, "/api/links/enter-code", map[string]string{
		"childId": childID,
		"code":    code,
	}, &resp, false)
	if err != nil {
		return nil, err
	}
	s.tc.InvalidateCache("/api/parents/")
	return &model.Link{
		ID:       resp.LinkID,
		ChildID:  childID,
		Status:   model.LinkPendingParent,
	}, nil
}

func (s *Service) PendingForParent(ctx context.Context, parentID string) ([]model.Link, error) {
	return s.listLinks(ctx, fmt.Sprintf("/api/parents/%s/links/pending", url.PathEscape(parentID)))
}

func (s *Service) ActiveForParent(ctx context.Context, parentID string) ([]model.Link, error) {
	return s.listLinks(ctx, fmt.Sprintf("/api/parents/%s/links/active", url.PathEscape(parentID)))
}

func (s *Service) ActiveForChild(ctx context.Context, childID string) ([]model.Link, error) {
	return s.listLinks(ctx, fmt.Sprintf("/api/children/%s/links/active", url.PathEscape(childID)))
}

func (s *Service) Approve(ctx context.Context, parentID, linkID string) (*model.Link, error) {
	err := s.tc.Post(ctx, fmt.Sprintf("/api/links/%s/approve", url.PathEscape(linkID)),
		map[string]string{"parentId": parentID}, nil, true)
	if err != nil {
		return nil, err
	}
	s.tc.InvalidateCache("/api/parents/")
	return &model.Link{ID: linkID, ParentID: parentID, Status: model.LinkActive}, nil
}

func (s *Service) Decline(ctx context.Context, linkID string) error {
	err := s.tc.Post(ctx, fmt.Sprintf("/api/links/%s/decline", url.PathEscape(linkID)), nil, nil, true)
	if err != nil {
		return err
	}
	s.tc.InvalidateCache("/api/parents/")
	return nil
}

func (s *Service) Unlink(ctx context.Context, parentID, childID string) error {
	err := s.tc.Post(ctx, "/api/links/unlink", map[string]string{
		"parentId": parentID,
		"childId":  childID,
	}, nil, true)
	if err != nil {
		return err
	}
	s.tc.InvalidateCache("/api/parents/")
	return nil
}

func (s *Service) Assign(ctx context.Context, parentID, childID, questID, title string, points int) (*model.AssignedTask, error) {
	var task model.AssignedTask
	err := s.tc.Post(ctx, "/api/tasks/assign", map[string]any{
		"parentId": parentID,
		"childId":  childID,
		"questId":  questID,
		"title":    title,
		"points":   points,
	}, &task, true)
	if err != nil {
		return nil, err
	}
	s.tc.InvalidateCache("/api/children/")
	s.tc.InvalidateCache("/api/parents/")
	return &task, nil
}

func (s *Service) TasksForChild(ctx context.Context, childID string) ([]model.AssignedTask, error) {
	return s.listTasks(ctx, fmt.Sprintf("/api/children/%s/tasks", url.PathEscape(childID)))
}

func (s *Service) TasksForParentChild(ctx context.Context, parentID, childID string) ([]model.AssignedTask, error) {
	return s.listTasks(ctx, fmt.Sprintf("/api/parents/%s/children/%s/tasks",
		url.PathEscape(parentID), url.PathEscape(childID)))
}

func (s *Service) Unassign(ctx context.Context, id string) error {
	err := s.tc.Post(ctx, fmt.Sprintf("/api/tasks/%s/unassign", url.PathEscape(id)), nil, nil, true)
	if err != nil {
		return err
	}
	s.tc.InvalidateCache("/api/children/")
	s.tc.InvalidateCache("/api/parents/")
	return nil
}

type migrateResponse struct {
	Updated int `json:"updated"`
}

func (s *Service) MigrateSnapshots(ctx context.Context, questMap map[string]pairing.QuestSnapshot, onlyMissing bool) (int, error) {
	var resp migrateResponse
	// The caller wants the touched count back; this is a maintenance call,
	// not a queued mutation.
	err := s.tc.Post(ctx, "/api/assignments/migrate", map[string]any{
		"questMap":    questMap,
		"onlyMissing": onlyMissing,
	}, &resp, false)
	if err != nil {
		return 0, err
	}
	s.tc.InvalidateCache("/api/children/")
	s.tc.InvalidateCache("/api/parents/")
	return resp.Updated, nil
}

// Queued reports whether an error is the deferred-success signal from the
// transport layer.
func Queued(err error) bool {
	return errors.Is(err, transport.ErrQueued)
}
