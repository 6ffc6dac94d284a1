// Package local runs pairing and assignment operations against the
// device's own collections in the kv store. Without sync there is no
// cross-device coordination; that is accepted, not an oversight.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hearthkin/questlink/internal/kv"
	"github.com/hearthkin/questlink/internal/model"
	"github.com/hearthkin/questlink/internal/pairing"
)

const (
	linksPrefix = "links/"
	codesPrefix = "codes/"
	tasksPrefix = "tasks/"
)

type Service struct {
	mu     sync.Mutex
	kv     *kv.Store
	logger *slog.Logger
	now    func() time.Time
}

func New(store *kv.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{kv: store, logger: logger, now: time.Now}
}

// codeKey orders code records by creation so the newest issue of a reused
// code value wins on load.
func codeKey(createdAt time.Time, code string) string {
	return fmt.Sprintf("%s%020d-%s", codesPrefix, createdAt.UnixNano(), code)
}

func (s *Service) load() (*pairing.Ledger, error) {
	var l pairing.Ledger

	pairs, err := s.kv.List(linksPrefix)
	if err != nil {
		return nil, fmt.Errorf("load links: %w", err)
	}
	for _, p := range pairs {
		var ln model.Link
		if err := json.Unmarshal(p.Value, &ln); err != nil {
			return nil, fmt.Errorf("decode link %q: %w", p.Key, err)
		}
		l.Links = append(l.Links, ln)
	}

	pairs, err = s.kv.List(codesPrefix)
	if err != nil {
		return nil, fmt.Errorf("load codes: %w", err)
	}
	for _, p := range pairs {
		var c model.LinkCode
		if err := json.Unmarshal(p.Value, &c); err != nil {
			return nil, fmt.Errorf("decode code %q: %w", p.Key, err)
		}
		l.Codes = append(l.Codes, c)
	}

	pairs, err = s.kv.List(tasksPrefix)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	for _, p := range pairs {
		var t model.AssignedTask
		if err := json.Unmarshal(p.Value, &t); err != nil {
			return nil, fmt.Errorf("decode task %q: %w", p.Key, err)
		}
		l.Tasks = append(l.Tasks, t)
	}

	return &l, nil
}

// persist writes the full collections back. Records are never removed by
// the rules, only rewritten, so rewriting every key is sufficient.
func (s *Service) persist(l *pairing.Ledger) error {
	for _, ln := range l.Links {
		raw, err := json.Marshal(ln)
		if err != nil {
			return fmt.Errorf("encode link: %w", err)
		}
		if err := s.kv.Put(linksPrefix+ln.ID, raw); err != nil {
			return err
		}
	}
	for _, c := range l.Codes {
		raw, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode code: %w", err)
		}
		if err := s.kv.Put(codeKey(c.CreatedAt, c.Code), raw); err != nil {
			return err
		}
	}
	for _, t := range l.Tasks {
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode task: %w", err)
		}
		if err := s.kv.Put(tasksPrefix+t.ID, raw); err != nil {
			return err
		}
	}
	return nil
}

// mutate loads the ledger, applies fn, and persists the result when fn
// succeeds.
func (s *Service) mutate(fn func(l *pairing.Ledger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(l); err != nil {
		return err
	}
	return s.persist(l)
}

// view loads the ledger for a read-only query.
func (s *Service) view(fn func(l *pairing.Ledger)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.load()
	if err != nil {
		return err
	}
	fn(l)
	return nil
}

func (s *Service) GenerateCode(_ context.Context, parentID string, ttl time.Duration) (*model.LinkCode, error) {
	var out *model.LinkCode
	err := s.mutate(func(l *pairing.Ledger) error {
		lc, err := l.GenerateCode(parentID, ttl, s.now())
		if err != nil {
			return err
		}
		out = lc
		return nil
	})
	return out, err
}

func (s *Service) EnterCodeAsChild(_ context.Context, childID, code string) (*model.Link, error) {
	var out *model.Link
	err := s.mutate(func(l *pairing.Ledger) error {
		link, err := l.EnterCodeAsChild(childID, code, s.now())
		if err != nil {
			return err
		}
		out = link
		return nil
	})
	return out, err
}

func (s *Service) PendingForParent(_ context.Context, parentID string) ([]model.Link, error) {
	var out []model.Link
	err := s.view(func(l *pairing.Ledger) { out = l.PendingForParent(parentID) })
	return out, err
}

func (s *Service) ActiveForParent(_ context.Context, parentID string) ([]model.Link, error) {
	var out []model.Link
	err := s.view(func(l *pairing.Ledger) { out = l.ActiveForParent(parentID) })
	return out, err
}

func (s *Service) ActiveForChild(_ context.Context, childID string) ([]model.Link, error) {
	var out []model.Link
	err := s.view(func(l *pairing.Ledger) { out = l.ActiveForChild(childID) })
	return out, err
}

func (s *Service) Approve(_ context.Context, parentID, linkID string) (*model.Link, error) {
	var out *model.Link
	err := s.mutate(func(l *pairing.Ledger) error {
		link, err := l.Approve(parentID, linkID, s.now())
		if err != nil {
			return err
		}
		out = link
		return nil
	})
	return out, err
}

func (s *Service) Decline(_ context.Context, linkID string) error {
	return s.mutate(func(l *pairing.Ledger) error {
		return l.Decline(linkID, s.now())
	})
}

func (s *Service) Unlink(_ context.Context, parentID, childID string) error {
	return s.mutate(func(l *pairing.Ledger) error {
		l.Unlink(parentID, childID, s.now())
		return nil
	})
}

func (s *Service) Assign(_ context.Context, parentID, childID, questID, title string, points int) (*model.AssignedTask, error) {
	var out *model.AssignedTask
	err := s.mutate(func(l *pairing.Ledger) error {
		task, err := l.Assign(parentID, childID, questID, title, points, s.now())
		if err != nil {
			return err
		}
		out = task
		return nil
	})
	return out, err
}

func (s *Service) TasksForChild(_ context.Context, childID string) ([]model.AssignedTask, error) {
	var out []model.AssignedTask
	err := s.view(func(l *pairing.Ledger) { out = l.TasksForChild(childID) })
	return out, err
}

func (s *Service) TasksForParentChild(_ context.Context, parentID, childID string) ([]model.AssignedTask, error) {
	var out []model.AssignedTask
	err := s.view(func(l *pairing.Ledger) { out = l.TasksForParentChild(parentID, childID) })
	return out, err
}

func (s *Service) Unassign(_ context.Context, id string) error {
	return s.mutate(func(l *pairing.Ledger) error {
		return l.Unassign(id)
	})
}

func (s *Service) MigrateSnapshots(_ context.Context, questMap map[string]pairing.QuestSnapshot, onlyMissing bool) (int, error) {
	var updated int
	err := s.mutate(func(l *pairing.Ledger) error {
		updated = l.MigrateSnapshots(questMap, onlyMissing)
		return nil
	})
	return updated, err
}
