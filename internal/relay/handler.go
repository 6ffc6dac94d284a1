package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hearthkin/questlink/internal/model"
	"github.com/hearthkin/questlink/internal/pairing"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorKind maps a rule error to the HTTP status and kind the clients
// branch on. Messages are display-only.
func errorKind(err error) (int, string) {
	switch {
	case errors.Is(err, pairing.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, pairing.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, pairing.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, pairing.ErrLimitExceeded):
		return http.StatusConflict, "limit_exceeded"
	case errors.Is(err, pairing.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, pairing.ErrInvalidCode):
		return http.StatusNotFound, "invalid_code"
	case errors.Is(err, pairing.ErrCodeInactive):
		return http.StatusGone, "code_inactive"
	case errors.Is(err, pairing.ErrWrongRole):
		return http.StatusBadRequest, "wrong_role"
	default:
		return http.StatusInternalServerError, ""
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, kind := errorKind(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": kind})
}

type generateCodeRequest struct {
	ParentID   string `json:"parentId"`
	TTLMinutes int    `json:"ttlMinutes"`
}

func (s *Server) handleGenerateCode(w http.ResponseWriter, r *http.Request) {
	var req generateCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON", "kind": "validation"})
		return
	}

	var code *model.LinkCode
	err := s.store.Mutate(func(l *pairing.Ledger) error {
		var err error
		code, err = l.GenerateCode(req.ParentID, time.Duration(req.TTLMinutes)*time.Minute, time.Now().UTC())
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"code":      code.Code,
		"expiresAt": code.ExpiresAt,
	})
}

type enterCodeRequest struct {
	ChildID string `json:"childId"`
	Code    string `json:"code"`
}

func (s *Server) handleEnterCode(w http.ResponseWriter, r *http.Request) {
	var req enterCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON", "kind": "validation"})
		return
	}

	var link *model.Link
	err := s.store.Mutate(func(l *pairing.Ledger) error {
		var err error
		link, err = l.EnterCodeAsChild(req.ChildID, req.Code, time.Now().UTC())
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"pending": true,
		"linkId":  link.ID,
	})
}

func (s *Server) handlePendingLinks(w http.ResponseWriter, r *http.Request) {
	var links []model.Link
	s.store.View(func(l *pairing.Ledger) {
		links = l.PendingForParent(r.PathValue("id"))
	})
	writeJSON(w, http.StatusOK, links)
}

func (s *Server) handleActiveLinks(w http.ResponseWriter, r *http.Request) {
	var links []model.Link
	s.store.View(func(l *pairing.Ledger) {
		links = l.ActiveForParent(r.PathValue("id"))
	})
	writeJSON(w, http.StatusOK, links)
}

func (s *Server) handleChildActiveLinks(w http.ResponseWriter, r *http.Request) {
	var links []model.Link
	s.store.View(func(l *pairing.Ledger) {
		links = l.ActiveForChild(r.PathValue("id"))
	})
	writeJSON(w, http.StatusOK, links)
}

type approveRequest struct {
	ParentID string `json:"parentId"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON", "kind": "validation"})
		return
	}

	err := s.store.Mutate(func(l *pairing.Ledger) error {
		_, err := l.Approve(req.ParentID, r.PathValue("id"), time.Now().UTC())
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	err := s.store.Mutate(func(l *pairing.Ledger) error {
		return l.Decline(r.PathValue("id"), time.Now().UTC())
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type unlinkRequest struct {
	ParentID string `json:"parentId"`
	ChildID  string `json:"childId"`
}

func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) {
	var req unlinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON", "kind": "validation"})
		return
	}

	err := s.store.Mutate(func(l *pairing.Ledger) error {
		l.Unlink(req.ParentID, req.ChildID, time.Now().UTC())
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type assignRequest struct {
	ParentID string `json:"parentId"`
	ChildID  string `json:"childId"`
	QuestID  string `json:"questId"`
	Title    string `json:"title"`
	Points   int    `json:"points"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON", "kind": "validation"})
		return
	}

	var task *model.AssignedTask
	err := s.store.Mutate(func(l *pairing.Ledger) error {
		var err error
		task, err = l.Assign(req.ParentID, req.ChildID, req.QuestID, req.Title, req.Points, time.Now().UTC())
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleChildTasks(w http.ResponseWriter, r *http.Request) {
	var tasks []model.AssignedTask
	s.store.View(func(l *pairing.Ledger) {
		tasks = l.TasksForChild(r.PathValue("id"))
	})
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleParentChildTasks(w http.ResponseWriter, r *http.Request) {
	var tasks []model.AssignedTask
	s.store.View(func(l *pairing.Ledger) {
		tasks = l.TasksForParentChild(r.PathValue("p"), r.PathValue("c"))
	})
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleUnassign(w http.ResponseWriter, r *http.Request) {
	err := s.store.Mutate(func(l *pairing.Ledger) error {
		return l.Unassign(r.PathValue("id"))
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type migrateRequest struct {
	QuestMap    map[string]pairing.QuestSnapshot `json:"questMap"`
	OnlyMissing bool                             `json:"onlyMissing"`
}

func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	var req migrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON", "kind": "validation"})
		return
	}

	var updated int
	err := s.store.Mutate(func(l *pairing.Ledger) error {
		updated = l.MigrateSnapshots(req.QuestMap, req.OnlyMissing)
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"version":   Version,
		"endpoints": endpoints,
	})
}
