package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/hearthkin/questlink/internal/model"
)

func newTestServer(t *testing.T) (*httptest.Server, *Store) {
	t.Helper()
	store, err := OpenStore("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	srv := New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, store
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

// pairUp runs the full code flow and returns the active link id.
func pairUp(t *testing.T, ts *httptest.Server, parentID, childID string) string {
	t.Helper()

	var codeResp struct {
		Code string `json:"code"`
	}
	status := doJSON(t, http.MethodPost, ts.URL+"/api/link-codes",
		map[string]any{"parentId": parentID}, &codeResp)
	if status != http.StatusCreated {
		t.Fatalf("generate code: status %d", status)
	}
	if len(codeResp.Code) != 6 {
		t.Fatalf("code = %q, want 6 digits", codeResp.Code)
	}

	var enterResp struct {
		Pending bool   `json:"pending"`
		LinkID  string `json:"linkId"`
	}
	status = doJSON(t, http.MethodPost, ts.URL+"/api/links/enter-code",
		map[string]any{"childId": childID, "code": codeResp.Code}, &enterResp)
	if status != http.StatusCreated {
		t.Fatalf("enter code: status %d", status)
	}
	if !enterResp.Pending || enterResp.LinkID == "" {
		t.Fatalf("enter code response = %+v", enterResp)
	}

	status = doJSON(t, http.MethodPost, ts.URL+"/api/links/"+enterResp.LinkID+"/approve",
		map[string]any{"parentId": parentID}, nil)
	if status != http.StatusOK {
		t.Fatalf("approve: status %d", status)
	}
	return enterResp.LinkID
}

func TestPairingFlow(t *testing.T) {
	ts, _ := newTestServer(t)

	linkID := pairUp(t, ts, "parent-1", "child-1")

	var active []model.Link
	doJSON(t, http.MethodGet, ts.URL+"/api/parents/parent-1/links/active", nil, &active)
	if len(active) != 1 || active[0].ID != linkID || active[0].Status != model.LinkActive {
		t.Fatalf("active links = %+v", active)
	}

	var childActive []model.Link
	doJSON(t, http.MethodGet, ts.URL+"/api/children/child-1/links/active", nil, &childActive)
	if len(childActive) != 1 || childActive[0].ID != linkID {
		t.Fatalf("child active links = %+v", childActive)
	}

	var pending []model.Link
	doJSON(t, http.MethodGet, ts.URL+"/api/parents/parent-1/links/pending", nil, &pending)
	if len(pending) != 0 {
		t.Fatalf("pending after approve = %+v", pending)
	}
}

func TestApproveTwiceConflicts(t *testing.T) {
	ts, _ := newTestServer(t)
	linkID := pairUp(t, ts, "parent-1", "child-1")

	var errResp struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	status := doJSON(t, http.MethodPost, ts.URL+"/api/links/"+linkID+"/approve",
		map[string]any{"parentId": "parent-1"}, &errResp)
	if status != http.StatusConflict {
		t.Fatalf("second approve: status %d", status)
	}
	if errResp.Kind != "invalid_state" {
		t.Fatalf("kind = %q, want invalid_state", errResp.Kind)
	}
}

func TestEnterCodeErrors(t *testing.T) {
	ts, _ := newTestServer(t)

	var errResp struct {
		Kind string `json:"kind"`
	}
	status := doJSON(t, http.MethodPost, ts.URL+"/api/links/enter-code",
		map[string]any{"childId": "child-1", "code": "000000"}, &errResp)
	if status != http.StatusNotFound || errResp.Kind != "invalid_code" {
		t.Fatalf("unknown code: status %d kind %q", status, errResp.Kind)
	}

	var codeResp struct {
		Code string `json:"code"`
	}
	doJSON(t, http.MethodPost, ts.URL+"/api/link-codes",
		map[string]any{"parentId": "parent-1"}, &codeResp)
	doJSON(t, http.MethodPost, ts.URL+"/api/links/enter-code",
		map[string]any{"childId": "child-1", "code": codeResp.Code}, nil)

	status = doJSON(t, http.MethodPost, ts.URL+"/api/links/enter-code",
		map[string]any{"childId": "child-2", "code": codeResp.Code}, &errResp)
	if status != http.StatusGone || errResp.Kind != "code_inactive" {
		t.Fatalf("consumed code: status %d kind %q", status, errResp.Kind)
	}
}

func TestParentLinkLimit(t *testing.T) {
	ts, _ := newTestServer(t)

	for i := 0; i < 5; i++ {
		pairUp(t, ts, "parent-1", fmt.Sprintf("child-%d", i))
	}

	var errResp struct {
		Kind string `json:"kind"`
	}
	status := doJSON(t, http.MethodPost, ts.URL+"/api/link-codes",
		map[string]any{"parentId": "parent-1"}, &errResp)
	if status != http.StatusConflict || errResp.Kind != "limit_exceeded" {
		t.Fatalf("sixth code: status %d kind %q", status, errResp.Kind)
	}
}

func TestAssignmentFlow(t *testing.T) {
	ts, _ := newTestServer(t)
	pairUp(t, ts, "parent-1", "child-1")

	var task model.AssignedTask
	status := doJSON(t, http.MethodPost, ts.URL+"/api/tasks/assign", map[string]any{
		"parentId": "parent-1",
		"childId":  "child-1",
		"questId":  "quest-1",
		"title":    "Feed the cat",
		"points":   15,
	}, &task)
	if status != http.StatusCreated {
		t.Fatalf("assign: status %d", status)
	}
	if task.Title != "Feed the cat" || task.Points != 15 || !task.Active {
		t.Fatalf("task = %+v", task)
	}

	// Reassigning the same quest supersedes the old assignment.
	var second model.AssignedTask
	doJSON(t, http.MethodPost, ts.URL+"/api/tasks/assign", map[string]any{
		"parentId": "parent-1",
		"childId":  "child-1",
		"questId":  "quest-1",
		"title":    "Feed the cat",
		"points":   20,
	}, &second)

	var tasks []model.AssignedTask
	doJSON(t, http.MethodGet, ts.URL+"/api/children/child-1/tasks", nil, &tasks)
	if len(tasks) != 1 || tasks[0].ID != second.ID || tasks[0].Points != 20 {
		t.Fatalf("tasks after reassign = %+v", tasks)
	}

	status = doJSON(t, http.MethodPost, ts.URL+"/api/tasks/"+second.ID+"/unassign", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("unassign: status %d", status)
	}
	doJSON(t, http.MethodGet, ts.URL+"/api/children/child-1/tasks", nil, &tasks)
	if len(tasks) != 0 {
		t.Fatalf("tasks after unassign = %+v", tasks)
	}
}

func TestMigrateSnapshots(t *testing.T) {
	ts, _ := newTestServer(t)
	pairUp(t, ts, "parent-1", "child-1")

	var task model.AssignedTask
	doJSON(t, http.MethodPost, ts.URL+"/api/tasks/assign", map[string]any{
		"parentId": "parent-1", "childId": "child-1", "questId": "quest-1",
		"title": "", "points": 0,
	}, &task)

	var migrated struct {
		Updated int `json:"updated"`
	}
	status := doJSON(t, http.MethodPost, ts.URL+"/api/assignments/migrate", map[string]any{
		"questMap": map[string]any{
			"quest-1": map[string]any{"title": "Sweep", "points": 10},
		},
		"onlyMissing": true,
	}, &migrated)
	if status != http.StatusOK || migrated.Updated != 1 {
		t.Fatalf("migrate: status %d updated %d", status, migrated.Updated)
	}

	var tasks []model.AssignedTask
	doJSON(t, http.MethodGet, ts.URL+"/api/children/child-1/tasks", nil, &tasks)
	if tasks[0].Title != "Sweep" || tasks[0].Points != 10 {
		t.Fatalf("task after migrate = %+v", tasks[0])
	}
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	var health struct {
		OK        bool     `json:"ok"`
		Version   string   `json:"version"`
		Endpoints []string `json:"endpoints"`
	}
	status := doJSON(t, http.MethodGet, ts.URL+"/api/health", nil, &health)
	if status != http.StatusOK || !health.OK || health.Version != Version {
		t.Fatalf("health = %+v (status %d)", health, status)
	}
	if len(health.Endpoints) == 0 {
		t.Fatal("health endpoints empty")
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.json")

	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	srv := New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Router())
	linkID := pairUp(t, ts, "parent-1", "child-1")
	ts.Close()

	reopened, err := OpenStore(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	srv2 := New(reopened, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts2 := httptest.NewServer(srv2.Router())
	defer ts2.Close()

	var active []model.Link
	doJSON(t, http.MethodGet, ts2.URL+"/api/parents/parent-1/links/active", nil, &active)
	if len(active) != 1 || active[0].ID != linkID {
		t.Fatalf("active links after reopen = %+v", active)
	}
}
