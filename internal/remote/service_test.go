package remote

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hearthkin/questlink/internal/cache"
	"github.com/hearthkin/questlink/internal/database"
	"github.com/hearthkin/questlink/internal/kv"
	"github.com/hearthkin/questlink/internal/model"
	"github.com/hearthkin/questlink/internal/pairing"
	"github.com/hearthkin/questlink/internal/relay"
	"github.com/hearthkin/questlink/internal/transport"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestService runs a real relay in-process and points the remote
// service at it.
func setupTestService(t *testing.T) (*Service, *transport.Client) {
	t.Helper()

	store, err := relay.OpenStore("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ts := httptest.NewServer(relay.New(store, discardLogger()).Router())
	t.Cleanup(ts.Close)

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tc := transport.New(ts.URL, cache.New(kv.New(db)), discardLogger())
	return New(tc, time.Minute, discardLogger()), tc
}

type fakeQueuer struct {
	entries []model.QueueEntry
}

func (f *fakeQueuer) Enqueue(method, path string, body []byte, headers map[string]string) (*model.QueueEntry, error) {
	e := model.QueueEntry{Method: method, Path: path, Body: body, Headers: headers}
	f.entries = append(f.entries, e)
	return &e, nil
}

func TestPairingRoundTrip(t *testing.T) {
	s, _ := setupTestService(t)
	ctx := context.Background()

	code, err := s.GenerateCode(ctx, "p1", 0)
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	if len(code.Code) != 6 {
		t.Fatalf("code = %q", code.Code)
	}

	link, err := s.EnterCodeAsChild(ctx, "c1", code.Code)
	if err != nil {
		t.Fatalf("enter code: %v", err)
	}
	if link.Status != model.LinkPendingParent {
		t.Fatalf("status = %s", link.Status)
	}

	pending, err := s.PendingForParent(ctx, "p1")
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %v (err %v)", pending, err)
	}

	if _, err := s.Approve(ctx, "p1", link.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	active, err := s.ActiveForParent(ctx, "p1")
	if err != nil || len(active) != 1 || active[0].Status != model.LinkActive {
		t.Fatalf("active = %v (err %v)", active, err)
	}
	childActive, err := s.ActiveForChild(ctx, "c1")
	if err != nil || len(childActive) != 1 {
		t.Fatalf("child active = %v (err %v)", childActive, err)
	}
}

// Rule errors keep their identity across the wire.
func TestErrorsMapToSentinels(t *testing.T) {
	s, _ := setupTestService(t)
	ctx := context.Background()

	if _, err := s.EnterCodeAsChild(ctx, "c1", "999999"); !errors.Is(err, pairing.ErrInvalidCode) {
		t.Fatalf("unknown code err = %v, want ErrInvalidCode", err)
	}

	code, _ := s.GenerateCode(ctx, "p1", 0)
	link, _ := s.EnterCodeAsChild(ctx, "c1", code.Code)
	if _, err := s.Approve(ctx, "p1", link.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := s.Approve(ctx, "p1", link.ID); !errors.Is(err, pairing.ErrInvalidState) {
		t.Fatalf("second approve err = %v, want ErrInvalidState", err)
	}
	if _, err := s.Approve(ctx, "p2", link.ID); !errors.Is(err, pairing.ErrUnauthorized) {
		t.Fatalf("wrong parent err = %v, want ErrUnauthorized", err)
	}
}

func TestAssignAndUnassign(t *testing.T) {
	s, _ := setupTestService(t)
	ctx := context.Background()

	task, err := s.Assign(ctx, "p1", "c1", "q1", "Tidy room", 10)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	tasks, err := s.TasksForChild(ctx, "c1")
	if err != nil || len(tasks) != 1 || tasks[0].ID != task.ID {
		t.Fatalf("tasks = %v (err %v)", tasks, err)
	}

	if err := s.Unassign(ctx, task.ID); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	tasks, _ = s.TasksForChild(ctx, "c1")
	if len(tasks) != 0 {
		t.Fatalf("tasks after unassign = %v", tasks)
	}
}

func TestOfflineWriteQueues(t *testing.T) {
	s, tc := setupTestService(t)
	ctx := context.Background()

	fq := &fakeQueuer{}
	tc.SetQueuer(fq)
	tc.SetOnline(false)

	err := s.Unassign(ctx, "task-1")
	if !Queued(err) {
		t.Fatalf("offline unassign err = %v, want queued", err)
	}
	if len(fq.entries) != 1 || fq.entries[0].Path != "/api/tasks/task-1/unassign" {
		t.Fatalf("queue entries = %+v", fq.entries)
	}

	// Code generation must not defer; the caller needs the code now.
	if _, err := s.GenerateCode(ctx, "p1", 0); !errors.Is(err, transport.ErrOffline) {
		t.Fatalf("offline generate err = %v, want ErrOffline", err)
	}
}

// Reads degrade to empty lists when the relay is unreachable.
func TestListsDegradeOffline(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tc := transport.New("http://127.0.0.1:1", cache.New(kv.New(db)), discardLogger())
	tc.SetOnline(false)
	s := New(tc, time.Minute, discardLogger())

	links, err := s.PendingForParent(context.Background(), "p1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if links == nil || len(links) != 0 {
		t.Fatalf("links = %#v, want empty slice", links)
	}

	tasks, err := s.TasksForChild(context.Background(), "c1")
	if err != nil || len(tasks) != 0 {
		t.Fatalf("tasks = %v (err %v)", tasks, err)
	}
}

func TestMigrateSnapshotsRemote(t *testing.T) {
	s, _ := setupTestService(t)
	ctx := context.Background()

	if _, err := s.Assign(ctx, "p1", "c1", "q1", "", 0); err != nil {
		t.Fatalf("assign: %v", err)
	}
	updated, err := s.MigrateSnapshots(ctx, map[string]pairing.QuestSnapshot{
		"q1": {Title: "Sweep", Points: 10},
	}, true)
	if err != nil || updated != 1 {
		t.Fatalf("migrate = %d (err %v)", updated, err)
	}
	tasks, _ := s.TasksForChild(ctx, "c1")
	if len(tasks) != 1 || tasks[0].Title != "Sweep" {
		t.Fatalf("tasks after migrate = %v", tasks)
	}
}
