package backup

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/hearthkin/questlink/internal/database"
	"github.com/hearthkin/questlink/internal/kv"
	"github.com/hearthkin/questlink/internal/local"
)

func testStore(t *testing.T) *kv.Store {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return kv.New(db)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSealOpenRoundTrip(t *testing.T) {
	plaintext := []byte(`{"hello":"world"}`)

	blob, err := Seal(plaintext, "hunter2")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(blob, []byte("hello")) {
		t.Fatal("ciphertext leaks plaintext")
	}

	got, err := Open(blob, "hunter2")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("got %q", got)
	}
}

func TestOpenWrongPassphrase(t *testing.T) {
	blob, err := Seal([]byte("secret"), "right")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := Open(blob, "wrong"); err == nil {
		t.Fatal("want error for wrong passphrase")
	}
}

func TestOpenTruncated(t *testing.T) {
	if _, err := Open([]byte("short"), "x"); err == nil {
		t.Fatal("want error for truncated archive")
	}
}

// Export from one device, import onto another; the pairing data carries over.
func TestExportImportAcrossDevices(t *testing.T) {
	ctx := context.Background()
	src := testStore(t)
	svc := local.New(src, discardLogger())

	code, err := svc.GenerateCode(ctx, "p1", 0)
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	link, err := svc.EnterCodeAsChild(ctx, "c1", code.Code)
	if err != nil {
		t.Fatalf("enter code: %v", err)
	}
	if _, err := svc.Approve(ctx, "p1", link.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := svc.Assign(ctx, "p1", "c1", "q1", "Tidy room", 10); err != nil {
		t.Fatalf("assign: %v", err)
	}

	blob, err := Export(src, "hunter2")
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := testStore(t)
	n, err := Import(dst, blob, "hunter2")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n == 0 {
		t.Fatal("import restored no records")
	}

	restored := local.New(dst, discardLogger())
	active, err := restored.ActiveForParent(ctx, "p1")
	if err != nil || len(active) != 1 || active[0].ID != link.ID {
		t.Fatalf("active = %v (err %v)", active, err)
	}
	tasks, err := restored.TasksForChild(ctx, "c1")
	if err != nil || len(tasks) != 1 || tasks[0].Title != "Tidy room" {
		t.Fatalf("tasks = %v (err %v)", tasks, err)
	}
}

// Import replaces existing data under the covered prefixes.
func TestImportReplaces(t *testing.T) {
	ctx := context.Background()
	src := testStore(t)
	if _, err := local.New(src, discardLogger()).Assign(ctx, "p1", "c1", "q1", "Keep", 5); err != nil {
		t.Fatalf("assign: %v", err)
	}
	blob, err := Export(src, "pw")
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := testStore(t)
	stale := local.New(dst, discardLogger())
	if _, err := stale.Assign(ctx, "p9", "c9", "q9", "Drop", 1); err != nil {
		t.Fatalf("assign stale: %v", err)
	}

	if _, err := Import(dst, blob, "pw"); err != nil {
		t.Fatalf("import: %v", err)
	}
	restored := local.New(dst, discardLogger())
	if tasks, _ := restored.TasksForChild(ctx, "c9"); len(tasks) != 0 {
		t.Fatalf("stale tasks survived: %v", tasks)
	}
	if tasks, _ := restored.TasksForChild(ctx, "c1"); len(tasks) != 1 {
		t.Fatalf("restored tasks = %v", tasks)
	}
}
