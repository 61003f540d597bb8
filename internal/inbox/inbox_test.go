package inbox

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/trevanbox/internal/storage"
)

func newRouter(t *testing.T) (*Router, string) {
	t.Helper()
	vault := t.TempDir()
	store, err := storage.NewFS(vault, false)
	if err != nil {
		t.Fatal(err)
	}
	r := NewRouter(store, vault, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	return r, vault
}

func touch(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestMove_CreatesInbox(t *testing.T) {
	r, vault := newRouter(t)
	src := filepath.Join(vault, "readwise", "note.md")
	touch(t, src, "a")

	got, err := r.Move(src)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	want := filepath.Join(vault, "0-Inbox", "pending", "note.md")
	if got != want {
		t.Errorf("Move = %q, want %q", got, want)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source still present")
	}
}

func TestMove_Collisions(t *testing.T) {
	r, vault := newRouter(t)
	touch(t, filepath.Join(r.Dir(), "note.md"), "existing")

	src := filepath.Join(vault, "follow", "note.md")
	touch(t, src, "new")
	got, err := r.Move(src)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if filepath.Base(got) != "note_20240101_120000.md" {
		t.Errorf("first collision -> %q", filepath.Base(got))
	}

	touch(t, src, "newer")
	got, err = r.Move(src)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if filepath.Base(got) != "note_20240101_120000_1.md" {
		t.Errorf("second collision -> %q", filepath.Base(got))
	}
	data, _ := os.ReadFile(filepath.Join(r.Dir(), "note.md"))
	if string(data) != "existing" {
		t.Error("existing inbox file was overwritten")
	}
}

func TestMove_FailureReturnsOriginal(t *testing.T) {
	r, vault := newRouter(t)
	src := filepath.Join(vault, "missing.md")
	got, err := r.Move(src)
	if err == nil {
		t.Fatal("expected error")
	}
	if got != src {
		t.Errorf("path = %q, want original", got)
	}
}
