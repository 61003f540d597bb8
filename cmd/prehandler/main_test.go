package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/trevanbox/internal/ledger"
	"github.com/starford/trevanbox/internal/models"
	"github.com/starford/trevanbox/internal/testutil"
)

func setupVault(t *testing.T) (vault, configPath string) {
	t.Helper()
	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"qwen3:8b"}]}`))
		case "/api/generate":
			_, _ = w.Write([]byte(`{"response":"标题：[命令行笔记]\n标签：[cli]\n描述：[简述]","done":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ollama.Close)

	vault = t.TempDir()
	configPath = filepath.Join(t.TempDir(), "config.toml")
	content := fmt.Sprintf(`[app]
log_format = "text"

[vault]
path = %q
inbox_dir = "0-Inbox/pending"

[ollama]
base_url = %q
model = "qwen3:8b"
timeout = 5
retry = 0

[processing]
max_file_size = "1MB"
backup_enabled = true
encoding_detection = true
`, vault, ollama.URL)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return vault, configPath
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := rootCommand()
	cmd.Writer = &buf
	cmd.ErrWriter = &buf
	err := cmd.Run(context.Background(), append([]string{"prehandler", "--log-level", "error"}, args...))
	return buf.String(), err
}

func TestStatusCommand(t *testing.T) {
	_, cfg := setupVault(t)
	out, err := runCLI(t, "-c", cfg, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "[OK] Model: qwen3:8b") {
		t.Errorf("output = %q", out)
	}
}

func TestProcessAndHistoryCommands(t *testing.T) {
	vault, cfg := setupVault(t)
	note := testutil.WriteNote(t, vault, "readwise/book.md", "读书笔记正文")

	out, err := runCLI(t, "-c", cfg, "process", "--move-to-inbox", "readwise", "zotero")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	for _, want := range []string{"[MOVE] 0-Inbox/pending/book.md (命令行笔记)", "Summary", "│ Directory", "Succeeded", "zotero", "Total"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if _, err := os.Stat(note); !os.IsNotExist(err) {
		t.Error("note should have been moved")
	}
	if _, err := os.Stat(filepath.Join(vault, "0-Inbox", "pending", "book.md")); err != nil {
		t.Errorf("note not in inbox: %v", err)
	}

	out, err = runCLI(t, "-c", cfg, "history", "--limit", "5")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "moved") || !strings.Contains(out, "命令行笔记") {
		t.Errorf("history output:\n%s", out)
	}
}

func TestProcessCommand_DryRunLeavesFile(t *testing.T) {
	vault, cfg := setupVault(t)
	note := testutil.WriteNote(t, vault, "manual/x.md", "body")

	out, err := runCLI(t, "-c", cfg, "--vault", vault, "process", "--dry-run", "manual")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !strings.Contains(out, "Summary (dry run)") || !strings.Contains(out, "preview: 命令行笔记") {
		t.Errorf("output:\n%s", out)
	}
	data, _ := os.ReadFile(note)
	if string(data) != "body" {
		t.Errorf("dry run modified the note: %q", data)
	}
}

func TestProcessCommand_RequiresDirectory(t *testing.T) {
	_, cfg := setupVault(t)
	if _, err := runCLI(t, "-c", cfg, "process"); err == nil {
		t.Error("expected error without directories")
	}
}

func TestPlaceholderCommands(t *testing.T) {
	for _, name := range []string{"title", "tags", "summary"} {
		out, err := runCLI(t, name, "note.md")
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !strings.Contains(out, "not implemented yet") {
			t.Errorf("%s output = %q", name, out)
		}
	}
}

func TestLoadConfig_RejectsBadLogLevel(t *testing.T) {
	_, cfg := setupVault(t)
	var buf bytes.Buffer
	cmd := rootCommand()
	cmd.Writer = &buf
	err := cmd.Run(context.Background(), []string{"prehandler", "-c", cfg, "--log-level", "loud", "status"})
	if err == nil || !strings.Contains(err.Error(), "log-level") {
		t.Errorf("err = %v", err)
	}
}

func TestSummaryTable(t *testing.T) {
	reports := []models.DirectoryReport{
		{Dir: "/v/readwise", Results: []models.ProcessingResult{{Success: true, Moved: true}, {Success: false}}},
		{Dir: "/v/zotero"},
	}
	out := summaryTable("/v", reports)
	for _, want := range []string{"╭", "│ Directory", "Succeeded", "readwise", "Total"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "SUCCEEDED") {
		t.Errorf("header should keep its casing:\n%s", out)
	}

	single := summaryTable("/v", reports[:1])
	if strings.Contains(single, "Total") {
		t.Errorf("single directory should have no total row:\n%s", single)
	}
}

func TestHistoryTable(t *testing.T) {
	out := historyTable("/v", []ledger.Entry{
		{File: "/v/a.md", Success: true, Title: "笔记", Tags: []string{"go"}, ProcessedAt: time.Now()},
	})
	for _, want := range []string{"│ When", "a.md", "笔记", "go"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestHistoryRows(t *testing.T) {
	rows := historyRows("/v", []ledger.Entry{
		{File: "/v/a/b.md", Success: false, Kind: "persist", ProcessedAt: time.Now()},
		{File: "/v/c.md", Success: true, DryRun: true, Tags: []string{"x", "y"}, ProcessedAt: time.Now()},
	})
	if rows[0][1] != "a/b.md" || rows[0][2] != "failed: persist" {
		t.Errorf("row 0 = %v", rows[0])
	}
	if rows[1][2] != "dry run" || rows[1][4] != "x, y" {
		t.Errorf("row 1 = %v", rows[1])
	}
}
