// Package testutil provides shared test helpers for setting up vaults,
// ledgers and processors.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/trevanbox/internal/decode"
	"github.com/starford/trevanbox/internal/inbox"
	"github.com/starford/trevanbox/internal/inference"
	"github.com/starford/trevanbox/internal/ledger"
	"github.com/starford/trevanbox/internal/models"
	"github.com/starford/trevanbox/internal/normalize"
	"github.com/starford/trevanbox/internal/pipeline"
	"github.com/starford/trevanbox/internal/storage"
	"github.com/starford/trevanbox/internal/tags"
)

// Directories is a small import mapping used across tests.
var Directories = []models.DirectoryMapping{
	{Name: "readwise", Tag: "readwise", Type: models.TypeReading},
	{Name: "follow", Tag: "follow", Type: models.TypeArticle},
}

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestLedger creates a temporary ledger database that is automatically closed.
func TestLedger(t *testing.T) *ledger.DB {
	t.Helper()
	db, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a storage provider.
func TestVault(t *testing.T) (string, *storage.FS) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir, true)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// WriteNote creates a note at the vault-relative path rel.
func WriteNote(t *testing.T, vault, rel, content string) string {
	t.Helper()
	p := filepath.Join(vault, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// StubSuggester answers every note with a fixed title (unless one exists),
// an "ai" tag and a fixed description.
type StubSuggester struct{}

// GenerateAll implements pipeline.Suggester.
func (StubSuggester) GenerateAll(_ context.Context, _, title string, existing []string) inference.Suggestion {
	if title == "" {
		title = "生成的标题"
	}
	return inference.Suggestion{Title: title, Tags: append([]string{"AI"}, existing...), Description: "摘要"}
}

// TestProcessor wires a processor over store using Directories.
func TestProcessor(t *testing.T, vault string, store *storage.FS, s pipeline.Suggester, opts ...pipeline.Option) *pipeline.Processor {
	t.Helper()
	logger := QuietLogger()
	provenance := make([]string, 0, len(Directories))
	for _, d := range Directories {
		provenance = append(provenance, d.Tag)
	}
	opts = append([]pipeline.Option{pipeline.WithLogger(logger)}, opts...)
	return pipeline.New(
		pipeline.Config{VaultRoot: vault, Directories: Directories},
		pipeline.Deps{
			Store:      store,
			Decoder:    decode.New(true),
			Normalizer: normalize.New(normalize.Options{Directories: Directories}),
			Suggester:  s,
			Reconciler: tags.NewReconciler(7, provenance),
			Router:     inbox.NewRouter(store, vault, "", logger),
		},
		opts...,
	)
}
