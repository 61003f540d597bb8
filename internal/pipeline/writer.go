package pipeline

import (
	"fmt"

	"github.com/starford/trevanbox/internal/apperr"
	"github.com/starford/trevanbox/internal/checksum"
	"github.com/starford/trevanbox/internal/frontmatter"
	"github.com/starford/trevanbox/internal/models"
	"github.com/starford/trevanbox/internal/storage"
)

// Writer persists normalized notes.
type Writer struct {
	store storage.Provider
}

// NewWriter returns a Writer over store.
func NewWriter(store storage.Provider) *Writer {
	return &Writer{store: store}
}

// Write serializes meta and body and durably replaces path with the result.
// It returns the checksum of the bytes written.
func (w *Writer) Write(path string, meta models.Metadata, body string) (string, error) {
	text, err := frontmatter.Write(meta.Header(), body)
	if err != nil {
		return "", fmt.Errorf("pipeline: serialize %s: %w: %w", path, apperr.ErrPersist, err)
	}
	content := []byte(text)
	if err := w.store.Replace(path, content); err != nil {
		return "", err
	}
	return checksum.Sum(content), nil
}
