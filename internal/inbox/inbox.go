// Package inbox relocates processed notes into the vault's review queue.
package inbox

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/starford/trevanbox/internal/storage"
)

// DefaultDir is the review queue relative to the vault root.
const DefaultDir = "0-Inbox/pending"

const stampLayout = "20060102_150405"

// Router moves notes into the inbox without overwriting anything there.
type Router struct {
	store  storage.Provider
	dir    string
	now    func() time.Time
	logger *slog.Logger
}

// NewRouter returns a Router targeting vaultRoot/dir. An empty dir means
// DefaultDir.
func NewRouter(store storage.Provider, vaultRoot, dir string, logger *slog.Logger) *Router {
	if dir == "" {
		dir = DefaultDir
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:  store,
		dir:    filepath.Join(vaultRoot, filepath.FromSlash(dir)),
		now:    time.Now,
		logger: logger,
	}
}

// Dir returns the absolute inbox directory.
func (r *Router) Dir() string {
	return r.dir
}

// Move relocates path into the inbox and returns its new location. When the
// base name is taken a timestamp suffix is added before the extension, then
// a counter if that is taken too. On failure the original path is returned
// alongside the error.
func (r *Router) Move(path string) (string, error) {
	target := r.destination(filepath.Base(path))
	if err := r.store.Move(path, target); err != nil {
		r.logger.Error("move to inbox failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return path, fmt.Errorf("inbox: move %s: %w", path, err)
	}
	r.logger.Info("moved to inbox", slog.String("from", path), slog.String("to", target))
	return target, nil
}

func (r *Router) destination(name string) string {
	target := filepath.Join(r.dir, name)
	if !r.store.Exists(target) {
		return target
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext) + "_" + r.now().Format(stampLayout)
	target = filepath.Join(r.dir, stem+ext)
	for n := 1; r.store.Exists(target); n++ {
		target = filepath.Join(r.dir, stem+"_"+strconv.Itoa(n)+ext)
	}
	return target
}
