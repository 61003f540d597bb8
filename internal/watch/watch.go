// Package watch processes notes as they land in the import directories.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/trevanbox/internal/checksum"
	"github.com/starford/trevanbox/internal/models"
	"github.com/starford/trevanbox/internal/pipeline"
)

// DefaultDebounce is how long a file must be quiet before it is processed.
const DefaultDebounce = 2 * time.Second

// FileProcessor is the part of the pipeline the watcher drives.
type FileProcessor interface {
	ProcessFile(ctx context.Context, path, sourceDir string, opts pipeline.Options) models.ProcessingResult
}

// WriteHistory reports what an earlier run last wrote to a file.
type WriteHistory interface {
	LastChecksum(file string) (string, error)
}

// Config selects what to watch and how to process it.
type Config struct {
	// Dirs are the import directories; each is watched recursively.
	Dirs     []string
	Debounce time.Duration
	Options  pipeline.Options
	// History, when set, lets the watcher recognise files it wrote before a
	// restart.
	History WriteHistory
}

// Watch runs until ctx is cancelled. Markdown files created or written under
// cfg.Dirs are processed once they have been quiet for cfg.Debounce. Files
// whose content matches what the processor last wrote are skipped, so the
// watcher does not react to its own writes.
//
// New subdirectories are added to the watch list as they appear. An import
// directory missing at startup is picked up once it is created.
func Watch(ctx context.Context, proc FileProcessor, cfg Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	roots := make([]string, 0, len(cfg.Dirs))
	missing := make(map[string]struct{})
	for _, dir := range cfg.Dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return err
		}
		if _, statErr := os.Stat(abs); os.IsNotExist(statErr) {
			// Watch the parent so the directory is noticed when created.
			if addErr := w.Add(filepath.Dir(abs)); addErr != nil {
				logger.Warn("watcher: skipping directory", slog.String("dir", abs), slog.String("error", addErr.Error()))
				continue
			}
			missing[abs] = struct{}{}
			logger.Info("watcher: waiting for directory", slog.String("dir", abs))
			continue
		}
		if err := addDirsRecursive(w, abs); err != nil {
			logger.Warn("watcher: skipping directory", slog.String("dir", abs), slog.String("error", err.Error()))
			continue
		}
		roots = append(roots, abs)
	}

	logger.Info("watcher: started", slog.Any("dirs", roots), slog.Duration("debounce", debounce))

	pending := make(map[string]struct{})
	written := make(map[string]string)

	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func(path string) {
		pending[path] = struct{}{}
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	lastWrite := func(path string) string {
		if sum, ok := written[path]; ok || cfg.History == nil {
			return sum
		}
		sum, err := cfg.History.LastChecksum(path)
		if err != nil {
			logger.Warn("watcher: history lookup failed", slog.String("path", path), slog.String("error", err.Error()))
			return ""
		}
		return sum
	}

	flush := func() {
		for path := range pending {
			delete(pending, path)
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			if last := lastWrite(path); last != "" && last == checksum.Sum(data) {
				logger.Debug("watcher: skipping own write", slog.String("path", path))
				continue
			}
			r := proc.ProcessFile(ctx, path, sourceDir(roots, path), cfg.Options)
			if r.Checksum != "" {
				written[r.File] = r.Checksum
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			flush()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			path := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
					if _, awaited := missing[path]; awaited {
						delete(missing, path)
						roots = append(roots, path)
						logger.Info("watcher: directory appeared", slog.String("dir", path))
					} else if !underRoot(roots, path) || strings.HasPrefix(filepath.Base(path), ".") {
						continue
					}
					if addErr := addDirsRecursive(w, path); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", path),
							slog.String("error", addErr.Error()))
						continue
					}
					// Files may have landed before the watch was in place.
					_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
						if err == nil && !d.IsDir() && isNote(p) {
							schedule(p)
						}
						return nil
					})
					continue
				}
			}

			if !isNote(path) || !underRoot(roots, path) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				schedule(path)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// isNote accepts markdown files. Dotfiles are skipped: editors use them for
// lock and swap files such as ".#note.md".
func isNote(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, ".md") && !strings.HasPrefix(base, ".")
}

func underRoot(roots []string, path string) bool {
	for _, root := range roots {
		if strings.HasPrefix(path, root+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

// sourceDir returns the watched root containing path.
func sourceDir(roots []string, path string) string {
	for _, root := range roots {
		if strings.HasPrefix(path, root+string(os.PathSeparator)) {
			return root
		}
	}
	return filepath.Dir(path)
}

// addDirsRecursive adds root and its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
