package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/starford/trevanbox/internal/apperr"
	"github.com/starford/trevanbox/internal/checksum"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root    string // absolute path to the vault directory
	replace ReplaceOptions
}

// NewFS creates a provider for the vault at root. The directory must exist.
func NewFS(root string, backup bool) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs, replace: ReplaceOptions{Backup: backup}}, nil
}

// Root returns the absolute vault path.
func (f *FS) Root() string {
	return f.root
}

// Resolve maps an externally supplied path onto the vault and rejects any
// result that escapes it. Relative paths are taken from the vault root.
func (f *FS) Resolve(p string) (string, error) {
	if p == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(p)
	if !filepath.IsAbs(cleaned) {
		cleaned = filepath.Join(f.root, cleaned)
	}
	abs, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes vault root: %s", p)
	}
	return abs, nil
}

// List walks dir and returns every .md file beneath it. Hidden directories
// such as .trash and .obsidian are skipped.
func (f *FS) List(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: list %s: %w", dir, apperr.ErrTraversal)
		}
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: list %s: not a directory: %w", dir, apperr.ErrTraversal)
	}

	var out []string
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if p != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// Read returns the raw bytes of a file.
func (f *FS) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w: %w", path, apperr.ErrRead, err)
	}
	return data, nil
}

// Size returns the file size in bytes.
func (f *FS) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("storage: stat %s: %w: %w", path, apperr.ErrRead, err)
	}
	return info.Size(), nil
}

// Replace durably overwrites path, see Replace.
func (f *FS) Replace(path string, content []byte) error {
	return Replace(path, content, f.replace)
}

// Move renames a file, falling back to copy-and-remove across devices.
func (f *FS) Move(oldPath, newPath string) error {
	if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir for move: %w", err)
	}
	err := os.Rename(oldPath, newPath)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("storage: move: %w", err)
	}

	if err := copyFile(oldPath, newPath); err != nil {
		_ = os.Remove(newPath)
		return fmt.Errorf("storage: move copy: %w", err)
	}
	src, err := os.ReadFile(oldPath)
	if err != nil {
		return fmt.Errorf("storage: move verify: %w", err)
	}
	dst, err := os.ReadFile(newPath)
	if err != nil || checksum.Sum(src) != checksum.Sum(dst) {
		_ = os.Remove(newPath)
		return fmt.Errorf("storage: move verify: copy does not match source")
	}
	if err := os.Remove(oldPath); err != nil {
		return fmt.Errorf("storage: move remove source: %w", err)
	}
	return nil
}

// Exists reports whether path exists.
func (f *FS) Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
