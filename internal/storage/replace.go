package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/starford/trevanbox/internal/apperr"
	"github.com/starford/trevanbox/internal/checksum"
)

// BackupSuffix is appended to a file's path for its pre-write copy.
const BackupSuffix = ".bak"

// ReplaceOptions controls Replace.
type ReplaceOptions struct {
	// Backup copies the current file aside first and restores it if any
	// later step fails.
	Backup bool

	swap     func(oldpath, newpath string) error
	readBack func(name string) ([]byte, error)
}

func (o ReplaceOptions) withDefaults() ReplaceOptions {
	if o.swap == nil {
		o.swap = os.Rename
	}
	if o.readBack == nil {
		o.readBack = os.ReadFile
	}
	return o
}

// Replace durably swaps the contents of path for content:
// backup → temp sibling → fsync → rename → verify → drop backup.
// On a failure after the backup exists the backup is moved back over path.
// A failed restore is joined into the returned error.
func Replace(path string, content []byte, opts ReplaceOptions) error {
	opts = opts.withDefaults()

	backupPath := path + BackupSuffix
	hasBackup := false
	if opts.Backup {
		switch err := copyFile(path, backupPath); {
		case err == nil:
			hasBackup = true
		case errors.Is(err, fs.ErrNotExist):
			// Nothing to protect yet.
		default:
			return persistErr("backup", err)
		}
	}

	if err := writeAndSwap(path, content, opts); err != nil {
		if hasBackup {
			if rerr := os.Rename(backupPath, path); rerr != nil {
				return errors.Join(err, persistErr("restore backup", rerr))
			}
		}
		return err
	}

	if hasBackup {
		_ = os.Remove(backupPath)
	}
	return nil
}

func writeAndSwap(path string, content []byte, opts ReplaceOptions) error {
	dir := filepath.Dir(path)
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return persistErr("create temp", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return persistErr("write temp", err)
	}
	if err := tmp.Sync(); err != nil {
		return persistErr("fsync", err)
	}
	if err := tmp.Close(); err != nil {
		return persistErr("close temp", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return persistErr("chmod temp", err)
	}
	if err := opts.swap(tmpName, path); err != nil {
		return persistErr("rename", err)
	}
	success = true

	written, err := opts.readBack(path)
	if err != nil {
		return persistErr("verify", err)
	}
	if checksum.Sum(written) != checksum.Sum(content) {
		return persistErr("verify", errors.New("content mismatch after rename"))
	}
	return nil
}

func persistErr(op string, err error) error {
	return fmt.Errorf("storage: %s: %w: %w", op, apperr.ErrPersist, err)
}

// copyFile streams src to dst, keeping the source permissions.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	if err := out.Sync(); err != nil {
		return err
	}
	return out.Close()
}
