// Package lock guards a vault against concurrent prehandler processes.
package lock

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/starford/trevanbox/internal/apperr"
)

// FileName is the lock file created at the vault root.
const FileName = ".prehandler.lock"

// VaultLock is an exclusive, non-blocking lock on a vault.
type VaultLock struct {
	path string
	lock *flock.Flock
}

// Acquire takes the lock for vaultRoot. A second holder gets apperr.ErrLocked.
func Acquire(vaultRoot string) (*VaultLock, error) {
	path := filepath.Join(vaultRoot, FileName)
	l := flock.New(path)
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock: %s: %w", path, apperr.ErrLocked)
	}
	return &VaultLock{path: path, lock: l}, nil
}

// Path returns the lock file location.
func (v *VaultLock) Path() string {
	return v.path
}

// Release drops the lock. The lock file is left in place.
func (v *VaultLock) Release() error {
	if err := v.lock.Unlock(); err != nil {
		return fmt.Errorf("lock: release: %w", err)
	}
	return nil
}
