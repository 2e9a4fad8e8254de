package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked means another process already holds the lock.
var ErrLocked = errors.New("another dirhook instance is already running")

// Lock keeps a second bridge from notifying the same files twice.
type Lock struct {
	path string
	lock *flock.Flock
}

// Acquire takes the lock at path without blocking.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	l := flock.New(path)
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrLocked, path)
	}
	return &Lock{path: path, lock: l}, nil
}

func (l *Lock) Path() string {
	return l.path
}

// Release unlocks. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
