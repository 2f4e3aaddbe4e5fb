package jobstate

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrJobLocked indicates another process is already running the same job.
var ErrJobLocked = errors.New("job is already running in another process")

// Lock holds the exclusive run lock for one job.
type Lock struct {
	key  JobKey
	path string
	lock *flock.Flock
}

// Hash returns a short filesystem-safe digest of the key.
func (k JobKey) Hash() string {
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

// LockJob acquires the run lock for key under dir without blocking.
func LockJob(dir string, key JobKey) (*Lock, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	path := filepath.Join(dir, key.Hash()+".lock")
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire job lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s (lock %s)", ErrJobLocked, key, path)
	}
	return &Lock{key: key, path: path, lock: fl}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Release drops the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
