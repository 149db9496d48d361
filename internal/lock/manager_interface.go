package lock

import (
	"context"
	"time"

	"github.com/gofrs/flock"
)

// WorkspaceLock represents a held workspace lock.
type WorkspaceLock struct {
	Root       string
	AcquiredAt time.Time
	flock      *flock.Flock
	slot       chan struct{}
}

// Locker defines the methods a workspace lock manager should implement.
// Acquire returns a handle which must be provided back to Release.
type Locker interface {
	Acquire(ctx context.Context, root string) (*WorkspaceLock, error)
	Release(lock *WorkspaceLock) error
}

var _ Locker = (*Manager)(nil)
