package lock

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

var (
	// ErrLockTimeout is returned when acquiring a lock times out.
	ErrLockTimeout = fmt.Errorf("timeout acquiring workspace lock")
	// ErrRootRequired is returned when the workspace root is empty.
	ErrRootRequired = fmt.Errorf("workspace root is required")
	// ErrNilLock is returned when a nil lock handle is provided to Release.
	ErrNilLock = fmt.Errorf("nil lock handle")
)

const (
	// LockFileName is created in the workspace root. The leading dot keeps it
	// out of workspace snapshots.
	LockFileName = ".workspace-editor.lock"

	// shortPollInterval is the interval to sleep when polling for a lock.
	shortPollInterval = 10 * time.Millisecond

	defaultTimeout = 30 * time.Second
)

// Manager serializes batches per workspace. Within the process a buffered
// channel per root acts as the mutex; across processes an flock on
// LockFileName does.
type Manager struct {
	mu      sync.Mutex
	slots   map[string]chan struct{}
	timeout time.Duration
}

// NewManager initializes and returns a new Manager. A non-positive timeout
// selects 30 seconds.
func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Manager{slots: make(map[string]chan struct{}), timeout: timeout}
}

func (m *Manager) slot(root string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.slots[root]
	if !ok {
		ch = make(chan struct{}, 1)
		m.slots[root] = ch
	}
	return ch
}

// Acquire takes the exclusive lock for the workspace at root, waiting at most
// the manager's timeout or until ctx is done.
func (m *Manager) Acquire(ctx context.Context, root string) (*WorkspaceLock, error) {
	if root == "" {
		return nil, ErrRootRequired
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	slot := m.slot(root)
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ErrLockTimeout
	}

	fileLock := flock.New(filepath.Join(root, LockFileName))
	locked, err := fileLock.TryLockContext(ctx, shortPollInterval)
	if err != nil {
		<-slot
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, ErrLockTimeout
		}
		return nil, fmt.Errorf("error acquiring workspace lock for %s: %w", root, err)
	}
	if !locked {
		<-slot
		return nil, ErrLockTimeout
	}

	return &WorkspaceLock{Root: root, AcquiredAt: time.Now(), flock: fileLock, slot: slot}, nil
}

// Release releases both the OS-level and the in-process lock.
func (m *Manager) Release(lock *WorkspaceLock) error {
	if lock == nil {
		return ErrNilLock
	}
	var unlockErr error
	if lock.flock != nil {
		unlockErr = lock.flock.Unlock()
	}
	if lock.slot != nil {
		<-lock.slot
		lock.slot = nil
	}
	return unlockErr
}
