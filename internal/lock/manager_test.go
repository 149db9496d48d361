package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestManager_AcquireRelease(t *testing.T) {
	root := t.TempDir()
	m := NewManager(time.Second)

	l, err := m.Acquire(context.Background(), root)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if l.Root != root {
		t.Errorf("lock root = %q, want %q", l.Root, root)
	}
	if _, err := os.Stat(filepath.Join(root, LockFileName)); err != nil {
		t.Errorf("expected lock file to exist: %v", err)
	}
	if err := m.Release(l); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	// Re-acquire after release must succeed immediately.
	l2, err := m.Acquire(context.Background(), root)
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	_ = m.Release(l2)
}

func TestManager_AcquireTimeout(t *testing.T) {
	root := t.TempDir()
	m := NewManager(50 * time.Millisecond)

	held, err := m.Acquire(context.Background(), root)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer m.Release(held)

	start := time.Now()
	_, err = m.Acquire(context.Background(), root)
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took too long: %s", elapsed)
	}
}

func TestManager_CrossManagerExclusion(t *testing.T) {
	root := t.TempDir()
	first := NewManager(time.Second)
	second := NewManager(50 * time.Millisecond)

	held, err := first.Acquire(context.Background(), root)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, err := second.Acquire(context.Background(), root); !errors.Is(err, ErrLockTimeout) {
		t.Errorf("expected the file lock to block a second manager, got %v", err)
	}
	if err := first.Release(held); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	l, err := second.Acquire(context.Background(), root)
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	_ = second.Release(l)
}

func TestManager_SerializesHolders(t *testing.T) {
	root := t.TempDir()
	m := NewManager(5 * time.Second)

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := m.Acquire(context.Background(), root)
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			if err := m.Release(l); err != nil {
				t.Errorf("Release failed: %v", err)
			}
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Errorf("expected at most one holder at a time, saw %d", maxInside)
	}
}

func TestManager_Errors(t *testing.T) {
	m := NewManager(time.Second)
	if _, err := m.Acquire(context.Background(), ""); !errors.Is(err, ErrRootRequired) {
		t.Errorf("expected ErrRootRequired, got %v", err)
	}
	if err := m.Release(nil); !errors.Is(err, ErrNilLock) {
		t.Errorf("expected ErrNilLock, got %v", err)
	}
}

func TestManager_ContextCancelled(t *testing.T) {
	root := t.TempDir()
	m := NewManager(5 * time.Second)
	held, err := m.Acquire(context.Background(), root)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer m.Release(held)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Acquire(ctx, root); !errors.Is(err, ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout for a cancelled context, got %v", err)
	}
}
