package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/openreward/reward-distributor/internal/adapter"
	"github.com/openreward/reward-distributor/internal/domain"
)

// lockKey identifies one entitlement record across the three tables
type lockKey struct {
	kind domain.EntitlementKind
	id   uint64
}

type lockEntry struct {
	ch   chan struct{} // 1-buffered, holds a token while locked
	refs int
}

// keyedLocks serializes mutations per entitlement record. Acquisition waits a
// bounded time and fails with domain.ErrLockTimeout rather than queueing
// indefinitely behind a stuck writer.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[lockKey]*lockEntry
	clock adapter.Clock
	wait  time.Duration
}

func newKeyedLocks(clock adapter.Clock, wait time.Duration) *keyedLocks {
	return &keyedLocks{
		locks: make(map[lockKey]*lockEntry),
		clock: clock,
		wait:  wait,
	}
}

// Acquire takes the lock for key, waiting at most the configured bound
func (l *keyedLocks) Acquire(ctx context.Context, key lockKey) error {
	l.mu.Lock()
	entry := l.locks[key]
	if entry == nil {
		entry = &lockEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(key, entry)
		return ctx.Err()
	case <-l.clock.After(l.wait):
		l.unref(key, entry)
		return domain.ErrLockTimeout
	}
}

// Release frees the lock for key. Must only be called after a successful Acquire.
func (l *keyedLocks) Release(key lockKey) {
	l.mu.Lock()
	entry := l.locks[key]
	<-entry.ch
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

func (l *keyedLocks) unref(key lockKey, entry *lockEntry) {
	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 && len(entry.ch) == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}
