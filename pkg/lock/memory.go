package lock

import (
	"context"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

// MemoryLocker serializes keys within a single process.
// Each key owns a one-slot channel; holding the slot is holding the lock.
// Slots are never evicted, so memory grows with the number of distinct keys.
type MemoryLocker struct {
	slots *xsync.Map[string, chan struct{}]
}

// NewMemoryLocker returns an empty in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: xsync.NewMap[string, chan struct{}]()}
}

// Lock waits for key, giving up when ctx is done.
func (l *MemoryLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key = strings.TrimSpace(key)
	slot, _ := l.slots.LoadOrStore(key, make(chan struct{}, 1))
	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-slot }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
