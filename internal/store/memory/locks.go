package memory

import (
	"context"
	"sync"
	"time"

	"schedula/booking/internal/store"
)

// lockTable hands out exclusive named locks. A lock is a one-slot channel so waiters can
// give up on context cancellation or timeout, which sync.Mutex does not allow.
// A slot lives only while someone holds or waits for it.
type lockTable struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{slots: make(map[string]*lockSlot)}
}

func (l *lockTable) ref(key string) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *lockTable) unref(key string, s *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// acquire blocks until key is free. A zero timeout waits as long as ctx allows.
func (l *lockTable) acquire(ctx context.Context, key string, timeout time.Duration) error {
	s := l.ref(key)

	select {
	case s.ch <- struct{}{}:
		return nil
	default:
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case s.ch <- struct{}{}:
		return nil
	case <-expired:
		l.unref(key, s)
		return store.ErrContention
	case <-ctx.Done():
		l.unref(key, s)
		return ctx.Err()
	}
}

func (l *lockTable) release(key string) {
	l.mu.Lock()
	s := l.slots[key]
	l.mu.Unlock()
	<-s.ch
	l.unref(key, s)
}

func (l *lockTable) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
