// Package lock provides named, non-blocking mutual exclusion across
// processes. A failed TryLock returns ErrNotAcquired; callers skip the work
// rather than wait.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotAcquired = errors.New("lock held by another owner")

// Release gives a lock back. It is safe to call after the lease expired.
type Release func(ctx context.Context) error

type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (Release, error)
}

// Local is an in-process Locker for single-instance deployments and tests.
type Local struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocal() *Local {
	return &Local{held: map[string]time.Time{}, now: time.Now}
}

func (l *Local) TryLock(_ context.Context, name string, ttl time.Duration) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.held[name]; ok && (ttl <= 0 || now.Before(until)) {
		return nil, ErrNotAcquired
	}
	until := now.Add(ttl)
	l.held[name] = until
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[name].Equal(until) {
			delete(l.held, name)
		}
		return nil
	}, nil
}
