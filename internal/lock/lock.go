// Package lock keeps two pipeline runs for the same date from overlapping,
// within one process or across hosts sharing a Redis.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrLocked is returned when the key is already held.
var ErrLocked = errors.New("run already in progress")

// Release gives a held lock back.
type Release func(ctx context.Context) error

// Locker hands out exclusive, non-blocking locks by key.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// Local is an in-process Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) Acquire(_ context.Context, key string) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrLocked
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}

// Held reports whether any key is currently locked.
func (l *Local) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held) > 0
}
