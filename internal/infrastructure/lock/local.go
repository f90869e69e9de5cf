// Package lock provides skip-if-held run locks for the sync adapters.
package lock

import (
	"context"
	"sync"

	"chain_sync/internal/app/port"
)

// Local is a process-wide run lock.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

var _ port.RunLock = (*Local)(nil)

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) TryAcquire(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}
