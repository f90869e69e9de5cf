package scheduler

import (
	"context"
	"sync"
)

type reservoir struct {
	mu      sync.Mutex
	enabled bool
	tokens  int
	signal  chan struct{}
}

func newReservoir(cfg Config) *reservoir {
	return &reservoir{
		enabled: cfg.Reservoir > 0 || cfg.ReservoirRefreshInterval > 0,
		tokens:  cfg.Reservoir,
		signal:  make(chan struct{}, 1),
	}
}

func (r *reservoir) take(ctx context.Context) error {
	if !r.enabled {
		return nil
	}
	for {
		r.mu.Lock()
		if r.tokens > 0 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		r.mu.Unlock()

		select {
		case <-r.signal:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *reservoir) refund() {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	r.tokens++
	r.mu.Unlock()
}

// set replaces the quota, it does not add to it.
func (r *reservoir) set(n int) {
	r.mu.Lock()
	r.tokens = n
	r.mu.Unlock()
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

func (r *reservoir) remaining() int {
	if !r.enabled {
		return -1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens
}
