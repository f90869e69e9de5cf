// Package scheduler throttles outbound calls to one upstream endpoint.
//
// A Scheduler admits queued tasks under four constraints: a bound on tasks in
// flight, a minimum spacing between dispatches, a refillable quota
// (the reservoir) and a priority order where lower values go first.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrClosed is returned for tasks still queued when the scheduler is closed.
var ErrClosed = errors.New("scheduler closed")

// Config describes the limits of one scheduler. Zero values disable a limit.
type Config struct {
	MaxConcurrent int           `yaml:"maxConcurrent"`
	MinTime       time.Duration `yaml:"minTime"`
	// Reservoir is the initial quota. The quota is enforced when Reservoir > 0
	// or ReservoirRefreshInterval > 0.
	Reservoir                int           `yaml:"reservoir"`
	ReservoirRefreshAmount   int           `yaml:"reservoirRefreshAmount"`
	ReservoirRefreshInterval time.Duration `yaml:"reservoirRefreshInterval"`
}

// Stats is a point-in-time view of the scheduler state.
type Stats struct {
	Running   int
	Queued    int
	Reservoir int // -1 when no quota is configured
}

// Scheduler is safe for concurrent use. Create one per upstream and share it.
type Scheduler struct {
	cfg     Config
	slots   *semaphore.Weighted
	spacing *rate.Limiter
	quota   *reservoir

	mu      sync.Mutex
	queue   jobQueue
	seq     uint64
	running int
	closed  bool
	pending chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New starts a scheduler. Call Close to stop its dispatcher.
func New(cfg Config) *Scheduler {
	maxConcurrent := int64(math.MaxInt64)
	if cfg.MaxConcurrent > 0 {
		maxConcurrent = int64(cfg.MaxConcurrent)
	}
	spacing := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinTime > 0 {
		spacing = rate.NewLimiter(rate.Every(cfg.MinTime), 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:     cfg,
		slots:   semaphore.NewWeighted(maxConcurrent),
		spacing: spacing,
		quota:   newReservoir(cfg),
		pending: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	if cfg.ReservoirRefreshInterval > 0 {
		amount := cfg.ReservoirRefreshAmount
		if amount <= 0 {
			amount = cfg.Reservoir
		}
		go s.refill(cfg.ReservoirRefreshInterval, amount)
	}
	go s.run()
	return s
}

// Schedule queues task and runs it in the calling goroutine once admitted.
// The task's error is returned unchanged. A caller whose ctx ends while the
// task is still queued gets ctx.Err() and the task never runs.
func (s *Scheduler) Schedule(ctx context.Context, priority int, task func(context.Context) error) error {
	j, err := s.enqueue(priority)
	if err != nil {
		return err
	}

	select {
	case <-j.ready:
	case <-ctx.Done():
		if s.remove(j) {
			return ctx.Err()
		}
		// the dispatcher already claimed the job, give its slot back
		<-j.ready
		if j.err == nil {
			s.finish()
		}
		return ctx.Err()
	}

	if j.err != nil {
		return j.err
	}
	defer s.finish()
	return task(ctx)
}

// Do is Schedule for tasks that produce a value.
func Do[T any](ctx context.Context, s *Scheduler, priority int, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := s.Schedule(ctx, priority, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Stats reports the current queue and quota state.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	st := Stats{Running: s.running, Queued: s.queue.Len()}
	s.mu.Unlock()
	st.Reservoir = s.quota.remaining()
	return st
}

// Close stops dispatching. Queued tasks fail with ErrClosed; running tasks are not interrupted.
func (s *Scheduler) Close() {
	s.cancel()
	<-s.done
}

func (s *Scheduler) enqueue(priority int) (*job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.seq++
	j := &job{priority: priority, seq: s.seq, ready: make(chan struct{})}
	heap.Push(&s.queue, j)

	select {
	case s.pending <- struct{}{}:
	default:
	}
	return j, nil
}

func (s *Scheduler) remove(j *job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.index < 0 {
		return false
	}
	heap.Remove(&s.queue, j.index)
	return true
}

func (s *Scheduler) finish() {
	s.mu.Lock()
	s.running--
	s.mu.Unlock()
	s.slots.Release(1)
}

func (s *Scheduler) run() {
	defer close(s.done)
	defer s.drain()

	for {
		if !s.awaitWork() {
			return
		}
		if err := s.slots.Acquire(s.ctx, 1); err != nil {
			return
		}
		if err := s.quota.take(s.ctx); err != nil {
			s.slots.Release(1)
			return
		}
		if err := s.spacing.Wait(s.ctx); err != nil {
			s.quota.refund()
			s.slots.Release(1)
			return
		}

		// pick the best job only now so that anything queued while we waited competes on priority
		j := s.pop()
		if j == nil {
			s.quota.refund()
			s.slots.Release(1)
			continue
		}
		close(j.ready)
	}
}

func (s *Scheduler) awaitWork() bool {
	for {
		s.mu.Lock()
		n := s.queue.Len()
		s.mu.Unlock()
		if n > 0 {
			return true
		}
		select {
		case <-s.pending:
		case <-s.ctx.Done():
			return false
		}
	}
}

func (s *Scheduler) pop() *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return nil
	}
	j := heap.Pop(&s.queue).(*job)
	s.running++
	return j
}

func (s *Scheduler) drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for s.queue.Len() > 0 {
		j := heap.Pop(&s.queue).(*job)
		j.err = ErrClosed
		close(j.ready)
	}
}

func (s *Scheduler) refill(interval time.Duration, amount int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.quota.set(amount)
		case <-s.ctx.Done():
			return
		}
	}
}
