package service

import (
	"context"
	"errors"
	"time"

	"chain_sync/internal/app/port"
	"chain_sync/internal/domain/entity"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Cadence is how often the runner triggers each operation of every adapter.
type Cadence struct {
	Tokens  time.Duration `yaml:"tokens"`
	Holders time.Duration `yaml:"holders"`
	// RunOnStart triggers both operations once before the first tick.
	RunOnStart bool `yaml:"runOnStart"`
}

// Runner is the periodic trigger surface. Sync errors are logged and never
// stop the schedule of any adapter.
type Runner struct {
	syncers []port.Syncer
	cadence Cadence
	logger  *zap.Logger
}

func NewRunner(syncers []port.Syncer, cadence Cadence, logger *zap.Logger) *Runner {
	if cadence.Tokens <= 0 {
		cadence.Tokens = 9 * time.Hour
	}
	if cadence.Holders <= 0 {
		cadence.Holders = 5 * time.Minute
	}
	return &Runner{syncers: syncers, cadence: cadence, logger: logger.Named("Runner")}
}

// Run blocks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("Runner started",
		zap.Int("adapters", len(r.syncers)),
		zap.Duration("tokens_every", r.cadence.Tokens),
		zap.Duration("holders_every", r.cadence.Holders))

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range r.syncers {
		s := s
		g.Go(func() error { return r.loop(gctx, s.Name(), "tokens", r.cadence.Tokens, s.SyncTokens) })
		g.Go(func() error { return r.loop(gctx, s.Name(), "holders", r.cadence.Holders, s.SyncHolders) })
	}
	err := g.Wait()
	r.logger.Info("Runner stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runner) loop(ctx context.Context, adapter, op string, every time.Duration, run func(context.Context) error) error {
	if r.cadence.RunOnStart {
		r.trigger(ctx, adapter, op, run)
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.trigger(ctx, adapter, op, run)
		}
	}
}

// trigger runs one operation and swallows its error.
func (r *Runner) trigger(ctx context.Context, adapter, op string, run func(context.Context) error) {
	err := run(ctx)
	log := r.logger.With(zap.String("adapter", adapter), zap.String("op", op))
	switch {
	case err == nil:
	case errors.Is(err, ErrSyncInProgress):
		log.Info("Previous run still in progress")
	case errors.Is(err, entity.ErrNotImplemented):
		log.Debug("Adapter not implemented")
	case errors.Is(err, context.Canceled):
	default:
		log.Error("Sync failed", zap.Error(err))
	}
}
