package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"chain_sync/internal/app/port"
	"chain_sync/internal/domain/entity"
	"chain_sync/internal/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrSyncInProgress is returned when the same operation of an adapter is already running.
var ErrSyncInProgress = errors.New("sync already in progress")

// SyncConfig parameterises one adapter.
type SyncConfig struct {
	Name           string
	ApplicationID  int
	HoldersEnabled bool
	// MaxParallel bounds how many tokens are processed at once. Outbound calls
	// are bounded separately by the strategy's scheduler.
	MaxParallel int
}

// SyncService is the adapter shared by every network. The network specific
// parts come from its ChainStrategy.
type SyncService struct {
	cfg        SyncConfig
	strategy   port.ChainStrategy
	reconciler port.Reconciler
	partner    port.PartnerMetadataSource
	lock       port.RunLock
	logger     *zap.Logger
}

var _ port.Syncer = (*SyncService)(nil)

// NewSyncService creates a new adapter. partner may be nil.
func NewSyncService(
	cfg SyncConfig,
	strategy port.ChainStrategy,
	reconciler port.Reconciler,
	partner port.PartnerMetadataSource,
	lock port.RunLock,
	logger *zap.Logger,
) *SyncService {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 10
	}
	return &SyncService{
		cfg:        cfg,
		strategy:   strategy,
		reconciler: reconciler,
		partner:    partner,
		lock:       lock,
		logger:     logger.Named("SyncService").With(zap.String("adapter", cfg.Name)),
	}
}

func (s *SyncService) Name() string { return s.cfg.Name }

// SyncTokens discovers the partner's tokens and reconciles their metadata.
// Only a failed discovery is returned; per-token failures are logged.
func (s *SyncService) SyncTokens(ctx context.Context) error {
	return s.guarded(ctx, "tokens", s.syncTokens)
}

// SyncHolders recomputes the holders of tokens whose last holder pass is stale.
func (s *SyncService) SyncHolders(ctx context.Context) error {
	if !s.cfg.HoldersEnabled {
		s.logger.Debug("[holders] disabled for adapter")
		return nil
	}
	return s.guarded(ctx, "holders", s.syncHolders)
}

// SyncTransaction reconciles the group of a single transaction when the strategy supports it.
func (s *SyncService) SyncTransaction(ctx context.Context, txID string) error {
	lookup, ok := s.strategy.(port.TransactionLookup)
	if !ok {
		return fmt.Errorf("%s: transaction lookup: %w", s.cfg.Name, entity.ErrNotImplemented)
	}
	return lookup.SyncTransaction(ctx, txID)
}

func (s *SyncService) guarded(ctx context.Context, op string, run func(context.Context, *zap.Logger) error) error {
	release, ok, err := s.lock.TryAcquire(ctx, s.cfg.Name+":"+op)
	if err != nil {
		return fmt.Errorf("acquire %s lock: %w", op, err)
	}
	if !ok {
		s.logger.Warn(fmt.Sprintf("[%s] previous run still in progress, skipping", op))
		metrics.SyncRuns.WithLabelValues(s.cfg.Name, op, "skipped").Inc()
		return ErrSyncInProgress
	}
	defer release()

	log := s.logger.With(zap.String("run", uuid.NewString()))
	log.Info(fmt.Sprintf("[%s] starting", op))
	started := time.Now()

	err = run(ctx, log)
	metrics.SyncDuration.WithLabelValues(s.cfg.Name, op).Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.SyncRuns.WithLabelValues(s.cfg.Name, op, "error").Inc()
		log.Error(fmt.Sprintf("[%s] failed", op), zap.Error(err))
		return err
	}
	metrics.SyncRuns.WithLabelValues(s.cfg.Name, op, "ok").Inc()
	log.Info(fmt.Sprintf("[%s] finished", op), zap.Duration("took", time.Since(started)))
	return nil
}

func (s *SyncService) syncTokens(ctx context.Context, log *zap.Logger) error {
	candidates, err := s.strategy.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discover %s tokens: %w", s.cfg.Name, err)
	}
	log.Info("[tokens] candidates discovered", zap.Int("count", len(candidates)))

	extras, partnerOK := s.partnerInfo(ctx, log)

	var saved, rejected, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxParallel)
	for idx, c := range candidates {
		idx, c := idx, c
		g.Go(func() error {
			switch err := s.syncToken(gctx, idx, c, extras, partnerOK); {
			case err == nil:
				saved.Add(1)
			case errors.Is(err, entity.ErrRejected):
				rejected.Add(1)
				log.Debug("[tokens] candidate rejected", zap.String("address", c.Address))
			default:
				failed.Add(1)
				log.Warn("[tokens] candidate failed", zap.String("address", c.Address), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	metrics.Reconciled.WithLabelValues(s.cfg.Name, "token").Add(float64(saved.Load()))
	metrics.Skipped.WithLabelValues(s.cfg.Name, "rejected").Add(float64(rejected.Load()))
	metrics.Skipped.WithLabelValues(s.cfg.Name, "token_error").Add(float64(failed.Load()))
	log.Info("[tokens] reconciled",
		zap.Int64("saved", saved.Load()),
		zap.Int64("rejected", rejected.Load()),
		zap.Int64("failed", failed.Load()))
	return ctx.Err()
}

// syncToken keeps the stored additional info when the partner source failed
// this run. A partner answer without an entry for the token still clears it.
func (s *SyncService) syncToken(ctx context.Context, idx int, c entity.Candidate, extras map[string][]byte, partnerOK bool) error {
	meta, err := s.strategy.FetchMetadata(ctx, c, idx)
	if err != nil {
		return err
	}

	info := extras[strings.ToLower(meta.Address)]
	if !partnerOK {
		existing, err := s.reconciler.FindToken(ctx, s.strategy.Network(), meta.Address)
		switch {
		case err == nil:
			info = existing.AdditionalInfo
		case !errors.Is(err, entity.ErrNotFound):
			return err
		}
	}

	_, err = s.reconciler.FindOrCreateToken(ctx, entity.Token{
		ApplicationID:  s.cfg.ApplicationID,
		Network:        s.strategy.Network(),
		Address:        meta.Address,
		Name:           meta.Name,
		Symbol:         meta.Symbol,
		Decimals:       meta.Decimals,
		TotalSupply:    meta.TotalSupply,
		Creator:        meta.Creator,
		AdditionalInfo: info,
	})
	return err
}

// partnerInfo is best effort. ok is false only when a configured source failed.
func (s *SyncService) partnerInfo(ctx context.Context, log *zap.Logger) (map[string][]byte, bool) {
	if s.partner == nil {
		return nil, true
	}
	info, err := s.partner.Fetch(ctx)
	if err != nil {
		log.Warn("[tokens] partner metadata unavailable, keeping stored info", zap.String("source", s.partner.Name()), zap.Error(err))
		return nil, false
	}
	return info, true
}

func (s *SyncService) syncHolders(ctx context.Context, log *zap.Logger) error {
	tokens, err := s.reconciler.ListLastSyncedTokens(ctx, s.cfg.ApplicationID)
	if err != nil {
		return err
	}
	log.Info("[holders] stale tokens selected", zap.Int("count", len(tokens)))

	var synced, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxParallel)
	for _, token := range tokens {
		token := token
		g.Go(func() error {
			if err := s.syncTokenHolders(gctx, log, token); err != nil {
				failed.Add(1)
				log.Warn("[holders] token failed, left stale for the next run",
					zap.String("token", token.Address), zap.Error(err))
				return nil
			}
			synced.Add(1)

			if txs, ok := s.strategy.(port.TransactionSyncer); ok {
				if err := txs.SyncTransactions(gctx, token); err != nil {
					log.Warn("[transactions] token failed", zap.String("token", token.Address), zap.Error(err))
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Info("[holders] reconciled", zap.Int64("synced", synced.Load()), zap.Int64("failed", failed.Load()))
	return ctx.Err()
}

// syncTokenHolders runs one full holder pass. Holders missing from the pass
// are removed, zero balances are pruned and only then is the token marked synced.
func (s *SyncService) syncTokenHolders(ctx context.Context, log *zap.Logger, token entity.Token) error {
	before, err := s.reconciler.ListHolders(ctx, token.ID)
	if err != nil {
		return err
	}

	var (
		mu       sync.Mutex
		seen     = make(map[string]struct{})
		written  int
		holderOK = true
	)
	err = s.strategy.EnumerateHolders(ctx, token, func(hb entity.HolderBalance) error {
		_, _, err := s.reconciler.FindOrCreateHolder(ctx, entity.Holder{
			TokenID:         token.ID,
			Address:         hb.Address,
			Balance:         hb.Balance,
			OptedInAtRound:  hb.OptedInAtRound,
			OptedOutAtRound: hb.OptedOutAtRound,
			Deleted:         hb.Deleted,
		})

		mu.Lock()
		defer mu.Unlock()
		seen[strings.ToLower(hb.Address)] = struct{}{}
		if err != nil {
			holderOK = false
			log.Warn("[holders] holder failed", zap.String("token", token.Address), zap.String("holder", hb.Address), zap.Error(err))
			return nil
		}
		written++
		return nil
	})
	if err != nil {
		return fmt.Errorf("enumerate holders: %w", err)
	}
	if !holderOK {
		return fmt.Errorf("some holders of %s could not be written", token.Address)
	}

	for _, h := range before {
		if _, ok := seen[strings.ToLower(h.Address)]; ok {
			continue
		}
		if err := s.reconciler.DeleteHolder(ctx, token.ID, h.Address); err != nil {
			return err
		}
	}

	pruned, err := s.reconciler.DeleteEmptyHolders(ctx, token.ID)
	if err != nil {
		return err
	}
	if err := s.reconciler.UpdateLastSyncedAt(ctx, token.ID); err != nil {
		return fmt.Errorf("mark token synced: %w", err)
	}

	metrics.Reconciled.WithLabelValues(s.cfg.Name, "holder").Add(float64(written))
	log.Debug("[holders] token synced",
		zap.String("token", token.Address),
		zap.Int("holders", written),
		zap.Int64("pruned", pruned))
	return nil
}
