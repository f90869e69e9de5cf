// Package algorand implements the chain strategy for partners issuing
// Algorand Standard Assets, read through the public indexer.
package algorand

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"chain_sync/internal/app/port"
	"chain_sync/internal/domain/entity"
	"chain_sync/internal/domain/netting"
	"chain_sync/internal/pkg/metrics"
	"chain_sync/internal/pkg/pagination"
	"chain_sync/internal/pkg/scheduler"
	"chain_sync/internal/pkg/utils"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	priorityAssets = iota
	priorityGroups
	priorityBalances
	priorityTransactions
)

// Strategy reads assets, holdings and transaction groups of one creator.
type Strategy struct {
	params     Params
	indexer    port.AlgorandIndexer
	sched      *scheduler.Scheduler
	reconciler port.Reconciler
	publisher  port.EventPublisher
	tokens     *cache.Cache // asset id -> entity.Token
	excluded   map[uint64]struct{}
	now        func() time.Time
	logger     *zap.Logger
}

var (
	_ port.ChainStrategy     = (*Strategy)(nil)
	_ port.TransactionSyncer = (*Strategy)(nil)
	_ port.TransactionLookup = (*Strategy)(nil)
)

// New creates the strategy. publisher may be nil.
func New(
	params Params,
	indexer port.AlgorandIndexer,
	sched *scheduler.Scheduler,
	reconciler port.Reconciler,
	publisher port.EventPublisher,
	logger *zap.Logger,
) *Strategy {
	if params.PageLimit <= 0 {
		params.PageLimit = defaultPageSize
	}
	excluded := make(map[uint64]struct{}, len(params.ExcludedAssets))
	for _, id := range params.ExcludedAssets {
		excluded[id] = struct{}{}
	}
	return &Strategy{
		params:     params,
		indexer:    indexer,
		sched:      sched,
		reconciler: reconciler,
		publisher:  publisher,
		tokens:     cache.New(time.Hour, 10*time.Minute),
		excluded:   excluded,
		now:        time.Now,
		logger:     logger.Named("AlgorandStrategy").With(zap.String("partner", params.Partner)),
	}
}

func (s *Strategy) Network() string { return s.params.Network }

func parseAssetID(address string) (uint64, error) {
	id, err := strconv.ParseUint(address, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("asset id %q: %w", address, err)
	}
	return id, nil
}

func assetMetadata(a entity.AlgorandAsset) *entity.TokenMetadata {
	return &entity.TokenMetadata{
		Address:     strconv.FormatUint(a.Index, 10),
		Name:        a.Params.Name,
		Symbol:      a.Params.UnitName,
		Decimals:    a.Params.Decimals,
		TotalSupply: utils.NormalizeUint64(a.Params.Total, a.Params.Decimals),
		Creator:     a.Params.Creator,
	}
}

// Discover lists every asset created by the partner account. The listing
// already carries the metadata, so candidates come prefetched.
func (s *Strategy) Discover(ctx context.Context) ([]entity.Candidate, error) {
	assets, err := pagination.Collect(ctx, func(ctx context.Context, next string) (pagination.Page[entity.AlgorandAsset], error) {
		return scheduler.Do(ctx, s.sched, priorityAssets, func(ctx context.Context) (pagination.Page[entity.AlgorandAsset], error) {
			return s.indexer.SearchForAssets(ctx, s.params.Creator, s.params.PageLimit, next)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list assets of %s: %w", s.params.Creator, err)
	}

	out := make([]entity.Candidate, 0, len(assets))
	for _, a := range assets {
		if _, skip := s.excluded[a.Index]; skip {
			continue
		}
		meta := assetMetadata(a)
		out = append(out, entity.Candidate{Address: meta.Address, Prefetched: meta})
	}
	return out, nil
}

// FetchMetadata accepts every asset of the creator.
func (s *Strategy) FetchMetadata(ctx context.Context, c entity.Candidate, priority int) (*entity.TokenMetadata, error) {
	if c.Prefetched != nil {
		return c.Prefetched, nil
	}
	id, err := parseAssetID(c.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrRejected, err)
	}
	asset, err := scheduler.Do(ctx, s.sched, priority, func(ctx context.Context) (entity.AlgorandAsset, error) {
		return s.indexer.LookupAssetByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return assetMetadata(asset), nil
}

// EnumerateHolders pages through positive balances. The creator's own
// reserve is not a holder.
func (s *Strategy) EnumerateHolders(ctx context.Context, token entity.Token, visit func(entity.HolderBalance) error) error {
	id, err := parseAssetID(token.Address)
	if err != nil {
		return err
	}

	_, err = pagination.Scan(ctx,
		func(ctx context.Context, next string) (pagination.Page[entity.AlgorandHolding], error) {
			return scheduler.Do(ctx, s.sched, priorityBalances, func(ctx context.Context) (pagination.Page[entity.AlgorandHolding], error) {
				return s.indexer.LookupAssetBalances(ctx, id, 0, s.params.PageLimit, next)
			})
		},
		func(holdings []entity.AlgorandHolding) error {
			for _, h := range holdings {
				if h.Address == s.params.Creator {
					continue
				}
				if err := visit(entity.HolderBalance{
					Address:         h.Address,
					Balance:         utils.NormalizeUint64(h.Amount, token.Decimals),
					OptedInAtRound:  h.OptedInAtRound,
					OptedOutAtRound: h.OptedOutAtRound,
					Deleted:         h.Deleted,
				}); err != nil {
					return err
				}
			}
			return nil
		})
	return err
}

type groupRef struct {
	round uint64
	group string
}

// SyncTransactions reconciles every transaction group that touched the token
// within the lookback window. Failed groups are logged and reported together.
func (s *Strategy) SyncTransactions(ctx context.Context, token entity.Token) error {
	id, err := parseAssetID(token.Address)
	if err != nil {
		return err
	}
	after := s.now().Add(-s.params.TransactionLookback)

	var (
		mu      sync.Mutex
		seen    = make(map[groupRef]struct{})
		errs    []error
		created int
	)
	_, err = pagination.Scan(ctx,
		func(ctx context.Context, next string) (pagination.Page[entity.RawTransaction], error) {
			return scheduler.Do(ctx, s.sched, priorityTransactions, func(ctx context.Context) (pagination.Page[entity.RawTransaction], error) {
				return s.indexer.LookupAssetTransactions(ctx, id, after, s.params.PageLimit, next)
			})
		},
		func(txs []entity.RawTransaction) error {
			g, gctx := errgroup.WithContext(ctx)
			for _, tx := range txs {
				ref := groupRef{round: tx.ConfirmedRound, group: tx.Group}
				if ref.group == "" || ref.round == 0 {
					continue
				}
				if _, dup := seen[ref]; dup {
					continue
				}
				seen[ref] = struct{}{}

				g.Go(func() error {
					ok, err := s.ParseTransactionGroup(gctx, ref.group, ref.round)
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						errs = append(errs, fmt.Errorf("group %s: %w", netting.TransactionID(ref.round, ref.group), err))
						return nil
					}
					if ok {
						created++
					}
					return nil
				})
			}
			return g.Wait()
		})
	if err != nil {
		return fmt.Errorf("scan transactions of asset %d: %w", id, err)
	}

	s.logger.Debug("Transactions reconciled",
		zap.String("token", token.Address),
		zap.Int("groups", len(seen)),
		zap.Int("created", created),
		zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}

// ParseTransactionGroup nets the group committed in round and stores the result
// when it moved an identifiable asset. It reports whether a new row was stored.
func (s *Strategy) ParseTransactionGroup(ctx context.Context, group string, round uint64) (bool, error) {
	txs, err := pagination.Collect(ctx, func(ctx context.Context, next string) (pagination.Page[entity.RawTransaction], error) {
		return scheduler.Do(ctx, s.sched, priorityGroups, func(ctx context.Context) (pagination.Page[entity.RawTransaction], error) {
			return s.indexer.SearchForTransactionsByRound(ctx, round, next)
		})
	})
	if err != nil {
		return false, err
	}

	members := txs[:0]
	for _, tx := range txs {
		if tx.Group == group {
			members = append(members, tx)
		}
	}
	if len(members) == 0 {
		return false, nil
	}
	return s.store(ctx, netting.Net(round, members[0].RoundTime, group, members))
}

func (s *Strategy) store(ctx context.Context, net *entity.NetTransfer) (bool, error) {
	if !net.Resolved() {
		s.logger.Debug("Group without asset movement", zap.String("id", net.ID))
		return false, nil
	}

	token, err := s.GetTokenID(ctx, *net.SenderAssetID)
	if err != nil {
		return false, err
	}

	tx := entity.Transaction{
		TokenID:       token.ID,
		TransactionID: net.ID,
		Date:          net.Date,
		IsSwap:        net.IsSwap(),
		FromAddress:   net.Sender,
		ToAddress:     net.Receiver,
		Amount:        new(big.Int).SetUint64(net.SenderAmount),
	}
	if tx.IsSwap {
		tx.SwapAmount = new(big.Int).SetUint64(net.ReceiverAmount)
		if net.ReceiverAssetID != nil {
			swapToken, err := s.GetTokenID(ctx, *net.ReceiverAssetID)
			if err != nil {
				return false, err
			}
			tx.SwapTokenID = &swapToken.ID
		}
	}

	stored, created, err := s.reconciler.FindOrCreateTransaction(ctx, tx)
	if err != nil || !created {
		return false, err
	}
	metrics.Reconciled.WithLabelValues(s.params.Partner, "transaction").Inc()
	if err := s.reconciler.TouchLastTransactionAt(ctx, token, stored.Date); err != nil {
		s.logger.Warn("Failed to advance last transaction date", zap.String("token", token.Address), zap.Error(err))
	}
	if s.publisher != nil {
		if err := s.publisher.PublishTransaction(ctx, token, stored); err != nil {
			s.logger.Warn("Failed to publish transaction", zap.String("id", stored.TransactionID), zap.Error(err))
		}
	}
	return true, nil
}

// GetTokenID returns the stored token of an asset, creating it from the
// indexer on first sight. Assets of other creators are stored outside the
// partner's application so holder syncs never pick them up.
func (s *Strategy) GetTokenID(ctx context.Context, assetID uint64) (entity.Token, error) {
	key := strconv.FormatUint(assetID, 10)
	if cached, ok := s.tokens.Get(key); ok {
		return cached.(entity.Token), nil
	}

	token, err := s.reconciler.FindToken(ctx, s.params.Network, key)
	if errors.Is(err, entity.ErrNotFound) {
		var asset entity.AlgorandAsset
		asset, err = scheduler.Do(ctx, s.sched, priorityGroups, func(ctx context.Context) (entity.AlgorandAsset, error) {
			return s.indexer.LookupAssetByID(ctx, assetID)
		})
		if err != nil {
			return entity.Token{}, fmt.Errorf("lookup asset %d: %w", assetID, err)
		}
		meta := assetMetadata(asset)
		own := meta.Creator == s.params.Creator
		appID := 0
		if own {
			appID = s.params.ApplicationID
		}
		token, err = s.reconciler.FindOrCreateToken(ctx, entity.Token{
			ApplicationID: appID,
			Network:       s.params.Network,
			Address:       meta.Address,
			Name:          meta.Name,
			Symbol:        meta.Symbol,
			Decimals:      meta.Decimals,
			TotalSupply:   meta.TotalSupply,
			Creator:       meta.Creator,
			IsGlobalToken: !own,
		})
	}
	if err != nil {
		return entity.Token{}, err
	}

	s.tokens.Set(key, token, cache.DefaultExpiration)
	return token, nil
}

// SyncTransaction reconciles the group of one transaction. An ungrouped
// transaction is netted on its own under its transaction id.
func (s *Strategy) SyncTransaction(ctx context.Context, txID string) error {
	tx, err := scheduler.Do(ctx, s.sched, priorityAssets, func(ctx context.Context) (entity.RawTransaction, error) {
		return s.indexer.LookupTransactionByID(ctx, txID)
	})
	if err != nil {
		return err
	}
	if tx.ConfirmedRound == 0 {
		return fmt.Errorf("transaction %s is not confirmed", txID)
	}

	if tx.Group == "" {
		_, err = s.store(ctx, netting.Net(tx.ConfirmedRound, tx.RoundTime, tx.ID, []entity.RawTransaction{tx}))
		return err
	}
	_, err = s.ParseTransactionGroup(ctx, tx.Group, tx.ConfirmedRound)
	return err
}
