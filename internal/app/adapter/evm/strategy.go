// Package evm implements the chain strategy shared by the EVM partners.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"chain_sync/internal/app/port"
	"chain_sync/internal/domain/entity"
	"chain_sync/internal/pkg/pagination"
	"chain_sync/internal/pkg/scheduler"
	"chain_sync/internal/pkg/utils"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Scheduler priorities. Lower runs first.
const (
	priorityBalances  = 1
	priorityTransfers = 2
)

const defaultBalanceBatchSize = 100

// Strategy discovers and reads partner tokens on one EVM network.
type Strategy struct {
	params     Params
	clients    port.EVMClientProvider
	sched      *scheduler.Scheduler
	partner    port.PartnerMetadataSource
	reconciler port.Reconciler
	logSpan    uint64
	batchSize  int
	logger     *zap.Logger
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithLogBlockSpan splits eth_getLogs scans into windows of span blocks.
func WithLogBlockSpan(span uint64) Option {
	return func(s *Strategy) { s.logSpan = span }
}

// WithBalanceBatchSize sets how many balanceOf reads go into one JSON-RPC batch.
func WithBalanceBatchSize(n int) Option {
	return func(s *Strategy) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithPartnerCandidates merges the addresses listed by src into discovery
// when the partner is configured to do so.
func WithPartnerCandidates(src port.PartnerMetadataSource) Option {
	return func(s *Strategy) { s.partner = src }
}

// WithReconciler enables on-demand transaction lookups.
func WithReconciler(r port.Reconciler) Option {
	return func(s *Strategy) { s.reconciler = r }
}

// New creates a strategy. sched is owned by the caller and bounds every RPC call.
func New(params Params, clients port.EVMClientProvider, sched *scheduler.Scheduler, logger *zap.Logger, opts ...Option) *Strategy {
	s := &Strategy{
		params:    params,
		clients:   clients,
		sched:     sched,
		batchSize: defaultBalanceBatchSize,
		logger:    logger.Named("EVMStrategy").With(zap.String("partner", params.Partner), zap.String("network", params.Network)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ port.ChainStrategy     = (*Strategy)(nil)
	_ port.TransactionLookup = (*Strategy)(nil)
)

func (s *Strategy) Network() string { return s.params.Network }

// Discover scans the partner's discovery logs from FromBlock to the chain head
// and returns one candidate per distinct key.
func (s *Strategy) Discover(ctx context.Context) ([]entity.Candidate, error) {
	client, err := s.clients.GetClient(ctx, s.params.Network)
	if err != nil {
		return nil, err
	}
	latest, err := scheduler.Do(ctx, s.sched, 0, client.BlockNumber)
	if err != nil {
		return nil, err
	}

	logs, err := pagination.Collect(ctx, s.logWindows(client, 0, latest, 0, ethereum.FilterQuery{Topics: s.params.Topics}))
	if err != nil {
		return nil, fmt.Errorf("scan discovery logs: %w", err)
	}
	s.logger.Info("Discovery logs fetched", zap.Int("logs", len(logs)))

	if s.params.TopicCount > 0 {
		kept := logs[:0]
		for _, l := range logs {
			if len(l.Topics) == s.params.TopicCount {
				kept = append(kept, l)
			}
		}
		logs = kept
	}

	key := s.params.Key
	if key == nil {
		key = pagination.EmitterKey
	}
	logs = pagination.DedupeBy(logs, key)

	candidates := make([]entity.Candidate, 0, len(logs))
	seen := make(map[string]struct{}, len(logs))
	for _, l := range logs {
		addr, _ := key(l)
		seen[strings.ToLower(addr)] = struct{}{}
		candidates = append(candidates, entity.Candidate{Address: addr})
	}

	if s.params.MergePartnerCandidates {
		candidates = append(candidates, s.partnerCandidates(ctx, seen)...)
	}
	return candidates, nil
}

// partnerCandidates is best effort: a failing partner API only narrows discovery.
func (s *Strategy) partnerCandidates(ctx context.Context, seen map[string]struct{}) []entity.Candidate {
	if s.partner == nil {
		return nil
	}
	docs, err := s.partner.Fetch(ctx)
	if err != nil {
		s.logger.Warn("Partner candidate listing unavailable", zap.Error(err))
		return nil
	}

	addrs := make([]string, 0, len(docs))
	for addr := range docs {
		if _, dup := seen[addr]; dup || !common.IsHexAddress(addr) {
			continue
		}
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	out := make([]entity.Candidate, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, entity.Candidate{Address: common.HexToAddress(addr).Hex()})
	}
	if len(out) > 0 {
		s.logger.Info("Partner listed tokens not seen on chain", zap.Int("count", len(out)))
	}
	return out
}

// logWindows pages eth_getLogs over [from, to], one scheduled call per window.
func (s *Strategy) logWindows(client port.EVMChainClient, from, to uint64, priority int, q ethereum.FilterQuery) pagination.PageFunc[types.Log] {
	if from < s.params.FromBlock {
		from = s.params.FromBlock
	}
	return pagination.BlockWindows(from, to, s.logSpan, func(ctx context.Context, start, end uint64) ([]types.Log, error) {
		window := q
		window.FromBlock = new(big.Int).SetUint64(start)
		window.ToBlock = new(big.Int).SetUint64(end)
		return scheduler.Do(ctx, s.sched, priority, func(ctx context.Context) ([]types.Log, error) {
			return client.FilterLogs(ctx, window)
		})
	})
}

// FetchMetadata checks the symbol prefix before issuing the remaining reads.
func (s *Strategy) FetchMetadata(ctx context.Context, c entity.Candidate, priority int) (*entity.TokenMetadata, error) {
	client, err := s.clients.GetClient(ctx, s.params.Network)
	if err != nil {
		return nil, err
	}
	addr := common.HexToAddress(c.Address)

	symbol, err := scheduler.Do(ctx, s.sched, 2*priority, func(ctx context.Context) (string, error) {
		return client.TokenSymbol(ctx, addr)
	})
	if err != nil {
		return nil, fmt.Errorf("read symbol: %w", err)
	}
	if !strings.HasPrefix(symbol, s.params.SymbolPrefix) {
		return nil, fmt.Errorf("%w: symbol %q lacks prefix %q", entity.ErrRejected, symbol, s.params.SymbolPrefix)
	}

	meta := &entity.TokenMetadata{Address: addr.Hex(), Symbol: symbol}
	var rawSupply *big.Int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		meta.Name, err = scheduler.Do(gctx, s.sched, priority, func(ctx context.Context) (string, error) {
			return client.TokenName(ctx, addr)
		})
		return err
	})
	g.Go(func() (err error) {
		meta.Decimals, err = scheduler.Do(gctx, s.sched, priority, func(ctx context.Context) (uint8, error) {
			return client.TokenDecimals(ctx, addr)
		})
		return err
	})
	g.Go(func() (err error) {
		rawSupply, err = scheduler.Do(gctx, s.sched, priority, func(ctx context.Context) (*big.Int, error) {
			return client.TokenTotalSupply(ctx, addr)
		})
		if errors.Is(err, entity.ErrUndecodable) {
			s.logger.Warn("totalSupply undecodable, storing 0", zap.String("token", addr.Hex()), zap.Error(err))
			rawSupply, err = nil, nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("read metadata of %s: %w", addr.Hex(), err)
	}
	meta.TotalSupply = utils.NormalizeUnits(rawSupply, meta.Decimals)

	if s.params.ReadOwner {
		owner, err := scheduler.Do(ctx, s.sched, priority, func(ctx context.Context) (common.Address, error) {
			return client.TokenOwner(ctx, addr)
		})
		if err != nil {
			s.logger.Debug("owner() unavailable", zap.String("token", addr.Hex()), zap.Error(err))
		} else if owner != (common.Address{}) {
			meta.Creator = owner.Hex()
		}
	}
	return meta, nil
}

// EnumerateHolders replays the token's Transfer logs to collect every address
// that ever held it, then reads current balances in JSON-RPC batches.
// A failed balance read fails the whole enumeration so the token stays stale.
func (s *Strategy) EnumerateHolders(ctx context.Context, token entity.Token, visit func(entity.HolderBalance) error) error {
	client, err := s.clients.GetClient(ctx, s.params.Network)
	if err != nil {
		return err
	}
	addr := common.HexToAddress(token.Address)

	latest, err := scheduler.Do(ctx, s.sched, priorityTransfers, client.BlockNumber)
	if err != nil {
		return err
	}

	var holders []string
	seen := make(map[common.Address]struct{})
	_, err = pagination.Scan(ctx,
		s.logWindows(client, 0, latest, priorityTransfers, ethereum.FilterQuery{
			Addresses: []common.Address{addr},
			Topics:    [][]common.Hash{{TransferTopic}},
		}),
		func(logs []types.Log) error {
			for _, l := range logs {
				if len(l.Topics) < 3 {
					continue
				}
				for _, t := range l.Topics[1:3] {
					holder := common.BytesToAddress(t.Bytes()[12:])
					if holder == (common.Address{}) {
						continue
					}
					if _, dup := seen[holder]; dup {
						continue
					}
					seen[holder] = struct{}{}
					holders = append(holders, holder.Hex())
				}
			}
			return nil
		})
	if err != nil {
		return fmt.Errorf("replay transfers of %s: %w", addr.Hex(), err)
	}
	if len(holders) == 0 {
		s.logger.Info("No transfer events found", zap.String("token", addr.Hex()))
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, batch := range utils.Batch(holders, s.batchSize) {
		batch := batch
		g.Go(func() error {
			return s.readBalances(gctx, client, token, batch, visit)
		})
	}
	return g.Wait()
}

func (s *Strategy) readBalances(ctx context.Context, client port.EVMChainClient, token entity.Token, wallets []string, visit func(entity.HolderBalance) error) error {
	items := make([]entity.BalanceRequestItem, 0, len(wallets))
	for _, w := range wallets {
		items = append(items, entity.BalanceRequestItem{TokenAddress: token.Address, WalletAddress: w})
	}

	results, err := scheduler.Do(ctx, s.sched, priorityBalances, func(ctx context.Context) ([]entity.BalanceResultItem, error) {
		return client.BalancesOf(ctx, items)
	})
	if err != nil {
		return err
	}

	var errs []error
	for _, r := range results {
		if r.Error != nil {
			errs = append(errs, r.Error)
			continue
		}
		if err := visit(entity.HolderBalance{
			Address: r.WalletAddress,
			Balance: utils.NormalizeUnits(r.Balance, token.Decimals),
		}); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

// SyncTransaction refreshes the holders touched by one transaction on a tracked token:
// the sender and, for an ERC20 transfer call, the recipient.
func (s *Strategy) SyncTransaction(ctx context.Context, txHash string) error {
	if s.reconciler == nil {
		return fmt.Errorf("%s: transaction lookup: %w", s.params.Partner, entity.ErrNotImplemented)
	}
	if len(txHash) != 66 || !strings.HasPrefix(txHash, "0x") {
		return fmt.Errorf("invalid transaction hash %q", txHash)
	}

	client, err := s.clients.GetClient(ctx, s.params.Network)
	if err != nil {
		return err
	}
	tx, err := scheduler.Do(ctx, s.sched, 0, func(ctx context.Context) (entity.EVMTransaction, error) {
		return client.TransactionByHash(ctx, common.HexToHash(txHash))
	})
	if err != nil {
		return err
	}
	if tx.Pending {
		return fmt.Errorf("transaction %s is still pending", txHash)
	}
	if tx.To == "" {
		return fmt.Errorf("transaction %s creates a contract: %w", txHash, entity.ErrNotFound)
	}

	token, err := s.reconciler.FindToken(ctx, s.params.Network, tx.To)
	if err != nil {
		return fmt.Errorf("token %s: %w", tx.To, err)
	}
	if token.ApplicationID != s.params.ApplicationID {
		return fmt.Errorf("token %s belongs to application %d: %w", tx.To, token.ApplicationID, entity.ErrNotFound)
	}

	wallets := []string{tx.From}
	if tx.TransferRecipient != "" && !strings.EqualFold(tx.TransferRecipient, tx.From) {
		wallets = append(wallets, tx.TransferRecipient)
	}
	err = s.readBalances(ctx, client, token, wallets, func(hb entity.HolderBalance) error {
		_, _, err := s.reconciler.FindOrCreateHolder(ctx, entity.Holder{
			TokenID: token.ID,
			Address: hb.Address,
			Balance: hb.Balance,
		})
		return err
	})
	if err != nil {
		return err
	}
	_, err = s.reconciler.DeleteEmptyHolders(ctx, token.ID)
	return err
}
