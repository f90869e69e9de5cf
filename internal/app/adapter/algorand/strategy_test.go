package algorand

import (
	"context"
	"sync"
	"testing"
	"time"

	"chain_sync/internal/app/port"
	"chain_sync/internal/app/service"
	"chain_sync/internal/domain/entity"
	"chain_sync/internal/infrastructure/storage/memory"
	"chain_sync/internal/pkg/pagination"
	"chain_sync/internal/pkg/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	assetX   = uint64(10)
	assetUSD = uint64(31566704)
	alice    = "ALICE"
	bob      = "BOB"
	group    = "Z3JvdXAx"
	round    = uint64(500)
)

type fakeIndexer struct {
	mu         sync.Mutex
	assetPages []pagination.Page[entity.AlgorandAsset]
	assets     map[uint64]entity.AlgorandAsset
	balances   []entity.AlgorandHolding
	assetTxs   []entity.RawTransaction
	rounds     map[uint64][]entity.RawTransaction
	byID       map[string]entity.RawTransaction
	roundCalls int
	lastAfter  time.Time
}

func (f *fakeIndexer) SearchForAssets(_ context.Context, creator string, _ int, next string) (pagination.Page[entity.AlgorandAsset], error) {
	if next == "" {
		return f.assetPages[0], nil
	}
	return f.assetPages[1], nil
}

func (f *fakeIndexer) LookupAssetByID(_ context.Context, id uint64) (entity.AlgorandAsset, error) {
	a, ok := f.assets[id]
	if !ok {
		return entity.AlgorandAsset{}, entity.ErrNotFound
	}
	return a, nil
}

func (f *fakeIndexer) LookupAssetBalances(_ context.Context, _, _ uint64, _ int, _ string) (pagination.Page[entity.AlgorandHolding], error) {
	return pagination.Page[entity.AlgorandHolding]{Items: f.balances}, nil
}

func (f *fakeIndexer) LookupAssetTransactions(_ context.Context, _ uint64, after time.Time, _ int, next string) (pagination.Page[entity.RawTransaction], error) {
	f.mu.Lock()
	f.lastAfter = after
	f.mu.Unlock()
	// two pages repeating the same group
	if next == "" {
		return pagination.Page[entity.RawTransaction]{Items: f.assetTxs, NextCursor: "n1"}, nil
	}
	return pagination.Page[entity.RawTransaction]{Items: f.assetTxs}, nil
}

func (f *fakeIndexer) SearchForTransactionsByRound(_ context.Context, r uint64, _ string) (pagination.Page[entity.RawTransaction], error) {
	f.mu.Lock()
	f.roundCalls++
	f.mu.Unlock()
	return pagination.Page[entity.RawTransaction]{Items: f.rounds[r]}, nil
}

func (f *fakeIndexer) LookupTransactionByID(_ context.Context, id string) (entity.RawTransaction, error) {
	tx, ok := f.byID[id]
	if !ok {
		return entity.RawTransaction{}, entity.ErrNotFound
	}
	return tx, nil
}

type recordingPublisher struct {
	mu  sync.Mutex
	ids []string
}

func (p *recordingPublisher) PublishTransaction(_ context.Context, _ entity.Token, tx entity.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, tx.TransactionID)
	return nil
}

func asset(id uint64, creator, unit string, decimals uint8, total uint64) entity.AlgorandAsset {
	return entity.AlgorandAsset{Index: id, Params: entity.AlgorandAssetParams{
		Creator: creator, Name: unit + " name", UnitName: unit, Decimals: decimals, Total: total,
	}}
}

func swapGroup() []entity.RawTransaction {
	return []entity.RawTransaction{
		{
			ID: "T1", Type: "axfer", Sender: alice, Group: group, ConfirmedRound: round, RoundTime: 1_700_000_000,
			AssetTransfer: &entity.AssetTransfer{AssetID: assetX, Receiver: bob, Amount: 100},
			InnerTxns: []entity.RawTransaction{{
				Type: "axfer", Sender: bob,
				AssetTransfer: &entity.AssetTransfer{AssetID: assetUSD, Receiver: alice, Amount: 50},
			}},
		},
	}
}

type fixture struct {
	indexer   *fakeIndexer
	tokens    *memory.TokenStore
	txs       *memory.TransactionStore
	rec       port.Reconciler
	publisher *recordingPublisher
	strategy  *Strategy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	idx := &fakeIndexer{
		assets: map[uint64]entity.AlgorandAsset{
			assetX:   asset(assetX, LoftyCreator, "LOFTY10", 0, 1000),
			assetUSD: asset(assetUSD, "USDCCREATOR", "USDC", 6, 18_000_000_000_000_000),
		},
		rounds: map[uint64][]entity.RawTransaction{
			round: append(swapGroup(), entity.RawTransaction{ID: "OTHER", Type: "pay", Sender: "X", Group: "b3RoZXI=",
				Payment: &entity.PaymentTransfer{Receiver: "Y", Amount: 1}}),
		},
		byID: map[string]entity.RawTransaction{"T1": swapGroup()[0]},
	}
	f := &fixture{
		indexer:   idx,
		tokens:    memory.NewTokenStore(),
		txs:       memory.NewTransactionStore(),
		publisher: &recordingPublisher{},
	}
	f.rec = service.NewReconciler(f.tokens, memory.NewHolderStore(), f.txs, zap.NewNop())

	sched := scheduler.New(scheduler.Config{MaxConcurrent: 4})
	t.Cleanup(sched.Close)
	f.strategy = New(Lofty(), idx, sched, f.rec, f.publisher, zap.NewNop())
	return f
}

func TestDiscover_PrefetchesAndExcludes(t *testing.T) {
	f := newFixture(t)
	f.indexer.assetPages = []pagination.Page[entity.AlgorandAsset]{
		{Items: []entity.AlgorandAsset{asset(assetX, LoftyCreator, "LOFTY10", 2, 123_456)}, NextCursor: "p2"},
		{Items: []entity.AlgorandAsset{asset(237267329, LoftyCreator, "LOFTYDAO", 0, 1)}},
	}

	got, err := f.strategy.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "10", got[0].Address)
	require.NotNil(t, got[0].Prefetched)
	assert.Equal(t, "LOFTY10", got[0].Prefetched.Symbol)
	assert.Equal(t, int64(1234), got[0].Prefetched.TotalSupply.Int64())

	meta, err := f.strategy.FetchMetadata(context.Background(), got[0], 0)
	require.NoError(t, err)
	assert.Same(t, got[0].Prefetched, meta)
}

func TestFetchMetadata_LooksUpWithoutPrefetch(t *testing.T) {
	f := newFixture(t)
	meta, err := f.strategy.FetchMetadata(context.Background(), entity.Candidate{Address: "31566704"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "USDC", meta.Symbol)
	assert.Equal(t, int64(18_000_000_000), meta.TotalSupply.Int64())

	_, err = f.strategy.FetchMetadata(context.Background(), entity.Candidate{Address: "0xabc"}, 0)
	assert.ErrorIs(t, err, entity.ErrRejected)
}

func TestEnumerateHolders_SkipsCreator(t *testing.T) {
	f := newFixture(t)
	in := uint64(77)
	f.indexer.balances = []entity.AlgorandHolding{
		{Address: LoftyCreator, Amount: 900},
		{Address: alice, Amount: 60, OptedInAtRound: &in},
		{Address: bob, Amount: 40, Deleted: true},
	}

	var got []entity.HolderBalance
	err := f.strategy.EnumerateHolders(context.Background(), entity.Token{Address: "10"}, func(hb entity.HolderBalance) error {
		got = append(got, hb)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, alice, got[0].Address)
	assert.Equal(t, int64(60), got[0].Balance.Int64())
	assert.Equal(t, uint64(77), *got[0].OptedInAtRound)
	assert.True(t, got[1].Deleted)
}

func TestSyncTransactions_StoresSwapOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.strategy.now = func() time.Time { return now }

	token, err := f.rec.FindOrCreateToken(ctx, entity.Token{ApplicationID: 1, Network: "algorand", Address: "10", Symbol: "LOFTY10"})
	require.NoError(t, err)

	// the group shows up twice in the asset history: once per leg
	f.indexer.assetTxs = append(swapGroup(), swapGroup()...)

	require.NoError(t, f.strategy.SyncTransactions(ctx, token))
	assert.Equal(t, 1, f.indexer.roundCalls, "a group is parsed once per pass")
	assert.Equal(t, now.Add(-2*365*24*time.Hour), f.indexer.lastAfter)

	all := f.txs.All()
	require.Len(t, all, 1)
	tx := all[0]
	assert.Equal(t, "500:"+group, tx.TransactionID)
	assert.Equal(t, token.ID, tx.TokenID)
	assert.True(t, tx.IsSwap)
	assert.Equal(t, alice, tx.FromAddress)
	assert.Equal(t, bob, tx.ToAddress)
	assert.Equal(t, int64(100), tx.Amount.Int64())
	assert.Equal(t, int64(50), tx.SwapAmount.Int64())
	assert.Equal(t, time.Unix(1_700_000_000, 0).UTC(), tx.Date)

	swap, err := f.rec.FindToken(ctx, "algorand", "31566704")
	require.NoError(t, err)
	require.NotNil(t, tx.SwapTokenID)
	assert.Equal(t, swap.ID, *tx.SwapTokenID)
	assert.Zero(t, swap.ApplicationID, "foreign assets stay out of the partner's holder syncs")
	assert.True(t, swap.IsGlobalToken)

	stored, err := f.rec.FindToken(ctx, "algorand", "10")
	require.NoError(t, err)
	require.NotNil(t, stored.LastTransactionAt)
	assert.Equal(t, tx.Date, *stored.LastTransactionAt)

	// second pass is idempotent and publishes nothing new
	require.NoError(t, f.strategy.SyncTransactions(ctx, token))
	assert.Len(t, f.txs.All(), 1)
	assert.Equal(t, []string{"500:" + group}, f.publisher.ids)
}

func TestSyncTransaction_ByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.strategy.SyncTransaction(ctx, "T1"))
	require.Len(t, f.txs.All(), 1)

	// the token of the sent asset is created on first sight under the partner
	token, err := f.rec.FindToken(ctx, "algorand", "10")
	require.NoError(t, err)
	assert.Equal(t, 1, token.ApplicationID)

	assert.ErrorIs(t, f.strategy.SyncTransaction(ctx, "missing"), entity.ErrNotFound)
}
