package postgres

import (
	"context"
	"math/big"
	"testing"
	"time"

	"chain_sync/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) *Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests are skipped in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("chain_sync"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	// second run must be a no-op
	require.NoError(t, RunMigrations(ctx, pool))
	return pool
}

func TestPostgresStores(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	tokens := NewTokenStore(pool)
	holders := NewHolderStore(pool)
	txs := NewTransactionStore(pool)

	supply, _ := new(big.Int).SetString("1000000000000000000000000", 10)

	t.Run("tokens", func(t *testing.T) {
		tok, err := tokens.Insert(ctx, entity.Token{
			ApplicationID:  3,
			Network:        "gnosis",
			Address:        "0xAbC0000000000000000000000000000000000001",
			Name:           "RealToken S 1 Main St",
			Symbol:         "REALTOKEN-S-1",
			Decimals:       18,
			TotalSupply:    supply,
			AdditionalInfo: []byte(`{"fullName":"1 Main St"}`),
		})
		require.NoError(t, err)
		assert.NotZero(t, tok.ID)
		assert.Equal(t, 0, supply.Cmp(tok.TotalSupply))
		assert.Nil(t, tok.LastSyncedAt)

		_, err = tokens.Insert(ctx, entity.Token{Network: "gnosis", Address: "0xabc0000000000000000000000000000000000001"})
		assert.ErrorIs(t, err, entity.ErrDuplicateKey)

		found, err := tokens.FindByAddress(ctx, "gnosis", "0xabc0000000000000000000000000000000000001")
		require.NoError(t, err)
		assert.Equal(t, tok.ID, found.ID)
		assert.JSONEq(t, `{"fullName":"1 Main St"}`, string(found.AdditionalInfo))

		_, err = tokens.FindByAddress(ctx, "ethereum", tok.Address)
		assert.ErrorIs(t, err, entity.ErrNotFound)

		found.Name = "renamed"
		updated, err := tokens.Update(ctx, found)
		require.NoError(t, err)
		assert.Equal(t, "renamed", updated.Name)

		_, err = tokens.Update(ctx, entity.Token{ID: 999999})
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})

	t.Run("list stale and touch", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Microsecond)
		var ids []int64
		for i, addr := range []string{"0x01", "0x02", "0x03"} {
			tok, err := tokens.Insert(ctx, entity.Token{ApplicationID: 7, Network: "polygon", Address: addr, TotalSupply: big.NewInt(int64(i))})
			require.NoError(t, err)
			ids = append(ids, tok.ID)
		}
		require.NoError(t, tokens.SetLastSyncedAt(ctx, ids[0], now.Add(-2*time.Hour)))
		require.NoError(t, tokens.SetLastSyncedAt(ctx, ids[1], now.Add(-1*time.Hour)))

		stale, err := tokens.ListStale(ctx, 7, now.Add(-30*time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, stale, 3)
		assert.Equal(t, []int64{ids[2], ids[1], ids[0]}, []int64{stale[0].ID, stale[1].ID, stale[2].ID})

		limited, err := tokens.ListStale(ctx, 7, now.Add(-30*time.Minute), 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		require.NoError(t, tokens.SetLastTransactionAt(ctx, ids[0], now))
		require.NoError(t, tokens.SetLastTransactionAt(ctx, ids[0], now.Add(-time.Hour)))
		tok, err := tokens.FindByAddress(ctx, "polygon", "0x01")
		require.NoError(t, err)
		require.NotNil(t, tok.LastTransactionAt)
		assert.True(t, tok.LastTransactionAt.Equal(now))

		assert.ErrorIs(t, tokens.SetLastSyncedAt(ctx, 999999, now), entity.ErrNotFound)
	})

	t.Run("holders", func(t *testing.T) {
		tok, err := tokens.Insert(ctx, entity.Token{ApplicationID: 1, Network: "algorand", Address: "123"})
		require.NoError(t, err)

		round := uint64(42)
		h, err := holders.Insert(ctx, entity.Holder{TokenID: tok.ID, Address: "ALICE", Balance: big.NewInt(5), OptedInAtRound: &round})
		require.NoError(t, err)
		require.NotNil(t, h.OptedInAtRound)
		assert.Equal(t, round, *h.OptedInAtRound)

		_, err = holders.Insert(ctx, entity.Holder{TokenID: tok.ID, Address: "alice", Balance: big.NewInt(1)})
		assert.ErrorIs(t, err, entity.ErrDuplicateKey)

		_, err = holders.Insert(ctx, entity.Holder{TokenID: tok.ID, Address: "BOB", Balance: big.NewInt(3)})
		require.NoError(t, err)

		h.Balance = big.NewInt(0)
		_, err = holders.Update(ctx, h)
		require.NoError(t, err)

		n, err := holders.DeleteEmpty(ctx, tok.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		list, err := holders.ListByToken(ctx, tok.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "BOB", list[0].Address)

		require.NoError(t, holders.Delete(ctx, tok.ID, "bob"))
		assert.ErrorIs(t, holders.Delete(ctx, tok.ID, "bob"), entity.ErrNotFound)
		_, err = holders.Find(ctx, tok.ID, "BOB")
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})

	t.Run("transactions", func(t *testing.T) {
		tok, err := tokens.Insert(ctx, entity.Token{ApplicationID: 1, Network: "algorand", Address: "456"})
		require.NoError(t, err)
		other, err := tokens.Insert(ctx, entity.Token{Network: "algorand", Address: "31566704", IsGlobalToken: true})
		require.NoError(t, err)

		date := time.Unix(1700000000, 0).UTC()
		tx, err := txs.Insert(ctx, entity.Transaction{
			TokenID:       tok.ID,
			TransactionID: "100:abc",
			Date:          date,
			IsSwap:        true,
			FromAddress:   "ALICE",
			ToAddress:     "BOB",
			Amount:        big.NewInt(10),
			SwapAmount:    big.NewInt(2500000),
			SwapTokenID:   &other.ID,
		})
		require.NoError(t, err)
		assert.NotZero(t, tx.ID)

		_, err = txs.Insert(ctx, entity.Transaction{TokenID: tok.ID, TransactionID: "100:abc", Date: date, Amount: big.NewInt(1)})
		assert.ErrorIs(t, err, entity.ErrDuplicateKey)

		found, err := txs.Find(ctx, tok.ID, "100:abc")
		require.NoError(t, err)
		assert.True(t, found.Date.Equal(date))
		assert.Equal(t, "2500000", found.SwapAmount.String())
		require.NotNil(t, found.SwapTokenID)
		assert.Equal(t, other.ID, *found.SwapTokenID)

		plain, err := txs.Insert(ctx, entity.Transaction{TokenID: tok.ID, TransactionID: "101:def", Date: date, Amount: big.NewInt(1)})
		require.NoError(t, err)
		assert.Nil(t, plain.SwapAmount)
		assert.Nil(t, plain.SwapTokenID)

		_, err = txs.Find(ctx, tok.ID, "missing")
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})
}
