package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"chain_sync/internal/app/port"
	"chain_sync/internal/domain/entity"

	"go.uber.org/zap"
)

const (
	// StalenessWindow is how long a token's holders stay fresh after a successful pass.
	StalenessWindow = 5 * time.Hour
	// StaleTokenLimit bounds how many tokens one holder pass picks up.
	StaleTokenLimit = 100
)

// reconcilerImpl implements port.Reconciler.
type reconcilerImpl struct {
	tokens  port.TokenStore
	holders port.HolderStore
	txs     port.TransactionStore
	logger  *zap.Logger
	now     func() time.Time
}

// NewReconciler creates a new instance of reconcilerImpl.
func NewReconciler(tokens port.TokenStore, holders port.HolderStore, txs port.TransactionStore, logger *zap.Logger) port.Reconciler {
	return &reconcilerImpl{
		tokens:  tokens,
		holders: holders,
		txs:     txs,
		logger:  logger.Named("Reconciler"),
		now:     time.Now,
	}
}

func (r *reconcilerImpl) FindOrCreateToken(ctx context.Context, t entity.Token) (entity.Token, error) {
	if t.Network == "" || t.Address == "" {
		return entity.Token{}, fmt.Errorf("token network and address are required")
	}
	if t.TotalSupply == nil {
		t.TotalSupply = new(big.Int)
	}

	existing, err := r.tokens.FindByAddress(ctx, t.Network, t.Address)
	switch {
	case err == nil:
		t.ID = existing.ID
		return r.overwriteToken(ctx, t)
	case !errors.Is(err, entity.ErrNotFound):
		return entity.Token{}, fmt.Errorf("find token %s/%s: %w", t.Network, t.Address, err)
	}

	stored, err := r.tokens.Insert(ctx, t)
	if errors.Is(err, entity.ErrDuplicateKey) {
		// inserted concurrently, fall back to overwriting the winner
		existing, err = r.tokens.FindByAddress(ctx, t.Network, t.Address)
		if err != nil {
			return entity.Token{}, fmt.Errorf("re-read token %s/%s: %w", t.Network, t.Address, err)
		}
		t.ID = existing.ID
		return r.overwriteToken(ctx, t)
	}
	if err != nil {
		return entity.Token{}, fmt.Errorf("insert token %s/%s: %w", t.Network, t.Address, err)
	}
	r.logger.Debug("Token created", zap.String("network", t.Network), zap.String("address", t.Address), zap.String("symbol", t.Symbol))
	return stored, nil
}

func (r *reconcilerImpl) overwriteToken(ctx context.Context, t entity.Token) (entity.Token, error) {
	stored, err := r.tokens.Update(ctx, t)
	if err != nil {
		return entity.Token{}, fmt.Errorf("update token %s/%s: %w", t.Network, t.Address, err)
	}
	return stored, nil
}

func (r *reconcilerImpl) FindToken(ctx context.Context, network, address string) (entity.Token, error) {
	return r.tokens.FindByAddress(ctx, network, address)
}

func (r *reconcilerImpl) FindOrCreateHolder(ctx context.Context, h entity.Holder) (entity.Holder, bool, error) {
	if h.Balance == nil || h.Balance.Sign() < 0 {
		h.Balance = new(big.Int)
	}

	existing, err := r.holders.Find(ctx, h.TokenID, h.Address)
	switch {
	case err == nil:
		h.ID = existing.ID
		stored, err := r.holders.Update(ctx, h)
		if err != nil {
			return entity.Holder{}, false, fmt.Errorf("update holder %s of token %d: %w", h.Address, h.TokenID, err)
		}
		return stored, true, nil
	case !errors.Is(err, entity.ErrNotFound):
		return entity.Holder{}, false, fmt.Errorf("find holder %s of token %d: %w", h.Address, h.TokenID, err)
	}

	if h.IsEmpty() {
		return entity.Holder{}, false, nil
	}

	stored, err := r.holders.Insert(ctx, h)
	if errors.Is(err, entity.ErrDuplicateKey) {
		stored, err = r.holders.Update(ctx, h)
	}
	if err != nil {
		return entity.Holder{}, false, fmt.Errorf("insert holder %s of token %d: %w", h.Address, h.TokenID, err)
	}
	return stored, true, nil
}

func (r *reconcilerImpl) FindOrCreateTransaction(ctx context.Context, tx entity.Transaction) (entity.Transaction, bool, error) {
	existing, err := r.txs.Find(ctx, tx.TokenID, tx.TransactionID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, entity.ErrNotFound) {
		return entity.Transaction{}, false, fmt.Errorf("find transaction %s: %w", tx.TransactionID, err)
	}

	stored, err := r.txs.Insert(ctx, tx)
	if errors.Is(err, entity.ErrDuplicateKey) {
		existing, err = r.txs.Find(ctx, tx.TokenID, tx.TransactionID)
		if err != nil {
			return entity.Transaction{}, false, fmt.Errorf("re-read transaction %s: %w", tx.TransactionID, err)
		}
		return existing, false, nil
	}
	if err != nil {
		return entity.Transaction{}, false, fmt.Errorf("insert transaction %s: %w", tx.TransactionID, err)
	}
	return stored, true, nil
}

func (r *reconcilerImpl) ListLastSyncedTokens(ctx context.Context, applicationID int) ([]entity.Token, error) {
	cutoff := r.now().Add(-StalenessWindow)
	tokens, err := r.tokens.ListStale(ctx, applicationID, cutoff, StaleTokenLimit)
	if err != nil {
		return nil, fmt.Errorf("list stale tokens of application %d: %w", applicationID, err)
	}
	return tokens, nil
}

func (r *reconcilerImpl) UpdateLastSyncedAt(ctx context.Context, tokenID int64) error {
	return r.tokens.SetLastSyncedAt(ctx, tokenID, r.now())
}

func (r *reconcilerImpl) TouchLastTransactionAt(ctx context.Context, token entity.Token, at time.Time) error {
	if token.LastTransactionAt != nil && !at.After(*token.LastTransactionAt) {
		return nil
	}
	return r.tokens.SetLastTransactionAt(ctx, token.ID, at)
}

func (r *reconcilerImpl) ListHolders(ctx context.Context, tokenID int64) ([]entity.Holder, error) {
	return r.holders.ListByToken(ctx, tokenID)
}

func (r *reconcilerImpl) DeleteEmptyHolders(ctx context.Context, tokenID int64) (int64, error) {
	n, err := r.holders.DeleteEmpty(ctx, tokenID)
	if err != nil {
		return 0, fmt.Errorf("delete empty holders of token %d: %w", tokenID, err)
	}
	return n, nil
}

func (r *reconcilerImpl) DeleteHolder(ctx context.Context, tokenID int64, address string) error {
	err := r.holders.Delete(ctx, tokenID, address)
	if err != nil && !errors.Is(err, entity.ErrNotFound) {
		return fmt.Errorf("delete holder %s of token %d: %w", address, tokenID, err)
	}
	return nil
}
