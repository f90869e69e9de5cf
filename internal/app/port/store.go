package port

import (
	"context"
	"time"

	"chain_sync/internal/domain/entity"
)

// TokenStore persists tokens. Lookups by address are case-insensitive.
type TokenStore interface {
	FindByAddress(ctx context.Context, network, address string) (entity.Token, error)
	Insert(ctx context.Context, token entity.Token) (entity.Token, error)
	// Update overwrites the mutable metadata of the token with token.ID.
	Update(ctx context.Context, token entity.Token) (entity.Token, error)
	// ListStale returns tokens of an application whose holders were never synced
	// or were last synced before cutoff, never-synced first, then most recent first.
	ListStale(ctx context.Context, applicationID int, cutoff time.Time, limit int) ([]entity.Token, error)
	SetLastSyncedAt(ctx context.Context, tokenID int64, at time.Time) error
	// SetLastTransactionAt only ever advances the stored date.
	SetLastTransactionAt(ctx context.Context, tokenID int64, at time.Time) error
}

// HolderStore persists holder balance snapshots.
type HolderStore interface {
	Find(ctx context.Context, tokenID int64, address string) (entity.Holder, error)
	ListByToken(ctx context.Context, tokenID int64) ([]entity.Holder, error)
	Insert(ctx context.Context, holder entity.Holder) (entity.Holder, error)
	Update(ctx context.Context, holder entity.Holder) (entity.Holder, error)
	// DeleteEmpty removes every holder of tokenID whose balance is zero.
	DeleteEmpty(ctx context.Context, tokenID int64) (int64, error)
	Delete(ctx context.Context, tokenID int64, address string) error
}

// TransactionStore persists netted transactions. Rows are immutable.
type TransactionStore interface {
	Find(ctx context.Context, tokenID int64, transactionID string) (entity.Transaction, error)
	Insert(ctx context.Context, tx entity.Transaction) (entity.Transaction, error)
}

// Reconciler applies the idempotent upsert rules on top of the stores.
type Reconciler interface {
	// FindOrCreateToken inserts the token or overwrites the stored metadata of (network, address).
	FindOrCreateToken(ctx context.Context, token entity.Token) (entity.Token, error)
	// FindToken returns the stored token or entity.ErrNotFound.
	FindToken(ctx context.Context, network, address string) (entity.Token, error)
	// FindOrCreateHolder updates an existing holder (even to zero) and inserts
	// only positive balances. It reports whether a row exists afterwards.
	FindOrCreateHolder(ctx context.Context, holder entity.Holder) (entity.Holder, bool, error)
	// FindOrCreateTransaction inserts the transaction if absent. created is false for an existing row.
	FindOrCreateTransaction(ctx context.Context, tx entity.Transaction) (stored entity.Transaction, created bool, err error)
	ListLastSyncedTokens(ctx context.Context, applicationID int) ([]entity.Token, error)
	UpdateLastSyncedAt(ctx context.Context, tokenID int64) error
	TouchLastTransactionAt(ctx context.Context, token entity.Token, at time.Time) error
	ListHolders(ctx context.Context, tokenID int64) ([]entity.Holder, error)
	DeleteEmptyHolders(ctx context.Context, tokenID int64) (int64, error)
	DeleteHolder(ctx context.Context, tokenID int64, address string) error
}
