package port

import (
	"context"

	"chain_sync/internal/domain/entity"
)

// Syncer is one adapter as seen by the trigger surfaces.
type Syncer interface {
	Name() string
	SyncTokens(ctx context.Context) error
	SyncHolders(ctx context.Context) error
}

// PartnerMetadataSource returns partner-curated metadata keyed by lower-cased token address.
// The values are opaque JSON documents.
type PartnerMetadataSource interface {
	Name() string
	Fetch(ctx context.Context) (map[string][]byte, error)
}

// RunLock is a non-reentrant, skip-if-held lock.
type RunLock interface {
	// TryAcquire returns ok=false without blocking when key is already held.
	TryAcquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

// EventPublisher announces newly reconciled transactions to downstream consumers.
type EventPublisher interface {
	PublishTransaction(ctx context.Context, token entity.Token, tx entity.Transaction) error
}
