package port

import (
	"context"
	"math/big"
	"time"

	"chain_sync/internal/domain/entity"
	"chain_sync/internal/pkg/pagination"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EVMChainClient is the read-only view of one EVM network used by the adapters.
type EVMChainClient interface {
	// BlockNumber returns the latest block height.
	BlockNumber(ctx context.Context) (uint64, error)
	// FilterLogs runs one eth_getLogs query.
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	// TransactionByHash returns entity.ErrNotFound for unknown hashes.
	TransactionByHash(ctx context.Context, hash common.Hash) (entity.EVMTransaction, error)

	TokenSymbol(ctx context.Context, token common.Address) (string, error)
	TokenName(ctx context.Context, token common.Address) (string, error)
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
	TokenTotalSupply(ctx context.Context, token common.Address) (*big.Int, error)
	TokenOwner(ctx context.Context, token common.Address) (common.Address, error)

	// BalancesOf reads balanceOf for every item in one JSON-RPC batch.
	// Per-item failures are reported in the result, not as the returned error.
	BalancesOf(ctx context.Context, items []entity.BalanceRequestItem) ([]entity.BalanceResultItem, error)

	// Definition returns the network definition associated with this client.
	Definition() entity.NetworkDefinition
}

// EVMClientProvider hands out one client per network.
type EVMClientProvider interface {
	GetClient(ctx context.Context, networkIdentifier string) (EVMChainClient, error)
}

// AlgorandIndexer is the subset of the Algorand indexer API the Algorand adapter needs.
// Page cursors are the indexer's next tokens.
type AlgorandIndexer interface {
	SearchForAssets(ctx context.Context, creator string, limit int, next string) (pagination.Page[entity.AlgorandAsset], error)
	LookupAssetByID(ctx context.Context, assetID uint64) (entity.AlgorandAsset, error)
	// LookupAssetBalances lists holdings strictly greater than currencyGreaterThan.
	LookupAssetBalances(ctx context.Context, assetID, currencyGreaterThan uint64, limit int, next string) (pagination.Page[entity.AlgorandHolding], error)
	LookupAssetTransactions(ctx context.Context, assetID uint64, afterTime time.Time, limit int, next string) (pagination.Page[entity.RawTransaction], error)
	SearchForTransactionsByRound(ctx context.Context, round uint64, next string) (pagination.Page[entity.RawTransaction], error)
	LookupTransactionByID(ctx context.Context, txID string) (entity.RawTransaction, error)
}

// ChainStrategy is the network specific part of an adapter.
type ChainStrategy interface {
	// Network is the network name stored on every token of this strategy.
	Network() string
	// Discover returns candidate token addresses, deduplicated.
	Discover(ctx context.Context) ([]entity.Candidate, error)
	// FetchMetadata reads on-chain metadata for one candidate. It returns
	// entity.ErrRejected when the candidate does not belong to the partner.
	FetchMetadata(ctx context.Context, candidate entity.Candidate, priority int) (*entity.TokenMetadata, error)
	// EnumerateHolders calls visit for every current holder of token.
	EnumerateHolders(ctx context.Context, token entity.Token, visit func(entity.HolderBalance) error) error
}

// TransactionSyncer is implemented by strategies that reconstruct swap transactions.
type TransactionSyncer interface {
	SyncTransactions(ctx context.Context, token entity.Token) error
}

// TransactionLookup is implemented by strategies that can reconcile a single
// transaction (and its group) on demand.
type TransactionLookup interface {
	SyncTransaction(ctx context.Context, txID string) error
}

// NetworkDefinitionProvider defines the interface for providing network definitions.
type NetworkDefinitionProvider interface {
	GetAllNetworkDefinitions() []entity.NetworkDefinition
	GetNetworkDefinitionByName(identifier string) (entity.NetworkDefinition, bool)
}
