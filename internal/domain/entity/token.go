package entity

import (
	"math/big"
	"time"
)

// Token identifies a fungible asset on one network. (Network, Address) is unique.
type Token struct {
	ID                int64
	ApplicationID     int
	Network           string
	Address           string
	Name              string
	Symbol            string
	Decimals          uint8
	TotalSupply       *big.Int
	Creator           string
	IsGlobalToken     bool
	AdditionalInfo    []byte // opaque partner JSON, nil when the partner had nothing
	LastSyncedAt      *time.Time
	LastTransactionAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TokenMetadata is what a strategy reads from chain for one candidate.
type TokenMetadata struct {
	Address     string
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply *big.Int // already normalised to whole units
	Creator     string
}

// Candidate is a discovered token address that still has to pass the metadata filter.
// Prefetched is set when discovery already returned full metadata (Algorand asset listings).
type Candidate struct {
	Address    string
	Prefetched *TokenMetadata
}

// Clone returns a deep copy safe to hand out of a store.
func (t Token) Clone() Token {
	out := t
	if t.TotalSupply != nil {
		out.TotalSupply = new(big.Int).Set(t.TotalSupply)
	}
	if t.AdditionalInfo != nil {
		out.AdditionalInfo = append([]byte(nil), t.AdditionalInfo...)
	}
	if t.LastSyncedAt != nil {
		v := *t.LastSyncedAt
		out.LastSyncedAt = &v
	}
	if t.LastTransactionAt != nil {
		v := *t.LastTransactionAt
		out.LastTransactionAt = &v
	}
	return out
}
