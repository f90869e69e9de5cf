package entity

import "math/big"

// Holder is a balance snapshot of one address for one token. (TokenID, Address) is unique.
type Holder struct {
	ID              int64
	TokenID         int64
	Address         string
	Balance         *big.Int
	OptedInAtRound  *uint64
	OptedOutAtRound *uint64
	Deleted         bool
}

// HolderBalance is one row produced by a holder enumeration.
type HolderBalance struct {
	Address         string
	Balance         *big.Int
	OptedInAtRound  *uint64
	OptedOutAtRound *uint64
	Deleted         bool
}

// IsEmpty reports whether the holder currently holds nothing.
func (h Holder) IsEmpty() bool {
	return h.Balance == nil || h.Balance.Sign() <= 0
}

func (h Holder) Clone() Holder {
	out := h
	if h.Balance != nil {
		out.Balance = new(big.Int).Set(h.Balance)
	}
	if h.OptedInAtRound != nil {
		v := *h.OptedInAtRound
		out.OptedInAtRound = &v
	}
	if h.OptedOutAtRound != nil {
		v := *h.OptedOutAtRound
		out.OptedOutAtRound = &v
	}
	return out
}
