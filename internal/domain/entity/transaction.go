package entity

import (
	"math/big"
	"time"
)

// Transaction is the net effect of one transaction group for one token.
// (TokenID, TransactionID) is unique and rows are never updated.
type Transaction struct {
	ID            int64
	TokenID       int64
	TransactionID string // "<round>:<group>"
	Date          time.Time
	IsSwap        bool
	FromAddress   string
	ToAddress     string
	Amount        *big.Int
	SwapAmount    *big.Int
	SwapTokenID   *int64
}

func (t Transaction) Clone() Transaction {
	out := t
	if t.Amount != nil {
		out.Amount = new(big.Int).Set(t.Amount)
	}
	if t.SwapAmount != nil {
		out.SwapAmount = new(big.Int).Set(t.SwapAmount)
	}
	if t.SwapTokenID != nil {
		v := *t.SwapTokenID
		out.SwapTokenID = &v
	}
	return out
}
