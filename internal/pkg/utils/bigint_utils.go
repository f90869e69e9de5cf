package utils

import (
	"fmt"
	"math/big"
)

var ten = big.NewInt(10)

// Pow10 returns 10^decimals.
func Pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(decimals)), nil)
}

// NormalizeUnits converts a raw on-chain amount to whole token units,
// rounding toward zero. Nil and negative amounts normalise to 0.
// Example: amount=1234500000000000000, decimals=18 => 1
func NormalizeUnits(amount *big.Int, decimals uint8) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return new(big.Int)
	}
	if decimals == 0 {
		return new(big.Int).Set(amount)
	}
	return new(big.Int).Quo(amount, Pow10(decimals))
}

// NormalizeUint64 is NormalizeUnits for indexer amounts.
func NormalizeUint64(amount uint64, decimals uint8) *big.Int {
	return NormalizeUnits(new(big.Int).SetUint64(amount), decimals)
}

// ParseBigInt parses a base-10 integer, as returned for NUMERIC columns.
func ParseBigInt(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}

// BigIntString formats v for a NUMERIC column, nil as 0.
func BigIntString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
