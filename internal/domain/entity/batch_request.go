package entity

import "math/big"

// ZeroAddress represents the EVM zero address.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// BalanceRequestItem is one balanceOf read inside a JSON-RPC batch.
type BalanceRequestItem struct {
	TokenAddress  string
	WalletAddress string
}

// BalanceResultItem is the outcome of one BalanceRequestItem.
type BalanceResultItem struct {
	TokenAddress  string
	WalletAddress string
	Balance       *big.Int
	Error         error
}

// EVMTransaction is the subset of a mined EVM transaction the adapters read.
// TransferRecipient is set when the input decodes as ERC20 transfer(address,uint256).
type EVMTransaction struct {
	Hash              string
	From              string
	To                string
	TransferRecipient string
	Pending           bool
}
