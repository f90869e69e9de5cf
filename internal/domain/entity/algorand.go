package entity

import "time"

// AlgorandAsset is an asset record as listed by the indexer.
type AlgorandAsset struct {
	Index   uint64
	Deleted bool
	Params  AlgorandAssetParams
}

type AlgorandAssetParams struct {
	Creator  string
	Name     string
	UnitName string
	Decimals uint8
	Total    uint64
	URL      string
}

// AlgorandHolding is one positive balance of an asset.
type AlgorandHolding struct {
	Address         string
	Amount          uint64
	Deleted         bool
	OptedInAtRound  *uint64
	OptedOutAtRound *uint64
}

// RawTransaction is a ledger entry as returned by the indexer, with inner
// transactions nested to any depth.
type RawTransaction struct {
	ID             string
	Type           string
	Sender         string
	Group          string // base64, empty when the entry is not grouped
	ConfirmedRound uint64
	RoundTime      int64 // unix seconds
	Payment        *PaymentTransfer
	AssetTransfer  *AssetTransfer
	InnerTxns      []RawTransaction
}

// PaymentTransfer is a native-currency movement.
type PaymentTransfer struct {
	Receiver string
	Amount   uint64
}

// AssetTransfer is a movement of one asset.
type AssetTransfer struct {
	AssetID  uint64
	Receiver string
	Amount   uint64
}

// NetTransfer is the netted result of one transaction group.
// A nil SenderAssetID means the leg moved native currency.
type NetTransfer struct {
	ID              string
	Date            time.Time
	Sender          string
	SenderAssetID   *uint64
	SenderAmount    uint64
	Receiver        string
	ReceiverAssetID *uint64
	ReceiverAmount  uint64
}

// Resolved reports whether the group moved an identifiable asset from an identifiable sender.
func (n *NetTransfer) Resolved() bool {
	return n != nil && n.Sender != "" && n.SenderAssetID != nil
}

// IsSwap reports whether something other than the sent asset came back:
// a second asset or native currency.
func (n *NetTransfer) IsSwap() bool {
	if !n.Resolved() {
		return false
	}
	return n.ReceiverAssetID == nil || *n.ReceiverAssetID != *n.SenderAssetID
}
