// Package netting reduces an atomic transaction group to one net transfer.
//
// Every ledger entry of the group, inner transactions included, is turned into
// a movement keyed by (ordinal, sender, receiver[, asset]). Movements with the
// same key are summed. The movements are then collapsed into at most two legs:
// the first asset seen is the sending leg, a second asset is the receiving leg.
package netting

import (
	"fmt"
	"time"

	"chain_sync/internal/domain/entity"
)

type movement struct {
	sender   string
	receiver string
	assetID  *uint64 // nil for native currency
	amount   uint64
}

// ledger is an insertion-ordered set of movements. Values are never mutated
// once returned; merge builds a new one.
type ledger struct {
	keys    []string
	entries map[string]movement
}

func (l ledger) first() (movement, bool) {
	if len(l.keys) == 0 {
		return movement{}, false
	}
	return l.entries[l.keys[0]], true
}

// Net returns the net transfer of a group, or nil when the group is empty.
// Use NetTransfer.Resolved to tell whether an asset movement was found.
func Net(round uint64, roundTime int64, group string, txs []entity.RawTransaction) *entity.NetTransfer {
	if len(txs) == 0 {
		return nil
	}

	out := &entity.NetTransfer{
		ID:   TransactionID(round, group),
		Date: time.Unix(roundTime, 0).UTC(),
	}

	if len(txs) == 1 && len(txs[0].InnerTxns) == 0 {
		out.Sender = txs[0].Sender
		if m, ok := direct(txs[0], 0).first(); ok {
			out.SenderAssetID = m.assetID
			out.SenderAmount = m.amount
			out.Receiver = m.receiver
			out.ReceiverAssetID = m.assetID
			out.ReceiverAmount = m.amount
		}
		return out
	}

	var total ledger
	for _, tx := range txs {
		total = merge(total, movements(tx, 0))
	}

	from, to := collapse(total)
	if from == nil {
		return out
	}
	out.Sender = from.sender
	out.SenderAssetID = from.assetID
	out.SenderAmount = from.amount
	if to != nil {
		// the counter leg is sent back by the party that received the first leg
		out.Receiver = to.sender
		out.ReceiverAssetID = to.assetID
		out.ReceiverAmount = to.amount
	} else {
		out.Receiver = from.receiver
		out.ReceiverAssetID = from.assetID
		out.ReceiverAmount = from.amount
	}
	return out
}

// TransactionID is the stored identifier of a group: "<round>:<group>".
func TransactionID(round uint64, group string) string {
	return fmt.Sprintf("%d:%s", round, group)
}

// movements collects tx and its inner transactions. The k-th inner
// transaction of an entry at ordinal i is keyed at ordinal i+k.
func movements(tx entity.RawTransaction, ordinal int) ledger {
	l := direct(tx, ordinal)
	i := ordinal
	for _, inner := range tx.InnerTxns {
		i++
		l = merge(l, movements(inner, i))
	}
	return l
}

// direct returns the movements of tx itself, ignoring inner transactions.
// Zero amounts (opt-ins, close-outs) carry no value and are skipped.
func direct(tx entity.RawTransaction, ordinal int) ledger {
	var l ledger
	if p := tx.Payment; p != nil && p.Amount > 0 {
		key := fmt.Sprintf("%d-%s-%s", ordinal, tx.Sender, p.Receiver)
		l = merge(l, single(key, movement{sender: tx.Sender, receiver: p.Receiver, amount: p.Amount}))
	}
	if a := tx.AssetTransfer; a != nil && a.Amount > 0 {
		assetID := a.AssetID
		key := fmt.Sprintf("%d-%s-%s-%d", ordinal, tx.Sender, a.Receiver, assetID)
		l = merge(l, single(key, movement{sender: tx.Sender, receiver: a.Receiver, assetID: &assetID, amount: a.Amount}))
	}
	return l
}

func single(key string, m movement) ledger {
	return ledger{keys: []string{key}, entries: map[string]movement{key: m}}
}

// merge returns a new ledger holding a followed by b, summing amounts of shared keys.
func merge(a, b ledger) ledger {
	out := ledger{
		keys:    make([]string, 0, len(a.keys)+len(b.keys)),
		entries: make(map[string]movement, len(a.keys)+len(b.keys)),
	}
	for _, k := range a.keys {
		out.keys = append(out.keys, k)
		out.entries[k] = a.entries[k]
	}
	for _, k := range b.keys {
		m := b.entries[k]
		if cur, ok := out.entries[k]; ok {
			cur.amount += m.amount
			out.entries[k] = cur
			continue
		}
		out.keys = append(out.keys, k)
		out.entries[k] = m
	}
	return out
}

// collapse folds movements into a sending and an optional receiving leg.
// A leg still holding native currency is displaced by the next movement.
// Movements in a third asset are ignored.
func collapse(l ledger) (from, to *movement) {
	for _, k := range l.keys {
		m := l.entries[k]
		switch {
		case from == nil || from.assetID == nil:
			from = &m
		case sameAsset(*from, m):
			from = absorb(*from, m)
		case to == nil || to.assetID == nil:
			to = &m
		case sameAsset(*to, m):
			to = absorb(*to, m)
		}
	}
	return from, to
}

func sameAsset(a, b movement) bool {
	return a.assetID != nil && b.assetID != nil && *a.assetID == *b.assetID
}

// absorb adds m into leg. The larger flow decides who the leg's parties are.
func absorb(leg, m movement) *movement {
	out := leg
	if m.amount > leg.amount {
		out.sender = m.sender
		out.receiver = m.receiver
	}
	out.amount += m.amount
	return &out
}
