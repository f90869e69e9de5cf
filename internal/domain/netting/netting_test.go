package netting

import (
	"testing"
	"time"

	"chain_sync/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "ALICEXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX"
	bob   = "BOBXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX"
	carol = "CAROLXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX"
	dave  = "DAVEXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX"

	assetX uint64 = 1001
	assetY uint64 = 2002
)

func axfer(sender, receiver string, asset, amount uint64, inner ...entity.RawTransaction) entity.RawTransaction {
	return entity.RawTransaction{
		Type:          "axfer",
		Sender:        sender,
		AssetTransfer: &entity.AssetTransfer{AssetID: asset, Receiver: receiver, Amount: amount},
		InnerTxns:     inner,
	}
}

func pay(sender, receiver string, amount uint64, inner ...entity.RawTransaction) entity.RawTransaction {
	return entity.RawTransaction{
		Type:      "pay",
		Sender:    sender,
		Payment:   &entity.PaymentTransfer{Receiver: receiver, Amount: amount},
		InnerTxns: inner,
	}
}

func TestNet_EmptyGroup(t *testing.T) {
	assert.Nil(t, Net(10, 0, "g", nil))
}

func TestNet_SimpleTransfer(t *testing.T) {
	got := Net(42, 1_700_000_000, "Z3JvdXA=", []entity.RawTransaction{axfer(alice, bob, assetX, 100)})

	require.NotNil(t, got)
	assert.Equal(t, "42:Z3JvdXA=", got.ID)
	assert.Equal(t, time.Unix(1_700_000_000, 0).UTC(), got.Date)
	assert.Equal(t, alice, got.Sender)
	assert.Equal(t, bob, got.Receiver)
	assert.Equal(t, uint64(100), got.SenderAmount)
	assert.Equal(t, uint64(100), got.ReceiverAmount)
	require.NotNil(t, got.SenderAssetID)
	assert.Equal(t, assetX, *got.SenderAssetID)
	assert.Equal(t, got.SenderAssetID, got.ReceiverAssetID)
	assert.True(t, got.Resolved())
	assert.False(t, got.IsSwap())
}

func TestNet_SwapWithNestedCounterLeg(t *testing.T) {
	group := []entity.RawTransaction{
		axfer(alice, bob, assetX, 100, axfer(bob, alice, assetY, 50)),
	}

	got := Net(7, 0, "g", group)

	require.True(t, got.Resolved())
	assert.Equal(t, alice, got.Sender)
	assert.Equal(t, assetX, *got.SenderAssetID)
	assert.Equal(t, uint64(100), got.SenderAmount)
	assert.Equal(t, bob, got.Receiver)
	assert.Equal(t, assetY, *got.ReceiverAssetID)
	assert.Equal(t, uint64(50), got.ReceiverAmount)
	assert.True(t, got.IsSwap())
}

func TestNet_DominantFlowWinsLegIdentity(t *testing.T) {
	group := []entity.RawTransaction{
		axfer(alice, bob, assetX, 30),
		axfer(carol, dave, assetX, 70),
	}

	got := Net(7, 0, "g", group)

	require.True(t, got.Resolved())
	assert.Equal(t, carol, got.Sender)
	assert.Equal(t, dave, got.Receiver)
	assert.Equal(t, uint64(100), got.SenderAmount)
	assert.Equal(t, uint64(100), got.ReceiverAmount)
	assert.False(t, got.IsSwap())
}

func TestNet_SameKeyAccumulatesAcrossDepths(t *testing.T) {
	// inner entries at the same ordinal and key sum up
	group := []entity.RawTransaction{
		pay(alice, bob, 5, axfer(alice, bob, assetX, 10)),
		pay(carol, alice, 1, axfer(alice, bob, assetX, 15)),
	}

	got := Net(1, 0, "g", group)

	require.True(t, got.Resolved())
	assert.Equal(t, alice, got.Sender)
	assert.Equal(t, assetX, *got.SenderAssetID)
	assert.Equal(t, uint64(25), got.SenderAmount)
}

func TestNet_NativeLegDisplacedByAsset(t *testing.T) {
	group := []entity.RawTransaction{
		pay(bob, alice, 2_000_000),
		axfer(alice, bob, assetX, 3),
	}

	got := Net(9, 0, "g", group)

	require.True(t, got.Resolved())
	assert.Equal(t, assetX, *got.SenderAssetID)
	assert.Equal(t, uint64(3), got.SenderAmount)
	assert.Equal(t, bob, got.Receiver)
	assert.Equal(t, assetX, *got.ReceiverAssetID)
	assert.Equal(t, uint64(3), got.ReceiverAmount)
	assert.False(t, got.IsSwap())
}

func TestNet_NativeCounterLeg(t *testing.T) {
	group := []entity.RawTransaction{
		axfer(alice, bob, assetX, 3),
		pay(bob, alice, 2_000_000),
	}

	got := Net(9, 0, "g", group)

	require.True(t, got.Resolved())
	assert.Equal(t, bob, got.Receiver)
	assert.Nil(t, got.ReceiverAssetID)
	assert.Equal(t, uint64(2_000_000), got.ReceiverAmount)
	assert.True(t, got.IsSwap(), "asset sold for native currency")
}

func TestNet_ApplicationCallOnlyIsUnresolved(t *testing.T) {
	group := []entity.RawTransaction{
		{Type: "appl", Sender: alice},
		{Type: "appl", Sender: bob},
	}

	got := Net(3, 0, "g", group)

	require.NotNil(t, got)
	assert.False(t, got.Resolved())
}

func TestNet_SinglePaymentIsUnresolved(t *testing.T) {
	got := Net(3, 0, "g", []entity.RawTransaction{pay(alice, bob, 1000)})

	require.NotNil(t, got)
	assert.Equal(t, alice, got.Sender)
	assert.Nil(t, got.SenderAssetID)
	assert.False(t, got.Resolved())
}

func TestNet_ThirdAssetIgnored(t *testing.T) {
	group := []entity.RawTransaction{
		axfer(alice, bob, assetX, 10),
		axfer(bob, alice, assetY, 20),
		axfer(bob, alice, 3003, 999),
	}

	got := Net(3, 0, "g", group)

	assert.Equal(t, assetX, *got.SenderAssetID)
	assert.Equal(t, assetY, *got.ReceiverAssetID)
	assert.Equal(t, uint64(20), got.ReceiverAmount)
}

func TestNet_ZeroAmountEntriesSkipped(t *testing.T) {
	optIn := axfer(bob, bob, assetY, 0)

	got := Net(3, 0, "g", []entity.RawTransaction{optIn})
	require.NotNil(t, got)
	assert.False(t, got.Resolved(), "an opt-in alone moves nothing")

	got = Net(3, 0, "g", []entity.RawTransaction{optIn, axfer(alice, bob, assetX, 5)})
	assert.Equal(t, alice, got.Sender)
	assert.Equal(t, bob, got.Receiver)
	assert.Equal(t, assetX, *got.ReceiverAssetID)
	assert.Equal(t, uint64(5), got.ReceiverAmount)
	assert.False(t, got.IsSwap())
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	a := single("k", movement{sender: alice, amount: 1})
	b := single("k", movement{sender: alice, amount: 2})

	m := merge(a, b)

	assert.Equal(t, uint64(3), m.entries["k"].amount)
	assert.Equal(t, uint64(1), a.entries["k"].amount)
	assert.Equal(t, uint64(2), b.entries["k"].amount)
}
