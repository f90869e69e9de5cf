package events

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"chain_sync/internal/domain/entity"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captured struct {
	subject string
	data    []byte
	opts    int
}

type fakeStream struct {
	msgs []captured
	err  error
}

func (f *fakeStream) Publish(_ context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, captured{subject: subject, data: data, opts: len(opts)})
	return &jetstream.PubAck{Stream: streamName, Sequence: uint64(len(f.msgs))}, nil
}

func TestPublishTransaction(t *testing.T) {
	stream := &fakeStream{}
	p := newPublisher(stream, "", zap.NewNop())

	swapToken := int64(9)
	token := entity.Token{ID: 4, Network: "algorand", Address: "1234"}
	tx := entity.Transaction{
		TokenID:       4,
		TransactionID: "100:abc",
		Date:          time.Unix(1700000000, 0),
		IsSwap:        true,
		FromAddress:   "ALICE",
		ToAddress:     "BOB",
		Amount:        big.NewInt(3),
		SwapAmount:    big.NewInt(2500000),
		SwapTokenID:   &swapToken,
	}

	require.NoError(t, p.PublishTransaction(context.Background(), token, tx))
	require.Len(t, stream.msgs, 1)
	assert.Equal(t, "chain_sync.transactions.algorand", stream.msgs[0].subject)
	assert.Equal(t, 1, stream.msgs[0].opts)

	var ev TransactionEvent
	require.NoError(t, json.Unmarshal(stream.msgs[0].data, &ev))
	assert.Equal(t, "1234", ev.TokenAddress)
	assert.Equal(t, "3", ev.Amount)
	require.NotNil(t, ev.SwapAmount)
	assert.Equal(t, "2500000", *ev.SwapAmount)
	assert.Equal(t, int64(9), *ev.SwapTokenID)
	assert.True(t, ev.Date.Equal(tx.Date))
}

func TestPublishTransaction_PlainTransferOmitsSwapFields(t *testing.T) {
	stream := &fakeStream{}
	p := newPublisher(stream, "lofty", zap.NewNop())

	err := p.PublishTransaction(context.Background(),
		entity.Token{Network: "algorand"},
		entity.Transaction{TransactionID: "1:x", Amount: big.NewInt(1)},
	)
	require.NoError(t, err)
	assert.Equal(t, "lofty.transactions.algorand", stream.msgs[0].subject)
	assert.NotContains(t, string(stream.msgs[0].data), "swapAmount")
}

func TestPublishTransaction_Error(t *testing.T) {
	boom := errors.New("no responders")
	p := newPublisher(&fakeStream{err: boom}, "", zap.NewNop())

	err := p.PublishTransaction(context.Background(), entity.Token{Network: "algorand"}, entity.Transaction{TransactionID: "1:x"})
	assert.ErrorIs(t, err, boom)
}

func TestNoop(t *testing.T) {
	assert.NoError(t, Noop{}.PublishTransaction(context.Background(), entity.Token{}, entity.Transaction{}))
}
