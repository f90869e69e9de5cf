// Package events publishes reconciled transactions to NATS JetStream.
package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"chain_sync/internal/app/port"
	"chain_sync/internal/domain/entity"
	"chain_sync/internal/pkg/utils"

	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultSubjectPrefix = "chain_sync"
	streamName           = "CHAIN_SYNC_TRANSACTIONS"
)

// TransactionEvent is the payload published for every newly stored transaction.
type TransactionEvent struct {
	Network       string    `json:"network"`
	TokenAddress  string    `json:"tokenAddress"`
	TokenID       int64     `json:"tokenId"`
	TransactionID string    `json:"transactionId"`
	Date          time.Time `json:"date"`
	IsSwap        bool      `json:"isSwap"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Amount        string    `json:"amount"`
	SwapAmount    *string   `json:"swapAmount,omitempty"`
	SwapTokenID   *int64    `json:"swapTokenId,omitempty"`
}

func newTransactionEvent(token entity.Token, tx entity.Transaction) TransactionEvent {
	ev := TransactionEvent{
		Network:       token.Network,
		TokenAddress:  token.Address,
		TokenID:       tx.TokenID,
		TransactionID: tx.TransactionID,
		Date:          tx.Date.UTC(),
		IsSwap:        tx.IsSwap,
		From:          tx.FromAddress,
		To:            tx.ToAddress,
		Amount:        utils.BigIntString(tx.Amount),
		SwapTokenID:   tx.SwapTokenID,
	}
	if tx.SwapAmount != nil {
		s := tx.SwapAmount.String()
		ev.SwapAmount = &s
	}
	return ev
}

type streamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher implements port.EventPublisher on top of JetStream.
type Publisher struct {
	js     streamPublisher
	prefix string
	logger *zap.Logger
}

var _ port.EventPublisher = (*Publisher)(nil)

func NewPublisher(js jetstream.JetStream, prefix string, logger *zap.Logger) *Publisher {
	return newPublisher(js, prefix, logger)
}

func newPublisher(js streamPublisher, prefix string, logger *zap.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{js: js, prefix: prefix, logger: logger}
}

// Subject returns the subject transactions of network are published on.
func (p *Publisher) Subject(network string) string {
	return p.prefix + ".transactions." + network
}

// PublishTransaction sends one event. The message id makes redelivery of the
// same (token, transaction) pair a no-op inside the stream's dedupe window.
func (p *Publisher) PublishTransaction(ctx context.Context, token entity.Token, tx entity.Transaction) error {
	data, err := json.Marshal(newTransactionEvent(token, tx))
	if err != nil {
		return fmt.Errorf("marshal transaction event: %w", err)
	}

	msgID := strconv.FormatInt(tx.TokenID, 10) + ":" + tx.TransactionID
	if _, err := p.js.Publish(ctx, p.Subject(token.Network), data, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("publish transaction %s: %w", tx.TransactionID, err)
	}
	p.logger.Debug("Published transaction event",
		zap.String("network", token.Network),
		zap.String("transaction", tx.TransactionID),
	)
	return nil
}

// EnsureStream creates the transactions stream if it does not exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream, prefix string) error {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       streamName,
		Subjects:   []string{prefix + ".transactions.>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     7 * 24 * time.Hour,
		Duplicates: 10 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", streamName, err)
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, logger *zap.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("chain_sync"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}

// Noop discards every event. Used when no NATS URL is configured.
type Noop struct{}

func (Noop) PublishTransaction(context.Context, entity.Token, entity.Transaction) error { return nil }
