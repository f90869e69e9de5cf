package memory

import (
	"context"
	"sync"

	"chain_sync/internal/app/port"
	"chain_sync/internal/domain/entity"
)

type txKey struct {
	tokenID       int64
	transactionID string
}

// TransactionStore is an in-memory implementation of port.TransactionStore.
type TransactionStore struct {
	mu     sync.RWMutex
	nextID int64
	data   map[txKey]entity.Transaction
}

var _ port.TransactionStore = (*TransactionStore)(nil)

func NewTransactionStore() *TransactionStore {
	return &TransactionStore{data: make(map[txKey]entity.Transaction)}
}

func (s *TransactionStore) Find(_ context.Context, tokenID int64, transactionID string) (entity.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.data[txKey{tokenID, transactionID}]
	if !ok {
		return entity.Transaction{}, entity.ErrNotFound
	}
	return tx.Clone(), nil
}

func (s *TransactionStore) Insert(_ context.Context, tx entity.Transaction) (entity.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := txKey{tx.TokenID, tx.TransactionID}
	if _, exists := s.data[k]; exists {
		return entity.Transaction{}, entity.ErrDuplicateKey
	}
	s.nextID++
	stored := tx.Clone()
	stored.ID = s.nextID
	s.data[k] = stored
	return stored.Clone(), nil
}

// All returns every stored transaction, unordered.
func (s *TransactionStore) All() []entity.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entity.Transaction, 0, len(s.data))
	for _, tx := range s.data {
		out = append(out, tx.Clone())
	}
	return out
}
