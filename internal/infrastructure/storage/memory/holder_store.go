package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"chain_sync/internal/app/port"
	"chain_sync/internal/domain/entity"
)

type holderKey struct {
	tokenID int64
	address string
}

// HolderStore is an in-memory implementation of port.HolderStore.
type HolderStore struct {
	mu     sync.RWMutex
	nextID int64
	data   map[holderKey]entity.Holder
}

var _ port.HolderStore = (*HolderStore)(nil)

func NewHolderStore() *HolderStore {
	return &HolderStore{data: make(map[holderKey]entity.Holder)}
}

func keyOf(tokenID int64, address string) holderKey {
	return holderKey{tokenID: tokenID, address: strings.ToLower(address)}
}

func (s *HolderStore) Find(_ context.Context, tokenID int64, address string) (entity.Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.data[keyOf(tokenID, address)]
	if !ok {
		return entity.Holder{}, entity.ErrNotFound
	}
	return h.Clone(), nil
}

func (s *HolderStore) ListByToken(_ context.Context, tokenID int64) ([]entity.Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entity.Holder
	for k, h := range s.data {
		if k.tokenID == tokenID {
			out = append(out, h.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *HolderStore) Insert(_ context.Context, h entity.Holder) (entity.Holder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyOf(h.TokenID, h.Address)
	if _, exists := s.data[k]; exists {
		return entity.Holder{}, entity.ErrDuplicateKey
	}
	s.nextID++
	stored := h.Clone()
	stored.ID = s.nextID
	s.data[k] = stored
	return stored.Clone(), nil
}

func (s *HolderStore) Update(_ context.Context, h entity.Holder) (entity.Holder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyOf(h.TokenID, h.Address)
	cur, ok := s.data[k]
	if !ok {
		return entity.Holder{}, entity.ErrNotFound
	}
	stored := h.Clone()
	stored.ID = cur.ID
	s.data[k] = stored
	return stored.Clone(), nil
}

func (s *HolderStore) DeleteEmpty(_ context.Context, tokenID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, h := range s.data {
		if k.tokenID == tokenID && h.IsEmpty() {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func (s *HolderStore) Delete(_ context.Context, tokenID int64, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyOf(tokenID, address)
	if _, ok := s.data[k]; !ok {
		return entity.ErrNotFound
	}
	delete(s.data, k)
	return nil
}
