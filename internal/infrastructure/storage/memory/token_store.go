// Package memory holds in-process store implementations used by tests and by
// the memory storage driver.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"chain_sync/internal/app/port"
	"chain_sync/internal/domain/entity"
)

// TokenStore is an in-memory implementation of port.TokenStore.
type TokenStore struct {
	mu     sync.RWMutex
	nextID int64
	data   map[int64]entity.Token
	byKey  map[string]int64 // network + lower-cased address
}

var _ port.TokenStore = (*TokenStore)(nil)

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		data:  make(map[int64]entity.Token),
		byKey: make(map[string]int64),
	}
}

func tokenKey(network, address string) string {
	return network + "/" + strings.ToLower(address)
}

func (s *TokenStore) FindByAddress(_ context.Context, network, address string) (entity.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[tokenKey(network, address)]
	if !ok {
		return entity.Token{}, entity.ErrNotFound
	}
	return s.data[id].Clone(), nil
}

// Insert adds a new token. Returns ErrDuplicateKey if (network, address) exists.
func (s *TokenStore) Insert(_ context.Context, t entity.Token) (entity.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tokenKey(t.Network, t.Address)
	if _, exists := s.byKey[key]; exists {
		return entity.Token{}, entity.ErrDuplicateKey
	}

	s.nextID++
	now := time.Now().UTC()
	stored := t.Clone()
	stored.ID = s.nextID
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.data[stored.ID] = stored
	s.byKey[key] = stored.ID
	return stored.Clone(), nil
}

func (s *TokenStore) Update(_ context.Context, t entity.Token) (entity.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.data[t.ID]
	if !ok {
		return entity.Token{}, entity.ErrNotFound
	}
	in := t.Clone()
	cur.ApplicationID = in.ApplicationID
	cur.Name = in.Name
	cur.Symbol = in.Symbol
	cur.Decimals = in.Decimals
	cur.TotalSupply = in.TotalSupply
	cur.Creator = in.Creator
	cur.IsGlobalToken = in.IsGlobalToken
	cur.AdditionalInfo = in.AdditionalInfo
	cur.UpdatedAt = time.Now().UTC()
	s.data[cur.ID] = cur
	return cur.Clone(), nil
}

func (s *TokenStore) ListStale(_ context.Context, applicationID int, cutoff time.Time, limit int) ([]entity.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entity.Token
	for _, t := range s.data {
		if t.ApplicationID != applicationID {
			continue
		}
		if t.LastSyncedAt != nil && !t.LastSyncedAt.Before(cutoff) {
			continue
		}
		out = append(out, t.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastSyncedAt, out[j].LastSyncedAt
		switch {
		case a == nil && b == nil:
			return out[i].ID < out[j].ID
		case a == nil:
			return true
		case b == nil:
			return false
		case a.Equal(*b):
			return out[i].ID < out[j].ID
		default:
			return a.After(*b)
		}
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *TokenStore) SetLastSyncedAt(_ context.Context, tokenID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.data[tokenID]
	if !ok {
		return entity.ErrNotFound
	}
	at = at.UTC()
	t.LastSyncedAt = &at
	s.data[tokenID] = t
	return nil
}

// SetLastTransactionAt never moves the date backwards.
func (s *TokenStore) SetLastTransactionAt(_ context.Context, tokenID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.data[tokenID]
	if !ok {
		return entity.ErrNotFound
	}
	at = at.UTC()
	if t.LastTransactionAt != nil && !at.After(*t.LastTransactionAt) {
		return nil
	}
	t.LastTransactionAt = &at
	s.data[tokenID] = t
	return nil
}

// Count returns the number of stored tokens.
func (s *TokenStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
