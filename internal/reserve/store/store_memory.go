package store

import (
	"context"
	"sync"
	"time"

	"aurum/internal/reserve/models"
	"aurum/pkg/domain"
	"aurum/pkg/platform/sentinel"
)

// InMemoryStore keeps balances in a mutex-guarded map.
type InMemoryStore struct {
	mu       sync.RWMutex
	balances map[domain.TokenID]*models.Balance
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{balances: make(map[domain.TokenID]*models.Balance)}
}

func (s *InMemoryStore) Create(ctx context.Context, balance *models.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.balances[balance.TokenID]; exists {
		return sentinel.ErrConflict
	}

	stored := balance.Clone()
	if stored.Version == 0 {
		stored.Version = 1
	}
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.LastUpdated = now
	s.balances[balance.TokenID] = stored

	balance.Version = stored.Version
	balance.CreatedAt = stored.CreatedAt
	balance.LastUpdated = stored.LastUpdated
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, tokenID domain.TokenID) (*models.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balance, ok := s.balances[tokenID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return balance.Clone(), nil
}

func (s *InMemoryStore) Update(ctx context.Context, balance *models.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.balances[balance.TokenID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != balance.Version {
		return sentinel.ErrConflict
	}

	next := balance.Clone()
	next.Version = stored.Version + 1
	next.CreatedAt = stored.CreatedAt
	next.LastUpdated = time.Now()
	s.balances[balance.TokenID] = next

	balance.Version = next.Version
	balance.LastUpdated = next.LastUpdated
	return nil
}

func (s *InMemoryStore) List(ctx context.Context) ([]*models.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Balance, 0, len(s.balances))
	for _, balance := range s.balances {
		out = append(out, balance.Clone())
	}
	return out, nil
}
