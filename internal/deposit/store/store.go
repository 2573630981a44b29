// Package store persists deposit records.
package store

import (
	"context"
	"sync"
	"time"

	"aurum/internal/deposit/models"
	"aurum/pkg/domain"
	"aurum/pkg/platform/sentinel"
)

// Store is the deposit persistence contract.
type Store interface {
	Create(ctx context.Context, deposit *models.Deposit) error
	Get(ctx context.Context, id domain.DepositID) (*models.Deposit, error)
	// Update uses optimistic concurrency on Version.
	Update(ctx context.Context, deposit *models.Deposit) error
	FindByUser(ctx context.Context, userID domain.UserID) ([]*models.Deposit, error)
}

// InMemoryStore keeps deposits in a mutex-guarded map.
type InMemoryStore struct {
	mu       sync.RWMutex
	deposits map[domain.DepositID]*models.Deposit
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{deposits: make(map[domain.DepositID]*models.Deposit)}
}

func (s *InMemoryStore) Create(ctx context.Context, deposit *models.Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.deposits[deposit.ID]; exists {
		return sentinel.ErrConflict
	}
	stored := deposit.Clone()
	if stored.Version == 0 {
		stored.Version = 1
	}
	if stored.ReceivedAt.IsZero() {
		stored.ReceivedAt = time.Now()
	}
	s.deposits[deposit.ID] = stored
	deposit.Version = stored.Version
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id domain.DepositID) (*models.Deposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deposit, ok := s.deposits[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return deposit.Clone(), nil
}

func (s *InMemoryStore) Update(ctx context.Context, deposit *models.Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.deposits[deposit.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != deposit.Version {
		return sentinel.ErrConflict
	}
	next := deposit.Clone()
	next.Version = stored.Version + 1
	s.deposits[deposit.ID] = next
	deposit.Version = next.Version
	return nil
}

func (s *InMemoryStore) FindByUser(ctx context.Context, userID domain.UserID) ([]*models.Deposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Deposit
	for _, deposit := range s.deposits {
		if deposit.UserID == userID {
			out = append(out, deposit.Clone())
		}
	}
	return out, nil
}
