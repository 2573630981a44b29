// Package store persists withdrawal records.
package store

import (
	"context"
	"sync"
	"time"

	"aurum/internal/withdrawal/models"
	"aurum/pkg/domain"
	"aurum/pkg/platform/sentinel"
)

// Store is the withdrawal persistence contract.
type Store interface {
	Create(ctx context.Context, withdrawal *models.Withdrawal) error
	Get(ctx context.Context, id domain.WithdrawalID) (*models.Withdrawal, error)
	// Update uses optimistic concurrency on Version.
	Update(ctx context.Context, withdrawal *models.Withdrawal) error
	FindByUser(ctx context.Context, userID domain.UserID) ([]*models.Withdrawal, error)
}

// InMemoryStore keeps withdrawals in a mutex-guarded map.
type InMemoryStore struct {
	mu          sync.RWMutex
	withdrawals map[domain.WithdrawalID]*models.Withdrawal
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{withdrawals: make(map[domain.WithdrawalID]*models.Withdrawal)}
}

func (s *InMemoryStore) Create(ctx context.Context, withdrawal *models.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.withdrawals[withdrawal.ID]; exists {
		return sentinel.ErrConflict
	}
	stored := withdrawal.Clone()
	if stored.Version == 0 {
		stored.Version = 1
	}
	if stored.RequestedAt.IsZero() {
		stored.RequestedAt = time.Now()
	}
	s.withdrawals[withdrawal.ID] = stored
	withdrawal.Version = stored.Version
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id domain.WithdrawalID) (*models.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	withdrawal, ok := s.withdrawals[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return withdrawal.Clone(), nil
}

func (s *InMemoryStore) Update(ctx context.Context, withdrawal *models.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.withdrawals[withdrawal.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != withdrawal.Version {
		return sentinel.ErrConflict
	}
	next := withdrawal.Clone()
	next.Version = stored.Version + 1
	s.withdrawals[withdrawal.ID] = next
	withdrawal.Version = next.Version
	return nil
}

func (s *InMemoryStore) FindByUser(ctx context.Context, userID domain.UserID) ([]*models.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Withdrawal
	for _, withdrawal := range s.withdrawals {
		if withdrawal.UserID == userID {
			out = append(out, withdrawal.Clone())
		}
	}
	return out, nil
}
