// Package store persists burning requests.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"aurum/internal/burning/models"
	"aurum/pkg/domain"
	"aurum/pkg/platform/sentinel"
)

// Store is the burning request persistence contract.
type Store interface {
	Create(ctx context.Context, request *models.Request) error
	Get(ctx context.Context, id domain.RequestID) (*models.Request, error)
	// Update uses optimistic concurrency on Version.
	Update(ctx context.Context, request *models.Request) error
	FindByStatus(ctx context.Context, status models.Status) ([]*models.Request, error)
}

// InMemoryStore keeps requests in a mutex-guarded map.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[domain.RequestID]*models.Request
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{requests: make(map[domain.RequestID]*models.Request)}
}

func (s *InMemoryStore) Create(ctx context.Context, request *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[request.ID]; exists {
		return sentinel.ErrConflict
	}
	stored := request.Clone()
	if stored.Version == 0 {
		stored.Version = 1
	}
	if stored.SubmittedAt.IsZero() {
		stored.SubmittedAt = time.Now()
	}
	s.requests[request.ID] = stored
	request.Version = stored.Version
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id domain.RequestID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	request, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return request.Clone(), nil
}

func (s *InMemoryStore) Update(ctx context.Context, request *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.requests[request.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != request.Version {
		return sentinel.ErrConflict
	}
	next := request.Clone()
	next.Version = stored.Version + 1
	s.requests[request.ID] = next
	request.Version = next.Version
	return nil
}

func (s *InMemoryStore) FindByStatus(ctx context.Context, status models.Status) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Request
	for _, request := range s.requests {
		if request.Status == status {
			out = append(out, request.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}
