// Package store persists audit records.
package store

import (
	"context"
	"sort"
	"sync"

	"aurum/internal/audit/models"
	"aurum/pkg/domain"
	"aurum/pkg/platform/sentinel"
)

// Store is the audit record persistence contract.
type Store interface {
	Create(ctx context.Context, record *models.Record) error
	Get(ctx context.Context, id domain.AuditID) (*models.Record, error)
	Update(ctx context.Context, record *models.Record) error
	FindByEntity(ctx context.Context, entityID string) ([]*models.Record, error)
}

// InMemoryStore keeps audit records in a mutex-guarded map.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[domain.AuditID]*models.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[domain.AuditID]*models.Record)}
}

func (s *InMemoryStore) Create(ctx context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return sentinel.ErrConflict
	}
	s.records[record.ID] = record.Clone()
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id domain.AuditID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return record.Clone(), nil
}

func (s *InMemoryStore) Update(ctx context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.records[record.ID] = record.Clone()
	return nil
}

func (s *InMemoryStore) FindByEntity(ctx context.Context, entityID string) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Record
	for _, record := range s.records {
		if record.EntityID == entityID {
			out = append(out, record.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}
