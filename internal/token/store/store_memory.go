package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"aurum/internal/token/models"
	"aurum/pkg/domain"
	"aurum/pkg/platform/sentinel"
)

// InMemoryStore keeps tokens in a mutex-guarded map. Used in tests and when
// no database is configured.
type InMemoryStore struct {
	mu     sync.RWMutex
	tokens map[domain.TokenID]*models.Token
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{tokens: make(map[domain.TokenID]*models.Token)}
}

func (s *InMemoryStore) Create(ctx context.Context, token *models.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[token.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, existing := range s.tokens {
		if strings.EqualFold(existing.Symbol, token.Symbol) {
			return sentinel.ErrConflict
		}
	}

	stored := token.Clone()
	if stored.Version == 0 {
		stored.Version = 1
	}
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.tokens[token.ID] = stored

	token.Version = stored.Version
	token.CreatedAt = stored.CreatedAt
	token.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id domain.TokenID) (*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return token.Clone(), nil
}

func (s *InMemoryStore) Update(ctx context.Context, token *models.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tokens[token.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != token.Version {
		return sentinel.ErrConflict
	}

	next := token.Clone()
	next.Version = stored.Version + 1
	next.CreatedAt = stored.CreatedAt
	next.UpdatedAt = time.Now()
	s.tokens[token.ID] = next

	token.Version = next.Version
	token.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, id domain.TokenID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.tokens, id)
	return nil
}

func (s *InMemoryStore) FindBySymbol(ctx context.Context, symbol string) (*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, token := range s.tokens {
		if strings.EqualFold(token.Symbol, symbol) {
			return token.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindByAssetType(ctx context.Context, assetType string) ([]*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Token
	for _, token := range s.tokens {
		if strings.EqualFold(token.AssetType, assetType) {
			out = append(out, token.Clone())
		}
	}
	sortTokens(out)
	return out, nil
}

func (s *InMemoryStore) List(ctx context.Context) ([]*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Token, 0, len(s.tokens))
	for _, token := range s.tokens {
		out = append(out, token.Clone())
	}
	sortTokens(out)
	return out, nil
}

// sortTokens gives deterministic listing order.
func sortTokens(tokens []*models.Token) {
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].CreatedAt.Equal(tokens[j].CreatedAt) {
			return tokens[i].Symbol < tokens[j].Symbol
		}
		return tokens[i].CreatedAt.Before(tokens[j].CreatedAt)
	})
}
