// Package transaction keeps the append-only record of completed supply
// movements. One entry is written per completed mint or burn; entries are
// never updated or deleted.
package transaction

import (
	"context"
	"sort"
	"sync"
	"time"

	"aurum/pkg/domain"
	"aurum/pkg/platform/sentinel"
)

// Type classifies a ledger entry.
type Type string

const (
	TypeMint     Type = "mint"
	TypeBurn     Type = "burn"
	TypeTransfer Type = "transfer"
)

// Transaction is one immutable ledger entry.
type Transaction struct {
	ID        domain.TransactionID
	TokenID   domain.TokenID
	Type      Type
	From      string
	To        string
	Amount    domain.Amount
	Status    string
	RequestID domain.RequestID
	CreatedAt time.Time
}

const StatusCompleted = "COMPLETED"

// Store is the transaction persistence contract.
type Store interface {
	Append(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, id domain.TransactionID) (*Transaction, error)
	FindByToken(ctx context.Context, tokenID domain.TokenID) ([]*Transaction, error)
}

// InMemoryStore keeps transactions in a mutex-guarded map.
type InMemoryStore struct {
	mu  sync.RWMutex
	txs map[domain.TransactionID]*Transaction
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{txs: make(map[domain.TransactionID]*Transaction)}
}

func (s *InMemoryStore) Append(ctx context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.txs[tx.ID]; exists {
		return sentinel.ErrConflict
	}
	stored := *tx
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.txs[tx.ID] = &stored
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id domain.TransactionID) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.txs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *tx
	return &out, nil
}

func (s *InMemoryStore) FindByToken(ctx context.Context, tokenID domain.TokenID) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Transaction
	for _, tx := range s.txs {
		if tx.TokenID == tokenID {
			copied := *tx
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SumCompleted returns Σ completed mints − Σ completed burns for a token.
// At any quiescent point this equals the token's circulating supply.
func SumCompleted(ctx context.Context, st Store, tokenID domain.TokenID) (domain.Amount, error) {
	txs, err := st.FindByToken(ctx, tokenID)
	if err != nil {
		return domain.Amount{}, err
	}
	var sum domain.Amount
	for _, tx := range txs {
		if tx.Status != StatusCompleted {
			continue
		}
		switch tx.Type {
		case TypeMint:
			sum = sum.Add(tx.Amount)
		case TypeBurn:
			sum = sum.Sub(tx.Amount)
		}
	}
	return sum, nil
}
