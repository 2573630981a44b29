// Package store persists reserve balances and their audit trails.
package store

import (
	"context"

	"aurum/internal/reserve/models"
	"aurum/pkg/domain"
)

// Store is the reserve ledger persistence contract.
type Store interface {
	// Create inserts a zero or seeded balance. Returns sentinel.ErrConflict
	// when a balance already exists for the token.
	Create(ctx context.Context, balance *models.Balance) error

	// Get returns the balance or sentinel.ErrNotFound.
	Get(ctx context.Context, tokenID domain.TokenID) (*models.Balance, error)

	// Update persists balance and its (grown) audit trail with optimistic
	// concurrency on Version. Returns sentinel.ErrConflict on a stale version.
	Update(ctx context.Context, balance *models.Balance) error

	// List returns all balances, for reconciliation sweeps.
	List(ctx context.Context) ([]*models.Balance, error)
}
