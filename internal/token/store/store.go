// Package store persists token definitions. Implementations return sentinel
// errors; the registry service translates them into coded domain errors.
package store

import (
	"context"

	"aurum/internal/token/models"
	"aurum/pkg/domain"
)

// Store is the token registry persistence contract.
type Store interface {
	// Create inserts a new token. Returns sentinel.ErrConflict when the id or
	// symbol already exists.
	Create(ctx context.Context, token *models.Token) error

	// Get returns the token or sentinel.ErrNotFound.
	Get(ctx context.Context, id domain.TokenID) (*models.Token, error)

	// Update persists a modified token using optimistic concurrency: it
	// succeeds only when the stored version matches token.Version, and bumps
	// the version on success. Returns sentinel.ErrConflict on a stale version.
	Update(ctx context.Context, token *models.Token) error

	// Delete removes a token. Creation rollback only; issued tokens are
	// deprecated, never deleted.
	Delete(ctx context.Context, id domain.TokenID) error

	// FindBySymbol returns the token with the given symbol or sentinel.ErrNotFound.
	FindBySymbol(ctx context.Context, symbol string) (*models.Token, error)

	// FindByAssetType returns all tokens backed by the given asset type.
	FindByAssetType(ctx context.Context, assetType string) ([]*models.Token, error)

	// List returns all tokens.
	List(ctx context.Context) ([]*models.Token, error)
}
