//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aurum/internal/reserve/models"
	"aurum/pkg/domain"
	"aurum/pkg/platform/sentinel"
	"aurum/pkg/testutil/containers"
)

func newPostgresReserveStore(t *testing.T) *PostgresStore {
	t.Helper()
	pg := containers.NewPostgresContainer(t)
	s := NewPostgresStore(pg.DB)
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func seedBalance(tokenID domain.TokenID) *models.Balance {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Balance{
		TokenID:     tokenID,
		Total:       domain.MustAmount("100"),
		Available:   domain.MustAmount("80"),
		Locked:      domain.MustAmount("20"),
		Unit:        "XAU-KG",
		AuditTrail: []models.AuditEntry{{
			Timestamp:   now,
			Action:      models.ActionAdd,
			Amount:      domain.MustAmount("100"),
			Reason:      "initial custody deposit",
			PerformedBy: "test-operator",
		}},
		CreatedAt:   now,
		LastUpdated: now,
	}
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	s := newPostgresReserveStore(t)
	ctx := context.Background()

	tokenID := domain.NewTokenID()
	require.NoError(t, s.Create(ctx, seedBalance(tokenID)))

	got, err := s.Get(ctx, tokenID)
	require.NoError(t, err)
	assert.Equal(t, "100", got.Total.String())
	assert.Equal(t, "80", got.Available.String())
	assert.Equal(t, "20", got.Locked.String())
	assert.Equal(t, "XAU-KG", got.Unit)
	require.Len(t, got.AuditTrail, 1)
	assert.Equal(t, "initial custody deposit", got.AuditTrail[0].Reason)
	assert.Equal(t, int64(1), got.Version)
	require.NoError(t, got.CheckInvariant())

	require.ErrorIs(t, s.Create(ctx, seedBalance(tokenID)), sentinel.ErrConflict)

	_, err = s.Get(ctx, domain.NewTokenID())
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresStore_UpdateVersionCheck(t *testing.T) {
	s := newPostgresReserveStore(t)
	ctx := context.Background()

	tokenID := domain.NewTokenID()
	require.NoError(t, s.Create(ctx, seedBalance(tokenID)))

	fresh, err := s.Get(ctx, tokenID)
	require.NoError(t, err)
	stale, err := s.Get(ctx, tokenID)
	require.NoError(t, err)

	fresh.Available = domain.MustAmount("60")
	fresh.Locked = domain.MustAmount("40")
	fresh.AuditTrail = append(fresh.AuditTrail, models.AuditEntry{
		Timestamp:   time.Now().UTC(),
		Action:      models.ActionLock,
		Amount:      domain.MustAmount("20"),
		Reason:      "withdrawal hold",
		PerformedBy: "test-operator",
	})
	require.NoError(t, s.Update(ctx, fresh))
	assert.Equal(t, int64(2), fresh.Version)

	// The second writer still carries version 1 and must lose.
	stale.Available = domain.MustAmount("0")
	require.ErrorIs(t, s.Update(ctx, stale), sentinel.ErrConflict)

	got, err := s.Get(ctx, tokenID)
	require.NoError(t, err)
	assert.Equal(t, "60", got.Available.String())
	assert.Equal(t, "40", got.Locked.String())
	require.Len(t, got.AuditTrail, 2)

	missing := seedBalance(domain.NewTokenID())
	missing.Version = 1
	require.ErrorIs(t, s.Update(ctx, missing), sentinel.ErrNotFound)
}

func TestPostgresStore_List(t *testing.T) {
	s := newPostgresReserveStore(t)
	ctx := context.Background()

	first := seedBalance(domain.NewTokenID())
	second := seedBalance(domain.NewTokenID())
	second.CreatedAt = second.CreatedAt.Add(time.Second)
	require.NoError(t, s.Create(ctx, first))
	require.NoError(t, s.Create(ctx, second))

	balances, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, first.TokenID, balances[0].TokenID)
	assert.Equal(t, second.TokenID, balances[1].TokenID)
}
