package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aurum/internal/compliance"
	"aurum/internal/ledger"
	reserveservice "aurum/internal/reserve/service"
	reservestore "aurum/internal/reserve/store"
	"aurum/internal/token/models"
	"aurum/internal/token/store"
	"aurum/pkg/domain"
	dErrors "aurum/pkg/domain-errors"
	"aurum/pkg/testutil"
)

func newService(t *testing.T) (*Service, *reserveservice.Service) {
	t.Helper()
	reserves, err := reserveservice.New(reservestore.NewInMemoryStore())
	require.NoError(t, err)
	svc, err := New(store.NewInMemoryStore(), reserves, ledger.NewGuard())
	require.NoError(t, err)
	return svc, reserves
}

func validSpec() CreateSpec {
	return CreateSpec{
		Name:           "Aurum Gold",
		Symbol:         "AUG",
		Decimals:       6,
		AssetType:      "gold",
		BackingAssetID: "vault-a",
		ReserveRatio:   domain.MustAmount("1.0"),
		ReserveUnit:    "troy_oz",
		Metadata:       domain.Metadata{Description: "LBMA bars", CustodianName: "Helvetia Custody AG"},
		ComplianceInfo: models.ComplianceInfo{Status: compliance.StatusCompliant, ReviewedAt: time.Now()},
		AuditInfo:      models.AuditInfo{NextAuditDue: time.Now().Add(24 * time.Hour)},
	}
}

func TestCreateToken(t *testing.T) {
	svc, reserves := newService(t)
	ctx := testutil.Context(t)

	testutil.When(t, "a valid spec is submitted", func(t *testing.T) {
		token, err := svc.CreateToken(ctx, validSpec())
		require.NoError(t, err)

		assert.Equal(t, models.StatusActive, token.Status)
		assert.True(t, token.TotalSupply.IsZero())
		assert.True(t, token.CirculatingSupply.IsZero())
		assert.Equal(t, testutil.FrozenTime, token.CreatedAt)

		testutil.Then(t, "the paired zero-balance reserve exists", func(t *testing.T) {
			balance, err := reserves.Get(ctx, token.ID)
			require.NoError(t, err)
			assert.True(t, balance.Total.IsZero())
			assert.Equal(t, "troy_oz", balance.Unit)
		})
	})

	testutil.When(t, "the symbol is already registered", func(t *testing.T) {
		_, err := svc.CreateToken(ctx, validSpec())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	testutil.When(t, "required fields are missing", func(t *testing.T) {
		spec := validSpec()
		spec.BackingAssetID = ""
		_, err := svc.CreateToken(ctx, spec)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestUpdateSupply(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	spec := validSpec()
	max := domain.MustAmount("1000")
	spec.MaxSupply = &max
	token, err := svc.CreateToken(ctx, spec)
	require.NoError(t, err)

	t.Run("mint raises both supplies", func(t *testing.T) {
		updated, err := svc.UpdateSupply(ctx, token.ID, domain.MustAmount("100"), models.OpMint)
		require.NoError(t, err)
		assert.Equal(t, "100", updated.TotalSupply.String())
		assert.Equal(t, "100", updated.CirculatingSupply.String())
		assert.True(t, updated.CheckSupplyInvariant())
	})

	t.Run("mint above max supply is an invariant violation", func(t *testing.T) {
		_, err := svc.UpdateSupply(ctx, token.ID, domain.MustAmount("901"), models.OpMint)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("burn below zero is an invariant violation", func(t *testing.T) {
		_, err := svc.UpdateSupply(ctx, token.ID, domain.MustAmount("101"), models.OpBurn)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("burn lowers both supplies", func(t *testing.T) {
		updated, err := svc.UpdateSupply(ctx, token.ID, domain.MustAmount("40"), models.OpBurn)
		require.NoError(t, err)
		assert.Equal(t, "60", updated.TotalSupply.String())
		assert.Equal(t, "60", updated.CirculatingSupply.String())
	})

	t.Run("inactive tokens reject supply updates", func(t *testing.T) {
		_, err := svc.SetStatus(ctx, token.ID, models.StatusSuspended)
		require.NoError(t, err)
		_, err = svc.UpdateSupply(ctx, token.ID, domain.MustAmount("1"), models.OpMint)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestLifecycleAndLookups(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	token, err := svc.CreateToken(ctx, validSpec())
	require.NoError(t, err)

	t.Run("find by symbol", func(t *testing.T) {
		found, err := svc.FindBySymbol(ctx, "AUG")
		require.NoError(t, err)
		assert.Equal(t, token.ID, found.ID)
	})

	t.Run("find compliant tokens", func(t *testing.T) {
		tokens, err := svc.FindCompliantTokens(ctx)
		require.NoError(t, err)
		require.Len(t, tokens, 1)
	})

	t.Run("illegal transition rejected", func(t *testing.T) {
		_, err := svc.SetStatus(ctx, token.ID, models.StatusMigrated)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("deprecation hides the token from compliant listings", func(t *testing.T) {
		_, err := svc.SetStatus(ctx, token.ID, models.StatusDeprecated)
		require.NoError(t, err)
		tokens, err := svc.FindCompliantTokens(ctx)
		require.NoError(t, err)
		assert.Empty(t, tokens)
	})
}
