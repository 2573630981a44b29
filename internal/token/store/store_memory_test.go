package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aurum/internal/token/models"
	"aurum/pkg/domain"
	"aurum/pkg/platform/sentinel"
)

func sampleToken(symbol string) *models.Token {
	return &models.Token{
		ID:           domain.NewTokenID(),
		Name:         "Aurum " + symbol,
		Symbol:       symbol,
		AssetType:    "gold",
		ReserveRatio: domain.MustAmount("1.0"),
		Status:       models.StatusActive,
	}
}

func TestInMemoryStore_SymbolUniqueness(t *testing.T) {
	st := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.Create(ctx, sampleToken("AUG")))

	// Symbols are unique case-insensitively.
	err := st.Create(ctx, sampleToken("aug"))
	assert.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestInMemoryStore_VersionRace(t *testing.T) {
	st := NewInMemoryStore()
	ctx := context.Background()

	token := sampleToken("AUG")
	require.NoError(t, st.Create(ctx, token))

	first, err := st.Get(ctx, token.ID)
	require.NoError(t, err)
	second, err := st.Get(ctx, token.ID)
	require.NoError(t, err)

	first.TotalSupply = domain.MustAmount("10")
	require.NoError(t, st.Update(ctx, first))

	// The second reader's copy is now stale.
	second.TotalSupply = domain.MustAmount("20")
	assert.ErrorIs(t, st.Update(ctx, second), sentinel.ErrConflict)

	current, err := st.Get(ctx, token.ID)
	require.NoError(t, err)
	assert.Equal(t, "10", current.TotalSupply.String())
}

func TestInMemoryStore_CloneOnRead(t *testing.T) {
	st := NewInMemoryStore()
	ctx := context.Background()

	token := sampleToken("AUG")
	require.NoError(t, st.Create(ctx, token))

	read, err := st.Get(ctx, token.ID)
	require.NoError(t, err)
	read.Symbol = "MUTATED"

	again, err := st.Get(ctx, token.ID)
	require.NoError(t, err)
	assert.Equal(t, "AUG", again.Symbol)
}
