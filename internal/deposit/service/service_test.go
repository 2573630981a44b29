package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"aurum/internal/compliance"
	"aurum/internal/compliance/mocks"
	"aurum/internal/deposit/models"
	"aurum/internal/deposit/store"
	"aurum/pkg/domain"
	dErrors "aurum/pkg/domain-errors"
)

func compliantCheck() compliance.Check {
	return compliance.Check{Status: compliance.StatusCompliant, CheckedAt: time.Now()}
}

func validSpec() RecordSpec {
	return RecordSpec{
		UserID:    domain.NewUserID(),
		AssetType: "gold",
		Amount:    domain.MustAmount("100"),
		Unit:      "troy_oz",
		CustodyDetails: domain.Metadata{
			Description:   "LBMA bars, lot A-778",
			CustodianName: "Helvetia Custody AG",
			VaultLocation: "Zurich",
		},
	}
}

func TestRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	gate := mocks.NewMockGate(ctrl)
	svc, err := New(store.NewInMemoryStore(), gate)
	require.NoError(t, err)

	spec := validSpec()
	gate.EXPECT().
		Check(gomock.Any(), spec.UserID.String(), "deposit", gomock.Any()).
		Return(compliantCheck(), nil)

	deposit, err := svc.Record(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingVerification, deposit.Status)
	assert.Equal(t, compliance.StatusCompliant, deposit.Compliance.Status)
	assert.False(t, deposit.ID.IsNil())

	got, err := svc.Get(context.Background(), deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, deposit.ID, got.ID)
}

func TestRecord_NonCompliantPersistsNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	gate := mocks.NewMockGate(ctrl)
	st := store.NewInMemoryStore()
	svc, err := New(st, gate)
	require.NoError(t, err)

	spec := validSpec()
	gate.EXPECT().
		Check(gomock.Any(), gomock.Any(), "deposit", gomock.Any()).
		Return(compliance.Check{Status: compliance.StatusNonCompliant, Flags: []string{"sanctions_hit"}}, nil)

	_, err = svc.Record(context.Background(), spec)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeCompliance))

	deposits, err := st.FindByUser(context.Background(), spec.UserID)
	require.NoError(t, err)
	assert.Empty(t, deposits)
}

func TestLifecycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	gate := mocks.NewMockGate(ctrl)
	svc, err := New(store.NewInMemoryStore(), gate)
	require.NoError(t, err)

	gate.EXPECT().Check(gomock.Any(), gomock.Any(), "deposit", gomock.Any()).
		Return(compliantCheck(), nil).AnyTimes()

	deposit, err := svc.Record(context.Background(), validSpec())
	require.NoError(t, err)

	t.Run("cannot store an unverified deposit", func(t *testing.T) {
		_, err := svc.MarkStored(context.Background(), deposit.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("verify then store then release", func(t *testing.T) {
		verified, err := svc.MarkVerified(context.Background(), deposit.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusVerified, verified.Status)
		require.NotNil(t, verified.VerifiedAt)

		stored, err := svc.MarkStored(context.Background(), deposit.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusStored, stored.Status)

		released, err := svc.MarkReleased(context.Background(), deposit.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusReleased, released.Status)
	})

	t.Run("consume and release", func(t *testing.T) {
		other, err := svc.Record(context.Background(), validSpec())
		require.NoError(t, err)
		ctx := context.Background()

		holder := domain.NewRequestID()
		rival := domain.NewRequestID()

		// Only VERIFIED deposits can back a mint.
		_, err = svc.Consume(ctx, other.ID, holder)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

		_, err = svc.MarkVerified(ctx, other.ID)
		require.NoError(t, err)

		consumed, err := svc.Consume(ctx, other.ID, holder)
		require.NoError(t, err)
		require.NotNil(t, consumed.ConsumedBy)
		assert.Equal(t, holder, *consumed.ConsumedBy)

		// Idempotent for the holder, a conflict for anyone else.
		_, err = svc.Consume(ctx, other.ID, holder)
		require.NoError(t, err)
		_, err = svc.Consume(ctx, other.ID, rival)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

		// A rival cannot steal the release either.
		_, err = svc.Release(ctx, other.ID, rival)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

		released, err := svc.Release(ctx, other.ID, holder)
		require.NoError(t, err)
		assert.Nil(t, released.ConsumedBy)

		// After release the deposit backs a new request.
		_, err = svc.Consume(ctx, other.ID, rival)
		require.NoError(t, err)
	})

	t.Run("restore returns a stored deposit to verified", func(t *testing.T) {
		other, err := svc.Record(context.Background(), validSpec())
		require.NoError(t, err)
		ctx := context.Background()

		_, err = svc.MarkVerified(ctx, other.ID)
		require.NoError(t, err)
		_, err = svc.MarkStored(ctx, other.ID)
		require.NoError(t, err)

		restored, err := svc.Restore(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusVerified, restored.Status)

		// Only STORED deposits restore.
		_, err = svc.Restore(ctx, other.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("terminal rejection requires a reason", func(t *testing.T) {
		other, err := svc.Record(context.Background(), validSpec())
		require.NoError(t, err)

		_, err = svc.MarkRejected(context.Background(), other.ID, "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

		rejected, err := svc.MarkRejected(context.Background(), other.ID, "assay mismatch")
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, rejected.Status)
		assert.Equal(t, "assay mismatch", rejected.RejectReason)
	})
}
