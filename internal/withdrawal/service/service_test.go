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
	"aurum/internal/ledger"
	"aurum/internal/platform/config"
	reservemodels "aurum/internal/reserve/models"
	reserveservice "aurum/internal/reserve/service"
	reservestore "aurum/internal/reserve/store"
	"aurum/internal/withdrawal/models"
	"aurum/internal/withdrawal/store"
	"aurum/pkg/domain"
	dErrors "aurum/pkg/domain-errors"
)

type fixture struct {
	svc      *Service
	reserves *reserveservice.Service
	gate     *mocks.MockGate
	guard    *ledger.Guard
	tokenID  domain.TokenID
}

func newFixture(t *testing.T, availableReserve string) *fixture {
	t.Helper()

	reserves, err := reserveservice.New(reservestore.NewInMemoryStore())
	require.NoError(t, err)

	tokenID := domain.NewTokenID()
	ctx := context.Background()
	require.NoError(t, reserves.InitBalance(ctx, tokenID, "troy_oz"))
	if availableReserve != "0" {
		_, err = reserves.Apply(ctx, reserveservice.ApplySpec{
			TokenID:     tokenID,
			Action:      reservemodels.ActionAdd,
			Amount:      domain.MustAmount(availableReserve),
			PerformedBy: "test-seed",
		})
		require.NoError(t, err)
	}

	ctrl := gomock.NewController(t)
	gate := mocks.NewMockGate(ctrl)

	cfg := config.WithdrawalConfig{
		ProcessingFee:    domain.MustAmount("25"),
		ShippingPerUnit:  domain.MustAmount("1.5"),
		InsuranceRate:    domain.MustAmount("0.01"),
		DeliveryEstimate: 7 * 24 * time.Hour,
	}
	guard := ledger.NewGuard()
	svc, err := New(store.NewInMemoryStore(), reserves, gate, guard, cfg)
	require.NoError(t, err)

	return &fixture{svc: svc, reserves: reserves, gate: gate, guard: guard, tokenID: tokenID}
}

func (f *fixture) spec(assetAmount string) RequestSpec {
	return RequestSpec{
		UserID:      domain.NewUserID(),
		TokenID:     f.tokenID,
		Amount:      domain.MustAmount(assetAmount),
		AssetAmount: domain.MustAmount(assetAmount),
		DeliveryAddress: models.DeliveryAddress{
			Name:    "A. Nakamura",
			Street:  "12 Vault Row",
			City:    "Zurich",
			Country: "CH",
		},
	}
}

func compliantCheck() compliance.Check {
	return compliance.Check{Status: compliance.StatusCompliant, CheckedAt: time.Now()}
}

func TestRequest_LocksReserveAndComputesFees(t *testing.T) {
	f := newFixture(t, "100")
	f.gate.EXPECT().Check(gomock.Any(), gomock.Any(), "withdrawal", gomock.Any()).
		Return(compliantCheck(), nil)

	withdrawal, err := f.svc.Request(context.Background(), f.spec("50"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, withdrawal.Status)

	// 25 flat + 50*1.5 shipping + 50*0.01 insurance.
	assert.Equal(t, "25", withdrawal.Fees.Processing.String())
	assert.Equal(t, "75", withdrawal.Fees.Shipping.String())
	assert.Equal(t, "0.5", withdrawal.Fees.Insurance.String())
	assert.Equal(t, "100.5", withdrawal.Fees.Total.String())
	assert.False(t, withdrawal.EstimatedDelivery.IsZero())

	balance, err := f.reserves.Get(context.Background(), f.tokenID)
	require.NoError(t, err)
	assert.Equal(t, "50", balance.Available.String())
	assert.Equal(t, "50", balance.Locked.String())
	assert.Equal(t, "100", balance.Total.String())
}

// A request beyond available reserve fails with insufficient_reserves and
// leaves both the reserve and the withdrawal store untouched.
func TestRequest_InsufficientReserve(t *testing.T) {
	f := newFixture(t, "30")

	spec := f.spec("50")
	_, err := f.svc.Request(context.Background(), spec)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientReserves))

	balance, err := f.reserves.Get(context.Background(), f.tokenID)
	require.NoError(t, err)
	assert.Equal(t, "30", balance.Available.String())
	assert.True(t, balance.Locked.IsZero())

	withdrawals, err := f.svc.FindByUser(context.Background(), spec.UserID)
	require.NoError(t, err)
	assert.Empty(t, withdrawals)
}

func TestRequest_GateFailClosed(t *testing.T) {
	f := newFixture(t, "100")
	f.gate.EXPECT().Check(gomock.Any(), gomock.Any(), "withdrawal", gomock.Any()).
		Return(compliance.Denied(time.Now(), "gate_timeout"),
			dErrors.New(dErrors.CodeCompliance, "compliance gate timed out"))

	spec := f.spec("50")
	_, err := f.svc.Request(context.Background(), spec)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeCompliance))

	balance, err := f.reserves.Get(context.Background(), f.tokenID)
	require.NoError(t, err)
	assert.True(t, balance.Locked.IsZero())
}

// The gate is a remote call and must run before the per-token section: a
// concurrent guarded operation on the same token has to complete while the
// gate is still deciding. Holding the guard across the gate call would stall
// every other writer of the token for the duration of an external HTTP
// round trip.
func TestRequest_GateRunsOutsideTokenGuard(t *testing.T) {
	f := newFixture(t, "100")

	f.gate.EXPECT().Check(gomock.Any(), gomock.Any(), "withdrawal", gomock.Any()).
		DoAndReturn(func(ctx context.Context, entityID, entityType string, checks []string) (compliance.Check, error) {
			done := make(chan struct{})
			go func() {
				_ = f.guard.Do(context.Background(), f.tokenID, func(context.Context) error { return nil })
				close(done)
			}()
			select {
			case <-done:
				return compliantCheck(), nil
			case <-time.After(500 * time.Millisecond):
				return compliance.Check{}, dErrors.New(dErrors.CodeInternal,
					"token guard held during gate call")
			}
		})

	withdrawal, err := f.svc.Request(context.Background(), f.spec("50"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, withdrawal.Status)

	balance, err := f.reserves.Get(context.Background(), f.tokenID)
	require.NoError(t, err)
	assert.Equal(t, "50", balance.Locked.String())
}

func TestLifecycle_ShipAndDeliver(t *testing.T) {
	f := newFixture(t, "100")
	f.gate.EXPECT().Check(gomock.Any(), gomock.Any(), "withdrawal", gomock.Any()).
		Return(compliantCheck(), nil)

	ctx := context.Background()
	withdrawal, err := f.svc.Request(ctx, f.spec("40"))
	require.NoError(t, err)

	_, err = f.svc.MarkShipped(ctx, withdrawal.ID)
	require.Error(t, err, "cannot ship before approval")

	approved, err := f.svc.Approve(ctx, withdrawal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)

	shipped, err := f.svc.MarkShipped(ctx, withdrawal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, shipped.Status)
	require.NotNil(t, shipped.ShippedAt)

	delivered, err := f.svc.MarkDelivered(ctx, withdrawal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)

	// Dispatch has begun; cancellation is no longer possible.
	_, err = f.svc.Cancel(ctx, withdrawal.ID, "changed my mind")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestCancel_ReleasesLock(t *testing.T) {
	f := newFixture(t, "100")
	f.gate.EXPECT().Check(gomock.Any(), gomock.Any(), "withdrawal", gomock.Any()).
		Return(compliantCheck(), nil)

	ctx := context.Background()
	withdrawal, err := f.svc.Request(ctx, f.spec("60"))
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, withdrawal.ID, "user aborted")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	balance, err := f.reserves.Get(ctx, f.tokenID)
	require.NoError(t, err)
	assert.Equal(t, "100", balance.Available.String())
	assert.True(t, balance.Locked.IsZero())
}
