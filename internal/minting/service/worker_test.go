package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"aurum/internal/minting/models"
)

func TestWorker_DrivesSubmittedRequestToCompletion(t *testing.T) {
	f := newFixture(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := NewWorker(f.svc, WithConcurrency(2))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	f.gate.EXPECT().Check(gomock.Any(), gomock.Any(), "minting", gomock.Any()).
		Return(compliantCheck(), nil)
	request := f.submit(t, "25", f.verifiedDeposit(t, "25"))

	require.Eventually(t, func() bool {
		got, err := f.svc.Get(context.Background(), request.ID)
		return err == nil && got.Status == models.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	token, err := f.registry.Get(context.Background(), f.tokenID)
	require.NoError(t, err)
	assert.Equal(t, "25", token.TotalSupply.String())

	cancel()
	<-done
}

// A request admitted while the worker is down is claimed by the sweep once
// the worker starts.
func TestWorker_SweepClaimsPendingRequests(t *testing.T) {
	f := newFixture(t, "")

	f.gate.EXPECT().Check(gomock.Any(), gomock.Any(), "minting", gomock.Any()).
		Return(compliantCheck(), nil)
	request := f.submit(t, "10", f.verifiedDeposit(t, "10"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The request was admitted with no queue attached, so only the sweep
	// can find it.
	worker := NewWorker(f.svc, WithSweepInterval(20*time.Millisecond))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		got, err := f.svc.Get(context.Background(), request.ID)
		return err == nil && got.Status == models.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
