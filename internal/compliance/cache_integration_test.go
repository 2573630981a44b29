//go:build integration

package compliance_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"aurum/internal/compliance"
	"aurum/internal/compliance/mocks"
	platformredis "aurum/internal/platform/redis"
	"aurum/pkg/testutil/containers"
)

func newCachedGate(t *testing.T, gate compliance.Gate, ttl time.Duration) (compliance.Gate, *containers.RedisContainer) {
	t.Helper()
	rc := containers.NewRedisContainer(t)
	client := &platformredis.Client{Client: rc.Client}
	return compliance.NewCachedGate(gate, client, ttl, nil), rc
}

func TestCachedGate_CachesCompliantResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	gate := mocks.NewMockGate(ctrl)
	cached, _ := newCachedGate(t, gate, time.Minute)
	ctx := context.Background()

	decision := compliance.Check{
		Status:    compliance.StatusCompliant,
		KYCStatus: "VERIFIED",
		CheckedAt: time.Now().UTC(),
	}
	gate.EXPECT().
		Check(gomock.Any(), "user-1", "minting", []string{"kyc", "aml"}).
		Return(decision, nil).
		Times(1)

	first, err := cached.Check(ctx, "user-1", "minting", []string{"kyc", "aml"})
	require.NoError(t, err)
	assert.True(t, first.Passed())

	// Second call must be served from Redis without touching the gate.
	second, err := cached.Check(ctx, "user-1", "minting", []string{"kyc", "aml"})
	require.NoError(t, err)
	assert.True(t, second.Passed())
	assert.Equal(t, "VERIFIED", second.KYCStatus)
}

func TestCachedGate_NeverCachesDenials(t *testing.T) {
	ctrl := gomock.NewController(t)
	gate := mocks.NewMockGate(ctrl)
	cached, _ := newCachedGate(t, gate, time.Minute)
	ctx := context.Background()

	denied := compliance.Check{Status: compliance.StatusNonCompliant, CheckedAt: time.Now().UTC()}
	gate.EXPECT().
		Check(gomock.Any(), "user-2", "burning", gomock.Any()).
		Return(denied, nil).
		Times(2)

	for i := 0; i < 2; i++ {
		check, err := cached.Check(ctx, "user-2", "burning", []string{"kyc"})
		require.NoError(t, err)
		assert.False(t, check.Passed())
	}
}

func TestCachedGate_ExpiredEntryReconsultsGate(t *testing.T) {
	ctrl := gomock.NewController(t)
	gate := mocks.NewMockGate(ctrl)
	cached, _ := newCachedGate(t, gate, 500*time.Millisecond)
	ctx := context.Background()

	decision := compliance.Check{Status: compliance.StatusCompliant, CheckedAt: time.Now().UTC()}
	gate.EXPECT().
		Check(gomock.Any(), "user-3", "withdrawal", gomock.Any()).
		Return(decision, nil).
		Times(2)

	_, err := cached.Check(ctx, "user-3", "withdrawal", []string{"kyc"})
	require.NoError(t, err)

	time.Sleep(700 * time.Millisecond)

	check, err := cached.Check(ctx, "user-3", "withdrawal", []string{"kyc"})
	require.NoError(t, err)
	assert.True(t, check.Passed())
}

func TestCachedGate_EntitiesAreIsolated(t *testing.T) {
	ctrl := gomock.NewController(t)
	gate := mocks.NewMockGate(ctrl)
	cached, rc := newCachedGate(t, gate, time.Minute)
	ctx := context.Background()

	decision := compliance.Check{Status: compliance.StatusCompliant, CheckedAt: time.Now().UTC()}
	gate.EXPECT().
		Check(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(decision, nil).
		Times(2)

	_, err := cached.Check(ctx, "user-4", "minting", []string{"kyc"})
	require.NoError(t, err)
	// Same entity under a different operation type keys separately.
	_, err = cached.Check(ctx, "user-4", "deposit", []string{"kyc"})
	require.NoError(t, err)

	keys, err := rc.Client.Keys(ctx, "aurum:compliance:*").Result()
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}
