package compliance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aurum/internal/platform/config"
	dErrors "aurum/pkg/domain-errors"
)

func newClient(t *testing.T, baseURL string, timeout time.Duration) *Client {
	t.Helper()
	client, err := NewClient(config.ComplianceConfig{
		BaseURL:          baseURL,
		Timeout:          timeout,
		FailureThreshold: 2,
		SuccessThreshold: 1,
		BreakerCooldown:  50 * time.Millisecond,
	})
	require.NoError(t, err)
	return client
}

func TestCheck_CompliantDecision(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checks", r.URL.Path)
		_ = json.NewEncoder(w).Encode(Check{
			Status:    StatusCompliant,
			RiskScore: 12,
			CheckedAt: time.Now(),
		})
	}))
	defer server.Close()

	client := newClient(t, server.URL, time.Second)
	check, err := client.Check(context.Background(), "user-1", "minting", []string{"kyc"})
	require.NoError(t, err)
	assert.True(t, check.Passed())
	assert.Equal(t, 12, check.RiskScore)
}

// A timed-out gate resolves NON_COMPLIANT with a compliance-coded error; the
// caller never proceeds optimistically.
func TestCheck_TimeoutFailsClosed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := newClient(t, server.URL, 20*time.Millisecond)
	check, err := client.Check(context.Background(), "user-1", "minting", nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeCompliance))
	assert.Equal(t, StatusNonCompliant, check.Status)
	assert.Contains(t, check.Flags, "gate_timeout")
}

func TestCheck_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newClient(t, server.URL, time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		check, err := client.Check(ctx, "user-1", "minting", nil)
		require.Error(t, err)
		assert.Contains(t, check.Flags, "gate_unreachable")
	}

	// While open, checks deny immediately without reaching the gate.
	check, err := client.Check(ctx, "user-1", "minting", nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeCompliance))
	assert.Equal(t, StatusNonCompliant, check.Status)
	assert.Contains(t, check.Flags, "gate_circuit_open")
}

// An open circuit recovers once the gate does: after the cooldown the client
// probes the gate again and a healthy response closes the circuit, instead
// of denying every caller forever.
func TestCheck_CircuitRecoversAfterCooldown(t *testing.T) {
	var healthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(Check{Status: StatusCompliant, CheckedAt: time.Now()})
	}))
	defer server.Close()

	client := newClient(t, server.URL, time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := client.Check(ctx, "user-1", "minting", nil)
		require.Error(t, err)
	}
	check, err := client.Check(ctx, "user-1", "minting", nil)
	require.Error(t, err)
	assert.Contains(t, check.Flags, "gate_circuit_open")

	healthy.Store(true)
	time.Sleep(60 * time.Millisecond)

	check, err = client.Check(ctx, "user-1", "minting", nil)
	require.NoError(t, err)
	assert.True(t, check.Passed())

	// And it stays closed for subsequent checks.
	check, err = client.Check(ctx, "user-1", "minting", nil)
	require.NoError(t, err)
	assert.True(t, check.Passed())
}
