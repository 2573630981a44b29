package account

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aurum/internal/platform/config"
	"aurum/pkg/domain"
	dErrors "aurum/pkg/domain-errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(config.AccountConfig{BaseURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)
	return client
}

func TestClient_VerifyBalance(t *testing.T) {
	userID := domain.NewUserID()
	tokenID := domain.NewTokenID()

	var seen balanceRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/balances/verify", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		w.WriteHeader(http.StatusOK)
	})

	err := client.VerifyBalance(context.Background(), userID, tokenID, domain.MustAmount("42.5"))
	require.NoError(t, err)
	assert.Equal(t, userID.String(), seen.UserID)
	assert.Equal(t, tokenID.String(), seen.TokenID)
	assert.Equal(t, "42.5", seen.Amount)
}

func TestClient_VerifyBalance_Insufficient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	err := client.VerifyBalance(context.Background(), domain.NewUserID(), domain.NewTokenID(), domain.MustAmount("10"))
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err))
}

func TestClient_VerifyBalance_ServiceDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client, err := NewClient(config.AccountConfig{BaseURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)

	err = client.VerifyBalance(context.Background(), domain.NewUserID(), domain.NewTokenID(), domain.MustAmount("10"))
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeExternal, dErrors.CodeOf(err))
}

func TestClient_Debit(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/v1/balances/debit", r.URL.Path)
		if calls == 1 {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	})

	ctx := context.Background()
	require.NoError(t, client.Debit(ctx, domain.NewUserID(), domain.NewTokenID(), domain.MustAmount("5")))

	err := client.Debit(ctx, domain.NewUserID(), domain.NewTokenID(), domain.MustAmount("5"))
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeExternal, dErrors.CodeOf(err))
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(config.AccountConfig{})
	require.Error(t, err)
}
