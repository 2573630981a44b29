package account

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"aurum/internal/platform/config"
	"aurum/pkg/domain"
	dErrors "aurum/pkg/domain-errors"
)

// Client talks to the external account service over HTTP. A verification
// failure blocks the burn; a debit failure is surfaced to the caller, which
// treats it as reconcilable bookkeeping drift rather than a workflow error.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient overrides the underlying HTTP client (tests).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient constructs the account service client.
func NewClient(cfg config.AccountConfig, opts ...ClientOption) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("account service URL is required")
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type balanceRequest struct {
	UserID  string `json:"userId"`
	TokenID string `json:"tokenId"`
	Amount  string `json:"amount"`
}

// VerifyBalance asks the account service whether the user's token balance
// covers amount. Any transport failure denies the burn.
func (c *Client) VerifyBalance(ctx context.Context, userID domain.UserID, tokenID domain.TokenID, amount domain.Amount) error {
	status, err := c.post(ctx, "/v1/balances/verify", userID, tokenID, amount)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeExternal, "account service unavailable")
	}
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return dErrors.Newf(dErrors.CodeBadRequest,
			"balance of user %s cannot cover %s", userID, amount)
	default:
		return dErrors.Newf(dErrors.CodeExternal, "account service returned status %d", status)
	}
}

// Debit applies the balance reduction for a completed burn.
func (c *Client) Debit(ctx context.Context, userID domain.UserID, tokenID domain.TokenID, amount domain.Amount) error {
	status, err := c.post(ctx, "/v1/balances/debit", userID, tokenID, amount)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeExternal, "account service unavailable")
	}
	if status != http.StatusOK {
		return dErrors.Newf(dErrors.CodeExternal, "account service returned status %d", status)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, userID domain.UserID, tokenID domain.TokenID, amount domain.Amount) (int, error) {
	body, err := json.Marshal(balanceRequest{
		UserID:  userID.String(),
		TokenID: tokenID.String(),
		Amount:  amount.String(),
	})
	if err != nil {
		return 0, fmt.Errorf("marshal balance request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(body)))
	if err != nil {
		return 0, fmt.Errorf("build balance request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// Trusting approves every verification and absorbs debits. It stands in for
// the account service when none is configured (dev, tests); burns then rely
// on supply and reserve checks alone.
type Trusting struct {
	logger *slog.Logger
}

// NewTrusting returns the stand-in verifier.
func NewTrusting(logger *slog.Logger) *Trusting {
	return &Trusting{logger: logger}
}

func (t *Trusting) VerifyBalance(ctx context.Context, userID domain.UserID, tokenID domain.TokenID, amount domain.Amount) error {
	return nil
}

func (t *Trusting) Debit(ctx context.Context, userID domain.UserID, tokenID domain.TokenID, amount domain.Amount) error {
	if t.logger != nil {
		t.logger.InfoContext(ctx, "debit skipped, no account service configured",
			"user_id", userID, "token_id", tokenID, "amount", amount)
	}
	return nil
}
