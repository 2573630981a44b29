package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"aurum/internal/platform/config"
	dErrors "aurum/pkg/domain-errors"
	"aurum/pkg/platform/circuit"
	"aurum/pkg/requestcontext"
)

// Client calls the compliance gate over HTTP. Every call carries the
// configured timeout; repeated failures open a circuit breaker so an
// unreachable gate cannot stall request processing. After the cooldown the
// breaker admits probe calls, so a recovered gate closes it again.
type Client struct {
	httpClient *http.Client
	baseURL    string
	breaker    *circuit.Breaker
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

// NewClient constructs the gate client.
func NewClient(cfg config.ComplianceConfig, opts ...ClientOption) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("compliance gate URL is required")
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		breaker: circuit.New("compliance-gate",
			circuit.WithFailureThreshold(cfg.FailureThreshold),
			circuit.WithSuccessThreshold(cfg.SuccessThreshold),
			circuit.WithOpenTimeout(cfg.BreakerCooldown),
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type checkRequest struct {
	EntityID       string   `json:"entityId"`
	EntityType     string   `json:"entityType"`
	RequiredChecks []string `json:"requiredChecks,omitempty"`
}

// Check calls the gate. On any failure it returns a NON_COMPLIANT check and a
// coded error; the zero-trust default is denial.
func (c *Client) Check(ctx context.Context, entityID, entityType string, requiredChecks []string) (Check, error) {
	now := requestcontext.Now(ctx)

	if c.breaker.IsOpen() {
		return Denied(now, "gate_circuit_open"),
			dErrors.New(dErrors.CodeCompliance, "compliance gate circuit open")
	}

	check, err := c.call(ctx, entityID, entityType, requiredChecks)
	if err != nil {
		_, change := c.breaker.RecordFailure()
		if change.Opened && c.logger != nil {
			c.logger.WarnContext(ctx, "compliance gate circuit opened", "entity_type", entityType)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return Denied(now, "gate_timeout"),
				dErrors.Wrap(err, dErrors.CodeCompliance, "compliance gate timed out")
		}
		return Denied(now, "gate_unreachable"),
			dErrors.Wrap(err, dErrors.CodeCompliance, "compliance gate unavailable")
	}

	_, change := c.breaker.RecordSuccess()
	if change.Closed && c.logger != nil {
		c.logger.InfoContext(ctx, "compliance gate circuit closed")
	}
	return check, nil
}

func (c *Client) call(ctx context.Context, entityID, entityType string, requiredChecks []string) (Check, error) {
	body, err := json.Marshal(checkRequest{
		EntityID:       entityID,
		EntityType:     entityType,
		RequiredChecks: requiredChecks,
	})
	if err != nil {
		return Check{}, fmt.Errorf("marshal check request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checks", strings.NewReader(string(body)))
	if err != nil {
		return Check{}, fmt.Errorf("build check request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Check{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Check{}, fmt.Errorf("compliance gate returned status %d", resp.StatusCode)
	}

	var check Check
	if err := json.NewDecoder(resp.Body).Decode(&check); err != nil {
		return Check{}, fmt.Errorf("decode check response: %w", err)
	}
	if check.CheckedAt.IsZero() {
		check.CheckedAt = requestcontext.Now(ctx)
	}
	return check, nil
}
