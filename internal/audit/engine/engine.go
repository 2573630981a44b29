// Package engine implements periodic reconciliation between the token
// registry and the reserve ledger. It reads both sides, compares expected
// coverage against held reserves, and records findings. Discrepancies are
// surfaced for manual reconciliation, never auto-corrected.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"aurum/internal/audit/metrics"
	"aurum/internal/audit/models"
	"aurum/internal/audit/store"
	burningmodels "aurum/internal/burning/models"
	"aurum/internal/events"
	mintingmodels "aurum/internal/minting/models"
	"aurum/internal/platform/config"
	reservemodels "aurum/internal/reserve/models"
	tokenmodels "aurum/internal/token/models"
	"aurum/pkg/domain"
	dErrors "aurum/pkg/domain-errors"
	"aurum/pkg/requestcontext"
)

// Store aliases the audit record persistence contract.
type Store = store.Store

// Registry is the slice of the token registry the engine needs.
type Registry interface {
	Get(ctx context.Context, tokenID domain.TokenID) (*tokenmodels.Token, error)
	RecordAuditOutcome(ctx context.Context, tokenID domain.TokenID, info tokenmodels.AuditInfo) error
}

// Reserves is the slice of the reserve ledger the engine needs.
type Reserves interface {
	Get(ctx context.Context, tokenID domain.TokenID) (*reservemodels.Balance, error)
	List(ctx context.Context) ([]*reservemodels.Balance, error)
}

// MintSweeper exposes the minting workflow's status sweep.
type MintSweeper interface {
	FindByStatus(ctx context.Context, status mintingmodels.Status) ([]*mintingmodels.Request, error)
}

// BurnSweeper exposes the burning workflow's status sweep.
type BurnSweeper interface {
	FindByStatus(ctx context.Context, status burningmodels.Status) ([]*burningmodels.Request, error)
}

// EventEmitter enqueues outbound ledger events.
type EventEmitter interface {
	Emit(ctx context.Context, event events.Event)
}

// Engine runs reconciliation sweeps.
type Engine struct {
	store    Store
	registry Registry
	reserves Reserves
	mints    MintSweeper
	burns    BurnSweeper
	cfg      config.AuditConfig
	emitter  EventEmitter
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithEventEmitter(emitter EventEmitter) Option {
	return func(e *Engine) {
		e.emitter = emitter
	}
}

// WithWorkflowSweeps enables stuck-request detection over the two workflows.
func WithWorkflowSweeps(mints MintSweeper, burns BurnSweeper) Option {
	return func(e *Engine) {
		e.mints = mints
		e.burns = burns
	}
}

// New constructs the reconciliation engine.
func New(st Store, registry Registry, reserves Reserves, cfg config.AuditConfig, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("audit store is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("token registry is required")
	}
	if reserves == nil {
		return nil, fmt.Errorf("reserve service is required")
	}
	e := &Engine{store: st, registry: registry, reserves: reserves, cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// OpenStub creates a PENDING audit record tied to a new entity, such as a
// freshly recorded deposit awaiting verification.
func (e *Engine) OpenStub(ctx context.Context, entityID, entityType string) (domain.AuditID, error) {
	record := &models.Record{
		ID:         domain.NewAuditID(),
		EntityID:   entityID,
		EntityType: entityType,
		Status:     models.StatusPending,
		StartedAt:  requestcontext.Now(ctx),
	}
	if err := e.store.Create(ctx, record); err != nil {
		return domain.AuditID{}, dErrors.Wrap(err, dErrors.CodeInternal, "audit stub creation failed")
	}
	return record.ID, nil
}

// ReconcileToken audits one token's reserve coverage. A divergence seen on
// the first read must persist beyond the grace window before it becomes a
// finding; point-in-time races with in-flight requests settle within it.
func (e *Engine) ReconcileToken(ctx context.Context, tokenID domain.TokenID) (*models.Record, error) {
	now := requestcontext.Now(ctx)
	record := &models.Record{
		ID:         domain.NewAuditID(),
		EntityID:   tokenID.String(),
		EntityType: "token",
		Status:     models.StatusInProgress,
		StartedAt:  now,
	}
	if err := e.store.Create(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "audit record creation failed")
	}

	findings, err := e.compare(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if len(findings) > 0 && e.cfg.GraceWindow > 0 {
		select {
		case <-ctx.Done():
			return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "reconciliation interrupted")
		case <-time.After(e.cfg.GraceWindow):
		}
		findings, err = e.compare(ctx, tokenID)
		if err != nil {
			return nil, err
		}
	}

	completed := requestcontext.Now(ctx)
	record.Findings = findings
	record.CompletedAt = &completed
	if len(findings) == 0 {
		record.Status = models.StatusCompleted
	} else {
		record.Status = models.StatusFailed
		record.Recommendations = recommendations(findings)
		e.metrics.RecordInvariantAlert()
		if e.logger != nil {
			e.logger.ErrorContext(ctx, "reconciliation found discrepancies, manual review required",
				"token_id", tokenID,
				"findings", len(findings),
			)
		}
	}
	if err := e.store.Update(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "audit record update failed")
	}
	e.metrics.RecordAudit(string(record.Status))

	next := completed.Add(e.interval())
	if err := e.registry.RecordAuditOutcome(ctx, tokenID, tokenmodels.AuditInfo{
		LastAuditID:     record.ID.String(),
		LastAuditAt:     completed,
		LastAuditStatus: string(record.Status),
		NextAuditDue:    next,
	}); err != nil && e.logger != nil {
		e.logger.WarnContext(ctx, "audit outcome could not be recorded on token",
			"token_id", tokenID,
			"error", err,
		)
	}

	if e.emitter != nil {
		e.emitter.Emit(ctx, events.Event{
			Name:     events.AuditCompleted,
			TokenID:  tokenID.String(),
			EntityID: record.ID.String(),
			Attrs: map[string]string{
				"status":   string(record.Status),
				"findings": fmt.Sprintf("%d", len(record.Findings)),
			},
		})
	}
	return record, nil
}

// compare reads a point-in-time snapshot of both sides and returns findings.
func (e *Engine) compare(ctx context.Context, tokenID domain.TokenID) ([]models.Finding, error) {
	token, err := e.registry.Get(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	balance, err := e.reserves.Get(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	var findings []models.Finding

	expected := token.CirculatingSupply.MulRatio(token.ReserveRatio)
	divergence := expected.Sub(balance.Total).Abs()
	if divergence.GreaterThan(e.cfg.Tolerance) {
		findings = append(findings, models.Finding{
			Code: models.FindingReserveDivergence,
			Detail: fmt.Sprintf("reserve %s diverges from expected coverage %s by %s (ratio %s)",
				balance.Total, expected, divergence, token.ReserveRatio),
			Expected:   expected,
			Actual:     balance.Total,
			Divergence: divergence,
		})
	}

	if balance.Available.IsNegative() || balance.Locked.IsNegative() {
		findings = append(findings, models.Finding{
			Code: models.FindingNegativeBalance,
			Detail: fmt.Sprintf("negative reserve components: available=%s locked=%s",
				balance.Available, balance.Locked),
			Actual: balance.Total,
		})
	}
	return findings, nil
}

func recommendations(findings []models.Finding) []string {
	var out []string
	for _, finding := range findings {
		switch finding.Code {
		case models.FindingReserveDivergence:
			out = append(out, "freeze supply updates for the token and reconcile custody statements against the reserve audit trail")
		case models.FindingNegativeBalance:
			out = append(out, "halt reserve actions for the token and replay the audit trail to locate the underflow")
		case models.FindingStuckRequest:
			out = append(out, "inspect the stuck request's worker and drive it to a terminal state")
		}
	}
	return out
}

// processingSince is the moment a worker claimed the request. Requests
// persisted PROCESSING before the claim stamp existed fall back to submission
// time.
func processingSince(claimedAt *time.Time, submittedAt time.Time) time.Time {
	if claimedAt != nil {
		return *claimedAt
	}
	return submittedAt
}

// DetectStuck surfaces requests that have sat in PROCESSING longer than the
// configured threshold since their worker claimed them. They are reported,
// not touched; only their worker may move them.
func (e *Engine) DetectStuck(ctx context.Context) ([]models.Finding, error) {
	if e.mints == nil && e.burns == nil {
		return nil, nil
	}
	cutoff := requestcontext.Now(ctx).Add(-e.cfg.StuckAfter)
	var findings []models.Finding

	if e.mints != nil {
		requests, err := e.mints.FindByStatus(ctx, mintingmodels.StatusProcessing)
		if err != nil {
			return nil, err
		}
		for _, request := range requests {
			if since := processingSince(request.ClaimedAt, request.SubmittedAt); since.Before(cutoff) {
				findings = append(findings, models.Finding{
					Code:   models.FindingStuckRequest,
					Detail: fmt.Sprintf("mint %s has been PROCESSING since %s", request.ID, since.Format(time.RFC3339)),
				})
			}
		}
	}
	if e.burns != nil {
		requests, err := e.burns.FindByStatus(ctx, burningmodels.StatusProcessing)
		if err != nil {
			return nil, err
		}
		for _, request := range requests {
			if since := processingSince(request.ClaimedAt, request.SubmittedAt); since.Before(cutoff) {
				findings = append(findings, models.Finding{
					Code:   models.FindingStuckRequest,
					Detail: fmt.Sprintf("burn %s has been PROCESSING since %s", request.ID, since.Format(time.RFC3339)),
				})
			}
		}
	}

	if len(findings) > 0 {
		e.metrics.RecordStuck(len(findings))
		now := requestcontext.Now(ctx)
		record := &models.Record{
			ID:              domain.NewAuditID(),
			EntityID:        "workflows",
			EntityType:      "workflow",
			Status:          models.StatusFailed,
			Findings:        findings,
			Recommendations: recommendations(findings),
			StartedAt:       now,
			CompletedAt:     &now,
		}
		if err := e.store.Create(ctx, record); err != nil {
			return findings, dErrors.Wrap(err, dErrors.CodeInternal, "stuck-request record creation failed")
		}
		if e.logger != nil {
			e.logger.ErrorContext(ctx, "stuck requests detected", "count", len(findings))
		}
	}
	return findings, nil
}

// Run reconciles every reserve-bearing token on the configured interval until
// ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.sweep(ctx)
		}
	}
}

func (e *Engine) sweep(ctx context.Context) {
	balances, err := e.reserves.List(ctx)
	if err != nil {
		if e.logger != nil {
			e.logger.ErrorContext(ctx, "reserve sweep failed", "error", err)
		}
		return
	}
	for _, balance := range balances {
		if _, err := e.ReconcileToken(ctx, balance.TokenID); err != nil && e.logger != nil {
			e.logger.ErrorContext(ctx, "reconciliation failed",
				"token_id", balance.TokenID,
				"error", err,
			)
		}
	}
	if _, err := e.DetectStuck(ctx); err != nil && e.logger != nil {
		e.logger.ErrorContext(ctx, "stuck-request detection failed", "error", err)
	}
}

func (e *Engine) interval() time.Duration {
	if e.cfg.Interval > 0 {
		return e.cfg.Interval
	}
	return time.Minute
}
