// Package service implements the reserve ledger: custodial balances per token
// and the four defined mutations, each recorded in an append-only audit trail.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"aurum/internal/events"
	"aurum/internal/reserve/metrics"
	"aurum/internal/reserve/models"
	"aurum/internal/reserve/store"
	"aurum/pkg/domain"
	dErrors "aurum/pkg/domain-errors"
	"aurum/pkg/platform/sentinel"
	"aurum/pkg/requestcontext"
)

// Store aliases the reserve persistence contract.
type Store = store.Store

// EventEmitter enqueues outbound ledger events.
type EventEmitter interface {
	Emit(ctx context.Context, event events.Event)
}

// Service is the reserve ledger. It does not take the per-token guard itself;
// workflow services hold the guard across multi-step mutations and call Apply
// inside it, while the store's version check catches anything that slips by.
type Service struct {
	store   Store
	emitter EventEmitter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithEventEmitter(emitter EventEmitter) Option {
	return func(s *Service) {
		s.emitter = emitter
	}
}

// New constructs the reserve service.
func New(st Store, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("reserve store is required")
	}
	svc := &Service{store: st}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// InitBalance creates the zero balance paired with a new token. Satisfies the
// token service's reserve initializer.
func (s *Service) InitBalance(ctx context.Context, tokenID domain.TokenID, unit string) error {
	if tokenID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "token id is required")
	}
	if unit == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "reserve unit is required")
	}

	now := requestcontext.Now(ctx)
	balance := &models.Balance{
		TokenID:    tokenID,
		Unit:       unit,
		AuditTrail: []models.AuditEntry{},
		CreatedAt:  now,
	}
	if err := s.store.Create(ctx, balance); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Newf(dErrors.CodeConflict, "reserve balance for token %s already exists", tokenID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "reserve balance creation failed")
	}
	return nil
}

// ApplySpec carries one reserve mutation.
type ApplySpec struct {
	TokenID          domain.TokenID
	Action           models.Action
	Amount           domain.Amount
	Reason           string
	PerformedBy      string
	CausingRequestID string
}

func (spec ApplySpec) validate() error {
	switch {
	case spec.TokenID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "token id is required")
	case !spec.Action.Valid():
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown reserve action %q", spec.Action)
	case !spec.Amount.IsPositive():
		return dErrors.New(dErrors.CodeInvalidInput, "reserve action amount must be positive")
	case spec.PerformedBy == "":
		return dErrors.New(dErrors.CodeInvalidInput, "performed-by is required")
	}
	return nil
}

// Apply executes one reserve action and appends exactly one audit trail entry
// in the same store write. A denied action mutates nothing and appends nothing.
func (s *Service) Apply(ctx context.Context, spec ApplySpec) (*models.Balance, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	balance, err := s.Get(ctx, spec.TokenID)
	if err != nil {
		return nil, err
	}

	switch spec.Action {
	case models.ActionAdd:
		balance.Total = balance.Total.Add(spec.Amount)
		balance.Available = balance.Available.Add(spec.Amount)
	case models.ActionRemove:
		if balance.Available.LessThan(spec.Amount) {
			s.metrics.RecordDenied(string(spec.Action))
			return nil, dErrors.Newf(dErrors.CodeInsufficientReserves,
				"cannot remove %s %s: only %s available", spec.Amount, balance.Unit, balance.Available)
		}
		balance.Total = balance.Total.Sub(spec.Amount)
		balance.Available = balance.Available.Sub(spec.Amount)
	case models.ActionLock:
		if balance.Available.LessThan(spec.Amount) {
			s.metrics.RecordDenied(string(spec.Action))
			return nil, dErrors.Newf(dErrors.CodeInsufficientReserves,
				"cannot lock %s %s: only %s available", spec.Amount, balance.Unit, balance.Available)
		}
		balance.Available = balance.Available.Sub(spec.Amount)
		balance.Locked = balance.Locked.Add(spec.Amount)
	case models.ActionUnlock:
		if balance.Locked.LessThan(spec.Amount) {
			s.metrics.RecordDenied(string(spec.Action))
			return nil, dErrors.Newf(dErrors.CodeInsufficientReserves,
				"cannot unlock %s %s: only %s locked", spec.Amount, balance.Unit, balance.Locked)
		}
		balance.Locked = balance.Locked.Sub(spec.Amount)
		balance.Available = balance.Available.Add(spec.Amount)
	}

	if !balance.CheckInvariant() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation,
			"reserve action %s would break conservation for token %s", spec.Action, spec.TokenID)
	}

	balance.AuditTrail = append(balance.AuditTrail, models.AuditEntry{
		Timestamp:        requestcontext.Now(ctx),
		Action:           spec.Action,
		Amount:           spec.Amount,
		Reason:           spec.Reason,
		PerformedBy:      spec.PerformedBy,
		CausingRequestID: spec.CausingRequestID,
	})

	if err := s.store.Update(ctx, balance); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "concurrent reserve update lost the version race")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "reserve update failed")
	}

	s.metrics.RecordApplied(string(spec.Action))
	if s.emitter != nil {
		s.emitter.Emit(ctx, events.Event{
			Name:    events.ReservesUpdated,
			TokenID: spec.TokenID.String(),
			Amount:  spec.Amount.String(),
			Attrs: map[string]string{
				"action":    string(spec.Action),
				"total":     balance.Total.String(),
				"available": balance.Available.String(),
				"locked":    balance.Locked.String(),
			},
		})
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "reserve action applied",
			"token_id", spec.TokenID,
			"action", spec.Action,
			"amount", spec.Amount,
		)
	}
	return balance, nil
}

// Get returns the reserve balance for a token.
func (s *Service) Get(ctx context.Context, tokenID domain.TokenID) (*models.Balance, error) {
	if tokenID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "token id is required")
	}
	balance, err := s.store.Get(ctx, tokenID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "no reserve balance for token %s", tokenID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "reserve lookup failed")
	}
	return balance, nil
}

// History returns the audit trail for a token's reserve.
func (s *Service) History(ctx context.Context, tokenID domain.TokenID) ([]models.AuditEntry, error) {
	balance, err := s.Get(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return balance.AuditTrail, nil
}

// List returns every reserve balance, for reconciliation sweeps.
func (s *Service) List(ctx context.Context) ([]*models.Balance, error) {
	balances, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "reserve listing failed")
	}
	return balances, nil
}
