// Package service implements withdrawal fulfillment. A request reserves
// capacity by locking the asset amount immediately; the lock is held until the
// paired burn removes it or the withdrawal is cancelled.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"aurum/internal/compliance"
	"aurum/internal/events"
	"aurum/internal/ledger"
	"aurum/internal/platform/config"
	reservemodels "aurum/internal/reserve/models"
	reserveservice "aurum/internal/reserve/service"
	"aurum/internal/withdrawal/models"
	"aurum/internal/withdrawal/store"
	"aurum/pkg/domain"
	dErrors "aurum/pkg/domain-errors"
	"aurum/pkg/platform/sentinel"
	"aurum/pkg/requestcontext"
)

// Store aliases the withdrawal persistence contract.
type Store = store.Store

// Reserves is the slice of the reserve ledger the fulfillment flow needs.
type Reserves interface {
	Get(ctx context.Context, tokenID domain.TokenID) (*reservemodels.Balance, error)
	Apply(ctx context.Context, spec reserveservice.ApplySpec) (*reservemodels.Balance, error)
}

// EventEmitter enqueues outbound ledger events.
type EventEmitter interface {
	Emit(ctx context.Context, event events.Event)
}

// Service is the withdrawal fulfillment service.
type Service struct {
	store    Store
	reserves Reserves
	gate     compliance.Gate
	guard    *ledger.Guard
	cfg      config.WithdrawalConfig
	emitter  EventEmitter
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithEventEmitter(emitter EventEmitter) Option {
	return func(s *Service) {
		s.emitter = emitter
	}
}

// New constructs the withdrawal service.
func New(st Store, reserves Reserves, gate compliance.Gate, guard *ledger.Guard, cfg config.WithdrawalConfig, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("withdrawal store is required")
	}
	if reserves == nil {
		return nil, fmt.Errorf("reserve service is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("compliance gate is required")
	}
	if guard == nil {
		return nil, fmt.Errorf("ledger guard is required")
	}
	svc := &Service{store: st, reserves: reserves, gate: gate, guard: guard, cfg: cfg}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RequestSpec carries one withdrawal request.
type RequestSpec struct {
	UserID          domain.UserID
	TokenID         domain.TokenID
	Amount          domain.Amount
	AssetAmount     domain.Amount
	DeliveryAddress models.DeliveryAddress
}

func (spec RequestSpec) validate() error {
	switch {
	case spec.UserID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	case spec.TokenID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "token id is required")
	case !spec.Amount.IsPositive():
		return dErrors.New(dErrors.CodeInvalidInput, "withdrawal amount must be positive")
	case !spec.AssetAmount.IsPositive():
		return dErrors.New(dErrors.CodeInvalidInput, "asset amount must be positive")
	}
	return spec.DeliveryAddress.Validate()
}

func checkAvailable(balance *reservemodels.Balance, assetAmount domain.Amount) error {
	if balance.Available.LessThan(assetAmount) {
		return dErrors.Newf(dErrors.CodeInsufficientReserves,
			"withdrawal of %s %s exceeds available reserve %s",
			assetAmount, balance.Unit, balance.Available)
	}
	return nil
}

// computeFees fixes the charge breakdown at request time.
func (s *Service) computeFees(assetAmount domain.Amount) models.Fees {
	shipping := assetAmount.MulRatio(s.cfg.ShippingPerUnit)
	insurance := assetAmount.MulRatio(s.cfg.InsuranceRate)
	return models.Fees{
		Processing: s.cfg.ProcessingFee,
		Shipping:   shipping,
		Insurance:  insurance,
		Total:      s.cfg.ProcessingFee.Add(shipping).Add(insurance),
	}
}

// Request validates reserve capacity, runs the compliance gate, persists the
// withdrawal PENDING, and locks the asset amount against concurrent requests.
// An insufficient reserve or failed gate mutates nothing.
func (s *Service) Request(ctx context.Context, spec RequestSpec) (*models.Withdrawal, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	balance, err := s.reserves.Get(ctx, spec.TokenID)
	if err != nil {
		return nil, err
	}
	if err := checkAvailable(balance, spec.AssetAmount); err != nil {
		return nil, err
	}

	// The gate is a remote call; it runs before the guard so the per-token
	// section never blocks on an external collaborator.
	check, err := s.gate.Check(ctx, spec.UserID.String(), "withdrawal", []string{"kyc", "aml", "sanctions"})
	if err != nil {
		return nil, err
	}
	if !check.Passed() {
		return nil, dErrors.Newf(dErrors.CodeCompliance,
			"withdrawal denied for user %s: compliance status %s", spec.UserID, check.Status)
	}

	var withdrawal *models.Withdrawal
	err = s.guard.Do(ctx, spec.TokenID, func(ctx context.Context) error {
		// Re-read under the guard; capacity may have moved since the
		// pre-check.
		balance, err := s.reserves.Get(ctx, spec.TokenID)
		if err != nil {
			return err
		}
		if err := checkAvailable(balance, spec.AssetAmount); err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		withdrawal = &models.Withdrawal{
			ID:                domain.NewWithdrawalID(),
			UserID:            spec.UserID,
			TokenID:           spec.TokenID,
			Amount:            spec.Amount,
			AssetAmount:       spec.AssetAmount,
			DeliveryAddress:   spec.DeliveryAddress,
			Fees:              s.computeFees(spec.AssetAmount),
			Status:            models.StatusPending,
			Compliance:        check,
			RequestedAt:       now,
			EstimatedDelivery: now.Add(s.cfg.DeliveryEstimate),
		}
		if err := s.store.Create(ctx, withdrawal); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "withdrawal creation failed")
		}

		// Lock inside the guard so no concurrent request sees the capacity
		// we just validated.
		if _, err := s.reserves.Apply(ctx, reserveservice.ApplySpec{
			TokenID:          spec.TokenID,
			Action:           reservemodels.ActionLock,
			Amount:           spec.AssetAmount,
			Reason:           "withdrawal capacity reservation",
			PerformedBy:      "withdrawal-service",
			CausingRequestID: withdrawal.ID.String(),
		}); err != nil {
			withdrawal.Status = models.StatusFailed
			withdrawal.FailReason = "reserve lock failed"
			if updErr := s.store.Update(ctx, withdrawal); updErr != nil && s.logger != nil {
				s.logger.ErrorContext(ctx, "failed to mark withdrawal failed after lock error",
					"withdrawal_id", withdrawal.ID,
					"error", updErr,
				)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "reserve lock failed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.emitter != nil {
		s.emitter.Emit(ctx, events.Event{
			Name:     events.WithdrawalRequested,
			TokenID:  spec.TokenID.String(),
			EntityID: withdrawal.ID.String(),
			UserID:   spec.UserID.String(),
			Amount:   spec.AssetAmount.String(),
			Attrs:    map[string]string{"fees_total": withdrawal.Fees.Total.String()},
		})
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "withdrawal requested",
			"withdrawal_id", withdrawal.ID,
			"token_id", spec.TokenID,
			"asset_amount", spec.AssetAmount,
		)
	}
	return withdrawal, nil
}

// Approve transitions PENDING to APPROVED after custody review.
func (s *Service) Approve(ctx context.Context, id domain.WithdrawalID) (*models.Withdrawal, error) {
	return s.transition(ctx, id, models.StatusApproved, "")
}

// MarkShipped transitions APPROVED to PROCESSING when the asset physically
// dispatches. The paired burning workflow then unlocks and removes the
// reserve.
func (s *Service) MarkShipped(ctx context.Context, id domain.WithdrawalID) (*models.Withdrawal, error) {
	withdrawal, err := s.transition(ctx, id, models.StatusProcessing, "")
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	withdrawal.ShippedAt = &now
	if err := s.update(ctx, withdrawal); err != nil {
		return nil, err
	}
	return withdrawal, nil
}

// MarkDelivered transitions PROCESSING to COMPLETED on confirmed delivery.
func (s *Service) MarkDelivered(ctx context.Context, id domain.WithdrawalID) (*models.Withdrawal, error) {
	withdrawal, err := s.transition(ctx, id, models.StatusCompleted, "")
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	withdrawal.DeliveredAt = &now
	if err := s.update(ctx, withdrawal); err != nil {
		return nil, err
	}

	if s.emitter != nil {
		s.emitter.Emit(ctx, events.Event{
			Name:     events.WithdrawalCompleted,
			TokenID:  withdrawal.TokenID.String(),
			EntityID: withdrawal.ID.String(),
			UserID:   withdrawal.UserID.String(),
			Amount:   withdrawal.AssetAmount.String(),
		})
	}
	return withdrawal, nil
}

// Cancel aborts a withdrawal that has not begun dispatch and releases its
// reserve lock.
func (s *Service) Cancel(ctx context.Context, id domain.WithdrawalID, reason string) (*models.Withdrawal, error) {
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "a cancellation reason is required")
	}

	var withdrawal *models.Withdrawal
	err := s.guardForWithdrawal(ctx, id, func(ctx context.Context, current *models.Withdrawal) error {
		if !current.Status.CanTransitionTo(models.StatusCancelled) {
			return dErrors.Newf(dErrors.CodeBadRequest,
				"cannot cancel withdrawal %s in state %s", id, current.Status)
		}
		current.Status = models.StatusCancelled
		current.FailReason = reason
		if err := s.update(ctx, current); err != nil {
			return err
		}
		if _, err := s.reserves.Apply(ctx, reserveservice.ApplySpec{
			TokenID:          current.TokenID,
			Action:           reservemodels.ActionUnlock,
			Amount:           current.AssetAmount,
			Reason:           "withdrawal cancelled",
			PerformedBy:      "withdrawal-service",
			CausingRequestID: current.ID.String(),
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "reserve unlock failed")
		}
		withdrawal = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return withdrawal, nil
}

func (s *Service) guardForWithdrawal(ctx context.Context, id domain.WithdrawalID, fn func(context.Context, *models.Withdrawal) error) error {
	withdrawal, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.guard.Do(ctx, withdrawal.TokenID, func(ctx context.Context) error {
		// Re-read inside the guard; the state may have moved.
		current, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		return fn(ctx, current)
	})
}

func (s *Service) transition(ctx context.Context, id domain.WithdrawalID, next models.Status, reason string) (*models.Withdrawal, error) {
	withdrawal, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !withdrawal.Status.CanTransitionTo(next) {
		return nil, dErrors.Newf(dErrors.CodeBadRequest,
			"cannot move withdrawal %s from %s to %s", id, withdrawal.Status, next)
	}
	withdrawal.Status = next
	withdrawal.FailReason = reason
	if err := s.update(ctx, withdrawal); err != nil {
		return nil, err
	}
	return withdrawal, nil
}

func (s *Service) update(ctx context.Context, withdrawal *models.Withdrawal) error {
	if err := s.store.Update(ctx, withdrawal); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "concurrent withdrawal update lost the version race")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "withdrawal update failed")
	}
	return nil
}

// Get returns a withdrawal by id.
func (s *Service) Get(ctx context.Context, id domain.WithdrawalID) (*models.Withdrawal, error) {
	if id.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "withdrawal id is required")
	}
	withdrawal, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "withdrawal %s not found", id)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "withdrawal lookup failed")
	}
	return withdrawal, nil
}

// FindByUser returns a user's withdrawals.
func (s *Service) FindByUser(ctx context.Context, userID domain.UserID) ([]*models.Withdrawal, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	withdrawals, err := s.store.FindByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "withdrawal lookup failed")
	}
	return withdrawals, nil
}
