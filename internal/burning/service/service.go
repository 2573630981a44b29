// Package service implements the burning workflow, the supply-reducing mirror
// of minting. Submit verifies the user's token balance through the external
// account collaborator and snapshots the compliance decision; Process runs
// the supply and reserve reductions under the per-token guard with
// compensation on partial failure.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"aurum/internal/account"
	"aurum/internal/burning/metrics"
	"aurum/internal/burning/models"
	"aurum/internal/burning/store"
	"aurum/internal/compliance"
	"aurum/internal/events"
	"aurum/internal/ledger"
	"aurum/internal/platform/config"
	reservemodels "aurum/internal/reserve/models"
	reserveservice "aurum/internal/reserve/service"
	tokenmodels "aurum/internal/token/models"
	"aurum/internal/transaction"
	withdrawalmodels "aurum/internal/withdrawal/models"
	"aurum/pkg/domain"
	dErrors "aurum/pkg/domain-errors"
	"aurum/pkg/platform/sentinel"
	"aurum/pkg/requestcontext"
)

// Store aliases the burning request persistence contract.
type Store = store.Store

// Registry is the slice of the token registry the workflow needs.
type Registry interface {
	Get(ctx context.Context, tokenID domain.TokenID) (*tokenmodels.Token, error)
	UpdateSupply(ctx context.Context, tokenID domain.TokenID, amount domain.Amount, op tokenmodels.SupplyOp) (*tokenmodels.Token, error)
}

// Reserves is the slice of the reserve ledger the workflow needs.
type Reserves interface {
	Apply(ctx context.Context, spec reserveservice.ApplySpec) (*reservemodels.Balance, error)
}

// Withdrawals lets a withdrawal-linked burn read the fulfillment record it
// releases.
type Withdrawals interface {
	Get(ctx context.Context, id domain.WithdrawalID) (*withdrawalmodels.Withdrawal, error)
}

// Queue hands admitted requests to the execution worker.
type Queue interface {
	Enqueue(ctx context.Context, id domain.RequestID) bool
}

// EventEmitter enqueues outbound ledger events.
type EventEmitter interface {
	Emit(ctx context.Context, event events.Event)
}

const (
	conflictRetries = 3
	retryBackoff    = 50 * time.Millisecond
)

// Service is the burning workflow.
type Service struct {
	store       Store
	registry    Registry
	reserves    Reserves
	withdrawals Withdrawals
	accounts    account.Verifier
	txs         transaction.Store
	gate        compliance.Gate
	guard       *ledger.Guard
	limits      config.LimitsConfig
	queue       Queue
	emitter     EventEmitter
	metrics     *metrics.Metrics
	logger      *slog.Logger
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

// WithQueue routes admitted requests to the execution worker.
func WithQueue(queue Queue) Option {
	return func(s *Service) {
		s.queue = queue
	}
}

// WithWithdrawals links the fulfillment records consumed by withdrawal-backed
// burns.
func WithWithdrawals(w Withdrawals) Option {
	return func(s *Service) {
		s.withdrawals = w
	}
}

// New constructs the burning workflow service.
func New(st Store, registry Registry, reserves Reserves, accounts account.Verifier, txs transaction.Store, gate compliance.Gate, guard *ledger.Guard, limits config.LimitsConfig, opts ...Option) (*Service, error) {
	switch {
	case st == nil:
		return nil, fmt.Errorf("burning store is required")
	case registry == nil:
		return nil, fmt.Errorf("token registry is required")
	case reserves == nil:
		return nil, fmt.Errorf("reserve service is required")
	case accounts == nil:
		return nil, fmt.Errorf("account verifier is required")
	case txs == nil:
		return nil, fmt.Errorf("transaction store is required")
	case gate == nil:
		return nil, fmt.Errorf("compliance gate is required")
	case guard == nil:
		return nil, fmt.Errorf("ledger guard is required")
	}

	svc := &Service{
		store:    st,
		registry: registry,
		reserves: reserves,
		accounts: accounts,
		txs:      txs,
		gate:     gate,
		guard:    guard,
		limits:   limits,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// SubmitSpec carries one burn admission.
type SubmitSpec struct {
	TokenID      domain.TokenID
	UserID       domain.UserID
	Amount       domain.Amount
	WithdrawalID *domain.WithdrawalID
}

func (s *Service) validateSubmit(spec SubmitSpec) error {
	switch {
	case spec.TokenID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "token id is required")
	case spec.UserID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	case !spec.Amount.IsPositive():
		return dErrors.New(dErrors.CodeInvalidInput, "burn amount must be positive")
	case spec.Amount.LessThan(s.limits.MinAmount) || spec.Amount.GreaterThan(s.limits.MaxAmount):
		return dErrors.Newf(dErrors.CodeInvalidInput,
			"burn amount %s outside allowed range [%s, %s]",
			spec.Amount, s.limits.MinAmount, s.limits.MaxAmount)
	}
	return nil
}

// Submit admits a burn request. The user's balance must cover the amount and
// any linked withdrawal must be in dispatch. A failed or unreachable
// compliance gate persists the request FAILED with a compliance code.
func (s *Service) Submit(ctx context.Context, spec SubmitSpec) (*models.Request, error) {
	if err := s.validateSubmit(spec); err != nil {
		return nil, err
	}

	if _, err := s.registry.Get(ctx, spec.TokenID); err != nil {
		return nil, err
	}

	if err := s.accounts.VerifyBalance(ctx, spec.UserID, spec.TokenID, spec.Amount); err != nil {
		return nil, err
	}

	if spec.WithdrawalID != nil {
		if s.withdrawals == nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "withdrawal-linked burns are not enabled")
		}
		withdrawal, err := s.withdrawals.Get(ctx, *spec.WithdrawalID)
		if err != nil {
			return nil, err
		}
		if withdrawal.Status != withdrawalmodels.StatusProcessing {
			return nil, dErrors.Newf(dErrors.CodeBadRequest,
				"withdrawal %s is %s, not PROCESSING", *spec.WithdrawalID, withdrawal.Status)
		}
		if withdrawal.TokenID != spec.TokenID || withdrawal.UserID != spec.UserID {
			return nil, dErrors.Newf(dErrors.CodeBadRequest,
				"withdrawal %s does not match the burn's token and user", *spec.WithdrawalID)
		}
	}

	request := &models.Request{
		ID:           domain.NewRequestID(),
		TokenID:      spec.TokenID,
		UserID:       spec.UserID,
		Amount:       spec.Amount,
		WithdrawalID: spec.WithdrawalID,
		Status:       models.StatusPending,
		SubmittedAt:  requestcontext.Now(ctx),
	}

	check, gateErr := s.gate.Check(ctx, spec.UserID.String(), "burning", []string{"kyc", "aml", "sanctions"})
	request.Compliance = check
	if gateErr != nil || !check.Passed() {
		request.Status = models.StatusFailed
		request.FailCode = string(dErrors.CodeCompliance)
		request.Reason = fmt.Sprintf("compliance gate resolved %s", check.Status)
		if gateErr != nil {
			request.Reason = dErrors.MessageOf(gateErr)
		}
		if err := s.store.Create(ctx, request); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "burning request creation failed")
		}
		s.metrics.RecordOutcome(string(request.Status))
		s.emit(ctx, events.BurningFailed, request, map[string]string{"reason": request.Reason})
		return request, dErrors.Newf(dErrors.CodeCompliance, "burn denied: %s", request.Reason)
	}

	if err := s.store.Create(ctx, request); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "burning request creation failed")
	}
	s.metrics.RecordOutcome(string(models.StatusPending))
	s.emit(ctx, events.BurningRequested, request, nil)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "burn admitted",
			"request_id", request.ID,
			"token_id", request.TokenID,
			"amount", request.Amount,
		)
	}

	if s.queue != nil {
		if !s.queue.Enqueue(ctx, request.ID) && s.logger != nil {
			s.logger.WarnContext(ctx, "burn queue full, request stays pending for the sweep",
				"request_id", request.ID,
			)
		}
	}
	return request, nil
}

// Process executes one admitted burn to a terminal state under the per-token
// guard, with compensation when the reserve reduction fails after the supply
// reduction.
func (s *Service) Process(ctx context.Context, id domain.RequestID) (*models.Request, error) {
	request, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != models.StatusPending {
		if request.Status.Terminal() {
			return request, nil
		}
		return nil, dErrors.Newf(dErrors.CodeBadRequest,
			"request %s is %s, not PENDING", id, request.Status)
	}

	claimed := requestcontext.Now(ctx)
	request.ClaimedAt = &claimed
	if err := s.transition(ctx, request, models.StatusProcessing, "", ""); err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			return s.Get(ctx, id)
		}
		return nil, err
	}

	var execErr error
	for attempt := 0; ; attempt++ {
		execErr = s.guard.Do(ctx, request.TokenID, func(ctx context.Context) error {
			return s.execute(ctx, request)
		})
		if execErr == nil || !dErrors.HasCode(execErr, dErrors.CodeConflict) || attempt >= conflictRetries {
			break
		}
		select {
		case <-ctx.Done():
			execErr = dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "burn processing interrupted")
		case <-time.After(retryBackoff << attempt):
			continue
		}
		break
	}

	now := requestcontext.Now(ctx)
	request.ProcessedAt = &now
	if execErr != nil {
		code := string(dErrors.CodeOf(execErr))
		if err := s.transition(ctx, request, models.StatusFailed, dErrors.MessageOf(execErr), code); err != nil {
			return nil, err
		}
		s.metrics.RecordOutcome(string(models.StatusFailed))
		s.emit(ctx, events.BurningFailed, request, map[string]string{"reason": request.Reason})
		return request, execErr
	}

	if err := s.transition(ctx, request, models.StatusCompleted, "", ""); err != nil {
		return nil, err
	}
	s.metrics.RecordOutcome(string(models.StatusCompleted))
	s.emit(ctx, events.BurningCompleted, request, nil)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "burn completed",
			"request_id", request.ID,
			"token_id", request.TokenID,
			"amount", request.Amount,
		)
	}
	return request, nil
}

// execute runs the supply and reserve reductions under the guard. A
// withdrawal-linked burn first releases the lock placed at request time, then
// removes the reserve; a pure burn removes directly from available.
func (s *Service) execute(ctx context.Context, request *models.Request) error {
	if _, err := s.registry.UpdateSupply(ctx, request.TokenID, request.Amount, tokenmodels.OpBurn); err != nil {
		return err
	}

	unlocked := false
	removed := false
	compensate := func(cause error) error {
		if removed {
			if _, addErr := s.reserves.Apply(ctx, s.reserveSpec(request, reservemodels.ActionAdd, "burn compensation reserve restore")); addErr != nil && s.logger != nil {
				s.logger.ErrorContext(ctx, "burn compensation reserve restore failed",
					"request_id", request.ID,
					"error", addErr,
				)
			}
		}
		if unlocked {
			// Re-lock so the withdrawal's capacity reservation survives.
			if _, relockErr := s.reserves.Apply(ctx, s.reserveSpec(request, reservemodels.ActionLock, "burn compensation re-lock")); relockErr != nil && s.logger != nil {
				s.logger.ErrorContext(ctx, "burn compensation re-lock failed",
					"request_id", request.ID,
					"error", relockErr,
				)
			}
		}
		if _, compErr := s.registry.UpdateSupply(ctx, request.TokenID, request.Amount, tokenmodels.OpMint); compErr != nil {
			if s.logger != nil {
				s.logger.ErrorContext(ctx, "burn compensation failed, supply and reserve diverged",
					"request_id", request.ID,
					"token_id", request.TokenID,
					"error", compErr,
				)
			}
			return dErrors.Wrap(compErr, dErrors.CodeInvariantViolation,
				"burn compensation failed after reserve error")
		}
		return cause
	}

	if request.WithdrawalID != nil {
		if _, err := s.reserves.Apply(ctx, s.reserveSpec(request, reservemodels.ActionUnlock, "withdrawal dispatch release")); err != nil {
			return compensate(err)
		}
		unlocked = true
	}

	if _, err := s.reserves.Apply(ctx, s.reserveSpec(request, reservemodels.ActionRemove, "burn reserve release")); err != nil {
		return compensate(err)
	}
	removed = true

	if err := s.txs.Append(ctx, &transaction.Transaction{
		ID:        domain.NewTransactionID(),
		TokenID:   request.TokenID,
		Type:      transaction.TypeBurn,
		From:      request.UserID.String(),
		To:        "reserve",
		Amount:    request.Amount,
		Status:    transaction.StatusCompleted,
		RequestID: request.ID,
		CreatedAt: requestcontext.Now(ctx),
	}); err != nil {
		return compensate(dErrors.Wrap(err, dErrors.CodeInternal, "transaction record failed"))
	}

	if err := s.accounts.Debit(ctx, request.UserID, request.TokenID, request.Amount); err != nil && s.logger != nil {
		// The burn itself is complete; the balance collaborator reconciles
		// out of band.
		s.logger.WarnContext(ctx, "account debit failed after burn",
			"request_id", request.ID,
			"error", err,
		)
	}
	return nil
}

func (s *Service) reserveSpec(request *models.Request, action reservemodels.Action, reason string) reserveservice.ApplySpec {
	return reserveservice.ApplySpec{
		TokenID:          request.TokenID,
		Action:           action,
		Amount:           request.Amount,
		Reason:           reason,
		PerformedBy:      "burning-workflow",
		CausingRequestID: request.ID.String(),
	}
}

// Cancel aborts a request that has not begun processing.
func (s *Service) Cancel(ctx context.Context, id domain.RequestID, reason string) (*models.Request, error) {
	return s.terminate(ctx, id, models.StatusCancelled, reason)
}

// Reject refuses a request that has not begun processing.
func (s *Service) Reject(ctx context.Context, id domain.RequestID, reason string) (*models.Request, error) {
	return s.terminate(ctx, id, models.StatusRejected, reason)
}

func (s *Service) terminate(ctx context.Context, id domain.RequestID, terminal models.Status, reason string) (*models.Request, error) {
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "a reason is required")
	}
	request, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != models.StatusPending {
		return nil, dErrors.Newf(dErrors.CodeBadRequest,
			"request %s is %s; only PENDING requests can be %s", id, request.Status, terminal)
	}
	if err := s.transition(ctx, request, terminal, reason, ""); err != nil {
		return nil, err
	}
	s.metrics.RecordOutcome(string(terminal))
	return request, nil
}

func (s *Service) transition(ctx context.Context, request *models.Request, next models.Status, reason, failCode string) error {
	if !request.Status.CanTransitionTo(next) {
		return dErrors.Newf(dErrors.CodeBadRequest,
			"cannot move request %s from %s to %s", request.ID, request.Status, next)
	}
	request.Status = next
	if reason != "" {
		request.Reason = reason
	}
	if failCode != "" {
		request.FailCode = failCode
	}
	if err := s.store.Update(ctx, request); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "concurrent request update lost the version race")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "request update failed")
	}
	return nil
}

// Get returns a burning request by id.
func (s *Service) Get(ctx context.Context, id domain.RequestID) (*models.Request, error) {
	if id.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "request id is required")
	}
	request, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "burning request not found")
	}
	return request, nil
}

// FindByStatus exposes status sweeps for the audit engine and worker recovery.
func (s *Service) FindByStatus(ctx context.Context, status models.Status) ([]*models.Request, error) {
	requests, err := s.store.FindByStatus(ctx, status)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "request sweep failed")
	}
	return requests, nil
}

func (s *Service) emit(ctx context.Context, name string, request *models.Request, attrs map[string]string) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(ctx, events.Event{
		Name:     name,
		TokenID:  request.TokenID.String(),
		EntityID: request.ID.String(),
		UserID:   request.UserID.String(),
		Amount:   request.Amount.String(),
		Attrs:    attrs,
	})
}
