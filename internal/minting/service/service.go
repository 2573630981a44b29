// Package service implements the minting workflow. Submit admits a request:
// it validates limits, requires a VERIFIED deposit, snapshots the compliance
// decision, and persists the request PENDING. Execution happens separately in
// Process, driven by the worker, so per-token serialization and retry live in
// one place.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"aurum/internal/compliance"
	depositmodels "aurum/internal/deposit/models"
	"aurum/internal/events"
	"aurum/internal/ledger"
	"aurum/internal/minting/metrics"
	"aurum/internal/minting/models"
	"aurum/internal/minting/store"
	"aurum/internal/platform/config"
	reservemodels "aurum/internal/reserve/models"
	reserveservice "aurum/internal/reserve/service"
	tokenmodels "aurum/internal/token/models"
	"aurum/internal/transaction"
	"aurum/pkg/domain"
	dErrors "aurum/pkg/domain-errors"
	"aurum/pkg/platform/sentinel"
	"aurum/pkg/requestcontext"
)

// Store aliases the minting request persistence contract.
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

// Deposits is the slice of deposit intake the workflow needs.
type Deposits interface {
	Get(ctx context.Context, id domain.DepositID) (*depositmodels.Deposit, error)
	Consume(ctx context.Context, id domain.DepositID, requestID domain.RequestID) (*depositmodels.Deposit, error)
	Release(ctx context.Context, id domain.DepositID, requestID domain.RequestID) (*depositmodels.Deposit, error)
	MarkStored(ctx context.Context, id domain.DepositID) (*depositmodels.Deposit, error)
	Restore(ctx context.Context, id domain.DepositID) (*depositmodels.Deposit, error)
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

// Service is the minting workflow.
type Service struct {
	store    Store
	registry Registry
	reserves Reserves
	deposits Deposits
	txs      transaction.Store
	gate     compliance.Gate
	guard    *ledger.Guard
	limits   config.LimitsConfig
	queue    Queue
	emitter  EventEmitter
	metrics  *metrics.Metrics
	logger   *slog.Logger
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

// WithQueue routes admitted requests to the execution worker. Without a queue
// callers drive Process themselves.
func WithQueue(queue Queue) Option {
	return func(s *Service) {
		s.queue = queue
	}
}

// New constructs the minting workflow service.
func New(st Store, registry Registry, reserves Reserves, deposits Deposits, txs transaction.Store, gate compliance.Gate, guard *ledger.Guard, limits config.LimitsConfig, opts ...Option) (*Service, error) {
	switch {
	case st == nil:
		return nil, fmt.Errorf("minting store is required")
	case registry == nil:
		return nil, fmt.Errorf("token registry is required")
	case reserves == nil:
		return nil, fmt.Errorf("reserve service is required")
	case deposits == nil:
		return nil, fmt.Errorf("deposit service is required")
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
		deposits: deposits,
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

// SubmitSpec carries one mint admission.
type SubmitSpec struct {
	TokenID   domain.TokenID
	UserID    domain.UserID
	Amount    domain.Amount
	DepositID domain.DepositID
	Metadata  map[string]string
}

func (s *Service) validateSubmit(spec SubmitSpec) error {
	switch {
	case spec.TokenID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "token id is required")
	case spec.UserID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	case spec.DepositID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "deposit id is required")
	case !spec.Amount.IsPositive():
		return dErrors.New(dErrors.CodeInvalidInput, "mint amount must be positive")
	case spec.Amount.LessThan(s.limits.MinAmount) || spec.Amount.GreaterThan(s.limits.MaxAmount):
		return dErrors.Newf(dErrors.CodeInvalidInput,
			"mint amount %s outside allowed range [%s, %s]",
			spec.Amount, s.limits.MinAmount, s.limits.MaxAmount)
	}
	return nil
}

// Submit admits a mint request. A failed or unreachable compliance gate
// persists the request FAILED with a compliance code so it is never silently
// dropped, and no supply or reserve state is touched.
func (s *Service) Submit(ctx context.Context, spec SubmitSpec) (*models.Request, error) {
	if err := s.validateSubmit(spec); err != nil {
		return nil, err
	}

	if _, err := s.registry.Get(ctx, spec.TokenID); err != nil {
		return nil, err
	}

	deposit, err := s.deposits.Get(ctx, spec.DepositID)
	if err != nil {
		return nil, err
	}
	if deposit.Status != depositmodels.StatusVerified {
		return nil, dErrors.Newf(dErrors.CodeBadRequest,
			"deposit %s is %s, not VERIFIED", spec.DepositID, deposit.Status)
	}
	if deposit.UserID != spec.UserID {
		return nil, dErrors.Newf(dErrors.CodeBadRequest,
			"deposit %s belongs to another user", spec.DepositID)
	}
	if spec.Amount.GreaterThan(deposit.Amount) {
		return nil, dErrors.Newf(dErrors.CodeBadRequest,
			"mint amount %s exceeds deposit amount %s", spec.Amount, deposit.Amount)
	}

	request := &models.Request{
		ID:          domain.NewRequestID(),
		TokenID:     spec.TokenID,
		UserID:      spec.UserID,
		Amount:      spec.Amount,
		DepositID:   spec.DepositID,
		Status:      models.StatusPending,
		Metadata:    spec.Metadata,
		SubmittedAt: requestcontext.Now(ctx),
	}

	check, gateErr := s.gate.Check(ctx, spec.UserID.String(), "minting", []string{"kyc", "aml", "sanctions"})
	request.Compliance = check
	if gateErr != nil || !check.Passed() {
		request.Status = models.StatusFailed
		request.FailCode = string(dErrors.CodeCompliance)
		request.Reason = fmt.Sprintf("compliance gate resolved %s", check.Status)
		if gateErr != nil {
			request.Reason = dErrors.MessageOf(gateErr)
		}
		if err := s.store.Create(ctx, request); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "minting request creation failed")
		}
		s.metrics.RecordOutcome(string(request.Status))
		s.emit(ctx, events.MintingFailed, request, map[string]string{"reason": request.Reason})
		return request, dErrors.Newf(dErrors.CodeCompliance, "mint denied: %s", request.Reason)
	}

	// The hold makes the deposit back exactly one mint; concurrent submits
	// against the same deposit lose here with a conflict.
	if _, err := s.deposits.Consume(ctx, spec.DepositID, request.ID); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, request); err != nil {
		s.releaseDeposit(ctx, request)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "minting request creation failed")
	}
	s.metrics.RecordOutcome(string(models.StatusPending))
	s.emit(ctx, events.MintingRequested, request, nil)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "mint admitted",
			"request_id", request.ID,
			"token_id", request.TokenID,
			"amount", request.Amount,
		)
	}

	if s.queue != nil {
		if !s.queue.Enqueue(ctx, request.ID) && s.logger != nil {
			s.logger.WarnContext(ctx, "mint queue full, request stays pending for the sweep",
				"request_id", request.ID,
			)
		}
	}
	return request, nil
}

// Process executes one admitted request to a terminal state. The whole supply
// and reserve mutation runs under the per-token guard; a reserve failure after
// the supply update compensates by reversing the supply change so no partial
// effect survives. Version races retry with backoff before surfacing.
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
			// Another worker claimed it.
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
			execErr = dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "mint processing interrupted")
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
		s.releaseDeposit(ctx, request)
		s.metrics.RecordOutcome(string(models.StatusFailed))
		s.emit(ctx, events.MintingFailed, request, map[string]string{"reason": request.Reason})
		return request, execErr
	}

	if err := s.transition(ctx, request, models.StatusCompleted, "", ""); err != nil {
		return nil, err
	}
	s.metrics.RecordOutcome(string(models.StatusCompleted))
	s.emit(ctx, events.MintingCompleted, request, nil)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "mint completed",
			"request_id", request.ID,
			"token_id", request.TokenID,
			"amount", request.Amount,
		)
	}
	return request, nil
}

// execute runs the supply, reserve, custody, and transaction steps under the
// guard. Every step after the supply update registers in the compensation
// closure, so a failure anywhere reverses everything already applied and no
// partial effect survives.
func (s *Service) execute(ctx context.Context, request *models.Request) error {
	if _, err := s.registry.UpdateSupply(ctx, request.TokenID, request.Amount, tokenmodels.OpMint); err != nil {
		return err
	}

	reserveAdded := false
	depositStored := false
	compensate := func(cause error) error {
		if depositStored {
			if _, restoreErr := s.deposits.Restore(ctx, request.DepositID); restoreErr != nil && s.logger != nil {
				s.logger.ErrorContext(ctx, "mint compensation could not restore deposit",
					"request_id", request.ID,
					"deposit_id", request.DepositID,
					"error", restoreErr,
				)
			}
		}
		if reserveAdded {
			if _, removeErr := s.reserves.Apply(ctx, reserveservice.ApplySpec{
				TokenID:          request.TokenID,
				Action:           reservemodels.ActionRemove,
				Amount:           request.Amount,
				Reason:           "mint compensation reserve reversal",
				PerformedBy:      "minting-workflow",
				CausingRequestID: request.ID.String(),
			}); removeErr != nil {
				if s.logger != nil {
					s.logger.ErrorContext(ctx, "mint compensation failed, supply and reserve diverged",
						"request_id", request.ID,
						"token_id", request.TokenID,
						"error", removeErr,
					)
				}
				return dErrors.Wrap(removeErr, dErrors.CodeInvariantViolation,
					"mint compensation failed after execution error")
			}
		}
		if _, compErr := s.registry.UpdateSupply(ctx, request.TokenID, request.Amount, tokenmodels.OpBurn); compErr != nil {
			if s.logger != nil {
				s.logger.ErrorContext(ctx, "mint compensation failed, supply and reserve diverged",
					"request_id", request.ID,
					"token_id", request.TokenID,
					"error", compErr,
				)
			}
			return dErrors.Wrap(compErr, dErrors.CodeInvariantViolation,
				"mint compensation failed after execution error")
		}
		return cause
	}

	if _, err := s.reserves.Apply(ctx, reserveservice.ApplySpec{
		TokenID:          request.TokenID,
		Action:           reservemodels.ActionAdd,
		Amount:           request.Amount,
		Reason:           "mint backing",
		PerformedBy:      "minting-workflow",
		CausingRequestID: request.ID.String(),
	}); err != nil {
		return compensate(err)
	}
	reserveAdded = true

	// Custody storage is part of the mint: a deposit that cannot move to
	// STORED fails the request instead of leaving supply backed by a deposit
	// still in the verified pool.
	if _, err := s.deposits.MarkStored(ctx, request.DepositID); err != nil {
		return compensate(err)
	}
	depositStored = true

	if err := s.txs.Append(ctx, &transaction.Transaction{
		ID:        domain.NewTransactionID(),
		TokenID:   request.TokenID,
		Type:      transaction.TypeMint,
		From:      "reserve",
		To:        request.UserID.String(),
		Amount:    request.Amount,
		Status:    transaction.StatusCompleted,
		RequestID: request.ID,
		CreatedAt: requestcontext.Now(ctx),
	}); err != nil {
		return compensate(dErrors.Wrap(err, dErrors.CodeInternal, "transaction record failed"))
	}
	return nil
}

// releaseDeposit returns the request's deposit hold to the verified pool
// after a terminal non-completion. Failures only log; the deposit stays
// recoverable through the audit sweep.
func (s *Service) releaseDeposit(ctx context.Context, request *models.Request) {
	if _, err := s.deposits.Release(ctx, request.DepositID, request.ID); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "deposit hold could not be released",
			"request_id", request.ID,
			"deposit_id", request.DepositID,
			"error", err,
		)
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
	s.releaseDeposit(ctx, request)
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

// Get returns a minting request by id.
func (s *Service) Get(ctx context.Context, id domain.RequestID) (*models.Request, error) {
	if id.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "request id is required")
	}
	request, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "minting request not found")
	}
	return request, nil
}

// FindByStatus exposes status sweeps, used by the audit engine and the worker
// recovery path.
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
