// Package service implements deposit intake. Deposits are recorded with a
// compliance snapshot and a pending audit stub, then verified or rejected by
// an external custody collaborator before minting may consume them.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"aurum/internal/compliance"
	"aurum/internal/deposit/models"
	"aurum/internal/deposit/store"
	"aurum/internal/events"
	"aurum/pkg/domain"
	dErrors "aurum/pkg/domain-errors"
	"aurum/pkg/platform/sentinel"
	"aurum/pkg/requestcontext"
)

// Store aliases the deposit persistence contract.
type Store = store.Store

// AuditStubber opens a pending audit record tied to a new deposit. Implemented
// by the audit engine.
type AuditStubber interface {
	OpenStub(ctx context.Context, entityID, entityType string) (domain.AuditID, error)
}

// EventEmitter enqueues outbound ledger events.
type EventEmitter interface {
	Emit(ctx context.Context, event events.Event)
}

// Service is the deposit intake service.
type Service struct {
	store   Store
	gate    compliance.Gate
	audits  AuditStubber
	emitter EventEmitter
	logger  *slog.Logger
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

func WithAuditStubber(audits AuditStubber) Option {
	return func(s *Service) {
		s.audits = audits
	}
}

// New constructs the deposit service.
func New(st Store, gate compliance.Gate, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("deposit store is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("compliance gate is required")
	}
	svc := &Service{store: st, gate: gate}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RecordSpec carries one physical intake event.
type RecordSpec struct {
	UserID         domain.UserID
	AssetType      string
	Amount         domain.Amount
	Unit           string
	CustodyDetails domain.Metadata
}

func (spec RecordSpec) validate() error {
	switch {
	case spec.UserID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	case spec.AssetType == "":
		return dErrors.New(dErrors.CodeInvalidInput, "asset type is required")
	case !spec.Amount.IsPositive():
		return dErrors.New(dErrors.CodeInvalidInput, "deposit amount must be positive")
	case spec.CustodyDetails.IsZero():
		return dErrors.New(dErrors.CodeInvalidInput, "custody details are required")
	}
	return spec.CustodyDetails.Validate()
}

// Record runs the compliance gate, opens a pending audit stub, and persists
// the deposit as PENDING_VERIFICATION. A failed gate persists nothing.
func (s *Service) Record(ctx context.Context, spec RecordSpec) (*models.Deposit, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	check, err := s.gate.Check(ctx, spec.UserID.String(), "deposit", []string{"kyc", "aml"})
	if err != nil {
		return nil, err
	}
	if !check.Passed() {
		return nil, dErrors.Newf(dErrors.CodeCompliance,
			"deposit intake denied for user %s: compliance status %s", spec.UserID, check.Status)
	}

	deposit := &models.Deposit{
		ID:             domain.NewDepositID(),
		UserID:         spec.UserID,
		AssetType:      spec.AssetType,
		Amount:         spec.Amount,
		Unit:           spec.Unit,
		CustodyDetails: spec.CustodyDetails,
		Status:         models.StatusPendingVerification,
		Compliance:     check,
		ReceivedAt:     requestcontext.Now(ctx),
	}

	if s.audits != nil {
		auditID, err := s.audits.OpenStub(ctx, deposit.ID.String(), "deposit")
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "audit stub creation failed")
		}
		deposit.AuditRecordID = auditID
	}

	if err := s.store.Create(ctx, deposit); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "deposit creation failed")
	}

	if s.emitter != nil {
		s.emitter.Emit(ctx, events.Event{
			Name:     events.DepositReceived,
			EntityID: deposit.ID.String(),
			UserID:   deposit.UserID.String(),
			Amount:   deposit.Amount.String(),
			Attrs:    map[string]string{"asset_type": deposit.AssetType, "unit": deposit.Unit},
		})
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "deposit recorded",
			"deposit_id", deposit.ID,
			"user_id", deposit.UserID,
			"asset_type", deposit.AssetType,
		)
	}
	return deposit, nil
}

// MarkVerified transitions PENDING_VERIFICATION to VERIFIED. Invoked by the
// external custody verification collaborator.
func (s *Service) MarkVerified(ctx context.Context, id domain.DepositID) (*models.Deposit, error) {
	deposit, err := s.transition(ctx, id, models.StatusVerified, "")
	if err != nil {
		return nil, err
	}
	if s.emitter != nil {
		s.emitter.Emit(ctx, events.Event{
			Name:     events.DepositVerified,
			EntityID: deposit.ID.String(),
			UserID:   deposit.UserID.String(),
			Amount:   deposit.Amount.String(),
		})
	}
	return deposit, nil
}

// MarkRejected transitions PENDING_VERIFICATION to REJECTED with a reason.
func (s *Service) MarkRejected(ctx context.Context, id domain.DepositID, reason string) (*models.Deposit, error) {
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "a rejection reason is required")
	}
	return s.transition(ctx, id, models.StatusRejected, reason)
}

// Consume pins a VERIFIED deposit to one mint request. A deposit backs at
// most one mint at a time; a second consumer loses with a conflict. Consume
// is idempotent for the holding request.
func (s *Service) Consume(ctx context.Context, id domain.DepositID, requestID domain.RequestID) (*models.Deposit, error) {
	deposit, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if deposit.Status != models.StatusVerified {
		return nil, dErrors.Newf(dErrors.CodeBadRequest,
			"deposit %s is %s, not VERIFIED", id, deposit.Status)
	}
	if deposit.ConsumedBy != nil {
		if *deposit.ConsumedBy == requestID {
			return deposit, nil
		}
		return nil, dErrors.Newf(dErrors.CodeConflict,
			"deposit %s already backs mint request %s", id, *deposit.ConsumedBy)
	}

	deposit.ConsumedBy = &requestID
	if err := s.update(ctx, deposit); err != nil {
		return nil, err
	}
	return deposit, nil
}

// Release returns a consumed deposit to the verified pool when the mint
// holding it ends without storing the asset. Releasing an unconsumed deposit
// is a no-op; a request may not release another request's hold.
func (s *Service) Release(ctx context.Context, id domain.DepositID, requestID domain.RequestID) (*models.Deposit, error) {
	deposit, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if deposit.ConsumedBy == nil {
		return deposit, nil
	}
	if *deposit.ConsumedBy != requestID {
		return nil, dErrors.Newf(dErrors.CodeConflict,
			"deposit %s is held by mint request %s", id, *deposit.ConsumedBy)
	}

	deposit.ConsumedBy = nil
	if err := s.update(ctx, deposit); err != nil {
		return nil, err
	}
	return deposit, nil
}

// MarkStored transitions VERIFIED to STORED. Called by the minting workflow
// once the deposit has backed a completed mint.
func (s *Service) MarkStored(ctx context.Context, id domain.DepositID) (*models.Deposit, error) {
	return s.transition(ctx, id, models.StatusStored, "")
}

// Restore moves a STORED deposit back to VERIFIED when the mint that stored
// it unwinds before completing.
func (s *Service) Restore(ctx context.Context, id domain.DepositID) (*models.Deposit, error) {
	return s.transition(ctx, id, models.StatusVerified, "")
}

// MarkReleased transitions STORED to RELEASED when custody hands the asset
// back out through a withdrawal.
func (s *Service) MarkReleased(ctx context.Context, id domain.DepositID) (*models.Deposit, error) {
	return s.transition(ctx, id, models.StatusReleased, "")
}

func (s *Service) transition(ctx context.Context, id domain.DepositID, next models.Status, reason string) (*models.Deposit, error) {
	deposit, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !deposit.Status.CanTransitionTo(next) {
		return nil, dErrors.Newf(dErrors.CodeBadRequest,
			"cannot move deposit %s from %s to %s", id, deposit.Status, next)
	}

	deposit.Status = next
	deposit.RejectReason = reason
	if next == models.StatusVerified {
		now := requestcontext.Now(ctx)
		deposit.VerifiedAt = &now
	}

	if err := s.update(ctx, deposit); err != nil {
		return nil, err
	}
	return deposit, nil
}

func (s *Service) update(ctx context.Context, deposit *models.Deposit) error {
	if err := s.store.Update(ctx, deposit); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "concurrent deposit update lost the version race")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "deposit update failed")
	}
	return nil
}

// Get returns a deposit by id.
func (s *Service) Get(ctx context.Context, id domain.DepositID) (*models.Deposit, error) {
	if id.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "deposit id is required")
	}
	deposit, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "deposit %s not found", id)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "deposit lookup failed")
	}
	return deposit, nil
}

// FindByUser returns a user's deposits.
func (s *Service) FindByUser(ctx context.Context, userID domain.UserID) ([]*models.Deposit, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	deposits, err := s.store.FindByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "deposit lookup failed")
	}
	return deposits, nil
}
