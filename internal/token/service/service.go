// Package service implements the token registry: issuance of token
// definitions and the supply updates that every mint and burn flows through.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"aurum/internal/events"
	"aurum/internal/ledger"
	"aurum/internal/token/metrics"
	"aurum/internal/token/models"
	"aurum/internal/token/store"
	"aurum/pkg/domain"
	dErrors "aurum/pkg/domain-errors"
	"aurum/pkg/platform/sentinel"
	"aurum/pkg/requestcontext"
)

// Store aliases the registry persistence contract.
type Store = store.Store

// ReserveInitializer creates the paired zero-balance reserve when a token is
// issued. Implemented by the reserve service.
type ReserveInitializer interface {
	InitBalance(ctx context.Context, tokenID domain.TokenID, unit string) error
}

// EventEmitter enqueues outbound ledger events.
type EventEmitter interface {
	Emit(ctx context.Context, event events.Event)
}

// Service is the token registry.
type Service struct {
	store    Store
	reserves ReserveInitializer
	guard    *ledger.Guard
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

// New constructs the registry service.
func New(st Store, reserves ReserveInitializer, guard *ledger.Guard, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if reserves == nil {
		return nil, fmt.Errorf("reserve initializer is required")
	}
	if guard == nil {
		return nil, fmt.Errorf("ledger guard is required")
	}

	svc := &Service{store: st, reserves: reserves, guard: guard}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateSpec carries the fields required to issue a token.
type CreateSpec struct {
	Name           string
	Symbol         string
	Decimals       int
	AssetType      string
	BackingAssetID string
	MaxSupply      *domain.Amount
	ReserveRatio   domain.Amount
	ReserveType    string
	CustodyType    string
	ReserveUnit    string
	Metadata       domain.Metadata
	ComplianceInfo models.ComplianceInfo
	AuditInfo      models.AuditInfo
}

func (spec CreateSpec) validate() error {
	switch {
	case spec.Name == "":
		return dErrors.New(dErrors.CodeInvalidInput, "name is required")
	case spec.Symbol == "":
		return dErrors.New(dErrors.CodeInvalidInput, "symbol is required")
	case spec.AssetType == "":
		return dErrors.New(dErrors.CodeInvalidInput, "asset type is required")
	case spec.BackingAssetID == "":
		return dErrors.New(dErrors.CodeInvalidInput, "backing asset id is required")
	case spec.Metadata.IsZero():
		return dErrors.New(dErrors.CodeInvalidInput, "metadata describing the backing asset is required")
	case spec.ComplianceInfo.ReviewedAt.IsZero():
		return dErrors.New(dErrors.CodeInvalidInput, "compliance info with a review date is required")
	case spec.AuditInfo.NextAuditDue.IsZero():
		return dErrors.New(dErrors.CodeInvalidInput, "audit info with a next audit date is required")
	case spec.Decimals < 0 || spec.Decimals > 18:
		return dErrors.New(dErrors.CodeInvalidInput, "decimals must be between 0 and 18")
	case !spec.ReserveRatio.IsPositive():
		return dErrors.New(dErrors.CodeInvalidInput, "reserve ratio must be positive")
	case spec.MaxSupply != nil && !spec.MaxSupply.IsPositive():
		return dErrors.New(dErrors.CodeInvalidInput, "max supply must be positive when set")
	}
	return spec.Metadata.Validate()
}

// CreateToken issues a token definition with zero supplies and atomically
// creates its zero-balance reserve.
func (s *Service) CreateToken(ctx context.Context, spec CreateSpec) (*models.Token, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	if _, err := s.store.FindBySymbol(ctx, spec.Symbol); err == nil {
		return nil, dErrors.Newf(dErrors.CodeConflict, "symbol %s already registered", spec.Symbol)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "symbol lookup failed")
	}

	now := requestcontext.Now(ctx)
	token := &models.Token{
		ID:             domain.NewTokenID(),
		Name:           spec.Name,
		Symbol:         spec.Symbol,
		Decimals:       spec.Decimals,
		AssetType:      spec.AssetType,
		BackingAssetID: spec.BackingAssetID,
		MaxSupply:      spec.MaxSupply,
		ReserveRatio:   spec.ReserveRatio,
		ReserveType:    spec.ReserveType,
		CustodyType:    spec.CustodyType,
		Status:         models.StatusActive,
		ComplianceInfo: spec.ComplianceInfo,
		AuditInfo:      spec.AuditInfo,
		Metadata:       spec.Metadata,
		CreatedAt:      now,
	}

	unit := spec.ReserveUnit
	if unit == "" {
		unit = spec.AssetType
	}

	err := s.guard.Do(ctx, token.ID, func(ctx context.Context) error {
		if err := s.store.Create(ctx, token); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Newf(dErrors.CodeConflict, "token %s already exists", spec.Symbol)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "token creation failed")
		}
		if err := s.reserves.InitBalance(ctx, token.ID, unit); err != nil {
			// Roll the definition back so no token exists without a reserve.
			if delErr := s.store.Delete(ctx, token.ID); delErr != nil && s.logger != nil {
				s.logger.ErrorContext(ctx, "token rollback failed after reserve init error",
					"token_id", token.ID,
					"error", delErr,
				)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "reserve initialization failed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTokenCreated(spec.AssetType)
	if s.emitter != nil {
		s.emitter.Emit(ctx, events.Event{
			Name:    events.TokenCreated,
			TokenID: token.ID.String(),
			Amount:  token.TotalSupply.String(),
			Attrs:   map[string]string{"symbol": token.Symbol, "asset_type": token.AssetType},
		})
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "token created",
			"token_id", token.ID,
			"symbol", token.Symbol,
			"asset_type", token.AssetType,
		)
	}
	return token, nil
}

// UpdateSupply applies a mint or burn to the supply counters. Callers
// orchestrating a multi-step mutation hold the token guard across the whole
// sequence; UpdateSupply itself only enforces the supply invariants.
func (s *Service) UpdateSupply(ctx context.Context, tokenID domain.TokenID, amount domain.Amount, op models.SupplyOp) (*models.Token, error) {
	if !amount.IsPositive() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "supply update amount must be positive")
	}

	token, err := s.Get(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if token.Status != models.StatusActive {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "token %s is %s, not ACTIVE", token.Symbol, token.Status)
	}

	switch op {
	case models.OpMint:
		nextTotal := token.TotalSupply.Add(amount)
		if token.MaxSupply != nil && nextTotal.GreaterThan(*token.MaxSupply) {
			return nil, dErrors.Newf(dErrors.CodeInvariantViolation,
				"mint of %s would raise total supply to %s, above max supply %s",
				amount, nextTotal, token.MaxSupply)
		}
		token.TotalSupply = nextTotal
		token.CirculatingSupply = token.CirculatingSupply.Add(amount)
	case models.OpBurn:
		nextCirculating := token.CirculatingSupply.Sub(amount)
		if nextCirculating.IsNegative() {
			return nil, dErrors.Newf(dErrors.CodeInvariantViolation,
				"burn of %s exceeds circulating supply %s",
				amount, token.CirculatingSupply)
		}
		token.CirculatingSupply = nextCirculating
		token.TotalSupply = token.TotalSupply.Sub(amount)
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown supply operation %q", op)
	}

	if !token.CheckSupplyInvariant() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "supply update would break the supply ordering invariant")
	}

	if err := s.store.Update(ctx, token); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "concurrent supply update lost the version race")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "supply update failed")
	}

	s.metrics.RecordSupplyUpdate(string(op))
	return token, nil
}

// Get returns a token by id.
func (s *Service) Get(ctx context.Context, tokenID domain.TokenID) (*models.Token, error) {
	if tokenID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "token id is required")
	}
	token, err := s.store.Get(ctx, tokenID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "token %s not found", tokenID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "token lookup failed")
	}
	return token, nil
}

// FindBySymbol returns the token registered under symbol.
func (s *Service) FindBySymbol(ctx context.Context, symbol string) (*models.Token, error) {
	if symbol == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "symbol is required")
	}
	token, err := s.store.FindBySymbol(ctx, symbol)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "no token with symbol %s", symbol)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "symbol lookup failed")
	}
	return token, nil
}

// FindByAssetType returns all tokens backed by assetType.
func (s *Service) FindByAssetType(ctx context.Context, assetType string) ([]*models.Token, error) {
	if assetType == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "asset type is required")
	}
	tokens, err := s.store.FindByAssetType(ctx, assetType)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "asset type lookup failed")
	}
	return tokens, nil
}

// FindCompliantTokens returns active tokens whose compliance status is
// COMPLIANT.
func (s *Service) FindCompliantTokens(ctx context.Context) ([]*models.Token, error) {
	tokens, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "token listing failed")
	}
	var out []*models.Token
	for _, token := range tokens {
		if token.Status == models.StatusActive && token.ComplianceInfo.Status.IsCompliant() {
			out = append(out, token)
		}
	}
	return out, nil
}

// SetStatus moves a token through its lifecycle. Illegal transitions are
// rejected; tokens are never deleted.
func (s *Service) SetStatus(ctx context.Context, tokenID domain.TokenID, next models.Status) (*models.Token, error) {
	token, err := s.Get(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if !token.Status.CanTransitionTo(next) {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "cannot move token from %s to %s", token.Status, next)
	}

	token.Status = next
	if err := s.store.Update(ctx, token); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "concurrent token update lost the version race")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "status update failed")
	}
	return token, nil
}

// RecordAuditOutcome writes a reconciliation outcome onto the token. Called
// by the audit engine; retried internally on version races since audit
// outcomes never conflict semantically with supply updates.
func (s *Service) RecordAuditOutcome(ctx context.Context, tokenID domain.TokenID, info models.AuditInfo) error {
	for attempt := 0; attempt < 3; attempt++ {
		token, err := s.Get(ctx, tokenID)
		if err != nil {
			return err
		}
		token.AuditInfo = info
		err = s.store.Update(ctx, token)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "audit outcome update failed")
		}
	}
	return dErrors.New(dErrors.CodeConflict, "audit outcome update kept losing the version race")
}
