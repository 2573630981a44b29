// Package models defines the token registry types.
package models

import (
	"time"

	"aurum/internal/compliance"
	"aurum/pkg/domain"
)

// Status is the lifecycle state of a token definition.
type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusInactive   Status = "INACTIVE"
	StatusSuspended  Status = "SUSPENDED"
	StatusDeprecated Status = "DEPRECATED"
	StatusMigrated   Status = "MIGRATED"
)

// CanTransitionTo enforces the legal lifecycle moves. Tokens are never
// deleted; DEPRECATED and MIGRATED are the terminal directions.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusActive:
		return next == StatusInactive || next == StatusSuspended || next == StatusDeprecated
	case StatusInactive, StatusSuspended:
		return next == StatusActive || next == StatusDeprecated
	case StatusDeprecated:
		return next == StatusMigrated
	default:
		return false
	}
}

// SupplyOp selects the direction of a supply update.
type SupplyOp string

const (
	OpMint SupplyOp = "mint"
	OpBurn SupplyOp = "burn"
)

// ComplianceInfo records the regulatory posture of a token definition.
type ComplianceInfo struct {
	Status       compliance.Status `json:"status"`
	KYCRequired  bool              `json:"kycRequired"`
	AMLRequired  bool              `json:"amlRequired"`
	Jurisdiction string            `json:"jurisdiction,omitempty"`
	ReviewedAt   time.Time         `json:"reviewedAt"`
}

// AuditInfo records reconciliation outcomes on the token itself.
type AuditInfo struct {
	LastAuditID     string    `json:"lastAuditId,omitempty"`
	LastAuditAt     time.Time `json:"lastAuditAt,omitzero"`
	LastAuditStatus string    `json:"lastAuditStatus,omitempty"`
	NextAuditDue    time.Time `json:"nextAuditDue"`
}

// Token is a reserve-backed token definition with its supply counters.
// Created once at issuance; supplies mutate only via the registry's supply
// updates; rows are deprecated, never deleted.
type Token struct {
	ID                domain.TokenID
	Name              string
	Symbol            string
	Decimals          int
	AssetType         string
	BackingAssetID    string
	TotalSupply       domain.Amount
	CirculatingSupply domain.Amount
	MaxSupply         *domain.Amount
	ReserveRatio      domain.Amount
	ReserveType       string
	CustodyType       string
	Status            Status
	ComplianceInfo    ComplianceInfo
	AuditInfo         AuditInfo
	Metadata          domain.Metadata
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Clone returns a deep copy so stores never hand out aliased state.
func (t *Token) Clone() *Token {
	out := *t
	if t.MaxSupply != nil {
		max := *t.MaxSupply
		out.MaxSupply = &max
	}
	if t.Metadata.Extensions != nil {
		ext := make(map[string]string, len(t.Metadata.Extensions))
		for k, v := range t.Metadata.Extensions {
			ext[k] = v
		}
		out.Metadata.Extensions = ext
	}
	return &out
}

// CheckSupplyInvariant verifies 0 <= circulating <= total <= max (when set).
func (t *Token) CheckSupplyInvariant() bool {
	if t.CirculatingSupply.IsNegative() || t.TotalSupply.IsNegative() {
		return false
	}
	if t.CirculatingSupply.GreaterThan(t.TotalSupply) {
		return false
	}
	if t.MaxSupply != nil && t.TotalSupply.GreaterThan(*t.MaxSupply) {
		return false
	}
	return true
}
