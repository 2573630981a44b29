// Package models defines the reconciliation record types.
package models

import (
	"time"

	"aurum/pkg/domain"
)

// Status is the audit record lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Finding codes.
const (
	FindingReserveDivergence = "reserve_divergence"
	FindingNegativeBalance   = "negative_balance"
	FindingStuckRequest      = "stuck_request"
)

// Finding is one concrete discrepancy discovered during reconciliation.
type Finding struct {
	Code       string        `json:"code"`
	Detail     string        `json:"detail"`
	Expected   domain.Amount `json:"expected,omitzero"`
	Actual     domain.Amount `json:"actual,omitzero"`
	Divergence domain.Amount `json:"divergence,omitzero"`
}

// Record is one point-in-time reconciliation between ledger and reserve
// state. A clean pass completes; findings fail the record and demand manual
// reconciliation, never silent correction.
type Record struct {
	ID              domain.AuditID
	EntityID        string
	EntityType      string
	Status          Status
	Findings        []Finding
	Recommendations []string
	StartedAt       time.Time
	CompletedAt     *time.Time
}

// Clone returns a copy safe to mutate.
func (r *Record) Clone() *Record {
	out := *r
	out.Findings = append([]Finding(nil), r.Findings...)
	out.Recommendations = append([]string(nil), r.Recommendations...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
