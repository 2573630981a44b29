// Package models defines the burning workflow types.
package models

import (
	"time"

	"aurum/internal/compliance"
	"aurum/pkg/domain"
)

// Status is the burning request lifecycle state.
// PENDING -> PROCESSING -> {COMPLETED, FAILED}; PENDING -> {CANCELLED, REJECTED}.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusRejected   Status = "REJECTED"
)

// Terminal reports whether the request is immutable.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// CanTransitionTo encodes the legal lifecycle edges.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusCancelled || next == StatusRejected || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// Request is one admitted burn. WithdrawalID links the burn that releases a
// physical withdrawal; it is nil for pure supply reductions. ClaimedAt is
// stamped when a worker moves the request into PROCESSING.
type Request struct {
	ID           domain.RequestID
	TokenID      domain.TokenID
	UserID       domain.UserID
	Amount       domain.Amount
	WithdrawalID *domain.WithdrawalID
	Status       Status
	Compliance   compliance.Check
	Reason       string
	FailCode     string
	Version      int64
	SubmittedAt  time.Time
	ClaimedAt    *time.Time
	ProcessedAt  *time.Time
}

// Clone returns a copy safe to mutate.
func (r *Request) Clone() *Request {
	out := *r
	if r.ClaimedAt != nil {
		t := *r.ClaimedAt
		out.ClaimedAt = &t
	}
	if r.ProcessedAt != nil {
		t := *r.ProcessedAt
		out.ProcessedAt = &t
	}
	if r.WithdrawalID != nil {
		id := *r.WithdrawalID
		out.WithdrawalID = &id
	}
	return &out
}
