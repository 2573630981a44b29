// Package models defines the withdrawal fulfillment types.
package models

import (
	"time"

	"aurum/internal/compliance"
	"aurum/pkg/domain"
	dErrors "aurum/pkg/domain-errors"
)

// Status is the withdrawal lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusApproved   Status = "APPROVED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// Terminal reports whether the withdrawal can no longer change state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransitionTo encodes the legal lifecycle edges. Cancellation is permitted
// until physical dispatch begins.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusCancelled || next == StatusFailed
	case StatusApproved:
		return next == StatusProcessing || next == StatusCancelled
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// DeliveryAddress is the physical destination for the custodial asset.
type DeliveryAddress struct {
	Name       string `json:"name"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Validate checks the fields a courier cannot do without.
func (a DeliveryAddress) Validate() error {
	switch {
	case a.Name == "":
		return dErrors.New(dErrors.CodeInvalidInput, "delivery name is required")
	case a.Street == "":
		return dErrors.New(dErrors.CodeInvalidInput, "delivery street is required")
	case a.City == "":
		return dErrors.New(dErrors.CodeInvalidInput, "delivery city is required")
	case a.Country == "":
		return dErrors.New(dErrors.CodeInvalidInput, "delivery country is required")
	}
	return nil
}

// Fees is the computed charge breakdown, fixed at request time.
type Fees struct {
	Processing domain.Amount `json:"processing"`
	Shipping   domain.Amount `json:"shipping"`
	Insurance  domain.Amount `json:"insurance"`
	Total      domain.Amount `json:"total"`
}

// Withdrawal anchors one physical-asset outflow. AssetAmount stays locked in
// the reserve from request until the paired burn removes it or the request is
// cancelled.
type Withdrawal struct {
	ID                domain.WithdrawalID
	UserID            domain.UserID
	TokenID           domain.TokenID
	Amount            domain.Amount
	AssetAmount       domain.Amount
	DeliveryAddress   DeliveryAddress
	Fees              Fees
	Status            Status
	Compliance        compliance.Check
	FailReason        string
	Version           int64
	RequestedAt       time.Time
	EstimatedDelivery time.Time
	ShippedAt         *time.Time
	DeliveredAt       *time.Time
}

// Clone returns a copy safe to mutate.
func (w *Withdrawal) Clone() *Withdrawal {
	out := *w
	if w.ShippedAt != nil {
		t := *w.ShippedAt
		out.ShippedAt = &t
	}
	if w.DeliveredAt != nil {
		t := *w.DeliveredAt
		out.DeliveredAt = &t
	}
	return &out
}
