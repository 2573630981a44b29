// Package models defines the deposit intake types.
package models

import (
	"time"

	"aurum/internal/compliance"
	"aurum/pkg/domain"
)

// Status is the deposit lifecycle state.
type Status string

const (
	StatusPendingVerification Status = "PENDING_VERIFICATION"
	StatusVerified            Status = "VERIFIED"
	StatusRejected            Status = "REJECTED"
	StatusStored              Status = "STORED"
	StatusReleased            Status = "RELEASED"
)

// CanTransitionTo encodes the legal lifecycle edges. STORED may move back to
// VERIFIED only when the mint that stored the deposit unwinds before
// completing.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPendingVerification:
		return next == StatusVerified || next == StatusRejected
	case StatusVerified:
		return next == StatusStored
	case StatusStored:
		return next == StatusReleased || next == StatusVerified
	}
	return false
}

// Deposit anchors one physical-asset intake event. Minting consumes deposits
// only once they are VERIFIED; a completed mint moves the deposit to STORED.
// ConsumedBy pins a deposit to the single mint request it backs.
type Deposit struct {
	ID             domain.DepositID
	UserID         domain.UserID
	AssetType      string
	Amount         domain.Amount
	Unit           string
	CustodyDetails domain.Metadata
	Status         Status
	Compliance     compliance.Check
	AuditRecordID  domain.AuditID
	RejectReason   string
	ConsumedBy     *domain.RequestID
	Version        int64
	ReceivedAt     time.Time
	VerifiedAt     *time.Time
}

// Clone returns a copy safe to mutate.
func (d *Deposit) Clone() *Deposit {
	out := *d
	if d.ConsumedBy != nil {
		id := *d.ConsumedBy
		out.ConsumedBy = &id
	}
	if d.VerifiedAt != nil {
		t := *d.VerifiedAt
		out.VerifiedAt = &t
	}
	return &out
}
