// Package models defines the reserve ledger types.
package models

import (
	"time"

	"aurum/pkg/domain"
)

// Action is one of the four defined reserve mutations.
type Action string

const (
	ActionAdd    Action = "ADD"
	ActionRemove Action = "REMOVE"
	ActionLock   Action = "LOCK"
	ActionUnlock Action = "UNLOCK"
)

// Valid reports whether the action is one of the defined four.
func (a Action) Valid() bool {
	switch a {
	case ActionAdd, ActionRemove, ActionLock, ActionUnlock:
		return true
	}
	return false
}

// AuditEntry records one applied reserve action. The trail is append-only;
// exactly one entry is written per applied action.
type AuditEntry struct {
	Timestamp        time.Time     `json:"timestamp"`
	Action           Action        `json:"action"`
	Amount           domain.Amount `json:"amount"`
	Reason           string        `json:"reason,omitempty"`
	PerformedBy      string        `json:"performedBy"`
	CausingRequestID string        `json:"causingRequestId,omitempty"`
}

// Balance is the custodial reserve backing one token.
// Invariant: Total = Available + Locked at every quiescent point.
type Balance struct {
	TokenID     domain.TokenID
	Total       domain.Amount
	Available   domain.Amount
	Locked      domain.Amount
	Unit        string
	AuditTrail  []AuditEntry
	Version     int64
	CreatedAt   time.Time
	LastUpdated time.Time
}

// CheckInvariant verifies conservation and non-negativity.
func (b *Balance) CheckInvariant() bool {
	if b.Available.IsNegative() || b.Locked.IsNegative() || b.Total.IsNegative() {
		return false
	}
	return b.Total.Equal(b.Available.Add(b.Locked))
}

// Clone returns a deep copy so stores never hand out aliased state.
func (b *Balance) Clone() *Balance {
	out := *b
	out.AuditTrail = make([]AuditEntry, len(b.AuditTrail))
	copy(out.AuditTrail, b.AuditTrail)
	return &out
}
