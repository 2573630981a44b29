// Package events defines the ledger's outbound event stream. Every supply or
// reserve mutation and every workflow transition emits one event; downstream
// systems consume them for bookkeeping and alerting. Amounts are decimal
// strings, never floats.
package events

import (
	"context"
	"time"
)

// Event names consumed by downstream systems.
const (
	TokenCreated        = "token.created"
	MintingRequested    = "minting.requested"
	MintingCompleted    = "minting.completed"
	MintingFailed       = "minting.failed"
	BurningRequested    = "burning.requested"
	BurningCompleted    = "burning.completed"
	BurningFailed       = "burning.failed"
	DepositReceived     = "deposit.received"
	DepositVerified     = "deposit.verified"
	WithdrawalRequested = "withdrawal.requested"
	WithdrawalCompleted = "withdrawal.completed"
	ReservesUpdated     = "reserves.updated"
	ComplianceChecked   = "compliance.checked"
	AuditCompleted      = "audit.completed"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so publishers can fan out.
type Event struct {
	Name       string            `json:"name"`
	OccurredAt time.Time         `json:"occurredAt"`
	TokenID    string            `json:"tokenId,omitempty"`
	EntityID   string            `json:"entityId,omitempty"`
	UserID     string            `json:"userId,omitempty"`
	Amount     string            `json:"amount,omitempty"`
	Attrs      map[string]string `json:"attrs,omitempty"`
}

// Publisher delivers events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
