package compliance

import (
	"context"

	"aurum/internal/events"
)

// EventEmitter enqueues outbound ledger events.
type EventEmitter interface {
	Emit(ctx context.Context, event events.Event)
}

// ObservedGate emits one compliance.checked event per gate decision,
// including fail-closed denials. Workflow services stay unaware of the
// event stream.
type ObservedGate struct {
	gate    Gate
	emitter EventEmitter
}

// NewObservedGate wraps gate. A nil emitter returns the gate unchanged.
func NewObservedGate(gate Gate, emitter EventEmitter) Gate {
	if emitter == nil {
		return gate
	}
	return &ObservedGate{gate: gate, emitter: emitter}
}

func (g *ObservedGate) Check(ctx context.Context, entityID, entityType string, requiredChecks []string) (Check, error) {
	check, err := g.gate.Check(ctx, entityID, entityType, requiredChecks)
	g.emitter.Emit(ctx, events.Event{
		Name:       events.ComplianceChecked,
		OccurredAt: check.CheckedAt,
		EntityID:   entityID,
		Attrs: map[string]string{
			"entity_type": entityType,
			"status":      string(check.Status),
		},
	})
	return check, err
}
