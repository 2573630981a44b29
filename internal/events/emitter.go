package events

import (
	"context"
	"log/slog"
	"time"
)

// Emitter buffers events on a channel so domain services never block on the
// publisher. A full inbox drops the event with a log line rather than
// stalling request processing; the persisted audit trail remains the source
// of truth.
type Emitter struct {
	inbox  chan Event
	logger *slog.Logger
}

// NewEmitter creates an emitter with the given buffer size.
func NewEmitter(buffer int, logger *slog.Logger) *Emitter {
	if buffer <= 0 {
		buffer = 256
	}
	return &Emitter{
		inbox:  make(chan Event, buffer),
		logger: logger,
	}
}

// Emit enqueues an event, stamping OccurredAt when unset.
func (e *Emitter) Emit(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	select {
	case e.inbox <- event:
	default:
		if e.logger != nil {
			e.logger.WarnContext(ctx, "event inbox full, dropping event",
				"event", event.Name,
				"token_id", event.TokenID,
			)
		}
	}
}

// Run drains the inbox into the publisher until ctx is cancelled.
func (e *Emitter) Run(ctx context.Context, publisher Publisher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-e.inbox:
			if err := publisher.Publish(ctx, event); err != nil && e.logger != nil {
				e.logger.ErrorContext(ctx, "event publish failed",
					"event", event.Name,
					"error", err,
				)
			}
		}
	}
}
