package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_DrainsToPublisher(t *testing.T) {
	emitter := NewEmitter(8, nil)
	publisher := NewMemoryPublisher()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = emitter.Run(ctx, publisher)
	}()

	emitter.Emit(ctx, Event{Name: TokenCreated, TokenID: "t-1"})
	emitter.Emit(ctx, Event{Name: MintingCompleted, TokenID: "t-1", Amount: "100"})

	require.Eventually(t, func() bool {
		return len(publisher.Events()) == 2
	}, time.Second, 10*time.Millisecond)

	published := publisher.Events()
	assert.Equal(t, TokenCreated, published[0].Name)
	assert.False(t, published[0].OccurredAt.IsZero(), "OccurredAt is stamped on emit")

	cancel()
	<-done
}

func TestEmitter_FullInboxDropsInsteadOfBlocking(t *testing.T) {
	emitter := NewEmitter(1, nil)

	// No consumer is running; the second emit must return immediately.
	done := make(chan struct{})
	go func() {
		defer close(done)
		emitter.Emit(context.Background(), Event{Name: ReservesUpdated})
		emitter.Emit(context.Background(), Event{Name: ReservesUpdated})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full inbox")
	}
}
