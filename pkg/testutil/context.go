package testutil

import (
	"context"
	"testing"
	"time"

	"aurum/pkg/requestcontext"
)

// FrozenTime is the fixed clock used by Context.
var FrozenTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// Context returns a request context with a fixed clock and a test actor, so
// timestamps written by services are assertable.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx := requestcontext.WithTime(context.Background(), FrozenTime)
	return requestcontext.WithActor(ctx, "test-operator")
}
