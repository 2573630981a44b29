package compliance_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"aurum/internal/compliance"
	"aurum/internal/compliance/mocks"
	"aurum/internal/events"
	dErrors "aurum/pkg/domain-errors"
)

type recordingEmitter struct {
	pub *events.MemoryPublisher
}

func (e *recordingEmitter) Emit(ctx context.Context, event events.Event) {
	_ = e.pub.Publish(ctx, event)
}

func TestObservedGate_EmitsOnEveryDecision(t *testing.T) {
	ctrl := gomock.NewController(t)
	gate := mocks.NewMockGate(ctrl)
	pub := events.NewMemoryPublisher()
	observed := compliance.NewObservedGate(gate, &recordingEmitter{pub: pub})
	ctx := context.Background()

	gate.EXPECT().Check(gomock.Any(), "user-1", "minting", gomock.Any()).
		Return(compliance.Check{Status: compliance.StatusCompliant, CheckedAt: time.Now()}, nil)
	gate.EXPECT().Check(gomock.Any(), "user-2", "burning", gomock.Any()).
		Return(compliance.Denied(time.Now(), "gate_timeout"),
			dErrors.New(dErrors.CodeCompliance, "compliance gate timed out"))

	_, err := observed.Check(ctx, "user-1", "minting", []string{"kyc"})
	require.NoError(t, err)
	_, err = observed.Check(ctx, "user-2", "burning", []string{"kyc"})
	require.Error(t, err)

	emitted := pub.ByName(events.ComplianceChecked)
	require.Len(t, emitted, 2)
	assert.Equal(t, "user-1", emitted[0].EntityID)
	assert.Equal(t, string(compliance.StatusCompliant), emitted[0].Attrs["status"])
	assert.Equal(t, "minting", emitted[0].Attrs["entity_type"])
	assert.Equal(t, string(compliance.StatusNonCompliant), emitted[1].Attrs["status"])
}

func TestNewObservedGate_NilEmitterReturnsGateUnchanged(t *testing.T) {
	ctrl := gomock.NewController(t)
	gate := mocks.NewMockGate(ctrl)
	assert.Equal(t, compliance.Gate(gate), compliance.NewObservedGate(gate, nil))
}
