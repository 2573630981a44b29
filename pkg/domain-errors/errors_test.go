package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("direct code", func(t *testing.T) {
		err := New(CodeNotFound, "token missing")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
	})

	t.Run("wrapped chain preserves inner code", func(t *testing.T) {
		inner := New(CodeInsufficientReserves, "available below requested")
		outer := Wrap(inner, CodeInternal, "withdrawal failed")
		assert.True(t, HasCode(outer, CodeInternal))
		assert.True(t, HasCode(outer, CodeInsufficientReserves))
	})

	t.Run("uncoded error has no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("plain"), CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeCompliance, CodeOf(New(CodeCompliance, "gate unreachable")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))

	// fmt wrapping does not hide the code
	err := fmt.Errorf("submit: %w", New(CodeInvalidInput, "amount out of range"))
	assert.Equal(t, CodeInvalidInput, CodeOf(err))
}

func TestWrap(t *testing.T) {
	t.Run("nil passthrough", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
	})

	t.Run("cause stays reachable", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(cause, CodeExternal, "compliance gate")
		require.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "compliance gate")
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "amount out of range", MessageOf(New(CodeInvalidInput, "amount out of range")))
	assert.Equal(t, "plain", MessageOf(errors.New("plain")))
	assert.Equal(t, "", MessageOf(nil))
}
