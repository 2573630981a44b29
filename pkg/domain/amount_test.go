package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "aurum/pkg/domain-errors"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"integer", "100", false},
		{"fraction", "0.000001", false},
		{"zero", "0", false},
		{"high precision survives", "123456789012345678901234567890.123456789", false},
		{"empty", "", true},
		{"negative", "-1", true},
		{"not a number", "ten", true},
		{"float artifacts rejected", "1e--3", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseAmount(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			// Round-trips without drift.
			back, err := ParseAmount(a.String())
			require.NoError(t, err)
			assert.True(t, a.Equal(back))
		})
	}
}

func TestAmount_Arithmetic(t *testing.T) {
	a := MustAmount("0.1")
	b := MustAmount("0.2")

	// The classic float trap: 0.1 + 0.2 must be exactly 0.3.
	assert.Equal(t, "0.3", a.Add(b).String())

	assert.Equal(t, "0.1", b.Sub(a).String())
	assert.True(t, a.Sub(b).IsNegative())
	assert.Equal(t, "0.1", a.Sub(b).Abs().String())
}

func TestAmount_MulRatio(t *testing.T) {
	supply := MustAmount("100")
	assert.Equal(t, "100", supply.MulRatio(MustAmount("1.0")).String())
	assert.Equal(t, "150", supply.MulRatio(MustAmount("1.5")).String())
	assert.Equal(t, "1", supply.MulRatio(MustAmount("0.01")).String())
}

func TestAmount_JSON(t *testing.T) {
	type payload struct {
		Amount Amount `json:"amount"`
	}

	out, err := json.Marshal(payload{Amount: MustAmount("42.5")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"42.5"}`, string(out))

	var in payload
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"0.000001"}`), &in))
	assert.Equal(t, "0.000001", in.Amount.String())

	// Bare numbers are rejected: amounts are decimal strings on the wire.
	assert.Error(t, json.Unmarshal([]byte(`{"amount":42.5}`), &in))
}

func TestMetadata_Validate(t *testing.T) {
	t.Run("valid bag", func(t *testing.T) {
		m := Metadata{
			Description:   "LBMA gold bars, vault A",
			CustodianName: "Helvetia Custody AG",
			Extensions:    map[string]string{"lot": "A-778"},
		}
		assert.NoError(t, m.Validate())
	})

	t.Run("extension map is bounded", func(t *testing.T) {
		m := Metadata{Extensions: map[string]string{}}
		for i := 0; i < maxExtensionKeys+1; i++ {
			m.Extensions[string(rune('a'+i))] = "x"
		}
		err := m.Validate()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("empty extension key rejected", func(t *testing.T) {
		m := Metadata{Extensions: map[string]string{"": "x"}}
		assert.Error(t, m.Validate())
	})
}
