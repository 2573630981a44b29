package domain

import (
	"github.com/shopspring/decimal"

	dErrors "aurum/pkg/domain-errors"
)

// Amount is an arbitrary-precision decimal used for every supply and reserve
// quantity. Amounts travel as decimal strings on the wire and in persistence;
// native floats are never used for money-like values.
type Amount struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Amount{}

// ParseAmount parses a decimal string. Negative amounts are rejected: every
// ledger quantity (supplies, reserves, fees, request amounts) is non-negative
// and direction is expressed by the operation, not the sign.
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return Amount{}, dErrors.New(dErrors.CodeInvalidInput, "amount is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, dErrors.Newf(dErrors.CodeInvalidInput, "amount %q is not a valid decimal", s)
	}
	if d.IsNegative() {
		return Amount{}, dErrors.Newf(dErrors.CodeInvalidInput, "amount %q must not be negative", s)
	}
	return Amount{d: d}, nil
}

// MustAmount parses a decimal string and panics on failure. Test helper and
// config-default constructor only.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) String() string { return a.d.String() }

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }

// Sub subtracts b from a. The result may be negative; callers that require
// non-negative results check IsNegative and reject before persisting.
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }

// MulRatio multiplies by a ratio expressed as a decimal (e.g. a reserve
// coverage ratio of "1.0" or an insurance rate of "0.01").
func (a Amount) MulRatio(ratio Amount) Amount { return Amount{d: a.d.Mul(ratio.d)} }

func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }
func (a Amount) LessThan(b Amount) bool { return a.d.LessThan(b.d) }
func (a Amount) GreaterThan(b Amount) bool { return a.d.GreaterThan(b.d) }

func (a Amount) IsZero() bool { return a.d.IsZero() }
func (a Amount) IsNegative() bool { return a.d.IsNegative() }
func (a Amount) IsPositive() bool { return a.d.IsPositive() }

// Abs returns the absolute value. Used when quantifying audit discrepancies.
func (a Amount) Abs() Amount { return Amount{d: a.d.Abs()} }

// MarshalJSON encodes the amount as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.d.String() + `"`), nil
}

// UnmarshalJSON accepts a decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must be a decimal string")
	}
	parsed, err := ParseAmount(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
