// Package domain holds typed identifiers and value types shared across the
// ledger. IDs are distinct uuid-backed types so a TokenID can never be passed
// where a UserID is expected; the compiler enforces it.
package domain

import (
	"github.com/google/uuid"

	dErrors "aurum/pkg/domain-errors"
)

type (
	// TokenID identifies a token definition in the registry.
	TokenID uuid.UUID
	// UserID identifies the holder submitting mint/burn/deposit/withdrawal requests.
	UserID uuid.UUID
	// RequestID identifies a minting or burning request.
	RequestID uuid.UUID
	// DepositID identifies a physical-asset deposit record.
	DepositID uuid.UUID
	// WithdrawalID identifies a physical-asset withdrawal record.
	WithdrawalID uuid.UUID
	// TransactionID identifies an entry in the token transaction ledger.
	TransactionID uuid.UUID
	// AuditID identifies a reconciliation audit record.
	AuditID uuid.UUID
)

func NewTokenID() TokenID { return TokenID(uuid.New()) }
func NewUserID() UserID { return UserID(uuid.New()) }
func NewRequestID() RequestID { return RequestID(uuid.New()) }
func NewDepositID() DepositID { return DepositID(uuid.New()) }
func NewWithdrawalID() WithdrawalID { return WithdrawalID(uuid.New()) }
func NewTransactionID() TransactionID { return TransactionID(uuid.New()) }
func NewAuditID() AuditID { return AuditID(uuid.New()) }

func (id TokenID) String() string { return uuid.UUID(id).String() }
func (id UserID) String() string { return uuid.UUID(id).String() }
func (id RequestID) String() string { return uuid.UUID(id).String() }
func (id DepositID) String() string { return uuid.UUID(id).String() }
func (id WithdrawalID) String() string { return uuid.UUID(id).String() }
func (id TransactionID) String() string { return uuid.UUID(id).String() }
func (id AuditID) String() string { return uuid.UUID(id).String() }

func (id TokenID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id RequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DepositID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id WithdrawalID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id TransactionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id AuditID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// parseUUID enforces the trust-boundary invariant: IDs must be valid,
// non-empty, non-nil UUIDs.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", kind)
	}
	if len(s) > 64 {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is malformed", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is malformed", kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s must not be the nil uuid", kind)
	}
	return u, nil
}

func ParseTokenID(s string) (TokenID, error) {
	u, err := parseUUID(s, "token id")
	return TokenID(u), err
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID(s, "request id")
	return RequestID(u), err
}

func ParseDepositID(s string) (DepositID, error) {
	u, err := parseUUID(s, "deposit id")
	return DepositID(u), err
}

func ParseWithdrawalID(s string) (WithdrawalID, error) {
	u, err := parseUUID(s, "withdrawal id")
	return WithdrawalID(u), err
}
