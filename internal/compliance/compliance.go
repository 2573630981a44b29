// Package compliance defines the external policy-check contract consumed by
// the ledger workflows, plus the HTTP client and cache that implement it.
//
// The gate is fail-closed: any transport failure, timeout, or open circuit
// resolves to a NON_COMPLIANT check. Callers never proceed optimistically.
package compliance

import (
	"context"
	"time"
)

// Status is the outcome of a policy check.
type Status string

const (
	StatusCompliant      Status = "COMPLIANT"
	StatusNonCompliant   Status = "NON_COMPLIANT"
	StatusUnderReview    Status = "UNDER_REVIEW"
	StatusRequiresAction Status = "REQUIRES_ACTION"
)

// IsCompliant reports whether the status permits gated operations.
func (s Status) IsCompliant() bool {
	return s == StatusCompliant
}

// Check is the snapshot embedded in every mint, burn, deposit, and
// withdrawal record.
type Check struct {
	Status         Status    `json:"status"`
	KYCStatus      string    `json:"kycStatus,omitempty"`
	AMLStatus      string    `json:"amlStatus,omitempty"`
	SanctionsCheck string    `json:"sanctionsCheck,omitempty"`
	RiskScore      int       `json:"riskScore"`
	Flags          []string  `json:"flags,omitempty"`
	CheckedAt      time.Time `json:"checkedAt"`
}

// Passed reports whether the check allows the gated operation to proceed.
func (c Check) Passed() bool {
	return c.Status == StatusCompliant
}

// Gate is the external policy-check collaborator (KYC/AML/sanctions).
type Gate interface {
	// Check evaluates the entity for the given operation type ("minting",
	// "burning", "deposit", "withdrawal"). Implementations must return a
	// NON_COMPLIANT check alongside the error whenever the decision cannot
	// be obtained.
	Check(ctx context.Context, entityID, entityType string, requiredChecks []string) (Check, error)
}

// Denied is the fail-closed result used when the gate cannot be reached.
func Denied(now time.Time, flags ...string) Check {
	return Check{
		Status:    StatusNonCompliant,
		Flags:     flags,
		CheckedAt: now,
	}
}
