// Package account defines the external balance collaborator contract. Token
// balance bookkeeping lives outside this service; burning consults it before
// admitting a burn and applies the debit once the burn completes.
package account

import (
	"context"

	"aurum/pkg/domain"
)

// Verifier is the external account/balance collaborator.
type Verifier interface {
	// VerifyBalance returns a coded error when the user's token balance
	// cannot cover amount.
	VerifyBalance(ctx context.Context, userID domain.UserID, tokenID domain.TokenID, amount domain.Amount) error

	// Debit applies the balance reduction for a completed burn.
	Debit(ctx context.Context, userID domain.UserID, tokenID domain.TokenID, amount domain.Amount) error
}
