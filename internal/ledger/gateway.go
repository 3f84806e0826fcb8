// Package ledger is the boundary to the smart-contract network. The engine only
// ever sees confirmed transaction references coming out of a Gateway.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnavailable means the network or relay could not be reached or did not
	// confirm in time. Callers may retry.
	ErrUnavailable = errors.New("ledger unavailable")
	// ErrRejected means the transaction failed or was reverted. It never happened.
	ErrRejected = errors.New("ledger transaction rejected")
)

// CredentialKind names a soulbound credential contract.
type CredentialKind string

const (
	CredentialVerification CredentialKind = "verification"
	CredentialVisa         CredentialKind = "visa"
)

// Transaction kinds reported by the relay.
const (
	TxKindLoanApplication = "loan_application"
	TxKindRepayment       = "repayment"
)

// TokenDecimals is the precision of the stablecoin the loan contract settles in.
const TokenDecimals = 6

// Gateway submits and queries loan activity on the ledger. Submit methods
// return only after the transaction is confirmed.
type Gateway interface {
	SubmitLoanApplication(ctx context.Context, amount decimal.Decimal, termMonths int, purpose string) (string, error)
	SubmitRepayment(ctx context.Context, loanRef string, amount decimal.Decimal) (string, error)
	ConfirmTransaction(ctx context.Context, ref string) error
	// ConfirmRepayment confirms ref and checks it is a repayment of amount
	// against the loan recorded under loanRef. Any other transaction is ErrRejected.
	ConfirmRepayment(ctx context.Context, ref, loanRef string, amount decimal.Decimal) error
	QueryReputationScore(ctx context.Context, wallet string) (int, error)
	QueryCredential(ctx context.Context, wallet string, kind CredentialKind) (bool, error)
}

// checkRepayment compares what the ledger recorded for ref with the repayment
// being reconciled. Amounts are compared in token base units.
func checkRepayment(ref, kind, gotLoanRef, wantLoanRef, gotUnits, wantUnits string) error {
	switch {
	case kind != TxKindRepayment:
		return fmt.Errorf("transaction %s is a %q, not a repayment: %w", ref, kind, ErrRejected)
	case gotLoanRef != wantLoanRef:
		return fmt.Errorf("transaction %s repays loan %s, not %s: %w", ref, gotLoanRef, wantLoanRef, ErrRejected)
	case gotUnits != wantUnits:
		return fmt.Errorf("transaction %s moved %s units, not %s: %w", ref, gotUnits, wantUnits, ErrRejected)
	}
	return nil
}

// ToTokenUnits converts a currency amount to the integer base units the contract expects.
func ToTokenUnits(amount decimal.Decimal) string {
	return amount.Shift(TokenDecimals).Truncate(0).String()
}
