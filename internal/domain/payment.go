package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const PaymentStatusCompleted = "completed"

// Payment is an immutable record of a single repayment event.
type Payment struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	LoanID        uuid.UUID       `json:"loan_id" db:"loan_id"`
	WalletAddress string          `json:"wallet_address" db:"wallet_address"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	PaymentMethod string          `json:"payment_method" db:"payment_method"`
	LedgerRef     string          `json:"ledger_ref" db:"ledger_ref"`
	Status        string          `json:"status" db:"status"`
	BalanceAfter  decimal.Decimal `json:"balance_after" db:"balance_after"`
	PaidAt        time.Time       `json:"paid_at" db:"paid_at"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// PaymentFilter narrows a payment listing. Empty fields match everything.
type PaymentFilter struct {
	WalletAddress string
	LoanID        *uuid.UUID
}

type MakePaymentRequest struct {
	LoanID        uuid.UUID       `json:"loanId" validate:"required"`
	WalletAddress string          `json:"walletAddress"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"paymentMethod" validate:"max=64"`
	LedgerRef     string          `json:"transactionHash"`
}

// PaymentResult is what a reconciled payment reports back to the caller.
type PaymentResult struct {
	PaymentID        uuid.UUID       `json:"paymentId"`
	RemainingBalance decimal.Decimal `json:"remainingBalance"`
	LoanStatus       LoanStatus      `json:"loanStatus"`
	Replayed         bool            `json:"replayed"`
}
