package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanStatusPending   LoanStatus = "pending"
	LoanStatusApproved  LoanStatus = "approved"
	LoanStatusDisbursed LoanStatus = "disbursed"
	LoanStatusCompleted LoanStatus = "completed"
	LoanStatusDefaulted LoanStatus = "defaulted"
)

// loanTransitions lists, per state, the states it may move to next.
var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanStatusPending:   {LoanStatusApproved},
	LoanStatusApproved:  {LoanStatusDisbursed},
	LoanStatusDisbursed: {LoanStatusCompleted, LoanStatusDefaulted},
	LoanStatusCompleted: nil,
	LoanStatusDefaulted: nil,
}

// ParseLoanStatus validates a status string.
func ParseLoanStatus(s string) (LoanStatus, bool) {
	status := LoanStatus(s)
	_, ok := loanTransitions[status]
	return status, ok
}

// CanTransitionTo reports whether next is immediately reachable from s.
func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	for _, allowed := range loanTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s LoanStatus) IsTerminal() bool {
	return len(loanTransitions[s]) == 0
}

// Loan represents a loan entity
type Loan struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	WalletAddress    string          `json:"wallet_address" db:"wallet_address"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	TermMonths       int             `json:"term_months" db:"term_months"`
	Purpose          string          `json:"purpose" db:"purpose"`
	InterestRate     decimal.Decimal `json:"interest_rate" db:"interest_rate"`
	MonthlyPayment   decimal.Decimal `json:"monthly_payment" db:"monthly_payment"`
	TotalRepayment   decimal.Decimal `json:"total_repayment" db:"total_repayment"`
	Status           LoanStatus      `json:"status" db:"status"`
	RemainingBalance decimal.Decimal `json:"remaining_balance" db:"remaining_balance"`
	PaymentsMade     int             `json:"payments_made" db:"payments_made"`
	NextPaymentDue   *time.Time      `json:"next_payment_due" db:"next_payment_due"`
	LedgerRef        string          `json:"ledger_ref" db:"ledger_ref"`
	StatusLedgerRef  *string         `json:"status_ledger_ref,omitempty" db:"status_ledger_ref"`
	AppliedAt        time.Time       `json:"applied_at" db:"applied_at"`
	ApprovedAt       *time.Time      `json:"approved_at" db:"approved_at"`
	DisbursedAt      *time.Time      `json:"disbursed_at" db:"disbursed_at"`
	CompletedAt      *time.Time      `json:"completed_at" db:"completed_at"`
	DefaultedAt      *time.Time      `json:"defaulted_at" db:"defaulted_at"`
	Version          int             `json:"version" db:"version"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy so callers can stage mutations without touching
// a cached or shared value.
func (l *Loan) Clone() *Loan {
	c := *l
	c.NextPaymentDue = cloneTime(l.NextPaymentDue)
	c.ApprovedAt = cloneTime(l.ApprovedAt)
	c.DisbursedAt = cloneTime(l.DisbursedAt)
	c.CompletedAt = cloneTime(l.CompletedAt)
	c.DefaultedAt = cloneTime(l.DefaultedAt)
	if l.StatusLedgerRef != nil {
		ref := *l.StatusLedgerRef
		c.StatusLedgerRef = &ref
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// DTOs for requests and responses

type CreateLoanRequest struct {
	WalletAddress string           `json:"walletAddress" validate:"required"`
	Amount        decimal.Decimal  `json:"amount" validate:"gt=0"`
	TermMonths    int              `json:"termMonths" validate:"gt=0"`
	Purpose       string           `json:"purpose" validate:"max=500"`
	InterestRate  *decimal.Decimal `json:"interestRate,omitempty" validate:"omitempty,gte=0"`
	LedgerRef     string           `json:"transactionHash,omitempty"`
}

type CreateLoanResponse struct {
	LoanID uuid.UUID `json:"loanId"`
	Loan   *Loan     `json:"loan"`
}

type UpdateLoanStatusRequest struct {
	Status    string `json:"status" validate:"required"`
	LedgerRef string `json:"transactionHash,omitempty"`
}
