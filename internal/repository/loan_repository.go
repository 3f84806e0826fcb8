package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/openshelter/lending-engine/internal/domain"

	"github.com/jmoiron/sqlx"
)

const loanColumns = `id, wallet_address, amount, term_months, purpose, interest_rate, monthly_payment,
	total_repayment, status, remaining_balance, payments_made, next_payment_due, ledger_ref,
	status_ledger_ref, applied_at, approved_at, disbursed_at, completed_at, defaulted_at,
	version, created_at, updated_at`

type loanRepository struct {
	db *sqlx.DB
}

func NewLoanRepository(db *sqlx.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	query := `
		INSERT INTO loans (` + loanColumns + `)
		VALUES (:id, :wallet_address, :amount, :term_months, :purpose, :interest_rate, :monthly_payment,
			:total_repayment, :status, :remaining_balance, :payments_made, :next_payment_due, :ledger_ref,
			:status_ledger_ref, :applied_at, :approved_at, :disbursed_at, :completed_at, :defaulted_at,
			:version, :created_at, :updated_at)
	`

	_, err := r.db.NamedExecContext(ctx, query, loan)
	return err
}

func (r *loanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`

	var loan domain.Loan
	if err := r.db.GetContext(ctx, &loan, query, id); err != nil {
		return nil, translate(err)
	}

	return &loan, nil
}

func (r *loanRepository) List(ctx context.Context, walletAddress string) ([]*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans`
	var args []any
	if walletAddress != "" {
		query += ` WHERE wallet_address = $1`
		args = append(args, walletAddress)
	}
	query += ` ORDER BY created_at DESC`

	loans := []*domain.Loan{}
	if err := r.db.SelectContext(ctx, &loans, query, args...); err != nil {
		return nil, err
	}

	return loans, nil
}

func (r *loanRepository) Update(ctx context.Context, loan *domain.Loan, expectedVersion int) error {
	return updateLoan(ctx, r.db, loan, expectedVersion)
}

func (r *loanRepository) ListDisbursedDueBetween(ctx context.Context, from, to time.Time) ([]*domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE status = $1 AND next_payment_due >= $2 AND next_payment_due < $3
		ORDER BY next_payment_due
	`

	loans := []*domain.Loan{}
	if err := r.db.SelectContext(ctx, &loans, query, domain.LoanStatusDisbursed, from, to); err != nil {
		return nil, err
	}

	return loans, nil
}

// updateLoan is the single conditional write every loan mutation goes through.
func updateLoan(ctx context.Context, exec sqlx.ExecerContext, loan *domain.Loan, expectedVersion int) error {
	query := `
		UPDATE loans
		SET status = $3, remaining_balance = $4, payments_made = $5, next_payment_due = $6,
			status_ledger_ref = $7, approved_at = $8, disbursed_at = $9, completed_at = $10,
			defaulted_at = $11, updated_at = $12, version = version + 1
		WHERE id = $1 AND version = $2
	`

	result, err := exec.ExecContext(ctx, query,
		loan.ID,
		expectedVersion,
		loan.Status,
		loan.RemainingBalance,
		loan.PaymentsMade,
		loan.NextPaymentDue,
		loan.StatusLedgerRef,
		loan.ApprovedAt,
		loan.DisbursedAt,
		loan.CompletedAt,
		loan.DefaultedAt,
		loan.UpdatedAt,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	loan.Version = expectedVersion + 1
	return nil
}
