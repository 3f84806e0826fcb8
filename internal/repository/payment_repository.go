package repository

import (
	"context"
	"strconv"
	"strings"

	"github.com/openshelter/lending-engine/internal/domain"

	"github.com/jmoiron/sqlx"
)

const paymentColumns = `id, loan_id, wallet_address, amount, payment_method, ledger_ref, status,
	balance_after, paid_at, created_at`

type paymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) RecordPayment(ctx context.Context, payment *domain.Payment, loan *domain.Loan, expectedVersion int) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, query,
		payment.ID,
		payment.LoanID,
		payment.WalletAddress,
		payment.Amount,
		payment.PaymentMethod,
		payment.LedgerRef,
		payment.Status,
		payment.BalanceAfter,
		payment.PaidAt,
		payment.CreatedAt,
	)
	if err != nil {
		if uniqueConstraint(err) == "payments_ledger_ref_key" {
			return ErrDuplicateLedgerRef
		}
		return err
	}

	version := loan.Version
	if err = updateLoan(ctx, tx, loan, expectedVersion); err != nil {
		loan.Version = version
		return err
	}

	if err = tx.Commit(); err != nil {
		loan.Version = version
		return err
	}
	return nil
}

func (r *paymentRepository) GetByLedgerRef(ctx context.Context, ledgerRef string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE ledger_ref = $1`

	var payment domain.Payment
	if err := r.db.GetContext(ctx, &payment, query, ledgerRef); err != nil {
		return nil, translate(err)
	}

	return &payment, nil
}

func (r *paymentRepository) List(ctx context.Context, filter domain.PaymentFilter) ([]*domain.Payment, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.WalletAddress != "" {
		args = append(args, filter.WalletAddress)
		conditions = append(conditions, "wallet_address = $1")
	}
	if filter.LoanID != nil {
		args = append(args, *filter.LoanID)
		conditions = append(conditions, "loan_id = $"+strconv.Itoa(len(args)))
	}

	query := `SELECT ` + paymentColumns + ` FROM payments`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY paid_at DESC`

	payments := []*domain.Payment{}
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, err
	}

	return payments, nil
}
