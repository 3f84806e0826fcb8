package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/openshelter/lending-engine/internal/domain"
)

var (
	ErrNotFound             = errors.New("record not found")
	ErrVersionConflict      = errors.New("record was modified by another writer")
	ErrDuplicateLedgerRef   = errors.New("ledger reference already recorded")
	ErrDuplicateUser        = errors.New("wallet address or email already registered")
	ErrDuplicateApplication = errors.New("application id already exists")
)

// LoanRepository defines the interface for loan data operations
type LoanRepository interface {
	// Create creates a new loan
	Create(ctx context.Context, loan *domain.Loan) error

	// GetByID retrieves a loan by its identifier
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error)

	// List returns loans newest first; an empty wallet lists every loan
	List(ctx context.Context, walletAddress string) ([]*domain.Loan, error)

	// Update writes loan only if the stored version still equals expectedVersion,
	// and bumps loan.Version on success
	Update(ctx context.Context, loan *domain.Loan, expectedVersion int) error

	// ListDisbursedDueBetween returns disbursed loans whose next payment falls in [from, to)
	ListDisbursedDueBetween(ctx context.Context, from, to time.Time) ([]*domain.Loan, error)
}

// PaymentRepository defines the interface for payment data operations
type PaymentRepository interface {
	// RecordPayment inserts payment and applies the loan update in one transaction.
	// Nothing is written if either half fails.
	RecordPayment(ctx context.Context, payment *domain.Payment, loan *domain.Loan, expectedVersion int) error

	// GetByLedgerRef retrieves the payment recorded for a ledger transaction
	GetByLedgerRef(ctx context.Context, ledgerRef string) (*domain.Payment, error)

	// List returns payments matching filter, most recent first
	List(ctx context.Context, filter domain.PaymentFilter) ([]*domain.Payment, error)
}

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByWallet(ctx context.Context, walletAddress string) (*domain.User, error)
	ExistsByWalletOrEmail(ctx context.Context, walletAddress, email string) (bool, error)
	Update(ctx context.Context, user *domain.User) error
}

// VisaRepository defines the interface for visa application data operations
type VisaRepository interface {
	Create(ctx context.Context, app *domain.VisaApplication) error
	GetByApplicationID(ctx context.Context, applicationID string) (*domain.VisaApplication, error)
	List(ctx context.Context, walletAddress string) ([]*domain.VisaApplication, error)
	// Update writes app only while the stored status still equals expectedStatus
	Update(ctx context.Context, app *domain.VisaApplication, expectedStatus domain.VisaStatus) error
}
