package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/openshelter/lending-engine/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockLoanRepository struct {
	mock.Mock
}

func (m *MockLoanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockLoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan).Clone(), args.Error(1)
}

func (m *MockLoanRepository) List(ctx context.Context, walletAddress string) ([]*domain.Loan, error) {
	args := m.Called(ctx, walletAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Loan), args.Error(1)
}

func (m *MockLoanRepository) Update(ctx context.Context, loan *domain.Loan, expectedVersion int) error {
	args := m.Called(ctx, loan, expectedVersion)
	if args.Error(0) == nil {
		loan.Version = expectedVersion + 1
	}
	return args.Error(0)
}

func (m *MockLoanRepository) ListDisbursedDueBetween(ctx context.Context, from, to time.Time) ([]*domain.Loan, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Loan), args.Error(1)
}

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) RecordPayment(ctx context.Context, payment *domain.Payment, loan *domain.Loan, expectedVersion int) error {
	args := m.Called(ctx, payment, loan, expectedVersion)
	if args.Error(0) == nil {
		loan.Version = expectedVersion + 1
	}
	return args.Error(0)
}

func (m *MockPaymentRepository) GetByLedgerRef(ctx context.Context, ledgerRef string) (*domain.Payment, error) {
	args := m.Called(ctx, ledgerRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPaymentRepository) List(ctx context.Context, filter domain.PaymentFilter) ([]*domain.Payment, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Payment), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByWallet(ctx context.Context, walletAddress string) (*domain.User, error) {
	args := m.Called(ctx, walletAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) ExistsByWalletOrEmail(ctx context.Context, walletAddress, email string) (bool, error) {
	args := m.Called(ctx, walletAddress, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

type MockVisaRepository struct {
	mock.Mock
}

func (m *MockVisaRepository) Create(ctx context.Context, app *domain.VisaApplication) error {
	args := m.Called(ctx, app)
	return args.Error(0)
}

func (m *MockVisaRepository) GetByApplicationID(ctx context.Context, applicationID string) (*domain.VisaApplication, error) {
	args := m.Called(ctx, applicationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	app := *args.Get(0).(*domain.VisaApplication)
	return &app, args.Error(1)
}

func (m *MockVisaRepository) List(ctx context.Context, walletAddress string) ([]*domain.VisaApplication, error) {
	args := m.Called(ctx, walletAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.VisaApplication), args.Error(1)
}

func (m *MockVisaRepository) Update(ctx context.Context, app *domain.VisaApplication, expectedStatus domain.VisaStatus) error {
	args := m.Called(ctx, app, expectedStatus)
	return args.Error(0)
}
