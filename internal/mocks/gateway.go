package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/openshelter/lending-engine/internal/domain"
	"github.com/openshelter/lending-engine/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) SubmitLoanApplication(ctx context.Context, amount decimal.Decimal, termMonths int, purpose string) (string, error) {
	args := m.Called(ctx, amount, termMonths, purpose)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) SubmitRepayment(ctx context.Context, loanRef string, amount decimal.Decimal) (string, error) {
	args := m.Called(ctx, loanRef, amount)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) ConfirmTransaction(ctx context.Context, ref string) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

func (m *MockGateway) ConfirmRepayment(ctx context.Context, ref, loanRef string, amount decimal.Decimal) error {
	args := m.Called(ctx, ref, loanRef, amount)
	return args.Error(0)
}

func (m *MockGateway) QueryReputationScore(ctx context.Context, wallet string) (int, error) {
	args := m.Called(ctx, wallet)
	return args.Int(0), args.Error(1)
}

func (m *MockGateway) QueryCredential(ctx context.Context, wallet string, kind ledger.CredentialKind) (bool, error) {
	args := m.Called(ctx, wallet, kind)
	return args.Bool(0), args.Error(1)
}

type MockLoanCache struct {
	mock.Mock
}

func (m *MockLoanCache) Get(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockLoanCache) Set(ctx context.Context, loan *domain.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockLoanCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
