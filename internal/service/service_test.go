package service

import (
	"context"
	"testing"
	"time"

	"github.com/openshelter/lending-engine/internal/config"
	"github.com/openshelter/lending-engine/internal/domain"
	"github.com/openshelter/lending-engine/internal/ledger"
	"github.com/openshelter/lending-engine/internal/logging"
	"github.com/openshelter/lending-engine/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// engine wires the real services over the in-memory store and simulated ledger.
type engine struct {
	store    *repository.MemoryStore
	ledger   *ledger.Simulated
	cfg      *config.Config
	loans    *LoanService
	payments *PaymentService
	users    *UserService
	visas    *VisaService
	now      time.Time
}

func newEngine(t *testing.T) *engine {
	t.Helper()

	e := &engine{
		store:  repository.NewMemoryStore(),
		ledger: ledger.NewSimulated(),
		cfg:    config.Default(),
		now:    fixedNow,
	}
	clock := func() time.Time { return e.now }
	logger := logging.Discard()

	e.loans = NewLoanService(e.store.Loans(), e.ledger, nil, e.cfg, logger)
	e.loans.now = clock
	e.payments = NewPaymentService(e.store.Loans(), e.store.Payments(), e.ledger, nil, e.cfg, logger)
	e.payments.now = clock
	e.users = NewUserService(e.store.Users(), e.ledger, logger)
	e.users.now = clock
	e.visas = NewVisaService(e.store.Visas(), e.ledger, logger)
	e.visas.now = clock
	return e
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// disbursedLoan applies for 500 over 6 months and walks it to disbursed.
func (e *engine) disbursedLoan(t *testing.T) *domain.Loan {
	t.Helper()
	ctx := context.Background()

	loan, err := e.loans.Apply(ctx, &domain.CreateLoanRequest{
		WalletAddress: "0xBorrower",
		Amount:        dec("500"),
		TermMonths:    6,
		Purpose:       "tuition",
	})
	require.NoError(t, err)

	_, err = e.loans.Transition(ctx, loan.ID, "approved", "")
	require.NoError(t, err)
	loan, err = e.loans.Transition(ctx, loan.ID, "disbursed", "0xdisburse")
	require.NoError(t, err)
	return loan
}
