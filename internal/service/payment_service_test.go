package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openshelter/lending-engine/internal/config"
	"github.com/openshelter/lending-engine/internal/domain"
	"github.com/openshelter/lending-engine/internal/logging"
	"github.com/openshelter/lending-engine/internal/mocks"
	"github.com/openshelter/lending-engine/internal/repository"
	customError "github.com/openshelter/lending-engine/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func pay(loanID uuid.UUID, amount, ref string) *domain.MakePaymentRequest {
	return &domain.MakePaymentRequest{
		LoanID:        loanID,
		WalletAddress: "0xBorrower",
		Amount:        dec(amount),
		PaymentMethod: "usdc",
		LedgerRef:     ref,
	}
}

func TestApplyPayment_FullRepaymentCompletesLoan(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	loan := e.disbursedLoan(t)

	result, err := e.payments.ApplyPayment(ctx, pay(loan.ID, "517.50", "0xpay-full"))
	require.NoError(t, err)
	assert.True(t, result.RemainingBalance.IsZero())
	assert.Equal(t, domain.LoanStatusCompleted, result.LoanStatus)
	assert.False(t, result.Replayed)

	stored, err := e.loans.Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusCompleted, stored.Status)
	assert.True(t, stored.RemainingBalance.IsZero())
	assert.Nil(t, stored.NextPaymentDue)
	assert.Equal(t, 1, stored.PaymentsMade)
	require.NotNil(t, stored.CompletedAt)
}

func TestApplyPayment_PartialPaymentMovesDueDate(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	loan := e.disbursedLoan(t)

	e.now = fixedNow.Add(10 * 24 * time.Hour)
	result, err := e.payments.ApplyPayment(ctx, pay(loan.ID, "86.25", "0xpay-1"))
	require.NoError(t, err)
	assert.True(t, result.RemainingBalance.Equal(dec("431.25")))
	assert.Equal(t, domain.LoanStatusDisbursed, result.LoanStatus)

	stored, err := e.loans.Get(ctx, loan.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.NextPaymentDue)
	assert.Equal(t, e.now.Add(30*24*time.Hour), *stored.NextPaymentDue)
	assert.Equal(t, 1, stored.PaymentsMade)

	payments, err := e.payments.ListPayments(ctx, domain.PaymentFilter{LoanID: &loan.ID})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, result.PaymentID, payments[0].ID)
	assert.Equal(t, "0xborrower", payments[0].WalletAddress)
	assert.Equal(t, domain.PaymentStatusCompleted, payments[0].Status)
	assert.True(t, payments[0].BalanceAfter.Equal(dec("431.25")))
}

func TestApplyPayment_SameLedgerRefAppliesOnce(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	loan := e.disbursedLoan(t)

	first, err := e.payments.ApplyPayment(ctx, pay(loan.ID, "100", "0xpay-dup"))
	require.NoError(t, err)
	second, err := e.payments.ApplyPayment(ctx, pay(loan.ID, "100", "0xpay-dup"))
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.True(t, second.RemainingBalance.Equal(dec("417.50")))

	stored, err := e.loans.Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, stored.RemainingBalance.Equal(dec("417.50")))
	assert.Equal(t, 1, stored.PaymentsMade)

	payments, err := e.payments.ListPayments(ctx, domain.PaymentFilter{LoanID: &loan.ID})
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestApplyPayment_ReplayAfterCompletion(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	loan := e.disbursedLoan(t)

	_, err := e.payments.ApplyPayment(ctx, pay(loan.ID, "600", "0xpay-all"))
	require.NoError(t, err)

	again, err := e.payments.ApplyPayment(ctx, pay(loan.ID, "600", "0xpay-all"))
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, domain.LoanStatusCompleted, again.LoanStatus)
	assert.True(t, again.RemainingBalance.IsZero())
}

func TestApplyPayment_LedgerRefReusedOnAnotherLoan(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	first := e.disbursedLoan(t)
	second := e.disbursedLoan(t)

	_, err := e.payments.ApplyPayment(ctx, pay(first.ID, "50", "0xshared"))
	require.NoError(t, err)

	_, err = e.payments.ApplyPayment(ctx, pay(second.ID, "50", "0xshared"))
	assert.True(t, errors.Is(err, customError.ErrConflict))

	stored, err := e.loans.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, stored.RemainingBalance.Equal(dec("517.50")))
}

func TestApplyPayment_OverpaymentClampsToZero(t *testing.T) {
	e := newEngine(t)
	loan := e.disbursedLoan(t)

	result, err := e.payments.ApplyPayment(context.Background(), pay(loan.ID, "10000", "0xpay-over"))
	require.NoError(t, err)
	assert.True(t, result.RemainingBalance.IsZero())
	assert.False(t, result.RemainingBalance.IsNegative())
	assert.Equal(t, domain.LoanStatusCompleted, result.LoanStatus)
}

func TestApplyPayment_BalanceZeroIffCompleted(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	loan := e.disbursedLoan(t)

	for i, amount := range []string{"86.25", "86.25", "200", "0.01", "144.99"} {
		result, err := e.payments.ApplyPayment(ctx, pay(loan.ID, amount, fmt.Sprintf("0xstep-%d", i)))
		require.NoError(t, err)

		stored, err := e.loans.Get(ctx, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, stored.RemainingBalance.IsZero(), stored.Status == domain.LoanStatusCompleted,
			"balance %s status %s", stored.RemainingBalance, stored.Status)
		assert.True(t, stored.RemainingBalance.Equal(result.RemainingBalance))
	}

	stored, err := e.loans.Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusCompleted, stored.Status)
	assert.Equal(t, 5, stored.PaymentsMade)
}

func TestApplyPayment_Guards(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	pending, err := e.loans.Apply(ctx, &domain.CreateLoanRequest{WalletAddress: "0xabc", Amount: dec("500"), TermMonths: 6})
	require.NoError(t, err)
	disbursed := e.disbursedLoan(t)

	tests := []struct {
		name    string
		request *domain.MakePaymentRequest
		want    error
	}{
		{"missing loan", pay(uuid.New(), "10", "0xg1"), customError.ErrNotFound},
		{"zero amount", pay(disbursed.ID, "0", "0xg2"), customError.ErrInvalidArgument},
		{"negative amount", pay(disbursed.ID, "-3", "0xg3"), customError.ErrInvalidArgument},
		{"fraction of a cent", pay(disbursed.ID, "517.499", "0xg5"), customError.ErrInvalidArgument},
		{"application tx as repayment", pay(disbursed.ID, "517.50", disbursed.LedgerRef), customError.ErrConflict},
		{"disbursement tx as repayment", pay(disbursed.ID, "517.50", "0xDISBURSE"), customError.ErrConflict},
		{"pending loan", pay(pending.ID, "10", "0xg4"), customError.ErrIllegalState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.payments.ApplyPayment(ctx, tt.request)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	payments, err := e.payments.ListPayments(ctx, domain.PaymentFilter{})
	require.NoError(t, err)
	assert.Empty(t, payments)

	stored, err := e.loans.Get(ctx, disbursed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusDisbursed, stored.Status)
	assert.True(t, stored.RemainingBalance.Equal(dec("517.50")))
}

func TestApplyPayment_StrictLedgerChecksTheRepayment(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	loan := e.disbursedLoan(t)
	e.ledger.AcceptUnknown = false

	e.ledger.RecordRepayment("0xwallet-repay", loan.LedgerRef, dec("100"))

	tests := []struct {
		name    string
		request *domain.MakePaymentRequest
	}{
		{"unknown transaction", pay(loan.ID, "100", "0xnever-seen")},
		{"amount differs from the ledger", pay(loan.ID, "517.50", "0xwallet-repay")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.payments.ApplyPayment(ctx, tt.request)
			assert.True(t, errors.Is(err, customError.ErrRejected), "got %v", err)
		})
	}

	other, err := e.loans.Apply(ctx, &domain.CreateLoanRequest{WalletAddress: "0xother", Amount: dec("50"), TermMonths: 1})
	require.NoError(t, err)
	e.ledger.RecordRepayment("0xother-repay", other.LedgerRef, dec("20"))
	_, err = e.payments.ApplyPayment(ctx, pay(loan.ID, "20", "0xother-repay"))
	assert.True(t, errors.Is(err, customError.ErrRejected), "got %v", err)

	stored, err := e.loans.Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, stored.RemainingBalance.Equal(dec("517.50")))

	result, err := e.payments.ApplyPayment(ctx, pay(loan.ID, "100", "0xwallet-repay"))
	require.NoError(t, err)
	assert.True(t, result.RemainingBalance.Equal(dec("417.50")))
}

func TestApplyPayment_LogsConfirmedRepaymentOnLoanThatMovedOn(t *testing.T) {
	loans := &mocks.MockLoanRepository{}
	payments := &mocks.MockPaymentRepository{}
	gateway := &mocks.MockGateway{}
	var logs bytes.Buffer
	logger := logging.NewWithWriter(&logs, config.LoggingConfig{Level: "debug", Format: "json"})
	svc := NewPaymentService(loans, payments, gateway, nil, config.Default(), logger)

	id := uuid.New()
	due := fixedNow.Add(time.Hour)
	open := &domain.Loan{ID: id, LedgerRef: "0xapp", Status: domain.LoanStatusDisbursed, RemainingBalance: dec("50"), NextPaymentDue: &due, Version: 3}
	done := &domain.Loan{ID: id, LedgerRef: "0xapp", Status: domain.LoanStatusCompleted, Version: 4}

	loans.On("GetByID", mock.Anything, id).Return(open, nil).Once()
	loans.On("GetByID", mock.Anything, id).Return(done, nil).Once()
	payments.On("GetByLedgerRef", mock.Anything, "0xlate").Return(nil, repository.ErrNotFound)
	gateway.On("ConfirmRepayment", mock.Anything, "0xlate", "0xapp", mock.Anything).Return(nil).Once()
	payments.On("RecordPayment", mock.Anything, mock.Anything, mock.Anything, 3).Return(repository.ErrVersionConflict).Once()

	_, err := svc.ApplyPayment(context.Background(), &domain.MakePaymentRequest{
		LoanID: id, Amount: dec("50"), LedgerRef: "0xlate",
	})
	assert.True(t, errors.Is(err, customError.ErrIllegalState), "got %v", err)
	assert.Contains(t, logs.String(), "ledger-confirmed repayment was not stored")
	assert.Contains(t, logs.String(), "0xlate")
	gateway.AssertExpectations(t)
}

func TestApplyPayment_LedgerRejectionWritesNothing(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	loan := e.disbursedLoan(t)

	e.ledger.Reject("0xreverted")
	_, err := e.payments.ApplyPayment(ctx, pay(loan.ID, "100", "0xreverted"))
	assert.True(t, errors.Is(err, customError.ErrRejected))
	assert.Equal(t, customError.ErrCodeRejected, customError.Code(err))

	e.ledger.SetUnavailable(true)
	_, err = e.payments.ApplyPayment(ctx, pay(loan.ID, "100", ""))
	assert.True(t, errors.Is(err, customError.ErrUnavailable))

	stored, err := e.loans.Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, stored.RemainingBalance.Equal(dec("517.50")))
	assert.Equal(t, 0, stored.PaymentsMade)
	assert.Equal(t, loan.Version, stored.Version)

	e.ledger.SetUnavailable(false)
	payments, err := e.payments.ListPayments(ctx, domain.PaymentFilter{LoanID: &loan.ID})
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestApplyPayment_SubmitsRepaymentWithoutRef(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	loan := e.disbursedLoan(t)
	before := e.ledger.Submissions()

	result, err := e.payments.ApplyPayment(ctx, pay(loan.ID, "50", ""))
	require.NoError(t, err)
	assert.Equal(t, before+1, e.ledger.Submissions())

	payments, err := e.payments.ListPayments(ctx, domain.PaymentFilter{WalletAddress: "0xBORROWER"})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, result.PaymentID, payments[0].ID)
	assert.NotEmpty(t, payments[0].LedgerRef)
}

func TestApplyPayment_ConcurrentPaymentsSerialize(t *testing.T) {
	e := newEngine(t)
	e.cfg.Business.MaxUpdateRetries = 16
	ctx := context.Background()
	loan := e.disbursedLoan(t)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.payments.ApplyPayment(ctx, pay(loan.ID, "10", fmt.Sprintf("0xconc-%d", i)))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	stored, err := e.loans.Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, stored.RemainingBalance.Equal(dec("437.50")), stored.RemainingBalance.String())
	assert.Equal(t, workers, stored.PaymentsMade)

	payments, err := e.payments.ListPayments(ctx, domain.PaymentFilter{LoanID: &loan.ID})
	require.NoError(t, err)
	assert.Len(t, payments, workers)
}

func TestApplyPayment_RetriesOnVersionConflict(t *testing.T) {
	loans := &mocks.MockLoanRepository{}
	payments := &mocks.MockPaymentRepository{}
	gateway := &mocks.MockGateway{}
	svc := NewPaymentService(loans, payments, gateway, nil, config.Default(), logging.Discard())

	id := uuid.New()
	due := fixedNow.Add(time.Hour)
	v3 := &domain.Loan{ID: id, Status: domain.LoanStatusDisbursed, RemainingBalance: dec("200"), NextPaymentDue: &due, Version: 3}
	v4 := &domain.Loan{ID: id, Status: domain.LoanStatusDisbursed, RemainingBalance: dec("150"), NextPaymentDue: &due, PaymentsMade: 1, Version: 4}

	loans.On("GetByID", mock.Anything, id).Return(v3, nil).Once()
	loans.On("GetByID", mock.Anything, id).Return(v4, nil).Once()
	payments.On("GetByLedgerRef", mock.Anything, "0xretry").Return(nil, repository.ErrNotFound)
	gateway.On("ConfirmRepayment", mock.Anything, "0xretry", "", mock.Anything).Return(nil).Once()
	payments.On("RecordPayment", mock.Anything, mock.Anything, mock.Anything, 3).Return(repository.ErrVersionConflict).Once()
	payments.On("RecordPayment", mock.Anything, mock.Anything, mock.MatchedBy(func(l *domain.Loan) bool {
		return l.RemainingBalance.Equal(dec("100")) && l.PaymentsMade == 2
	}), 4).Return(nil).Once()

	result, err := svc.ApplyPayment(context.Background(), &domain.MakePaymentRequest{
		LoanID: id, WalletAddress: "0xabc", Amount: dec("50"), LedgerRef: "0xretry",
	})
	require.NoError(t, err)
	assert.True(t, result.RemainingBalance.Equal(dec("100")))

	gateway.AssertNumberOfCalls(t, "ConfirmRepayment", 1)
	payments.AssertExpectations(t)
	loans.AssertExpectations(t)
}

func TestApplyPayment_RefreshesCacheWithStoredVersion(t *testing.T) {
	tests := []struct {
		name   string
		setErr error
	}{
		{"refreshed", nil},
		{"falls back to invalidation", errors.New("redis down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loans := &mocks.MockLoanRepository{}
			payments := &mocks.MockPaymentRepository{}
			gateway := &mocks.MockGateway{}
			loanCache := &mocks.MockLoanCache{}
			svc := NewPaymentService(loans, payments, gateway, loanCache, config.Default(), logging.Discard())

			id := uuid.New()
			due := fixedNow.Add(time.Hour)
			loan := &domain.Loan{ID: id, LedgerRef: "0xapp", Status: domain.LoanStatusDisbursed, RemainingBalance: dec("200"), NextPaymentDue: &due, Version: 7}

			loans.On("GetByID", mock.Anything, id).Return(loan, nil).Once()
			payments.On("GetByLedgerRef", mock.Anything, "0xcached").Return(nil, repository.ErrNotFound)
			gateway.On("ConfirmRepayment", mock.Anything, "0xcached", "0xapp", mock.Anything).Return(nil).Once()
			payments.On("RecordPayment", mock.Anything, mock.Anything, mock.Anything, 7).Return(nil).Once()
			loanCache.On("Set", mock.Anything, mock.MatchedBy(func(l *domain.Loan) bool {
				return l.Version == 8 && l.RemainingBalance.Equal(dec("150"))
			})).Return(tt.setErr).Once()
			if tt.setErr != nil {
				loanCache.On("Invalidate", mock.Anything, id).Return(nil).Once()
			}

			_, err := svc.ApplyPayment(context.Background(), &domain.MakePaymentRequest{
				LoanID: id, Amount: dec("50"), LedgerRef: "0xcached",
			})
			require.NoError(t, err)
			loanCache.AssertExpectations(t)
		})
	}
}

func TestApplyPayment_DuplicateRaceReturnsStoredResult(t *testing.T) {
	loans := &mocks.MockLoanRepository{}
	payments := &mocks.MockPaymentRepository{}
	gateway := &mocks.MockGateway{}
	svc := NewPaymentService(loans, payments, gateway, nil, config.Default(), logging.Discard())

	id := uuid.New()
	loan := &domain.Loan{ID: id, Status: domain.LoanStatusDisbursed, RemainingBalance: dec("200"), Version: 3}
	winner := &domain.Payment{ID: uuid.New(), LoanID: id, LedgerRef: "0xrace", BalanceAfter: dec("150")}

	loans.On("GetByID", mock.Anything, id).Return(loan, nil)
	payments.On("GetByLedgerRef", mock.Anything, "0xrace").Return(nil, repository.ErrNotFound).Once()
	gateway.On("ConfirmRepayment", mock.Anything, "0xrace", "", mock.Anything).Return(nil)
	payments.On("RecordPayment", mock.Anything, mock.Anything, mock.Anything, 3).Return(repository.ErrDuplicateLedgerRef).Once()
	payments.On("GetByLedgerRef", mock.Anything, "0xrace").Return(winner, nil).Once()

	result, err := svc.ApplyPayment(context.Background(), &domain.MakePaymentRequest{
		LoanID: id, WalletAddress: "0xabc", Amount: dec("50"), LedgerRef: "0xrace",
	})
	require.NoError(t, err)
	assert.True(t, result.Replayed)
	assert.Equal(t, winner.ID, result.PaymentID)
	assert.True(t, result.RemainingBalance.Equal(dec("150")))
}

func TestApplyPayment_StoreFailureIsUnavailable(t *testing.T) {
	loans := &mocks.MockLoanRepository{}
	payments := &mocks.MockPaymentRepository{}
	svc := NewPaymentService(loans, payments, &mocks.MockGateway{}, nil, config.Default(), logging.Discard())

	id := uuid.New()
	loans.On("GetByID", mock.Anything, id).Return(nil, errors.New("connection reset"))

	_, err := svc.ApplyPayment(context.Background(), &domain.MakePaymentRequest{LoanID: id, Amount: dec("5")})
	assert.Equal(t, customError.ErrCodeDatabaseError, customError.Code(err))
	assert.True(t, errors.Is(err, customError.ErrUnavailable))
}
