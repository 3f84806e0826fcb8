package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/openshelter/lending-engine/internal/cache"
	"github.com/openshelter/lending-engine/internal/config"
	"github.com/openshelter/lending-engine/internal/domain"
	"github.com/openshelter/lending-engine/internal/ledger"
	"github.com/openshelter/lending-engine/internal/metrics"
	"github.com/openshelter/lending-engine/internal/repository"
	customError "github.com/openshelter/lending-engine/pkg/errors"
	"github.com/openshelter/lending-engine/pkg/utils"
)

// PaymentService reconciles confirmed repayments against loan balances.
type PaymentService struct {
	loans    repository.LoanRepository
	payments repository.PaymentRepository
	ledger   ledger.Gateway
	cache    cache.LoanCache
	config   *config.Config
	logger   *slog.Logger
	now      Clock
}

func NewPaymentService(
	loans repository.LoanRepository,
	payments repository.PaymentRepository,
	gateway ledger.Gateway,
	loanCache cache.LoanCache,
	cfg *config.Config,
	logger *slog.Logger,
) *PaymentService {
	if loanCache == nil {
		loanCache = cache.Noop{}
	}
	return &PaymentService{
		loans:    loans,
		payments: payments,
		ledger:   gateway,
		cache:    loanCache,
		config:   cfg,
		logger:   logger,
		now:      systemClock,
	}
}

// ApplyPayment records one repayment and the loan balance change it causes in a
// single store transaction. Calls repeating a ledger reference return the
// result of the first call and change nothing.
func (s *PaymentService) ApplyPayment(ctx context.Context, request *domain.MakePaymentRequest) (*domain.PaymentResult, error) {
	ledgerRef := strings.TrimSpace(request.LedgerRef)

	var (
		confirmed bool
		lastErr   error
	)
	for attempt := 0; attempt < retries(s.config.Business.MaxUpdateRetries); attempt++ {
		loan, err := s.loans.GetByID(ctx, request.LoanID)
		if err != nil {
			return nil, loanLookupError(request.LoanID, err)
		}

		if !request.Amount.IsPositive() {
			return nil, customError.WrapInvalidArgument("amount must be greater than 0")
		}
		if !utils.IsCents(request.Amount) {
			return nil, customError.WrapInvalidArgument("amount must have at most 2 decimal places")
		}

		if ledgerRef != "" {
			result, found, err := s.replay(ctx, loan, ledgerRef)
			if err != nil || found {
				return result, err
			}
		}

		if loan.Status != domain.LoanStatusDisbursed {
			if confirmed {
				// A concurrent write moved the loan on after the ledger confirmed.
				s.logger.Error("ledger-confirmed repayment was not stored",
					"loan_id", loan.ID, "ledger_ref", ledgerRef, "status", loan.Status,
					"amount", request.Amount.String())
			}
			return nil, customError.WrapIllegalState(
				fmt.Sprintf("loan %s is %s, payments are only accepted on disbursed loans", loan.ID, loan.Status))
		}

		if ledgerRef != "" && isLoanLedgerRef(loan, ledgerRef) {
			return nil, customError.WrapConflict(
				fmt.Sprintf("ledger transaction %s belongs to the loan's lifecycle, not a repayment", ledgerRef))
		}

		if !confirmed {
			if ledgerRef == "" {
				ref, err := s.ledger.SubmitRepayment(ctx, loan.LedgerRef, request.Amount)
				if err != nil {
					return nil, ledgerError("repayment", err)
				}
				ledgerRef = ref
			} else if err := s.ledger.ConfirmRepayment(ctx, ledgerRef, loan.LedgerRef, request.Amount); err != nil {
				return nil, ledgerError(ledgerRef, err)
			}
			confirmed = true
		}

		payment, next, expected := s.settle(loan, request, ledgerRef)

		err = s.payments.RecordPayment(ctx, payment, next, expected)
		switch {
		case err == nil:
			refreshCache(ctx, s.cache, s.logger, next)
			metrics.PaymentsApplied.WithLabelValues(metrics.OutcomeApplied).Inc()
			if next.Status == domain.LoanStatusCompleted {
				metrics.LoanTransitions.WithLabelValues(string(domain.LoanStatusCompleted)).Inc()
			}
			s.logger.Info("payment applied",
				"loan_id", next.ID, "payment_id", payment.ID, "amount", payment.Amount.String(),
				"remaining_balance", next.RemainingBalance.String(), "status", next.Status,
				"ledger_ref", ledgerRef)
			return &domain.PaymentResult{
				PaymentID:        payment.ID,
				RemainingBalance: next.RemainingBalance,
				LoanStatus:       next.Status,
			}, nil

		case errors.Is(err, repository.ErrDuplicateLedgerRef):
			// A concurrent call with the same reference committed first.
			current, err := s.loans.GetByID(ctx, request.LoanID)
			if err != nil {
				return nil, loanLookupError(request.LoanID, err)
			}
			result, found, err := s.replay(ctx, current, ledgerRef)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, customError.WrapDatabaseError(repository.ErrDuplicateLedgerRef)
			}
			return result, nil

		case errors.Is(err, repository.ErrVersionConflict):
			metrics.VersionConflicts.WithLabelValues("payment").Inc()
			s.logger.Debug("loan version conflict, retrying payment",
				"loan_id", request.LoanID, "attempt", attempt+1, "ledger_ref", ledgerRef)
			lastErr = err
			continue

		default:
			s.logger.Error("ledger-confirmed repayment was not stored",
				"loan_id", request.LoanID, "ledger_ref", ledgerRef, "error", err)
			return nil, customError.WrapDatabaseError(err)
		}
	}

	s.logger.Error("ledger-confirmed repayment was not stored after retries",
		"loan_id", request.LoanID, "ledger_ref", ledgerRef)
	return nil, customError.WrapConcurrentModification(request.LoanID.String(), lastErr)
}

// settle builds the payment record and the loan as it stands once the payment
// is applied. The returned version is the one the write must match.
func (s *PaymentService) settle(loan *domain.Loan, request *domain.MakePaymentRequest, ledgerRef string) (*domain.Payment, *domain.Loan, int) {
	now := s.now()
	expected := loan.Version

	payer := utils.NormalizeWallet(request.WalletAddress)
	if payer == "" {
		payer = loan.WalletAddress
	}

	next := loan.Clone()
	next.RemainingBalance = utils.ApplyAmount(loan.RemainingBalance, request.Amount)
	next.PaymentsMade++
	next.UpdatedAt = now
	if next.RemainingBalance.IsZero() {
		next.Status = domain.LoanStatusCompleted
		next.CompletedAt = &now
		next.NextPaymentDue = nil
	} else {
		due := utils.NextDueDate(now, s.config.Business.PaymentIntervalDays)
		next.NextPaymentDue = &due
	}

	payment := &domain.Payment{
		ID:            uuid.New(),
		LoanID:        loan.ID,
		WalletAddress: payer,
		Amount:        request.Amount,
		PaymentMethod: request.PaymentMethod,
		LedgerRef:     ledgerRef,
		Status:        domain.PaymentStatusCompleted,
		BalanceAfter:  next.RemainingBalance,
		PaidAt:        now,
		CreatedAt:     now,
	}
	return payment, next, expected
}

// isLoanLedgerRef reports whether ref is the application or last status
// transaction of loan.
func isLoanLedgerRef(loan *domain.Loan, ref string) bool {
	if strings.EqualFold(ref, loan.LedgerRef) {
		return true
	}
	return loan.StatusLedgerRef != nil && strings.EqualFold(ref, *loan.StatusLedgerRef)
}

// replay looks up a payment already recorded under ledgerRef.
func (s *PaymentService) replay(ctx context.Context, loan *domain.Loan, ledgerRef string) (*domain.PaymentResult, bool, error) {
	existing, err := s.payments.GetByLedgerRef(ctx, ledgerRef)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, customError.WrapDatabaseError(err)
	}

	if existing.LoanID != loan.ID {
		return nil, true, customError.WrapConflict(
			fmt.Sprintf("ledger transaction %s was already applied to another loan", ledgerRef))
	}

	metrics.PaymentsApplied.WithLabelValues(metrics.OutcomeReplayed).Inc()
	s.logger.Info("payment replayed", "loan_id", loan.ID, "payment_id", existing.ID, "ledger_ref", ledgerRef)

	return &domain.PaymentResult{
		PaymentID:        existing.ID,
		RemainingBalance: existing.BalanceAfter,
		LoanStatus:       loan.Status,
		Replayed:         true,
	}, true, nil
}

// ListPayments returns payments matching filter, newest first.
func (s *PaymentService) ListPayments(ctx context.Context, filter domain.PaymentFilter) ([]*domain.Payment, error) {
	filter.WalletAddress = utils.NormalizeWallet(filter.WalletAddress)
	payments, err := s.payments.List(ctx, filter)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return payments, nil
}

