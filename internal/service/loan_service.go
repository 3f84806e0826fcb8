package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openshelter/lending-engine/internal/cache"
	"github.com/openshelter/lending-engine/internal/config"
	"github.com/openshelter/lending-engine/internal/domain"
	"github.com/openshelter/lending-engine/internal/ledger"
	"github.com/openshelter/lending-engine/internal/metrics"
	"github.com/openshelter/lending-engine/internal/repository"
	customError "github.com/openshelter/lending-engine/pkg/errors"
	"github.com/openshelter/lending-engine/pkg/utils"
	"github.com/shopspring/decimal"
)

// LoanService owns the loan state machine. Every write happens only after the
// ledger transaction it depends on is confirmed.
type LoanService struct {
	loans  repository.LoanRepository
	ledger ledger.Gateway
	cache  cache.LoanCache
	config *config.Config
	logger *slog.Logger
	now    Clock
}

func NewLoanService(
	loans repository.LoanRepository,
	gateway ledger.Gateway,
	loanCache cache.LoanCache,
	cfg *config.Config,
	logger *slog.Logger,
) *LoanService {
	if loanCache == nil {
		loanCache = cache.Noop{}
	}
	return &LoanService{
		loans:  loans,
		ledger: gateway,
		cache:  loanCache,
		config: cfg,
		logger: logger,
		now:    systemClock,
	}
}

// Apply records a new pending loan.
func (s *LoanService) Apply(ctx context.Context, request *domain.CreateLoanRequest) (*domain.Loan, error) {
	wallet := utils.NormalizeWallet(request.WalletAddress)
	if wallet == "" {
		return nil, customError.WrapInvalidArgument("walletAddress is required")
	}
	if !request.Amount.IsPositive() {
		return nil, customError.WrapInvalidArgument("amount must be greater than 0")
	}
	if request.TermMonths <= 0 {
		return nil, customError.WrapInvalidArgument("termMonths must be greater than 0")
	}

	rate := s.config.GetDefaultInterestRate()
	if request.InterestRate != nil {
		rate = *request.InterestRate
	}
	if rate.IsNegative() {
		return nil, customError.WrapInvalidArgument("interestRate must not be negative")
	}
	if !utils.IsCents(request.Amount) {
		return nil, customError.WrapInvalidArgument("amount must have at most 2 decimal places")
	}

	monthly := utils.CalculateMonthlyPayment(request.Amount, rate, request.TermMonths)
	remaining := utils.GrossRepayment(request.Amount, rate).Round(2)
	if !monthly.IsPositive() || !remaining.IsPositive() {
		return nil, customError.WrapInvalidArgument(
			"amount %s is too small to repay over %d months", request.Amount.String(), request.TermMonths)
	}

	// Ledger first: confirm the wallet's own transaction or submit one.
	ledgerRef := strings.TrimSpace(request.LedgerRef)
	if ledgerRef != "" {
		if err := s.ledger.ConfirmTransaction(ctx, ledgerRef); err != nil {
			return nil, ledgerError(ledgerRef, err)
		}
	} else {
		ref, err := s.ledger.SubmitLoanApplication(ctx, request.Amount, request.TermMonths, request.Purpose)
		if err != nil {
			return nil, ledgerError("loan application", err)
		}
		ledgerRef = ref
	}

	now := s.now()
	loan := &domain.Loan{
		ID:               uuid.New(),
		WalletAddress:    wallet,
		Amount:           request.Amount,
		TermMonths:       request.TermMonths,
		Purpose:          request.Purpose,
		InterestRate:     rate,
		MonthlyPayment:   monthly,
		TotalRepayment:   utils.CalculateTotalRepayment(monthly, request.TermMonths),
		Status:           domain.LoanStatusPending,
		RemainingBalance: remaining,
		LedgerRef:        ledgerRef,
		AppliedAt:        now,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.loans.Create(ctx, loan); err != nil {
		s.logger.Error("ledger-confirmed loan application was not stored",
			"ledger_ref", ledgerRef, "wallet", wallet, "error", err)
		return nil, customError.WrapDatabaseError(err)
	}

	metrics.LoansApplied.Inc()
	s.logger.Info("loan applied",
		"loan_id", loan.ID, "wallet", wallet, "amount", loan.Amount.String(),
		"term_months", loan.TermMonths, "ledger_ref", ledgerRef)

	return loan, nil
}

// Transition moves a loan to target. The write is conditional on the version
// read, and a lost race re-reads and re-validates before trying again.
func (s *LoanService) Transition(ctx context.Context, loanID uuid.UUID, target string, ledgerRef string) (*domain.Loan, error) {
	status, ok := domain.ParseLoanStatus(strings.ToLower(strings.TrimSpace(target)))
	if !ok {
		return nil, customError.WrapInvalidArgument("unknown loan status %q", target)
	}
	ledgerRef = strings.TrimSpace(ledgerRef)

	var (
		confirmed bool
		lastErr   error
	)
	for attempt := 0; attempt < retries(s.config.Business.MaxUpdateRetries); attempt++ {
		loan, err := s.loans.GetByID(ctx, loanID)
		if err != nil {
			return nil, loanLookupError(loanID, err)
		}

		if !loan.Status.CanTransitionTo(status) {
			return nil, customError.WrapIllegalTransition("Loan", string(loan.Status), string(status))
		}

		if status == domain.LoanStatusApproved {
			if err := s.checkReputation(ctx, loan.WalletAddress); err != nil {
				return nil, err
			}
		}

		if ledgerRef != "" && !confirmed {
			if err := s.ledger.ConfirmTransaction(ctx, ledgerRef); err != nil {
				return nil, ledgerError(ledgerRef, err)
			}
			confirmed = true
		}

		expected := loan.Version
		s.stamp(loan, status, ledgerRef)

		err = s.loans.Update(ctx, loan, expected)
		if errors.Is(err, repository.ErrVersionConflict) {
			metrics.VersionConflicts.WithLabelValues("transition").Inc()
			s.logger.Debug("loan version conflict, retrying",
				"loan_id", loanID, "attempt", attempt+1, "target", status)
			lastErr = err
			continue
		}
		if err != nil {
			return nil, customError.WrapDatabaseError(err)
		}

		s.refresh(ctx, loan)
		metrics.LoanTransitions.WithLabelValues(string(status)).Inc()
		s.logger.Info("loan status changed",
			"loan_id", loan.ID, "status", status, "version", loan.Version, "ledger_ref", ledgerRef)
		return loan, nil
	}

	return nil, customError.WrapConcurrentModification(loanID.String(), lastErr)
}

// stamp applies the side effects of entering status.
func (s *LoanService) stamp(loan *domain.Loan, status domain.LoanStatus, ledgerRef string) {
	now := s.now()
	loan.Status = status
	loan.UpdatedAt = now
	if ledgerRef != "" {
		ref := ledgerRef
		loan.StatusLedgerRef = &ref
	}

	switch status {
	case domain.LoanStatusApproved:
		loan.ApprovedAt = &now
	case domain.LoanStatusDisbursed:
		due := utils.NextDueDate(now, s.config.Business.PaymentIntervalDays)
		loan.DisbursedAt = &now
		loan.NextPaymentDue = &due
	case domain.LoanStatusCompleted:
		loan.CompletedAt = &now
		loan.RemainingBalance = decimal.Zero
		loan.NextPaymentDue = nil
	case domain.LoanStatusDefaulted:
		loan.DefaultedAt = &now
		loan.NextPaymentDue = nil
	}
}

func (s *LoanService) checkReputation(ctx context.Context, wallet string) error {
	minimum := s.config.Business.MinReputationForApproval
	if minimum <= 0 {
		return nil
	}

	score, err := s.ledger.QueryReputationScore(ctx, wallet)
	if err != nil {
		return ledgerError("reputation query", err)
	}
	if score < minimum {
		return customError.WrapIllegalState(
			fmt.Sprintf("reputation score %d is below the approval threshold %d", score, minimum))
	}
	return nil
}

// Get reads a loan through the cache.
func (s *LoanService) Get(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	cached, err := s.cache.Get(ctx, loanID)
	switch {
	case err == nil:
		metrics.CacheResults.WithLabelValues("hit").Inc()
		return cached, nil
	case errors.Is(err, cache.ErrMiss):
		metrics.CacheResults.WithLabelValues("miss").Inc()
	default:
		metrics.CacheResults.WithLabelValues("error").Inc()
		s.logger.Warn("loan cache read failed", "loan_id", loanID, "error", customError.WrapCacheError(err))
	}

	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, loanLookupError(loanID, err)
	}

	if err := s.cache.Set(ctx, loan); err != nil {
		s.logger.Warn("loan cache write failed", "loan_id", loanID, "error", customError.WrapCacheError(err))
	}
	return loan, nil
}

// List returns the wallet's loans, or every loan when wallet is empty, newest first.
func (s *LoanService) List(ctx context.Context, wallet string) ([]*domain.Loan, error) {
	loans, err := s.loans.List(ctx, utils.NormalizeWallet(wallet))
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return loans, nil
}

// ListDueBefore returns disbursed loans whose next payment was due before t.
func (s *LoanService) ListDueBefore(ctx context.Context, t time.Time) ([]*domain.Loan, error) {
	return s.ListDueBetween(ctx, time.Time{}, t)
}

// ListDueBetween returns disbursed loans with a payment due in [from, to).
func (s *LoanService) ListDueBetween(ctx context.Context, from, to time.Time) ([]*domain.Loan, error) {
	loans, err := s.loans.ListDisbursedDueBetween(ctx, from, to)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return loans, nil
}

func (s *LoanService) refresh(ctx context.Context, loan *domain.Loan) {
	refreshCache(ctx, s.cache, s.logger, loan)
}
