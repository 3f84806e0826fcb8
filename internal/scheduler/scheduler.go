package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/openshelter/lending-engine/internal/config"
	"github.com/openshelter/lending-engine/internal/domain"
	"github.com/openshelter/lending-engine/internal/metrics"
	customError "github.com/openshelter/lending-engine/pkg/errors"
	"github.com/robfig/cron/v3"
)

const (
	JobDefaultSweep = "default_sweep"
	JobReminders    = "payment_reminders"
)

// LoanService is the part of the loan engine the jobs drive.
type LoanService interface {
	ListDueBefore(ctx context.Context, t time.Time) ([]*domain.Loan, error)
	ListDueBetween(ctx context.Context, from, to time.Time) ([]*domain.Loan, error)
	Transition(ctx context.Context, loanID uuid.UUID, target string, ledgerRef string) (*domain.Loan, error)
}

type Jobs struct {
	loans   LoanService
	config  *config.Config
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration
}

func NewJobs(loans LoanService, cfg *config.Config, logger *slog.Logger) *Jobs {
	return &Jobs{
		loans:   loans,
		config:  cfg,
		logger:  logger.With("component", "scheduler"),
		now:     func() time.Time { return time.Now().UTC() },
		timeout: 5 * time.Minute,
	}
}

// SweepResult counts what one run of DefaultSweep did.
type SweepResult struct {
	Checked   int
	Defaulted int
	Skipped   int
}

// DefaultSweep moves disbursed loans whose next due date is more than the
// grace period in the past to defaulted. A loan that changed state under the
// sweep (paid off, already defaulted) is skipped, not failed.
func (j *Jobs) DefaultSweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	cutoff := j.now().AddDate(0, 0, -j.config.Business.DefaultGraceDays)
	loans, err := j.loans.ListDueBefore(ctx, cutoff)
	if err != nil {
		return result, fmt.Errorf("list overdue loans: %w", err)
	}

	var errs []error
	for _, loan := range loans {
		result.Checked++

		_, err := j.loans.Transition(ctx, loan.ID, string(domain.LoanStatusDefaulted), "")
		switch {
		case err == nil:
			result.Defaulted++
			j.logger.Warn("loan defaulted",
				"loan_id", loan.ID, "wallet", loan.WalletAddress, "next_payment_due", loan.NextPaymentDue)
		case errors.Is(err, customError.ErrIllegalTransition):
			result.Skipped++
		default:
			errs = append(errs, fmt.Errorf("default loan %s: %w", loan.ID, err))
		}
	}

	return result, errors.Join(errs...)
}

// Reminders logs one reminder per disbursed loan due within the reminder window.
func (j *Jobs) Reminders(ctx context.Context) (int, error) {
	now := j.now()
	until := now.AddDate(0, 0, j.config.Business.ReminderWindowDays)

	loans, err := j.loans.ListDueBetween(ctx, now, until)
	if err != nil {
		return 0, fmt.Errorf("list upcoming payments: %w", err)
	}

	for _, loan := range loans {
		j.logger.Info("payment reminder",
			"loan_id", loan.ID,
			"wallet", loan.WalletAddress,
			"amount_due", loan.MonthlyPayment.StringFixed(2),
			"next_payment_due", loan.NextPaymentDue,
		)
	}
	return len(loans), nil
}

// Register schedules both jobs on c using the configured cron specs.
func (j *Jobs) Register(c *cron.Cron) error {
	if _, err := c.AddFunc(j.config.Scheduler.DefaultSweepSpec, j.run(JobDefaultSweep, func(ctx context.Context) error {
		result, err := j.DefaultSweep(ctx)
		j.logger.Info("default sweep finished",
			"checked", result.Checked, "defaulted", result.Defaulted, "skipped", result.Skipped)
		return err
	})); err != nil {
		return fmt.Errorf("schedule %s: %w", JobDefaultSweep, err)
	}

	if _, err := c.AddFunc(j.config.Scheduler.ReminderSpec, j.run(JobReminders, func(ctx context.Context) error {
		sent, err := j.Reminders(ctx)
		j.logger.Info("payment reminders finished", "sent", sent)
		return err
	})); err != nil {
		return fmt.Errorf("schedule %s: %w", JobReminders, err)
	}

	return nil
}

func (j *Jobs) run(name string, job func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		defer cancel()

		j.logger.Info("running job", "job", name)
		if err := job(ctx); err != nil {
			metrics.SchedulerRuns.WithLabelValues(name, "error").Inc()
			j.logger.Error("job failed", "job", name, "error", err)
			return
		}
		metrics.SchedulerRuns.WithLabelValues(name, "ok").Inc()
	}
}
