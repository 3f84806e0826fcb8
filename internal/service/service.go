package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/openshelter/lending-engine/internal/cache"
	"github.com/openshelter/lending-engine/internal/domain"
	"github.com/openshelter/lending-engine/internal/ledger"
	"github.com/openshelter/lending-engine/internal/metrics"
	"github.com/openshelter/lending-engine/internal/repository"
	customError "github.com/openshelter/lending-engine/pkg/errors"
)

// Clock returns the current time. Services take one so tests can pin it.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// ledgerError maps a gateway failure onto the error taxonomy.
func ledgerError(ref string, err error) error {
	if errors.Is(err, ledger.ErrRejected) {
		metrics.LedgerErrors.WithLabelValues("rejected").Inc()
		return customError.WrapRejected(ref, err)
	}
	metrics.LedgerErrors.WithLabelValues("unavailable").Inc()
	return customError.WrapUnavailable("Ledger gateway did not confirm the transaction", err)
}

func loanLookupError(id uuid.UUID, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return customError.WrapNotFound("Loan", id.String())
	}
	return customError.WrapDatabaseError(err)
}

func retries(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// refreshCache stores the loan a write just committed. The cache keeps the
// higher version, so a reader holding an older copy cannot replace it. When the
// write fails the entry is dropped instead.
func refreshCache(ctx context.Context, c cache.LoanCache, logger *slog.Logger, loan *domain.Loan) {
	err := c.Set(ctx, loan)
	if err == nil {
		return
	}
	logger.Warn("loan cache refresh failed", "loan_id", loan.ID, "error", customError.WrapCacheError(err))
	if err := c.Invalidate(ctx, loan.ID); err != nil {
		logger.Warn("loan cache invalidation failed", "loan_id", loan.ID, "error", customError.WrapCacheError(err))
	}
}
