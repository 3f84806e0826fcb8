package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/openshelter/lending-engine/internal/domain"
	"github.com/openshelter/lending-engine/internal/ledger"
	"github.com/openshelter/lending-engine/internal/repository"
	customError "github.com/openshelter/lending-engine/pkg/errors"
	"github.com/openshelter/lending-engine/pkg/utils"
)

const applicationIDAttempts = 3

type VisaService struct {
	visas  repository.VisaRepository
	ledger ledger.Gateway
	logger *slog.Logger
	now    Clock
	// newID is swapped in tests to force identifier collisions.
	newID func(year int) string
}

func NewVisaService(visas repository.VisaRepository, gateway ledger.Gateway, logger *slog.Logger) *VisaService {
	return &VisaService{
		visas:  visas,
		ledger: gateway,
		logger: logger,
		now:    systemClock,
		newID:  newApplicationID,
	}
}

// newApplicationID returns VA-<year>-<8 upper-case hex digits>.
func newApplicationID(year int) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("VA-%d-%s", year, strings.ToUpper(suffix))
}

// Create files a new application. It always starts pending.
func (s *VisaService) Create(ctx context.Context, request *domain.CreateVisaApplicationRequest) (*domain.VisaApplication, error) {
	wallet := utils.NormalizeWallet(request.WalletAddress)
	if wallet == "" {
		return nil, customError.WrapInvalidArgument("walletAddress is required")
	}

	now := s.now()
	app := &domain.VisaApplication{
		ID:                      uuid.New(),
		FullName:                request.FullName,
		DateOfBirth:             request.DateOfBirth,
		Nationality:             request.Nationality,
		PassportNumber:          request.PassportNumber,
		DestinationCountry:      request.DestinationCountry,
		VisaType:                request.VisaType,
		PurposeOfTravel:         request.PurposeOfTravel,
		PlannedDuration:         request.PlannedDuration,
		ContactEmail:            request.ContactEmail,
		ContactPhone:            request.ContactPhone,
		WalletAddress:           wallet,
		Status:                  domain.VisaStatusPending,
		EstimatedProcessingTime: domain.DefaultVisaProcessingTime,
		SubmittedAt:             now,
		UpdatedAt:               now,
	}

	for attempt := 0; attempt < applicationIDAttempts; attempt++ {
		app.ApplicationID = s.newID(now.Year())
		err := s.visas.Create(ctx, app)
		if err == nil {
			s.logger.Info("visa application submitted",
				"application_id", app.ApplicationID, "wallet", wallet, "visa_type", app.VisaType)
			return app, nil
		}
		if !errors.Is(err, repository.ErrDuplicateApplication) {
			return nil, customError.WrapDatabaseError(err)
		}
	}
	return nil, customError.WrapConflict("could not allocate a unique application id")
}

func (s *VisaService) Get(ctx context.Context, applicationID string) (*domain.VisaApplication, error) {
	app, err := s.visas.GetByApplicationID(ctx, applicationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapNotFound("Visa application", applicationID)
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return app, nil
}

// List returns the wallet's applications, or all of them, newest first.
func (s *VisaService) List(ctx context.Context, wallet string) ([]*domain.VisaApplication, error) {
	apps, err := s.visas.List(ctx, utils.NormalizeWallet(wallet))
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return apps, nil
}

// Update applies the fields set in request. Writing the current status again
// keeps the original decision timestamp.
func (s *VisaService) Update(ctx context.Context, applicationID string, request *domain.UpdateVisaApplicationRequest) (*domain.VisaApplication, error) {
	var target domain.VisaStatus
	if request.Status != nil {
		status, ok := domain.ParseVisaStatus(strings.ToLower(strings.TrimSpace(*request.Status)))
		if !ok {
			return nil, customError.WrapInvalidArgument("unknown visa application status %q", *request.Status)
		}
		target = status
	}
	if p := request.ProcessingProgress; p != nil && (*p < 0 || *p > 100) {
		return nil, customError.WrapInvalidArgument("processingProgress must be between 0 and 100")
	}

	var ledgerRef string
	if request.LedgerRef != nil {
		ledgerRef = strings.TrimSpace(*request.LedgerRef)
	}
	confirmed := false

	for attempt := 0; attempt < applicationIDAttempts; attempt++ {
		app, err := s.Get(ctx, applicationID)
		if err != nil {
			return nil, err
		}
		expected := app.Status
		now := s.now()

		if target != "" && target != app.Status {
			if !app.Status.CanTransitionTo(target) {
				return nil, customError.WrapIllegalTransition("Visa application", string(app.Status), string(target))
			}
			app.Status = target
			switch target {
			case domain.VisaStatusApproved:
				app.ApprovedAt = &now
			case domain.VisaStatusRejected:
				app.RejectedAt = &now
			}
		}

		if ledgerRef != "" && !confirmed {
			if err := s.ledger.ConfirmTransaction(ctx, ledgerRef); err != nil {
				return nil, ledgerError(ledgerRef, err)
			}
			confirmed = true
		}
		if ledgerRef != "" {
			ref := ledgerRef
			app.LedgerRef = &ref
		}
		if request.HasVisaSBT != nil {
			app.HasVisaSBT = *request.HasVisaSBT
		}
		if request.ProcessingProgress != nil {
			app.ProcessingProgress = *request.ProcessingProgress
		}
		app.UpdatedAt = now

		err = s.visas.Update(ctx, app, expected)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, customError.WrapDatabaseError(err)
		}

		s.logger.Info("visa application updated",
			"application_id", app.ApplicationID, "status", app.Status, "progress", app.ProcessingProgress)
		return app, nil
	}
	return nil, customError.WrapConflict(
		fmt.Sprintf("visa application %s changed status concurrently, retry the request", applicationID))
}
