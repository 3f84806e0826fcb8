package repository

import (
	"context"

	"github.com/openshelter/lending-engine/internal/domain"

	"github.com/jmoiron/sqlx"
)

const visaColumns = `id, application_id, full_name, date_of_birth, nationality, passport_number,
	destination_country, visa_type, purpose_of_travel, planned_duration, contact_email, contact_phone,
	wallet_address, status, has_visa_sbt, processing_progress, ledger_ref, estimated_processing_time,
	submitted_at, approved_at, rejected_at, updated_at`

type visaRepository struct {
	db *sqlx.DB
}

func NewVisaRepository(db *sqlx.DB) VisaRepository {
	return &visaRepository{db: db}
}

func (r *visaRepository) Create(ctx context.Context, app *domain.VisaApplication) error {
	query := `
		INSERT INTO visa_applications (` + visaColumns + `)
		VALUES (:id, :application_id, :full_name, :date_of_birth, :nationality, :passport_number,
			:destination_country, :visa_type, :purpose_of_travel, :planned_duration, :contact_email,
			:contact_phone, :wallet_address, :status, :has_visa_sbt, :processing_progress, :ledger_ref,
			:estimated_processing_time, :submitted_at, :approved_at, :rejected_at, :updated_at)
	`

	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		if uniqueConstraint(err) == "visa_applications_application_id_key" {
			return ErrDuplicateApplication
		}
		return err
	}
	return nil
}

func (r *visaRepository) GetByApplicationID(ctx context.Context, applicationID string) (*domain.VisaApplication, error) {
	query := `SELECT ` + visaColumns + ` FROM visa_applications WHERE application_id = $1`

	var app domain.VisaApplication
	if err := r.db.GetContext(ctx, &app, query, applicationID); err != nil {
		return nil, translate(err)
	}

	return &app, nil
}

func (r *visaRepository) List(ctx context.Context, walletAddress string) ([]*domain.VisaApplication, error) {
	query := `SELECT ` + visaColumns + ` FROM visa_applications`
	var args []any
	if walletAddress != "" {
		query += ` WHERE wallet_address = $1`
		args = append(args, walletAddress)
	}
	query += ` ORDER BY submitted_at DESC`

	apps := []*domain.VisaApplication{}
	if err := r.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, err
	}

	return apps, nil
}

func (r *visaRepository) Update(ctx context.Context, app *domain.VisaApplication, expectedStatus domain.VisaStatus) error {
	query := `
		UPDATE visa_applications
		SET status = $2, has_visa_sbt = $3, processing_progress = $4, ledger_ref = $5,
			approved_at = $6, rejected_at = $7, updated_at = $8
		WHERE application_id = $1 AND status = $9
	`

	result, err := r.db.ExecContext(ctx, query,
		app.ApplicationID,
		app.Status,
		app.HasVisaSBT,
		app.ProcessingProgress,
		app.LedgerRef,
		app.ApprovedAt,
		app.RejectedAt,
		app.UpdatedAt,
		expectedStatus,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}
