package domain

import (
	"time"

	"github.com/google/uuid"
)

type VisaStatus string

const (
	VisaStatusPending  VisaStatus = "pending"
	VisaStatusApproved VisaStatus = "approved"
	VisaStatusRejected VisaStatus = "rejected"
)

const DefaultVisaProcessingTime = "4-8 weeks"

var visaTransitions = map[VisaStatus][]VisaStatus{
	VisaStatusPending:  {VisaStatusApproved, VisaStatusRejected},
	VisaStatusApproved: nil,
	VisaStatusRejected: nil,
}

func ParseVisaStatus(s string) (VisaStatus, bool) {
	status := VisaStatus(s)
	_, ok := visaTransitions[status]
	return status, ok
}

func (s VisaStatus) CanTransitionTo(next VisaStatus) bool {
	for _, allowed := range visaTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// VisaApplication is a travel-credential request tracked outside the loan core.
type VisaApplication struct {
	ID                      uuid.UUID  `json:"id" db:"id"`
	ApplicationID           string     `json:"application_id" db:"application_id"`
	FullName                string     `json:"full_name" db:"full_name"`
	DateOfBirth             string     `json:"date_of_birth" db:"date_of_birth"`
	Nationality             string     `json:"nationality" db:"nationality"`
	PassportNumber          string     `json:"passport_number" db:"passport_number"`
	DestinationCountry      string     `json:"destination_country" db:"destination_country"`
	VisaType                string     `json:"visa_type" db:"visa_type"`
	PurposeOfTravel         string     `json:"purpose_of_travel" db:"purpose_of_travel"`
	PlannedDuration         string     `json:"planned_duration" db:"planned_duration"`
	ContactEmail            string     `json:"contact_email" db:"contact_email"`
	ContactPhone            string     `json:"contact_phone" db:"contact_phone"`
	WalletAddress           string     `json:"wallet_address" db:"wallet_address"`
	Status                  VisaStatus `json:"status" db:"status"`
	HasVisaSBT              bool       `json:"has_visa_sbt" db:"has_visa_sbt"`
	ProcessingProgress      int        `json:"processing_progress" db:"processing_progress"`
	LedgerRef               *string    `json:"ledger_ref,omitempty" db:"ledger_ref"`
	EstimatedProcessingTime string     `json:"estimated_processing_time" db:"estimated_processing_time"`
	SubmittedAt             time.Time  `json:"submitted_at" db:"submitted_at"`
	ApprovedAt              *time.Time `json:"approved_at" db:"approved_at"`
	RejectedAt              *time.Time `json:"rejected_at" db:"rejected_at"`
	UpdatedAt               time.Time  `json:"updated_at" db:"updated_at"`
}

type CreateVisaApplicationRequest struct {
	FullName           string `json:"fullName" validate:"required,max=200"`
	DateOfBirth        string `json:"dateOfBirth"`
	Nationality        string `json:"nationality" validate:"required"`
	PassportNumber     string `json:"passportNumber" validate:"required"`
	DestinationCountry string `json:"destinationCountry" validate:"required"`
	VisaType           string `json:"visaType" validate:"required"`
	PurposeOfTravel    string `json:"purposeOfTravel"`
	PlannedDuration    string `json:"plannedDuration"`
	ContactEmail       string `json:"contactEmail" validate:"omitempty,email"`
	ContactPhone       string `json:"contactPhone"`
	WalletAddress      string `json:"walletAddress" validate:"required"`
}

type CreateVisaApplicationResponse struct {
	ApplicationID string    `json:"applicationId"`
	ID            uuid.UUID `json:"id"`
}

// UpdateVisaApplicationRequest carries optional fields; nil means leave unchanged.
type UpdateVisaApplicationRequest struct {
	Status             *string `json:"status,omitempty"`
	HasVisaSBT         *bool   `json:"hasVisaSBT,omitempty"`
	ProcessingProgress *int    `json:"processingProgress,omitempty" validate:"omitempty,gte=0,lte=100"`
	LedgerRef          *string `json:"transactionHash,omitempty"`
}
