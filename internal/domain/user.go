package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is an identity record keyed by wallet address.
type User struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	WalletAddress      string    `json:"wallet_address" db:"wallet_address"`
	Name               string    `json:"name" db:"name"`
	Email              string    `json:"email" db:"email"`
	Phone              string    `json:"phone" db:"phone"`
	Country            string    `json:"country" db:"country"`
	Document           string    `json:"document" db:"document"`
	DocumentHash       string    `json:"document_hash" db:"document_hash"`
	LedgerRef          string    `json:"ledger_ref" db:"ledger_ref"`
	Verified           bool      `json:"verified" db:"verified"`
	ReputationScore    int       `json:"reputation_score" db:"reputation_score"`
	HasVerificationSBT bool      `json:"has_verification_sbt" db:"has_verification_sbt"`
	HasVisaSBT         bool      `json:"has_visa_sbt" db:"has_visa_sbt"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

type CreateUserRequest struct {
	Name          string `json:"name" validate:"required,max=200"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone" validate:"max=50"`
	Country       string `json:"country" validate:"max=100"`
	Document      string `json:"document" validate:"max=100"`
	WalletAddress string `json:"walletAddress" validate:"required"`
	DocumentHash  string `json:"documentHash"`
	LedgerRef     string `json:"transactionHash"`
}

// UpdateUserRequest carries optional fields; nil means leave unchanged.
type UpdateUserRequest struct {
	Verified        *bool `json:"verified,omitempty"`
	ReputationScore *int  `json:"reputationScore,omitempty" validate:"omitempty,gte=0"`
}

type CreateUserResponse struct {
	UserID uuid.UUID `json:"userId"`
}
