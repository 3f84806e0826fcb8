package repository

import (
	"context"

	"github.com/openshelter/lending-engine/internal/domain"

	"github.com/jmoiron/sqlx"
)

const userColumns = `id, wallet_address, name, email, phone, country, document, document_hash,
	ledger_ref, verified, reputation_score, has_verification_sbt, has_visa_sbt, created_at, updated_at`

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (:id, :wallet_address, :name, :email, :phone, :country, :document, :document_hash,
			:ledger_ref, :verified, :reputation_score, :has_verification_sbt, :has_visa_sbt,
			:created_at, :updated_at)
	`

	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		switch uniqueConstraint(err) {
		case "users_wallet_address_key", "users_email_key":
			return ErrDuplicateUser
		}
		return err
	}
	return nil
}

func (r *userRepository) GetByWallet(ctx context.Context, walletAddress string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE wallet_address = $1`

	var user domain.User
	if err := r.db.GetContext(ctx, &user, query, walletAddress); err != nil {
		return nil, translate(err)
	}

	return &user, nil
}

func (r *userRepository) ExistsByWalletOrEmail(ctx context.Context, walletAddress, email string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE wallet_address = $1 OR email = $2)`

	var exists bool
	err := r.db.GetContext(ctx, &exists, query, walletAddress, email)
	return exists, err
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET verified = $2, reputation_score = $3, has_verification_sbt = $4, has_visa_sbt = $5, updated_at = $6
		WHERE wallet_address = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		user.WalletAddress,
		user.Verified,
		user.ReputationScore,
		user.HasVerificationSBT,
		user.HasVisaSBT,
		user.UpdatedAt,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
