package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/openshelter/lending-engine/internal/domain"
	"github.com/openshelter/lending-engine/internal/ledger"
	"github.com/openshelter/lending-engine/internal/repository"
	customError "github.com/openshelter/lending-engine/pkg/errors"
	"github.com/openshelter/lending-engine/pkg/utils"
)

type UserService struct {
	users  repository.UserRepository
	ledger ledger.Gateway
	logger *slog.Logger
	now    Clock
}

func NewUserService(users repository.UserRepository, gateway ledger.Gateway, logger *slog.Logger) *UserService {
	return &UserService{
		users:  users,
		ledger: gateway,
		logger: logger,
		now:    systemClock,
	}
}

// CreateUser registers an identity. Wallet and email are each unique.
func (s *UserService) CreateUser(ctx context.Context, request *domain.CreateUserRequest) (*domain.User, error) {
	wallet := utils.NormalizeWallet(request.WalletAddress)
	email := strings.ToLower(strings.TrimSpace(request.Email))
	if wallet == "" {
		return nil, customError.WrapInvalidArgument("walletAddress is required")
	}
	if email == "" {
		return nil, customError.WrapInvalidArgument("email is required")
	}

	exists, err := s.users.ExistsByWalletOrEmail(ctx, wallet, email)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if exists {
		return nil, customError.WrapConflict("User already exists with this wallet or email")
	}

	ledgerRef := strings.TrimSpace(request.LedgerRef)
	if ledgerRef != "" {
		if err := s.ledger.ConfirmTransaction(ctx, ledgerRef); err != nil {
			return nil, ledgerError(ledgerRef, err)
		}
	}

	now := s.now()
	user := &domain.User{
		ID:            uuid.New(),
		WalletAddress: wallet,
		Name:          strings.TrimSpace(request.Name),
		Email:         email,
		Phone:         request.Phone,
		Country:       request.Country,
		Document:      request.Document,
		DocumentHash:  request.DocumentHash,
		LedgerRef:     ledgerRef,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, customError.WrapConflict("User already exists with this wallet or email")
		}
		return nil, customError.WrapDatabaseError(err)
	}

	s.logger.Info("user registered", "user_id", user.ID, "wallet", wallet)
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, wallet string) (*domain.User, error) {
	wallet = utils.NormalizeWallet(wallet)
	user, err := s.users.GetByWallet(ctx, wallet)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapNotFound("User", wallet)
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return user, nil
}

// UpdateUser changes the fields set in request and leaves the rest alone.
func (s *UserService) UpdateUser(ctx context.Context, wallet string, request *domain.UpdateUserRequest) (*domain.User, error) {
	if request.ReputationScore != nil && *request.ReputationScore < 0 {
		return nil, customError.WrapInvalidArgument("reputationScore must not be negative")
	}

	user, err := s.GetUser(ctx, wallet)
	if err != nil {
		return nil, err
	}

	if request.Verified != nil {
		user.Verified = *request.Verified
	}
	if request.ReputationScore != nil {
		user.ReputationScore = *request.ReputationScore
	}
	user.UpdatedAt = s.now()

	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SyncCredentials refreshes the reputation score and SBT flags from the ledger.
func (s *UserService) SyncCredentials(ctx context.Context, wallet string) (*domain.User, error) {
	user, err := s.GetUser(ctx, wallet)
	if err != nil {
		return nil, err
	}

	score, err := s.ledger.QueryReputationScore(ctx, user.WalletAddress)
	if err != nil {
		return nil, ledgerError("reputation query", err)
	}
	verified, err := s.ledger.QueryCredential(ctx, user.WalletAddress, ledger.CredentialVerification)
	if err != nil {
		return nil, ledgerError("verification credential query", err)
	}
	visa, err := s.ledger.QueryCredential(ctx, user.WalletAddress, ledger.CredentialVisa)
	if err != nil {
		return nil, ledgerError("visa credential query", err)
	}

	user.ReputationScore = score
	user.HasVerificationSBT = verified
	user.HasVisaSBT = visa
	if verified {
		user.Verified = true
	}
	user.UpdatedAt = s.now()

	if err := s.save(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user credentials synced",
		"wallet", user.WalletAddress, "reputation_score", score,
		"has_verification_sbt", verified, "has_visa_sbt", visa)
	return user, nil
}

func (s *UserService) save(ctx context.Context, user *domain.User) error {
	err := s.users.Update(ctx, user)
	if errors.Is(err, repository.ErrNotFound) {
		return customError.WrapNotFound("User", user.WalletAddress)
	}
	if err != nil {
		return customError.WrapDatabaseError(err)
	}
	return nil
}
