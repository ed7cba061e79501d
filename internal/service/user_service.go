package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/taskhub-api/internal/domain"
	"github.com/avolkov/taskhub-api/internal/platform/logger"
	"github.com/avolkov/taskhub-api/internal/service/auth"
	"github.com/avolkov/taskhub-api/internal/store"
)

// UserService implements account registration and profile management.
type UserService struct {
	users        store.UserStore
	hasher       auth.PasswordHasher
	verification *VerificationService
	timeFunc     func() time.Time
}

// NewUserService creates a new UserService.
func NewUserService(
	users store.UserStore,
	hasher auth.PasswordHasher,
	verification *VerificationService,
) *UserService {
	return &UserService{
		users:        users,
		hasher:       hasher,
		verification: verification,
		timeFunc:     time.Now,
	}
}

// Register creates a new unverified account and kicks off the email
// verification flow. Returns store.ErrEmailExists when the address is
// already taken.
//
// A failure to issue the verification mail does not fail registration;
// the account exists and can request a resend.
func (s *UserService) Register(ctx context.Context, name, email, password string) (*domain.User, error) {
	log := logger.FromContext(ctx)

	if err := domain.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	user, err := domain.NewUser(name, email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	user.HashedPassword = hash

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := s.verification.RequestVerification(ctx, user); err != nil {
		log.Error("failed to issue verification mail after registration",
			"error", err, "user_id", user.ID)
	}

	log.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Get returns the account with the given id.
func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

// UpdateName changes the account's display name.
func (s *UserService) UpdateName(ctx context.Context, userID uuid.UUID, name string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.Name = strings.TrimSpace(name)
	user.UpdatedAt = s.timeFunc().UTC()
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// UpdateEmail changes the account's email address. The account drops back
// to unverified, tokens issued for the old address are expired, and a
// fresh verification mail goes out to the new address. All outstanding
// sessions become stale because their verified-at snapshot no longer
// matches.
//
// Returns store.ErrEmailExists when the new address is already taken.
func (s *UserService) UpdateEmail(ctx context.Context, userID uuid.UUID, email string) (*domain.User, error) {
	log := logger.FromContext(ctx)

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	newEmail := strings.ToLower(strings.TrimSpace(email))
	if newEmail == user.Email {
		return user, nil
	}

	user.Email = newEmail
	user.EmailVerifiedAt = nil
	user.UpdatedAt = s.timeFunc().UTC()
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	if _, err := s.verification.ExpireActiveTokens(ctx, userID); err != nil {
		log.Error("failed to expire verification tokens after email change",
			"error", err, "user_id", userID)
	}

	if err := s.verification.RequestVerification(ctx, user); err != nil {
		log.Error("failed to issue verification mail after email change",
			"error", err, "user_id", userID)
	}

	log.Info("email changed", "user_id", userID)
	return user, nil
}

// ChangePassword sets a new password after checking the current one.
// Moving PasswordChangedAt forward invalidates every outstanding session.
//
// Returns auth.ErrInvalidCredentials when the current password is wrong
// and auth.ErrSamePassword when nothing would change.
func (s *UserService) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.hasher.Compare(user.HashedPassword, currentPassword); err != nil {
		return auth.ErrInvalidCredentials
	}

	if currentPassword == newPassword {
		return auth.ErrSamePassword
	}

	if err := domain.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	now := s.timeFunc().UTC()
	user.HashedPassword = hash
	user.PasswordChangedAt = now
	user.UpdatedAt = now

	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	logger.FromContext(ctx).Info("password changed", "user_id", userID)
	return nil
}
