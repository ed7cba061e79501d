package auth

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/taskhub-api/internal/config"
	"github.com/avolkov/taskhub-api/internal/domain"
	"github.com/avolkov/taskhub-api/internal/platform/logger"
	"github.com/avolkov/taskhub-api/internal/store"
)

// recoveryKeyPrefix namespaces recovery token entries in the credential
// store. The value under each key is the owning user's id.
const recoveryKeyPrefix = "recovery:"

// MailDispatcher is the slice of the mail queue the recovery flow needs.
type MailDispatcher interface {
	EnqueueRecoveryMail(ctx context.Context, to, name, link string) error
}

// RecoveryService implements the password recovery flow: request issues a
// single-use TTL-bound token delivered by mail, redeem atomically consumes
// it and sets the new password.
type RecoveryService struct {
	users       store.UserStore
	credentials store.CredentialStore
	hasher      PasswordHasher
	sessions    *SessionService
	mail        MailDispatcher
	lifetime    time.Duration
	frontURL    string
	timeFunc    func() time.Time
}

// NewRecoveryService creates a new RecoveryService.
func NewRecoveryService(
	cfg config.AuthConfig,
	front config.FrontConfig,
	users store.UserStore,
	credentials store.CredentialStore,
	hasher PasswordHasher,
	sessions *SessionService,
	mail MailDispatcher,
) *RecoveryService {
	return &RecoveryService{
		users:       users,
		credentials: credentials,
		hasher:      hasher,
		sessions:    sessions,
		mail:        mail,
		lifetime:    cfg.RecoveryLifetime(),
		frontURL:    front.BaseURL,
		timeFunc:    time.Now,
	}
}

// RequestRecovery issues a recovery token for the account with the given
// email and queues the recovery mail. Returns store.ErrUserNotFound for an
// unknown email; the HTTP layer masks that so the endpoint does not leak
// account existence.
//
// Requesting again before an earlier token expires issues a second,
// independent token; each remains redeemable once within its TTL.
func (s *RecoveryService) RequestRecovery(ctx context.Context, email string) error {
	log := logger.FromContext(ctx)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if store.IsNotFoundError(err) {
			return store.ErrUserNotFound
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	token := uuid.NewString()
	err = store.Retry(ctx, credentialRetryAttempts, credentialRetryBaseDelay, func(ctx context.Context) error {
		return s.credentials.Set(ctx, recoveryKeyPrefix+token, user.ID.String(), s.lifetime)
	})
	if err != nil {
		return fmt.Errorf("failed to store recovery token: %w", err)
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", s.frontURL, url.QueryEscape(token))
	if err := s.mail.EnqueueRecoveryMail(ctx, user.Email, user.Name, link); err != nil {
		return fmt.Errorf("failed to enqueue recovery mail: %w", err)
	}

	log.Info("recovery token issued", "user_id", user.ID)
	return nil
}

// RedeemRecovery consumes a recovery token and sets the account's password
// to newPassword, then issues a fresh session. The token is deleted from
// the credential store in the same atomic operation that reads it, so
// concurrent redemptions of one token cannot both succeed.
//
// Returns ErrInvalidRecoveryToken for an unknown or expired token and
// ErrSamePassword when the new password equals the current one; in the
// latter case the token has already been consumed.
func (s *RecoveryService) RedeemRecovery(ctx context.Context, token, newPassword string) (*Session, error) {
	log := logger.FromContext(ctx)

	if err := domain.ValidatePassword(newPassword); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	var userIDValue string
	err := store.Retry(ctx, credentialRetryAttempts, credentialRetryBaseDelay, func(ctx context.Context) error {
		value, err := s.credentials.GetDel(ctx, recoveryKeyPrefix+token)
		if err != nil {
			return err
		}
		userIDValue = value
		return nil
	})
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrInvalidRecoveryToken
		}
		return nil, fmt.Errorf("failed to redeem recovery token: %w", err)
	}

	userID, err := uuid.Parse(userIDValue)
	if err != nil {
		log.Error("recovery token maps to malformed user id", "value", userIDValue)
		return nil, ErrInvalidRecoveryToken
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrInvalidRecoveryToken
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if s.hasher.Compare(user.HashedPassword, newPassword) == nil {
		return nil, ErrSamePassword
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}

	user.HashedPassword = hash
	user.PasswordChangedAt = s.timeFunc().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user password: %w", err)
	}

	log.Info("password reset via recovery token", "user_id", user.ID)
	return s.sessions.Issue(ctx, user)
}
