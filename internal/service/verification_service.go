package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/taskhub-api/internal/config"
	"github.com/avolkov/taskhub-api/internal/domain"
	"github.com/avolkov/taskhub-api/internal/platform/logger"
	"github.com/avolkov/taskhub-api/internal/store"
)

// verificationTokenBytes is the entropy of a raw verification token. The
// raw value travels only inside the mail link; the store keeps its SHA-256
// digest.
const verificationTokenBytes = 32

// VerificationMailDispatcher is the slice of the mail queue the
// verification flow needs.
type VerificationMailDispatcher interface {
	EnqueueVerificationMail(ctx context.Context, tokenID uuid.UUID, to, name, link string) error
}

// VerificationService manages the email verification token lifecycle:
// issuance supersedes earlier tokens, dispatch goes through the mail
// queue, and redemption flips the account to verified.
type VerificationService struct {
	db       *sql.DB
	users    store.UserStore
	tokens   store.VerificationTokenStore
	mail     VerificationMailDispatcher
	lifetime time.Duration
	frontURL string
	timeFunc func() time.Time
	runTx    func(ctx context.Context, db *sql.DB, fn store.TxFn) error
}

// NewVerificationService creates a new VerificationService.
func NewVerificationService(
	db *sql.DB,
	cfg config.AuthConfig,
	front config.FrontConfig,
	users store.UserStore,
	tokens store.VerificationTokenStore,
	mail VerificationMailDispatcher,
) *VerificationService {
	return &VerificationService{
		db:       db,
		users:    users,
		tokens:   tokens,
		mail:     mail,
		lifetime: cfg.VerificationLifetime(),
		frontURL: front.BaseURL,
		timeFunc: time.Now,
		runTx:    store.RunInTransaction,
	}
}

// RequestVerification issues a fresh verification token for the user and
// queues the verification mail. Any earlier active token is expired in the
// same transaction that persists the new one, keeping at most one active
// token per user.
//
// Returns ErrAlreadyVerified if the account's email is already verified.
func (s *VerificationService) RequestVerification(ctx context.Context, user *domain.User) error {
	log := logger.FromContext(ctx)

	if user.IsVerified() {
		return ErrAlreadyVerified
	}

	rawToken, digest, err := generateVerificationToken()
	if err != nil {
		return err
	}

	token, err := domain.NewVerificationToken(user, digest, s.timeFunc(), s.lifetime)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	err = s.runTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		txTokens := s.tokens.WithTx(tx)

		expired, err := txTokens.BulkExpireActive(ctx, user.ID)
		if err != nil {
			return err
		}
		if expired > 0 {
			log.Debug("superseded active verification tokens",
				"user_id", user.ID, "count", expired)
		}

		return txTokens.Create(ctx, token)
	})
	if err != nil {
		return fmt.Errorf("failed to issue verification token: %w", err)
	}

	link := fmt.Sprintf("%s/verify-email?token=%s", s.frontURL, url.QueryEscape(rawToken))
	if err := s.mail.EnqueueVerificationMail(ctx, token.ID, user.Email, user.Name, link); err != nil {
		// The token row exists but no mail will go out for it; record that
		// so the state is visible and a resend can supersede it.
		if statusErr := s.tokens.UpdateStatus(ctx, token.ID, domain.VerificationStatusFailed); statusErr != nil {
			log.Error("failed to mark verification token failed after enqueue error",
				"error", statusErr, "token_id", token.ID)
		}
		return fmt.Errorf("failed to enqueue verification mail: %w", err)
	}

	log.Info("verification token issued", "user_id", user.ID, "token_id", token.ID)
	return nil
}

// ResendVerification reissues a verification token for the account.
// Returns ErrAlreadyVerified when there is nothing to verify.
func (s *VerificationService) ResendVerification(ctx context.Context, userID uuid.UUID) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}

	return s.RequestVerification(ctx, user)
}

// VerifyToken redeems a raw verification token and marks the owning
// account's email as verified. Redeeming an already used token of a
// verified account is a benign success, so a user double-clicking the mail
// link does not see an error.
//
// Returns ErrInvalidVerificationToken for unknown, pending, failed,
// expired, or email-mismatched tokens.
func (s *VerificationService) VerifyToken(ctx context.Context, rawToken string) error {
	log := logger.FromContext(ctx)

	digest := digestVerificationToken(rawToken)
	token, err := s.tokens.GetByDigest(ctx, digest)
	if err != nil {
		if store.IsNotFoundError(err) {
			return ErrInvalidVerificationToken
		}
		return fmt.Errorf("failed to look up verification token: %w", err)
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return ErrInvalidVerificationToken
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	// The token binds to the address it was issued for. An email change
	// after issuance leaves the snapshot stale and the token unusable.
	if token.Email != user.Email {
		return ErrInvalidVerificationToken
	}

	if token.Status == domain.VerificationStatusUsed {
		if user.IsVerified() {
			return nil
		}
		return ErrInvalidVerificationToken
	}

	now := s.timeFunc().UTC()
	if token.IsExpiredAt(now) {
		if token.IsActive() {
			if err := s.tokens.UpdateStatus(ctx, token.ID, domain.VerificationStatusExpired); err != nil {
				log.Error("failed to expire verification token",
					"error", err, "token_id", token.ID)
			}
		}
		return ErrInvalidVerificationToken
	}

	// Only a delivered token is redeemable. Pending means dispatch was
	// never confirmed, failed and expired are terminal for redemption.
	if token.Status != domain.VerificationStatusSent {
		return ErrInvalidVerificationToken
	}

	err = s.runTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := token.MarkUsed(now); err != nil {
			return err
		}
		if err := s.tokens.WithTx(tx).Save(ctx, token); err != nil {
			return err
		}

		user.EmailVerifiedAt = &now
		user.UpdatedAt = now
		return s.users.WithTx(tx).Update(ctx, user)
	})
	if err != nil {
		return fmt.Errorf("failed to redeem verification token: %w", err)
	}

	log.Info("email verified", "user_id", user.ID, "token_id", token.ID)
	return nil
}

// ExpireActiveTokens expires every active verification token of the user.
// Called when the account's email changes, since tokens for the old
// address can never be redeemed.
func (s *VerificationService) ExpireActiveTokens(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.tokens.BulkExpireActive(ctx, userID)
}

// generateVerificationToken returns a raw token and its SHA-256 digest.
func generateVerificationToken() (raw string, digest string, err error) {
	buf := make([]byte, verificationTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate verification token: %w", err)
	}

	raw = hex.EncodeToString(buf)
	return raw, digestVerificationToken(raw), nil
}

// digestVerificationToken derives the stored digest from a raw token.
func digestVerificationToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
