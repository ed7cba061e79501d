// Package auth implements the identity core: session token issuance,
// refresh, revocation and validation, password hashing, and the
// single-use password recovery flow.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/avolkov/taskhub-api/internal/config"
	"github.com/avolkov/taskhub-api/internal/domain"
	"github.com/avolkov/taskhub-api/internal/platform/logger"
	"github.com/avolkov/taskhub-api/internal/store"
)

const (
	// revokedKeyPrefix namespaces blacklist entries in the credential store.
	revokedKeyPrefix = "session:revoked:"

	// credentialRetryAttempts and credentialRetryBaseDelay govern retries
	// of credential store calls on transient failures.
	credentialRetryAttempts  = 3
	credentialRetryBaseDelay = 100 * time.Millisecond
)

// Session is the result of a successful login, refresh, or recovery
// redemption.
type Session struct {
	// AccessToken is the signed bearer token.
	AccessToken string

	// ExpiresAt is when the token stops being accepted.
	ExpiresAt time.Time

	// RefreshAfter is when the token becomes eligible for refresh.
	// Refreshing is only allowed inside [RefreshAfter, ExpiresAt).
	RefreshAfter time.Time
}

// sessionClaims defines the structure of the session token claims.
// EmailVerifiedMs snapshots the account's verified-at timestamp (unix
// milliseconds, 0 when unverified) at issuance time, so any later change
// to the verification state invalidates the token.
type sessionClaims struct {
	UserID          uuid.UUID `json:"uid"`
	RefreshAfterMs  int64     `json:"rfa"`
	EmailVerifiedMs int64     `json:"evt"`
	jwt.RegisteredClaims
}

// SessionService manages the session token lifecycle using HMAC-SHA
// signing and a credential-store blacklist for revocation.
type SessionService struct {
	users            store.UserStore
	credentials      store.CredentialStore
	hasher           PasswordHasher
	signingKey       []byte
	sessionLifetime  time.Duration
	refreshThreshold time.Duration
	timeFunc         func() time.Time // Injectable for testing
	clockSkew        time.Duration
}

// NewSessionService creates a new SessionService from the given
// configuration.
func NewSessionService(
	cfg config.AuthConfig,
	users store.UserStore,
	credentials store.CredentialStore,
	hasher PasswordHasher,
) (*SessionService, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters")
	}
	if cfg.RefreshThreshold() >= cfg.SessionLifetime() {
		return nil, fmt.Errorf("refresh threshold must be shorter than the session lifetime")
	}

	return &SessionService{
		users:            users,
		credentials:      credentials,
		hasher:           hasher,
		signingKey:       []byte(cfg.JWTSecret),
		sessionLifetime:  cfg.SessionLifetime(),
		refreshThreshold: cfg.RefreshThreshold(),
		timeFunc:         time.Now,
		clockSkew:        2 * time.Minute,
	}, nil
}

// Login verifies the credentials and issues a new session.
// Returns ErrInvalidCredentials for an unknown email or wrong password
// without distinguishing the two, and ErrEmailNotVerified for a valid
// login on an unverified account.
func (s *SessionService) Login(ctx context.Context, email, password string) (*Session, error) {
	log := logger.FromContext(ctx)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		log.Debug("login failed: password mismatch", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	if !user.IsVerified() {
		return nil, ErrEmailNotVerified
	}

	return s.Issue(ctx, user)
}

// Issue creates a signed session token for the given user, snapshotting
// the account's current verification state into the claims.
func (s *SessionService) Issue(ctx context.Context, user *domain.User) (*Session, error) {
	now := s.timeFunc()
	expiresAt := now.Add(s.sessionLifetime)
	refreshAfter := now.Add(s.refreshThreshold)

	claims := sessionClaims{
		UserID:          user.ID,
		RefreshAfterMs:  refreshAfter.UnixMilli(),
		EmailVerifiedMs: user.VerifiedAtUnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.signingKey)
	if err != nil {
		logger.FromContext(ctx).Error("failed to sign session token",
			"error", err,
			"user_id", user.ID,
			"signing_method", jwt.SigningMethodHS256.Name)
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return &Session{
		AccessToken:  signedToken,
		ExpiresAt:    expiresAt,
		RefreshAfter: refreshAfter,
	}, nil
}

// Refresh exchanges a valid token inside its refresh window for a fresh
// session carrying the account's current state. The old token is revoked
// for its remaining lifetime. The blacklist is deliberately not consulted
// here; two concurrent refreshes of the same token can both succeed.
func (s *SessionService) Refresh(ctx context.Context, tokenString string) (*Session, error) {
	claims, err := s.parseToken(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	now := s.timeFunc()
	if now.UnixMilli() < claims.RefreshAfterMs {
		return nil, ErrRefreshTooEarly
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if s.issuedBeforePasswordChange(claims, user) {
		return nil, ErrStaleToken
	}

	session, err := s.Issue(ctx, user)
	if err != nil {
		return nil, err
	}

	// Blacklist the old token only for the time it has left.
	remaining := claims.ExpiresAt.Time.Sub(now)
	if remaining > 0 {
		if err := s.blacklist(ctx, tokenString, remaining); err != nil {
			return nil, fmt.Errorf("failed to revoke replaced token: %w", err)
		}
	}

	return session, nil
}

// Revoke blacklists the given token. The entry's TTL is the full session
// lifetime, an upper bound on how long the token could still be accepted.
// Revoking an invalid or expired token returns the corresponding
// validation error.
func (s *SessionService) Revoke(ctx context.Context, tokenString string) error {
	if _, err := s.parseToken(ctx, tokenString); err != nil {
		return err
	}

	return s.blacklist(ctx, tokenString, s.sessionLifetime)
}

// IsRevoked reports whether the given token is on the revocation
// blacklist.
func (s *SessionService) IsRevoked(ctx context.Context, tokenString string) (bool, error) {
	var revoked bool
	err := store.Retry(ctx, credentialRetryAttempts, credentialRetryBaseDelay, func(ctx context.Context) error {
		_, err := s.credentials.Get(ctx, revocationKey(tokenString))
		if err != nil {
			if store.IsNotFoundError(err) {
				revoked = false
				return nil
			}
			return err
		}
		revoked = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}

	return revoked, nil
}

// Authenticate fully validates a bearer token and returns the account it
// belongs to. The checks, in order: signature and expiry, revocation,
// account existence and verification, issuance before the last password
// change, and the verified-at snapshot matching the account's current
// state.
func (s *SessionService) Authenticate(ctx context.Context, tokenString string) (*domain.User, error) {
	return s.authenticate(ctx, tokenString, true)
}

// AuthenticateAllowUnverified is Authenticate without the verification
// requirement. Only the verification resend endpoint uses it: an
// unverified account must be able to ask for another mail.
func (s *SessionService) AuthenticateAllowUnverified(ctx context.Context, tokenString string) (*domain.User, error) {
	return s.authenticate(ctx, tokenString, false)
}

func (s *SessionService) authenticate(ctx context.Context, tokenString string, requireVerified bool) (*domain.User, error) {
	claims, err := s.parseToken(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	revoked, err := s.IsRevoked(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrRevokedToken
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if requireVerified && !user.IsVerified() {
		return nil, ErrEmailNotVerified
	}

	if s.issuedBeforePasswordChange(claims, user) {
		return nil, ErrStaleToken
	}

	if claims.EmailVerifiedMs != user.VerifiedAtUnixMilli() {
		return nil, ErrStaleToken
	}

	return user, nil
}

// issuedBeforePasswordChange reports whether the token predates the
// user's last password change, with second granularity matching the iat
// claim's resolution.
func (s *SessionService) issuedBeforePasswordChange(claims *sessionClaims, user *domain.User) bool {
	if claims.IssuedAt == nil {
		return true
	}
	return claims.IssuedAt.Time.Unix() < user.PasswordChangedAt.Unix()
}

// parseToken verifies the token's signature and registered time claims
// and returns its claims. Only HS256 is accepted.
func (s *SessionService) parseToken(ctx context.Context, tokenString string) (*sessionClaims, error) {
	log := logger.FromContext(ctx)

	if tokenString == "" {
		return nil, ErrMissingToken
	}

	now := s.timeFunc()
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(s.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&sessionClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.signingKey, nil
		},
		parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			log.Debug("token validation failed: token expired", "error", err)
			return nil, ErrExpiredToken
		}
		log.Debug("token validation failed", "error", err)
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == uuid.Nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// blacklist writes a revocation entry for the token with the given TTL,
// retrying transient credential store failures.
func (s *SessionService) blacklist(ctx context.Context, tokenString string, ttl time.Duration) error {
	return store.Retry(ctx, credentialRetryAttempts, credentialRetryBaseDelay, func(ctx context.Context) error {
		return s.credentials.Set(ctx, revocationKey(tokenString), "revoked", ttl)
	})
}

// revocationKey derives the blacklist key for a token. The token is
// digested so keys stay fixed-size and the raw credential never lands in
// the credential store.
func revocationKey(tokenString string) string {
	sum := sha256.Sum256([]byte(tokenString))
	return revokedKeyPrefix + hex.EncodeToString(sum[:])
}
