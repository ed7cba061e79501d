package service

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/taskhub-api/internal/config"
	"github.com/avolkov/taskhub-api/internal/domain"
	"github.com/avolkov/taskhub-api/internal/store"
)

type verificationFixture struct {
	svc    *VerificationService
	users  *fakeUserStore
	tokens *fakeTokenStore
	mail   *fakeVerificationDispatcher
	now    time.Time
}

func newVerificationFixture(t *testing.T) *verificationFixture {
	t.Helper()

	f := &verificationFixture{
		users:  newFakeUserStore(),
		tokens: newFakeTokenStore(),
		mail:   &fakeVerificationDispatcher{},
		now:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	f.svc = NewVerificationService(
		nil,
		config.AuthConfig{
			JWTSecret:               "test-secret-that-is-long-enough-for-testing",
			SessionLifetimeMinutes:  60,
			RefreshThresholdMinutes: 30,
			RecoveryLifetimeMinutes: 15,
			VerificationLifetimeHrs: 24,
		},
		config.FrontConfig{BaseURL: "https://app.example.com"},
		f.users,
		f.tokens,
		f.mail,
	)
	f.svc.timeFunc = func() time.Time { return f.now }
	f.svc.runTx = func(ctx context.Context, db *sql.DB, fn store.TxFn) error {
		return fn(ctx, nil)
	}

	return f
}

func (f *verificationFixture) addUser(t *testing.T, email string, verified bool) *domain.User {
	t.Helper()

	user, err := domain.NewUser("Test User", email)
	require.NoError(t, err)
	user.HashedPassword = "irrelevant-hash"
	if verified {
		verifiedAt := f.now.Add(-time.Hour)
		user.EmailVerifiedAt = &verifiedAt
	}
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}

// rawTokenFromLink extracts the raw verification token from the queued
// mail link.
func (f *verificationFixture) rawTokenFromLink(t *testing.T) string {
	t.Helper()
	f.mail.mu.Lock()
	defer f.mail.mu.Unlock()
	require.NotEmpty(t, f.mail.links)

	parsed, err := url.Parse(f.mail.links[len(f.mail.links)-1])
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

func (f *verificationFixture) markLastSent(t *testing.T) *domain.VerificationToken {
	t.Helper()
	f.mail.mu.Lock()
	require.NotEmpty(t, f.mail.tokenIDs)
	tokenID := f.mail.tokenIDs[len(f.mail.tokenIDs)-1]
	f.mail.mu.Unlock()

	require.NoError(t, f.tokens.UpdateStatus(context.Background(), tokenID, domain.VerificationStatusSent))
	return f.tokens.get(tokenID)
}

func TestRequestVerification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates pending token and queues mail", func(t *testing.T) {
		t.Parallel()
		f := newVerificationFixture(t)
		user := f.addUser(t, "alice@example.com", false)

		require.NoError(t, f.svc.RequestVerification(ctx, user))

		require.Len(t, f.mail.tokenIDs, 1)
		token := f.tokens.get(f.mail.tokenIDs[0])
		require.NotNil(t, token)
		assert.Equal(t, domain.VerificationStatusPending, token.Status)
		assert.Equal(t, user.Email, token.Email)

		// The raw token never equals the stored digest.
		raw := f.rawTokenFromLink(t)
		assert.NotEqual(t, raw, token.TokenDigest)
	})

	t.Run("supersedes existing active token", func(t *testing.T) {
		t.Parallel()
		f := newVerificationFixture(t)
		user := f.addUser(t, "alice@example.com", false)

		require.NoError(t, f.svc.RequestVerification(ctx, user))
		first := f.mail.tokenIDs[0]

		require.NoError(t, f.svc.RequestVerification(ctx, user))

		assert.Equal(t, 1, f.tokens.activeCount(user.ID))
		assert.Equal(t, domain.VerificationStatusExpired, f.tokens.get(first).Status)
	})

	t.Run("rejects verified account", func(t *testing.T) {
		t.Parallel()
		f := newVerificationFixture(t)
		user := f.addUser(t, "alice@example.com", true)

		err := f.svc.RequestVerification(ctx, user)
		assert.ErrorIs(t, err, ErrAlreadyVerified)
	})

	t.Run("marks token failed when enqueue fails", func(t *testing.T) {
		t.Parallel()
		f := newVerificationFixture(t)
		user := f.addUser(t, "alice@example.com", false)
		f.mail.failNext = errors.New("queue full")

		err := f.svc.RequestVerification(ctx, user)
		require.Error(t, err)

		assert.Equal(t, 0, f.tokens.activeCount(user.ID))
	})
}

func TestVerifyToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	issue := func(t *testing.T, f *verificationFixture, user *domain.User) string {
		t.Helper()
		require.NoError(t, f.svc.RequestVerification(ctx, user))
		f.markLastSent(t)
		return f.rawTokenFromLink(t)
	}

	t.Run("marks account verified and token used", func(t *testing.T) {
		t.Parallel()
		f := newVerificationFixture(t)
		user := f.addUser(t, "alice@example.com", false)
		raw := issue(t, f, user)

		require.NoError(t, f.svc.VerifyToken(ctx, raw))

		stored, err := f.users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsVerified())

		token := f.tokens.get(f.mail.tokenIDs[0])
		assert.Equal(t, domain.VerificationStatusUsed, token.Status)
		assert.NotNil(t, token.UsedAt)
	})

	t.Run("second redemption is a benign success", func(t *testing.T) {
		t.Parallel()
		f := newVerificationFixture(t)
		user := f.addUser(t, "alice@example.com", false)
		raw := issue(t, f, user)

		require.NoError(t, f.svc.VerifyToken(ctx, raw))
		assert.NoError(t, f.svc.VerifyToken(ctx, raw))
	})

	t.Run("rejects unknown token", func(t *testing.T) {
		t.Parallel()
		f := newVerificationFixture(t)

		err := f.svc.VerifyToken(ctx, "bogus-token")
		assert.ErrorIs(t, err, ErrInvalidVerificationToken)
	})

	t.Run("rejects pending token", func(t *testing.T) {
		t.Parallel()
		f := newVerificationFixture(t)
		user := f.addUser(t, "alice@example.com", false)
		require.NoError(t, f.svc.RequestVerification(ctx, user))
		raw := f.rawTokenFromLink(t)

		err := f.svc.VerifyToken(ctx, raw)
		assert.ErrorIs(t, err, ErrInvalidVerificationToken)

		stored, lookupErr := f.users.GetByID(ctx, user.ID)
		require.NoError(t, lookupErr)
		assert.False(t, stored.IsVerified())
	})

	t.Run("rejects expired token and records the expiry", func(t *testing.T) {
		t.Parallel()
		f := newVerificationFixture(t)
		user := f.addUser(t, "alice@example.com", false)
		raw := issue(t, f, user)

		f.now = f.now.Add(25 * time.Hour)
		err := f.svc.VerifyToken(ctx, raw)
		assert.ErrorIs(t, err, ErrInvalidVerificationToken)
		assert.Equal(t, domain.VerificationStatusExpired, f.tokens.get(f.mail.tokenIDs[0]).Status)
	})

	t.Run("rejects token after email change", func(t *testing.T) {
		t.Parallel()
		f := newVerificationFixture(t)
		user := f.addUser(t, "alice@example.com", false)
		raw := issue(t, f, user)

		user.Email = "alice-new@example.com"
		require.NoError(t, f.users.Update(ctx, user))

		err := f.svc.VerifyToken(ctx, raw)
		assert.ErrorIs(t, err, ErrInvalidVerificationToken)
	})
}

func TestResendVerification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newVerificationFixture(t)
	user := f.addUser(t, "alice@example.com", false)

	require.NoError(t, f.svc.ResendVerification(ctx, user.ID))
	require.NoError(t, f.svc.ResendVerification(ctx, user.ID))

	assert.Equal(t, 1, f.tokens.activeCount(user.ID))
	assert.Len(t, f.mail.tokenIDs, 2)
}
