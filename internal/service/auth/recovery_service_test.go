package auth

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/taskhub-api/internal/config"
	"github.com/avolkov/taskhub-api/internal/store"
)

// fakeMailDispatcher records recovery mails instead of queueing them.
type fakeMailDispatcher struct {
	mu    sync.Mutex
	links []string
	to    []string
}

func (d *fakeMailDispatcher) EnqueueRecoveryMail(ctx context.Context, to, name, link string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.to = append(d.to, to)
	d.links = append(d.links, link)
	return nil
}

func (d *fakeMailDispatcher) lastToken(t *testing.T) string {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.NotEmpty(t, d.links)

	parsed, err := url.Parse(d.links[len(d.links)-1])
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

type recoveryFixture struct {
	*sessionFixture
	svc  *RecoveryService
	mail *fakeMailDispatcher
}

func newRecoveryFixture(t *testing.T) *recoveryFixture {
	t.Helper()

	base := newSessionFixture(t)
	mail := &fakeMailDispatcher{}

	svc := NewRecoveryService(
		testAuthConfig(),
		config.FrontConfig{BaseURL: "https://app.example.com"},
		base.users,
		base.credentials,
		NewBcryptHasher(4),
		base.svc,
		mail,
	)
	svc.timeFunc = func() time.Time { return base.now }

	return &recoveryFixture{sessionFixture: base, svc: svc, mail: mail}
}

func TestRequestRecovery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("stores token and queues mail with reset link", func(t *testing.T) {
		t.Parallel()
		f := newRecoveryFixture(t)
		f.addUser(t, "alice@example.com", "old-password")

		require.NoError(t, f.svc.RequestRecovery(ctx, "alice@example.com"))

		assert.Equal(t, []string{"alice@example.com"}, f.mail.to)
		assert.True(t, strings.HasPrefix(f.mail.links[0], "https://app.example.com/reset-password?token="))
		assert.Equal(t, 1, f.credentials.len())
	})

	t.Run("reports unknown email to the caller", func(t *testing.T) {
		t.Parallel()
		f := newRecoveryFixture(t)

		err := f.svc.RequestRecovery(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, store.ErrUserNotFound)
		assert.Empty(t, f.mail.links)
	})
}

func TestRedeemRecovery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("sets new password and issues session", func(t *testing.T) {
		t.Parallel()
		f := newRecoveryFixture(t)
		user := f.addUser(t, "alice@example.com", "old-password")

		require.NoError(t, f.svc.RequestRecovery(ctx, "alice@example.com"))
		token := f.mail.lastToken(t)

		f.advance(time.Minute)
		session, err := f.svc.RedeemRecovery(ctx, token, "brand-new-password")
		require.NoError(t, err)
		assert.NotEmpty(t, session.AccessToken)

		stored, err := f.users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.NoError(t, f.svc.hasher.Compare(stored.HashedPassword, "brand-new-password"))
		assert.Equal(t, f.now, stored.PasswordChangedAt)

		// The new session must pass validation against the updated account.
		_, err = f.sessionFixture.svc.Authenticate(ctx, session.AccessToken)
		assert.NoError(t, err)
	})

	t.Run("token is single use", func(t *testing.T) {
		t.Parallel()
		f := newRecoveryFixture(t)
		f.addUser(t, "alice@example.com", "old-password")

		require.NoError(t, f.svc.RequestRecovery(ctx, "alice@example.com"))
		token := f.mail.lastToken(t)

		_, err := f.svc.RedeemRecovery(ctx, token, "brand-new-password")
		require.NoError(t, err)

		_, err = f.svc.RedeemRecovery(ctx, token, "another-password")
		assert.ErrorIs(t, err, ErrInvalidRecoveryToken)
	})

	t.Run("rejects expired token", func(t *testing.T) {
		t.Parallel()
		f := newRecoveryFixture(t)
		f.addUser(t, "alice@example.com", "old-password")

		require.NoError(t, f.svc.RequestRecovery(ctx, "alice@example.com"))
		token := f.mail.lastToken(t)

		f.advance(16 * time.Minute)
		_, err := f.svc.RedeemRecovery(ctx, token, "brand-new-password")
		assert.ErrorIs(t, err, ErrInvalidRecoveryToken)
	})

	t.Run("rejects unknown token", func(t *testing.T) {
		t.Parallel()
		f := newRecoveryFixture(t)

		_, err := f.svc.RedeemRecovery(ctx, "bogus-token", "brand-new-password")
		assert.ErrorIs(t, err, ErrInvalidRecoveryToken)
	})

	t.Run("rejects the current password and consumes the token", func(t *testing.T) {
		t.Parallel()
		f := newRecoveryFixture(t)
		f.addUser(t, "alice@example.com", "old-password")

		require.NoError(t, f.svc.RequestRecovery(ctx, "alice@example.com"))
		token := f.mail.lastToken(t)

		_, err := f.svc.RedeemRecovery(ctx, token, "old-password")
		assert.ErrorIs(t, err, ErrSamePassword)

		// The failed attempt already consumed the token.
		_, err = f.svc.RedeemRecovery(ctx, token, "brand-new-password")
		assert.ErrorIs(t, err, ErrInvalidRecoveryToken)
	})

	t.Run("two tokens for one account are independent", func(t *testing.T) {
		t.Parallel()
		f := newRecoveryFixture(t)
		f.addUser(t, "alice@example.com", "old-password")

		require.NoError(t, f.svc.RequestRecovery(ctx, "alice@example.com"))
		first := f.mail.lastToken(t)
		require.NoError(t, f.svc.RequestRecovery(ctx, "alice@example.com"))
		second := f.mail.lastToken(t)
		require.NotEqual(t, first, second)

		_, err := f.svc.RedeemRecovery(ctx, second, "brand-new-password")
		require.NoError(t, err)

		_, err = f.svc.RedeemRecovery(ctx, first, "yet-another-password")
		require.NoError(t, err)
	})
}
