package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/taskhub-api/internal/domain"
	"github.com/avolkov/taskhub-api/internal/service/auth"
	"github.com/avolkov/taskhub-api/internal/store"
)

type userFixture struct {
	*verificationFixture
	svc *UserService
}

func newUserFixture(t *testing.T) *userFixture {
	t.Helper()

	base := newVerificationFixture(t)
	svc := NewUserService(base.users, auth.NewBcryptHasher(4), base.svc)
	svc.timeFunc = func() time.Time { return base.now }

	return &userFixture{verificationFixture: base, svc: svc}
}

func TestRegister(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates unverified account and queues verification mail", func(t *testing.T) {
		t.Parallel()
		f := newUserFixture(t)

		user, err := f.svc.Register(ctx, "Alice", "Alice@Example.com", "secret-password")
		require.NoError(t, err)

		assert.Equal(t, "alice@example.com", user.Email)
		assert.False(t, user.IsVerified())
		assert.NotEqual(t, "secret-password", user.HashedPassword)
		assert.Len(t, f.mail.tokenIDs, 1)
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		t.Parallel()
		f := newUserFixture(t)

		_, err := f.svc.Register(ctx, "Alice", "alice@example.com", "secret-password")
		require.NoError(t, err)

		_, err = f.svc.Register(ctx, "Imposter", "alice@example.com", "other-password")
		assert.ErrorIs(t, err, store.ErrEmailExists)
	})

	t.Run("rejects short password", func(t *testing.T) {
		t.Parallel()
		f := newUserFixture(t)

		_, err := f.svc.Register(ctx, "Alice", "alice@example.com", "short")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestUpdateEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("drops verification and reissues token", func(t *testing.T) {
		t.Parallel()
		f := newUserFixture(t)

		user, err := f.svc.Register(ctx, "Alice", "alice@example.com", "secret-password")
		require.NoError(t, err)

		// Simulate a completed verification.
		verifiedAt := f.now
		user.EmailVerifiedAt = &verifiedAt
		require.NoError(t, f.users.Update(ctx, user))

		updated, err := f.svc.UpdateEmail(ctx, user.ID, "alice-new@example.com")
		require.NoError(t, err)

		assert.Equal(t, "alice-new@example.com", updated.Email)
		assert.False(t, updated.IsVerified())
		// Registration issued one token, the email change another.
		assert.Len(t, f.mail.tokenIDs, 2)
		assert.Equal(t, 1, f.tokens.activeCount(user.ID))
	})

	t.Run("same email is a no-op", func(t *testing.T) {
		t.Parallel()
		f := newUserFixture(t)

		user, err := f.svc.Register(ctx, "Alice", "alice@example.com", "secret-password")
		require.NoError(t, err)

		updated, err := f.svc.UpdateEmail(ctx, user.ID, "ALICE@example.com")
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", updated.Email)
		assert.Len(t, f.mail.tokenIDs, 1)
	})

	t.Run("rejects taken email", func(t *testing.T) {
		t.Parallel()
		f := newUserFixture(t)

		_, err := f.svc.Register(ctx, "Bob", "bob@example.com", "secret-password")
		require.NoError(t, err)
		alice, err := f.svc.Register(ctx, "Alice", "alice@example.com", "secret-password")
		require.NoError(t, err)

		_, err = f.svc.UpdateEmail(ctx, alice.ID, "bob@example.com")
		assert.ErrorIs(t, err, store.ErrEmailExists)
	})
}

func TestChangePassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("updates hash and password-changed timestamp", func(t *testing.T) {
		t.Parallel()
		f := newUserFixture(t)

		user, err := f.svc.Register(ctx, "Alice", "alice@example.com", "secret-password")
		require.NoError(t, err)

		f.now = f.now.Add(time.Hour)
		require.NoError(t, f.svc.ChangePassword(ctx, user.ID, "secret-password", "new-secret-password"))

		stored, err := f.users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, f.now, stored.PasswordChangedAt)
		assert.NoError(t, auth.NewBcryptHasher(4).Compare(stored.HashedPassword, "new-secret-password"))
	})

	t.Run("rejects wrong current password", func(t *testing.T) {
		t.Parallel()
		f := newUserFixture(t)

		user, err := f.svc.Register(ctx, "Alice", "alice@example.com", "secret-password")
		require.NoError(t, err)

		err = f.svc.ChangePassword(ctx, user.ID, "wrong-password", "new-secret-password")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("rejects unchanged password", func(t *testing.T) {
		t.Parallel()
		f := newUserFixture(t)

		user, err := f.svc.Register(ctx, "Alice", "alice@example.com", "secret-password")
		require.NoError(t, err)

		err = f.svc.ChangePassword(ctx, user.ID, "secret-password", "secret-password")
		assert.ErrorIs(t, err, auth.ErrSamePassword)
	})
}

func TestUpdateName(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newUserFixture(t)
	user, err := f.svc.Register(ctx, "Alice", "alice@example.com", "secret-password")
	require.NoError(t, err)

	updated, err := f.svc.UpdateName(ctx, user.ID, "  Alice Cooper  ")
	require.NoError(t, err)
	assert.Equal(t, "Alice Cooper", updated.Name)

	_, err = f.svc.UpdateName(ctx, user.ID, "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
