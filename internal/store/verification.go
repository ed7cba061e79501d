package store

import (
	"context"
	"database/sql"

	"github.com/avolkov/taskhub-api/internal/domain"
	"github.com/google/uuid"
)

// VerificationTokenStore defines the interface for verification token
// persistence. Implementations enforce the token status state machine at
// this boundary: Save and UpdateStatus reject transitions outside the
// allowed table instead of trusting callers.
type VerificationTokenStore interface {
	// Create persists a new pending verification token.
	Create(ctx context.Context, token *domain.VerificationToken) error

	// GetByDigest retrieves a token by its SHA-256 digest.
	// Returns ErrTokenNotFound if no token matches.
	GetByDigest(ctx context.Context, digest string) (*domain.VerificationToken, error)

	// Save persists the mutable fields (status, used_at) of an existing
	// token.
	Save(ctx context.Context, token *domain.VerificationToken) error

	// UpdateStatus loads the token, applies the status transition through
	// the domain state machine, and persists it. Used by the mail worker
	// for the sent/failed write-back.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.VerificationStatus) error

	// BulkExpireActive transitions every active (pending or sent, unused)
	// token of the user to expired in a single statement, and returns the
	// number of rows affected.
	BulkExpireActive(ctx context.Context, userID uuid.UUID) (int, error)

	// WithTx returns a VerificationTokenStore that runs its operations on
	// the provided transaction.
	WithTx(tx *sql.Tx) VerificationTokenStore
}
