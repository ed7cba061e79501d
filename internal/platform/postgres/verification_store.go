package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/taskhub-api/internal/domain"
	"github.com/avolkov/taskhub-api/internal/platform/logger"
	"github.com/avolkov/taskhub-api/internal/store"
)

// VerificationTokenStore implements store.VerificationTokenStore using
// PostgreSQL. Status writes carry the domain state machine's allowed
// sources as a WHERE guard, so an invalid transition never reaches a row
// even under concurrent writers. Every operation is bounded by the
// configured per-operation timeout.
type VerificationTokenStore struct {
	db      store.DBTX
	timeout time.Duration
}

// NewVerificationTokenStore creates a new PostgreSQL implementation of the
// VerificationTokenStore interface.
func NewVerificationTokenStore(db store.DBTX, timeout time.Duration) *VerificationTokenStore {
	return &VerificationTokenStore{db: db, timeout: timeout}
}

var _ store.VerificationTokenStore = (*VerificationTokenStore)(nil)

const verificationColumns = `id, user_id, email, token_digest, status, sent_at, expires_at, used_at, created_at`

// Create implements store.VerificationTokenStore.Create
func (s *VerificationTokenStore) Create(ctx context.Context, token *domain.VerificationToken) error {
	if err := token.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO verification_tokens (` + verificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.Email,
		token.TokenDigest,
		token.Status,
		token.SentAt,
		token.ExpiresAt,
		token.UsedAt,
		token.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		logger.FromContext(ctx).Error("failed to create verification token",
			"error", err, "token_id", token.ID, "user_id", token.UserID)
		return fmt.Errorf("failed to create verification token: %w", mapError(err))
	}

	return nil
}

// GetByDigest implements store.VerificationTokenStore.GetByDigest
func (s *VerificationTokenStore) GetByDigest(ctx context.Context, digest string) (*domain.VerificationToken, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT ` + verificationColumns + ` FROM verification_tokens WHERE token_digest = $1`

	var token domain.VerificationToken
	err := s.db.QueryRowContext(ctx, query, digest).Scan(
		&token.ID,
		&token.UserID,
		&token.Email,
		&token.TokenDigest,
		&token.Status,
		&token.SentAt,
		&token.ExpiresAt,
		&token.UsedAt,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get verification token: %w", mapError(err))
	}

	return &token, nil
}

// Save implements store.VerificationTokenStore.Save
func (s *VerificationTokenStore) Save(ctx context.Context, token *domain.VerificationToken) error {
	if err := token.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		UPDATE verification_tokens
		SET status = $1, used_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, token.Status, token.UsedAt, token.ID)
	if err != nil {
		return fmt.Errorf("failed to save verification token: %w", mapError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrTokenNotFound
	}

	return nil
}

// UpdateStatus implements store.VerificationTokenStore.UpdateStatus. The
// write is a single statement guarded by the statuses the state machine
// allows as sources for the target, so a concurrent transition (a resend
// expiring the token mid-flight) cannot be overwritten.
func (s *VerificationTokenStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.VerificationStatus) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	sources := domain.TransitionSources(status)
	placeholders := make([]string, len(sources))
	args := []any{status, id}
	for i, source := range sources {
		placeholders[i] = fmt.Sprintf("$%d", i+3)
		args = append(args, source)
	}

	query := fmt.Sprintf(`
		UPDATE verification_tokens
		SET status = $1
		WHERE id = $2 AND status IN (%s)
	`, strings.Join(placeholders, ", "))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update verification token status: %w", mapError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// No row matched the guard: the token is either gone or already in a
	// status the target cannot be reached from.
	var current domain.VerificationStatus
	err = s.db.QueryRowContext(ctx,
		`SELECT status FROM verification_tokens WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrTokenNotFound
		}
		return fmt.Errorf("failed to load verification token status: %w", mapError(err))
	}

	return fmt.Errorf("%w: %v", store.ErrInvalidEntity,
		fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, current, status))
}

// BulkExpireActive implements store.VerificationTokenStore.BulkExpireActive.
// The guard mirrors the allowed transitions: only unused pending/sent rows
// can move to expired, in one atomic statement.
func (s *VerificationTokenStore) BulkExpireActive(ctx context.Context, userID uuid.UUID) (int, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		UPDATE verification_tokens
		SET status = $1
		WHERE user_id = $2
		  AND status IN ($3, $4)
		  AND used_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.VerificationStatusExpired,
		userID,
		domain.VerificationStatusPending,
		domain.VerificationStatusSent,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire active verification tokens: %w", mapError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}

// WithTx implements store.VerificationTokenStore.WithTx
func (s *VerificationTokenStore) WithTx(tx *sql.Tx) store.VerificationTokenStore {
	return &VerificationTokenStore{db: tx, timeout: s.timeout}
}
