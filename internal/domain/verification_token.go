package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// VerificationStatus represents the lifecycle state of a verification token.
type VerificationStatus string

// Possible verification token status values
const (
	// VerificationStatusPending: record persisted, mail job enqueued but
	// dispatch not yet confirmed. A pending token cannot be redeemed.
	VerificationStatusPending VerificationStatus = "pending"
	// VerificationStatusSent: the mail worker delivered the message.
	VerificationStatusSent VerificationStatus = "sent"
	// VerificationStatusUsed: the token was redeemed before expiry.
	VerificationStatusUsed VerificationStatus = "used"
	// VerificationStatusExpired: superseded by a newer token or redeemed
	// after its expiry time.
	VerificationStatusExpired VerificationStatus = "expired"
	// VerificationStatusFailed: enqueue or delivery failed. The queue's
	// redelivery may still move a failed token to sent.
	VerificationStatusFailed VerificationStatus = "failed"
)

// Common validation errors for VerificationToken
var (
	ErrEmptyTokenID            = errors.New("verification token ID cannot be empty")
	ErrEmptyTokenUserID        = errors.New("verification token user ID cannot be empty")
	ErrEmptyTokenDigest        = errors.New("verification token digest cannot be empty")
	ErrInvalidTokenStatus      = errors.New("invalid verification token status")
	ErrInvalidStatusTransition = errors.New("invalid verification token status transition")
)

// allowedTransitions is the explicit state machine for verification tokens.
// failed -> sent and failed -> expired exist because mail delivery is
// at-least-once: a redelivery after a transient transport failure may still
// succeed, and a resend request supersedes failed tokens the same way it
// supersedes active ones.
var allowedTransitions = map[VerificationStatus][]VerificationStatus{
	VerificationStatusPending: {VerificationStatusSent, VerificationStatusFailed, VerificationStatusExpired},
	VerificationStatusSent:    {VerificationStatusUsed, VerificationStatusExpired},
	VerificationStatusFailed:  {VerificationStatusSent, VerificationStatusExpired},
}

// VerificationToken is the persisted record backing a single email
// verification attempt. The store holds only the SHA-256 digest of the raw
// token; the raw value exists only inside the outbound mail link.
//
// Email is snapshotted at issuance. If the user changes their address
// afterwards, the snapshot no longer matches and the token is unusable.
type VerificationToken struct {
	ID          uuid.UUID          `json:"id"`
	UserID      uuid.UUID          `json:"user_id"`
	Email       string             `json:"email"`
	TokenDigest string             `json:"-"`
	Status      VerificationStatus `json:"status"`
	SentAt      time.Time          `json:"sent_at"`
	ExpiresAt   time.Time          `json:"expires_at"`
	UsedAt      *time.Time         `json:"used_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// NewVerificationToken creates a pending verification token for the user's
// current email address, stamped against the caller's clock.
func NewVerificationToken(user *User, digest string, now time.Time, lifetime time.Duration) (*VerificationToken, error) {
	now = now.UTC()
	token := &VerificationToken{
		ID:          uuid.New(),
		UserID:      user.ID,
		Email:       user.Email,
		TokenDigest: digest,
		Status:      VerificationStatusPending,
		SentAt:      now,
		ExpiresAt:   now.Add(lifetime),
		CreatedAt:   now,
	}

	if err := token.Validate(); err != nil {
		return nil, err
	}

	return token, nil
}

// Validate checks if the VerificationToken has valid data.
func (t *VerificationToken) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTokenID
	}

	if t.UserID == uuid.Nil {
		return ErrEmptyTokenUserID
	}

	if t.Email == "" {
		return ErrEmptyEmail
	}

	if t.TokenDigest == "" {
		return ErrEmptyTokenDigest
	}

	if !isValidVerificationStatus(t.Status) {
		return ErrInvalidTokenStatus
	}

	return nil
}

// IsActive reports whether the token still counts against the
// one-active-token-per-user invariant.
func (t *VerificationToken) IsActive() bool {
	return (t.Status == VerificationStatusPending || t.Status == VerificationStatusSent) && t.UsedAt == nil
}

// IsExpiredAt reports whether the token's expiry time has passed.
func (t *VerificationToken) IsExpiredAt(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

// TransitionTo moves the token to the given status, rejecting any
// transition outside the allowed table. Same-status transitions are no-ops
// so that at-least-once delivery can write the same terminal state twice.
func (t *VerificationToken) TransitionTo(status VerificationStatus) error {
	if !isValidVerificationStatus(status) {
		return ErrInvalidTokenStatus
	}

	if t.Status == status {
		return nil
	}

	for _, allowed := range allowedTransitions[t.Status] {
		if status == allowed {
			t.Status = status
			return nil
		}
	}

	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, t.Status, status)
}

// TransitionSources returns every status a token may hold immediately
// before moving to the given status. The target itself is included because
// same-status transitions are no-ops. Stores use this to guard status
// updates in a single statement instead of a read-modify-write.
func TransitionSources(status VerificationStatus) []VerificationStatus {
	sources := []VerificationStatus{status}
	for _, from := range []VerificationStatus{
		VerificationStatusPending,
		VerificationStatusSent,
		VerificationStatusFailed,
	} {
		for _, to := range allowedTransitions[from] {
			if to == status && from != status {
				sources = append(sources, from)
			}
		}
	}
	return sources
}

// MarkUsed transitions the token to used and records the redemption time.
func (t *VerificationToken) MarkUsed(now time.Time) error {
	if err := t.TransitionTo(VerificationStatusUsed); err != nil {
		return err
	}
	used := now.UTC()
	t.UsedAt = &used
	return nil
}

// isValidVerificationStatus checks if the given status is a known value.
func isValidVerificationStatus(status VerificationStatus) bool {
	switch status {
	case VerificationStatusPending, VerificationStatusSent, VerificationStatusUsed,
		VerificationStatusExpired, VerificationStatusFailed:
		return true
	default:
		return false
	}
}
