package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for User
var (
	ErrEmptyUserID         = errors.New("user ID cannot be empty")
	ErrEmptyUserName       = errors.New("user name cannot be empty")
	ErrEmptyEmail          = errors.New("email cannot be empty")
	ErrPasswordTooShort    = errors.New("password must be at least 8 characters long")
	ErrPasswordTooLong     = errors.New("password must be at most 72 characters long")
	ErrEmptyHashedPassword = errors.New("hashed password cannot be empty")
)

// User represents a registered account.
//
// EmailVerifiedAt is nil until the user redeems a verification token; its
// value is snapshotted into every session token so that any later change to
// the verification state invalidates outstanding sessions.
// PasswordChangedAt serves the same purpose for password changes: any
// session issued before it is rejected during validation.
type User struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	HashedPassword    string     `json:"-"`
	EmailVerifiedAt   *time.Time `json:"email_verified_at,omitempty"`
	PasswordChangedAt time.Time  `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NewUser creates a new unverified User with the given name and email.
// The caller is responsible for hashing the password and setting
// HashedPassword before the user is stored.
func NewUser(name, email string) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		ID:                uuid.New(),
		Name:              strings.TrimSpace(name),
		Email:             strings.ToLower(strings.TrimSpace(email)),
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := user.Validate(); err != nil {
		return nil, err
	}

	return user, nil
}

// Validate checks if the User has valid data.
func (u *User) Validate() error {
	if u.ID == uuid.Nil {
		return ErrEmptyUserID
	}

	if u.Name == "" {
		return ErrEmptyUserName
	}

	if u.Email == "" {
		return ErrEmptyEmail
	}

	if !validEmailFormat(u.Email) {
		return ErrInvalidEmail
	}

	return nil
}

// IsVerified reports whether the user's email address has been verified.
func (u *User) IsVerified() bool {
	return u.EmailVerifiedAt != nil
}

// VerifiedAtUnixMilli returns the verified-at timestamp in unix
// milliseconds, or 0 for an unverified user. This is the representation
// embedded in session token claims.
func (u *User) VerifiedAtUnixMilli() int64 {
	if u.EmailVerifiedAt == nil {
		return 0
	}
	return u.EmailVerifiedAt.UnixMilli()
}

// ValidatePassword checks a plaintext password against the length rules.
// The upper bound is bcrypt's 72-byte input limit.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrPasswordTooShort
	}
	if len(password) > 72 {
		return ErrPasswordTooLong
	}
	return nil
}

/// validEmailFormat performs basic validation of email format:
// a single @ with a dotted domain part.
func validEmailFormat(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}

	domain := email[at+1:]
	dot := strings.Index(domain, ".")
	return dot > 0 && dot < len(domain)-1
}
