package auth

import "errors"

// Common authentication service errors
var (
	// ErrInvalidCredentials indicates a login attempt with an unknown email
	// or wrong password. Callers must not reveal which of the two failed.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidToken indicates the token format is invalid or signature doesn't match
	ErrInvalidToken = errors.New("invalid authentication token")

	// ErrExpiredToken indicates the token has expired
	ErrExpiredToken = errors.New("authentication token has expired")

	// ErrRevokedToken indicates the token was explicitly revoked
	ErrRevokedToken = errors.New("authentication token has been revoked")

	// ErrStaleToken indicates the token predates a password change or its
	// verification snapshot no longer matches the account
	ErrStaleToken = errors.New("authentication token is stale")

	// ErrMissingToken indicates a token was expected but not provided
	ErrMissingToken = errors.New("authentication token is missing")

	// ErrEmailNotVerified indicates the account exists but its email
	// address has not been verified yet
	ErrEmailNotVerified = errors.New("email address is not verified")

	// ErrRefreshTooEarly indicates a refresh attempt before the token's
	// refresh window opened
	ErrRefreshTooEarly = errors.New("token is not yet eligible for refresh")

	// ErrInvalidRecoveryToken indicates an unknown, expired, or already
	// redeemed recovery token
	ErrInvalidRecoveryToken = errors.New("invalid or expired recovery token")

	// ErrSamePassword indicates a password change to the current password
	ErrSamePassword = errors.New("new password must differ from the current password")
)
