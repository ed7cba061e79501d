package api

import (
	"errors"
	"net/http"

	"github.com/avolkov/taskhub-api/internal/domain"
	"github.com/avolkov/taskhub-api/internal/service"
	"github.com/avolkov/taskhub-api/internal/service/auth"
	"github.com/avolkov/taskhub-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status
// codes based on the error type. This prevents leaking internal error
// types or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors. Credential and token failures are all the
	// same opaque 401.
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrRevokedToken),
		errors.Is(err, auth.ErrStaleToken),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized

	// Authorization errors
	case errors.Is(err, auth.ErrEmailNotVerified):
		return http.StatusForbidden

	// Bad request errors
	case errors.Is(err, auth.ErrRefreshTooEarly),
		errors.Is(err, auth.ErrSamePassword),
		errors.Is(err, service.ErrInvalidVerificationToken),
		errors.Is(err, service.ErrSubtasksIncomplete),
		errors.Is(err, service.ErrInvalidParent),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Not found errors. An absent or expired recovery token is a not-found
	// on the token itself, with the same message either way.
	case errors.Is(err, auth.ErrInvalidRecoveryToken),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, store.ErrEmailExists),
		errors.Is(err, service.ErrAlreadyVerified):
		return http.StatusConflict

	// Retryable backend failures
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal
// details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Invalid email or password"

	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrRevokedToken),
		errors.Is(err, auth.ErrStaleToken),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"

	case errors.Is(err, auth.ErrEmailNotVerified):
		return "Email address is not verified"

	case errors.Is(err, auth.ErrRefreshTooEarly):
		return "Token is not yet eligible for refresh"

	case errors.Is(err, auth.ErrInvalidRecoveryToken):
		return "Invalid or expired recovery token"

	case errors.Is(err, auth.ErrSamePassword):
		return "New password must differ from the current password"

	case errors.Is(err, service.ErrInvalidVerificationToken):
		return "Invalid or expired verification token"

	case errors.Is(err, service.ErrAlreadyVerified):
		return "Email address is already verified"

	case errors.Is(err, service.ErrSubtasksIncomplete):
		return "Task has incomplete subtasks"

	case errors.Is(err, service.ErrInvalidParent):
		return "Invalid parent task"

	case errors.Is(err, store.ErrEmailExists):
		return "Email already exists"

	case errors.Is(err, store.ErrUserNotFound):
		return "User not found"

	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, store.ErrNotFound):
		return "Not found"

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	case errors.Is(err, store.ErrUnavailable):
		return "Service temporarily unavailable"

	default:
		return "An unexpected error occurred"
	}
}

// RespondWithMappedError maps the error to a status code and safe
// message, logging the underlying error for 5xx responses.
func RespondWithMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status := MapErrorToStatusCode(err)
	respondWithMappedErrorStatus(w, r, status, err)
}
