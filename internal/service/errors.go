// Package service implements the application use cases on top of the
// domain entities and stores.
package service

import "errors"

// Common service errors
var (
	// ErrInvalidVerificationToken indicates an unknown, expired, pending,
	// failed, or mismatched verification token.
	ErrInvalidVerificationToken = errors.New("invalid or expired verification token")

	// ErrAlreadyVerified indicates a verification request for an account
	// whose email is already verified.
	ErrAlreadyVerified = errors.New("email address is already verified")

	// ErrSubtasksIncomplete indicates an attempt to complete a task that
	// still has incomplete subtasks.
	ErrSubtasksIncomplete = errors.New("task has incomplete subtasks")

	// ErrInvalidParent indicates a subtask creation targeting a parent
	// that does not exist for the user or is itself a subtask.
	ErrInvalidParent = errors.New("invalid parent task")
)
