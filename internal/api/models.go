package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/taskhub-api/internal/domain"
	"github.com/avolkov/taskhub-api/internal/service/auth"
)

// Common request/response structures

// RegisterRequest defines the payload for the user registration endpoint.
type RegisterRequest struct {
	Name     string `json:"name"     validate:"required,max=255"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest defines the payload for the user login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// AuthResponse defines the successful response for endpoints issuing a
// session.
type AuthResponse struct {
	// AccessToken is the signed bearer token for API authorization.
	AccessToken string `json:"access_token"`

	// ExpiresAt is the ISO 8601 timestamp when the token expires.
	ExpiresAt string `json:"expires_at"`

	// RefreshAfter is the ISO 8601 timestamp from which the token can be
	// exchanged for a new one.
	RefreshAfter string `json:"refresh_after"`
}

// NewAuthResponse converts a session into its response form.
func NewAuthResponse(session *auth.Session) AuthResponse {
	return AuthResponse{
		AccessToken:  session.AccessToken,
		ExpiresAt:    session.ExpiresAt.UTC().Format(time.RFC3339),
		RefreshAfter: session.RefreshAfter.UTC().Format(time.RFC3339),
	}
}

// ForgotPasswordRequest defines the payload for the recovery request
// endpoint.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest defines the payload for the recovery redemption
// endpoint.
type ResetPasswordRequest struct {
	Token    string `json:"token"    validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// VerifyEmailRequest defines the payload for the email verification
// endpoint.
type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

// UserResponse defines the public shape of an account.
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Verified  bool      `json:"verified"`
	CreatedAt string    `json:"created_at"`
}

// NewUserResponse converts a user into its response form.
func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Verified:  user.IsVerified(),
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// UpdateNameRequest defines the payload for the name change endpoint.
type UpdateNameRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

// UpdateEmailRequest defines the payload for the email change endpoint.
type UpdateEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ChangePasswordRequest defines the payload for the password change
// endpoint.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password"     validate:"required,min=8,max=72"`
}

// CreateTaskRequest defines the payload for the task creation endpoint.
type CreateTaskRequest struct {
	Title       string     `json:"title"       validate:"required,max=255"`
	Description *string    `json:"description" validate:"omitempty,max=4000"`
	ParentID    *uuid.UUID `json:"parent_id"`
}

// UpdateTaskRequest defines the payload for the task update endpoint.
// Absent fields are left unchanged.
type UpdateTaskRequest struct {
	Title       *string `json:"title"       validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=4000"`
}

// SetCompletedRequest defines the payload for the task completion
// endpoint.
type SetCompletedRequest struct {
	Completed bool `json:"completed"`
}

// TaskResponse defines the public shape of a task.
type TaskResponse struct {
	ID          uuid.UUID  `json:"id"`
	ParentID    *uuid.UUID `json:"parent_id,omitempty"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *string    `json:"completed_at,omitempty"`
	CreatedAt   string     `json:"created_at"`
	UpdatedAt   string     `json:"updated_at"`
}

// NewTaskResponse converts a task into its response form.
func NewTaskResponse(task *domain.Task) TaskResponse {
	resp := TaskResponse{
		ID:          task.ID,
		ParentID:    task.ParentID,
		Title:       task.Title,
		Description: task.Description,
		Completed:   task.Completed,
		CreatedAt:   task.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   task.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if task.CompletedAt != nil {
		completedAt := task.CompletedAt.UTC().Format(time.RFC3339)
		resp.CompletedAt = &completedAt
	}
	return resp
}

// TaskListResponse defines the paginated task listing response.
type TaskListResponse struct {
	Tasks  []TaskResponse `json:"tasks"`
	Total  int            `json:"total"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
}
