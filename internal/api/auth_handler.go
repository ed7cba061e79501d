// Package api implements the HTTP surface: request decoding and
// validation, handlers, and the mapping from internal errors to safe
// responses.
package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/avolkov/taskhub-api/internal/api/middleware"
	"github.com/avolkov/taskhub-api/internal/api/shared"
	"github.com/avolkov/taskhub-api/internal/service"
	"github.com/avolkov/taskhub-api/internal/service/auth"
	"github.com/avolkov/taskhub-api/internal/store"
)

// AuthHandler handles authentication-related API requests.
type AuthHandler struct {
	users     *service.UserService
	sessions  *auth.SessionService
	recovery  *auth.RecoveryService
	validator *validator.Validate
}

// NewAuthHandler creates a new AuthHandler with the given dependencies.
func NewAuthHandler(
	users *service.UserService,
	sessions *auth.SessionService,
	recovery *auth.RecoveryService,
) *AuthHandler {
	return &AuthHandler{
		users:     users,
		sessions:  sessions,
		recovery:  recovery,
		validator: validator.New(),
	}
}

// Register handles POST /auth/register. The new account starts
// unverified; a verification mail is queued before the response goes out.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	user, err := h.users.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		RespondWithMappedError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, NewUserResponse(user))
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	session, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		RespondWithMappedError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewAuthResponse(session))
}

// Refresh handles POST /auth/refresh. The bearer token itself is the
// refresh credential; the replaced token is revoked for its remaining
// lifetime.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, err := middleware.ExtractBearerToken(r)
	if err != nil {
		RespondWithMappedError(w, r, err)
		return
	}

	session, err := h.sessions.Refresh(r.Context(), token)
	if err != nil {
		RespondWithMappedError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewAuthResponse(session))
}

// Logout handles POST /auth/logout, revoking the presented token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, err := middleware.ExtractBearerToken(r)
	if err != nil {
		RespondWithMappedError(w, r, err)
		return
	}

	if err := h.sessions.Revoke(r.Context(), token); err != nil {
		RespondWithMappedError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusNoContent, nil)
}

// ForgotPassword handles POST /auth/forgot-password. The response is 204
// whether or not the email belongs to an account, so the endpoint cannot
// be used to probe for registered addresses.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	if err := h.recovery.RequestRecovery(r.Context(), req.Email); err != nil {
		if !errors.Is(err, store.ErrUserNotFound) {
			RespondWithMappedError(w, r, err)
			return
		}
	}

	shared.RespondWithJSON(w, r, http.StatusNoContent, nil)
}

// ResetPassword handles POST /auth/reset-password, redeeming a recovery
// token and issuing a fresh session.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	session, err := h.recovery.RedeemRecovery(r.Context(), req.Token, req.Password)
	if err != nil {
		RespondWithMappedError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewAuthResponse(session))
}
