package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/avolkov/taskhub-api/internal/api/shared"
	"github.com/avolkov/taskhub-api/internal/service"
)

// VerificationHandler handles email verification API requests.
type VerificationHandler struct {
	verification *service.VerificationService
	validator    *validator.Validate
}

// NewVerificationHandler creates a new VerificationHandler.
func NewVerificationHandler(verification *service.VerificationService) *VerificationHandler {
	return &VerificationHandler{
		verification: verification,
		validator:    validator.New(),
	}
}

// Verify handles POST /auth/verify-email, redeeming a verification token.
// Redeeming an already used token of a verified account succeeds, so
// following the mail link twice is harmless.
func (h *VerificationHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	if err := h.verification.VerifyToken(r.Context(), req.Token); err != nil {
		RespondWithMappedError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusNoContent, nil)
}

// Resend handles POST /auth/resend-verification for an authenticated but
// possibly unverified account. It answers 204 for an already verified
// account too, leaving nothing to probe.
func (h *VerificationHandler) Resend(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.verification.RequestVerification(r.Context(), user); err != nil {
		if !errors.Is(err, service.ErrAlreadyVerified) {
			RespondWithMappedError(w, r, err)
			return
		}
	}

	shared.RespondWithJSON(w, r, http.StatusNoContent, nil)
}
