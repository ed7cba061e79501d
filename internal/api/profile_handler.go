package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/avolkov/taskhub-api/internal/api/shared"
	"github.com/avolkov/taskhub-api/internal/service"
)

// ProfileHandler handles the authenticated account's profile requests.
type ProfileHandler struct {
	users     *service.UserService
	validator *validator.Validate
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(users *service.UserService) *ProfileHandler {
	return &ProfileHandler{
		users:     users,
		validator: validator.New(),
	}
}

// Get handles GET /profile.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewUserResponse(user))
}

// UpdateName handles PATCH /profile/name.
func (h *ProfileHandler) UpdateName(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req UpdateNameRequest
	if err := decodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	updated, err := h.users.UpdateName(r.Context(), user.ID, req.Name)
	if err != nil {
		RespondWithMappedError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewUserResponse(updated))
}

// UpdateEmail handles PATCH /profile/email. The account drops back to
// unverified and the presented session becomes stale, so the client must
// expect to re-authenticate after the change.
func (h *ProfileHandler) UpdateEmail(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req UpdateEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	updated, err := h.users.UpdateEmail(r.Context(), user.ID, req.Email)
	if err != nil {
		RespondWithMappedError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewUserResponse(updated))
}

// ChangePassword handles PATCH /profile/password. All outstanding
// sessions, including the one presenting this request, are invalidated.
func (h *ProfileHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	if err := h.users.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		RespondWithMappedError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusNoContent, nil)
}
