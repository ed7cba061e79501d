package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/avolkov/taskhub-api/internal/api/middleware"
	"github.com/avolkov/taskhub-api/internal/api/shared"
	"github.com/avolkov/taskhub-api/internal/domain"
)

// maxRequestBody bounds request body size to keep a hostile client from
// exhausting memory.
const maxRequestBody = 1 << 20 // 1 MiB

// decodeJSON parses the request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("failed to decode request body: %w", err)
	}
	return nil
}

// requireUser extracts the authenticated user from the request context,
// writing a 401 if the authentication middleware did not run.
func requireUser(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	user, ok := middleware.GetUser(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return nil, false
	}
	return user, true
}

// getPathUUID extracts and parses a UUID path parameter.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, fmt.Errorf("%w: missing %s", domain.ErrInvalidID, paramName)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed %s", domain.ErrInvalidID, paramName)
	}

	return id, nil
}

// respondWithMappedErrorStatus writes the safe message for err with the
// given status, logging the underlying error for server-side failures.
func respondWithMappedErrorStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"error", err,
			"status_code", status,
			"trace_id", shared.GetTraceID(r.Context()),
			"path", r.URL.Path,
			"method", r.Method)
	}
	shared.RespondWithError(w, r, status, GetSafeErrorMessage(err))
}
