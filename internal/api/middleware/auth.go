package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/avolkov/taskhub-api/internal/api/shared"
	"github.com/avolkov/taskhub-api/internal/domain"
	"github.com/avolkov/taskhub-api/internal/service/auth"
)

// AuthMiddleware provides bearer-token authentication for routes.
type AuthMiddleware struct {
	sessions *auth.SessionService
}

// NewAuthMiddleware creates a new AuthMiddleware with the given dependencies.
func NewAuthMiddleware(sessions *auth.SessionService) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

// Authenticate runs the full token validation, including the revocation
// and staleness checks, and adds the authenticated user to the request
// context. Every rejection is an opaque 401 except the unverified-account
// case, which is a 403 so clients can prompt for verification.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return m.authenticate(next, m.sessions.Authenticate)
}

// AuthenticateAllowUnverified admits unverified accounts. Only the
// verification resend route uses it.
func (m *AuthMiddleware) AuthenticateAllowUnverified(next http.Handler) http.Handler {
	return m.authenticate(next, m.sessions.AuthenticateAllowUnverified)
}

func (m *AuthMiddleware) authenticate(
	next http.Handler,
	validate func(ctx context.Context, token string) (*domain.User, error),
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := ExtractBearerToken(r)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
			return
		}

		user, err := validate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrEmailNotVerified):
				shared.RespondWithError(w, r, http.StatusForbidden, "Email address is not verified")
			case errors.Is(err, auth.ErrInvalidToken),
				errors.Is(err, auth.ErrExpiredToken),
				errors.Is(err, auth.ErrRevokedToken),
				errors.Is(err, auth.ErrStaleToken),
				errors.Is(err, auth.ErrMissingToken):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			default:
				slog.Error("failed to authenticate request",
					"error", err, "trace_id", shared.GetTraceID(r.Context()))
				shared.RespondWithError(w, r, http.StatusInternalServerError, "Authentication error")
			}
			return
		}

		ctx := context.WithValue(r.Context(), shared.UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ExtractBearerToken pulls the token out of the Authorization header.
func ExtractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", auth.ErrMissingToken
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", auth.ErrInvalidToken
	}

	return parts[1], nil
}

// GetUser extracts the authenticated user from the request context.
func GetUser(r *http.Request) (*domain.User, bool) {
	user, ok := r.Context().Value(shared.UserContextKey).(*domain.User)
	return user, ok && user != nil
}
