// Package middleware provides the HTTP middleware chain: request
// tracing and bearer-token authentication.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/avolkov/taskhub-api/internal/api/shared"
)

// Trace adds a trace ID to the request context. Apply it early in the
// chain so every subsequent handler and error response carries the ID.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := shared.SetTraceID(r.Context())

		slog.Debug("request started",
			slog.String("trace_id", shared.GetTraceID(ctx)),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", r.RemoteAddr))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
