package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/avolkov/taskhub-api/internal/api"
	apimiddleware "github.com/avolkov/taskhub-api/internal/api/middleware"
)

// setupRouter configures the application router with all routes and
// middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.Trace)

	authHandler := api.NewAuthHandler(app.userService, app.sessionService, app.recoveryService)
	verificationHandler := api.NewVerificationHandler(app.verificationService)
	profileHandler := api.NewProfileHandler(app.userService)
	taskHandler := api.NewTaskHandler(app.taskService)
	authMiddleware := apimiddleware.NewAuthMiddleware(app.sessionService)

	r.Route("/api", func(r chi.Router) {
		// Public authentication endpoints
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/refresh", authHandler.Refresh)
		r.Post("/auth/logout", authHandler.Logout)
		r.Post("/auth/forgot-password", authHandler.ForgotPassword)
		r.Post("/auth/reset-password", authHandler.ResetPassword)
		r.Post("/auth/verify-email", verificationHandler.Verify)

		// The resend endpoint admits unverified accounts; every other
		// protected route requires a verified one.
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.AuthenticateAllowUnverified)
			r.Post("/auth/resend-verification", verificationHandler.Resend)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			// Profile endpoints
			r.Get("/profile", profileHandler.Get)
			r.Patch("/profile/name", profileHandler.UpdateName)
			r.Patch("/profile/email", profileHandler.UpdateEmail)
			r.Patch("/profile/password", profileHandler.ChangePassword)

			// Task endpoints
			r.Post("/tasks", taskHandler.Create)
			r.Get("/tasks", taskHandler.List)
			r.Get("/tasks/{id}", taskHandler.Get)
			r.Patch("/tasks/{id}", taskHandler.Update)
			r.Put("/tasks/{id}/completed", taskHandler.SetCompleted)
			r.Delete("/tasks/{id}", taskHandler.Delete)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
