package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/avolkov/taskhub-api/internal/config"
	"github.com/avolkov/taskhub-api/internal/jobs"
	"github.com/avolkov/taskhub-api/internal/platform/logger"
	"github.com/avolkov/taskhub-api/internal/platform/mailer"
	"github.com/avolkov/taskhub-api/internal/platform/postgres"
	"github.com/avolkov/taskhub-api/internal/platform/redis"
	"github.com/avolkov/taskhub-api/internal/service"
	"github.com/avolkov/taskhub-api/internal/service/auth"
)

// application holds the assembled dependency graph.
type application struct {
	config *config.Config
	logger *slog.Logger

	db          *sql.DB
	credentials *redis.CredentialStore
	runner      *jobs.Runner

	sessionService      *auth.SessionService
	recoveryService     *auth.RecoveryService
	userService         *service.UserService
	taskService         *service.TaskService
	verificationService *service.VerificationService
}

// newApplication loads configuration and wires every component together:
// stores on top of the database and redis connections, the mail transport
// and job runner, and the services on top of those.
func newApplication() (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	appLogger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)

	db, err := setupDatabase(cfg, appLogger)
	if err != nil {
		return nil, err
	}

	if err := postgres.RunMigrations(db); err != nil {
		return nil, err
	}
	appLogger.Info("database migrations applied")

	dbTimeout := time.Duration(cfg.Database.OperationTimeoutSeconds) * time.Second
	userStore := postgres.NewUserStore(db, dbTimeout)
	taskStore := postgres.NewTaskStore(db, dbTimeout)
	tokenStore := postgres.NewVerificationTokenStore(db, dbTimeout)
	credentials := redis.NewCredentialStore(cfg.Redis)

	transport, err := mailer.NewTransport(cfg.SMTP)
	if err != nil {
		return nil, fmt.Errorf("failed to set up mail transport: %w", err)
	}

	jobFactory := jobs.NewMailJobFactory(transport, tokenStore)
	jobStore := postgres.NewJobStore(db, jobFactory, dbTimeout)

	runnerCfg := jobs.DefaultRunnerConfig()
	runnerCfg.WorkerCount = cfg.Mail.WorkerCount
	runnerCfg.QueueSize = cfg.Mail.QueueSize
	runnerCfg.RatePerSecond = cfg.Mail.RatePerSecond
	runnerCfg.MaxAttempts = cfg.Mail.MaxAttempts
	runner := jobs.NewRunner(jobStore, runnerCfg, appLogger)
	dispatcher := jobs.NewDispatcher(runner, transport, tokenStore)

	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)

	sessionService, err := auth.NewSessionService(cfg.Auth, userStore, credentials, hasher)
	if err != nil {
		return nil, fmt.Errorf("failed to set up session service: %w", err)
	}

	recoveryService := auth.NewRecoveryService(
		cfg.Auth, cfg.Front, userStore, credentials, hasher, sessionService, dispatcher)

	verificationService := service.NewVerificationService(
		db, cfg.Auth, cfg.Front, userStore, tokenStore, dispatcher)

	userService := service.NewUserService(userStore, hasher, verificationService)
	taskService := service.NewTaskService(taskStore)

	return &application{
		config:              cfg,
		logger:              appLogger,
		db:                  db,
		credentials:         credentials,
		runner:              runner,
		sessionService:      sessionService,
		recoveryService:     recoveryService,
		userService:         userService,
		taskService:         taskService,
		verificationService: verificationService,
	}, nil
}

// cleanup releases the application's resources in reverse dependency
// order.
func (app *application) cleanup() {
	if app.runner != nil {
		app.runner.Stop()
	}

	if app.credentials != nil {
		if err := app.credentials.Close(); err != nil {
			app.logger.Error("failed to close credential store", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database connection", "error", err)
		}
	}
}

// setupDatabase opens the database connection pool and verifies it.
func setupDatabase(cfg *config.Config, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("database connection established")
	return db, nil
}
