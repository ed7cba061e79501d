package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/taskhub-api/internal/jobs"
	"github.com/avolkov/taskhub-api/internal/platform/logger"
	"github.com/avolkov/taskhub-api/internal/store"
)

// JobStore implements jobs.JobStore using PostgreSQL. Reads that return
// executable jobs go through the injected factory, which rebuilds each job
// from its persisted type and payload.
type JobStore struct {
	db      store.DBTX
	factory jobs.Factory
	timeout time.Duration
}

// NewJobStore creates a new PostgreSQL implementation of the
// jobs.JobStore interface.
func NewJobStore(db store.DBTX, factory jobs.Factory, timeout time.Duration) *JobStore {
	return &JobStore{db: db, factory: factory, timeout: timeout}
}

var _ jobs.JobStore = (*JobStore)(nil)

// SaveJob implements jobs.JobStore.SaveJob
func (s *JobStore) SaveJob(ctx context.Context, job jobs.Job) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO mail_jobs (id, type, payload, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, NOW(), NOW())
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID(),
		job.Type(),
		job.Payload(),
		jobs.JobStatusPending,
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to save job",
			"error", err, "job_id", job.ID(), "job_type", job.Type())
		return fmt.Errorf("failed to save job: %w", mapError(err))
	}

	return nil
}

// UpdateJobStatus implements jobs.JobStore.UpdateJobStatus
func (s *JobStore) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status jobs.JobStatus, errorMsg string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		UPDATE mail_jobs
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3
	`

	var errMsg sql.NullString
	if errorMsg != "" {
		errMsg = sql.NullString{String: errorMsg, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, query, status, errMsg, jobID)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", mapError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}

	return nil
}

// RecordAttempt implements jobs.JobStore.RecordAttempt
func (s *JobStore) RecordAttempt(ctx context.Context, jobID uuid.UUID) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		UPDATE mail_jobs
		SET attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1
	`

	_, err := s.db.ExecContext(ctx, query, jobID)
	if err != nil {
		return fmt.Errorf("failed to record job attempt: %w", mapError(err))
	}

	return nil
}

// GetPendingJobs implements jobs.JobStore.GetPendingJobs
func (s *JobStore) GetPendingJobs(ctx context.Context) ([]jobs.Job, error) {
	query := `
		SELECT id, type, payload FROM mail_jobs
		WHERE status = $1
		ORDER BY created_at ASC
	`

	return s.queryJobs(ctx, query, jobs.JobStatusPending)
}

// GetProcessingJobs implements jobs.JobStore.GetProcessingJobs
func (s *JobStore) GetProcessingJobs(ctx context.Context, olderThan time.Duration) ([]jobs.Job, error) {
	if olderThan > 0 {
		query := `
			SELECT id, type, payload FROM mail_jobs
			WHERE status = $1 AND updated_at < NOW() - $2::interval
			ORDER BY created_at ASC
		`
		return s.queryJobs(ctx, query, jobs.JobStatusProcessing, olderThan.String())
	}

	query := `
		SELECT id, type, payload FROM mail_jobs
		WHERE status = $1
		ORDER BY created_at ASC
	`
	return s.queryJobs(ctx, query, jobs.JobStatusProcessing)
}

// queryJobs runs a job-selecting query and rebuilds executable jobs via
// the factory. Rows with an unknown type are logged and skipped rather
// than failing startup recovery.
func (s *JobStore) queryJobs(ctx context.Context, query string, args ...any) ([]jobs.Job, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	var result []jobs.Job
	for rows.Next() {
		var (
			id      uuid.UUID
			jobType string
			payload []byte
		)
		if err := rows.Scan(&id, &jobType, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}

		job, err := s.factory.Restore(id, jobType, payload)
		if err != nil {
			logger.FromContext(ctx).Error("failed to restore job, skipping",
				"error", err, "job_id", id, "job_type", jobType)
			continue
		}

		result = append(result, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job rows: %w", err)
	}

	return result, nil
}

// WithTx implements jobs.JobStore.WithTx
func (s *JobStore) WithTx(tx *sql.Tx) jobs.JobStore {
	return &JobStore{db: tx, factory: s.factory, timeout: s.timeout}
}
