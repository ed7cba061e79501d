// Package jobs implements the durable mail dispatch queue and its worker
// pool. Jobs are persisted before being enqueued on an in-memory channel,
// giving at-least-once processing across restarts: pending and interrupted
// jobs are requeued on startup.
package jobs

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a job.
type JobStatus string

// Possible job status values
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job type constants
const (
	// JobTypeVerificationMail delivers an email-verification message and
	// writes the owning token's status back on success or failure.
	JobTypeVerificationMail = "verification_mail"

	// JobTypeRecoveryMail delivers a password-recovery message. There is
	// no persisted record to update; failures only surface to the queue's
	// retry mechanism.
	JobTypeRecoveryMail = "recovery_mail"
)

// Common errors returned by the queue
var (
	ErrQueueClosed    = errors.New("job queue is closed")
	ErrQueueFull      = errors.New("job queue is full")
	ErrUnknownJobType = errors.New("unknown job type")
)

// Job represents a unit of background mail work.
type Job interface {
	// ID returns the job's unique identifier.
	ID() uuid.UUID

	// Type returns the job type identifier.
	Type() string

	// Payload returns the serialized job data.
	Payload() []byte

	// Execute runs the job logic. A non-nil error hands the job back to
	// the runner's retry policy.
	Execute(ctx context.Context) error
}

// JobStore defines the interface for persisting jobs.
type JobStore interface {
	// SaveJob persists a new job before it enters the in-memory queue.
	SaveJob(ctx context.Context, job Job) error

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status JobStatus, errorMsg string) error

	// RecordAttempt increments the job's attempt counter.
	RecordAttempt(ctx context.Context, jobID uuid.UUID) error

	// GetPendingJobs retrieves all jobs with "pending" status.
	GetPendingJobs(ctx context.Context) ([]Job, error)

	// GetProcessingJobs retrieves jobs with "processing" status. If
	// olderThan is non-zero, only jobs that have been in that state longer
	// than the given duration are returned.
	GetProcessingJobs(ctx context.Context, olderThan time.Duration) ([]Job, error)

	// WithTx returns a JobStore that runs its operations on the provided
	// transaction.
	WithTx(tx *sql.Tx) JobStore
}

// Factory reconstructs an executable Job from its persisted form. The
// postgres job store uses it to rebuild jobs during startup recovery.
type Factory interface {
	Restore(id uuid.UUID, jobType string, payload []byte) (Job, error)
}
