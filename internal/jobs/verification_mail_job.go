package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/avolkov/taskhub-api/internal/domain"
	"github.com/avolkov/taskhub-api/internal/platform/logger"
	"github.com/avolkov/taskhub-api/internal/platform/mailer"
	"github.com/avolkov/taskhub-api/internal/store"
)

// Common construction errors
var (
	ErrNilTransport  = errors.New("mail transport cannot be nil")
	ErrNilTokenStore = errors.New("verification token store cannot be nil")
	ErrEmptyTokenID  = errors.New("verification token ID cannot be empty")
	ErrEmptyTo       = errors.New("recipient cannot be empty")
)

// VerificationMailPayload is the serialized data of a verification mail
// job. TokenID lets the worker write the token's dispatch status back.
type VerificationMailPayload struct {
	TokenID uuid.UUID `json:"token_id"`
	To      string    `json:"to"`
	Name    string    `json:"name"`
	Link    string    `json:"link"`
}

// VerificationMailJob delivers an email-verification message and
// reconciles the owning token's status: sent on delivery, failed on
// transport error. The error is returned afterwards so the runner's retry
// policy governs redelivery.
type VerificationMailJob struct {
	id        uuid.UUID
	payload   VerificationMailPayload
	transport mailer.Transport
	tokens    store.VerificationTokenStore
}

// NewVerificationMailJob creates a new verification mail job.
func NewVerificationMailJob(
	payload VerificationMailPayload,
	transport mailer.Transport,
	tokens store.VerificationTokenStore,
) (*VerificationMailJob, error) {
	if transport == nil {
		return nil, ErrNilTransport
	}
	if tokens == nil {
		return nil, ErrNilTokenStore
	}
	if payload.TokenID == uuid.Nil {
		return nil, ErrEmptyTokenID
	}
	if payload.To == "" {
		return nil, ErrEmptyTo
	}

	return &VerificationMailJob{
		id:        uuid.New(),
		payload:   payload,
		transport: transport,
		tokens:    tokens,
	}, nil
}

// restoreVerificationMailJob rebuilds a job from its persisted form.
func restoreVerificationMailJob(
	id uuid.UUID,
	raw []byte,
	transport mailer.Transport,
	tokens store.VerificationTokenStore,
) (*VerificationMailJob, error) {
	var payload VerificationMailPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal verification mail payload: %w", err)
	}

	return &VerificationMailJob{
		id:        id,
		payload:   payload,
		transport: transport,
		tokens:    tokens,
	}, nil
}

// ID implements Job.ID
func (j *VerificationMailJob) ID() uuid.UUID {
	return j.id
}

// Type implements Job.Type
func (j *VerificationMailJob) Type() string {
	return JobTypeVerificationMail
}

// Payload implements Job.Payload
func (j *VerificationMailJob) Payload() []byte {
	data, err := json.Marshal(j.payload)
	if err != nil {
		// Payload fields are plain strings and a UUID; marshal cannot fail.
		return nil
	}
	return data
}

// Execute implements Job.Execute
func (j *VerificationMailJob) Execute(ctx context.Context) error {
	log := logger.FromContext(ctx).With(
		"job_type", JobTypeVerificationMail,
		"token_id", j.payload.TokenID,
	)

	msg := mailer.VerificationMessage(j.payload.To, j.payload.Name, j.payload.Link)

	if err := j.transport.Send(ctx, msg); err != nil {
		if updateErr := j.tokens.UpdateStatus(ctx, j.payload.TokenID, domain.VerificationStatusFailed); updateErr != nil {
			log.Error("failed to mark verification token failed", "error", updateErr)
		}
		return fmt.Errorf("failed to send verification mail: %w", err)
	}

	if err := j.tokens.UpdateStatus(ctx, j.payload.TokenID, domain.VerificationStatusSent); err != nil {
		log.Error("failed to mark verification token sent", "error", err)
		return fmt.Errorf("failed to update verification token status: %w", err)
	}

	return nil
}
