package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/avolkov/taskhub-api/internal/platform/mailer"
)

// RecoveryMailPayload is the serialized data of a password-recovery mail
// job.
type RecoveryMailPayload struct {
	To   string `json:"to"`
	Name string `json:"name"`
	Link string `json:"link"`
}

// RecoveryMailJob delivers a password-recovery message. Unlike
// verification mail there is no persisted record to reconcile; a delivery
// failure only surfaces to the runner's retry mechanism.
type RecoveryMailJob struct {
	id        uuid.UUID
	payload   RecoveryMailPayload
	transport mailer.Transport
}

// NewRecoveryMailJob creates a new recovery mail job.
func NewRecoveryMailJob(payload RecoveryMailPayload, transport mailer.Transport) (*RecoveryMailJob, error) {
	if transport == nil {
		return nil, ErrNilTransport
	}
	if payload.To == "" {
		return nil, ErrEmptyTo
	}

	return &RecoveryMailJob{
		id:        uuid.New(),
		payload:   payload,
		transport: transport,
	}, nil
}

// restoreRecoveryMailJob rebuilds a job from its persisted form.
func restoreRecoveryMailJob(id uuid.UUID, raw []byte, transport mailer.Transport) (*RecoveryMailJob, error) {
	var payload RecoveryMailPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recovery mail payload: %w", err)
	}

	return &RecoveryMailJob{
		id:        id,
		payload:   payload,
		transport: transport,
	}, nil
}

// ID implements Job.ID
func (j *RecoveryMailJob) ID() uuid.UUID {
	return j.id
}

// Type implements Job.Type
func (j *RecoveryMailJob) Type() string {
	return JobTypeRecoveryMail
}

// Payload implements Job.Payload
func (j *RecoveryMailJob) Payload() []byte {
	data, err := json.Marshal(j.payload)
	if err != nil {
		return nil
	}
	return data
}

// Execute implements Job.Execute
func (j *RecoveryMailJob) Execute(ctx context.Context) error {
	msg := mailer.RecoveryMessage(j.payload.To, j.payload.Name, j.payload.Link)

	if err := j.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send recovery mail: %w", err)
	}

	return nil
}
