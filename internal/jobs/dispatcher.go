package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/avolkov/taskhub-api/internal/platform/mailer"
	"github.com/avolkov/taskhub-api/internal/store"
)

// Dispatcher is the enqueue-side facade over the runner. Services use it
// to hand off mail work without knowing about job construction; they get
// back control as soon as the job row is persisted and queued, never
// waiting for delivery.
type Dispatcher struct {
	runner    *Runner
	transport mailer.Transport
	tokens    store.VerificationTokenStore
}

// NewDispatcher creates a dispatcher bound to the given runner and the
// dependencies jobs need at execution time.
func NewDispatcher(runner *Runner, transport mailer.Transport, tokens store.VerificationTokenStore) *Dispatcher {
	return &Dispatcher{
		runner:    runner,
		transport: transport,
		tokens:    tokens,
	}
}

// EnqueueVerificationMail persists and queues a verification mail job
// carrying the originating token id for the worker's status write-back.
func (d *Dispatcher) EnqueueVerificationMail(ctx context.Context, tokenID uuid.UUID, to, name, link string) error {
	job, err := NewVerificationMailJob(VerificationMailPayload{
		TokenID: tokenID,
		To:      to,
		Name:    name,
		Link:    link,
	}, d.transport, d.tokens)
	if err != nil {
		return fmt.Errorf("failed to create verification mail job: %w", err)
	}

	return d.runner.Submit(ctx, job)
}

// EnqueueRecoveryMail persists and queues a password-recovery mail job.
func (d *Dispatcher) EnqueueRecoveryMail(ctx context.Context, to, name, link string) error {
	job, err := NewRecoveryMailJob(RecoveryMailPayload{
		To:   to,
		Name: name,
		Link: link,
	}, d.transport)
	if err != nil {
		return fmt.Errorf("failed to create recovery mail job: %w", err)
	}

	return d.runner.Submit(ctx, job)
}

// MailJobFactory implements Factory for the mail job types, so the job
// store can rebuild executable jobs from persisted rows during recovery.
type MailJobFactory struct {
	transport mailer.Transport
	tokens    store.VerificationTokenStore
}

// NewMailJobFactory creates a factory for the mail job types.
func NewMailJobFactory(transport mailer.Transport, tokens store.VerificationTokenStore) *MailJobFactory {
	return &MailJobFactory{transport: transport, tokens: tokens}
}

var _ Factory = (*MailJobFactory)(nil)

// Restore implements Factory.Restore
func (f *MailJobFactory) Restore(id uuid.UUID, jobType string, payload []byte) (Job, error) {
	switch jobType {
	case JobTypeVerificationMail:
		return restoreVerificationMailJob(id, payload, f.transport, f.tokens)
	case JobTypeRecoveryMail:
		return restoreRecoveryMailJob(id, payload, f.transport)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownJobType, jobType)
	}
}
