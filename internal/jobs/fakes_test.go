package jobs

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/taskhub-api/internal/domain"
	"github.com/avolkov/taskhub-api/internal/platform/mailer"
	"github.com/avolkov/taskhub-api/internal/store"
)

// jobRecord mirrors what the relational store tracks per job.
type jobRecord struct {
	job      Job
	status   JobStatus
	attempts int
	errorMsg string
}

type fakeJobStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*jobRecord
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{records: make(map[uuid.UUID]*jobRecord)}
}

func (s *fakeJobStore) SaveJob(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[job.ID()] = &jobRecord{job: job, status: JobStatusPending}
	return nil
}

func (s *fakeJobStore) UpdateJobStatus(_ context.Context, jobID uuid.UUID, status JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jobID]
	if !ok {
		return store.ErrNotFound
	}
	rec.status = status
	rec.errorMsg = errorMsg
	return nil
}

func (s *fakeJobStore) RecordAttempt(_ context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jobID]
	if !ok {
		return store.ErrNotFound
	}
	rec.attempts++
	return nil
}

func (s *fakeJobStore) GetPendingJobs(_ context.Context) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Job
	for _, rec := range s.records {
		if rec.status == JobStatusPending {
			out = append(out, rec.job)
		}
	}
	return out, nil
}

func (s *fakeJobStore) GetProcessingJobs(_ context.Context, _ time.Duration) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Job
	for _, rec := range s.records {
		if rec.status == JobStatusProcessing {
			out = append(out, rec.job)
		}
	}
	return out, nil
}

func (s *fakeJobStore) WithTx(_ *sql.Tx) JobStore {
	return s
}

func (s *fakeJobStore) record(jobID uuid.UUID) jobRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jobID]
	if !ok {
		return jobRecord{}
	}
	return *rec
}

// seed inserts a record directly, bypassing Submit, to model rows left
// over from a previous process.
func (s *fakeJobStore) seed(job Job, status JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[job.ID()] = &jobRecord{job: job, status: status}
}

// fakeJob fails its first failures executions, then succeeds.
type fakeJob struct {
	id       uuid.UUID
	mu       sync.Mutex
	failures int
	runs     int
}

func newFakeJob(failures int) *fakeJob {
	return &fakeJob{id: uuid.New(), failures: failures}
}

func (j *fakeJob) ID() uuid.UUID  { return j.id }
func (j *fakeJob) Type() string   { return "fake" }
func (j *fakeJob) Payload() []byte { return []byte(`{}`) }

func (j *fakeJob) Execute(_ context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs++
	if j.runs <= j.failures {
		return errors.New("transient delivery failure")
	}
	return nil
}

func (j *fakeJob) executions() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

// fakeTransport records sent messages and can be told to fail.
type fakeTransport struct {
	mu      sync.Mutex
	sent    []*mailer.Message
	sendErr error
}

func (t *fakeTransport) Send(_ context.Context, msg *mailer.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *fakeTransport) sentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

// fakeTokenStatusStore implements store.VerificationTokenStore recording
// UpdateStatus calls. The mail jobs only ever use UpdateStatus.
type fakeTokenStatusStore struct {
	mu       sync.Mutex
	statuses map[uuid.UUID]domain.VerificationStatus
	updErr   error
}

func newFakeTokenStatusStore() *fakeTokenStatusStore {
	return &fakeTokenStatusStore{statuses: make(map[uuid.UUID]domain.VerificationStatus)}
}

func (s *fakeTokenStatusStore) Create(_ context.Context, _ *domain.VerificationToken) error {
	return nil
}

func (s *fakeTokenStatusStore) GetByDigest(_ context.Context, _ string) (*domain.VerificationToken, error) {
	return nil, store.ErrTokenNotFound
}

func (s *fakeTokenStatusStore) Save(_ context.Context, _ *domain.VerificationToken) error {
	return nil
}

func (s *fakeTokenStatusStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.VerificationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updErr != nil {
		return s.updErr
	}
	s.statuses[id] = status
	return nil
}

func (s *fakeTokenStatusStore) BulkExpireActive(_ context.Context, _ uuid.UUID) (int, error) {
	return 0, nil
}

func (s *fakeTokenStatusStore) WithTx(_ *sql.Tx) store.VerificationTokenStore {
	return s
}

func (s *fakeTokenStatusStore) status(id uuid.UUID) (domain.VerificationStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[id]
	return st, ok
}
