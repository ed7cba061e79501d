package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:           2,
		QueueSize:             4,
		MaxAttempts:           3,
		RetryBaseDelay:        time.Millisecond,
		RatePerSecond:         1000,
		StuckJobAge:           time.Minute,
		StuckJobCheckInterval: time.Hour,
	}
}

func newTestRunner(store JobStore, cfg RunnerConfig) *Runner {
	return NewRunner(store, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSubmit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("persists before queueing", func(t *testing.T) {
		t.Parallel()
		store := newFakeJobStore()
		runner := newTestRunner(store, testRunnerConfig())

		job := newFakeJob(0)
		require.NoError(t, runner.Submit(ctx, job))

		assert.Equal(t, JobStatusPending, store.record(job.ID()).status)
		assert.Len(t, runner.jobChan, 1)
	})

	t.Run("rejects submissions beyond queue capacity", func(t *testing.T) {
		t.Parallel()
		store := newFakeJobStore()
		cfg := testRunnerConfig()
		cfg.QueueSize = 1
		runner := newTestRunner(store, cfg)

		require.NoError(t, runner.Submit(ctx, newFakeJob(0)))

		overflow := newFakeJob(0)
		err := runner.Submit(ctx, overflow)
		assert.ErrorIs(t, err, ErrQueueFull)
		// The row survives even when the queue is full; startup recovery
		// will requeue it.
		assert.Equal(t, JobStatusPending, store.record(overflow.ID()).status)
	})
}

func TestProcessJob(t *testing.T) {
	t.Parallel()

	t.Run("marks job completed on first success", func(t *testing.T) {
		t.Parallel()
		store := newFakeJobStore()
		runner := newTestRunner(store, testRunnerConfig())

		job := newFakeJob(0)
		store.seed(job, JobStatusPending)

		runner.processJob(job, 0)

		rec := store.record(job.ID())
		assert.Equal(t, JobStatusCompleted, rec.status)
		assert.Equal(t, 1, rec.attempts)
		assert.Equal(t, 1, job.executions())
	})

	t.Run("retries until success within attempt budget", func(t *testing.T) {
		t.Parallel()
		store := newFakeJobStore()
		runner := newTestRunner(store, testRunnerConfig())

		job := newFakeJob(2)
		store.seed(job, JobStatusPending)

		runner.processJob(job, 0)

		rec := store.record(job.ID())
		assert.Equal(t, JobStatusCompleted, rec.status)
		assert.Equal(t, 3, rec.attempts)
		assert.Equal(t, 3, job.executions())
	})

	t.Run("marks job failed after exhausting attempts", func(t *testing.T) {
		t.Parallel()
		store := newFakeJobStore()
		runner := newTestRunner(store, testRunnerConfig())

		job := newFakeJob(10)
		store.seed(job, JobStatusPending)

		runner.processJob(job, 0)

		rec := store.record(job.ID())
		assert.Equal(t, JobStatusFailed, rec.status)
		assert.Equal(t, 3, rec.attempts)
		assert.Contains(t, rec.errorMsg, "transient delivery failure")
	})
}

func TestRecover(t *testing.T) {
	t.Parallel()

	store := newFakeJobStore()
	runner := newTestRunner(store, testRunnerConfig())

	pending := newFakeJob(0)
	interrupted := newFakeJob(0)
	done := newFakeJob(0)
	store.seed(pending, JobStatusPending)
	store.seed(interrupted, JobStatusProcessing)
	store.seed(done, JobStatusCompleted)

	require.NoError(t, runner.Recover())

	assert.Len(t, runner.jobChan, 2)
	assert.Equal(t, JobStatusPending, store.record(interrupted.ID()).status)
	assert.Equal(t, JobStatusCompleted, store.record(done.ID()).status)
}

func TestRunnerEndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newFakeJobStore()
	runner := newTestRunner(store, testRunnerConfig())

	require.NoError(t, runner.Start())
	defer runner.Stop()

	job := newFakeJob(1)
	require.NoError(t, runner.Submit(ctx, job))

	assert.Eventually(t, func() bool {
		return store.record(job.ID()).status == JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, job.executions())
}
