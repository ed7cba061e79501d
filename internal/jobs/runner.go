package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RunnerConfig holds configuration for the job runner.
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers drain the queue.
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory job channel.
	QueueSize int

	// MaxAttempts bounds how often a failing job is retried before it is
	// marked failed for good.
	MaxAttempts int

	// RetryBaseDelay is the first retry delay; each further retry doubles
	// it.
	RetryBaseDelay time.Duration

	// RatePerSecond caps dispatch attempts per second across the whole
	// pool, protecting the downstream mail transport.
	RatePerSecond int

	// StuckJobAge defines how long a job can stay in processing state
	// before it is considered stuck and reset.
	StuckJobAge time.Duration

	// StuckJobCheckInterval defines how often to check for stuck jobs.
	// If zero, defaults to 5 minutes.
	StuckJobCheckInterval time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:           5,
		QueueSize:             100,
		MaxAttempts:           5,
		RetryBaseDelay:        2 * time.Second,
		RatePerSecond:         10,
		StuckJobAge:           30 * time.Minute,
		StuckJobCheckInterval: 5 * time.Minute,
	}
}

// Runner manages background mail job processing: a bounded pool of workers
// draining one shared queue, with a pool-wide rate limit on dispatch
// attempts and bounded exponential-backoff retries per job.
type Runner struct {
	store      JobStore
	jobChan    chan Job
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     RunnerConfig
	logger     *slog.Logger
	limiter    *rate.Limiter
}

// NewRunner creates a new Runner.
func NewRunner(store JobStore, config RunnerConfig, logger *slog.Logger) *Runner {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = time.Second
	}
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = 1
	}
	if config.StuckJobCheckInterval == 0 {
		config.StuckJobCheckInterval = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		store:      store,
		jobChan:    make(chan Job, config.QueueSize),
		ctx:        ctx,
		cancelFunc: cancel,
		wg:         sync.WaitGroup{},
		config:     config,
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Limit(config.RatePerSecond), config.WorkerCount),
	}
}

// Submit persists a new job and adds it to the queue. The relational write
// happens first, so a crash between the two steps is recovered by the
// startup requeue rather than losing the job.
func (r *Runner) Submit(ctx context.Context, job Job) error {
	if err := r.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	select {
	case r.jobChan <- job:
		r.logger.Debug("job enqueued",
			"job_id", job.ID(),
			"job_type", job.Type(),
			"queue_len", len(r.jobChan),
			"queue_cap", cap(r.jobChan))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(r.jobChan))
	}
}

// Start recovers unfinished jobs and launches the worker pool.
func (r *Runner) Start() error {
	if err := r.Recover(); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.stuckJobMonitor()

	return nil
}

// Stop gracefully shuts down the runner.
func (r *Runner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
	close(r.jobChan)
}

// Recover requeues jobs that were pending or interrupted mid-processing
// when the previous process stopped.
func (r *Runner) Recover() error {
	ctx := context.Background()

	pendingJobs, err := r.store.GetPendingJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending jobs: %w", err)
	}

	processingJobs, err := r.store.GetProcessingJobs(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to get processing jobs: %w", err)
	}

	r.logger.Info("recovering unfinished jobs",
		"pending_count", len(pendingJobs),
		"processing_count", len(processingJobs))

	for _, job := range pendingJobs {
		r.requeue(job)
	}

	for _, job := range processingJobs {
		if err := r.store.UpdateJobStatus(ctx, job.ID(), JobStatusPending, "reset after recovery"); err != nil {
			r.logger.Error("failed to reset processing job status",
				"job_id", job.ID(),
				"job_type", job.Type(),
				"error", err)
			continue
		}
		r.requeue(job)
	}

	return nil
}

func (r *Runner) requeue(job Job) {
	select {
	case r.jobChan <- job:
	default:
		r.logger.Error("failed to requeue job, queue is full",
			"job_id", job.ID(),
			"job_type", job.Type())
	}
}

// worker drains jobs from the queue until shutdown.
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case job, ok := <-r.jobChan:
			if !ok {
				r.logger.Debug("job channel closed, stopping worker", "worker_id", id)
				return
			}

			r.processJob(job, id)
		}
	}
}

// processJob executes a single job with the pool-wide rate limit applied
// to every dispatch attempt and bounded exponential backoff between
// attempts. The job reaches a terminal status either way.
func (r *Runner) processJob(job Job, workerID int) {
	ctx := context.Background()
	log := r.logger.With(
		"job_id", job.ID(),
		"job_type", job.Type(),
		"worker_id", workerID,
	)

	if err := r.store.UpdateJobStatus(ctx, job.ID(), JobStatusProcessing, ""); err != nil {
		log.Error("failed to update job status to processing", "error", err)
		return
	}

	log.Info("processing job")

	var err error
	delay := r.config.RetryBaseDelay
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if waitErr := r.limiter.Wait(r.ctx); waitErr != nil {
			// Shutdown while waiting for a dispatch slot; leave the job in
			// processing state for the next startup's recovery pass.
			return
		}

		if recordErr := r.store.RecordAttempt(ctx, job.ID()); recordErr != nil {
			log.Error("failed to record job attempt", "error", recordErr)
		}

		err = job.Execute(ctx)
		if err == nil {
			break
		}

		log.Warn("job attempt failed",
			"attempt", attempt,
			"max_attempts", r.config.MaxAttempts,
			"error", err)

		if attempt < r.config.MaxAttempts {
			select {
			case <-r.ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	if err != nil {
		log.Error("job failed after all attempts", "error", err)
		if updateErr := r.store.UpdateJobStatus(ctx, job.ID(), JobStatusFailed, err.Error()); updateErr != nil {
			log.Error("failed to update job status to failed", "error", updateErr)
		}
		return
	}

	log.Info("job completed")
	if updateErr := r.store.UpdateJobStatus(ctx, job.ID(), JobStatusCompleted, ""); updateErr != nil {
		log.Error("failed to update job status to completed", "error", updateErr)
	}
}

// stuckJobMonitor periodically resets jobs that have been in processing
// state for too long, e.g. after a worker died mid-dispatch.
func (r *Runner) stuckJobMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckJobCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			ctx := context.Background()

			stuckJobs, err := r.store.GetProcessingJobs(ctx, r.config.StuckJobAge)
			if err != nil {
				r.logger.Error("failed to check for stuck jobs", "error", err)
				continue
			}

			if len(stuckJobs) == 0 {
				continue
			}

			r.logger.Info("found stuck jobs", "count", len(stuckJobs))

			for _, job := range stuckJobs {
				if err := r.store.UpdateJobStatus(ctx, job.ID(), JobStatusPending,
					"reset after being stuck in processing state"); err != nil {
					r.logger.Error("failed to reset stuck job status",
						"job_id", job.ID(),
						"job_type", job.Type(),
						"error", err)
					continue
				}
				r.requeue(job)
			}
		}
	}
}
