package poller

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/concilio/internal/insight"
	"github.com/ternarybob/concilio/internal/interfaces"
	"github.com/ternarybob/concilio/internal/models"
	"github.com/ternarybob/concilio/internal/services/reconcile"
)

// Config tunes the poller loop.
type Config struct {
	// PollInterval is how often the dispatcher scans for due jobs.
	PollInterval time.Duration
	// Concurrency is the number of status-check workers.
	Concurrency int
	// MaxRetries bounds retryable-failure resubmissions per job.
	MaxRetries int
	// MaxJobAge is the absolute ceiling; older non-terminal jobs are
	// forced to TIMEOUT regardless of upstream state.
	MaxJobAge time.Duration
	// BatchSize caps how many due jobs one scan picks up.
	BatchSize int
}

// DefaultConfig returns the default poller tuning.
func DefaultConfig() Config {
	return Config{
		PollInterval: 2 * time.Second,
		Concurrency:  4,
		MaxRetries:   3,
		MaxJobAge:    24 * time.Hour,
		BatchSize:    50,
	}
}

// Poller drives the pull path: it scans for jobs whose next check time
// has passed and runs a status check for each. Every check is
// self-contained, so redundant invocations (overlapping scans, a racing
// webhook) are safe.
type Poller struct {
	jobs   interfaces.JobStorage
	client interfaces.JobClient
	engine *reconcile.Engine
	logger arbor.ILogger
	config Config

	work   chan string
	wg     sync.WaitGroup
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New creates a poller.
func New(storage interfaces.StorageManager, client interfaces.JobClient, engine *reconcile.Engine, config Config, logger arbor.ILogger) *Poller {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConfig().Concurrency
	}
	if config.MaxJobAge <= 0 {
		config.MaxJobAge = DefaultConfig().MaxJobAge
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	return &Poller{
		jobs:   storage.JobStorage(),
		client: client,
		engine: engine,
		logger: logger,
		config: config,
	}
}

// Start launches the dispatcher and worker pool. Idempotent: a second
// Start while running is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.work = make(chan string, p.config.BatchSize)

	for i := 0; i < p.config.Concurrency; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	p.wg.Add(1)
	go p.dispatch(ctx)

	p.logger.Info().
		Int("concurrency", p.config.Concurrency).
		Str("interval", p.config.PollInterval.String()).
		Msg("Poller started")
}

// Stop cancels the loop and waits for in-flight checks to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	p.logger.Info().Msg("Poller stopped")
}

func (p *Poller) dispatch(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.work)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.scan(ctx)
		}
	}
}

func (p *Poller) scan(ctx context.Context) {
	due, err := p.jobs.GetDueJobs(ctx, time.Now(), p.config.BatchSize)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to scan for due jobs")
		return
	}

	for _, job := range due {
		select {
		case <-ctx.Done():
			return
		case p.work <- job.ID:
		}
	}
}

func (p *Poller) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case jobID, ok := <-p.work:
			if !ok {
				return
			}
			if err := p.CheckJob(ctx, jobID); err != nil {
				p.logger.Error().Err(err).Str("job_id", jobID).Msg("Status check failed")
			}
		}
	}
}

// CheckJob runs one status-check invocation for the job. Exported so
// at-least-once schedulers outside the built-in loop can drive it.
func (p *Poller) CheckJob(ctx context.Context, jobID string) error {
	job, err := p.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	// Terminal and ceiling guards come before any upstream call
	if job.IsTerminal() {
		return nil
	}
	if job.Age(time.Now()) > p.config.MaxJobAge {
		return p.engine.Timeout(ctx, job)
	}

	if job.Status == models.JobStatusPending && job.ExternalID == "" {
		// Submission never reached the engine; try again
		return p.submitPending(ctx, job)
	}
	if job.Status == models.JobStatusFailed {
		// Retryable failure with budget left: resubmit
		return p.resubmit(ctx, job)
	}

	status, err := p.client.GetStatus(ctx, job.Kind, job.TenantID, job.ExternalID)
	if err != nil {
		return p.handleClientError(ctx, job, err)
	}

	switch status.State {
	case models.UpstreamProcessing:
		p.reschedule(ctx, job)
		return nil

	case models.UpstreamCompleted:
		payload, err := p.client.GetResult(ctx, job.Kind, job.TenantID, job.ExternalID)
		if err != nil {
			return p.handleClientError(ctx, job, err)
		}
		result := insight.Normalize(job.Kind, job.CallRef(), payload)
		outcome, err := p.engine.Finalize(ctx, job.ID, result)
		if err != nil {
			return err
		}
		p.logger.Info().
			Str("job_id", job.ID).
			Str("outcome", string(outcome)).
			Msg("Poll observed completion")
		return nil

	case models.UpstreamFailed:
		jobErr := status.Error
		if jobErr == nil {
			jobErr = &models.JobError{Code: "upstream_error", Message: "upstream reported failure without detail", Retryable: false}
		}
		return p.fail(ctx, job, jobErr)
	}

	return nil
}

// submitPending retries a submission that previously failed to reach the
// engine. Costs no retry budget; the job was never accepted upstream.
func (p *Poller) submitPending(ctx context.Context, job *models.AnalysisJob) error {
	externalID, err := p.client.Submit(ctx, job.Kind, job.TenantID, job.Input)
	if err != nil {
		return p.handleClientError(ctx, job, err)
	}

	if err := job.MarkRunning(externalID); err != nil {
		return err
	}
	job.RecordAttempt(time.Now().Add(Delay(0)))
	if err := p.jobs.SaveJob(ctx, job); err != nil {
		return err
	}

	p.logger.Info().
		Str("job_id", job.ID).
		Str("external_id", externalID).
		Msg("Deferred submission accepted by engine")
	return nil
}

// resubmit sends a retryable-failed job back to the engine, consuming
// one unit of retry budget.
func (p *Poller) resubmit(ctx context.Context, job *models.AnalysisJob) error {
	if !job.CanRetry(p.config.MaxRetries) {
		// Budget ran out between scheduling and execution
		return p.engine.Fail(ctx, job, job.LastError, 0)
	}

	externalID, err := p.client.Submit(ctx, job.Kind, job.TenantID, job.Input)
	if err != nil {
		return p.handleClientError(ctx, job, err)
	}

	if err := job.MarkRunning(externalID); err != nil {
		return err
	}
	job.RecordAttempt(time.Now().Add(Delay(0)))
	if err := p.jobs.SaveJob(ctx, job); err != nil {
		return err
	}

	p.logger.Info().
		Str("job_id", job.ID).
		Str("external_id", externalID).
		Int("retry_count", job.RetryCount).
		Msg("Job resubmitted after retryable failure")
	return nil
}

func (p *Poller) reschedule(ctx context.Context, job *models.AnalysisJob) {
	job.RecordAttempt(time.Now().Add(Delay(job.Attempts)))
	if err := p.jobs.SaveJob(ctx, job); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to reschedule job")
		return
	}
	p.logger.Debug().
		Str("job_id", job.ID).
		Int("attempts", job.Attempts).
		Str("next_check_at", job.NextCheckAt.Format(time.RFC3339)).
		Msg("Job still processing, rescheduled")
}

// handleClientError maps a client failure onto the job: transient errors
// reschedule, fatal errors fail the job immediately.
func (p *Poller) handleClientError(ctx context.Context, job *models.AnalysisJob, err error) error {
	if insight.IsRetryable(err) {
		p.logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Msg("Transient upstream error, backing off")
		p.reschedule(ctx, job)
		return nil
	}
	return p.fail(ctx, job, &models.JobError{
		Code:      insight.ErrorCode(err),
		Message:   err.Error(),
		Retryable: false,
	})
}

// fail applies the shared fail/retry decision and schedules the retry
// check when budget remains.
func (p *Poller) fail(ctx context.Context, job *models.AnalysisJob, jobErr *models.JobError) error {
	if err := p.engine.Fail(ctx, job, jobErr, p.config.MaxRetries); err != nil {
		return err
	}
	if job.CanRetry(p.config.MaxRetries) {
		job.RecordAttempt(time.Now().Add(Delay(job.Attempts)))
		return p.jobs.SaveJob(ctx, job)
	}
	return nil
}
