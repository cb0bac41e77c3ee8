package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/concilio/internal/interfaces"
	"github.com/ternarybob/concilio/internal/models"
)

// Outcome is the result of a finalization attempt. Lock contention is an
// outcome, not an error: it means the other completion path won the race.
type Outcome string

const (
	OutcomeApplied          Outcome = "applied"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeLockContended    Outcome = "processing_by_another"
)

// DefaultLockLease is how long a finalization lease is held before a
// crashed holder's lock is reclaimable.
const DefaultLockLease = 300 * time.Second

// Engine is the idempotent finalization layer. The webhook path and the
// poll path both funnel completed results through Finalize; the
// tenant-scoped lock plus the result fingerprint guarantee the domain
// processor runs exactly once per distinct result.
type Engine struct {
	jobs      interfaces.JobStorage
	locks     interfaces.LockStorage
	processor interfaces.ResultProcessor
	events    interfaces.EventService
	logger    arbor.ILogger
	lease     time.Duration
}

// NewEngine creates the reconciliation engine.
func NewEngine(storage interfaces.StorageManager, processor interfaces.ResultProcessor, events interfaces.EventService, lease time.Duration, logger arbor.ILogger) *Engine {
	if lease <= 0 {
		lease = DefaultLockLease
	}
	return &Engine{
		jobs:      storage.JobStorage(),
		locks:     storage.LockStorage(),
		processor: processor,
		events:    events,
		logger:    logger,
		lease:     lease,
	}
}

// Finalize applies a completed result to the job exactly once.
//
// The sequence is: cheap terminal check, non-blocking lock acquisition,
// re-read under the lock, fingerprint dedup, apply, persist SUCCEEDED.
// Any lock-provider failure is treated as contention (fail closed) so a
// flaky lock backend can never cause a double apply.
func (e *Engine) Finalize(ctx context.Context, jobID string, result *models.NormalizedResult) (Outcome, error) {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	if job.Status == models.JobStatusSucceeded {
		return OutcomeAlreadyProcessed, nil
	}
	if job.IsTerminal() {
		return "", fmt.Errorf("job %s is terminal (%s), cannot finalize", jobID, job.Status)
	}

	token := uuid.New().String()
	acquired, err := e.locks.TryAcquire(ctx, job.TenantID, job.ID, token, e.lease)
	if err != nil {
		e.logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Msg("Lock provider error during finalize, treating as contended")
		return OutcomeLockContended, nil
	}
	if !acquired {
		e.logger.Debug().
			Str("job_id", job.ID).
			Str("tenant_id", job.TenantID).
			Msg("Finalize lock contended, other path is completing this job")
		return OutcomeLockContended, nil
	}
	defer func() {
		if err := e.locks.Release(context.WithoutCancel(ctx), job.TenantID, job.ID, token); err != nil {
			e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to release finalize lock")
		}
	}()

	// Re-read under the lock: the other path may have finished between the
	// first check and acquisition
	job, err = e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("failed to reload job %s: %w", jobID, err)
	}

	fingerprint := Fingerprint(result)

	if job.Status == models.JobStatusSucceeded {
		if job.Fingerprint != "" && job.Fingerprint != fingerprint {
			e.logger.Warn().
				Str("job_id", job.ID).
				Msg("Replay carries a different result fingerprint than the applied one")
		}
		return OutcomeAlreadyProcessed, nil
	}
	if job.IsTerminal() {
		return "", fmt.Errorf("job %s is terminal (%s), cannot finalize", jobID, job.Status)
	}

	if err := e.processor.Apply(ctx, job, result); err != nil {
		// Job stays non-terminal; a later webhook or poll retries the apply
		return "", fmt.Errorf("failed to apply result for job %s: %w", jobID, err)
	}

	if err := job.MarkSucceeded(fingerprint); err != nil {
		return "", err
	}
	if err := e.jobs.SaveJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to persist job %s: %w", jobID, err)
	}

	e.logger.Info().
		Str("job_id", job.ID).
		Str("tenant_id", job.TenantID).
		Str("kind", string(job.Kind)).
		Msg("Job finalized")

	e.publish(ctx, interfaces.EventAnalysisCompleted, job)
	return OutcomeApplied, nil
}

// Fail records an upstream failure on the job. Retryable failures within
// budget stay schedulable; everything else is terminal and emits a
// failure event.
func (e *Engine) Fail(ctx context.Context, job *models.AnalysisJob, jobErr *models.JobError, maxRetries int) error {
	if job.IsTerminal() {
		return nil
	}

	retryable := jobErr.Retryable && job.RetryCount < maxRetries
	if err := job.MarkFailed(jobErr.Code, jobErr.Message, retryable); err != nil {
		return err
	}
	if err := e.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to persist job %s: %w", job.ID, err)
	}

	e.logger.Warn().
		Str("job_id", job.ID).
		Str("tenant_id", job.TenantID).
		Str("code", jobErr.Code).
		Bool("retryable", retryable).
		Msg("Job failed")

	if !retryable {
		e.publish(ctx, interfaces.EventAnalysisFailed, job)
	}
	return nil
}

// Timeout forces the job to TIMEOUT once it has exceeded the absolute
// age ceiling. Pre-empts retryability.
func (e *Engine) Timeout(ctx context.Context, job *models.AnalysisJob) error {
	if job.Status == models.JobStatusTimeout {
		return nil
	}
	if err := job.MarkTimeout(); err != nil {
		return err
	}
	if err := e.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to persist job %s: %w", job.ID, err)
	}

	e.logger.Warn().
		Str("job_id", job.ID).
		Str("tenant_id", job.TenantID).
		Str("age", job.Age(time.Now()).String()).
		Msg("Job exceeded age ceiling, marked timeout")

	e.publish(ctx, interfaces.EventJobTimeout, job)
	return nil
}

func (e *Engine) publish(ctx context.Context, eventType interfaces.EventType, job *models.AnalysisJob) {
	if e.events == nil {
		return
	}
	err := e.events.Publish(ctx, interfaces.Event{
		Type:     eventType,
		TenantID: job.TenantID,
		Payload: map[string]interface{}{
			"job_id":  job.ID,
			"kind":    string(job.Kind),
			"status":  string(job.Status),
			"call_id": job.CallRef(),
		},
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to publish job event")
	}
}
