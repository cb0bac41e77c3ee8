package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/concilio/internal/insight"
	"github.com/ternarybob/concilio/internal/interfaces"
	"github.com/ternarybob/concilio/internal/models"
	"github.com/ternarybob/concilio/internal/services/poller"
	badgerstorage "github.com/ternarybob/concilio/internal/storage/badger"
)

// ErrJobNotFound is returned for unknown jobs and for jobs belonging to
// a different tenant; the two cases are indistinguishable to the caller.
var ErrJobNotFound = badgerstorage.ErrJobNotFound

// Service owns the submission path and tenant-scoped job queries.
type Service struct {
	jobs   interfaces.JobStorage
	client interfaces.JobClient
	events interfaces.EventService
	logger arbor.ILogger
}

// NewService creates the job service.
func NewService(storage interfaces.StorageManager, client interfaces.JobClient, events interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		jobs:   storage.JobStorage(),
		client: client,
		events: events,
		logger: logger,
	}
}

// Submit creates a job record and delegates the work to the insight
// engine. The record is persisted before the upstream call so a crash or
// engine outage never loses the job: a PENDING record with no external
// ID is picked up by the poller and resubmitted.
func (s *Service) Submit(ctx context.Context, tenantID string, kind models.JobKind, input map[string]interface{}) (*models.AnalysisJob, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	if !models.ValidJobKind(kind) {
		return nil, fmt.Errorf("invalid job kind: %s", kind)
	}

	job := models.NewAnalysisJob(kind, tenantID, input)

	// First check is due immediately; the poller picks it up whether or
	// not the submission below lands
	now := time.Now()
	job.NextCheckAt = &now

	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	externalID, err := s.client.Submit(ctx, kind, tenantID, input)
	if err != nil {
		if !insight.IsRetryable(err) {
			jobErr := &models.JobError{Code: insight.ErrorCode(err), Message: err.Error(), Retryable: false}
			if markErr := job.MarkFailed(jobErr.Code, jobErr.Message, false); markErr == nil {
				s.jobs.SaveJob(ctx, job)
			}
			return nil, fmt.Errorf("submission rejected by engine: %w", err)
		}

		// Transient: leave PENDING, the poller resubmits on its schedule
		s.logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Msg("Submission deferred, engine temporarily unavailable")
		next := time.Now().Add(poller.Delay(0))
		job.NextCheckAt = &next
		if saveErr := s.jobs.SaveJob(ctx, job); saveErr != nil {
			return nil, saveErr
		}
		return job, nil
	}

	if err := job.MarkRunning(externalID); err != nil {
		return nil, err
	}
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("external_id", externalID).
		Str("tenant_id", tenantID).
		Str("kind", string(kind)).
		Msg("Job submitted")

	s.publishSubmitted(ctx, job)
	return job, nil
}

// Get returns a job scoped to the caller's tenant. A job owned by
// another tenant reads as not found.
func (s *Service) Get(ctx context.Context, tenantID, jobID string) (*models.AnalysisJob, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.TenantID != tenantID {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// List returns the tenant's jobs, optionally filtered by status and kind.
func (s *Service) List(ctx context.Context, tenantID string, opts *interfaces.JobListOptions) ([]*models.AnalysisJob, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	if opts == nil {
		opts = &interfaces.JobListOptions{}
	}
	opts.TenantID = tenantID
	return s.jobs.ListJobs(ctx, opts)
}

// Stats returns job counts by status across all tenants.
func (s *Service) Stats(ctx context.Context) (map[models.JobStatus]int, error) {
	return s.jobs.CountJobsByStatus(ctx)
}

func (s *Service) publishSubmitted(ctx context.Context, job *models.AnalysisJob) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, interfaces.Event{
		Type:     interfaces.EventJobSubmitted,
		TenantID: job.TenantID,
		Payload: map[string]interface{}{
			"job_id":  job.ID,
			"kind":    string(job.Kind),
			"call_id": job.CallRef(),
		},
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to publish submission event")
	}
}
