package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/concilio/internal/interfaces"
	"github.com/ternarybob/concilio/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ErrJobNotFound is returned when a job lookup finds no record.
var ErrJobNotFound = fmt.Errorf("job not found")

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.AnalysisJob) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if job.TenantID == "" {
		return fmt.Errorf("job tenant ID is required")
	}

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.AnalysisJob, error) {
	var job models.AnalysisJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) GetJobByExternalID(ctx context.Context, externalID string) (*models.AnalysisJob, error) {
	if externalID == "" {
		return nil, ErrJobNotFound
	}

	var jobs []models.AnalysisJob
	if err := s.db.Store().Find(&jobs, badgerhold.Where("ExternalID").Eq(externalID)); err != nil {
		return nil, fmt.Errorf("failed to find job by external ID: %w", err)
	}
	if len(jobs) == 0 {
		return nil, ErrJobNotFound
	}
	return &jobs[0], nil
}

func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.AnalysisJob, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.TenantID != "" {
			query = query.And("TenantID").Eq(opts.TenantID)
		}
		if opts.Status != "" {
			query = query.And("Status").Eq(models.JobStatus(opts.Status))
		}
		if opts.Kind != "" {
			query = query.And("Kind").Eq(models.JobKind(opts.Kind))
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
		if opts.OrderBy != "" {
			if opts.OrderDir == "DESC" {
				query = query.SortBy(opts.OrderBy).Reverse()
			} else {
				query = query.SortBy(opts.OrderBy)
			}
		} else {
			query = query.SortBy("CreatedAt").Reverse()
		}
	} else {
		query = query.SortBy("CreatedAt").Reverse()
	}

	var jobs []models.AnalysisJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.AnalysisJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// GetDueJobs returns non-terminal jobs whose next check time has passed.
// BadgerHold can't index pointer timestamps, so due-time filtering happens
// in memory over the non-terminal set.
func (s *JobStorage) GetDueJobs(ctx context.Context, now time.Time, limit int) ([]*models.AnalysisJob, error) {
	var jobs []models.AnalysisJob
	query := badgerhold.Where("Status").In(
		models.JobStatusPending,
		models.JobStatusRunning,
		models.JobStatusFailed,
	).SortBy("CreatedAt")

	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to find due jobs: %w", err)
	}

	result := make([]*models.AnalysisJob, 0, len(jobs))
	for i := range jobs {
		job := &jobs[i]
		if job.IsTerminal() {
			continue
		}
		if job.NextCheckAt == nil || job.NextCheckAt.After(now) {
			continue
		}
		result = append(result, job)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *JobStorage) GetNonTerminalOlderThan(ctx context.Context, cutoff time.Time) ([]*models.AnalysisJob, error) {
	var jobs []models.AnalysisJob
	query := badgerhold.Where("Status").In(
		models.JobStatusPending,
		models.JobStatusRunning,
		models.JobStatusFailed,
	).And("CreatedAt").Lt(cutoff)

	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to find stale jobs: %w", err)
	}

	result := make([]*models.AnalysisJob, 0, len(jobs))
	for i := range jobs {
		if jobs[i].IsTerminal() {
			continue
		}
		result = append(result, &jobs[i])
	}
	return result, nil
}

func (s *JobStorage) CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	var jobs []models.AnalysisJob
	if err := s.db.Store().Find(&jobs, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	counts := make(map[models.JobStatus]int)
	for i := range jobs {
		counts[jobs[i].Status]++
	}
	return counts, nil
}
