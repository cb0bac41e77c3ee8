package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/concilio/internal/models"
)

// JobListOptions controls job listing queries
type JobListOptions struct {
	TenantID string
	Status   string
	Kind     string
	Limit    int
	Offset   int
	OrderBy  string
	OrderDir string
}

// JobStorage persists analysis job records
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.AnalysisJob) error
	GetJob(ctx context.Context, jobID string) (*models.AnalysisJob, error)
	GetJobByExternalID(ctx context.Context, externalID string) (*models.AnalysisJob, error)
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.AnalysisJob, error)

	// GetDueJobs returns non-terminal jobs whose next check time has passed.
	GetDueJobs(ctx context.Context, now time.Time, limit int) ([]*models.AnalysisJob, error)

	// GetNonTerminalOlderThan returns non-terminal jobs created before cutoff.
	GetNonTerminalOlderThan(ctx context.Context, cutoff time.Time) ([]*models.AnalysisJob, error)

	CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}

// CallStorage persists call records
type CallStorage interface {
	SaveCall(ctx context.Context, call *models.CallRecord) error
	GetCall(ctx context.Context, tenantID, callID string) (*models.CallRecord, error)
}

// LockStorage is the lease-based lock provider backing finalization.
// TryAcquire never blocks; a held, unexpired lease means contention.
type LockStorage interface {
	TryAcquire(ctx context.Context, tenantID, jobID, token string, lease time.Duration) (bool, error)
	Release(ctx context.Context, tenantID, jobID, token string) error

	// Extend renews a held lease (heartbeat for slow downstream applies).
	Extend(ctx context.Context, tenantID, jobID, token string, lease time.Duration) (bool, error)

	// DeleteExpired removes lapsed leases; returns how many were reclaimed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	JobStorage() JobStorage
	CallStorage() CallStorage
	LockStorage() LockStorage
	Close() error
}
