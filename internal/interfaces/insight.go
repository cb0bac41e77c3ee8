package interfaces

import (
	"context"

	"github.com/ternarybob/concilio/internal/models"
)

// JobClient is the typed client for the external insight engine.
// Implementations classify upstream failures into retryable and fatal
// errors and protect each (endpoint, tenant) pair with a circuit breaker.
type JobClient interface {
	// Submit sends a new job and returns the engine-assigned correlation ID.
	Submit(ctx context.Context, kind models.JobKind, tenantID string, payload map[string]interface{}) (string, error)

	// GetStatus polls the engine for the job's current state.
	GetStatus(ctx context.Context, kind models.JobKind, tenantID, externalID string) (*models.UpstreamStatus, error)

	// GetResult fetches the raw result payload of a completed job.
	GetResult(ctx context.Context, kind models.JobKind, tenantID, externalID string) (map[string]interface{}, error)
}
