package interfaces

import (
	"context"

	"github.com/ternarybob/concilio/internal/models"
)

// ResultProcessor applies a normalized analysis result to business
// entities. Invoked only from inside the finalization lock; must be
// idempotent on repeated identical input.
type ResultProcessor interface {
	Apply(ctx context.Context, job *models.AnalysisJob, result *models.NormalizedResult) error
}
