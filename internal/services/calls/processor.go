package calls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/concilio/internal/interfaces"
	"github.com/ternarybob/concilio/internal/models"
	badgerstorage "github.com/ternarybob/concilio/internal/storage/badger"
)

// Processor applies normalized analysis results to call records. It is
// the default ResultProcessor; repeated application of an identical
// result leaves the call record's analysis fields unchanged.
type Processor struct {
	calls  interfaces.CallStorage
	logger arbor.ILogger
}

// NewProcessor creates the call-record result processor.
func NewProcessor(calls interfaces.CallStorage, logger arbor.ILogger) *Processor {
	return &Processor{
		calls:  calls,
		logger: logger,
	}
}

var _ interfaces.ResultProcessor = (*Processor)(nil)

// Apply merges the normalized result into the referenced call record,
// creating the record if the call has not been seen before.
func (p *Processor) Apply(ctx context.Context, job *models.AnalysisJob, result *models.NormalizedResult) error {
	callID := result.CallRef
	if callID == "" {
		callID = job.CallRef()
	}
	if callID == "" {
		return fmt.Errorf("result for job %s has no call reference", job.ID)
	}

	now := time.Now()

	call, err := p.calls.GetCall(ctx, job.TenantID, callID)
	if err != nil {
		if !errors.Is(err, badgerstorage.ErrCallNotFound) {
			return fmt.Errorf("failed to load call %s: %w", callID, err)
		}
		call = &models.CallRecord{
			ID:        callID,
			TenantID:  job.TenantID,
			CreatedAt: now,
		}
	}

	switch result.Kind {
	case models.JobKindTranscription:
		call.Transcript = result.Transcript
	case models.JobKindAnalysis:
		call.Scores = result.Scores
		call.ComplianceFlags = result.ComplianceFlags
	case models.JobKindSegmentation:
		call.Segments = result.Segments
	default:
		return fmt.Errorf("unknown result kind: %s", result.Kind)
	}

	call.AnalyzedAt = &now
	call.UpdatedAt = now

	if err := p.calls.SaveCall(ctx, call); err != nil {
		return fmt.Errorf("failed to save call %s: %w", callID, err)
	}

	p.logger.Info().
		Str("call_id", callID).
		Str("tenant_id", job.TenantID).
		Str("job_id", job.ID).
		Str("kind", string(result.Kind)).
		Msg("Analysis result applied to call record")

	return nil
}
