package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/concilio/internal/insight"
	"github.com/ternarybob/concilio/internal/interfaces"
	"github.com/ternarybob/concilio/internal/models"
	"github.com/ternarybob/concilio/internal/services/poller"
	"github.com/ternarybob/concilio/internal/services/reconcile"
	"github.com/ternarybob/concilio/internal/services/webhook"
	badgerstorage "github.com/ternarybob/concilio/internal/storage/badger"
)

const maxWebhookBody = 1 * 1024 * 1024

// WebhookHandler is the push path: the insight engine notifies completion
// here. Verification runs before any job lookup so rejected requests never
// learn whether the referenced job exists.
type WebhookHandler struct {
	verifier   *webhook.Verifier
	jobs       interfaces.JobStorage
	engine     *reconcile.Engine
	maxRetries int
	logger     arbor.ILogger
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(verifier *webhook.Verifier, storage interfaces.StorageManager, engine *reconcile.Engine, maxRetries int, logger arbor.ILogger) *WebhookHandler {
	return &WebhookHandler{
		verifier:   verifier,
		jobs:       storage.JobStorage(),
		engine:     engine,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// InsightWebhookHandler handles completion notifications from the engine
// POST /api/webhooks/insight
func (h *WebhookHandler) InsightWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	ctx := r.Context()
	taskID := r.Header.Get("X-Task-Id")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "unreadable_body")
		return
	}

	if err := h.verifier.Verify(body, r.Header.Get("X-Signature"), r.Header.Get("X-Timestamp")); err != nil {
		// MissingHeaders, InvalidSignature, and TimestampExpired all
		// surface identically; the verifier logs them distinctly
		WriteError(w, http.StatusUnauthorized, "invalid_signature")
		return
	}

	envelope, err := models.WebhookEnvelopeFromJSON(body)
	if err != nil {
		h.logger.Warn().Err(err).Str("task_id", taskID).Msg("Webhook envelope rejected")
		WriteError(w, http.StatusBadRequest, "invalid_envelope")
		return
	}

	job, err := h.jobs.GetJobByExternalID(ctx, envelope.ExternalID())
	if err != nil {
		if errors.Is(err, badgerstorage.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "job_not_found")
			return
		}
		h.logger.Error().Err(err).Str("external_id", envelope.ExternalID()).Msg("Webhook job lookup failed")
		WriteError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	// The signing secret is environment-wide; it does not prove tenant
	// authorization
	if envelope.TenantID != job.TenantID {
		h.logger.Warn().
			Str("job_id", job.ID).
			Str("claimed_tenant", envelope.TenantID).
			Msg("Webhook rejected: tenant mismatch")
		WriteError(w, http.StatusForbidden, "tenant_mismatch")
		return
	}

	state, err := insight.NormalizeState(envelope.Status)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "unknown_status")
		return
	}

	switch state {
	case models.UpstreamCompleted:
		result := insight.Normalize(job.Kind, job.CallRef(), envelope.Payload())
		outcome, err := h.engine.Finalize(ctx, job.ID, result)
		if err != nil {
			h.logger.Error().Err(err).Str("job_id", job.ID).Msg("Webhook finalize failed")
			WriteError(w, http.StatusInternalServerError, "finalize_failed")
			return
		}
		WriteData(w, map[string]string{"status": outcomeStatus(outcome)})

	case models.UpstreamFailed:
		jobErr := &models.JobError{Code: "upstream_error", Message: "engine reported failure", Retryable: false}
		if envelope.Error != nil {
			jobErr = &models.JobError{
				Code:      envelope.Error.ErrorCode,
				Message:   envelope.Error.Message,
				Retryable: envelope.Error.Retryable,
			}
		}
		if err := h.engine.Fail(ctx, job, jobErr, h.maxRetries); err != nil {
			h.logger.Error().Err(err).Str("job_id", job.ID).Msg("Webhook failure recording failed")
			WriteError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		if job.CanRetry(h.maxRetries) {
			job.RecordAttempt(time.Now().Add(poller.Delay(job.Attempts)))
			h.jobs.SaveJob(ctx, job)
		}
		WriteData(w, map[string]string{"status": "failure_recorded"})

	default:
		// Progress notification; the poller owns rescheduling
		WriteData(w, map[string]string{"status": "processing"})
	}
}

// outcomeStatus maps finalization outcomes to the wire vocabulary.
func outcomeStatus(outcome reconcile.Outcome) string {
	if outcome == reconcile.OutcomeApplied {
		return "succeeded"
	}
	return string(outcome)
}
