package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/concilio/internal/interfaces"
	"github.com/ternarybob/concilio/internal/models"
	"github.com/ternarybob/concilio/internal/services/jobs"
)

// JobHandler handles job submission and query API requests
type JobHandler struct {
	jobService *jobs.Service
	logger     arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobService *jobs.Service, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobService: jobService,
		logger:     logger,
	}
}

type submitRequest struct {
	Kind  string                 `json:"kind"`
	Input map[string]interface{} `json:"input"`
}

// SubmitJobHandler creates a new analysis job
// POST /api/jobs
func (h *JobHandler) SubmitJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	tenant, ok := RequireTenant(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	job, err := h.jobService.Submit(r.Context(), tenant, models.JobKind(req.Kind), req.Input)
	if err != nil {
		h.logger.Warn().Err(err).Str("tenant_id", tenant).Msg("Job submission rejected")
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    job,
	})
}

// GetJobHandler returns a single job scoped to the caller's tenant
// GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	tenant, ok := RequireTenant(w, r)
	if !ok {
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		WriteError(w, http.StatusBadRequest, "invalid_job_id")
		return
	}

	job, err := h.jobService.Get(r.Context(), tenant, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "job_not_found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Job lookup failed")
		WriteError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	WriteData(w, job)
}

// ListJobsHandler returns the tenant's jobs
// GET /api/jobs?limit=50&offset=0&status=running&kind=transcription
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	tenant, ok := RequireTenant(w, r)
	if !ok {
		return
	}

	limit := 50
	offset := 0
	if parsed, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && parsed > 0 {
		limit = parsed
	}
	if parsed, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && parsed > 0 {
		offset = parsed
	}

	opts := &interfaces.JobListOptions{
		Status: r.URL.Query().Get("status"),
		Kind:   r.URL.Query().Get("kind"),
		Limit:  limit,
		Offset: offset,
	}

	list, err := h.jobService.List(r.Context(), tenant, opts)
	if err != nil {
		h.logger.Error().Err(err).Str("tenant_id", tenant).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    list,
		"count":   len(list),
		"limit":   limit,
		"offset":  offset,
	})
}

// JobStatsHandler returns job counts grouped by status
// GET /api/jobs/stats
func (h *JobHandler) JobStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	counts, err := h.jobService.Stats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to count jobs")
		WriteError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	WriteData(w, counts)
}
