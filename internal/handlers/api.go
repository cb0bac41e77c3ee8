package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/concilio/internal/common"
	"github.com/ternarybob/concilio/internal/interfaces"
)

type APIHandler struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

func NewAPIHandler(storage interfaces.StorageManager, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		storage: storage,
		logger:  logger,
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
	})
}

// HealthHandler returns health check status including job counts by state
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	counts, err := h.storage.JobStorage().CountJobsByStatus(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Health check storage query failed")
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
		})
		return
	}

	jobCounts := make(map[string]int, len(counts))
	for status, count := range counts {
		jobCounts[string(status)] = count
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"jobs":   jobCounts,
	})
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
