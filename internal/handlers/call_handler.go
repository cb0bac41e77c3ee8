package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/concilio/internal/interfaces"
	badgerstorage "github.com/ternarybob/concilio/internal/storage/badger"
)

// CallHandler exposes the analyzed call records that finalized jobs
// produce.
type CallHandler struct {
	calls  interfaces.CallStorage
	logger arbor.ILogger
}

// NewCallHandler creates a new call handler
func NewCallHandler(storage interfaces.StorageManager, logger arbor.ILogger) *CallHandler {
	return &CallHandler{
		calls:  storage.CallStorage(),
		logger: logger,
	}
}

// GetCallHandler returns an analyzed call record
// GET /api/calls/{id}
func (h *CallHandler) GetCallHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	tenant, ok := RequireTenant(w, r)
	if !ok {
		return
	}

	callID := strings.TrimPrefix(r.URL.Path, "/api/calls/")
	if callID == "" || strings.Contains(callID, "/") {
		WriteError(w, http.StatusBadRequest, "invalid_call_id")
		return
	}

	call, err := h.calls.GetCall(r.Context(), tenant, callID)
	if err != nil {
		if errors.Is(err, badgerstorage.ErrCallNotFound) {
			WriteError(w, http.StatusNotFound, "call_not_found")
			return
		}
		h.logger.Error().Err(err).Str("call_id", callID).Msg("Call lookup failed")
		WriteError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	WriteData(w, call)
}
