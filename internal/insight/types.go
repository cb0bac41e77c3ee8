package insight

import (
	"fmt"

	"github.com/ternarybob/concilio/internal/models"
)

// kindEndpoints maps each job kind to its endpoint family on the insight
// engine. Status and result paths are derived from the base path.
var kindEndpoints = map[models.JobKind]string{
	models.JobKindTranscription: "/v1/transcriptions",
	models.JobKindAnalysis:      "/v1/analyses",
	models.JobKindSegmentation:  "/v1/segmentations",
}

func endpointForKind(kind models.JobKind) (string, error) {
	endpoint, ok := kindEndpoints[kind]
	if !ok {
		return "", fmt.Errorf("unknown job kind: %s", kind)
	}
	return endpoint, nil
}

// errorFieldAliases maps legacy error-envelope field names to the
// canonical schema. Older engine versions emit "code"/"type"; everything
// downstream sees only the canonical names.
var errorFieldAliases = map[string]string{
	"code":   "error_code",
	"type":   "error_type",
	"detail": "message",
}

// ErrorDetail is the canonical error block of the engine's response
// envelope: {success, error:{error_code, error_type, message, retryable,
// details, timestamp, request_id}}.
type ErrorDetail struct {
	ErrorCode string                 `json:"error_code"`
	ErrorType string                 `json:"error_type"`
	Message   string                 `json:"message"`
	Retryable bool                   `json:"retryable"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// parseErrorDetail canonicalizes a raw error block, resolving legacy
// field aliases through errorFieldAliases. Canonical names win when both
// forms are present.
func parseErrorDetail(raw map[string]interface{}) ErrorDetail {
	canonical := make(map[string]interface{}, len(raw))
	for key, value := range raw {
		canonical[key] = value
	}
	for legacy, canon := range errorFieldAliases {
		if value, ok := raw[legacy]; ok {
			if _, exists := canonical[canon]; !exists {
				canonical[canon] = value
			}
		}
	}

	detail := ErrorDetail{}
	if v, ok := canonical["error_code"].(string); ok {
		detail.ErrorCode = v
	}
	if v, ok := canonical["error_type"].(string); ok {
		detail.ErrorType = v
	}
	if v, ok := canonical["message"].(string); ok {
		detail.Message = v
	}
	if v, ok := canonical["retryable"].(bool); ok {
		detail.Retryable = v
	}
	if v, ok := canonical["details"].(map[string]interface{}); ok {
		detail.Details = v
	}
	if v, ok := canonical["timestamp"].(string); ok {
		detail.Timestamp = v
	}
	if v, ok := canonical["request_id"].(string); ok {
		detail.RequestID = v
	}
	return detail
}

// responseEnvelope is the engine's canonical response wrapper.
type responseEnvelope struct {
	Success bool                   `json:"success"`
	JobID   string                 `json:"job_id,omitempty"`
	TaskID  string                 `json:"task_id,omitempty"`
	Status  string                 `json:"status,omitempty"`
	Result  map[string]interface{} `json:"result,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   map[string]interface{} `json:"error,omitempty"`
}

func (e *responseEnvelope) externalID() string {
	if e.JobID != "" {
		return e.JobID
	}
	return e.TaskID
}

func (e *responseEnvelope) payload() map[string]interface{} {
	if e.Result != nil {
		return e.Result
	}
	return e.Data
}

// NormalizeState collapses the engine's status strings into the three
// states the orchestration layer understands.
func NormalizeState(status string) (models.UpstreamState, error) {
	switch status {
	case "processing", "pending", "queued", "running":
		return models.UpstreamProcessing, nil
	case "completed", "succeeded", "success":
		return models.UpstreamCompleted, nil
	case "failed", "error":
		return models.UpstreamFailed, nil
	}
	return "", fmt.Errorf("unrecognized upstream status: %q", status)
}
