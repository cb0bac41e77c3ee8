package models

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// WebhookError is the error block of the insight engine's webhook envelope.
type WebhookError struct {
	ErrorCode string `json:"error_code"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// WebhookEnvelope is the canonical JSON body pushed by the insight engine
// when a job reaches a terminal state. Some engine versions send task_id
// instead of job_id, and data instead of result; the accessors resolve both.
type WebhookEnvelope struct {
	Success   bool                   `json:"success"`
	JobID     string                 `json:"job_id,omitempty"`
	TaskID    string                 `json:"task_id,omitempty"`
	Status    string                 `json:"status" validate:"required"`
	TenantID  string                 `json:"tenant_id" validate:"required"`
	Result    map[string]interface{} `json:"result,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Error     *WebhookError          `json:"error,omitempty"`
	Timestamp int64                  `json:"timestamp,omitempty"`
}

// WebhookEnvelopeFromJSON parses and validates a webhook body.
func WebhookEnvelopeFromJSON(body []byte) (*WebhookEnvelope, error) {
	var envelope WebhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook envelope: %w", err)
	}
	if err := envelope.Validate(); err != nil {
		return nil, err
	}
	return &envelope, nil
}

// Validate validates the envelope using go-playground/validator.
func (e *WebhookEnvelope) Validate() error {
	validate := validator.New()
	if err := validate.Struct(e); err != nil {
		return err
	}
	if e.JobID == "" && e.TaskID == "" {
		return fmt.Errorf("webhook envelope requires job_id or task_id")
	}
	return nil
}

// ExternalID returns the engine-side correlation ID, preferring job_id.
func (e *WebhookEnvelope) ExternalID() string {
	if e.JobID != "" {
		return e.JobID
	}
	return e.TaskID
}

// Payload returns the raw result payload, preferring result over data.
func (e *WebhookEnvelope) Payload() map[string]interface{} {
	if e.Result != nil {
		return e.Result
	}
	return e.Data
}
