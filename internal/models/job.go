// -----------------------------------------------------------------------
// Analysis Job - durable record of work delegated to the insight engine
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobKind classifies an analysis job. Each kind maps to its own
// status/result endpoint pair on the insight engine.
type JobKind string

const (
	JobKindTranscription JobKind = "transcription"
	JobKindAnalysis      JobKind = "analysis"
	JobKindSegmentation  JobKind = "segmentation"
)

// ValidJobKind reports whether kind is a known job kind.
func ValidJobKind(kind JobKind) bool {
	switch kind {
	case JobKindTranscription, JobKindAnalysis, JobKindSegmentation:
		return true
	}
	return false
}

// JobStatus represents the lifecycle state of an analysis job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimeout   JobStatus = "timeout"
)

// JobError captures the last upstream failure observed for a job.
// Present only while the job is FAILED.
type JobError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// AnalysisJob is the central entity: one unit of work delegated to the
// external insight engine. The record persists indefinitely for audit and
// idempotency lookups.
//
// Status transitions are monotonic:
//
//	pending -> running -> {succeeded | failed | timeout}
//	failed --(retryable, within budget)--> running
//
// succeeded, timeout, and failed-with-exhausted-retries are terminal.
type AnalysisJob struct {
	// Identity
	ID         string `json:"id"`
	ExternalID string `json:"external_id"` // Correlation ID assigned by the insight engine; may arrive after submission
	TenantID   string `json:"tenant_id"`

	// Classification
	Kind JobKind `json:"kind"`

	// Status
	Status JobStatus `json:"status"`

	// Immutable snapshot of what was submitted. Used to recover correlating
	// identifiers (call reference) if the external ID is lost.
	Input map[string]interface{} `json:"input"`

	// Attempt metadata
	Attempts      int        `json:"attempts"`    // Status checks performed by the poller
	RetryCount    int        `json:"retry_count"` // Retryable-failure resubmissions consumed
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	NextCheckAt   *time.Time `json:"next_check_at,omitempty"` // When the poller should look again; nil once terminal

	// Timestamps
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Content hash of the last successfully-applied normalized result.
	// Present only after first successful application; drives dedup.
	Fingerprint string `json:"fingerprint,omitempty"`

	// Error metadata, present only in FAILED
	LastError *JobError `json:"last_error,omitempty"`
}

// NewAnalysisJob creates a pending job for the given tenant and kind.
func NewAnalysisJob(kind JobKind, tenantID string, input map[string]interface{}) *AnalysisJob {
	if input == nil {
		input = make(map[string]interface{})
	}
	return &AnalysisJob{
		ID:        "job_" + uuid.New().String(),
		Kind:      kind,
		TenantID:  tenantID,
		Status:    JobStatusPending,
		Input:     input,
		CreatedAt: time.Now(),
	}
}

// IsTerminal returns true if the job can never transition again.
// A failed job is terminal only when its error is not retryable.
func (j *AnalysisJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusSucceeded, JobStatusTimeout:
		return true
	case JobStatusFailed:
		return j.LastError == nil || !j.LastError.Retryable
	}
	return false
}

// Age returns how long ago the job was created.
func (j *AnalysisJob) Age(now time.Time) time.Duration {
	return now.Sub(j.CreatedAt)
}

// CallRef recovers the call reference from the input snapshot.
func (j *AnalysisJob) CallRef() string {
	if ref, ok := j.Input["call_id"].(string); ok {
		return ref
	}
	return ""
}

// MarkRunning transitions the job to RUNNING on first acknowledgment from
// the external side, or on a retryable-failure resubmission.
func (j *AnalysisJob) MarkRunning(externalID string) error {
	if j.IsTerminal() {
		return fmt.Errorf("invalid transition: %s -> %s", j.Status, JobStatusRunning)
	}
	if j.Status == JobStatusPending || j.Status == JobStatusFailed {
		now := time.Now()
		if j.StartedAt == nil {
			j.StartedAt = &now
		}
		if j.Status == JobStatusFailed {
			j.RetryCount++
			j.LastError = nil
		}
		j.Status = JobStatusRunning
	}
	if externalID != "" {
		j.ExternalID = externalID
	}
	return nil
}

// MarkSucceeded transitions the job to SUCCEEDED and records the
// processed-output fingerprint.
func (j *AnalysisJob) MarkSucceeded(fingerprint string) error {
	if j.Status == JobStatusSucceeded {
		// Idempotent re-application of the same terminal state
		j.Fingerprint = fingerprint
		return nil
	}
	if j.IsTerminal() {
		return fmt.Errorf("invalid transition: %s -> %s", j.Status, JobStatusSucceeded)
	}
	now := time.Now()
	j.Status = JobStatusSucceeded
	j.Fingerprint = fingerprint
	j.CompletedAt = &now
	j.NextCheckAt = nil
	j.LastError = nil
	return nil
}

// MarkFailed transitions the job to FAILED with error metadata. A
// retryable failure may later transition back to RUNNING via MarkRunning.
func (j *AnalysisJob) MarkFailed(code, message string, retryable bool) error {
	if j.IsTerminal() {
		return fmt.Errorf("invalid transition: %s -> %s", j.Status, JobStatusFailed)
	}
	now := time.Now()
	j.Status = JobStatusFailed
	j.LastError = &JobError{Code: code, Message: message, Retryable: retryable}
	j.CompletedAt = &now
	if !retryable {
		j.NextCheckAt = nil
	}
	return nil
}

// MarkTimeout forces the job to TIMEOUT once it exceeds the absolute age
// ceiling. Pre-empts any further retry scheduling.
func (j *AnalysisJob) MarkTimeout() error {
	if j.Status == JobStatusTimeout {
		return nil
	}
	if j.IsTerminal() {
		return fmt.Errorf("invalid transition: %s -> %s", j.Status, JobStatusTimeout)
	}
	now := time.Now()
	j.Status = JobStatusTimeout
	j.CompletedAt = &now
	j.NextCheckAt = nil
	return nil
}

// CanRetry reports whether a retryable failure still has retry budget.
func (j *AnalysisJob) CanRetry(maxRetries int) bool {
	if j.Status != JobStatusFailed || j.LastError == nil || !j.LastError.Retryable {
		return false
	}
	return j.RetryCount < maxRetries
}

// RecordAttempt increments the attempt count and schedules the next check.
func (j *AnalysisJob) RecordAttempt(next time.Time) {
	now := time.Now()
	j.Attempts++
	j.LastAttemptAt = &now
	j.NextCheckAt = &next
}
