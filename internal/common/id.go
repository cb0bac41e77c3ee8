package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique analysis job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewCallID generates a unique call record ID with the "call_" prefix
func NewCallID() string {
	return "call_" + uuid.New().String()
}
