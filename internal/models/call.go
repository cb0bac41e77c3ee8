package models

import "time"

// CallRecord is the business entity an analysis result is applied to.
// Applying the same normalized result twice leaves the record byte-identical.
type CallRecord struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`

	Transcript      string             `json:"transcript,omitempty"`
	Scores          map[string]float64 `json:"scores,omitempty"`
	ComplianceFlags []string           `json:"compliance_flags,omitempty"`
	Segments        []Segment          `json:"segments,omitempty"`

	AnalyzedAt *time.Time `json:"analyzed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
