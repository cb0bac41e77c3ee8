package models

// NormalizedResult is the engine-agnostic form of a completed analysis,
// produced by the normalization step before reconciliation. Its content is
// what gets fingerprinted for dedup.
type NormalizedResult struct {
	Kind    JobKind `json:"kind"`
	CallRef string  `json:"call_ref"` // Local call record the result applies to

	// Transcription output
	Transcript string `json:"transcript,omitempty"`

	// Scoring output (objection handling, lead qualification, ...)
	Scores map[string]float64 `json:"scores,omitempty"`

	// Compliance output
	ComplianceFlags []string `json:"compliance_flags,omitempty"`

	// Segmentation output
	Segments []Segment `json:"segments,omitempty"`

	// Raw engine payload retained for audit
	Raw map[string]interface{} `json:"raw,omitempty"`
}

// Segment is one speaker turn in a segmented call.
type Segment struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"` // Seconds from call start
	End     float64 `json:"end"`
	Text    string  `json:"text,omitempty"`
}
