package models

// UpstreamState is the normalized form of the insight engine's status
// strings. The engine reports "completed", "succeeded", or "success" for
// success and "failed" or "error" for failure depending on version; the
// client collapses them before anything downstream sees them.
type UpstreamState string

const (
	UpstreamProcessing UpstreamState = "processing"
	UpstreamCompleted  UpstreamState = "completed"
	UpstreamFailed     UpstreamState = "failed"
)

// UpstreamStatus is the result of a status poll against the insight engine.
type UpstreamStatus struct {
	State UpstreamState `json:"state"`
	Error *JobError     `json:"error,omitempty"` // Populated when State is UpstreamFailed
}
