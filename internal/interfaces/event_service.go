package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventJobSubmitted      EventType = "job_submitted"
	EventAnalysisCompleted EventType = "analysis_completed"
	EventAnalysisFailed    EventType = "analysis_failed"
	EventJobTimeout        EventType = "job_timeout"
)

// Event represents a system event. Every event is tenant-scoped.
type Event struct {
	Type     EventType
	TenantID string
	Payload  interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the pub/sub event bus. Publishing is
// fire-and-forget: a failing handler never propagates to the caller.
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
