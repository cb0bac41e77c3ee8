package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.WebSocketHandler)

	// Inbound webhook from the insight engine
	mux.HandleFunc("/api/webhooks/insight", s.app.WebhookHandler.InsightWebhookHandler)

	// Job submission and queries
	mux.HandleFunc("/api/jobs", s.handleJobsRoute) // GET (list), POST (submit)
	mux.HandleFunc("/api/jobs/stats", s.app.JobHandler.JobStatsHandler)
	mux.HandleFunc("/api/jobs/", s.app.JobHandler.GetJobHandler) // GET /{id}

	// Analyzed call records
	mux.HandleFunc("/api/calls/", s.app.CallHandler.GetCallHandler) // GET /{id}

	// Operational endpoints
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)

	// Everything else is a JSON 404
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobsRoute dispatches /api/jobs by method
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.app.JobHandler.SubmitJobHandler(w, r)
	case http.MethodGet:
		s.app.JobHandler.ListJobsHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
