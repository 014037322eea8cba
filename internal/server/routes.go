// -----------------------------------------------------------------------
// Last Modified: Friday, 13th February 2026 5:09:26 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket event stream
	mux.HandleFunc("/ws/events", s.app.WSHandler.HandleEvents)

	// API routes - Service status
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler) // GET - application status

	// API routes - Queue registries
	mux.HandleFunc("/api/queue/stats", s.app.QueueHandler.GetStatsHandler) // GET - counts per status
	mux.HandleFunc("/api/queue/jobs", s.app.QueueHandler.ListJobsHandler)  // GET - ?status= or recent window
	mux.HandleFunc("/api/queue/jobs/", s.app.QueueHandler.JobRoutesHandler) // GET /{id}, POST /{id}/cancel|retry

	// API routes - Papers
	mux.HandleFunc("/api/papers", s.app.PaperHandler.ListHandler)        // GET - list with paging/keyword
	mux.HandleFunc("/api/papers/", s.app.PaperHandler.PaperRoutesHandler) // GET /{id}, POST /{id}/summary|comic, GET /{id}/summary.pdf

	// API routes - Scheduler
	mux.HandleFunc("/api/scheduler/jobs", s.app.SchedulerHandler.ListJobsHandler)   // GET - cron lanes
	mux.HandleFunc("/api/scheduler/trigger/", s.app.SchedulerHandler.TriggerHandler) // POST /{name}

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.notFoundHandler)

	return mux
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Not found", http.StatusNotFound)
}
