package server

import (
	"net/http"
	"strings"
)

const runsPrefix = "/api/runs/"

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (progress stream)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// Trigger a reconciliation run
	mux.HandleFunc("/start-analysis", s.app.RunHandler.StartRunHandler)

	// API routes - Runs
	mux.HandleFunc("/api/runs", s.handleRunsRoute)                                // GET (list), POST (start)
	mux.HandleFunc(runsPrefix, s.handleRunRoutes)                                 // /{id}, /{id}/output, /{id}/cancel
	mux.HandleFunc("/api/schedule", s.app.SchedulerHandler.ScheduleStatusHandler) // GET - scheduled jobs

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for everything unmatched
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleRunsRoute routes /api/runs requests (list and start)
func (s *Server) handleRunsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.RunHandler.ListRunsHandler, s.app.RunHandler.StartRunHandler)
}

// handleRunRoutes routes /api/runs/{id} and its subpaths
func (s *Server) handleRunRoutes(w http.ResponseWriter, r *http.Request) {
	pathSuffix := strings.Trim(strings.TrimPrefix(r.URL.Path, runsPrefix), "/")
	if pathSuffix == "" {
		s.app.APIHandler.NotFoundHandler(w, r)
		return
	}

	parts := strings.Split(pathSuffix, "/")
	id := parts[0]

	switch {
	case len(parts) == 1:
		RouteByMethod(w, r, MethodRouter{
			http.MethodGet: func(w http.ResponseWriter, r *http.Request) {
				s.app.RunHandler.GetRunHandler(w, r, id)
			},
		})
	case len(parts) == 2 && parts[1] == "output":
		RouteByMethod(w, r, MethodRouter{
			http.MethodGet: func(w http.ResponseWriter, r *http.Request) {
				s.app.RunHandler.RunOutputHandler(w, r, id)
			},
		})
	case len(parts) == 2 && parts[1] == "cancel":
		RouteByMethod(w, r, MethodRouter{
			http.MethodPost: func(w http.ResponseWriter, r *http.Request) {
				s.app.RunHandler.CancelRunHandler(w, r, id)
			},
		})
	default:
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}
