package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pricewatch/internal/common"
	"github.com/ternarybob/pricewatch/internal/services/runner"
)

// ActiveRunSource reports the pending or running reconciliation
type ActiveRunSource interface {
	ActiveOutput() (string, *runner.OutputBuffer, bool)
}

// ObserverCounter reports how many progress observers are connected
type ObserverCounter interface {
	ObserverCount() int
}

// HealthResponse is the body of GET /api/health
type HealthResponse struct {
	Status             string `json:"status"`
	ActiveRunID        string `json:"active_run_id,omitempty"`
	Observers          int    `json:"observers"`
	ProviderConfigured bool   `json:"provider_configured"`
}

type APIHandler struct {
	runs               ActiveRunSource
	observers          ObserverCounter
	providerConfigured bool
	logger             arbor.ILogger
}

func NewAPIHandler(runs ActiveRunSource, observers ObserverCounter, providerConfigured bool, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		runs:               runs,
		observers:          observers,
		providerConfigured: providerConfigured,
		logger:             logger,
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.Build,
		"git_commit": common.GitCommit,
	})
}

// HealthHandler reports liveness plus the active run and observer count.
// A missing provider key does not fail the check; runs would degrade to Indeterminate.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	resp := HealthResponse{Status: "ok", ProviderConfigured: h.providerConfigured}
	if h.runs != nil {
		if runID, _, ok := h.runs.ActiveOutput(); ok {
			resp.ActiveRunID = runID
		}
	}
	if h.observers != nil {
		resp.Observers = h.observers.ObserverCount()
	}

	WriteJSON(w, http.StatusOK, resp)
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
