package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pricewatch/internal/interfaces"
	"github.com/ternarybob/pricewatch/internal/models"
	"github.com/ternarybob/pricewatch/internal/services/runner"
)

// RunController is the run control surface used by the HTTP handlers
type RunController interface {
	Start(trigger models.RunTrigger) (*runner.Run, error)
	Record(ctx context.Context, id string) (*models.RunRecord, error)
	List(ctx context.Context, limit int) ([]*models.RunRecord, error)
	Cancel(id string) error
}

// RunHandler handles reconciliation run API requests
type RunHandler struct {
	runs   RunController
	logger arbor.ILogger
}

// NewRunHandler creates a new run handler
func NewRunHandler(runs RunController, logger arbor.ILogger) *RunHandler {
	return &RunHandler{
		runs:   runs,
		logger: logger,
	}
}

// StartRunHandler starts a reconciliation run
// POST /api/runs (also POST /start-analysis)
func (h *RunHandler) StartRunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	run, err := h.runs.Start(models.RunTriggerAPI)
	if err != nil {
		if errors.Is(err, runner.ErrRunAlreadyActive) {
			WriteError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("Failed to start run")
		WriteError(w, http.StatusInternalServerError, "Failed to start run")
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
		"run_id": run.ID(),
		"state":  string(run.State()),
	})
}

// ListRunsHandler returns recent runs, newest first, without their output
// GET /api/runs?limit=20
func (h *RunHandler) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	records, err := h.runs.List(r.Context(), GetLimitParam(r, 20, 200))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list runs")
		WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	for _, rec := range records {
		rec.Output = ""
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  records,
		"count": len(records),
	})
}

// GetRunHandler returns one run without its output
// GET /api/runs/{id}
func (h *RunHandler) GetRunHandler(w http.ResponseWriter, r *http.Request, id string) {
	record, ok := h.lookup(w, r, id)
	if !ok {
		return
	}
	record.Output = ""
	WriteJSON(w, http.StatusOK, record)
}

// RunOutputHandler returns the full output captured so far as plain text
// GET /api/runs/{id}/output
func (h *RunHandler) RunOutputHandler(w http.ResponseWriter, r *http.Request, id string) {
	record, ok := h.lookup(w, r, id)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, record.Output)
}

// CancelRunHandler requests cancellation of a run
// POST /api/runs/{id}/cancel
func (h *RunHandler) CancelRunHandler(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.runs.Cancel(id); err != nil {
		if errors.Is(err, interfaces.ErrRunNotFound) {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		WriteError(w, http.StatusConflict, err.Error())
		return
	}
	WriteSuccess(w, "Cancellation requested")
}

func (h *RunHandler) lookup(w http.ResponseWriter, r *http.Request, id string) (*models.RunRecord, bool) {
	record, err := h.runs.Record(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrRunNotFound) {
			WriteError(w, http.StatusNotFound, "Run not found")
			return nil, false
		}
		h.logger.Error().Err(err).Str("run_id", id).Msg("Failed to load run")
		WriteError(w, http.StatusInternalServerError, "Failed to load run")
		return nil, false
	}
	return record, true
}
