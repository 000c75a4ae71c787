package handlers

import (
	"net/http"

	"github.com/ternarybob/pricewatch/internal/interfaces"
)

// SchedulerHandler handles scheduler-related endpoints
type SchedulerHandler struct {
	schedulerService interfaces.SchedulerService
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(schedulerService interfaces.SchedulerService) *SchedulerHandler {
	return &SchedulerHandler{
		schedulerService: schedulerService,
	}
}

// ScheduleStatusHandler reports the scheduled jobs and their next run
// GET /api/schedule
func (h *SchedulerHandler) ScheduleStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobs := h.schedulerService.GetAllJobStatuses()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"running": h.schedulerService.IsRunning(),
		"jobs":    jobs,
	})
}
