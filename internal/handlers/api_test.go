package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

type staticObservers int

func (s staticObservers) ObserverCount() int { return int(s) }

func health(t *testing.T, h *APIHandler) HealthResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealthHandler_ReportsActiveRunAndObservers(t *testing.T) {
	runs := newFakeRuns("run_7")
	resp := health(t, NewAPIHandler(runs, staticObservers(2), true, arbor.NewLogger()))

	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run_7", resp.ActiveRunID)
	assert.Equal(t, 2, resp.Observers)
	assert.True(t, resp.ProviderConfigured)
}

func TestHealthHandler_Idle(t *testing.T) {
	runs := newFakeRuns("run_8")
	runs.active = false
	resp := health(t, NewAPIHandler(runs, staticObservers(0), false, arbor.NewLogger()))

	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, resp.ActiveRunID)
	assert.Zero(t, resp.Observers)
	assert.False(t, resp.ProviderConfigured)
}

func TestHealthHandler_RejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	NewAPIHandler(nil, nil, false, arbor.NewLogger()).HealthHandler(rec, httptest.NewRequest(http.MethodPost, "/api/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
