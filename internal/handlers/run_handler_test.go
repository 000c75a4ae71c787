package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pricewatch/internal/models"
	"github.com/ternarybob/pricewatch/internal/services/pipeline"
	"github.com/ternarybob/pricewatch/internal/services/runner"
)

// gatedPipeline blocks until released
type gatedPipeline struct {
	release chan struct{}
}

func (p *gatedPipeline) Run(ctx context.Context, progress pipeline.Progress) (*pipeline.Result, error) {
	progress.Printf("phase1")
	select {
	case <-p.release:
		return &pipeline.Result{ReportPath: "thesis/report.csv"}, nil
	case <-ctx.Done():
		return &pipeline.Result{Cancelled: true}, ctx.Err()
	}
}

func newRunHandlerFixture(t *testing.T) (*RunHandler, *runner.Service, *gatedPipeline) {
	t.Helper()
	p := &gatedPipeline{release: make(chan struct{})}
	service := runner.NewService(p, nil, nil, arbor.NewLogger())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		service.Shutdown(ctx)
	})
	return NewRunHandler(service, arbor.NewLogger()), service, p
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestStartRunHandler_AcceptsThenConflicts(t *testing.T) {
	handler, service, p := newRunHandlerFixture(t)

	rec := httptest.NewRecorder()
	handler.StartRunHandler(rec, httptest.NewRequest(http.MethodPost, "/api/runs", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	runID, _ := body["run_id"].(string)
	assert.NotEmpty(t, runID)

	rec = httptest.NewRecorder()
	handler.StartRunHandler(rec, httptest.NewRequest(http.MethodPost, "/start-analysis", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(p.release)
	run, ok := service.Get(runID)
	require.True(t, ok)
	<-run.Done()

	rec = httptest.NewRecorder()
	handler.GetRunHandler(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID, nil), runID)
	require.Equal(t, http.StatusOK, rec.Code)
	var record models.RunRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&record))
	assert.Equal(t, models.RunStateCompleted, record.State)
	assert.Equal(t, "thesis/report.csv", record.ReportPath)
	assert.Empty(t, record.Output)

	rec = httptest.NewRecorder()
	handler.RunOutputHandler(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/output", nil), runID)
	require.Equal(t, http.StatusOK, rec.Code)
	text, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(text), "phase1\n")
}

func TestStartRunHandler_RequiresPost(t *testing.T) {
	handler, _, _ := newRunHandlerFixture(t)

	rec := httptest.NewRecorder()
	handler.StartRunHandler(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCancelRunHandler(t *testing.T) {
	handler, service, _ := newRunHandlerFixture(t)

	run, err := service.Start(models.RunTriggerAPI)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.CancelRunHandler(rec, httptest.NewRequest(http.MethodPost, "/api/runs/"+run.ID()+"/cancel", nil), run.ID())
	assert.Equal(t, http.StatusOK, rec.Code)
	<-run.Done()
	assert.Equal(t, models.RunStateFailed, run.State())

	rec = httptest.NewRecorder()
	handler.CancelRunHandler(rec, httptest.NewRequest(http.MethodPost, "/api/runs/run_x/cancel", nil), "run_x")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRunHandler_NotFound(t *testing.T) {
	handler, _, _ := newRunHandlerFixture(t)

	rec := httptest.NewRecorder()
	handler.GetRunHandler(rec, httptest.NewRequest(http.MethodGet, "/api/runs/run_missing", nil), "run_missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRunsHandler(t *testing.T) {
	handler, service, p := newRunHandlerFixture(t)

	run, err := service.Start(models.RunTriggerAPI)
	require.NoError(t, err)
	close(p.release)
	<-run.Done()

	rec := httptest.NewRecorder()
	handler.ListRunsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["count"])
}
