package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pricewatch/internal/app"
	"github.com/ternarybob/pricewatch/internal/common"
	"github.com/ternarybob/pricewatch/internal/handlers"
	"github.com/ternarybob/pricewatch/internal/services/events"
	"github.com/ternarybob/pricewatch/internal/services/pipeline"
	"github.com/ternarybob/pricewatch/internal/services/runner"
	"github.com/ternarybob/pricewatch/internal/services/scheduler"
)

type instantPipeline struct{}

func (instantPipeline) Run(ctx context.Context, progress pipeline.Progress) (*pipeline.Result, error) {
	progress.Printf("Loaded 0 products")
	return &pipeline.Result{ReportPath: "thesis/report.csv"}, nil
}

func newTestServer(t *testing.T) (*Server, *runner.Service) {
	t.Helper()
	logger := arbor.NewLogger()
	config := common.NewDefaultConfig()

	eventService := events.NewService(logger)
	runs := runner.NewService(instantPipeline{}, nil, eventService, logger)
	ws := handlers.NewWebSocketHandler(runs, eventService, logger, &config.WebSocket)
	runs.AddDrainer(ws)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		runs.Shutdown(ctx)
		ws.Stop()
	})

	application := &app.App{
		Config:           config,
		Logger:           logger,
		EventService:     eventService,
		Runner:           runs,
		APIHandler:       handlers.NewAPIHandler(runs, ws, false, logger),
		RunHandler:       handlers.NewRunHandler(runs, logger),
		SchedulerHandler: handlers.NewSchedulerHandler(scheduler.NewService(logger)),
		WSHandler:        ws,
	}
	return New(application), runs
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRoutes_RunLifecycle(t *testing.T) {
	s, runs := newTestServer(t)

	rec := serve(s, http.MethodPost, "/start-analysis")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	var started map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&started))
	runID := started["run_id"]

	run, ok := runs.Get(runID)
	require.True(t, ok)
	<-run.Done()

	rec = serve(s, http.MethodGet, "/api/runs/"+runID)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, http.MethodGet, "/api/runs/"+runID+"/output")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Loaded 0 products")

	rec = serve(s, http.MethodPost, "/api/runs/"+runID+"/cancel")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(s, http.MethodGet, "/api/runs")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoutes_MethodAndPathErrors(t *testing.T) {
	s, _ := newTestServer(t)

	assert.Equal(t, http.StatusMethodNotAllowed, serve(s, http.MethodDelete, "/api/runs").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(s, http.MethodPost, "/api/runs/run_x").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(s, http.MethodGet, "/api/runs/run_x/cancel").Code)
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/api/runs/run_x").Code)
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/api/runs/run_x/unknown").Code)
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/api/runs/").Code)
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/nowhere").Code)
}

func TestRoutes_SystemEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	rec := serve(s, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)

	rec = serve(s, http.MethodGet, "/api/version")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), common.GetVersion())

	rec = serve(s, http.MethodGet, "/api/schedule")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running":false`)
}

func TestMiddleware_PreflightAndRecovery(t *testing.T) {
	s, _ := newTestServer(t)

	rec := serve(s, http.MethodOptions, "/api/runs")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	panicking := s.withMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec = httptest.NewRecorder()
	panicking.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/anything", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRouteByMethod_SetsAllowHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	RouteResourceCollection(rec, httptest.NewRequest(http.MethodPut, "/api/runs", nil),
		func(w http.ResponseWriter, r *http.Request) {},
		func(w http.ResponseWriter, r *http.Request) {},
	)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))
}
