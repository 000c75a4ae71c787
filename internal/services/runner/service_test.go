package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pricewatch/internal/interfaces"
	"github.com/ternarybob/pricewatch/internal/models"
	"github.com/ternarybob/pricewatch/internal/services/events"
	"github.com/ternarybob/pricewatch/internal/services/pipeline"
)

// pipelineFunc adapts a function to the Pipeline interface
type pipelineFunc func(ctx context.Context, progress pipeline.Progress) (*pipeline.Result, error)

func (f pipelineFunc) Run(ctx context.Context, progress pipeline.Progress) (*pipeline.Result, error) {
	return f(ctx, progress)
}

// memoryStorage is an in-memory RunStorage
type memoryStorage struct {
	mu   sync.Mutex
	runs map[string]*models.RunRecord
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{runs: map[string]*models.RunRecord{}}
}

func (m *memoryStorage) SaveRun(ctx context.Context, run *models.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *memoryStorage) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.runs[id]; ok {
		return r, nil
	}
	return nil, interfaces.ErrRunNotFound
}

func (m *memoryStorage) ListRuns(ctx context.Context, opts *interfaces.RunListOptions) ([]*models.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.RunRecord
	for _, r := range m.runs {
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryStorage) DeleteRun(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, id)
	return nil
}

// stateCheckingDrainer records the run state and output seen at flush time
type stateCheckingDrainer struct {
	service *Service
	mu      sync.Mutex
	states  []models.RunState
	outputs []string
}

func (d *stateCheckingDrainer) Flush(runID string) {
	run, _ := d.service.Get(runID)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states = append(d.states, run.State())
	d.outputs = append(d.outputs, run.Output().String())
}

func waitDone(t *testing.T, run *Run) {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("run %s did not finish", run.ID())
	}
}

func verdicts() []models.ProductVerdict {
	avg := 92.5
	return []models.ProductVerdict{
		{ProductName: "Widget A", InternalPrice: 100, MarketAverage: &avg, Status: models.PriceStatusOverpriced},
		models.IndeterminateVerdict(models.InventoryItem{Name: "Widget B", InternalPrice: 50}),
	}
}

func TestStart_CompletesAndArchives(t *testing.T) {
	storage := newMemoryStorage()
	eventService := events.NewService(arbor.NewLogger())

	var mu sync.Mutex
	var states []models.RunState
	require.NoError(t, eventService.Subscribe(interfaces.EventRunStateChanged, func(ctx context.Context, e interfaces.Event) error {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, e.Payload.(models.RunStatus).State)
		return nil
	}))

	p := pipelineFunc(func(ctx context.Context, progress pipeline.Progress) (*pipeline.Result, error) {
		progress.Printf("phase1")
		progress.Printf("phase2")
		return &pipeline.Result{Verdicts: verdicts(), ReportPath: "thesis/report.csv"}, nil
	})

	service := NewService(p, storage, eventService, arbor.NewLogger())
	drainer := &stateCheckingDrainer{service: service}
	service.AddDrainer(drainer)

	run, err := service.Start(models.RunTriggerAPI)
	require.NoError(t, err)
	waitDone(t, run)

	assert.Equal(t, models.RunStateCompleted, run.State())
	assert.Nil(t, service.Active())

	// Output was drained before the terminal transition
	require.Len(t, drainer.states, 1)
	assert.Equal(t, models.RunStateRunning, drainer.states[0])
	assert.Contains(t, drainer.outputs[0], "phase1\nphase2\n")
	assert.Contains(t, drainer.outputs[0], "Run completed: report thesis/report.csv")

	archived, err := storage.GetRun(context.Background(), run.ID())
	require.NoError(t, err)
	assert.Equal(t, models.RunStateCompleted, archived.State)
	assert.Equal(t, 2, archived.Products)
	assert.Equal(t, 1, archived.Tally[models.PriceStatusIndeterminate])
	assert.Contains(t, archived.Output, "phase2")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []models.RunState{models.RunStatePending, models.RunStateRunning, models.RunStateCompleted}, states)
}

func TestStart_RejectsSecondActiveRun(t *testing.T) {
	release := make(chan struct{})
	p := pipelineFunc(func(ctx context.Context, progress pipeline.Progress) (*pipeline.Result, error) {
		<-release
		return &pipeline.Result{}, nil
	})
	service := NewService(p, nil, nil, arbor.NewLogger())

	first, err := service.Start(models.RunTriggerAPI)
	require.NoError(t, err)

	_, err = service.Start(models.RunTriggerSchedule)
	assert.ErrorIs(t, err, ErrRunAlreadyActive)
	assert.Equal(t, first, service.Active())

	close(release)
	waitDone(t, first)

	second, err := service.Start(models.RunTriggerAPI)
	require.NoError(t, err)
	waitDone(t, second)
	assert.NotEqual(t, first.ID(), second.ID())
}

func TestStart_PipelineErrorFailsRun(t *testing.T) {
	storage := newMemoryStorage()
	p := pipelineFunc(func(ctx context.Context, progress pipeline.Progress) (*pipeline.Result, error) {
		return nil, errors.New("load inventory: inventory source book.xlsx unreadable")
	})
	service := NewService(p, storage, nil, arbor.NewLogger())

	run, err := service.Start(models.RunTriggerCLI)
	require.NoError(t, err)
	waitDone(t, run)

	status := run.Status()
	assert.Equal(t, models.RunStateFailed, status.State)
	assert.Contains(t, status.Error, "unreadable")
	assert.Contains(t, run.Output().String(), "Run failed: load inventory")

	record, err := service.Record(context.Background(), run.ID())
	require.NoError(t, err)
	assert.Equal(t, models.RunStateFailed, record.State)
}

func TestCancel_StopsRun(t *testing.T) {
	started := make(chan struct{})
	p := pipelineFunc(func(ctx context.Context, progress pipeline.Progress) (*pipeline.Result, error) {
		close(started)
		<-ctx.Done()
		return &pipeline.Result{Cancelled: true}, ctx.Err()
	})
	service := NewService(p, nil, nil, arbor.NewLogger())

	run, err := service.Start(models.RunTriggerAPI)
	require.NoError(t, err)
	<-started

	require.NoError(t, service.Cancel(run.ID()))
	waitDone(t, run)

	record := run.Record()
	assert.Equal(t, models.RunStateFailed, record.State)
	assert.True(t, record.Cancelled)
	assert.Error(t, service.Cancel(run.ID()))
	assert.ErrorIs(t, service.Cancel("run_unknown"), interfaces.ErrRunNotFound)
}

func TestStart_PanicFailsRun(t *testing.T) {
	p := pipelineFunc(func(ctx context.Context, progress pipeline.Progress) (*pipeline.Result, error) {
		panic("nil map")
	})
	service := NewService(p, nil, nil, arbor.NewLogger())

	run, err := service.Start(models.RunTriggerAPI)
	require.NoError(t, err)
	waitDone(t, run)

	assert.Equal(t, models.RunStateFailed, run.State())
	assert.Contains(t, run.Status().Error, "nil map")
}

func TestList_MergesMemoryAndArchive(t *testing.T) {
	storage := newMemoryStorage()
	require.NoError(t, storage.SaveRun(context.Background(), &models.RunRecord{
		ID:        "run_old",
		State:     models.RunStateCompleted,
		CreatedAt: time.Now().Add(-time.Hour),
	}))

	p := pipelineFunc(func(ctx context.Context, progress pipeline.Progress) (*pipeline.Result, error) {
		return &pipeline.Result{}, nil
	})
	service := NewService(p, storage, nil, arbor.NewLogger())

	run, err := service.Start(models.RunTriggerAPI)
	require.NoError(t, err)
	waitDone(t, run)

	records, err := service.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, run.ID(), records[0].ID)
	assert.Equal(t, "run_old", records[1].ID)
}

func TestOutputBuffer_ReadSinceCursor(t *testing.T) {
	buf := NewOutputBuffer()

	chunks, cursor := buf.ReadSince(0)
	assert.Empty(t, chunks)
	assert.Equal(t, 0, cursor)

	buf.Append("phase1\n")
	chunks, cursor = buf.ReadSince(cursor)
	assert.Equal(t, []string{"phase1\n"}, chunks)

	buf.Printf("phase%d", 2)
	buf.Append("")
	chunks, cursor = buf.ReadSince(cursor)
	assert.Equal(t, []string{"phase2\n"}, chunks)
	assert.Equal(t, 2, cursor)

	chunks, _ = buf.ReadSince(cursor)
	assert.Empty(t, chunks)
	assert.Equal(t, "phase1\nphase2\n", buf.String())
}
