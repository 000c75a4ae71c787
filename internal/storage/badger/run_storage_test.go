package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pricewatch/internal/common"
	"github.com/ternarybob/pricewatch/internal/interfaces"
	"github.com/ternarybob/pricewatch/internal/models"
)

func newTestRunStorage(t *testing.T) *RunStorage {
	t.Helper()
	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRunStorage(db, logger)
}

func TestRunStorage_SaveAndGet(t *testing.T) {
	storage := newTestRunStorage(t)
	ctx := context.Background()

	finished := time.Now()
	run := &models.RunRecord{
		ID:         "run_1",
		State:      models.RunStateCompleted,
		Trigger:    models.RunTriggerAPI,
		CreatedAt:  finished.Add(-time.Minute),
		FinishedAt: &finished,
		ReportPath: "thesis/final_market_analysis_20260314_093005.csv",
		Products:   2,
		Tally:      map[models.PriceStatus]int{models.PriceStatusOverpriced: 1, models.PriceStatusIndeterminate: 1},
		Output:     "phase1\nphase2\n",
	}
	require.NoError(t, storage.SaveRun(ctx, run))

	got, err := storage.GetRun(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStateCompleted, got.State)
	assert.Equal(t, run.ReportPath, got.ReportPath)
	assert.Equal(t, 1, got.Tally[models.PriceStatusOverpriced])
	assert.Equal(t, run.Output, got.Output)
}

func TestRunStorage_GetMissing(t *testing.T) {
	storage := newTestRunStorage(t)

	_, err := storage.GetRun(context.Background(), "run_missing")
	assert.True(t, errors.Is(err, interfaces.ErrRunNotFound))
}

func TestRunStorage_ListNewestFirstWithFilter(t *testing.T) {
	storage := newTestRunStorage(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	states := []models.RunState{models.RunStateCompleted, models.RunStateFailed, models.RunStateCompleted}
	for i, state := range states {
		require.NoError(t, storage.SaveRun(ctx, &models.RunRecord{
			ID:        []string{"run_a", "run_b", "run_c"}[i],
			State:     state,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := storage.ListRuns(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run_c", all[0].ID)
	assert.Equal(t, "run_a", all[2].ID)

	completed, err := storage.ListRuns(ctx, &interfaces.RunListOptions{State: models.RunStateCompleted, Limit: 1})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "run_c", completed[0].ID)
}

func TestRunStorage_SaveRequiresID(t *testing.T) {
	storage := newTestRunStorage(t)
	assert.Error(t, storage.SaveRun(context.Background(), &models.RunRecord{}))
}
