package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pricewatch/internal/interfaces"
	"github.com/ternarybob/pricewatch/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// RunStorage implements the RunStorage interface for Badger
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// Compile-time assertion
var _ interfaces.RunStorage = (*RunStorage)(nil)

// NewRunStorage creates a new RunStorage instance
func NewRunStorage(db *BadgerDB, logger arbor.ILogger) *RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RunStorage) SaveRun(ctx context.Context, run *models.RunRecord) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run ID is required")
	}

	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *RunStorage) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	var run models.RunRecord
	if err := s.db.Store().Get(id, &run); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListRuns returns archived runs, newest first
func (s *RunStorage) ListRuns(ctx context.Context, opts *interfaces.RunListOptions) ([]*models.RunRecord, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.State != "" {
			query = query.And("State").Eq(opts.State)
		}
	}
	query = query.SortBy("CreatedAt").Reverse()
	if opts != nil && opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	var runs []models.RunRecord
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	result := make([]*models.RunRecord, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

func (s *RunStorage) DeleteRun(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.RunRecord{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("%w: %s", interfaces.ErrRunNotFound, id)
		}
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}
