package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/pricewatch/internal/models"
)

// ErrRunNotFound is returned when no run exists for an id
var ErrRunNotFound = errors.New("run not found")

// RunListOptions filters archived runs
type RunListOptions struct {
	State models.RunState
	Limit int
}

// RunStorage archives finished reconciliation runs
type RunStorage interface {
	SaveRun(ctx context.Context, run *models.RunRecord) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	ListRuns(ctx context.Context, opts *RunListOptions) ([]*models.RunRecord, error)
	DeleteRun(ctx context.Context, id string) error
}
