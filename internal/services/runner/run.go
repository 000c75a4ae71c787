package runner

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/pricewatch/internal/models"
)

// Run is one reconciliation run held in memory while the process lives
type Run struct {
	mu         sync.RWMutex
	id         string
	trigger    models.RunTrigger
	state      models.RunState
	createdAt  time.Time
	startedAt  *time.Time
	finishedAt *time.Time
	errMsg     string
	cancelled  bool
	reportPath string
	products   int
	tally      map[models.PriceStatus]int

	output *OutputBuffer
	cancel context.CancelFunc
	done   chan struct{}
}

func newRun(id string, trigger models.RunTrigger, cancel context.CancelFunc) *Run {
	return &Run{
		id:        id,
		trigger:   trigger,
		state:     models.RunStatePending,
		createdAt: time.Now(),
		output:    NewOutputBuffer(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// ID returns the run id
func (r *Run) ID() string {
	return r.id
}

// State returns the current state
func (r *Run) State() models.RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Output returns the run's progress buffer
func (r *Run) Output() *OutputBuffer {
	return r.output
}

// Done is closed once the run reached a terminal state and was archived
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Status returns the lifecycle notification for the current state
func (r *Run) Status() models.RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return models.RunStatus{RunID: r.id, State: r.state, Error: r.errMsg, ReportPath: r.reportPath}
}

// Record returns an archivable snapshot including the output so far
func (r *Run) Record() *models.RunRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record := &models.RunRecord{
		ID:         r.id,
		State:      r.state,
		Trigger:    r.trigger,
		CreatedAt:  r.createdAt,
		StartedAt:  r.startedAt,
		FinishedAt: r.finishedAt,
		Error:      r.errMsg,
		Cancelled:  r.cancelled,
		ReportPath: r.reportPath,
		Products:   r.products,
		Output:     r.output.String(),
	}
	if r.tally != nil {
		record.Tally = make(map[models.PriceStatus]int, len(r.tally))
		for k, v := range r.tally {
			record.Tally[k] = v
		}
	}
	return record
}

func (r *Run) markRunning() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.state = models.RunStateRunning
	r.startedAt = &now
}

func (r *Run) markCancelled() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = true
}

func (r *Run) finish(state models.RunState, errMsg, reportPath string, verdicts []models.ProductVerdict) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.state = state
	r.finishedAt = &now
	r.errMsg = errMsg
	r.reportPath = reportPath
	if verdicts != nil {
		r.products = len(verdicts)
		r.tally = models.StatusTally(verdicts)
	}
}
