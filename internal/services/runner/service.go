// Package runner executes reconciliation runs in the background, one at a time,
// capturing their progress output for observers.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pricewatch/internal/common"
	"github.com/ternarybob/pricewatch/internal/interfaces"
	"github.com/ternarybob/pricewatch/internal/models"
	"github.com/ternarybob/pricewatch/internal/services/pipeline"
)

// ErrRunAlreadyActive rejects a start request while another run is pending or running
var ErrRunAlreadyActive = errors.New("a reconciliation run is already active")

// defaultRetained is how many finished runs stay in memory; older ones live in storage only
const defaultRetained = 20

// Pipeline is the unit of work executed by a run
type Pipeline interface {
	Run(ctx context.Context, progress pipeline.Progress) (*pipeline.Result, error)
}

// Drainer delivers pending run output; Flush must return only after the output
// appended so far has been sent
type Drainer interface {
	Flush(runID string)
}

// Service owns the run table and the single active run
type Service struct {
	pipeline Pipeline
	storage  interfaces.RunStorage
	events   interfaces.EventService
	logger   arbor.ILogger

	mu       sync.Mutex
	runs     map[string]*Run
	order    []string
	active   *Run
	drainers []Drainer
	retained int
	wg       sync.WaitGroup
}

// NewService creates a runner. storage and events may be nil.
func NewService(p Pipeline, storage interfaces.RunStorage, events interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		pipeline: p,
		storage:  storage,
		events:   events,
		logger:   logger,
		runs:     make(map[string]*Run),
		retained: defaultRetained,
	}
}

// AddDrainer registers a consumer flushed before every terminal transition
func (s *Service) AddDrainer(d Drainer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainers = append(s.drainers, d)
}

// Start creates a run and executes it in the background
func (s *Service) Start(trigger models.RunTrigger) (*Run, error) {
	s.mu.Lock()
	if s.active != nil && !s.active.State().IsTerminal() {
		activeID := s.active.ID()
		s.mu.Unlock()
		s.logger.Warn().
			Str("active_run", activeID).
			Str("trigger", string(trigger)).
			Msg("Run start rejected, another run is active")
		return nil, fmt.Errorf("%w: %s", ErrRunAlreadyActive, activeID)
	}

	// Runs outlive the request that started them
	ctx, cancel := context.WithCancel(context.Background())
	run := newRun(common.NewRunID(), trigger, cancel)
	s.runs[run.ID()] = run
	s.order = append(s.order, run.ID())
	s.active = run
	s.pruneLocked()
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info().
		Str("run_id", run.ID()).
		Str("trigger", string(trigger)).
		Msg("Reconciliation run created")
	s.publish(run)

	var once sync.Once
	finish := func(state models.RunState, errMsg, reportPath string, verdicts []models.ProductVerdict) {
		once.Do(func() {
			s.complete(run, state, errMsg, reportPath, verdicts)
		})
	}

	common.SafeGo(s.logger, "run:"+run.ID(), func() {
		s.execute(ctx, run, finish)
	}, func(recovered interface{}) {
		run.Output().Printf("Run failed: internal error: %v", recovered)
		finish(models.RunStateFailed, fmt.Sprintf("internal error: %v", recovered), "", nil)
	})

	return run, nil
}

func (s *Service) execute(ctx context.Context, run *Run, finish func(models.RunState, string, string, []models.ProductVerdict)) {
	logger := s.logger.WithCorrelationId(run.ID())

	run.markRunning()
	s.publish(run)
	run.Output().Printf("Run %s started", run.ID())
	logger.Info().Msg("Reconciliation run started")

	result, err := s.pipeline.Run(ctx, run.Output())

	var verdicts []models.ProductVerdict
	var reportPath string
	if result != nil {
		verdicts = result.Verdicts
		reportPath = result.ReportPath
		if result.Cancelled {
			run.markCancelled()
		}
	}

	if err != nil {
		run.Output().Printf("Run failed: %v", err)
		logger.Error().Err(err).Msg("Reconciliation run failed")
		finish(models.RunStateFailed, err.Error(), reportPath, verdicts)
		return
	}

	run.Output().Printf("Run completed: report %s", reportPath)
	logger.Info().
		Str("report_path", reportPath).
		Int("products", len(verdicts)).
		Msg("Reconciliation run completed")
	finish(models.RunStateCompleted, "", reportPath, verdicts)
}

// complete drains output to every observer, then performs the terminal transition,
// archives the run and notifies subscribers
func (s *Service) complete(run *Run, state models.RunState, errMsg, reportPath string, verdicts []models.ProductVerdict) {
	defer s.wg.Done()
	defer close(run.done)

	s.mu.Lock()
	drainers := append([]Drainer(nil), s.drainers...)
	s.mu.Unlock()

	for _, d := range drainers {
		d.Flush(run.ID())
	}

	run.finish(state, errMsg, reportPath, verdicts)
	run.cancel()

	if s.storage != nil {
		if err := s.storage.SaveRun(context.Background(), run.Record()); err != nil {
			s.logger.Warn().Err(err).Str("run_id", run.ID()).Msg("Failed to archive run")
		}
	}

	s.publish(run)
}

func (s *Service) publish(run *Run) {
	if s.events == nil {
		return
	}
	event := interfaces.Event{Type: interfaces.EventRunStateChanged, Payload: run.Status()}
	if err := s.events.PublishSync(context.Background(), event); err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.ID()).Msg("Run event delivery failed")
	}
}

// Get returns an in-memory run
func (s *Service) Get(id string) (*Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	return run, ok
}

// Active returns the pending or running run, or nil
func (s *Service) Active() *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.State().IsTerminal() {
		return nil
	}
	return s.active
}

// ActiveOutput returns the id and output buffer of the pending or running run
func (s *Service) ActiveOutput() (string, *OutputBuffer, bool) {
	run := s.Active()
	if run == nil {
		return "", nil, false
	}
	return run.ID(), run.Output(), true
}

// OutputOf returns the output buffer of an in-memory run
func (s *Service) OutputOf(id string) (*OutputBuffer, bool) {
	run, ok := s.Get(id)
	if !ok {
		return nil, false
	}
	return run.Output(), true
}

// Record returns a run snapshot from memory, falling back to the archive
func (s *Service) Record(ctx context.Context, id string) (*models.RunRecord, error) {
	if run, ok := s.Get(id); ok {
		return run.Record(), nil
	}
	if s.storage == nil {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrRunNotFound, id)
	}
	return s.storage.GetRun(ctx, id)
}

// List returns in-memory and archived runs, newest first
func (s *Service) List(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	s.mu.Lock()
	records := make([]*models.RunRecord, 0, len(s.runs))
	seen := make(map[string]struct{}, len(s.runs))
	for _, id := range s.order {
		records = append(records, s.runs[id].Record())
		seen[id] = struct{}{}
	}
	s.mu.Unlock()

	if s.storage != nil {
		archived, err := s.storage.ListRuns(ctx, &interfaces.RunListOptions{Limit: limit})
		if err != nil {
			return nil, err
		}
		for _, r := range archived {
			if _, ok := seen[r.ID]; !ok {
				records = append(records, r)
			}
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Cancel requests cancellation of a pending or running run
func (s *Service) Cancel(id string) error {
	run, ok := s.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", interfaces.ErrRunNotFound, id)
	}
	if run.State().IsTerminal() {
		return fmt.Errorf("run %s already %s", id, run.State())
	}

	s.logger.Info().Str("run_id", id).Msg("Cancelling reconciliation run")
	run.Output().Printf("Cancellation requested")
	run.cancel()
	return nil
}

// Shutdown cancels the active run and waits for it to settle or ctx to expire
func (s *Service) Shutdown(ctx context.Context) error {
	if run := s.Active(); run != nil {
		run.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pruneLocked drops the oldest finished runs beyond the retention limit
func (s *Service) pruneLocked() {
	excess := len(s.order) - s.retained
	if excess <= 0 {
		return
	}

	kept := s.order[:0]
	for _, id := range s.order {
		run := s.runs[id]
		if excess > 0 && run.State().IsTerminal() {
			delete(s.runs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}
