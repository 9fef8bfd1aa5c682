// Package scheduler runs sync passes on an interval and on demand, never more
// than one at a time.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/telhawk-systems/reportsync/common/logging"
	"github.com/telhawk-systems/reportsync/internal/models"
)

// ErrRunInProgress is returned by Trigger while a run is executing.
var ErrRunInProgress = errors.New("sync run already in progress")

// Runner executes one sync pass.
type Runner interface {
	Run(ctx context.Context) *models.RunSummary
}

// Scheduler owns the single-flight guard and remembers the last summary.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *logging.Logger

	mu      sync.Mutex
	running bool
	last    *models.RunSummary
	baseCtx context.Context
	wg      sync.WaitGroup
}

// New creates a Scheduler. A zero interval disables the periodic loop; runs
// then only happen through Trigger.
func New(runner Runner, interval time.Duration, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
		baseCtx:  context.Background(),
	}
}

// Run starts a pass immediately and then one per interval until ctx is
// cancelled. Ticks that land while a run is in flight are skipped. Run waits
// for triggered runs to finish before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	defer s.wg.Wait()

	s.logger.InfoContext(ctx, "sync scheduler started", logging.Duration(s.interval.Milliseconds()))

	s.tick(ctx)
	if s.interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sync scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.acquire() {
		s.logger.WarnContext(ctx, "skipping scheduled run, previous run still in progress")
		return
	}
	s.execute(ctx)
}

// Trigger starts a run in the background. The run outlives the caller's
// request but not the scheduler's own context.
func (s *Scheduler) Trigger() error {
	if !s.acquire() {
		return ErrRunInProgress
	}
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(ctx)
	}()
	return nil
}

// RunOnce executes a pass synchronously, as the one-shot CLI does.
func (s *Scheduler) RunOnce(ctx context.Context) (*models.RunSummary, error) {
	if !s.acquire() {
		return nil, ErrRunInProgress
	}
	return s.execute(ctx), nil
}

// Running reports whether a run is in flight.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Last returns the most recent finished run, if any.
func (s *Scheduler) Last() (*models.RunSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.last != nil
}

// Wait blocks until background runs started by Trigger have finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Scheduler) execute(ctx context.Context) *models.RunSummary {
	summary := s.runner.Run(ctx)

	s.mu.Lock()
	s.last = summary
	s.running = false
	s.mu.Unlock()
	return summary
}
