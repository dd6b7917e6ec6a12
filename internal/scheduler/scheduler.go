// Package scheduler runs the recurring triage cycle on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// CycleFunc is the callback invoked on each scheduled tick. It performs one
// full triage cycle: ingest the recent windows, render reports, run watches.
type CycleFunc func(ctx context.Context) error

// Status describes the scheduled cycle.
type Status struct {
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitempty"`
	NextRun   time.Time `json:"next_run"`
	Schedule  string    `json:"schedule"`
	LastError string    `json:"last_error,omitempty"`
}

// Scheduler owns the cron loop for the triage cycle. Overlapping ticks are
// skipped: a cycle that outlasts its interval simply absorbs the next tick.
type Scheduler struct {
	cron     *cron.Cron
	cycle    CycleFunc
	schedule string
	logger   *slog.Logger

	mu      sync.RWMutex
	entry   cron.EntryID
	running bool
	lastRun time.Time
	lastErr error

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// New creates a Scheduler that invokes cycle per the cron expression.
func New(schedule string, cycle CycleFunc) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
		))),
		cycle:    cycle,
		schedule: schedule,
		logger:   slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
	}
	entry, err := s.cron.AddFunc(schedule, func() {
		s.mu.Lock()
		if s.stopped || s.running {
			s.mu.Unlock()
			return
		}
		s.running = true
		s.wg.Add(1)
		s.mu.Unlock()
		s.runCycle()
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid cron expression %q: %w", schedule, err)
	}
	s.entry = entry
	return s, nil
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// Start begins executing the schedule.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started",
		"schedule", s.schedule,
		"next_run", s.cron.Entry(s.entry).Next)
}

// IsRunning reports whether the scheduler has been started and not stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop cancels the in-flight cycle, stops the cron loop, and returns a
// context that is done once all work has drained.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-done
		cancel()
	}()
	return ctx
}

// TriggerNow runs one cycle immediately, outside the schedule. It refuses
// when a cycle is already in flight or the scheduler has been stopped.
func (s *Scheduler) TriggerNow() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	if s.running {
		return fmt.Errorf("cycle already running")
	}

	s.running = true
	s.wg.Add(1)
	go s.runCycle()
	return nil
}

// runCycle executes one cycle. The caller must have set running and called
// wg.Add(1).
func (s *Scheduler) runCycle() {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("starting scheduled cycle")
	start := time.Now()

	err := s.cycle(s.ctx)

	s.mu.Lock()
	if err != nil {
		s.lastErr = err
		s.logger.Error("scheduled cycle failed",
			"duration", time.Since(start),
			"error", err)
	} else {
		s.lastRun = time.Now()
		s.lastErr = nil
		s.logger.Info("scheduled cycle completed",
			"duration", time.Since(start))
	}
	s.mu.Unlock()
}

// Status reports the current schedule state.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Running:  s.running,
		LastRun:  s.lastRun,
		NextRun:  s.cron.Entry(s.entry).Next,
		Schedule: s.schedule,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// ValidateCronExpr validates a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
