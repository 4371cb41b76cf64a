// services/scheduler.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gewnthar/parkalerts/apperrors"
	"github.com/gewnthar/parkalerts/logging"
	"github.com/gewnthar/parkalerts/metrics"
	"github.com/gewnthar/parkalerts/models"
)

var (
	// ErrRunInProgress is returned when a sync is requested while one is running.
	ErrRunInProgress = errors.New("a sync run is already in progress")
	// ErrSchedulerStopped is returned for requests after Stop.
	ErrSchedulerStopped = errors.New("scheduler is stopped")
)

// Runner performs one sync run.
type Runner interface {
	Run(ctx context.Context, runType models.RunType) (*models.SyncRun, error)
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule validates a five-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, apperrors.New(fmt.Errorf("invalid schedule %q: %w", expr, err)).
			Kind(apperrors.KindScheduleConfigInvalid).
			Component("scheduler").
			Build()
	}
	return sched, nil
}

// Scheduler triggers sync runs on a cron schedule and on demand, never
// letting two runs overlap. A failed or panicking run does not stop it.
type Scheduler struct {
	runner  Runner
	metrics *metrics.SyncMetrics
	logger  *slog.Logger

	running  atomic.Bool
	stopped  atomic.Bool
	inFlight sync.WaitGroup

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	hooks   []func(*models.SyncRun)
}

func NewScheduler(runner Runner, m *metrics.SyncMetrics) *Scheduler {
	return &Scheduler{
		runner:  runner,
		metrics: m,
		logger:  logging.ForService("scheduler"),
	}
}

// Start validates expr and begins periodic runs.
func (s *Scheduler) Start(expr string) error {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped.Load() {
		return ErrSchedulerStopped
	}
	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	s.cron = cron.New()
	s.entryID = s.cron.Schedule(sched, cron.FuncJob(s.tick))
	s.cron.Start()

	s.logger.Info("scheduler started", "schedule", expr, "next_run", s.cron.Entry(s.entryID).Next)
	return nil
}

// OnRunComplete registers fn to be called after every run that produced a
// sync_history row, failed or not. Hooks run on the run's goroutine while the
// guard is still held.
func (s *Scheduler) OnRunComplete(fn func(*models.SyncRun)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Stop prevents future runs and waits, bounded by ctx, for an in-flight run
// to finish. The in-flight run is never interrupted.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped.Store(true)
	c := s.cron
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		if c != nil {
			<-c.Stop().Done()
		}
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out waiting for the running sync")
		return ctx.Err()
	}
}

// RunNow performs a run synchronously.
func (s *Scheduler) RunNow(ctx context.Context, runType models.RunType) (*models.SyncRun, error) {
	if err := s.acquire(runType); err != nil {
		return nil, err
	}
	return s.execute(ctx, runType)
}

// Trigger starts a run in the background. It fails immediately when a run is
// already in flight.
func (s *Scheduler) Trigger(runType models.RunType) error {
	if err := s.acquire(runType); err != nil {
		return err
	}
	go func() {
		_, _ = s.execute(context.Background(), runType)
	}()
	return nil
}

// Running reports whether a run is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// NextRun returns the next scheduled tick, or the zero time when not started.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil || s.stopped.Load() {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

func (s *Scheduler) tick() {
	if err := s.acquire(models.RunTypeScheduled); err != nil {
		return
	}
	_, _ = s.execute(context.Background(), models.RunTypeScheduled)
}

// acquire takes the run guard. Stop sets stopped under mu, so an Add here
// never overlaps its Wait.
func (s *Scheduler) acquire(runType models.RunType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped.Load() {
		return ErrSchedulerStopped
	}
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("sync already running, skipping", "run_type", runType)
		s.metrics.RecordSkipped(string(runType))
		return ErrRunInProgress
	}
	s.inFlight.Add(1)
	s.metrics.SetRunning(true)
	return nil
}

func (s *Scheduler) release() {
	s.metrics.SetRunning(false)
	s.running.Store(false)
	s.inFlight.Done()
}

// execute runs with the guard already held and always releases it.
func (s *Scheduler) execute(ctx context.Context, runType models.RunType) (run *models.SyncRun, err error) {
	start := time.Now()
	defer s.release()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync run panicked: %v", r)
			s.logger.Error("recovered from panic in sync run", "run_type", runType, "panic", r)
		}
	}()

	run, err = s.runner.Run(ctx, runType)
	if run != nil {
		s.notify(run)
	}
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		s.logger.Error("sync attempt failed", "run_type", runType, "elapsed", elapsed, "error", err)
		return run, err
	}
	if run != nil {
		s.logger.Info("sync attempt finished", "run_type", runType, "elapsed", elapsed, "run_id", run.RunID, "status", run.Status)
	}
	return run, nil
}

func (s *Scheduler) notify(run *models.SyncRun) {
	s.mu.Lock()
	hooks := append(([]func(*models.SyncRun))(nil), s.hooks...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(run)
	}
}
