package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gewnthar/parkalerts/apperrors"
	"github.com/gewnthar/parkalerts/models"
)

// blockingRunner holds each run open until release is closed.
type blockingRunner struct {
	started chan models.RunType
	release chan struct{}
	calls   atomic.Int32
	fail    error
	panics  bool
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan models.RunType, 4), release: make(chan struct{})}
}

func (r *blockingRunner) Run(_ context.Context, runType models.RunType) (*models.SyncRun, error) {
	r.calls.Add(1)
	r.started <- runType
	<-r.release
	if r.panics {
		panic("runner exploded")
	}
	if r.fail != nil {
		return &models.SyncRun{RunType: runType, Status: models.RunStatusFailed}, r.fail
	}
	return &models.SyncRun{RunID: "run", RunType: runType, Status: models.RunStatusCompleted}, nil
}

func waitStarted(t *testing.T, r *blockingRunner) models.RunType {
	t.Helper()
	select {
	case rt := <-r.started:
		return rt
	case <-time.After(2 * time.Second):
		t.Fatal("run did not start")
		return ""
	}
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(newBlockingRunner(), nil)
	for _, expr := range []string{"", "every hour", "* * * *", "61 * * * *", "0 0 * * * *"} {
		err := s.Start(expr)
		require.Error(t, err, expr)
		assert.True(t, apperrors.IsKind(err, apperrors.KindScheduleConfigInvalid), expr)
	}
	assert.True(t, s.NextRun().IsZero())
}

func TestScheduler_StartAndStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(newBlockingRunner(), nil)
	require.NoError(t, s.Start("*/5 * * * *"))
	assert.Error(t, s.Start("*/5 * * * *"), "double start is rejected")

	next := s.NextRun()
	assert.False(t, next.IsZero())
	assert.Zero(t, next.Minute()%5)

	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, s.NextRun().IsZero())
	assert.ErrorIs(t, s.Trigger(models.RunTypeManual), ErrSchedulerStopped)
}

func TestScheduler_NoOverlap(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := newBlockingRunner()
	s := NewScheduler(runner, nil)

	require.NoError(t, s.Trigger(models.RunTypeManual))
	assert.Equal(t, models.RunTypeManual, waitStarted(t, runner))
	assert.True(t, s.Running())

	assert.ErrorIs(t, s.Trigger(models.RunTypeManual), ErrRunInProgress)
	_, err := s.RunNow(context.Background(), models.RunTypeCLI)
	assert.ErrorIs(t, err, ErrRunInProgress)
	s.tick()

	close(runner.release)
	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.Running())
	assert.Equal(t, int32(1), runner.calls.Load(), "skipped attempts never reach the runner")
}

func TestScheduler_TickRunsScheduledSync(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := newBlockingRunner()
	close(runner.release)
	s := NewScheduler(runner, nil)

	s.tick()
	assert.Equal(t, models.RunTypeScheduled, waitStarted(t, runner))
	assert.False(t, s.Running())
}

func TestScheduler_FailureAndPanicClearGuard(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := newBlockingRunner()
	close(runner.release)
	s := NewScheduler(runner, nil)

	runner.fail = errors.New("storage failure")
	run, err := s.RunNow(context.Background(), models.RunTypeCLI)
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.False(t, s.Running())

	runner.fail = nil
	runner.panics = true
	_, err = s.RunNow(context.Background(), models.RunTypeCLI)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.False(t, s.Running(), "guard is cleared after a panic")

	runner.panics = false
	run, err = s.RunNow(context.Background(), models.RunTypeCLI)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, int32(3), runner.calls.Load())
}

func TestScheduler_StopWaitsForInFlightRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := newBlockingRunner()
	s := NewScheduler(runner, nil)
	require.NoError(t, s.Start("0 * * * *"))
	require.NoError(t, s.Trigger(models.RunTypeStartup))
	waitStarted(t, runner)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded, "the running sync is not interrupted")
	assert.True(t, s.Running())

	close(runner.release)
	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.Running())
}

func TestScheduler_OnRunCompleteSeesEveryRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := newBlockingRunner()
	close(runner.release)
	s := NewScheduler(runner, nil)

	var seen []models.RunStatus
	s.OnRunComplete(func(run *models.SyncRun) {
		assert.True(t, s.Running(), "hooks run before the guard is released")
		seen = append(seen, run.Status)
	})

	_, err := s.RunNow(context.Background(), models.RunTypeCLI)
	require.NoError(t, err)
	runner.fail = errors.New("storage failure")
	_, err = s.RunNow(context.Background(), models.RunTypeCLI)
	require.Error(t, err)

	assert.Equal(t, []models.RunStatus{models.RunStatusCompleted, models.RunStatusFailed}, seen)
}

func TestScheduler_TriggersRacingStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := newBlockingRunner()
	runner.started = make(chan models.RunType, 64)
	close(runner.release)
	s := NewScheduler(runner, nil)

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Trigger(models.RunTypeManual)
			if err == nil {
				accepted.Add(1)
				return
			}
			assert.True(t, errors.Is(err, ErrRunInProgress) || errors.Is(err, ErrSchedulerStopped), err)
		}()
	}
	require.NoError(t, s.Stop(context.Background()))
	wg.Wait()

	assert.ErrorIs(t, s.Trigger(models.RunTypeManual), ErrSchedulerStopped)
	_, err := s.RunNow(context.Background(), models.RunTypeCLI)
	assert.ErrorIs(t, err, ErrSchedulerStopped)
	assert.False(t, s.Running())
	assert.Equal(t, accepted.Load(), runner.calls.Load(), "every accepted trigger ran before Stop returned")
}
