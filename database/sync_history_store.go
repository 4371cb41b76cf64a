// database/sync_history_store.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/gewnthar/parkalerts/models"
)

// ErrRunAlreadyFinalized is returned when a finalize targets a run that is no
// longer running.
var ErrRunAlreadyFinalized = errors.New("sync run already finalized")

// StartSyncRun inserts run with status running. StartedAt defaults to now.
func (s *Store) StartSyncRun(ctx context.Context, run *models.SyncRun) error {
	run.Status = models.RunStatusRunning
	if run.Stage == "" {
		run.Stage = models.StageStarted
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.CompletedAt = nil
	run.DurationMS = nil
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to record sync run start: %w", err)
	}
	return nil
}

// FinalizeSyncRun writes the terminal status, counts and timing of run.
// Only a row still marked running is updated, so a run is finalized once.
func (s *Store) FinalizeSyncRun(ctx context.Context, run *models.SyncRun) error {
	if run.Status == models.RunStatusRunning || run.Status == "" {
		return fmt.Errorf("finalize needs a terminal status, got %q", run.Status)
	}

	completed := time.Now().UTC()
	if run.CompletedAt != nil {
		completed = *run.CompletedAt
	}
	duration := completed.Sub(run.StartedAt).Milliseconds()
	run.CompletedAt = &completed
	run.DurationMS = &duration

	result := s.db.WithContext(ctx).
		Model(&models.SyncRun{}).
		Where("id = ? AND status = ?", run.ID, models.RunStatusRunning).
		Updates(map[string]any{
			"status":             run.Status,
			"stage":              run.Stage,
			"alerts_fetched":     run.AlertsFetched,
			"alerts_processed":   run.AlertsProcessed,
			"current_fetched":    run.CurrentFetched,
			"current_processed":  run.CurrentProcessed,
			"future_fetched":     run.FutureFetched,
			"future_processed":   run.FutureProcessed,
			"reserves_fetched":   run.ReservesFetched,
			"reserves_processed": run.ReservesProcessed,
			"mappings_created":   run.MappingsCreated,
			"alerts_deactivated": run.AlertsDeactivated,
			"error_count":        run.ErrorCount,
			"error_message":      run.ErrorMessage,
			"completed_at":       run.CompletedAt,
			"duration_ms":        run.DurationMS,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finalize sync run %d: %w", run.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRunAlreadyFinalized
	}
	return nil
}

// UpdateSyncStage records progress of a running run.
func (s *Store) UpdateSyncStage(ctx context.Context, id int64, stage models.Stage) error {
	err := s.db.WithContext(ctx).
		Model(&models.SyncRun{}).
		Where("id = ? AND status = ?", id, models.RunStatusRunning).
		Update("stage", stage).Error
	if err != nil {
		return fmt.Errorf("failed to update stage of sync run %d: %w", id, err)
	}
	return nil
}

// GetSyncRun returns one run or ErrNotFound.
func (s *Store) GetSyncRun(ctx context.Context, id int64) (*models.SyncRun, error) {
	var run models.SyncRun
	err := s.db.WithContext(ctx).First(&run, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync run %d: %w", id, err)
	}
	return &run, nil
}

// RecentSyncRuns returns up to limit runs, newest first.
func (s *Store) RecentSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.SyncRun
	err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sync history: %w", err)
	}
	return runs, nil
}

// GetSummary returns table counts and the start time of the latest completed run.
func (s *Store) GetSummary(ctx context.Context) (*models.Summary, error) {
	var summary models.Summary
	var err error

	if summary.TotalAlerts, summary.ActiveAlerts, err = s.CountAlerts(ctx); err != nil {
		return nil, err
	}
	if summary.TotalReserves, err = s.CountReserves(ctx); err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Model(&models.ParkMapping{}).
		Where("object_id IS NOT NULL").
		Count(&summary.MappedParks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count mapped parks: %w", err)
	}

	var last models.SyncRun
	err = s.db.WithContext(ctx).
		Where("status = ?", models.RunStatusCompleted).
		Order("started_at DESC").
		Take(&last).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to find last completed sync: %w", err)
	default:
		started := last.StartedAt
		summary.LastSuccessfulAt = &started
	}
	return &summary, nil
}

// MarkInterruptedRuns fails every run left running by a process that exited
// mid-run. It returns the number of rows changed.
func (s *Store) MarkInterruptedRuns(ctx context.Context, message string) (int64, error) {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.SyncRun{}).
		Where("status = ?", models.RunStatusRunning).
		Updates(map[string]any{
			"status":        models.RunStatusFailed,
			"error_message": message,
			"completed_at":  now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark interrupted sync runs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
