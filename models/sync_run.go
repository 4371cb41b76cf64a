// models/sync_run.go
package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type RunType string

const (
	RunTypeScheduled RunType = "scheduled"
	RunTypeManual    RunType = "manual"
	RunTypeStartup   RunType = "startup"
	RunTypeCLI       RunType = "cli"
)

// Stage is the last state a run reached.
type Stage string

const (
	StageStarted           Stage = "started"
	StageReservesSynced    Stage = "reserves_synced"
	StageMappingsRefreshed Stage = "mappings_refreshed"
	StageAlertsReconciled  Stage = "alerts_reconciled"
	StageCompleted         Stage = "completed"
)

// SyncRun is one row of the sync_history audit log. It is inserted with
// status running and finalized exactly once.
type SyncRun struct {
	ID                int64      `gorm:"primaryKey" json:"id"`
	RunID             string     `gorm:"size:36;uniqueIndex" json:"run_id"`
	RunType           RunType    `gorm:"size:20;not null" json:"run_type"`
	Status            RunStatus  `gorm:"size:20;not null;index" json:"status"`
	Stage             Stage      `gorm:"size:32" json:"stage"`
	AlertsFetched     int        `gorm:"not null" json:"alerts_fetched"`
	AlertsProcessed   int        `gorm:"not null" json:"alerts_processed"`
	CurrentFetched    int        `gorm:"not null" json:"current_fetched"`
	CurrentProcessed  int        `gorm:"not null" json:"current_processed"`
	FutureFetched     int        `gorm:"not null" json:"future_fetched"`
	FutureProcessed   int        `gorm:"not null" json:"future_processed"`
	ReservesFetched   int        `gorm:"not null" json:"reserves_fetched"`
	ReservesProcessed int        `gorm:"not null" json:"reserves_processed"`
	MappingsCreated   int        `gorm:"not null" json:"mappings_created"`
	AlertsDeactivated int        `gorm:"not null" json:"alerts_deactivated"`
	ErrorCount        int        `gorm:"not null" json:"error_count"`
	ErrorMessage      *string    `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt         time.Time  `gorm:"not null;index" json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	DurationMS        *int64     `json:"duration_ms,omitempty"`
}

func (SyncRun) TableName() string { return "sync_history" }

// Finished reports whether the run has been finalized.
func (r SyncRun) Finished() bool {
	return r.Status != RunStatusRunning
}

// Summary is the reporting snapshot exposed by the read API.
type Summary struct {
	TotalAlerts      int64      `json:"total_alerts"`
	ActiveAlerts     int64      `json:"active_alerts"`
	TotalReserves    int64      `json:"total_reserves"`
	MappedParks      int64      `json:"mapped_parks"`
	LastSuccessfulAt *time.Time `json:"last_successful_sync,omitempty"`
}
