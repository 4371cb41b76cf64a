// database/alert_store.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gewnthar/parkalerts/models"
)

var alertUpdateColumns = []string{
	"park_name",
	"title",
	"description",
	"description_text",
	"category",
	"effective_from",
	"effective_to",
	"last_reviewed",
	"park_closed",
	"park_part_closed",
	"is_active",
	"last_seen_at",
	"updated_at",
}

// AlertBatch is the complete outcome of one alert refresh. Every active row
// of a reset horizon is flipped inactive before Alerts are upserted active.
// A horizon that is not reset keeps its active rows untouched.
type AlertBatch struct {
	Alerts       []models.Alert
	ResetCurrent bool
	ResetFuture  bool
}

func (b AlertBatch) resetHorizons() []bool {
	var horizons []bool
	if b.ResetCurrent {
		horizons = append(horizons, false)
	}
	if b.ResetFuture {
		horizons = append(horizons, true)
	}
	return horizons
}

// ReconcileResult reports what a batch changed.
type ReconcileResult struct {
	Upserted    int // distinct natural keys written active
	Deactivated int // rows active before the batch and inactive after it
}

// ReconcileAlerts applies batch in one transaction: mark the reset horizons
// inactive, then upsert every alert as active. Readers see either the old
// active set or the new one. Any failure rolls the whole batch back.
func (s *Store) ReconcileAlerts(ctx context.Context, batch AlertBatch) (ReconcileResult, error) {
	var result ReconcileResult

	rows := dedupeAlerts(batch.Alerts)
	incoming := make(map[models.AlertKey]struct{}, len(rows))
	now := time.Now().UTC()
	for i := range rows {
		rows[i].IsActive = true
		rows[i].FirstSeenAt = now
		rows[i].LastSeenAt = now
		rows[i].CreatedAt = now
		rows[i].UpdatedAt = now
		incoming[rows[i].Key()] = struct{}{}
	}

	horizons := batch.resetHorizons()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(horizons) > 0 {
			var previouslyActive []models.Alert
			err := tx.Select("alert_id", "park_id", "is_future").
				Where("is_active = ? AND is_future IN ?", true, horizons).
				Find(&previouslyActive).Error
			if err != nil {
				return fmt.Errorf("failed to load active alerts: %w", err)
			}

			err = tx.Model(&models.Alert{}).
				Where("is_active = ? AND is_future IN ?", true, horizons).
				Updates(map[string]any{"is_active": false, "updated_at": now}).Error
			if err != nil {
				return fmt.Errorf("failed to mark alerts inactive: %w", err)
			}

			for _, a := range previouslyActive {
				if _, ok := incoming[a.Key()]; !ok {
					result.Deactivated++
				}
			}
		}

		if len(rows) == 0 {
			return nil
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "alert_id"}, {Name: "park_id"}, {Name: "is_future"}},
			DoUpdates: clause.AssignmentColumns(alertUpdateColumns),
		}).CreateInBatches(&rows, upsertBatchSize).Error
		if err != nil {
			return fmt.Errorf("failed to upsert alerts: %w", err)
		}
		return nil
	})
	if err != nil {
		return ReconcileResult{}, err
	}

	result.Upserted = len(rows)
	return result, nil
}

// dedupeAlerts keeps the last row per natural key, preserving first-seen order.
// A single INSERT .. ON CONFLICT cannot touch the same row twice.
func dedupeAlerts(alerts []models.Alert) []models.Alert {
	index := make(map[models.AlertKey]int, len(alerts))
	rows := make([]models.Alert, 0, len(alerts))
	for _, a := range alerts {
		a.ID = 0
		if i, ok := index[a.Key()]; ok {
			rows[i] = a
			continue
		}
		index[a.Key()] = len(rows)
		rows = append(rows, a)
	}
	return rows
}

// AlertFilter narrows ListAlerts. The zero value lists active alerts of both horizons.
type AlertFilter struct {
	IncludeInactive bool
	Future          *bool
	ParkID          string
	Limit           int
}

// ListAlerts returns alerts joined with their mapping and reserve.
func (s *Store) ListAlerts(ctx context.Context, filter AlertFilter) ([]models.AlertView, error) {
	q := s.db.WithContext(ctx).
		Table("alerts").
		Select(`alerts.*,
			park_mappings.object_id AS object_id,
			COALESCE(reserves.name, park_mappings.reserve_name) AS reserve_name,
			reserves.centroid_lat AS centroid_lat,
			reserves.centroid_lon AS centroid_lon`).
		Joins("LEFT JOIN park_mappings ON park_mappings.park_id = alerts.park_id").
		Joins("LEFT JOIN reserves ON reserves.object_id = park_mappings.object_id")

	if !filter.IncludeInactive {
		q = q.Where("alerts.is_active = ?", true)
	}
	if filter.Future != nil {
		q = q.Where("alerts.is_future = ?", *filter.Future)
	}
	if filter.ParkID != "" {
		q = q.Where("alerts.park_id = ?", filter.ParkID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var views []models.AlertView
	if err := q.Order("alerts.park_name, alerts.alert_id, alerts.is_future").Scan(&views).Error; err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return views, nil
}

// GetAlert returns the row for a natural key or ErrNotFound.
func (s *Store) GetAlert(ctx context.Context, key models.AlertKey) (*models.Alert, error) {
	var alert models.Alert
	err := s.db.WithContext(ctx).
		Where("alert_id = ? AND park_id = ? AND is_future = ?", key.AlertID, key.ParkID, key.IsFuture).
		First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert %s/%s: %w", key.AlertID, key.ParkID, err)
	}
	return &alert, nil
}

// CountAlerts returns the total and active alert row counts.
func (s *Store) CountAlerts(ctx context.Context) (total, active int64, err error) {
	db := s.db.WithContext(ctx)
	if err = db.Model(&models.Alert{}).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	if err = db.Model(&models.Alert{}).Where("is_active = ?", true).Count(&active).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count active alerts: %w", err)
	}
	return total, active, nil
}
