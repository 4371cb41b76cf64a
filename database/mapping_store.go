// database/mapping_store.go
package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gewnthar/parkalerts/models"
)

// GetMappings returns all mappings keyed by park_id.
func (s *Store) GetMappings(ctx context.Context) (map[string]models.ParkMapping, error) {
	mappings, err := s.ListMappings(ctx)
	if err != nil {
		return nil, err
	}
	byPark := make(map[string]models.ParkMapping, len(mappings))
	for _, m := range mappings {
		byPark[m.ParkID] = m
	}
	return byPark, nil
}

// ListMappings returns all mappings ordered by park_id.
func (s *Store) ListMappings(ctx context.Context) ([]models.ParkMapping, error) {
	var mappings []models.ParkMapping
	if err := s.db.WithContext(ctx).Order("park_id").Find(&mappings).Error; err != nil {
		return nil, fmt.Errorf("failed to list park mappings: %w", err)
	}
	return mappings, nil
}

// CreateMappings inserts new mappings in one transaction. Rows whose park_id
// already exists are left untouched; the return value counts inserted rows.
func (s *Store) CreateMappings(ctx context.Context, mappings []models.ParkMapping) (int, error) {
	if len(mappings) == 0 {
		return 0, nil
	}

	seen := make(map[string]bool, len(mappings))
	rows := make([]models.ParkMapping, 0, len(mappings))
	now := time.Now().UTC()
	for _, m := range mappings {
		if seen[m.ParkID] {
			continue
		}
		seen[m.ParkID] = true
		m.CreatedAt = now
		rows = append(rows, m)
	}

	var created int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(rows); start += upsertBatchSize {
			end := min(start+upsertBatchSize, len(rows))
			batch := rows[start:end]
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&batch)
			if result.Error != nil {
				return result.Error
			}
			created += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create %d park mappings: %w", len(rows), err)
	}
	return int(created), nil
}

// DeleteMapping removes the mapping for parkID so the next run resolves the
// park again. It reports whether a row existed.
func (s *Store) DeleteMapping(ctx context.Context, parkID string) (bool, error) {
	result := s.db.WithContext(ctx).Where("park_id = ?", parkID).Delete(&models.ParkMapping{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete mapping for park %s: %w", parkID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ParkSummary is one park seen in the alert feed with its mapping state.
type ParkSummary struct {
	ParkID       string  `json:"park_id"`
	ParkName     string  `json:"park_name"`
	ObjectID     *int64  `json:"object_id"`
	ReserveName  *string `json:"reserve_name,omitempty"`
	MatchSource  *string `json:"match_source,omitempty"`
	ActiveAlerts int64   `json:"active_alerts"`
	TotalAlerts  int64   `json:"total_alerts"`
}

// ListParks summarizes every park that has ever had an alert.
func (s *Store) ListParks(ctx context.Context) ([]ParkSummary, error) {
	var parks []ParkSummary
	err := s.db.WithContext(ctx).
		Table("alerts").
		Select(`alerts.park_id AS park_id,
			MAX(alerts.park_name) AS park_name,
			park_mappings.object_id AS object_id,
			park_mappings.reserve_name AS reserve_name,
			park_mappings.match_source AS match_source,
			SUM(CASE WHEN alerts.is_active = ? THEN 1 ELSE 0 END) AS active_alerts,
			COUNT(*) AS total_alerts`, true).
		Joins("LEFT JOIN park_mappings ON park_mappings.park_id = alerts.park_id").
		Group("alerts.park_id, park_mappings.object_id, park_mappings.reserve_name, park_mappings.match_source").
		Order("MAX(alerts.park_name)").
		Scan(&parks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list parks: %w", err)
	}
	return parks, nil
}
