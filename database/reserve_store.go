// database/reserve_store.go
package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gewnthar/parkalerts/models"
)

const upsertBatchSize = 200

var reserveUpdateColumns = []string{
	"name",
	"short_name",
	"location",
	"reserve_type",
	"gis_area",
	"gazetted_area",
	"gazettal_date",
	"centroid_lat",
	"centroid_lon",
	"updated_at",
}

// UpsertReserves writes every reserve keyed on object_id in a single
// transaction. Later duplicates of an object_id win. It returns the number of
// distinct reserves written.
func (s *Store) UpsertReserves(ctx context.Context, reserves []models.Reserve) (int, error) {
	if len(reserves) == 0 {
		return 0, nil
	}

	byID := make(map[int64]models.Reserve, len(reserves))
	for _, r := range reserves {
		byID[r.ObjectID] = r
	}
	rows := make([]models.Reserve, 0, len(byID))
	for _, r := range byID {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ObjectID < rows[j].ObjectID })

	now := time.Now().UTC()
	for i := range rows {
		rows[i].CreatedAt = now
		rows[i].UpdatedAt = now
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "object_id"}},
			DoUpdates: clause.AssignmentColumns(reserveUpdateColumns),
		}).CreateInBatches(&rows, upsertBatchSize).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert %d reserves: %w", len(rows), err)
	}
	return len(rows), nil
}

// ListReserves returns every reserve ordered by object_id.
func (s *Store) ListReserves(ctx context.Context) ([]models.Reserve, error) {
	var reserves []models.Reserve
	if err := s.db.WithContext(ctx).Order("object_id").Find(&reserves).Error; err != nil {
		return nil, fmt.Errorf("failed to list reserves: %w", err)
	}
	return reserves, nil
}

// GetReserve returns one reserve or ErrNotFound.
func (s *Store) GetReserve(ctx context.Context, objectID int64) (*models.Reserve, error) {
	var reserve models.Reserve
	err := s.db.WithContext(ctx).First(&reserve, "object_id = ?", objectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reserve %d: %w", objectID, err)
	}
	return &reserve, nil
}

// SearchReserves returns reserves whose name or short name contains query,
// case-insensitively.
func (s *Store) SearchReserves(ctx context.Context, query string, limit int) ([]models.Reserve, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"

	var reserves []models.Reserve
	err := s.db.WithContext(ctx).
		Where("LOWER(name) LIKE ? OR LOWER(short_name) LIKE ?", pattern, pattern).
		Order("name").
		Limit(limit).
		Find(&reserves).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search reserves: %w", err)
	}
	return reserves, nil
}

func (s *Store) CountReserves(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Reserve{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count reserves: %w", err)
	}
	return n, nil
}
