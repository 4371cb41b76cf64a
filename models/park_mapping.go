// models/park_mapping.go
package models

import "time"

// MatchSource records which matcher tier produced a mapping.
type MatchSource string

const (
	MatchSourceOverride   MatchSource = "override"
	MatchSourceExact      MatchSource = "exact"
	MatchSourceNormalized MatchSource = "normalized"
	MatchSourceLocation   MatchSource = "location"
)

// ParkMapping associates an alert-feed park with a reserve. A nil ObjectID
// means an operator override marked the park as having no reserve.
// Rows are written once and never re-evaluated.
type ParkMapping struct {
	ParkID      string      `gorm:"primaryKey;size:64" json:"park_id"`
	ParkName    string      `gorm:"size:255" json:"park_name"`
	ObjectID    *int64      `gorm:"index" json:"object_id"`
	ReserveName string      `gorm:"size:255" json:"reserve_name,omitempty"`
	MatchSource MatchSource `gorm:"size:20" json:"match_source"`
	CreatedAt   time.Time   `json:"created_at"`
}

func (ParkMapping) TableName() string { return "park_mappings" }

// Unmatched reports whether the mapping suppresses any reserve association.
func (m ParkMapping) Unmatched() bool {
	return m.ObjectID == nil
}
