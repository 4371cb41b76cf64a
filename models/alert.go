// models/alert.go
package models

import "time"

// Alert is one park alert for one horizon. The natural key is
// (AlertID, ParkID, IsFuture); rows are deactivated rather than deleted when
// they disappear upstream.
type Alert struct {
	ID              int64      `gorm:"primaryKey" json:"id"`
	AlertID         string     `gorm:"size:64;not null;uniqueIndex:idx_alert_natural_key,priority:1" json:"alert_id"`
	ParkID          string     `gorm:"size:64;not null;uniqueIndex:idx_alert_natural_key,priority:2;index" json:"park_id"`
	IsFuture        bool       `gorm:"not null;uniqueIndex:idx_alert_natural_key,priority:3" json:"is_future"`
	ParkName        string     `gorm:"size:255" json:"park_name"`
	Title           string     `gorm:"size:500;not null" json:"title"`
	Description     string     `gorm:"type:text" json:"description"`      // HTML as received
	DescriptionText string     `gorm:"type:text" json:"description_text"` // plain-text rendering
	Category        string     `gorm:"size:100;index" json:"category"`
	EffectiveFrom   *time.Time `json:"effective_from,omitempty"`
	EffectiveTo     *time.Time `json:"effective_to,omitempty"` // nil = open ended
	LastReviewed    *time.Time `json:"last_reviewed,omitempty"`
	ParkClosed      bool       `gorm:"not null" json:"park_closed"`
	ParkPartClosed  bool       `gorm:"not null" json:"park_part_closed"`
	IsActive        bool       `gorm:"not null;index" json:"is_active"`
	FirstSeenAt     time.Time  `json:"first_seen_at"`
	LastSeenAt      time.Time  `json:"last_seen_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (Alert) TableName() string { return "alerts" }

// AlertKey is the natural key of an alert row.
type AlertKey struct {
	AlertID  string
	ParkID   string
	IsFuture bool
}

func (a Alert) Key() AlertKey {
	return AlertKey{AlertID: a.AlertID, ParkID: a.ParkID, IsFuture: a.IsFuture}
}

// Horizon names the horizon flag for logs and metrics labels.
func Horizon(future bool) string {
	if future {
		return "future"
	}
	return "current"
}

// AlertView is an alert joined with its park mapping and reserve, as served
// by the read API. Reserve fields are nil for unmatched parks.
type AlertView struct {
	Alert
	ObjectID    *int64   `json:"object_id"`
	ReserveName *string  `json:"reserve_name,omitempty"`
	CentroidLat *float64 `json:"centroid_lat,omitempty"`
	CentroidLon *float64 `json:"centroid_lon,omitempty"`
}
