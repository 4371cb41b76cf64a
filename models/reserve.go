// models/reserve.go
package models

import "time"

// Reserve is one record of the geospatial reserve catalog, keyed by the
// upstream object id.
type Reserve struct {
	ObjectID     int64      `gorm:"primaryKey;autoIncrement:false" json:"object_id"`
	Name         string     `gorm:"size:255;not null;index" json:"name"`
	ShortName    string     `gorm:"size:255" json:"short_name,omitempty"`
	Location     *string    `gorm:"size:255" json:"location,omitempty"` // free text, used by location-pattern matching
	ReserveType  string     `gorm:"size:100" json:"reserve_type,omitempty"`
	GISArea      *float64   `json:"gis_area,omitempty"`      // hectares
	GazettedArea *float64   `json:"gazetted_area,omitempty"` // hectares
	GazettalDate *time.Time `json:"gazettal_date,omitempty"`
	CentroidLat  *float64   `json:"centroid_lat,omitempty"`
	CentroidLon  *float64   `json:"centroid_lon,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Reserve) TableName() string { return "reserves" }

// HasCentroid reports whether both centroid coordinates are known.
func (r Reserve) HasCentroid() bool {
	return r.CentroidLat != nil && r.CentroidLon != nil
}
