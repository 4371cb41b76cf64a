// models/source.go
package models

import "github.com/paulmach/orb"

// SourcePark identifies a park in the alert feed.
type SourcePark struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SourceAlert is one alert as delivered by the alert feed. Dates are kept as
// strings; conversion happens during reconciliation so a bad value only
// invalidates its own record.
type SourceAlert struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	DescriptionHTML string `json:"description"`
	Category        string `json:"category"`
	EffectiveFrom   string `json:"effectiveFrom"`
	EffectiveTo     string `json:"effectiveTo"`
	LastReviewed    string `json:"lastReviewed"`
}

// ParkAlertGroup is the alert feed's unit: one park, its closure flags and its alerts.
type ParkAlertGroup struct {
	Park           SourcePark    `json:"park"`
	ParkClosed     bool          `json:"parkClosed"`
	ParkPartClosed bool          `json:"parkPartClosed"`
	Alerts         []SourceAlert `json:"alerts"`
}

// ReserveRecord is one feature from the reserve catalog. Required fields are
// pointers so missing values can be told apart from zero values.
type ReserveRecord struct {
	ObjectID     *int64
	Name         *string
	ShortName    string
	Location     *string
	ReserveType  string
	GISArea      *float64
	GazettedArea *float64
	GazettalDate *int64 // epoch milliseconds, as ArcGIS delivers dates
	Centroid     *orb.Point
}

// ParkOverride is one row of the operator-curated override file. A nil
// ObjectID marks the park as permanently unmatched.
type ParkOverride struct {
	ParkID      string `csv:"park_id"`
	ParkName    string `csv:"park_name"`
	ObjectID    *int64 `csv:"-"`
	RawObjectID string `csv:"object_id"`
	ReserveName string `csv:"reserve_name"`
}
