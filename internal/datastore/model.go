// model.go defines the persisted data model.
package datastore

import "time"

// VerificationRecord is one row per checkin verification attempt, written
// for every terminal state including total classifier failure.
type VerificationRecord struct {
	ID     uint   `gorm:"primaryKey"`
	UserID string `gorm:"index:idx_verifications_user;index:idx_verifications_user_date"`
	Date   string `gorm:"index:idx_verifications_user_date"` // YYYY-MM-DD, for daily lookups

	Verified     bool
	Label        string
	Confidence   float64
	Tier         string // classifier tier that produced the result
	Trust        string
	Reason       string
	ManualReview bool

	Threshold float64
	Margin    float64

	// Geofence snapshot at decision time.
	GPSProvided     bool
	GeofenceMatched bool
	NearestLocation string
	DistanceM       *float64

	Provenance string
	CreatedAt  time.Time `gorm:"index"`
}

// Location is one registered gym in the geofence registry.
type Location struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;not null"`
	Latitude  float64
	Longitude float64
	RadiusM   float64 // 0 means use the configured default radius
	CreatedAt time.Time
}
