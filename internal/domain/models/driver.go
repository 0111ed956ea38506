package models

import (
	"time"

	"github.com/fleetcore/dispatch/internal/domain/types"
)

// Driver is an opaque fleet endpoint. The engine never reasons about the
// human behind the ID beyond the signals captured here.
type Driver struct {
	ID            string
	Name          string
	VehicleClass  types.VehicleClass
	Status        types.DriverStatus
	APIKeyHash    string // sha256 of the bearer credential; empty means unauthenticated bidding is allowed
	H3Cell        string // resolution-7 index of the last location sample

	Lat              float64
	Lon              float64
	Heading          float64 // degrees, -1 if unknown
	GPSAccuracyM     float64
	LocationTS       time.Time

	SpoofRisk float64 // [0,1], maintained by the location ingestor (§4.5)

	StatusChangedAt    time.Time
	LastJobCompletedAt time.Time
}

// DriverStats tracks reliability signals consumed by the Scorer.
type DriverStats struct {
	DriverID       string
	CompletedJobs  int
	CancelledJobs  int
	NoShowCancels  int
	AcceptRate     float64 // [0,1]
	AvgRating      float64 // [0,5]
}

// CancelRate is cancelled jobs as a share of all jobs the driver was ever
// allocated (completed + cancelled + no-shows); 0 with no history.
func (s DriverStats) CancelRate() float64 {
	total := s.CompletedJobs + s.CancelledJobs + s.NoShowCancels
	if total == 0 {
		return 0
	}
	return float64(s.CancelledJobs) / float64(total)
}

// NoShowRate mirrors CancelRate for the no-show count.
func (s DriverStats) NoShowRate() float64 {
	total := s.CompletedJobs + s.CancelledJobs + s.NoShowCancels
	if total == 0 {
		return 0
	}
	return float64(s.NoShowCancels) / float64(total)
}

// LocationSample is one GPS fix. The Store keeps a short per-driver ring
// (N=4) for the SpoofDetector to compare consecutive samples against.
type LocationSample struct {
	DriverID  string
	Lat       float64
	Lon       float64
	Heading   float64
	AccuracyM float64
	TS        time.Time
}
