package models

import "time"

// BidSolicitation is published on drivers/{id}/bid-request and
// pubs/requests/{jobId} when an auction opens (§6 dual-format requirement).
type BidSolicitation struct {
	JobID               string  `json:"job"`
	JobIDLegacy         string  `json:"jobId,omitempty"`
	PickupLat           float64 `json:"lat"`
	PickupLon           float64 `json:"lng"`
	PickupAddress       string  `json:"pickupAddress,omitempty"`
	DropoffAddress      string  `json:"dropoff,omitempty"`
	DropoffLat          float64 `json:"dropoffLat"`
	DropoffLon          float64 `json:"dropoffLng"`
	Passengers          int     `json:"passengers"`
	BiddingWindowSec    int     `json:"biddingWindowSec"`
	InvitedDriverIDs    []string `json:"invitedDriverIds"`
	TimestampMS         int64   `json:"timestamp"`
	Version             int     `json:"version"`
}

// JobAllocated is published on jobs/{id}/allocated and drivers/{id}/jobs
// when the matcher assigns a winner.
type JobAllocated struct {
	JobID       string  `json:"job"`
	JobIDLegacy string  `json:"jobId,omitempty"`
	DriverID    string  `json:"driverId"`
	DistanceKm  float64 `json:"distanceKm"`
	ETAMinutes  int     `json:"etaMinutes"`
	Score       float64 `json:"score"`
	TimestampMS int64   `json:"timestamp"`
}

// JobResult is published on jobs/{id}/result/{driverId}: the individual
// outcome notification every bidder on a job eventually receives.
type JobResult struct {
	JobID       string `json:"job"`
	DriverID    string `json:"driverId"`
	Won         bool   `json:"won"`
	Reason      string `json:"reason,omitempty"`
	TimestampMS int64  `json:"timestamp"`
}

// JobStatusUpdate is published on jobs/{id}/status for any terminal or
// admission-failure transition that isn't covered by JobAllocated/JobResult.
type JobStatusUpdate struct {
	JobID       string `json:"job"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	TimestampMS int64  `json:"timestamp"`
}

// DriverLocationEvent is the inbound payload on drivers/{id}/location.
type DriverLocationEvent struct {
	DriverID  string  `json:"driverId"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lng"`
	Heading   float64 `json:"headingDegrees"`
	AccuracyM float64 `json:"accuracyMeters"`
	TS        int64   `json:"timestamp"`
}

// DriverStatusEvent is the inbound payload on drivers/{id}/status.
type DriverStatusEvent struct {
	DriverID string `json:"driverId"`
	Status   string `json:"status"`
	TS       int64  `json:"timestamp"`
}

// BidEvent is the inbound payload on jobs/{id}/bid.
type BidEvent struct {
	JobID    string  `json:"job"`
	DriverID string  `json:"driverId"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lng"`
	TS       int64   `json:"timestamp"`
}

func nowMS(t time.Time) int64 { return t.UnixMilli() }
