package models

import (
	"time"

	"github.com/fleetcore/dispatch/internal/domain/types"
)

// JobRequest is the normalized submission produced by the ingestion
// normalization layer (§4.2), regardless of the wire format it arrived in.
type JobRequest struct {
	PickupText      string
	DropoffText     string
	PickupLat       float64
	PickupLon       float64
	DropoffLat      float64
	DropoffLon      float64
	Passengers      int
	PassengerDetail string
	VehicleRequired types.VehicleClass
	VehicleOverride *types.VehicleClass
	Priority        *string
	PaymentMethod   *string
	CallerName      string
	CallerPhone     string
	FareEstimate    *float64
	BiddingWindowS  int
}

// Job is the durable record tracked through the auction/match/allocate
// lifecycle described in §4.3.
type Job struct {
	ID          string
	PickupText  string
	DropoffText string
	PickupLat   float64
	PickupLon   float64
	DropoffLat  float64
	DropoffLon  float64

	Passengers      int
	PassengerDetail string
	VehicleRequired types.VehicleClass
	VehicleOverride *types.VehicleClass
	Priority        *string
	PaymentMethod   *string
	CallerName      string
	CallerPhone     string
	FareEstimate    *float64

	BiddingWindowSeconds int
	CreatedAt            time.Time
	Status               types.JobStatus

	AllocatedDriverID string
	DriverDistanceKm  float64
	DriverETAMin      int
	AllocatedAt       time.Time // zero until Allocated; watchdog uses it for stalled-job detection (§4.6)

	CoordsFixed       bool
	BidsSnapshot      []BidSnapshot
	UninvitedBidCount int
}

// Bid is one driver's offer on one job. At most one Bid exists per
// (JobID, DriverID) pair (§3 invariant).
type Bid struct {
	JobID                 string
	DriverID              string
	DriverLat             float64
	DriverLon             float64
	DistanceKm            float64
	CompletedJobsSnapshot int
	Uninvited             bool
	BidTS                 time.Time
}

// BidSnapshot is the serialized form persisted into Job.BidsSnapshot and
// mirrored onto the wire as bids_json (§6).
type BidSnapshot struct {
	DriverID      string    `json:"driverId"`
	DriverName    string    `json:"driverName"`
	Lat           float64   `json:"lat"`
	Lon           float64   `json:"lng"`
	DistanceKm    float64   `json:"distanceKm"`
	CompletedJobs int       `json:"completedJobs"`
	BidTime       time.Time `json:"bidTime"`
	Score         float64   `json:"score"`
	Uninvited     bool      `json:"uninvited,omitempty"`
}
