package types

import "strings"

// VehicleClass orders the fleet's vehicle categories by passenger capacity.
// A driver bidding with a class below the job's requirement is filtered out
// before the auction opens.
type VehicleClass int

const (
	ClassSaloon VehicleClass = iota
	ClassEstate
	ClassMPV
	ClassMinibus
)

func (c VehicleClass) String() string {
	switch c {
	case ClassSaloon:
		return "SALOON"
	case ClassEstate:
		return "ESTATE"
	case ClassMPV:
		return "MPV"
	case ClassMinibus:
		return "MINIBUS"
	default:
		return "UNKNOWN"
	}
}

// ParseVehicleClass accepts the canonical name (case-insensitive).
func ParseVehicleClass(s string) (VehicleClass, bool) {
	switch strings.ToUpper(s) {
	case "SALOON", "":
		return ClassSaloon, true
	case "ESTATE":
		return ClassEstate, true
	case "MPV":
		return ClassMPV, true
	case "MINIBUS":
		return ClassMinibus, true
	default:
		return ClassSaloon, false
	}
}

// DriverStatus is the driver's single authoritative state.
type DriverStatus string

const (
	DriverOffline DriverStatus = "OFFLINE"
	DriverOnline  DriverStatus = "ONLINE"
	DriverOnJob   DriverStatus = "ON_JOB"
)

// ParseDriverStatus accepts the canonical wire names for DriverStatus.
func ParseDriverStatus(s string) (DriverStatus, bool) {
	switch DriverStatus(s) {
	case DriverOffline, DriverOnline, DriverOnJob:
		return DriverStatus(s), true
	default:
		return DriverOffline, false
	}
}

// JobStatus is the job state machine described in §4.3.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobBidding   JobStatus = "BIDDING"
	JobClosed    JobStatus = "CLOSED"
	JobAllocated JobStatus = "ALLOCATED"
	JobCompleted JobStatus = "COMPLETED"
	JobCancelled JobStatus = "CANCELLED"
	JobNoBids    JobStatus = "NO_BIDS"
)

// jobTransitions is the §4.3 state machine: Pending opens into Bidding or
// drops straight to NoBids with no eligible drivers; Bidding closes into
// Closed on timer expiry (or reopens to Pending/NoBids if the watchdog reaps
// a stuck auction); Closed resolves via the GlobalMatcher into Allocated,
// back to Pending, or NoBids; Allocated completes. Cancelled is reachable
// from any non-terminal state. Completed, Cancelled and NoBids are terminal.
var jobTransitions = map[JobStatus]map[JobStatus]bool{
	JobPending: {
		JobBidding:   true,
		JobNoBids:    true,
		JobCancelled: true,
	},
	JobBidding: {
		JobClosed:    true,
		JobPending:   true,
		JobNoBids:    true,
		JobCancelled: true,
	},
	JobClosed: {
		JobAllocated: true,
		JobPending:   true,
		JobNoBids:    true,
		JobCancelled: true,
	},
	JobAllocated: {
		JobCompleted: true,
		JobCancelled: true,
	},
}

// CanTransitionJobStatus reports whether moving a job from one status to
// another is legal under the §4.3 state machine. UpdateJobStatus
// implementations enforce this and return ErrIllegalTransition otherwise.
func CanTransitionJobStatus(from, to JobStatus) bool {
	return jobTransitions[from][to]
}

// BidLostReason labels why a bidder did not win a job.
type BidLostReason string

const (
	LostOutbid     BidLostReason = "outbid"
	LostCancelled  BidLostReason = "cancelled"
	LostNoBids     BidLostReason = "no_bids"
	LostStale      BidLostReason = "stale"
)
