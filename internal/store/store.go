// Package store defines the persistence contract shared by the in-memory
// and Postgres implementations (§4.1). Every mutating method is safe to
// call inside a pkg/trm transaction: callers pass a context carrying the
// transaction and the concrete implementation decides whether that matters.
package store

import (
	"context"
	"time"

	"github.com/fleetcore/dispatch/internal/domain/models"
	"github.com/fleetcore/dispatch/internal/domain/types"
)

// DriverFilter narrows ListDrivers to the candidate pool a job's auction
// should solicit: online drivers within CellIDs (or, if empty, everyone),
// filtered by VehicleClass when set.
type DriverFilter struct {
	Status       *types.DriverStatus
	VehicleClass *types.VehicleClass
	CellIDs      []string
}

// Store is the persistence boundary for drivers, jobs, bids and location
// history. Implementations: store/memory (tests, single-process demo) and
// store/postgres (production).
type Store interface {
	UpsertDriver(ctx context.Context, d *models.Driver) error
	GetDriver(ctx context.Context, driverID string) (*models.Driver, error)
	ListDrivers(ctx context.Context, filter DriverFilter) ([]*models.Driver, error)
	SetDriverStatus(ctx context.Context, driverID string, status types.DriverStatus) error

	GetDriverStats(ctx context.Context, driverID string) (models.DriverStats, error)
	RecordJobCompleted(ctx context.Context, driverID string) error
	RecordJobCancelled(ctx context.Context, driverID string, noShow bool) error
	RecordBidOutcome(ctx context.Context, driverID string, won bool) error

	// RecordSpoofSample atomically stores the latest SpoofDetector risk for a
	// driver and returns the number of consecutive samples at-or-above the
	// demotion threshold (reset to 0 whenever risk drops below it), so the
	// location ingestor's "sustained over 3 samples" rule (§7) never races a
	// concurrent sample from the same driver.
	RecordSpoofSample(ctx context.Context, driverID string, risk, threshold float64) (streak int, err error)

	CreateJob(ctx context.Context, j *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status types.JobStatus) error
	AppendBid(ctx context.Context, jobID string, bid models.Bid) error
	ListBids(ctx context.Context, jobID string) ([]models.Bid, error)
	SnapshotBidsToJob(ctx context.Context, jobID string, snapshot []models.BidSnapshot, uninvited int) error
	AllocateJob(ctx context.Context, jobID, driverID string, distanceKm float64, etaMin int) error

	ListJobsByStatus(ctx context.Context, status types.JobStatus) ([]*models.Job, error)

	PushLocation(ctx context.Context, s models.LocationSample) error
	LastLocation(ctx context.Context, driverID string) (models.LocationSample, bool, error)

	// StaleDrivers returns drivers whose last location update is older than
	// olderThan, for the liveness watchdog (§4.6).
	StaleDrivers(ctx context.Context, olderThan time.Duration) ([]*models.Driver, error)
}
