// Package memory is an in-process Store used by the package tests; the
// engine itself always runs on the Postgres store. It is not safe for
// multi-process use.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fleetcore/dispatch/internal/domain/models"
	"github.com/fleetcore/dispatch/internal/domain/types"
	"github.com/fleetcore/dispatch/internal/store"
)

const locationRingSize = 4

type driverRecord struct {
	driver      models.Driver
	stats       models.DriverStats
	ring        []models.LocationSample
	spoofStreak int
}

type Store struct {
	mu      sync.RWMutex
	drivers map[string]*driverRecord
	jobs    map[string]*models.Job
	bids    map[string][]models.Bid // jobID -> bids
}

func New() *Store {
	return &Store{
		drivers: make(map[string]*driverRecord),
		jobs:    make(map[string]*models.Job),
		bids:    make(map[string][]models.Bid),
	}
}

func (s *Store) UpsertDriver(_ context.Context, d *models.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.drivers[d.ID]
	if !ok {
		rec = &driverRecord{stats: models.DriverStats{DriverID: d.ID}}
		s.drivers[d.ID] = rec
	}
	rec.driver = *d
	return nil
}

func (s *Store) GetDriver(_ context.Context, driverID string) (*models.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.drivers[driverID]
	if !ok {
		return nil, types.ErrDriverNotFound
	}
	d := rec.driver
	return &d, nil
}

func (s *Store) ListDrivers(_ context.Context, filter store.DriverFilter) ([]*models.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cellSet map[string]struct{}
	if len(filter.CellIDs) > 0 {
		cellSet = make(map[string]struct{}, len(filter.CellIDs))
		for _, c := range filter.CellIDs {
			cellSet[c] = struct{}{}
		}
	}

	out := make([]*models.Driver, 0, len(s.drivers))
	for _, rec := range s.drivers {
		d := rec.driver
		if filter.Status != nil && d.Status != *filter.Status {
			continue
		}
		if filter.VehicleClass != nil && d.VehicleClass != *filter.VehicleClass {
			continue
		}
		if cellSet != nil {
			if _, ok := cellSet[d.H3Cell]; !ok {
				continue
			}
		}
		cp := d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SetDriverStatus(_ context.Context, driverID string, status types.DriverStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.drivers[driverID]
	if !ok {
		return types.ErrDriverNotFound
	}
	rec.driver.Status = status
	rec.driver.StatusChangedAt = time.Now()
	return nil
}

func (s *Store) GetDriverStats(_ context.Context, driverID string) (models.DriverStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.drivers[driverID]
	if !ok {
		return models.DriverStats{}, types.ErrDriverNotFound
	}
	return rec.stats, nil
}

func (s *Store) RecordJobCompleted(_ context.Context, driverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.drivers[driverID]
	if !ok {
		return types.ErrDriverNotFound
	}
	rec.stats.CompletedJobs++
	rec.driver.LastJobCompletedAt = time.Now()
	return nil
}

func (s *Store) RecordJobCancelled(_ context.Context, driverID string, noShow bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.drivers[driverID]
	if !ok {
		return types.ErrDriverNotFound
	}
	if noShow {
		rec.stats.NoShowCancels++
	} else {
		rec.stats.CancelledJobs++
	}
	return nil
}

func (s *Store) RecordBidOutcome(_ context.Context, driverID string, won bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.drivers[driverID]
	if !ok {
		return types.ErrDriverNotFound
	}
	// Exponential moving average over accept outcomes, alpha=0.1.
	const alpha = 0.1
	target := 0.0
	if won {
		target = 1.0
	}
	if rec.stats.AcceptRate == 0 {
		rec.stats.AcceptRate = target
		return nil
	}
	rec.stats.AcceptRate = rec.stats.AcceptRate*(1-alpha) + target*alpha
	return nil
}

func (s *Store) RecordSpoofSample(_ context.Context, driverID string, risk, threshold float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.drivers[driverID]
	if !ok {
		return 0, types.ErrDriverNotFound
	}
	rec.driver.SpoofRisk = risk
	if risk >= threshold {
		rec.spoofStreak++
	} else {
		rec.spoofStreak = 0
	}
	return rec.spoofStreak, nil
}

func (s *Store) CreateJob(_ context.Context, j *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[j.ID]; exists {
		return types.ErrDuplicateID
	}
	cp := *j
	s.jobs[j.ID] = &cp
	return nil
}

func (s *Store) GetJob(_ context.Context, jobID string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, types.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *Store) UpdateJobStatus(_ context.Context, jobID string, status types.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return types.ErrJobNotFound
	}
	if !types.CanTransitionJobStatus(j.Status, status) {
		return types.ErrIllegalTransition
	}
	j.Status = status
	return nil
}

func (s *Store) AppendBid(_ context.Context, jobID string, bid models.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return types.ErrJobNotFound
	}
	for _, existing := range s.bids[jobID] {
		if existing.DriverID == bid.DriverID {
			return types.ErrDuplicateBid
		}
	}
	s.bids[jobID] = append(s.bids[jobID], bid)
	return nil
}

func (s *Store) ListBids(_ context.Context, jobID string) ([]models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Bid, len(s.bids[jobID]))
	copy(out, s.bids[jobID])
	return out, nil
}

func (s *Store) SnapshotBidsToJob(_ context.Context, jobID string, snapshot []models.BidSnapshot, uninvited int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return types.ErrJobNotFound
	}
	j.BidsSnapshot = snapshot
	j.UninvitedBidCount = uninvited
	return nil
}

func (s *Store) AllocateJob(_ context.Context, jobID, driverID string, distanceKm float64, etaMin int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return types.ErrJobNotFound
	}
	j.Status = types.JobAllocated
	j.AllocatedDriverID = driverID
	j.DriverDistanceKm = distanceKm
	j.DriverETAMin = etaMin
	j.AllocatedAt = time.Now()

	if rec, ok := s.drivers[driverID]; ok {
		rec.driver.Status = types.DriverOnJob
		rec.driver.StatusChangedAt = time.Now()
	}
	return nil
}

func (s *Store) ListJobsByStatus(_ context.Context, status types.JobStatus) ([]*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Job
	for _, j := range s.jobs {
		if j.Status == status {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PushLocation appends sample to the driver's ring and mirrors its position
// onto the driver record. It does not recompute H3Cell: a driver keeps the
// cell last given to UpsertDriver, and ListDrivers' cell filter uses that.
func (s *Store) PushLocation(_ context.Context, sample models.LocationSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.drivers[sample.DriverID]
	if !ok {
		return types.ErrDriverNotFound
	}
	rec.driver.Lat = sample.Lat
	rec.driver.Lon = sample.Lon
	rec.driver.Heading = sample.Heading
	rec.driver.GPSAccuracyM = sample.AccuracyM
	rec.driver.LocationTS = sample.TS

	rec.ring = append(rec.ring, sample)
	if len(rec.ring) > locationRingSize {
		rec.ring = rec.ring[len(rec.ring)-locationRingSize:]
	}
	return nil
}

func (s *Store) LastLocation(_ context.Context, driverID string) (models.LocationSample, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.drivers[driverID]
	if !ok {
		return models.LocationSample{}, false, types.ErrDriverNotFound
	}
	if len(rec.ring) == 0 {
		return models.LocationSample{}, false, nil
	}
	return rec.ring[len(rec.ring)-1], true, nil
}

func (s *Store) StaleDrivers(_ context.Context, olderThan time.Duration) ([]*models.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-olderThan)
	var out []*models.Driver
	for _, rec := range s.drivers {
		if rec.driver.Status != types.DriverOffline && rec.driver.LocationTS.Before(cutoff) {
			cp := rec.driver
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
