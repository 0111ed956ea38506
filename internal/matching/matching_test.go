package matching

import (
	"testing"
	"time"

	"github.com/fleetcore/dispatch/internal/domain/models"
	"github.com/fleetcore/dispatch/internal/eta"
	"github.com/fleetcore/dispatch/internal/scoring"
)

type fakeLookup map[string]DriverInfo

func (f fakeLookup) Lookup(driverID string) (DriverInfo, bool) {
	info, ok := f[driverID]
	return info, ok
}

func TestRunAssignsEachDriverAtMostOnce(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	pool := []JobBids{
		{
			Job: &models.Job{ID: "job-1"},
			Bids: []models.Bid{
				{JobID: "job-1", DriverID: "d1", DistanceKm: 1, BidTS: now},
				{JobID: "job-1", DriverID: "d2", DistanceKm: 5, BidTS: now},
			},
		},
		{
			Job: &models.Job{ID: "job-2"},
			Bids: []models.Bid{
				{JobID: "job-2", DriverID: "d1", DistanceKm: 1, BidTS: now},
			},
		},
	}
	lookup := fakeLookup{
		"d1": {Heading: -1, Stats: models.DriverStats{AcceptRate: 1, AvgRating: 5}},
		"d2": {Heading: -1, Stats: models.DriverStats{AcceptRate: 1, AvgRating: 5}},
	}

	outcome := Run(pool, lookup, eta.New(), scoring.DefaultWeights(), now)

	seenDrivers := map[string]struct{}{}
	for _, a := range outcome.Assignments {
		if _, dup := seenDrivers[a.DriverID]; dup {
			t.Fatalf("driver %s assigned to more than one job", a.DriverID)
		}
		seenDrivers[a.DriverID] = struct{}{}
	}
	if len(outcome.Assignments) != 1 || outcome.Assignments[0].JobID != "job-1" || outcome.Assignments[0].DriverID != "d1" {
		t.Fatalf("expected greedy to give job-1 to d1 and leave job-2 unassigned, got %d assignments: %+v", len(outcome.Assignments), outcome.Assignments)
	}
}

func TestRunReturnsJobsWithNoBidsSeparately(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	pool := []JobBids{
		{Job: &models.Job{ID: "job-1"}, Bids: nil},
	}

	outcome := Run(pool, fakeLookup{}, eta.New(), scoring.DefaultWeights(), now)

	if len(outcome.NoBids) != 1 || outcome.NoBids[0] != "job-1" {
		t.Fatalf("expected job-1 in NoBids, got %+v", outcome)
	}
	if len(outcome.Assignments) != 0 || len(outcome.ReturnToPending) != 0 {
		t.Fatalf("expected no assignments or returns for a bidless job, got %+v", outcome)
	}
}

func TestRunLosersAreRecordedForNonWinningBidders(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	pool := []JobBids{
		{
			Job: &models.Job{ID: "job-1"},
			Bids: []models.Bid{
				{JobID: "job-1", DriverID: "near", DistanceKm: 1, BidTS: now},
				{JobID: "job-1", DriverID: "far", DistanceKm: 9, BidTS: now},
			},
		},
	}
	lookup := fakeLookup{
		"near": {Heading: -1, Stats: models.DriverStats{AcceptRate: 1, AvgRating: 5}},
		"far":  {Heading: -1, Stats: models.DriverStats{AcceptRate: 1, AvgRating: 5}},
	}

	outcome := Run(pool, lookup, eta.New(), scoring.DefaultWeights(), now)

	if len(outcome.Assignments) != 1 || outcome.Assignments[0].DriverID != "near" {
		t.Fatalf("expected the nearer driver to win, got %+v", outcome.Assignments)
	}
	losers := outcome.Losers["job-1"]
	if len(losers) != 1 || losers[0] != "far" {
		t.Fatalf("expected far to be recorded as a loser, got %+v", losers)
	}
}

func TestRunMatchesHungarianOnLargePools(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	const n = 8

	var pool []JobBids
	lookup := fakeLookup{}
	for i := 0; i < n; i++ {
		jobID := idx("job", i)
		var bids []models.Bid
		for j := 0; j < n; j++ {
			driverID := idx("driver", j)
			bids = append(bids, models.Bid{
				JobID: jobID, DriverID: driverID,
				DistanceKm: float64((i+j)%n + 1), BidTS: now,
			})
		}
		pool = append(pool, JobBids{Job: &models.Job{ID: jobID}, Bids: bids})
	}
	for j := 0; j < n; j++ {
		lookup[idx("driver", j)] = DriverInfo{Heading: -1, Stats: models.DriverStats{AcceptRate: 1, AvgRating: 5}}
	}

	outcome := Run(pool, lookup, eta.New(), scoring.DefaultWeights(), now)

	if len(outcome.Assignments) != n {
		t.Fatalf("expected every job matched in a fully-connected %dx%d pool, got %d", n, n, len(outcome.Assignments))
	}
	seen := map[string]struct{}{}
	for _, a := range outcome.Assignments {
		if _, dup := seen[a.DriverID]; dup {
			t.Fatalf("hungarian assignment reused driver %s", a.DriverID)
		}
		seen[a.DriverID] = struct{}{}
	}
}

func idx(prefix string, i int) string {
	return prefix + "-" + string(rune('a'+i))
}
