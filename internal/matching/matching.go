// Package matching implements the GlobalMatcher (§4.4): a batch assignment
// over every auction in the drained closed pool. The greedy algorithm is the
// default; hungarianAssign is an alternate solver selected automatically for
// large pools. Both share the same scoring pass and produce the identical
// Outcome shape so callers never need to know which ran.
package matching

import (
	"sort"
	"time"

	"github.com/fleetcore/dispatch/internal/domain/models"
	"github.com/fleetcore/dispatch/internal/eta"
	"github.com/fleetcore/dispatch/internal/geo"
	"github.com/fleetcore/dispatch/internal/scoring"
)

// hungarianJobThreshold and hungarianBidderThreshold gate the optional
// Hungarian path per §4.4: ≥8 jobs AND ≥8 distinct bidders.
const (
	hungarianJobThreshold    = 8
	hungarianBidderThreshold = 8
)

// JobBids pairs a closed auction's job with its final bid list.
type JobBids struct {
	Job  *models.Job
	Bids []models.Bid
}

// DriverInfo is the subset of driver state the Scorer needs beyond what a
// Bid already carries (heading, reliability stats, spoof risk).
type DriverInfo struct {
	Heading   float64 // -1 if unknown
	GPSAccuracyM float64
	LastJobCompletedAt time.Time
	SpoofRisk float64
	Stats     models.DriverStats
}

// DriverLookup resolves per-driver scoring context. Implemented by an
// engine-level adapter over store.Store so this package never imports it.
type DriverLookup interface {
	Lookup(driverID string) (DriverInfo, bool)
}

// Assignment is one committed driver→job pairing with the score it won on.
type Assignment struct {
	JobID      string
	DriverID   string
	Score      float64
	DistanceKm float64
}

// Outcome is the GlobalMatcher's result for one batch.
type Outcome struct {
	Assignments []Assignment
	// ReturnToPending lists jobs that had bids but found no surviving driver.
	ReturnToPending []string
	// NoBids lists jobs that entered the batch with zero bids.
	NoBids []string
	// Losers maps jobID -> driver IDs who bid but did not win (bid_lost).
	Losers map[string][]string
}

type scoredBid struct {
	jobID      string
	driverID   string
	distanceKm float64
	score      float64
	bidTS      time.Time
}

// Run scores every bid in the pool, then assigns with the greedy algorithm
// by default or hungarianAssign when the pool crosses §4.4's threshold. now
// is sampled once so every score in the batch shares a reference instant.
// baseWeights supplies the five utility weights (config-tunable per §4.5);
// its MaxDistanceKm/MaxCompletedJobs are overridden per-batch regardless of
// what's passed in, since those two must track the pool's own maxima.
func Run(pool []JobBids, lookup DriverLookup, etaModel eta.Model, baseWeights scoring.Weights, now time.Time) Outcome {
	scored, noBids := scoreAll(pool, lookup, etaModel, baseWeights, now)

	distinctBidders := map[string]struct{}{}
	for _, b := range scored {
		distinctBidders[b.driverID] = struct{}{}
	}

	var assigned map[string]scoredBid // jobID -> winning bid
	if len(pool) >= hungarianJobThreshold && len(distinctBidders) >= hungarianBidderThreshold {
		assigned = hungarianAssign(pool, scored)
	} else {
		assigned = greedyAssign(scored)
	}

	return buildOutcome(pool, assigned, noBids)
}

// scoreAll normalizes distance/completed-jobs across the WHOLE pool (§4.4
// step 1-2) by handing the Scorer a per-batch Weights whose caps are the
// pool's own maxima, reusing every other sub-score unchanged from §4.5.
func scoreAll(pool []JobBids, lookup DriverLookup, etaModel eta.Model, baseWeights scoring.Weights, now time.Time) ([]scoredBid, []string) {
	var noBids []string

	dMax, jMax := 1.0, 1.0
	for _, jb := range pool {
		for _, b := range jb.Bids {
			if b.DistanceKm > dMax {
				dMax = b.DistanceKm
			}
			if float64(b.CompletedJobsSnapshot) > jMax {
				jMax = float64(b.CompletedJobsSnapshot)
			}
		}
	}

	weights := baseWeights
	weights.MaxDistanceKm = dMax
	weights.MaxCompletedJobs = jMax
	scorer := scoring.New(weights, etaModel)

	var out []scoredBid
	for _, jb := range pool {
		if len(jb.Bids) == 0 {
			noBids = append(noBids, jb.Job.ID)
			continue
		}
		for _, b := range jb.Bids {
			info, _ := lookup.Lookup(b.DriverID)
			heading := info.Heading
			if heading < 0 {
				heading = -1
			}
			pickupBearing := -1.0
			if heading >= 0 {
				pickupBearing = geo.BearingDeg(b.DriverLat, b.DriverLon, jb.Job.PickupLat, jb.Job.PickupLon)
			}
			score := scorer.Utility(scoring.Input{
				DistanceKm:         b.DistanceKm,
				CompletedJobs:      b.CompletedJobsSnapshot,
				Stats:              info.Stats,
				GPSAccuracyM:       info.GPSAccuracyM,
				HeadingDeg:         heading,
				PickupBearingDeg:   pickupBearing,
				LastJobCompletedAt: info.LastJobCompletedAt,
				SpoofRisk:          info.SpoofRisk,
				Now:                now,
			})
			out = append(out, scoredBid{
				jobID: jb.Job.ID, driverID: b.DriverID,
				distanceKm: b.DistanceKm, score: score, bidTS: b.BidTS,
			})
		}
	}
	return out, noBids
}

func greedyAssign(scored []scoredBid) map[string]scoredBid {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].bidTS.Before(scored[j].bidTS)
	})

	takenDrivers := map[string]struct{}{}
	takenJobs := map[string]struct{}{}
	assigned := map[string]scoredBid{}
	for _, b := range scored {
		if _, ok := takenDrivers[b.driverID]; ok {
			continue
		}
		if _, ok := takenJobs[b.jobID]; ok {
			continue
		}
		takenDrivers[b.driverID] = struct{}{}
		takenJobs[b.jobID] = struct{}{}
		assigned[b.jobID] = b
	}
	return assigned
}

func buildOutcome(pool []JobBids, assigned map[string]scoredBid, noBids []string) Outcome {
	out := Outcome{NoBids: noBids, Losers: map[string][]string{}}

	for _, jb := range pool {
		win, ok := assigned[jb.Job.ID]
		if len(jb.Bids) == 0 {
			continue
		}
		if !ok {
			out.ReturnToPending = append(out.ReturnToPending, jb.Job.ID)
			continue
		}
		out.Assignments = append(out.Assignments, Assignment{
			JobID: jb.Job.ID, DriverID: win.driverID, Score: win.score, DistanceKm: win.distanceKm,
		})
		for _, b := range jb.Bids {
			if b.DriverID != win.driverID {
				out.Losers[jb.Job.ID] = append(out.Losers[jb.Job.ID], b.DriverID)
			}
		}
	}
	return out
}
