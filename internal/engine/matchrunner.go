package engine

import (
	"context"
	"time"

	"github.com/fleetcore/dispatch/internal/allocator"
	"github.com/fleetcore/dispatch/internal/bidding"
	"github.com/fleetcore/dispatch/internal/eta"
	"github.com/fleetcore/dispatch/internal/matching"
	"github.com/fleetcore/dispatch/internal/scoring"
	"github.com/fleetcore/dispatch/internal/store"
	"github.com/fleetcore/dispatch/pkg/logger"
	"github.com/fleetcore/dispatch/pkg/metrics"
)

// metricsService labels every metric this process emits; the dispatch
// engine is one process, unlike the teacher's per-microservice split.
const metricsService = "dispatch-engine"

// matchRunner composes internal/matching and internal/allocator behind
// bidding.MatchRunner, so neither package needs to import the other — the
// BiddingCoordinator hands it a drained batch and never sees the matcher or
// allocator directly.
type matchRunner struct {
	store   store.Store
	eta     eta.Model
	weights scoring.Weights
	alloc   *allocator.Allocator
	log     logger.Logger
}

func newMatchRunner(st store.Store, etaModel eta.Model, weights scoring.Weights, alloc *allocator.Allocator, log logger.Logger) *matchRunner {
	return &matchRunner{store: st, eta: etaModel, weights: weights, alloc: alloc, log: log}
}

// hungarianJobThreshold and hungarianBidderThreshold mirror matching.Run's
// own Hungarian-eligibility gate
// purely for metrics labelling; callers otherwise never need to know which
// solver ran (matching.Run returns an identical Outcome shape either way).
const (
	hungarianJobThreshold    = 8
	hungarianBidderThreshold = 8
)

func (r *matchRunner) RunMatch(ctx context.Context, batch []bidding.JobBids) error {
	start := time.Now()
	pool := make([]matching.JobBids, len(batch))
	distinctBidders := make(map[string]struct{})
	for i, jb := range batch {
		pool[i] = matching.JobBids{Job: jb.Job, Bids: jb.Bids}
		for _, b := range jb.Bids {
			distinctBidders[b.DriverID] = struct{}{}
		}
	}
	algorithm := "greedy"
	if len(pool) >= hungarianJobThreshold && len(distinctBidders) >= hungarianBidderThreshold {
		algorithm = "hungarian"
	}

	lookup := &storeDriverLookup{ctx: ctx, store: r.store, log: r.log}
	outcome := matching.Run(pool, lookup, r.eta, r.weights, time.Now())
	err := r.alloc.Commit(ctx, outcome)
	metrics.RecordMatchRun(metricsService, algorithm, err, time.Since(start))
	return err
}

// storeDriverLookup adapts store.Store to matching.DriverLookup, bound to
// the RunMatch call's context (DriverLookup itself is context-free since
// the Scorer's hot path has no deadline of its own).
type storeDriverLookup struct {
	ctx   context.Context
	store store.Store
	log   logger.Logger
}

func (l *storeDriverLookup) Lookup(driverID string) (matching.DriverInfo, bool) {
	ctx := l.ctx
	d, err := l.store.GetDriver(ctx, driverID)
	if err != nil {
		l.log.Warn(ctx, "driver lookup failed during match", "driver_id", driverID, "error", err.Error())
		return matching.DriverInfo{}, false
	}

	stats, err := l.store.GetDriverStats(ctx, driverID)
	if err != nil {
		l.log.Warn(ctx, "driver stats lookup failed during match", "driver_id", driverID, "error", err.Error())
	}

	return matching.DriverInfo{
		Heading:            d.Heading,
		GPSAccuracyM:       d.GPSAccuracyM,
		LastJobCompletedAt: d.LastJobCompletedAt,
		SpoofRisk:          d.SpoofRisk,
		Stats:              stats,
	}, true
}
