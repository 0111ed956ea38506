// Package allocator implements the Allocator (§4.6): the only writer of
// Job.status = Allocated and Driver.status = OnJob (Completed is written by
// the watchdog's stalled-job sweep, not here). It is
// invoked exclusively by the GlobalMatcher with one batch's Outcome and
// commits every job in the batch inside its own trm.Do boundary, publishing
// job_allocated then bid_lost per job only after that job's commit succeeds
// — grounded on the teacher's driver.Service.CompleteRide/StartRide shape
// (fetch, validate, mutate, publish, all inside one fn passed to trm.Do).
package allocator

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetcore/dispatch/internal/domain/models"
	"github.com/fleetcore/dispatch/internal/domain/types"
	"github.com/fleetcore/dispatch/internal/eta"
	"github.com/fleetcore/dispatch/internal/matching"
	"github.com/fleetcore/dispatch/internal/store"
	"github.com/fleetcore/dispatch/pkg/logger"
	wrap "github.com/fleetcore/dispatch/pkg/logger/wrapper"
	"github.com/fleetcore/dispatch/pkg/trm"
)

// etaBaselineKmPerMin is the §4.4 fallback (30 km/h) used only when no
// eta.Model is configured.
const etaBaselineKmPerMin = 0.5

// Allocator commits a GlobalMatcher Outcome to the store and publishes the
// resulting events.
type Allocator struct {
	store store.Store
	bus   bus
	trm   trm.TxManager
	eta   eta.Model
	log   logger.Logger
}

// bus is the subset of bus.Bus the allocator needs; named locally to avoid
// importing internal/bus just for the interface literal.
type bus interface {
	Publish(ctx context.Context, topic string, payload any) error
}

func New(st store.Store, b bus, tx trm.TxManager, etaModel eta.Model, log logger.Logger) *Allocator {
	return &Allocator{store: st, bus: b, trm: tx, eta: etaModel, log: log}
}

// Commit applies one GlobalMatcher Outcome: winners are allocated, losers
// are notified, jobs returned to Pending or marked NoBids transition
// accordingly. Per-job commit+publish order is strict; ordering across
// jobs is not (§4.6).
//
// §4.4/§7: no partial assignment may be persisted. A job whose store write
// fails is retried once — only the jobs that failed, so a job that already
// committed in the first pass isn't re-published or double-counted in
// RecordBidOutcome — and if the retry also fails, that job is forced back
// to Pending (its pre-batch state, since a failed write never left it
// anywhere but Closed) instead of sitting allocated to nothing. Commit
// returns an error whenever any job in the batch never committed, so the
// caller's match-run metrics record the run as a failure rather than a
// silent partial success.
func (a *Allocator) Commit(ctx context.Context, outcome matching.Outcome) error {
	ctx = wrap.WithAction(ctx, types.ActionJobAllocated)

	failed := a.commitBatch(ctx, outcome)
	if len(failed) == 0 {
		return nil
	}

	a.log.Warn(ctx, "batch commit had failures, retrying failed jobs once", "failed_jobs", len(failed))
	retry := matching.Outcome{
		Assignments:     filterAssignments(outcome.Assignments, failed),
		Losers:          outcome.Losers,
		ReturnToPending: filterIDs(outcome.ReturnToPending, failed),
		NoBids:          filterIDs(outcome.NoBids, failed),
	}
	failed = a.commitBatch(ctx, retry)
	if len(failed) == 0 {
		return nil
	}

	for jobID := range failed {
		a.forceReturnToPending(ctx, jobID)
	}
	return fmt.Errorf("allocator: %d job(s) failed to commit after retry", len(failed))
}

// commitBatch runs every job in outcome through its assignment/return/no-bids
// path and returns the set of job IDs whose store write failed.
func (a *Allocator) commitBatch(ctx context.Context, outcome matching.Outcome) map[string]bool {
	failed := make(map[string]bool)
	for _, asn := range outcome.Assignments {
		if err := a.commitAssignment(ctx, asn, outcome.Losers[asn.JobID]); err != nil {
			a.log.Error(ctx, "assignment commit failed", err, "job_id", asn.JobID)
			failed[asn.JobID] = true
		}
	}
	for _, jobID := range outcome.ReturnToPending {
		if err := a.returnToPending(ctx, jobID); err != nil {
			a.log.Error(ctx, "return-to-pending failed", err, "job_id", jobID)
			failed[jobID] = true
		}
	}
	for _, jobID := range outcome.NoBids {
		if err := a.markNoBids(ctx, jobID); err != nil {
			a.log.Error(ctx, "no-bids transition failed", err, "job_id", jobID)
			failed[jobID] = true
		}
	}
	return failed
}

// forceReturnToPending is the last resort after a batch retry is exhausted:
// the job's write never applied, so it is still Closed in the store, and
// Closed -> Pending is a legal §4.3 transition.
func (a *Allocator) forceReturnToPending(ctx context.Context, jobID string) {
	if err := a.store.UpdateJobStatus(ctx, jobID, types.JobPending); err != nil {
		a.log.Error(ctx, "failed to return job to pending after exhausting retry", err, "job_id", jobID)
		return
	}
	if err := a.bus.Publish(ctx, fmt.Sprintf("jobs/%s/status", jobID), models.JobStatusUpdate{
		JobID: jobID, Status: string(types.JobPending), Reason: "allocation_write_failed", TimestampMS: time.Now().UnixMilli(),
	}); err != nil {
		a.log.Warn(ctx, "pending status publish failed", "job_id", jobID, "error", err.Error())
	}
}

func filterAssignments(all []matching.Assignment, keep map[string]bool) []matching.Assignment {
	var out []matching.Assignment
	for _, asn := range all {
		if keep[asn.JobID] {
			out = append(out, asn)
		}
	}
	return out
}

func filterIDs(all []string, keep map[string]bool) []string {
	var out []string
	for _, id := range all {
		if keep[id] {
			out = append(out, id)
		}
	}
	return out
}

func (a *Allocator) commitAssignment(ctx context.Context, asn matching.Assignment, losers []string) error {
	const op = "Allocator.commitAssignment"
	ctx = wrap.WithDriverID(wrap.WithJobID(ctx, asn.JobID), asn.DriverID)

	etaMin := a.predictETA(asn.DistanceKm)

	fn := func(ctx context.Context) error {
		// AllocateJob sets Job.status = Allocated and Driver.status = OnJob
		// atomically in the same store call (§4.6's sole-writer invariant).
		if err := a.store.AllocateJob(ctx, asn.JobID, asn.DriverID, asn.DistanceKm, etaMin); err != nil {
			return fmt.Errorf("%s: allocate job: %w", op, err)
		}
		if err := a.store.RecordBidOutcome(ctx, asn.DriverID, true); err != nil {
			return fmt.Errorf("%s: record win: %w", op, err)
		}
		for _, loserID := range losers {
			if err := a.store.RecordBidOutcome(ctx, loserID, false); err != nil {
				return fmt.Errorf("%s: record loss: %w", op, err)
			}
		}
		return nil
	}
	if err := a.trm.Do(ctx, fn); err != nil {
		return wrap.Error(ctx, err)
	}

	now := time.Now()
	if err := a.bus.Publish(ctx, fmt.Sprintf("jobs/%s/allocated", asn.JobID), models.JobAllocated{
		JobID: asn.JobID, JobIDLegacy: asn.JobID, DriverID: asn.DriverID,
		DistanceKm: asn.DistanceKm, ETAMinutes: etaMin, Score: asn.Score,
		TimestampMS: now.UnixMilli(),
	}); err != nil {
		a.log.Warn(ctx, "job_allocated publish failed", "error", err.Error())
	}
	if err := a.bus.Publish(ctx, fmt.Sprintf("drivers/%s/jobs", asn.DriverID), models.JobAllocated{
		JobID: asn.JobID, JobIDLegacy: asn.JobID, DriverID: asn.DriverID,
		DistanceKm: asn.DistanceKm, ETAMinutes: etaMin, Score: asn.Score,
		TimestampMS: now.UnixMilli(),
	}); err != nil {
		a.log.Warn(ctx, "driver job notification publish failed", "error", err.Error())
	}

	for _, loserID := range losers {
		if err := a.bus.Publish(ctx, fmt.Sprintf("jobs/%s/result/%s", asn.JobID, loserID), models.JobResult{
			JobID: asn.JobID, DriverID: loserID, Won: false, Reason: string(types.LostOutbid),
			TimestampMS: now.UnixMilli(),
		}); err != nil {
			a.log.Warn(ctx, "bid_lost publish failed", "driver_id", loserID, "error", err.Error())
		}
	}
	return nil
}

// returnToPending handles a job that had bids but found no surviving driver
// assignment (e.g. every bidder lost to a higher-scoring rival elsewhere in
// the batch). It re-enters Pending so a fresh auction can be opened.
func (a *Allocator) returnToPending(ctx context.Context, jobID string) error {
	ctx = wrap.WithAction(wrap.WithJobID(ctx, jobID), types.ActionJobReturned)

	if err := a.store.UpdateJobStatus(ctx, jobID, types.JobPending); err != nil {
		return wrap.Error(ctx, err)
	}
	return a.bus.Publish(ctx, fmt.Sprintf("jobs/%s/status", jobID), models.JobStatusUpdate{
		JobID: jobID, Status: string(types.JobPending), Reason: "no_bids", TimestampMS: time.Now().UnixMilli(),
	})
}

func (a *Allocator) markNoBids(ctx context.Context, jobID string) error {
	ctx = wrap.WithJobID(ctx, jobID)

	if err := a.store.UpdateJobStatus(ctx, jobID, types.JobNoBids); err != nil {
		return wrap.Error(ctx, err)
	}
	return a.bus.Publish(ctx, fmt.Sprintf("jobs/%s/status", jobID), models.JobStatusUpdate{
		JobID: jobID, Status: string(types.JobNoBids), TimestampMS: time.Now().UnixMilli(),
	})
}

func (a *Allocator) predictETA(distanceKm float64) int {
	if a.eta != nil {
		return a.eta.Predict(distanceKm, time.Now(), "")
	}
	min := distanceKm / etaBaselineKmPerMin
	etaMin := int(min)
	if min > float64(etaMin) {
		etaMin++
	}
	if etaMin < 1 {
		etaMin = 1
	}
	return etaMin
}
