// Package watchdog runs the three low-frequency safety-net loops from §4.6:
// stuck-auction reaping (crash recovery), driver liveness demotion, and
// stalled-allocation completion. Grounded on the teacher's
// pkg/wsHub.ConnectionHub.HealthLoop ticker shape, generalized from one
// loop to three independent tickers sharing a single root context.
package watchdog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fleetcore/dispatch/internal/domain/models"
	"github.com/fleetcore/dispatch/internal/domain/types"
	"github.com/fleetcore/dispatch/internal/store"
	"github.com/fleetcore/dispatch/pkg/logger"
	wrap "github.com/fleetcore/dispatch/pkg/logger/wrapper"
	"github.com/fleetcore/dispatch/pkg/metrics"
)

const metricsService = "dispatch-engine"

// bus is the narrow publish boundary the watchdog needs.
type bus interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Config tunes the three loops; defaults follow §4.6/§7's recommendations.
type Config struct {
	Interval         time.Duration // default 30s, shared by all three tickers
	AuctionGrace     time.Duration // extra time past bidding_window_seconds before a Bidding job is reaped
	DriverStaleAfter time.Duration // default 120s (§7)
	MaxAllocatedAge  time.Duration // policy-configurable; job stuck Allocated longer than this is stalled
}

func DefaultConfig() Config {
	return Config{
		Interval:         30 * time.Second,
		AuctionGrace:     10 * time.Second,
		DriverStaleAfter: 120 * time.Second,
		MaxAllocatedAge:  45 * time.Minute,
	}
}

// Watchdog owns the three tickers. Construct with New and start with Run.
type Watchdog struct {
	cfg   Config
	store store.Store
	bus   bus
	log   logger.Logger
}

func New(cfg Config, st store.Store, b bus, log logger.Logger) *Watchdog {
	return &Watchdog{cfg: cfg, store: st, bus: b, log: log}
}

// Run starts all three loops and blocks until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); w.loop(ctx, "reap_stuck_auctions", w.reapStuckAuctions) }()
	go func() { defer wg.Done(); w.loop(ctx, "demote_stale_drivers", w.demoteStaleDrivers) }()
	go func() { defer wg.Done(); w.loop(ctx, "complete_stalled_jobs", w.completeStalledJobs) }()
	wg.Wait()
	return ctx.Err()
}

func (w *Watchdog) loop(ctx context.Context, name string, tick func(ctx context.Context)) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tickCtx := wrap.WithAction(ctx, types.ActionWatchdogTick)
			tick(tickCtx)
			w.log.Debug(tickCtx, "watchdog tick", "loop", name)
		}
	}
}

// reapStuckAuctions recovers jobs left in Bidding by a coordinator that
// crashed before its expiry timer fired: the BiddingCoordinator is the only
// component that ever ages a live auction out of Bidding, so any job still
// Bidding past its window plus a grace period has no live auction behind it
// anymore. Jobs that collected bids re-enter Pending for a fresh auction;
// jobs with none go NoBids.
func (w *Watchdog) reapStuckAuctions(ctx context.Context) {
	jobs, err := w.store.ListJobsByStatus(ctx, types.JobBidding)
	if err != nil {
		w.log.Error(ctx, "list bidding jobs failed", err)
		return
	}

	now := time.Now()
	reaped := 0
	for _, j := range jobs {
		deadline := j.CreatedAt.Add(time.Duration(j.BiddingWindowSeconds) * time.Second).Add(w.cfg.AuctionGrace)
		if now.Before(deadline) {
			continue
		}

		next := types.JobNoBids
		reason := "stuck_auction_no_bids"
		if len(j.BidsSnapshot) > 0 {
			next = types.JobPending
			reason = "stuck_auction_reopened"
		}
		if err := w.store.UpdateJobStatus(ctx, j.ID, next); err != nil {
			w.log.Error(ctx, "reap stuck auction failed", err, "job_id", j.ID)
			continue
		}
		if err := w.bus.Publish(ctx, fmt.Sprintf("jobs/%s/status", j.ID), models.JobStatusUpdate{
			JobID: j.ID, Status: string(next), Reason: reason, TimestampMS: now.UnixMilli(),
		}); err != nil {
			w.log.Warn(ctx, "reap status publish failed", "job_id", j.ID, "error", err.Error())
		}
		reaped++
	}
	if reaped > 0 {
		w.log.Info(ctx, "reaped stuck auctions", "count", reaped)
	}
}

// demoteStaleDrivers implements §7's 120s liveness rule.
func (w *Watchdog) demoteStaleDrivers(ctx context.Context) {
	stale, err := w.store.StaleDrivers(ctx, w.cfg.DriverStaleAfter)
	if err != nil {
		w.log.Error(ctx, "list stale drivers failed", err)
		return
	}

	for _, d := range stale {
		if d.Status != types.DriverOnline {
			continue
		}
		if err := w.store.SetDriverStatus(ctx, d.ID, types.DriverOffline); err != nil {
			w.log.Error(ctx, "demote stale driver failed", err, "driver_id", d.ID)
			continue
		}
		metrics.DriversOnlineGauge.WithLabelValues(metricsService).Dec()
		w.log.Info(ctx, "driver demoted: location stale", "driver_id", d.ID)
	}
}

// completeStalledJobs implements §4.6(iii). A ride allocated longer than
// MaxAllocatedAge without completing is assumed abandoned by the driver: the
// job is closed out as Completed with a stalled annotation (so it stops
// blocking reporting) while the driver's reliability stats are charged as a
// no-show, per the same rule a mid-ride cancellation would trigger.
func (w *Watchdog) completeStalledJobs(ctx context.Context) {
	jobs, err := w.store.ListJobsByStatus(ctx, types.JobAllocated)
	if err != nil {
		w.log.Error(ctx, "list allocated jobs failed", err)
		return
	}

	now := time.Now()
	for _, j := range jobs {
		if j.AllocatedAt.IsZero() || now.Sub(j.AllocatedAt) < w.cfg.MaxAllocatedAge {
			continue
		}

		if err := w.store.UpdateJobStatus(ctx, j.ID, types.JobCompleted); err != nil {
			w.log.Error(ctx, "complete stalled job failed", err, "job_id", j.ID)
			continue
		}
		if j.AllocatedDriverID != "" {
			if err := w.store.RecordJobCancelled(ctx, j.AllocatedDriverID, true); err != nil {
				w.log.Error(ctx, "no-show stat update failed", err, "job_id", j.ID, "driver_id", j.AllocatedDriverID)
			}
			if err := w.store.SetDriverStatus(ctx, j.AllocatedDriverID, types.DriverOnline); err != nil {
				w.log.Error(ctx, "driver release failed", err, "job_id", j.ID, "driver_id", j.AllocatedDriverID)
			}
		}
		if err := w.bus.Publish(ctx, fmt.Sprintf("jobs/%s/status", j.ID), models.JobStatusUpdate{
			JobID: j.ID, Status: string(types.JobCompleted), Reason: "stalled", TimestampMS: now.UnixMilli(),
		}); err != nil {
			w.log.Warn(ctx, "stalled-job publish failed", "job_id", j.ID, "error", err.Error())
		}
		w.log.Warn(ctx, "job force-completed: allocated age exceeded", "job_id", j.ID, "driver_id", j.AllocatedDriverID)
	}
}
