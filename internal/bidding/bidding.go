// Package bidding implements the BiddingCoordinator actor (§4.3): a single
// goroutine owns every active and closed-pool auction, so the active/closed
// transition and the "exactly one match request per drain" invariant need
// no mutex — the command loop itself is the critical section, in the style
// of the teacher's ConnectionHub and RabbitMQ.monitorConnection.
package bidding

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fleetcore/dispatch/internal/bus"
	"github.com/fleetcore/dispatch/internal/domain/models"
	"github.com/fleetcore/dispatch/internal/domain/types"
	"github.com/fleetcore/dispatch/internal/geo"
	"github.com/fleetcore/dispatch/internal/store"
	"github.com/fleetcore/dispatch/pkg/logger"
	wrap "github.com/fleetcore/dispatch/pkg/logger/wrapper"
	"github.com/fleetcore/dispatch/pkg/metrics"
)

const metricsService = "dispatch-engine"

// JobBids pairs a closed auction's job with its final bid list; the unit of
// work handed to MatchRunner on each drain.
type JobBids struct {
	Job  *models.Job
	Bids []models.Bid
}

// MatchRunner runs the GlobalMatcher + Allocator over one closed-pool batch.
// Implemented by an engine-level adapter composing internal/matching and
// internal/allocator so this package never imports either.
type MatchRunner interface {
	RunMatch(ctx context.Context, batch []JobBids) error
}

type commandKind int

const (
	cmdOpen commandKind = iota
	cmdBid
	cmdExpire
	cmdCancel
)

type command struct {
	kind commandKind
	ctx  context.Context

	job      *models.Job
	jobID    string
	driverID string
	lat, lon float64

	reply chan error
}

type auction struct {
	job     *models.Job
	invited map[string]struct{}
	bids    []models.Bid
	timer   *time.Timer
}

// Config tunes the coordinator; defaults follow the spec's recommendations.
type Config struct {
	MaxBidRadiusKM float64
}

func DefaultConfig() Config {
	return Config{MaxBidRadiusKM: 10}
}

// Coordinator is the BiddingCoordinator. Construct with New and start its
// actor loop with Run before calling OpenAuction/RecordBid/Cancel.
type Coordinator struct {
	cfg     Config
	store   store.Store
	bus     bus.Bus
	matcher MatchRunner
	log     logger.Logger

	cmds chan command

	active     map[string]*auction
	closedPool map[string]*auction
}

func New(cfg Config, st store.Store, b bus.Bus, matcher MatchRunner, log logger.Logger) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		store:      st,
		bus:        b,
		matcher:    matcher,
		log:        log,
		cmds:       make(chan command, 256),
		active:     make(map[string]*auction),
		closedPool: make(map[string]*auction),
	}
}

// Run is the actor loop. It owns active/closedPool exclusively until ctx is
// cancelled, at which point every pending timer is stopped.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			for _, a := range c.active {
				a.timer.Stop()
			}
			return ctx.Err()
		case cmd := <-c.cmds:
			c.process(cmd)
		}
	}
}

func (c *Coordinator) process(cmd command) {
	var err error
	switch cmd.kind {
	case cmdOpen:
		err = c.processOpen(cmd.ctx, cmd.job)
	case cmdBid:
		err = c.processBid(cmd.ctx, cmd.jobID, cmd.driverID, cmd.lat, cmd.lon)
	case cmdExpire:
		c.processExpire(cmd.ctx, cmd.jobID)
	case cmdCancel:
		err = c.processCancel(cmd.ctx, cmd.jobID)
	}
	if cmd.reply != nil {
		cmd.reply <- err
	}
}

// OpenAuction implements ingest.Coordinator.
func (c *Coordinator) OpenAuction(ctx context.Context, job *models.Job) error {
	reply := make(chan error, 1)
	c.cmds <- command{kind: cmdOpen, ctx: ctx, job: job, reply: reply}
	return <-reply
}

// RecordBid implements §4.3's RecordBid contract.
func (c *Coordinator) RecordBid(ctx context.Context, jobID, driverID string, lat, lon float64) error {
	reply := make(chan error, 1)
	c.cmds <- command{kind: cmdBid, ctx: ctx, jobID: jobID, driverID: driverID, lat: lat, lon: lon, reply: reply}
	return <-reply
}

// Cancel moves a job out of bidding (active or closed-pool) into Cancelled.
func (c *Coordinator) Cancel(ctx context.Context, jobID string) error {
	reply := make(chan error, 1)
	c.cmds <- command{kind: cmdCancel, ctx: ctx, jobID: jobID, reply: reply}
	return <-reply
}

func (c *Coordinator) processOpen(ctx context.Context, job *models.Job) error {
	const op = "Coordinator.processOpen"
	ctx = wrap.WithJobID(wrap.WithAction(ctx, types.ActionAuctionOpened), job.ID)

	cellIDs := geo.CellsWithinRadius(job.PickupLat, job.PickupLon, c.cfg.MaxBidRadiusKM)
	cells := make([]string, 0, len(cellIDs))
	for cell := range cellIDs {
		cells = append(cells, cell)
	}

	online := types.DriverOnline
	candidates, err := c.store.ListDrivers(ctx, store.DriverFilter{Status: &online, CellIDs: cells})
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: list drivers: %w", op, err))
	}

	var invited []string
	for _, d := range candidates {
		if d.VehicleClass < job.VehicleRequired {
			continue
		}
		if geo.HaversineKm(job.PickupLat, job.PickupLon, d.Lat, d.Lon) > c.cfg.MaxBidRadiusKM {
			continue
		}
		invited = append(invited, d.ID)
	}

	if len(invited) == 0 {
		job.Status = types.JobNoBids
		if err := c.store.UpdateJobStatus(ctx, job.ID, types.JobNoBids); err != nil {
			return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}
		return c.bus.Publish(ctx, fmt.Sprintf("jobs/%s/status", job.ID), models.JobStatusUpdate{
			JobID: job.ID, Status: string(types.JobNoBids), Reason: "no_eligible_drivers", TimestampMS: nowMS(time.Now()),
		})
	}

	job.Status = types.JobBidding
	if err := c.store.UpdateJobStatus(ctx, job.ID, types.JobBidding); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	invitedSet := make(map[string]struct{}, len(invited))
	for _, id := range invited {
		invitedSet[id] = struct{}{}
	}
	a := &auction{job: job, invited: invitedSet}
	c.active[job.ID] = a
	metrics.ActiveAuctionsGauge.WithLabelValues(metricsService).Inc()

	sol := models.BidSolicitation{
		JobID: job.ID, JobIDLegacy: job.ID,
		PickupLat: job.PickupLat, PickupLon: job.PickupLon,
		PickupAddress: job.PickupText, DropoffAddress: job.DropoffText,
		DropoffLat: job.DropoffLat, DropoffLon: job.DropoffLon,
		Passengers: job.Passengers, BiddingWindowSec: job.BiddingWindowSeconds,
		InvitedDriverIDs: invited, TimestampMS: nowMS(time.Now()), Version: 1,
	}
	for _, driverID := range invited {
		if err := c.bus.Publish(ctx, fmt.Sprintf("drivers/%s/bid-request", driverID), sol); err != nil {
			c.log.Warn(ctx, "bid solicitation publish failed", "driver_id", driverID, "error", err.Error())
		}
	}
	if err := c.bus.Publish(ctx, fmt.Sprintf("pubs/requests/%s", job.ID), sol); err != nil {
		c.log.Warn(ctx, "bid solicitation publish failed", "error", err.Error())
	}

	windowSeconds := job.BiddingWindowSeconds
	jobID := job.ID
	a.timer = time.AfterFunc(time.Duration(windowSeconds)*time.Second, func() {
		c.cmds <- command{kind: cmdExpire, ctx: context.Background(), jobID: jobID}
	})

	return nil
}

func (c *Coordinator) processBid(ctx context.Context, jobID, driverID string, lat, lon float64) error {
	const op = "Coordinator.processBid"
	ctx = wrap.WithDriverID(wrap.WithJobID(wrap.WithAction(ctx, types.ActionBidRecorded), jobID), driverID)

	a, ok := c.active[jobID]
	if !ok {
		c.log.Debug(ctx, "bid rejected: auction not open", "job_id", jobID, "driver_id", driverID)
		metrics.BidsRejectedTotal.WithLabelValues(metricsService, "auction_not_open").Inc()
		return types.ErrAuctionNotOpen
	}
	for _, b := range a.bids {
		if b.DriverID == driverID {
			metrics.BidsRejectedTotal.WithLabelValues(metricsService, "duplicate").Inc()
			return types.ErrDuplicateBid
		}
	}

	dist := geo.HaversineKm(a.job.PickupLat, a.job.PickupLon, lat, lon)
	_, invited := a.invited[driverID]

	stats, err := c.store.GetDriverStats(ctx, driverID)
	if err != nil && err != types.ErrDriverNotFound {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	bid := models.Bid{
		JobID: jobID, DriverID: driverID, DriverLat: lat, DriverLon: lon,
		DistanceKm: dist, CompletedJobsSnapshot: stats.CompletedJobs,
		Uninvited: !invited, BidTS: time.Now(),
	}
	a.bids = append(a.bids, bid)

	if err := c.store.AppendBid(ctx, jobID, bid); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	metrics.BidsReceivedTotal.WithLabelValues(metricsService, strconv.FormatBool(bid.Uninvited)).Inc()

	return c.rewriteSnapshot(ctx, a)
}

func (c *Coordinator) rewriteSnapshot(ctx context.Context, a *auction) error {
	snapshot := make([]models.BidSnapshot, 0, len(a.bids))
	uninvited := 0
	for _, b := range a.bids {
		name := ""
		if d, err := c.store.GetDriver(ctx, b.DriverID); err == nil {
			name = d.Name
		}
		if b.Uninvited {
			uninvited++
		}
		snapshot = append(snapshot, models.BidSnapshot{
			DriverID: b.DriverID, DriverName: name, Lat: b.DriverLat, Lon: b.DriverLon,
			DistanceKm: b.DistanceKm, CompletedJobs: b.CompletedJobsSnapshot,
			BidTime: b.BidTS, Uninvited: b.Uninvited,
		})
	}
	return c.store.SnapshotBidsToJob(ctx, a.job.ID, snapshot, uninvited)
}

func (c *Coordinator) processExpire(ctx context.Context, jobID string) {
	ctx = wrap.WithJobID(wrap.WithAction(ctx, types.ActionAuctionDrained), jobID)

	a, ok := c.active[jobID]
	if !ok {
		return
	}
	delete(c.active, jobID)
	c.closedPool[jobID] = a
	metrics.ActiveAuctionsGauge.WithLabelValues(metricsService).Dec()

	if err := c.store.UpdateJobStatus(ctx, jobID, types.JobClosed); err != nil {
		c.log.Error(ctx, "failed to close job", err)
	}

	if len(c.active) != 0 || len(c.closedPool) == 0 {
		return
	}

	batch := make([]JobBids, 0, len(c.closedPool))
	for _, ca := range c.closedPool {
		batch = append(batch, JobBids{Job: ca.job, Bids: ca.bids})
	}
	c.closedPool = make(map[string]*auction)

	matchCtx := wrap.WithLogCtx(context.Background(), wrap.GetLogCtx(ctx))
	go func() {
		if err := c.matcher.RunMatch(matchCtx, batch); err != nil {
			c.log.Error(matchCtx, "match run failed", err)
		}
	}()
}

func (c *Coordinator) processCancel(ctx context.Context, jobID string) error {
	ctx = wrap.WithJobID(wrap.WithAction(ctx, types.ActionJobCancelled), jobID)

	var bidders []string
	if a, ok := c.active[jobID]; ok {
		a.timer.Stop()
		delete(c.active, jobID)
		metrics.ActiveAuctionsGauge.WithLabelValues(metricsService).Dec()
		bidders = bidderIDs(a.bids)
	}
	if a, ok := c.closedPool[jobID]; ok {
		delete(c.closedPool, jobID)
		bidders = bidderIDs(a.bids)
	}

	if err := c.store.UpdateJobStatus(ctx, jobID, types.JobCancelled); err != nil {
		return wrap.Error(ctx, err)
	}

	now := nowMS(time.Now())
	for _, driverID := range bidders {
		if err := c.bus.Publish(ctx, fmt.Sprintf("jobs/%s/result/%s", jobID, driverID), models.JobResult{
			JobID: jobID, DriverID: driverID, Won: false, Reason: string(types.LostCancelled), TimestampMS: now,
		}); err != nil {
			c.log.Warn(ctx, "bid_lost publish failed", "driver_id", driverID, "error", err.Error())
		}
	}

	return c.bus.Publish(ctx, fmt.Sprintf("jobs/%s/status", jobID), models.JobStatusUpdate{
		JobID: jobID, Status: string(types.JobCancelled), TimestampMS: now,
	})
}

func bidderIDs(bids []models.Bid) []string {
	ids := make([]string, len(bids))
	for i, b := range bids {
		ids[i] = b.DriverID
	}
	return ids
}

func nowMS(t time.Time) int64 { return t.UnixMilli() }
