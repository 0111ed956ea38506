// Package ingest normalizes job submissions into one models.JobRequest
// shape, resolves missing coordinates via geocoding, and hands the admitted
// Job to the BiddingCoordinator (§4.2). Submissions arrive only through
// Submit, which the HTTP control plane calls; no bus topic feeds the
// ingestor.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/fleetcore/dispatch/internal/domain/models"
	"github.com/fleetcore/dispatch/internal/domain/types"
	"github.com/fleetcore/dispatch/internal/geo"
	"github.com/fleetcore/dispatch/pkg/logger"
	wrap "github.com/fleetcore/dispatch/pkg/logger/wrapper"
	"github.com/fleetcore/dispatch/pkg/metrics"
)

const geocodeDeadline = 5 * time.Second

const metricsService = "dispatch-engine"

// Coordinator is the subset of the bidding coordinator the ingestor needs;
// kept narrow to avoid a dependency on the bidding package's actor internals.
type Coordinator interface {
	OpenAuction(ctx context.Context, job *models.Job) error
}

// JobStore is the subset of store.Store the ingestor writes through.
type JobStore interface {
	CreateJob(ctx context.Context, j *models.Job) error
}

type admissionResult struct {
	jobID string
	err   error
}

type admissionRequest struct {
	ctx    context.Context
	raw    RawJobMessage
	source string
	result chan admissionResult
}

// JobIngestor owns the bounded intake queue described in §4.2/§5: Submit
// does a non-blocking send and returns ErrBusy when the queue is full.
type JobIngestor struct {
	store       JobStore
	geocoder    geo.Geocoder
	fallback    geo.Geocoder
	coordinator Coordinator
	queue       chan admissionRequest
	limiter     *rate.Limiter
	log         logger.Logger
}

func New(st JobStore, geocoder, fallback geo.Geocoder, coordinator Coordinator, queueSize int, log logger.Logger) *JobIngestor {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &JobIngestor{
		store:       st,
		geocoder:    geocoder,
		fallback:    fallback,
		coordinator: coordinator,
		queue:       make(chan admissionRequest, queueSize),
		limiter:     rate.NewLimiter(rate.Limit(queueSize), queueSize),
		log:         log,
	}
}

// Submit enqueues a raw message for normalization and admission, which
// happens on Run's goroutine, and then waits for that admission's result or
// for ctx to end. The hand-off itself never blocks: a full queue returns
// ErrBusy. On success it returns the assigned job id (used by the HTTP
// control plane's POST /v1/jobs response).
func (j *JobIngestor) Submit(ctx context.Context, raw RawJobMessage, source string) (string, error) {
	if !j.limiter.Allow() {
		return "", types.ErrBusy
	}

	req := admissionRequest{ctx: ctx, raw: raw, source: source, result: make(chan admissionResult, 1)}
	select {
	case j.queue <- req:
	default:
		return "", types.ErrBusy
	}

	select {
	case res := <-req.result:
		return res.jobID, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Run drains the intake queue until ctx is cancelled.
func (j *JobIngestor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-j.queue:
			jobID, err := j.admit(req.ctx, req.raw, req.source)
			req.result <- admissionResult{jobID: jobID, err: err}
		}
	}
}

func (j *JobIngestor) admit(ctx context.Context, raw RawJobMessage, source string) (string, error) {
	const op = "JobIngestor.admit"

	jobID, err := newJobID()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	ctx = wrap.WithJobID(wrap.WithAction(ctx, types.ActionJobAdmitted), jobID)

	reqModel := normalizeRaw(raw)
	job := &models.Job{
		ID:                   jobID,
		PickupText:           reqModel.PickupText,
		DropoffText:          reqModel.DropoffText,
		PickupLat:            reqModel.PickupLat,
		PickupLon:            reqModel.PickupLon,
		DropoffLat:           reqModel.DropoffLat,
		DropoffLon:           reqModel.DropoffLon,
		Passengers:           reqModel.Passengers,
		PassengerDetail:      reqModel.PassengerDetail,
		VehicleRequired:      reqModel.VehicleRequired,
		VehicleOverride:      reqModel.VehicleOverride,
		Priority:             reqModel.Priority,
		PaymentMethod:        reqModel.PaymentMethod,
		CallerName:           reqModel.CallerName,
		CallerPhone:          reqModel.CallerPhone,
		FareEstimate:         reqModel.FareEstimate,
		BiddingWindowSeconds: reqModel.BiddingWindowS,
		CreatedAt:            time.Now(),
		Status:               types.JobPending,
	}

	if err := j.fixCoordinates(ctx, job); err != nil {
		ctx = wrap.WithAction(ctx, types.ActionJobRejected)
		metrics.JobsTotal.WithLabelValues(metricsService, "rejected").Inc()
		return "", wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	if err := j.store.CreateJob(ctx, job); err != nil {
		metrics.JobsTotal.WithLabelValues(metricsService, "rejected").Inc()
		return "", wrap.Error(ctx, fmt.Errorf("%s: create job: %w", op, err))
	}

	j.log.Info(ctx, "job admitted", "source", source, "job_id", job.ID)
	metrics.JobsTotal.WithLabelValues(metricsService, "admitted").Inc()

	if err := j.coordinator.OpenAuction(ctx, job); err != nil {
		return "", wrap.Error(ctx, fmt.Errorf("%s: open auction: %w", op, err))
	}
	return jobID, nil
}

// fixCoordinates validates both legs' coordinates and geocodes whichever
// side is invalid, falling back to the configured default on geocoder
// failure (§4.2).
func (j *JobIngestor) fixCoordinates(ctx context.Context, job *models.Job) error {
	regionHint := regionHintFromPhone(job.CallerPhone)

	if !geo.ValidCoords(job.PickupLat, job.PickupLon) {
		lat, lon, err := j.resolve(ctx, job.PickupText, regionHint)
		if err != nil {
			return fmt.Errorf("resolve pickup: %w", err)
		}
		job.PickupLat, job.PickupLon = lat, lon
		job.CoordsFixed = true
	}

	if !geo.ValidCoords(job.DropoffLat, job.DropoffLon) {
		lat, lon, err := j.resolve(ctx, job.DropoffText, regionHint)
		if err != nil {
			return fmt.Errorf("resolve dropoff: %w", err)
		}
		job.DropoffLat, job.DropoffLon = lat, lon
		job.CoordsFixed = true
	}
	return nil
}

func (j *JobIngestor) resolve(ctx context.Context, addressText, regionHint string) (float64, float64, error) {
	gctx, cancel := context.WithTimeout(ctx, geocodeDeadline)
	defer cancel()

	lat, lon, err := j.geocoder.Resolve(gctx, addressText, regionHint)
	if err == nil {
		return lat, lon, nil
	}

	ctx = wrap.WithAction(ctx, types.ActionGeocodeFallback)
	j.log.Warn(ctx, "geocoding failed, using fallback", "address", addressText, "error", err.Error())
	return j.fallback.Resolve(ctx, addressText, regionHint)
}

// regionHintFromPhone infers an ISO country code from an E.164-style phone
// number; empty when unrecognized.
func regionHintFromPhone(phone string) string {
	p := strings.TrimSpace(phone)
	switch {
	case strings.HasPrefix(p, "+44"), strings.HasPrefix(p, "0044"):
		return "gb"
	case strings.HasPrefix(p, "+1"):
		return "us"
	default:
		return ""
	}
}

func normalizeRaw(raw RawJobMessage) models.JobRequest {
	pickupLat, _ := firstFloat(raw.Lat, raw.PickupLatLegacy)
	dropoffLat, _ := firstFloat(raw.DropoffLat)
	pickupLon, _ := firstFloat(raw.Lng, raw.PickupLngLegacy)
	dropoffLon, _ := firstFloat(raw.DropoffLng)

	passengers, detail := parsePassengersField(raw.Passengers)

	windowSeconds, present := 0, false
	if raw.BiddingWindowSec != nil {
		windowSeconds, present = *raw.BiddingWindowSec, true
	}

	var fareEstimate *float64
	if f, ok := parseDecimal(firstNonEmpty(raw.Fare, raw.EstimatedFareLegacy)); ok {
		fareEstimate = &f
	}

	priority, paymentMethod, vehicleOverride := expansionFields([]string{raw.Temp1, raw.Temp2, raw.Temp3})

	return models.JobRequest{
		PickupText:      firstNonEmpty(raw.PickupAddress, raw.PickupLegacy, raw.PubNameLegacy),
		DropoffText:      firstNonEmpty(raw.Dropoff, raw.DropoffNameLegacy),
		PickupLat:       pickupLat,
		PickupLon:       pickupLon,
		DropoffLat:      dropoffLat,
		DropoffLon:      dropoffLon,
		Passengers:      passengers,
		PassengerDetail: detail,
		VehicleRequired: types.ClassSaloon,
		VehicleOverride: vehicleOverride,
		Priority:        priority,
		PaymentMethod:   paymentMethod,
		CallerName:      firstNonEmpty(raw.CustomerName, raw.CallerNameLegacy),
		CallerPhone:     firstNonEmpty(raw.CustomerPhone, raw.CallerPhoneLegacy),
		FareEstimate:    fareEstimate,
		BiddingWindowS:  clampBiddingWindow(windowSeconds, present),
	}
}
