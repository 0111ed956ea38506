// Package locationingest consumes driver GPS/status events (§2's
// LocationIngestor), updates the Store, and feeds every sample through the
// SpoofDetector so scoring always sees a fresh risk. Grounded on the
// teacher's internal/adapter/rabbit/driver-consumer.go consume-and-handle
// shape, generalized from a single callback to a bus.Bus subscription.
package locationingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetcore/dispatch/internal/bus"
	"github.com/fleetcore/dispatch/internal/domain/models"
	"github.com/fleetcore/dispatch/internal/domain/types"
	"github.com/fleetcore/dispatch/internal/spoof"
	"github.com/fleetcore/dispatch/pkg/logger"
	wrap "github.com/fleetcore/dispatch/pkg/logger/wrapper"
	"github.com/fleetcore/dispatch/pkg/metrics"
)

const metricsService = "dispatch-engine"

// LocationTopic and StatusTopic are the wildcard subscriptions (§6).
const (
	LocationTopic = "drivers/+/location"
	StatusTopic   = "drivers/+/status"
)

// spoofRiskThreshold and spoofSustainedSamples implement §7's demotion rule:
// drivers above the threshold for this many consecutive samples go Offline.
const (
	spoofRiskThreshold   = 0.8
	spoofSustainedSamples = 3
)

// Store is the subset of store.Store the ingestor needs.
type Store interface {
	PushLocation(ctx context.Context, s models.LocationSample) error
	LastLocation(ctx context.Context, driverID string) (models.LocationSample, bool, error)
	SetDriverStatus(ctx context.Context, driverID string, status types.DriverStatus) error
	RecordSpoofSample(ctx context.Context, driverID string, risk, threshold float64) (streak int, err error)
}

// Ingestor wires the bus subscriptions into the Store + SpoofDetector.
type Ingestor struct {
	store    Store
	bus      bus.Bus
	detector *spoof.Detector
	log      logger.Logger
}

func New(st Store, b bus.Bus, detector *spoof.Detector, log logger.Logger) *Ingestor {
	return &Ingestor{store: st, bus: b, detector: detector, log: log}
}

// Run subscribes to both topics; it returns only on subscribe failure or ctx
// cancellation (the bus's own Subscribe loop handles reconnects). The
// location subscription runs on its own goroutine because Subscribe may
// block for the life of the subscription.
func (in *Ingestor) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := in.bus.Subscribe(ctx, LocationTopic, in.handleLocation); err != nil {
			errCh <- fmt.Errorf("subscribe %s: %w", LocationTopic, err)
		}
	}()
	if err := in.bus.Subscribe(ctx, StatusTopic, in.handleStatus); err != nil {
		return fmt.Errorf("subscribe %s: %w", StatusTopic, err)
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (in *Ingestor) handleLocation(ctx context.Context, _ string, body []byte) error {
	const op = "Ingestor.handleLocation"

	var evt models.DriverLocationEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("%s: unmarshal: %w", op, err)
	}
	ctx = wrap.WithDriverID(wrap.WithAction(ctx, types.ActionLocationIngested), evt.DriverID)

	sample := models.LocationSample{
		DriverID: evt.DriverID, Lat: evt.Lat, Lon: evt.Lon,
		Heading: evt.Heading, AccuracyM: evt.AccuracyM,
		TS: time.UnixMilli(evt.TS),
	}

	prev, hasPrev, err := in.store.LastLocation(ctx, evt.DriverID)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: last location: %w", op, err))
	}
	// Per-driver samples must be monotonic in ts (§5); stale/out-of-order
	// samples are discarded rather than corrupting the spoof-detector ring.
	if hasPrev && !sample.TS.After(prev.TS) {
		in.log.Debug(ctx, "discarding out-of-order location sample")
		return nil
	}

	risk, flags := in.detector.Evaluate(prev, sample, hasPrev, time.Now())

	if err := in.store.PushLocation(ctx, sample); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: push location: %w", op, err))
	}

	streak, err := in.store.RecordSpoofSample(ctx, evt.DriverID, risk, spoofRiskThreshold)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: record spoof sample: %w", op, err))
	}
	if len(flags) > 0 {
		in.log.Info(ctx, "spoof risk contribution", "risk", risk, "flags", flags, "streak", streak)
		for _, flag := range flags {
			metrics.SpoofRiskFlaggedTotal.WithLabelValues(metricsService, flag).Inc()
		}
	}

	// == rather than >=: streak keeps climbing every sample once risk stays
	// above threshold, and the driver is already demoted by the time it first
	// crosses spoofSustainedSamples, so >= would re-decrement the gauge on
	// every subsequent sample in the same streak.
	if streak == spoofSustainedSamples {
		ctx = wrap.WithAction(ctx, types.ActionDriverDemoted)
		if err := in.store.SetDriverStatus(ctx, evt.DriverID, types.DriverOffline); err != nil {
			return wrap.Error(ctx, fmt.Errorf("%s: demote: %w", op, err))
		}
		metrics.DriversOnlineGauge.WithLabelValues(metricsService).Dec()
		in.log.Warn(ctx, "driver demoted to offline: sustained spoof risk", "streak", streak, "risk", risk)
	}

	return nil
}

func (in *Ingestor) handleStatus(ctx context.Context, _ string, body []byte) error {
	const op = "Ingestor.handleStatus"

	var evt models.DriverStatusEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("%s: unmarshal: %w", op, err)
	}
	ctx = wrap.WithDriverID(ctx, evt.DriverID)

	status, ok := types.ParseDriverStatus(evt.Status)
	if !ok {
		in.log.Warn(ctx, "unrecognized driver status", "status", evt.Status)
		return nil
	}
	if err := in.store.SetDriverStatus(ctx, evt.DriverID, status); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	switch status {
	case types.DriverOnline:
		metrics.DriversOnlineGauge.WithLabelValues(metricsService).Inc()
	case types.DriverOffline:
		metrics.DriversOnlineGauge.WithLabelValues(metricsService).Dec()
	}
	return nil
}
