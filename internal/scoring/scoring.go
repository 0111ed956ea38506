// Package scoring computes the utility of a (driver, job) pairing: the
// scalar the GlobalMatcher sorts bids by. All sub-scores are pure functions
// of their inputs so the weights can be tuned from config without a
// recompile (§4.5).
package scoring

import (
	"time"

	"github.com/fleetcore/dispatch/internal/domain/models"
	"github.com/fleetcore/dispatch/internal/eta"
	"github.com/fleetcore/dispatch/internal/geo"
)

// Weights holds the tunable coefficients and normalization caps from §4.5.
// Zero-value Weights is invalid; use DefaultWeights.
type Weights struct {
	Distance    float64
	Fairness    float64
	Idle        float64
	Reliability float64
	ETA         float64

	MaxDistanceKm    float64
	MaxCompletedJobs float64
	MaxIdleMinutes   float64
	MaxETAMinutes    float64
}

func DefaultWeights() Weights {
	return Weights{
		Distance:    0.35,
		Fairness:    0.20,
		Idle:        0.10,
		Reliability: 0.20,
		ETA:         0.15,

		MaxDistanceKm:    10,
		MaxCompletedJobs: 200,
		MaxIdleMinutes:   60,
		MaxETAMinutes:    30,
	}
}

// Input captures everything the Scorer needs for one (driver, job) bid.
// HeadingDeg and PickupBearingDeg are -1 when unknown. LastJobCompletedAt
// is the zero time when unknown.
type Input struct {
	DistanceKm         float64
	CompletedJobs      int
	Stats              models.DriverStats
	GPSAccuracyM       float64
	HeadingDeg         float64
	PickupBearingDeg   float64
	LastJobCompletedAt time.Time
	SpoofRisk          float64
	ZoneID             string
	Now                time.Time
}

// Scorer computes Utility, a value in [0,1].
type Scorer struct {
	weights Weights
	eta     eta.Model
}

func New(weights Weights, etaModel eta.Model) *Scorer {
	return &Scorer{weights: weights, eta: etaModel}
}

func (s *Scorer) Utility(in Input) float64 {
	w := s.weights

	distScore := 1 - min1(in.DistanceKm/w.MaxDistanceKm)
	fairnessScore := 1 - min1(float64(in.CompletedJobs)/w.MaxCompletedJobs)

	idleBonus := 0.0
	if !in.LastJobCompletedAt.IsZero() {
		idleMinutes := in.Now.Sub(in.LastJobCompletedAt).Minutes()
		if idleMinutes > 0 {
			idleBonus = min1(idleMinutes / w.MaxIdleMinutes)
		}
	}

	reliabilityScore := clamp01(
		0.45*(1-in.Stats.CancelRate()) +
			0.20*(1-in.Stats.NoShowRate()) +
			0.20*in.Stats.AcceptRate +
			0.15*((in.Stats.AvgRating-3.5)/1.5),
	)

	etaMin := s.eta.Predict(in.DistanceKm, in.Now, in.ZoneID)
	etaScore := 1 - min1(float64(etaMin)/w.MaxETAMinutes)

	headingBonus := 0.0
	if in.HeadingDeg >= 0 && in.PickupBearingDeg >= 0 {
		diff := geo.AngularDiffDeg(in.HeadingDeg, in.PickupBearingDeg)
		switch {
		case diff < 45:
			headingBonus = 0.05
		case diff < 90:
			headingBonus = 0.02
		}
	}

	gpsPenalty := 1.0
	switch {
	case in.GPSAccuracyM > 100:
		gpsPenalty = 0.95
	case in.GPSAccuracyM > 50:
		gpsPenalty = 0.98
	}

	spoofPenalty := 1 - 0.6*in.SpoofRisk

	final := (w.Distance*distScore +
		w.Fairness*fairnessScore +
		w.Idle*idleBonus +
		w.Reliability*reliabilityScore +
		w.ETA*etaScore +
		headingBonus) * gpsPenalty * spoofPenalty

	return clamp01(final)
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
