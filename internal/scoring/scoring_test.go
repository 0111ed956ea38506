package scoring

import (
	"testing"
	"time"

	"github.com/fleetcore/dispatch/internal/domain/models"
	"github.com/fleetcore/dispatch/internal/eta"
)

func TestUtilityCloserDriverScoresHigher(t *testing.T) {
	scorer := New(DefaultWeights(), eta.New())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	near := scorer.Utility(Input{DistanceKm: 1, Stats: models.DriverStats{AcceptRate: 1, AvgRating: 5}, Now: now})
	far := scorer.Utility(Input{DistanceKm: 9, Stats: models.DriverStats{AcceptRate: 1, AvgRating: 5}, Now: now})

	if near <= far {
		t.Fatalf("expected closer driver to score higher: near=%f far=%f", near, far)
	}
}

func TestUtilityReliabilityPenalizesCancellations(t *testing.T) {
	scorer := New(DefaultWeights(), eta.New())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	reliable := models.DriverStats{CompletedJobs: 100, AcceptRate: 1, AvgRating: 5}
	unreliable := models.DriverStats{CompletedJobs: 50, CancelledJobs: 50, AcceptRate: 0.5, AvgRating: 3}

	good := scorer.Utility(Input{DistanceKm: 2, Stats: reliable, Now: now})
	bad := scorer.Utility(Input{DistanceKm: 2, Stats: unreliable, Now: now})

	if good <= bad {
		t.Fatalf("expected reliable driver to outscore unreliable driver: good=%f bad=%f", good, bad)
	}
}

func TestUtilitySpoofRiskPenalizes(t *testing.T) {
	scorer := New(DefaultWeights(), eta.New())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	stats := models.DriverStats{AcceptRate: 1, AvgRating: 5}

	clean := scorer.Utility(Input{DistanceKm: 2, Stats: stats, Now: now, SpoofRisk: 0})
	spoofed := scorer.Utility(Input{DistanceKm: 2, Stats: stats, Now: now, SpoofRisk: 1})

	if spoofed >= clean {
		t.Fatalf("expected spoof risk to reduce utility: clean=%f spoofed=%f", clean, spoofed)
	}
}

func TestUtilityBounded(t *testing.T) {
	scorer := New(DefaultWeights(), eta.New())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	u := scorer.Utility(Input{
		DistanceKm: 1000, Stats: models.DriverStats{AcceptRate: 1, AvgRating: 5},
		Now: now, SpoofRisk: 1, GPSAccuracyM: 500,
	})
	if u < 0 || u > 1 {
		t.Fatalf("utility out of [0,1]: %f", u)
	}
}

func TestUtilityIdleBonusRewardsLongerIdle(t *testing.T) {
	scorer := New(DefaultWeights(), eta.New())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	stats := models.DriverStats{AcceptRate: 1, AvgRating: 5}

	justFinished := scorer.Utility(Input{
		DistanceKm: 2, Stats: stats, Now: now, LastJobCompletedAt: now.Add(-time.Minute),
	})
	idleLong := scorer.Utility(Input{
		DistanceKm: 2, Stats: stats, Now: now, LastJobCompletedAt: now.Add(-45 * time.Minute),
	})

	if idleLong <= justFinished {
		t.Fatalf("expected longer idle time to score higher: justFinished=%f idleLong=%f", justFinished, idleLong)
	}
}
