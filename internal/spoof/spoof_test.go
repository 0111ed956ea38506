package spoof

import (
	"testing"
	"time"

	"github.com/fleetcore/dispatch/internal/domain/models"
)

func TestEvaluateNoPriorSampleOnlyChecksStaleness(t *testing.T) {
	d := New()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	current := models.LocationSample{Lat: 1, Lon: 1, TS: now}

	risk, flags := d.Evaluate(models.LocationSample{}, current, false, now)
	if risk != 0 || len(flags) != 0 {
		t.Fatalf("expected zero risk for a fresh first sample, got risk=%f flags=%v", risk, flags)
	}
}

func TestEvaluateFlagsStaleLocation(t *testing.T) {
	d := New()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	current := models.LocationSample{Lat: 1, Lon: 1, TS: now.Add(-30 * time.Second)}

	risk, flags := d.Evaluate(models.LocationSample{}, current, false, now)
	if risk <= 0 || !containsFlag(flags, FlagStaleLocation) {
		t.Fatalf("expected stale_location flag, got risk=%f flags=%v", risk, flags)
	}
}

func TestEvaluateFlagsImplausibleSpeed(t *testing.T) {
	d := New()
	now := time.Date(2026, 1, 1, 12, 0, 1, 0, time.UTC)
	prev := models.LocationSample{Lat: 43.2380, Lon: 76.9452, TS: now.Add(-1 * time.Second)}
	// roughly 5km away one second later => well above any plausible speed
	current := models.LocationSample{Lat: 43.2830, Lon: 76.9452, TS: now}

	risk, flags := d.Evaluate(prev, current, true, now)
	if risk <= 0 || !containsFlag(flags, FlagSpeedHigh) {
		t.Fatalf("expected speed_high flag, got risk=%f flags=%v", risk, flags)
	}
}

func TestEvaluateFlagsStaticCoordsOverLongGap(t *testing.T) {
	d := New()
	now := time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC)
	prev := models.LocationSample{Lat: 43.2380, Lon: 76.9452, TS: now.Add(-90 * time.Second)}
	current := models.LocationSample{Lat: 43.2380, Lon: 76.9452, TS: now}

	risk, flags := d.Evaluate(prev, current, true, now)
	if risk <= 0 || !containsFlag(flags, FlagStaticCoords) {
		t.Fatalf("expected static_coords flag, got risk=%f flags=%v", risk, flags)
	}
}

func TestEvaluatePlausibleMotionStaysClean(t *testing.T) {
	d := New()
	now := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)
	prev := models.LocationSample{Lat: 43.2380, Lon: 76.9452, TS: now.Add(-30 * time.Second)}
	current := models.LocationSample{Lat: 43.2390, Lon: 76.9460, TS: now}

	risk, flags := d.Evaluate(prev, current, true, now)
	if risk != 0 || len(flags) != 0 {
		t.Fatalf("expected clean evaluation for plausible motion, got risk=%f flags=%v", risk, flags)
	}
}

func containsFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
