package geo

import (
	"math"
	"testing"
)

func TestHaversineKmZeroForSamePoint(t *testing.T) {
	if d := HaversineKm(51.5, -0.1, 51.5, -0.1); d != 0 {
		t.Fatalf("expected 0km for identical points, got %f", d)
	}
}

func TestHaversineKmKnownDistance(t *testing.T) {
	// London to Paris is roughly 344km great-circle.
	d := HaversineKm(51.5074, -0.1278, 48.8566, 2.3522)
	if d < 330 || d > 360 {
		t.Fatalf("expected London-Paris distance near 344km, got %f", d)
	}
}

func TestBearingDegNorthIsZero(t *testing.T) {
	b := BearingDeg(51.0, 0, 52.0, 0)
	if math.Abs(b) > 1 {
		t.Fatalf("expected due-north bearing near 0, got %f", b)
	}
}

func TestBearingDegEastIsNinety(t *testing.T) {
	b := BearingDeg(51.0, 0, 51.0, 1)
	if math.Abs(b-90) > 1 {
		t.Fatalf("expected due-east bearing near 90, got %f", b)
	}
}

func TestValidCoordsRejectsZeroZero(t *testing.T) {
	if ValidCoords(0, 0) {
		t.Fatal("expected (0,0) to be treated as invalid/unset")
	}
}

func TestValidCoordsRejectsOutsideUKBoundingBox(t *testing.T) {
	if ValidCoords(40.7, -74.0) {
		t.Fatal("expected New York coordinates to be outside the serviceable box")
	}
}

func TestValidCoordsAcceptsWithinUK(t *testing.T) {
	if !ValidCoords(51.5074, -0.1278) {
		t.Fatal("expected London coordinates to be valid")
	}
}

func TestValidCoordsRejectsNaNAndInf(t *testing.T) {
	if ValidCoords(math.NaN(), 0) || ValidCoords(0, math.Inf(1)) {
		t.Fatal("expected NaN/Inf coordinates to be rejected")
	}
}

func TestAngularDiffDegWrapsAt180(t *testing.T) {
	if d := AngularDiffDeg(350, 10); d != 20 {
		t.Fatalf("expected wrapped difference of 20, got %f", d)
	}
	if d := AngularDiffDeg(0, 180); d != 180 {
		t.Fatalf("expected maximum difference of 180, got %f", d)
	}
}

func TestCellIsStableForSameCoordinate(t *testing.T) {
	a := Cell(51.5074, -0.1278)
	b := Cell(51.5074, -0.1278)
	if a == "" || a != b {
		t.Fatalf("expected a stable non-empty cell id, got %q vs %q", a, b)
	}
}

func TestCellsWithinRadiusIncludesOrigin(t *testing.T) {
	origin := Cell(51.5074, -0.1278)
	disk := CellsWithinRadius(51.5074, -0.1278, 2)
	if _, ok := disk[origin]; !ok {
		t.Fatalf("expected the origin cell to be part of its own radius disk")
	}
}

func TestCellsWithinRadiusGrowsWithRadius(t *testing.T) {
	small := CellsWithinRadius(51.5074, -0.1278, 1)
	large := CellsWithinRadius(51.5074, -0.1278, 20)
	if len(large) <= len(small) {
		t.Fatalf("expected a larger radius to cover more cells: small=%d large=%d", len(small), len(large))
	}
}
