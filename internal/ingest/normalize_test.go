package ingest

import (
	"testing"

	"github.com/fleetcore/dispatch/internal/domain/types"
)

func TestParseDecimalStripsCurrencyAndSeparators(t *testing.T) {
	cases := map[string]float64{
		"£12.50": 12.50,
		"$1,200": 1200,
		"€7":     7,
		"  9.5 ": 9.5,
	}
	for raw, want := range cases {
		got, ok := parseDecimal(raw)
		if !ok || got != want {
			t.Fatalf("parseDecimal(%q) = %v, %v; want %v, true", raw, got, ok, want)
		}
	}
}

func TestParseDecimalRejectsEmptyAndGarbage(t *testing.T) {
	if _, ok := parseDecimal(""); ok {
		t.Fatal("expected empty string to fail to parse")
	}
	if _, ok := parseDecimal("not a number"); ok {
		t.Fatal("expected non-numeric string to fail to parse")
	}
}

func TestParsePassengersExtractsLeadingCount(t *testing.T) {
	n, detail := parsePassengers("3 plus luggage")
	if n != 3 || detail != "3 plus luggage" {
		t.Fatalf("parsePassengers = %d, %q; want 3, the original string", n, detail)
	}
}

func TestParsePassengersDefaultsWhenNoLeadingDigits(t *testing.T) {
	n, detail := parsePassengers("family of four")
	if n != 1 || detail != "family of four" {
		t.Fatalf("parsePassengers = %d, %q; want 1, original string", n, detail)
	}
}

func TestParsePassengersRejectsZeroOrNegative(t *testing.T) {
	n, _ := parsePassengers("0 passengers")
	if n != 1 {
		t.Fatalf("expected a non-positive headcount to fall back to 1, got %d", n)
	}
}

func TestClampBiddingWindowDefaultsWhenAbsent(t *testing.T) {
	if got := clampBiddingWindow(0, false); got != defaultBiddingWindowSeconds {
		t.Fatalf("expected default %d, got %d", defaultBiddingWindowSeconds, got)
	}
}

func TestClampBiddingWindowEnforcesBounds(t *testing.T) {
	if got := clampBiddingWindow(1, true); got != minBiddingWindowSeconds {
		t.Fatalf("expected clamp to min %d, got %d", minBiddingWindowSeconds, got)
	}
	if got := clampBiddingWindow(999, true); got != maxBiddingWindowSeconds {
		t.Fatalf("expected clamp to max %d, got %d", maxBiddingWindowSeconds, got)
	}
	if got := clampBiddingWindow(45, true); got != 45 {
		t.Fatalf("expected an in-range value to pass through unchanged, got %d", got)
	}
}

func TestExpansionFieldsParsesKnownKeys(t *testing.T) {
	temps := []string{"priority:high", "payment:card", "vehicle:mpv"}
	priority, payment, vehicle := expansionFields(temps)
	if priority == nil || *priority != "high" {
		t.Fatalf("expected priority=high, got %v", priority)
	}
	if payment == nil || *payment != "card" {
		t.Fatalf("expected payment=card, got %v", payment)
	}
	if vehicle == nil || *vehicle != types.ClassMPV {
		t.Fatalf("expected vehicle override MPV, got %v", vehicle)
	}
}

func TestExpansionFieldsIgnoresUnrecognizedKeysAndMalformed(t *testing.T) {
	priority, payment, vehicle := expansionFields([]string{"foo:bar", "no colon here", ""})
	if priority != nil || payment != nil || vehicle != nil {
		t.Fatalf("expected no overrides from unrecognized input, got %v %v %v", priority, payment, vehicle)
	}
}
