package ingest

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/fleetcore/dispatch/internal/domain/types"
)

var currencySymbols = strings.NewReplacer("£", "", "€", "", "$", "", ",", "")

// parseDecimal strips currency symbols and thousands separators before a
// locale-invariant float parse (§4.2).
func parseDecimal(raw string) (float64, bool) {
	clean := strings.TrimSpace(currencySymbols.Replace(raw))
	if clean == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

var leadingDigits = regexp.MustCompile(`^\s*(\d+)`)

// parsePassengers accepts an int-like value or a descriptive string whose
// leading integer is the headcount; the whole string is preserved as detail.
func parsePassengers(raw string) (count int, detail string) {
	m := leadingDigits.FindStringSubmatch(raw)
	if m == nil {
		return 1, raw
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 1, raw
	}
	return n, raw
}

const (
	minBiddingWindowSeconds = 5
	maxBiddingWindowSeconds = 120
	defaultBiddingWindowSeconds = 30
)

// clampBiddingWindow enforces §4.2's [5,120] bound, defaulting to 30 when
// the source didn't send one.
func clampBiddingWindow(seconds int, present bool) int {
	if !present {
		return defaultBiddingWindowSeconds
	}
	if seconds < minBiddingWindowSeconds {
		return minBiddingWindowSeconds
	}
	if seconds > maxBiddingWindowSeconds {
		return maxBiddingWindowSeconds
	}
	return seconds
}

// expansionFields parses the temp1..temp3 "key:value" slots into the three
// named overrides the spec calls out, ignoring unrecognized keys.
func expansionFields(temps []string) (priority, paymentMethod *string, vehicleOverride *types.VehicleClass) {
	for _, t := range temps {
		parts := strings.SplitN(t, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		if value == "" {
			continue
		}
		switch key {
		case "priority":
			v := value
			priority = &v
		case "payment_method", "payment":
			v := value
			paymentMethod = &v
		case "vehicle_override", "vehicle":
			if vc, ok := types.ParseVehicleClass(value); ok {
				vehicleOverride = &vc
			}
		}
	}
	return
}
