// Package spoof implements the per-driver rolling GPS plausibility check
// described in §4.5. It is a pure function over two consecutive samples —
// the Store owns the ring buffer, the caller decides what to do with the
// score.
package spoof

import (
	"time"

	"github.com/fleetcore/dispatch/internal/domain/models"
	"github.com/fleetcore/dispatch/internal/geo"
)

const (
	staleAfter           = 20 * time.Second
	speedHighKmh         = 140.0
	speedElevatedKmh     = 110.0
	staticMinDistanceKm  = 0.005
	staticMinGapDuration = 60 * time.Second
)

// Flag names recorded alongside a non-zero risk contribution.
const (
	FlagStaleLocation = "stale_location"
	FlagSpeedHigh     = "speed_high"
	FlagSpeedElevated = "speed_elevated"
	FlagStaticCoords  = "static_coords"
)

// Detector evaluates consecutive location samples for implausible motion.
type Detector struct{}

func New() *Detector { return &Detector{} }

// Evaluate returns a risk in [0,1] and the flags that contributed to it.
// prev may be the zero value when no prior sample exists for the driver.
func (d *Detector) Evaluate(prev, current models.LocationSample, hasPrev bool, now time.Time) (risk float64, flags []string) {
	if now.Sub(current.TS) > staleAfter {
		risk += 0.25
		flags = append(flags, FlagStaleLocation)
	}

	if hasPrev {
		dt := current.TS.Sub(prev.TS)
		if dt < time.Second {
			dt = time.Second
		}
		distanceKm := geo.HaversineKm(prev.Lat, prev.Lon, current.Lat, current.Lon)
		impliedKmh := distanceKm / dt.Hours()

		switch {
		case impliedKmh > speedHighKmh:
			risk += 0.55
			flags = append(flags, FlagSpeedHigh)
		case impliedKmh > speedElevatedKmh:
			risk += 0.35
			flags = append(flags, FlagSpeedElevated)
		}

		if distanceKm < staticMinDistanceKm && dt > staticMinGapDuration {
			risk += 0.10
			flags = append(flags, FlagStaticCoords)
		}
	}

	if risk > 1 {
		risk = 1
	}
	return risk, flags
}
