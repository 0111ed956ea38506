// Package eta provides the pluggable distance-to-minutes model used by the
// Scorer and the Allocator. The default is a simple time-of-day-aware speed
// model; a learned model can be substituted behind the same interface.
package eta

import (
	"math"
	"time"
)

const (
	peakSpeedKmh   = 22.0
	offPeakSpeedKmh = 28.0
	minETAMinutes   = 2
	zoneDiscount    = 0.10
)

// Model predicts minutes to cover a distance, given the current time and an
// optional zone id (e.g. a congestion/traffic zone) that may discount speed.
type Model interface {
	Predict(km float64, now time.Time, zoneID string) int
}

// DefaultModel implements the peak/off-peak speed heuristic from §4.5.
type DefaultModel struct{}

func New() *DefaultModel { return &DefaultModel{} }

func (m *DefaultModel) Predict(km float64, now time.Time, zoneID string) int {
	speed := offPeakSpeedKmh
	hour := now.Hour()
	if (hour >= 7 && hour < 9) || (hour >= 16 && hour < 18) {
		speed = peakSpeedKmh
	}
	if zoneID != "" {
		speed *= 1 - zoneDiscount
	}

	minutes := int(math.Ceil((km / speed) * 60))
	if minutes < minETAMinutes {
		minutes = minETAMinutes
	}
	return minutes
}
