package ingest

import "encoding/json"

// RawJobMessage is the canonical wire shape from §6: every job-carrying
// message accepts both the primary and legacy field name for a given
// semantic. Fields are pointers/RawMessage where the wire may omit them or
// vary in type (passengers as int or string).
type RawJobMessage struct {
	Job         string `json:"job"`
	JobIDLegacy string `json:"jobId"`

	Lat             *float64 `json:"lat"`
	Lng             *float64 `json:"lng"`
	PickupLatLegacy *float64 `json:"pickupLat"`
	PickupLngLegacy *float64 `json:"pickupLng"`

	PickupAddress string `json:"pickupAddress"`
	PickupLegacy  string `json:"pickup"`
	PubNameLegacy string `json:"pubName"`

	Dropoff           string   `json:"dropoff"`
	DropoffNameLegacy string   `json:"dropoffName"`
	DropoffLat        *float64 `json:"dropoffLat"`
	DropoffLng        *float64 `json:"dropoffLng"`

	Passengers json.RawMessage `json:"passengers"`

	BiddingWindowSec *int `json:"biddingWindowSec"`

	CustomerName      string `json:"customerName"`
	CustomerPhone     string `json:"customerPhone"`
	CallerNameLegacy  string `json:"callerName"`
	CallerPhoneLegacy string `json:"callerPhone"`

	Fare                string `json:"fare"`
	EstimatedFareLegacy string `json:"estimatedFare"`

	Notes                     string `json:"notes"`
	SpecialRequirementsLegacy string `json:"specialRequirements"`

	Temp1 string `json:"temp1"`
	Temp2 string `json:"temp2"`
	Temp3 string `json:"temp3"`

	TimestampMS  int64  `json:"timestamp"`
	DispatcherID string `json:"dispatcherId"`
	Version      int    `json:"version"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstFloat(values ...*float64) (float64, bool) {
	for _, v := range values {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

func parsePassengersField(raw json.RawMessage) (int, string) {
	if len(raw) == 0 {
		return 1, ""
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		if n <= 0 {
			return 1, ""
		}
		return n, ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parsePassengers(s)
	}
	return 1, ""
}
