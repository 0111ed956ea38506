package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	wrap "github.com/fleetcore/dispatch/pkg/logger/wrapper"
)

// ErrLocationNotFound is returned by a Geocoder when a query resolves to no
// usable result.
var ErrLocationNotFound = fmt.Errorf("location not found")

// Geocoder resolves free-text addresses to coordinates when a Job arrives
// with invalid/zero pickup or dropoff coordinates (§4.2 scenario 6).
// regionHint is an ISO country code inferred from the caller's phone
// number, used to bias ambiguous matches; empty when unavailable.
type Geocoder interface {
	Resolve(ctx context.Context, addressText, regionHint string) (lat, lon float64, err error)
}

// LocationIQGeocoder is the forward-geocoding adapter, shaped on the
// reverse-geocoding client the teacher ships for its own address lookups.
type LocationIQGeocoder struct {
	apiKey string
	domain string
	client *http.Client
}

func NewLocationIQGeocoder(apiKey string) *LocationIQGeocoder {
	return &LocationIQGeocoder{
		apiKey: apiKey,
		domain: "https://us1.locationiq.com",
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *LocationIQGeocoder) Resolve(ctx context.Context, addressText, regionHint string) (float64, float64, error) {
	const op = "LocationIQGeocoder.Resolve"
	ctx = wrap.WithAction(ctx, "locationiq_forward_geocode")

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("q", addressText)
	q.Set("format", "json")
	if regionHint != "" {
		q.Set("countrycodes", regionHint)
	}

	reqURL := fmt.Sprintf("%s/v1/search?%s", c.domain, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, 0, wrap.Error(ctx, fmt.Errorf("%s: build request: %w", op, err))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, 0, wrap.Error(ctx, fmt.Errorf("%s: request failed: %w", op, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, wrap.Error(ctx, fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode))
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return 0, 0, wrap.Error(ctx, fmt.Errorf("%s: decode response: %w", op, err))
	}
	if len(results) == 0 {
		return 0, 0, wrap.Error(ctx, ErrLocationNotFound)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return 0, 0, wrap.Error(ctx, fmt.Errorf("%s: parse lat: %w", op, err))
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return 0, 0, wrap.Error(ctx, fmt.Errorf("%s: parse lon: %w", op, err))
	}

	return lat, lon, nil
}

// StaticFallbackGeocoder returns a fixed coordinate regardless of input,
// used as the configured "city centre" default when the real geocoder
// fails or is unset (§4.2: "On geocoding failure both sides fall back to
// configured defaults").
type StaticFallbackGeocoder struct {
	Lat, Lon float64
}

func (s StaticFallbackGeocoder) Resolve(_ context.Context, _, _ string) (float64, float64, error) {
	return s.Lat, s.Lon, nil
}
