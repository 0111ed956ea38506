package geo

import "github.com/uber/h3-go/v4"

// CellResolution is the H3 resolution used to bucket driver locations for
// O(1) radius pre-filtering (~5.2 km^2 cells at res 7) before the exact
// haversine check that follows in the auction's candidate scan.
const CellResolution = 7

// Cell returns the H3 cell index string for a coordinate, empty on error.
func Cell(lat, lon float64) string {
	c, err := h3.LatLngToCell(h3.NewLatLng(lat, lon), CellResolution)
	if err != nil {
		return ""
	}
	return c.String()
}

// CellsWithinRadius returns the set of H3 cell indexes whose disk around the
// origin coordinate is guaranteed to cover radiusKm, used to pre-filter the
// driver table before falling back to exact haversine distance.
func CellsWithinRadius(lat, lon, radiusKm float64) map[string]struct{} {
	origin, err := h3.LatLngToCell(h3.NewLatLng(lat, lon), CellResolution)
	if err != nil {
		return nil
	}

	edgeKm := approxEdgeLengthKm(CellResolution)
	if edgeKm <= 0 {
		edgeKm = 1.2
	}
	k := int(radiusKm/edgeKm) + 1

	disk, err := h3.GridDisk(origin, k)
	if err != nil {
		return nil
	}

	out := make(map[string]struct{}, len(disk))
	for _, c := range disk {
		out[c.String()] = struct{}{}
	}
	return out
}

// approxEdgeLengthKm is the average H3 hexagon edge length at a resolution,
// used only to size the disk radius k — a coarse index, not a distance
// authority (the haversine check downstream is authoritative).
func approxEdgeLengthKm(res int) float64 {
	// Average edge lengths per Uber's published H3 table, resolutions 0-10.
	lengths := []float64{
		1107.71, 418.68, 158.24, 59.81, 22.61, 8.54, 3.23, 1.22, 0.461, 0.174, 0.0659,
	}
	if res < 0 || res >= len(lengths) {
		return 0
	}
	return lengths[res]
}
