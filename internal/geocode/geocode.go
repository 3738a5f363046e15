package geocode

import (
	"context"
	"errors"
	"strings"
)

var ErrNotFound = errors.New("geocode not found")

type Geocoder interface {
	Geocode(ctx context.Context, query string) (lat float64, lon float64, err error)
}

// placeholder values that mean "no data" in the source tables.
func isBlank(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "" || v == "nan" || v == "none" || v == "null" || v == "-"
}

// CleanCity strips composite settlement names like "Косшы / Астана" down to
// the first component.
func CleanCity(city string) string {
	if i := strings.Index(city, "/"); i >= 0 {
		city = city[:i]
	}
	return strings.TrimSpace(city)
}

// BuildQuery assembles a free-text address, most specific part first.
// Blank and placeholder parts are skipped. Returns "" when nothing usable
// remains.
func BuildQuery(country, city, street, house string) string {
	city = CleanCity(city)
	parts := make([]string, 0, 4)
	for _, p := range []string{house, street, city, country} {
		if !isBlank(p) {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	return strings.Join(parts, ", ")
}

// ResolveAddress geocodes an address with a specificity fallback: the full
// address first, then city+country. Any service error or miss yields
// ok=false; the caller treats that as absent coordinates, never as a
// failure.
func ResolveAddress(ctx context.Context, g Geocoder, country, city, street, house string) (lat, lon float64, ok bool) {
	full := BuildQuery(country, city, street, house)
	if full == "" {
		return 0, 0, false
	}

	lat, lon, err := g.Geocode(ctx, full)
	if err == nil {
		return lat, lon, true
	}

	reduced := BuildQuery(country, city, "", "")
	if reduced == "" || reduced == full {
		return 0, 0, false
	}
	lat, lon, err = g.Geocode(ctx, reduced)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}
