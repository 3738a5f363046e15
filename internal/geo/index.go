package geo

import (
	"math"
	"sort"

	"github.com/fire-routing/backend/internal/models"
)

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance between two points given in
// degrees, using the haversine formula.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLon := degreesToRadians(lon2 - lon1)

	lat1R := degreesToRadians(lat1)
	lat2R := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1R)*math.Cos(lat2R)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func degreesToRadians(d float64) float64 {
	return d * math.Pi / 180
}

// Index ranks offices by proximity. Offices without resolved coordinates are
// kept out of every ranking but remain listed in Names.
type Index struct {
	offices []models.Office
}

func NewIndex(offices []models.Office) *Index {
	return &Index{offices: offices}
}

// Names returns every office name, with or without coordinates.
func (ix *Index) Names() []string {
	out := make([]string, 0, len(ix.offices))
	for _, o := range ix.offices {
		out = append(out, o.Name)
	}
	return out
}

// HasResolved reports whether at least one office has coordinates.
func (ix *Index) HasResolved() bool {
	for _, o := range ix.offices {
		if o.HasCoords() {
			return true
		}
	}
	return false
}

type ranked struct {
	name string
	dist float64
}

// Nearest returns office names sorted ascending by distance from the given
// point. Offices with unresolved coordinates are excluded; the result is
// empty when no office has coordinates.
func (ix *Index) Nearest(lat, lon float64) []string {
	rankedOffices := make([]ranked, 0, len(ix.offices))
	for _, o := range ix.offices {
		if !o.HasCoords() {
			continue
		}
		rankedOffices = append(rankedOffices, ranked{
			name: o.Name,
			dist: DistanceKm(lat, lon, *o.Lat, *o.Lon),
		})
	}
	sort.SliceStable(rankedOffices, func(i, j int) bool {
		return rankedOffices[i].dist < rankedOffices[j].dist
	})
	out := make([]string, 0, len(rankedOffices))
	for _, r := range rankedOffices {
		out = append(out, r.name)
	}
	return out
}
