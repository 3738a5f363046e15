package geocode

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rs/zerolog"

	"github.com/fire-routing/backend/internal/models"
)

// OfficeCache maps office name to a [lat, lon] pair. A pair of nulls is an
// explicit "unresolved" marker, so a cached miss does not trigger another
// geocode on the next run.
type OfficeCache map[string][2]*float64

func LoadOfficeCache(path string) (OfficeCache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cache OfficeCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return cache, nil
}

func (c OfficeCache) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Covers reports whether every office has a cache entry (resolved or not).
func (c OfficeCache) Covers(offices []models.Office) bool {
	for _, o := range offices {
		if _, ok := c[o.Name]; !ok {
			return false
		}
	}
	return true
}

func (c OfficeCache) apply(offices []models.Office) []models.Office {
	out := make([]models.Office, len(offices))
	copy(out, offices)
	for i := range out {
		if pair, ok := c[out[i].Name]; ok {
			out[i].Lat = pair[0]
			out[i].Lon = pair[1]
		}
	}
	return out
}

// ResolveOffices fills office coordinates, reading the write-through cache
// file first. An incomplete or unreadable cache triggers a full re-geocode
// and a single rewrite of the file. Unresolvable offices keep nil
// coordinates; the error return covers only the cache write.
func ResolveOffices(ctx context.Context, g Geocoder, offices []models.Office, country, cachePath string, logger zerolog.Logger) ([]models.Office, error) {
	if cachePath != "" {
		if cache, err := LoadOfficeCache(cachePath); err == nil && cache.Covers(offices) {
			logger.Info().Str("path", cachePath).Msg("office coordinates loaded from cache")
			return cache.apply(offices), nil
		}
	}

	logger.Info().Int("offices", len(offices)).Msg("geocoding offices")
	cache := OfficeCache{}
	out := make([]models.Office, len(offices))
	copy(out, offices)
	for i := range out {
		lat, lon, ok := ResolveAddress(ctx, g, country, out[i].Name, out[i].Address, "")
		if ok {
			out[i].Lat = &lat
			out[i].Lon = &lon
			cache[out[i].Name] = [2]*float64{&lat, &lon}
		} else {
			logger.Warn().Str("office", out[i].Name).Str("address", out[i].Address).Msg("office address not resolved")
			out[i].Lat = nil
			out[i].Lon = nil
			cache[out[i].Name] = [2]*float64{nil, nil}
		}
	}

	if cachePath != "" {
		if err := cache.Save(cachePath); err != nil {
			return out, err
		}
		logger.Info().Str("path", cachePath).Msg("office coordinate cache written")
	}
	return out, nil
}
