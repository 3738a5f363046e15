package routing

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/fire-routing/backend/internal/geo"
)

// homeAliases are the accepted spellings of the home country. Placeholder
// values mean "unknown" and are treated as domestic, not foreign.
var homeAliases = map[string]struct{}{
	"казахстан":            {},
	"республика казахстан": {},
	"kazakhstan":           {},
	"kz":                   {},
}

var placeholders = map[string]struct{}{
	"": {}, "nan": {}, "none": {}, "null": {}, "-": {},
}

// IsForeign reports whether the client country is outside the home country.
func IsForeign(country string) bool {
	v := strings.ToLower(strings.TrimSpace(country))
	if _, ok := placeholders[v]; ok {
		return false
	}
	_, home := homeAliases[v]
	return !home
}

// Resolver picks the office a ticket is routed to: the nearest office when
// client coordinates are usable, otherwise one of two fallback offices in
// strict alternation.
type Resolver struct {
	Fallbacks [2]string
	State     *FairnessState
	Logger    zerolog.Logger
}

// Resolve returns the office for the given client. Foreign clients always go
// through the fallback rotation, even when coordinates are known.
func (r *Resolver) Resolve(lat, lon *float64, country string, ix *geo.Index) string {
	if lat == nil || lon == nil || IsForeign(country) {
		return r.fallback()
	}

	ranked := ix.Nearest(*lat, *lon)
	if len(ranked) == 0 {
		return r.fallback()
	}
	return ranked[0]
}

func (r *Resolver) fallback() string {
	office := r.Fallbacks[r.State.NextFallback(len(r.Fallbacks))]
	r.Logger.Info().Str("office", office).Msg("fallback office rotation")
	return office
}
