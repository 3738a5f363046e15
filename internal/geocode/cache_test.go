package geocode

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fire-routing/backend/internal/models"
)

func TestOfficeCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "units_coords_cache.json")
	lat, lon := 51.1605, 71.4704
	cache := OfficeCache{
		"ASTANA":   {&lat, &lon},
		"SHYMKENT": {nil, nil},
	}
	if err := cache.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadOfficeCache(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got, ok := loaded["ASTANA"]
	if !ok || got[0] == nil || *got[0] != lat {
		t.Fatalf("unexpected ASTANA entry: %v", got)
	}
	miss, ok := loaded["SHYMKENT"]
	if !ok || miss[0] != nil || miss[1] != nil {
		t.Fatalf("expected explicit unresolved marker, got %v", miss)
	}
}

func TestResolveOfficesUsesCompleteCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	lat, lon := 51.1605, 71.4704
	cache := OfficeCache{"ASTANA": {&lat, &lon}}
	if err := cache.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	g := &stubGeocoder{}
	offices := []models.Office{{ID: "astana", Name: "ASTANA", Address: "пр. Мәңгілік Ел 55"}}
	out, err := ResolveOffices(context.Background(), g, offices, "Казахстан", path, zerolog.Nop())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(g.calls) != 0 {
		t.Fatalf("complete cache must skip geocoding, got calls %v", g.calls)
	}
	if !out[0].HasCoords() || *out[0].Lat != lat {
		t.Fatalf("expected cached coordinates, got %+v", out[0])
	}
}

func TestResolveOfficesIncompleteCacheRegeocodesAndRewrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	g := &stubGeocoder{answers: map[string][2]float64{
		"пр. Мәңгілік Ел 55, ASTANA, Казахстан": {51.1, 71.4},
	}}
	offices := []models.Office{
		{ID: "astana", Name: "ASTANA", Address: "пр. Мәңгілік Ел 55"},
		{ID: "nowhere", Name: "NOWHERE", Address: "n/a"},
	}
	out, err := ResolveOffices(context.Background(), g, offices, "Казахстан", path, zerolog.Nop())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !out[0].HasCoords() {
		t.Fatalf("expected ASTANA resolved")
	}
	if out[1].HasCoords() {
		t.Fatalf("expected NOWHERE unresolved")
	}

	loaded, err := LoadOfficeCache(path)
	if err != nil {
		t.Fatalf("cache must be rewritten: %v", err)
	}
	if !loaded.Covers(offices) {
		t.Fatalf("rewritten cache must cover all offices")
	}
}
