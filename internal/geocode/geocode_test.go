package geocode

import (
	"context"
	"errors"
	"testing"
)

func TestBuildQueryOrdersMostSpecificFirst(t *testing.T) {
	q := BuildQuery("Казахстан", "Астана", "ул. Абая", "10")
	if q != "10, ул. Абая, Астана, Казахстан" {
		t.Fatalf("unexpected query: %s", q)
	}
}

func TestBuildQuerySkipsPlaceholders(t *testing.T) {
	q := BuildQuery("Казахстан", "nan", "", "NaN")
	if q != "Казахстан" {
		t.Fatalf("unexpected query: %s", q)
	}
	if BuildQuery("nan", "", "-", "none") != "" {
		t.Fatalf("expected empty query for all-placeholder input")
	}
}

func TestCleanCityCompositeName(t *testing.T) {
	if got := CleanCity("Косшы / Астана"); got != "Косшы" {
		t.Fatalf("unexpected city: %s", got)
	}
	if got := CleanCity("Алматы"); got != "Алматы" {
		t.Fatalf("unexpected city: %s", got)
	}
}

type stubGeocoder struct {
	answers map[string][2]float64
	calls   []string
}

func (s *stubGeocoder) Geocode(ctx context.Context, query string) (float64, float64, error) {
	s.calls = append(s.calls, query)
	if c, ok := s.answers[query]; ok {
		return c[0], c[1], nil
	}
	return 0, 0, ErrNotFound
}

func TestResolveAddressFullHit(t *testing.T) {
	g := &stubGeocoder{answers: map[string][2]float64{
		"10, ул. Абая, Астана, Казахстан": {51.1, 71.4},
	}}
	lat, lon, ok := ResolveAddress(context.Background(), g, "Казахстан", "Астана", "ул. Абая", "10")
	if !ok || lat != 51.1 || lon != 71.4 {
		t.Fatalf("expected hit, got %f %f %v", lat, lon, ok)
	}
	if len(g.calls) != 1 {
		t.Fatalf("expected 1 call, got %v", g.calls)
	}
}

func TestResolveAddressCityCountryFallback(t *testing.T) {
	g := &stubGeocoder{answers: map[string][2]float64{
		"Астана, Казахстан": {51.1, 71.4},
	}}
	lat, _, ok := ResolveAddress(context.Background(), g, "Казахстан", "Астана", "несуществующая улица", "99")
	if !ok || lat != 51.1 {
		t.Fatalf("expected fallback hit, got ok=%v lat=%f", ok, lat)
	}
	if len(g.calls) != 2 {
		t.Fatalf("expected full then reduced query, got %v", g.calls)
	}
}

func TestResolveAddressMissIsNotAnError(t *testing.T) {
	g := &stubGeocoder{}
	_, _, ok := ResolveAddress(context.Background(), g, "Казахстан", "Астана", "", "")
	if ok {
		t.Fatalf("expected miss")
	}
}

type failingGeocoder struct{}

func (failingGeocoder) Geocode(ctx context.Context, query string) (float64, float64, error) {
	return 0, 0, errors.New("service unavailable")
}

func TestResolveAddressServiceErrorRecovered(t *testing.T) {
	_, _, ok := ResolveAddress(context.Background(), failingGeocoder{}, "Казахстан", "Астана", "ул. Абая", "10")
	if ok {
		t.Fatalf("service errors must yield absent coordinates, not a hit")
	}
}
