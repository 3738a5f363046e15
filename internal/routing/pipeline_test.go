package routing

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fire-routing/backend/internal/classify"
	"github.com/fire-routing/backend/internal/geocode"
	"github.com/fire-routing/backend/internal/models"
)

// cannedOracle returns one fixed completion per call, cycling through the
// list, so each ticket in a batch gets a predictable classification.
type cannedOracle struct {
	responses []string
	errs      []error
	calls     int
}

func (o *cannedOracle) Complete(_ context.Context, _ classify.Request) (string, error) {
	i := o.calls % len(o.responses)
	o.calls++
	if o.errs != nil && o.errs[i] != nil {
		return "", o.errs[i]
	}
	return o.responses[i], nil
}

// fixedGeocoder resolves every query to one point.
type fixedGeocoder struct {
	lat, lon float64
	err      error
}

func (g fixedGeocoder) Geocode(_ context.Context, _ string) (float64, float64, error) {
	if g.err != nil {
		return 0, 0, g.err
	}
	return g.lat, g.lon, nil
}

func newPipeline(oracle classify.Oracle, g geocode.Geocoder) *Pipeline {
	state := NewFairnessState()
	return &Pipeline{
		Classifier: &classify.Client{Oracle: oracle, Logger: zerolog.Nop()},
		Geocoder:   g,
		Resolver: &Resolver{
			Fallbacks: [2]string{"ASTANA", "ALMATY"},
			State:     state,
			Logger:    zerolog.Nop(),
		},
		Engine: NewEngine(state, []models.Manager{
			{ID: "alm-1", Name: "Алия", Office: "ALMATY", Role: "Специалист", Skills: []string{"RU", "KZ", "ENG", "VIP"}},
			{ID: "ast-1", Name: "Борис", Office: "ASTANA", Role: "Глав спец", Skills: []string{"RU", "KZ", "ENG", "VIP"}},
		}, zerolog.Nop()),
		Index:  officeIndex(),
		Logger: zerolog.Nop(),
	}
}

func TestRouteAssignsNearestOffice(t *testing.T) {
	oracle := &cannedOracle{responses: []string{
		`{"type":"Консультация","sentiment":"Нейтральная","priority":3,"language":"RU","summary":"Вопрос по тарифам."}`,
	}}
	p := newPipeline(oracle, fixedGeocoder{lat: 43.25, lon: 76.9}) // Almaty

	result, trace := p.Route(context.Background(), models.Ticket{
		ID: "t1", Segment: "Mass", Country: "Казахстан", City: "Алматы", Message: "Какие у вас тарифы?",
	})

	if result.ClassifyError != "" {
		t.Fatalf("unexpected classification error: %s", result.ClassifyError)
	}
	if result.Classification == nil || result.Classification.Category != models.CategoryConsultation {
		t.Fatalf("expected consultation classification, got %+v", result.Classification)
	}
	if result.Office == nil || *result.Office != "ALMATY" {
		t.Fatalf("expected nearest office ALMATY, got %v", result.Office)
	}
	if result.ManagerID == nil || *result.ManagerID != "alm-1" {
		t.Fatalf("expected the Almaty manager, got %v", result.ManagerID)
	}
	if trace.CrossOffice {
		t.Fatalf("in-office assignment must not be flagged cross-office")
	}
}

func TestRouteSpamSkipsGeocodingAndAssignment(t *testing.T) {
	oracle := &cannedOracle{responses: []string{
		`{"type":"Спам","sentiment":"Нейтральная","priority":1,"language":"RU","summary":"Рекламная рассылка."}`,
	}}
	geocodeCalled := false
	g := geocoderFunc(func(ctx context.Context, q string) (float64, float64, error) {
		geocodeCalled = true
		return 0, 0, geocode.ErrNotFound
	})
	p := newPipeline(oracle, g)

	result, _ := p.Route(context.Background(), models.Ticket{
		ID: "t2", Segment: "Mass", Country: "Казахстан", City: "Алматы", Message: "Выиграйте миллион!",
	})

	if result.Classification == nil || result.Classification.Category != models.CategorySpam {
		t.Fatalf("spam classification must be recorded, got %+v", result.Classification)
	}
	if result.Office != nil || result.Manager != nil {
		t.Fatalf("spam must not be routed, got office=%v manager=%v", result.Office, result.Manager)
	}
	if geocodeCalled {
		t.Fatalf("spam must skip geocoding")
	}
}

type geocoderFunc func(ctx context.Context, query string) (float64, float64, error)

func (f geocoderFunc) Geocode(ctx context.Context, query string) (float64, float64, error) {
	return f(ctx, query)
}

func TestRouteClassificationFailureProducesRow(t *testing.T) {
	oracle := &cannedOracle{responses: []string{"not json at all"}}
	p := newPipeline(oracle, fixedGeocoder{lat: 43.25, lon: 76.9})

	result, _ := p.Route(context.Background(), models.Ticket{
		ID: "t3", Segment: "Mass", Country: "Казахстан", Message: "hello",
	})

	if result.ClassifyError == "" {
		t.Fatalf("expected classification error recorded in the row")
	}
	if result.Classification != nil {
		t.Fatalf("failed classification must leave the field nil, got %+v", result.Classification)
	}
	if result.Office != nil || result.Manager != nil {
		t.Fatalf("failed classification must skip routing, got office=%v manager=%v", result.Office, result.Manager)
	}
}

func TestRouteUnresolvedAddressFallsBack(t *testing.T) {
	oracle := &cannedOracle{responses: []string{
		`{"type":"Жалоба","sentiment":"Негативная","priority":7,"language":"RU","summary":"Клиент недоволен."}`,
	}}
	p := newPipeline(oracle, fixedGeocoder{err: geocode.ErrNotFound})

	result, _ := p.Route(context.Background(), models.Ticket{
		ID: "t4", Segment: "Mass", Country: "Казахстан", City: "Неизвестный город", Message: "Очень плохо работаете.",
	})

	if result.ClientLat != nil || result.ClientLon != nil {
		t.Fatalf("unresolved address must leave coordinates nil")
	}
	if result.Office == nil || *result.Office != "ASTANA" {
		t.Fatalf("first fallback pick must be ASTANA, got %v", result.Office)
	}
}

func TestRouteTruncatesLongDescription(t *testing.T) {
	long := ""
	for i := 0; i < 200; i++ {
		long += "ж"
	}
	oracle := &cannedOracle{responses: []string{
		`{"type":"Консультация","sentiment":"Нейтральная","priority":2,"language":"RU","summary":"ok"}`,
	}}
	p := newPipeline(oracle, fixedGeocoder{lat: 51.1, lon: 71.4})

	result, _ := p.Route(context.Background(), models.Ticket{ID: "t5", Segment: "Mass", Country: "Казахстан", Message: long})

	runes := []rune(result.Description)
	if len(runes) != descriptionLimit+3 {
		t.Fatalf("expected %d runes plus ellipsis, got %d", descriptionLimit, len(runes))
	}
	if string(runes[len(runes)-3:]) != "..." {
		t.Fatalf("truncated description must end with ellipsis, got %q", result.Description)
	}
}

func TestRunAggregatesSummary(t *testing.T) {
	oracle := &cannedOracle{responses: []string{
		`{"type":"Консультация","sentiment":"Нейтральная","priority":3,"language":"RU","summary":"ok"}`,
		`{"type":"Спам","sentiment":"Нейтральная","priority":1,"language":"RU","summary":"spam"}`,
		"garbage",
	}}
	// The malformed response is retried; pad the cycle so every retry of
	// ticket three also fails.
	oracle.responses = append(oracle.responses, "garbage", "garbage")
	p := newPipeline(oracle, fixedGeocoder{lat: 43.25, lon: 76.9})

	tickets := []models.Ticket{
		{ID: "t1", Segment: "Mass", Country: "Казахстан", Message: "Вопрос"},
		{ID: "t2", Segment: "Mass", Country: "Казахстан", Message: "Реклама"},
		{ID: "t3", Segment: "Mass", Country: "Казахстан", Message: "Сломалось"},
	}
	results, summary := p.Run(context.Background(), tickets)

	if len(results) != 3 {
		t.Fatalf("every ticket must produce a row, got %d", len(results))
	}
	if summary.Processed != 3 {
		t.Fatalf("expected 3 processed, got %d", summary.Processed)
	}
	if summary.Assigned != 1 || summary.Spam != 1 || summary.ClassifyErrors != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.GeoResolved != 1 {
		t.Fatalf("only the assigned ticket is geocoded, got %d", summary.GeoResolved)
	}
}
