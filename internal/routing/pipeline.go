package routing

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fire-routing/backend/internal/classify"
	"github.com/fire-routing/backend/internal/geo"
	"github.com/fire-routing/backend/internal/geocode"
	"github.com/fire-routing/backend/internal/models"
	"github.com/fire-routing/backend/internal/normalize"
)

const descriptionLimit = 120

// Pipeline routes one ticket end to end: classification, client geocoding,
// office resolution, manager assignment. Tickets are processed sequentially;
// the fairness state and manager loads are owned by a single pipeline at a
// time.
type Pipeline struct {
	Classifier *classify.Client
	Geocoder   geocode.Geocoder
	Resolver   *Resolver
	Engine     *Engine
	Index      *geo.Index
	// AttachmentDir is where ticket attachment references are resolved;
	// missing files degrade to text-only classification.
	AttachmentDir string
	Logger        zerolog.Logger
}

// Route produces exactly one result row for the ticket. Classification
// failure and empty assignment are recorded in the row, never returned as
// errors: a batch must finish every ticket.
func (p *Pipeline) Route(ctx context.Context, t models.Ticket) (models.RouteResult, Trace) {
	result := models.RouteResult{
		TicketID:    t.ID,
		Segment:     normalize.Segment(t.Segment),
		Description: truncateRunes(t.Message, descriptionLimit),
	}

	cls, err := p.Classifier.Classify(ctx, t.Message, p.attachmentPath(t))
	if err != nil {
		if !errors.Is(err, classify.ErrUnavailable) {
			p.Logger.Error().Err(err).Str("ticket", t.ID).Msg("unexpected classification error")
		}
		result.ClassifyError = err.Error()
		return result, Trace{}
	}
	cls.TicketID = t.ID
	result.Classification = &cls

	// Spam is kept for analytics but never routed.
	if cls.Category == models.CategorySpam {
		p.Logger.Info().Str("ticket", t.ID).Msg("spam ticket, skipping assignment")
		return result, Trace{}
	}

	lat, lon, ok := geocode.ResolveAddress(ctx, p.Geocoder, t.Country, t.City, t.Street, t.House)
	var ranking []string
	if ok {
		result.ClientLat = &lat
		result.ClientLon = &lon
		ranking = p.Index.Nearest(lat, lon)
	}

	office := p.Resolver.Resolve(result.ClientLat, result.ClientLon, t.Country, p.Index)
	result.Office = &office

	manager, trace := p.Engine.Assign(AssignRequest{
		Category:        cls.Category,
		Language:        cls.Language,
		Segment:         t.Segment,
		PreferredOffice: office,
		Ranking:         ranking,
	})
	if manager != nil {
		result.Manager = &manager.Name
		result.ManagerID = &manager.ID
	}
	return result, trace
}

type BatchSummary struct {
	Processed      int `json:"processed"`
	Assigned       int `json:"assigned"`
	CrossOffice    int `json:"cross_office"`
	Unassigned     int `json:"unassigned"`
	Spam           int `json:"spam"`
	ClassifyErrors int `json:"classify_errors"`
	GeoResolved    int `json:"geo_resolved"`
}

// Run routes every ticket in order and aggregates counters for the run
// summary. Individual failures never abort the batch.
func (p *Pipeline) Run(ctx context.Context, tickets []models.Ticket) ([]models.RouteResult, BatchSummary) {
	results := make([]models.RouteResult, 0, len(tickets))
	summary := BatchSummary{}

	for i, t := range tickets {
		p.Logger.Info().Int("n", i+1).Int("total", len(tickets)).Str("ticket", t.ID).Msg("routing ticket")
		result, trace := p.Route(ctx, t)
		results = append(results, result)

		summary.Processed++
		switch {
		case result.ClassifyError != "":
			summary.ClassifyErrors++
		case result.Classification.Category == models.CategorySpam:
			summary.Spam++
		case result.Manager != nil:
			summary.Assigned++
			if trace.CrossOffice {
				summary.CrossOffice++
			}
		default:
			summary.Unassigned++
		}
		if result.ClientLat != nil {
			summary.GeoResolved++
		}
	}
	return results, summary
}

func (p *Pipeline) attachmentPath(t models.Ticket) string {
	name := strings.TrimSpace(t.Attachment)
	if name == "" || strings.EqualFold(name, "nan") {
		return ""
	}
	return filepath.Join(p.AttachmentDir, name)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
