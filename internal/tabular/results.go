package tabular

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/fire-routing/backend/internal/models"
)

var resultHeader = []string{
	"ticket_id", "segment", "category", "sentiment", "priority", "language",
	"office", "manager", "summary", "description", "error",
}

// WriteResults renders the routing output as CSV, one row per ticket in
// input order. Stages that were skipped or failed leave their columns empty.
func WriteResults(w io.Writer, results []models.RouteResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(resultHeader); err != nil {
		return err
	}

	for _, r := range results {
		rec := make([]string, 0, len(resultHeader))
		rec = append(rec, r.TicketID, r.Segment)

		if c := r.Classification; c != nil {
			rec = append(rec, c.Category, c.Sentiment, strconv.Itoa(c.Priority), c.Language)
		} else {
			rec = append(rec, "", "", "", "")
		}
		rec = append(rec, deref(r.Office), deref(r.Manager))
		if c := r.Classification; c != nil {
			rec = append(rec, c.Summary)
		} else {
			rec = append(rec, "")
		}
		rec = append(rec, r.Description, r.ClassifyError)

		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
