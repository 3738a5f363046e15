package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/fire-routing/backend/internal/classify"
	"github.com/fire-routing/backend/internal/db"
	"github.com/fire-routing/backend/internal/geo"
	"github.com/fire-routing/backend/internal/geocode"
	"github.com/fire-routing/backend/internal/models"
	"github.com/fire-routing/backend/internal/normalize"
	"github.com/fire-routing/backend/internal/routing"
	"github.com/fire-routing/backend/internal/tabular"
)

type Handler struct {
	Store    *db.Store
	Oracle   classify.Oracle
	Geocoder geocode.Geocoder
	// State carries the fallback toggle and round-robin counters across
	// requests; ResetPerRun clears it at the start of every processing run.
	State            *routing.FairnessState
	Validator        *validator.Validate
	Logger           zerolog.Logger
	AdminKey         string
	CountryDefault   string
	Fallbacks        [2]string
	ClassifyAttempts int
	GeoCachePath     string
	AttachmentDir    string
	ResetPerRun      bool
}

type tableSummary struct {
	Parsed   int `json:"parsed"`
	Inserted int `json:"inserted"`
	Errors   int `json:"errors"`
}

type ImportSummary struct {
	Tickets  tableSummary `json:"tickets"`
	Managers tableSummary `json:"managers"`
	Offices  tableSummary `json:"offices"`
	Errors   []string     `json:"errors"`
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Import source tables
// @Description Upload tickets, managers, and offices as CSV or XLSX files
// @Tags import
// @Accept multipart/form-data
// @Produce json
// @Param tickets formData file true "tickets table"
// @Param managers formData file true "managers table"
// @Param offices formData file true "offices table"
// @Success 200 {object} ImportSummary
// @Failure 400 {object} map[string]any
// @Router /api/import [post]
func (h *Handler) Import(c *gin.Context) {
	ticketRows, err := formTable(c, "tickets")
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	managerRows, err := formTable(c, "managers")
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	officeRows, err := formTable(c, "offices")
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	summary := ImportSummary{Errors: []string{}}

	tickets, errs := tabular.ParseTickets(ticketRows)
	summary.Tickets.Parsed = len(tickets)
	summary.Tickets.Errors = len(errs)
	summary.Errors = append(summary.Errors, errs...)

	managers, errs := tabular.ParseManagers(managerRows)
	summary.Managers.Parsed = len(managers)
	summary.Managers.Errors = len(errs)
	summary.Errors = append(summary.Errors, errs...)

	offices, errs := tabular.ParseOffices(officeRows)
	summary.Offices.Parsed = len(offices)
	summary.Offices.Errors = len(errs)
	summary.Errors = append(summary.Errors, errs...)

	if len(summary.Errors) > 0 {
		writeError(c, http.StatusBadRequest, "PARSE_ERROR", "table validation errors", summary.Errors)
		return
	}

	ctx := c.Request.Context()
	err = h.Store.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `TRUNCATE tickets, managers, offices, classifications, assignments CASCADE`)
		return err
	})
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to reset tables", err.Error())
		return
	}

	inserted, err := h.Store.InsertTickets(ctx, tickets)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to insert tickets", err.Error())
		return
	}
	summary.Tickets.Inserted = int(inserted)

	inserted, err = h.Store.InsertManagers(ctx, managers)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to insert managers", err.Error())
		return
	}
	summary.Managers.Inserted = int(inserted)

	inserted, err = h.Store.InsertOffices(ctx, offices)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to insert offices", err.Error())
		return
	}
	summary.Offices.Inserted = int(inserted)

	c.JSON(http.StatusOK, summary)
}

func formTable(c *gin.Context, field string) ([][]string, error) {
	file, err := c.FormFile(field)
	if err != nil {
		return nil, errors.New(field + " file required")
	}
	content, err := readUpload(file)
	if err != nil {
		return nil, err
	}
	return tabular.ReadRows(content, file.Filename)
}

func readUpload(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// @Summary Route unprocessed tickets
// @Tags process
// @Produce json
// @Success 200 {object} routing.BatchSummary
// @Router /api/process [post]
func (h *Handler) Process(c *gin.Context) {
	ctx := c.Request.Context()

	runID := uuid.NewString()
	if err := h.Store.CreateRun(ctx, runID, "RUNNING"); err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to create run", err.Error())
		return
	}

	summary, err := h.process(ctx, runID)
	status := "SUCCESS"
	if err != nil {
		status = "FAILED"
	}
	b, _ := json.Marshal(summary)
	if finishErr := h.Store.FinishRun(ctx, runID, status, b); finishErr != nil {
		h.Logger.Error().Err(finishErr).Msg("failed to finish run")
	}

	if err != nil {
		h.Logger.Error().Err(err).Msg("processing failed")
		writeError(c, http.StatusInternalServerError, "PROCESSING_ERROR", "Processing failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "summary": summary})
}

func (h *Handler) process(ctx context.Context, runID string) (routing.BatchSummary, error) {
	var summary routing.BatchSummary

	managers, err := h.Store.ListManagers(ctx, "", "")
	if err != nil {
		return summary, err
	}
	offices, err := h.Store.ListOffices(ctx)
	if err != nil {
		return summary, err
	}
	tickets, err := h.Store.GetTicketsForProcessing(ctx)
	if err != nil {
		return summary, err
	}

	offices, err = geocode.ResolveOffices(ctx, h.Geocoder, offices, h.CountryDefault, h.GeoCachePath, h.Logger)
	if err != nil {
		h.Logger.Warn().Err(err).Msg("office coordinate cache not written")
	}
	if err := h.Store.UpdateOfficeCoords(ctx, offices); err != nil {
		return summary, err
	}

	if h.ResetPerRun {
		h.State.Reset()
	}

	pipeline := &routing.Pipeline{
		Classifier: &classify.Client{Oracle: h.Oracle, Attempts: h.ClassifyAttempts, Logger: h.Logger},
		Geocoder:   h.Geocoder,
		Resolver:   &routing.Resolver{Fallbacks: h.Fallbacks, State: h.State, Logger: h.Logger},
		Engine:     routing.NewEngine(h.State, managers, h.Logger),
		Index:      geo.NewIndex(offices),
		Logger:     h.Logger,

		AttachmentDir: h.AttachmentDir,
	}

	for i, t := range tickets {
		h.Logger.Info().Int("n", i+1).Int("total", len(tickets)).Str("ticket", t.ID).Msg("routing ticket")
		result, trace := pipeline.Route(ctx, t)

		if err := h.persistResult(ctx, runID, result, trace); err != nil {
			return summary, err
		}

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
	return summary, nil
}

func (h *Handler) persistResult(ctx context.Context, runID string, result models.RouteResult, trace routing.Trace) error {
	assignment := models.Assignment{
		ID:         uuid.NewString(),
		TicketID:   result.TicketID,
		ManagerID:  result.ManagerID,
		AssignedAt: time.Now().UTC(),
	}
	if result.Office != nil {
		assignment.Office = *result.Office
	}

	switch {
	case result.ClassifyError != "":
		assignment.Status = "AI_ERROR"
		assignment.ReasonCode = "AI_UNAVAILABLE"
		assignment.ReasonText = result.ClassifyError
	case result.Classification.Category == models.CategorySpam:
		assignment.Status = "SPAM"
		assignment.ReasonCode = "SPAM_SKIPPED"
		assignment.ReasonText = "spam is recorded but never routed"
	case result.ManagerID != nil:
		assignment.Status = "ASSIGNED"
		assignment.ReasonCode = "AUTO"
		if trace.CrossOffice {
			assignment.ReasonCode = "AUTO_CROSS_OFFICE"
		}
	default:
		assignment.Status = "UNASSIGNED"
		assignment.ReasonCode = "NO_ELIGIBLE"
		assignment.ReasonText = "no eligible managers in any office"
	}
	assignment.Reasoning, _ = json.Marshal(gin.H{"run_id": runID, "trace": trace})

	return h.Store.WithTx(ctx, func(tx pgx.Tx) error {
		if result.Classification != nil {
			if err := h.Store.UpsertClassification(ctx, tx, *result.Classification); err != nil {
				return err
			}
		}
		if err := h.Store.UpsertAssignment(ctx, tx, assignment); err != nil {
			return err
		}
		if assignment.Status == "ASSIGNED" {
			return h.Store.UpdateManagerLoad(ctx, tx, *result.ManagerID, 1)
		}
		return nil
	})
}

// @Summary Latest run
// @Tags runs
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/runs/latest [get]
func (h *Handler) RunsLatest(c *gin.Context) {
	result, err := h.Store.GetLatestRun(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "No runs found", err.Error())
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) TicketsList(c *gin.Context) {
	status := c.Query("status")
	office := normalize.Office(c.Query("office"))
	language := normalize.Language(c.Query("language"))
	q := c.Query("q")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, err := h.Store.ListTickets(c.Request.Context(), status, office, language, q, limit, offset)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list tickets", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "limit": limit, "offset": offset})
}

func (h *Handler) TicketDetails(c *gin.Context) {
	result, err := h.Store.GetTicketDetails(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Ticket not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to get ticket", err.Error())
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) ManagersList(c *gin.Context) {
	office := normalize.Office(c.Query("office"))
	skill := strings.ToUpper(strings.TrimSpace(c.Query("skill")))
	items, err := h.Store.ListManagers(c.Request.Context(), office, skill)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list managers", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) OfficesList(c *gin.Context) {
	items, err := h.Store.ListOffices(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list offices", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// @Summary Explain manager eligibility for a ticket
// @Tags debug
// @Produce json
// @Param ticket_id query string true "Ticket ID"
// @Success 200 {object} map[string]any
// @Router /api/debug/eligibility [get]
func (h *Handler) DebugEligibility(c *gin.Context) {
	ticketID := strings.TrimSpace(c.Query("ticket_id"))
	if ticketID == "" {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "ticket_id is required", nil)
		return
	}
	ctx := c.Request.Context()

	details, err := h.Store.GetTicketDetails(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Ticket not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load ticket", err.Error())
		return
	}
	ticket := details["ticket"].(models.Ticket)
	cls, ok := details["classification"].(map[string]any)
	if !ok {
		writeError(c, http.StatusBadRequest, "INVALID_STATE", "Ticket has not been classified yet", nil)
		return
	}

	managers, err := h.Store.ListManagers(ctx, "", "")
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load managers", err.Error())
		return
	}
	offices, err := h.Store.ListOffices(ctx)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load offices", err.Error())
		return
	}

	report := explainEligibility(ctx, h.Geocoder, ticket,
		getString(cls, "category"), getString(cls, "language"),
		managers, offices, h.Fallbacks)
	c.JSON(http.StatusOK, report)
}

type eligibilityReport struct {
	TicketID   string                  `json:"ticket_id"`
	Office     string                  `json:"office"`
	UsedGeo    bool                    `json:"used_geo"`
	ClientLat  *float64                `json:"client_lat"`
	ClientLon  *float64                `json:"client_lon"`
	Attempts   []routing.OfficeAttempt `json:"attempts"`
	Candidates []routing.PickCandidate `json:"candidates,omitempty"`
}

// explainEligibility replays the office choice and eligibility cascade for a
// ticket without assigning anyone: loads, counters, and the fallback toggle
// stay untouched.
func explainEligibility(ctx context.Context, g geocode.Geocoder, ticket models.Ticket, category, language string, managers []models.Manager, offices []models.Office, fallbacks [2]string) eligibilityReport {
	report := eligibilityReport{TicketID: ticket.ID}
	index := geo.NewIndex(offices)

	var ranking []string
	if lat, lon, resolved := geocode.ResolveAddress(ctx, g, ticket.Country, ticket.City, ticket.Street, ticket.House); resolved {
		report.ClientLat, report.ClientLon = &lat, &lon
		ranking = index.Nearest(lat, lon)
	}

	report.UsedGeo = report.ClientLat != nil && !routing.IsForeign(ticket.Country) && len(ranking) > 0
	report.Office = fallbacks[0]
	if report.UsedGeo {
		report.Office = ranking[0]
	}

	engine := routing.NewEngine(routing.NewFairnessState(), managers, zerolog.Nop())
	trace := engine.Explain(routing.AssignRequest{
		Category:        category,
		Language:        language,
		Segment:         ticket.Segment,
		PreferredOffice: report.Office,
		Ranking:         ranking,
	})
	report.Attempts = trace.Attempts
	report.Candidates = trace.Candidates
	return report
}

type ReassignRequest struct {
	ManagerID string `json:"manager_id" validate:"required"`
	Reason    string `json:"reason" validate:"required"`
}

func (h *Handler) Reassign(c *gin.Context) {
	id := c.Param("id")
	var req ReassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	ctx := c.Request.Context()

	managers, err := h.Store.ListManagers(ctx, "", "")
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load managers", err.Error())
		return
	}
	var manager *models.Manager
	for i := range managers {
		if managers[i].ID == req.ManagerID {
			manager = &managers[i]
			break
		}
	}
	if manager == nil {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Manager not found", nil)
		return
	}

	details, err := h.Store.GetTicketDetails(ctx, id)
	if err != nil {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Ticket not found", err.Error())
		return
	}
	ticket := details["ticket"].(models.Ticket)

	// A reassignment onto a manager who fails the cascade is allowed but
	// recorded as an override.
	override := true
	if cls, ok := details["classification"].(map[string]any); ok {
		override = !routing.Eligible(*manager, ticket.Segment, getString(cls, "category"), getString(cls, "language"))
	}

	reasoning, _ := json.Marshal(gin.H{"manual": true, "override": override, "reason": req.Reason})
	if err := h.Store.Reassign(ctx, id, req.ManagerID, manager.Office, req.Reason, reasoning, override); err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to reassign", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "override": override})
}

// @Summary Re-geocode offices
// @Tags offices
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/offices/regeocode [post]
func (h *Handler) RegeocodeOffices(c *gin.Context) {
	ctx := c.Request.Context()
	offices, err := h.Store.ListOffices(ctx)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load offices", err.Error())
		return
	}

	// Drop the cache file so every office goes back to the geocoder.
	if h.GeoCachePath != "" {
		_ = os.Remove(h.GeoCachePath)
	}
	offices, err = geocode.ResolveOffices(ctx, h.Geocoder, offices, h.CountryDefault, h.GeoCachePath, h.Logger)
	if err != nil {
		h.Logger.Warn().Err(err).Msg("office coordinate cache not written")
	}
	if err := h.Store.UpdateOfficeCoords(ctx, offices); err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to update offices", err.Error())
		return
	}

	resolved := 0
	for _, o := range offices {
		if o.HasCoords() {
			resolved++
		}
	}
	c.JSON(http.StatusOK, gin.H{"offices": len(offices), "resolved": resolved})
}

func writeError(c *gin.Context, status int, code, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
