package routing

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/fire-routing/backend/internal/models"
	"github.com/fire-routing/backend/internal/normalize"
)

// Engine owns the manager pool for the duration of a run. It is the only
// component that mutates manager load, and it reads load through the same
// pointers it mutates, so every assignment sees the effect of the previous
// one.
type Engine struct {
	State  *FairnessState
	Logger zerolog.Logger

	managers    []*models.Manager
	byOffice    map[string][]*models.Manager
	officeOrder []string
}

func NewEngine(state *FairnessState, managers []models.Manager, logger zerolog.Logger) *Engine {
	e := &Engine{
		State:    state,
		Logger:   logger,
		byOffice: map[string][]*models.Manager{},
	}
	for i := range managers {
		m := managers[i]
		p := &m
		e.managers = append(e.managers, p)
		if _, ok := e.byOffice[m.Office]; !ok {
			e.officeOrder = append(e.officeOrder, m.Office)
		}
		e.byOffice[m.Office] = append(e.byOffice[m.Office], p)
	}
	return e
}

// Managers returns a snapshot of the pool with current loads.
func (e *Engine) Managers() []models.Manager {
	out := make([]models.Manager, 0, len(e.managers))
	for _, m := range e.managers {
		out = append(out, *m)
	}
	return out
}

type AssignRequest struct {
	Category        string
	Language        string
	Segment         string
	PreferredOffice string
	// Ranking lists offices ascending by distance from the client; may be
	// empty when the client has no usable coordinates.
	Ranking []string
}

type OfficeAttempt struct {
	Office        string `json:"office"`
	InOffice      int    `json:"in_office"`
	AfterVIP      int    `json:"after_vip"`
	AfterRole     int    `json:"after_role"`
	AfterLanguage int    `json:"after_language"`
}

type PickCandidate struct {
	ManagerID string `json:"manager_id"`
	Load      int    `json:"load"`
}

// Trace records how an assignment was reached, for the audit endpoints.
type Trace struct {
	Attempts    []OfficeAttempt `json:"attempts"`
	CrossOffice bool            `json:"cross_office"`
	Candidates  []PickCandidate `json:"candidates,omitempty"`
	PickIndex   int             `json:"pick_index"`
}

// Assign walks candidate offices in proximity order and applies the
// eligibility cascade in each. The first office with a non-empty eligible
// pool wins; among its two least-loaded managers the per-key round-robin
// counter decides. Returns nil when no office yields an eligible manager —
// a normal outcome, not an error.
func (e *Engine) Assign(req AssignRequest) (*models.Manager, Trace) {
	segment := normalize.Segment(req.Segment)
	language := normalize.Language(req.Language)
	if language == "" {
		language = models.LangRU
	}

	var trace Trace
	for _, office := range e.candidateOffices(req.PreferredOffice, req.Ranking) {
		pool, attempt := e.eligible(office, segment, req.Category, language)
		trace.Attempts = append(trace.Attempts, attempt)
		if len(pool) == 0 {
			continue
		}

		if office != req.PreferredOffice {
			trace.CrossOffice = true
			e.Logger.Info().
				Str("preferred", req.PreferredOffice).
				Str("office", office).
				Msg("no eligible managers in preferred office, assigning cross-office")
		}

		sort.SliceStable(pool, func(i, j int) bool {
			return pool[i].CurrentLoad < pool[j].CurrentLoad
		})
		top := pool
		if len(top) > 2 {
			top = top[:2]
		}
		for _, m := range top {
			trace.Candidates = append(trace.Candidates, PickCandidate{ManagerID: m.ID, Load: m.CurrentLoad})
		}

		// The counter advances on every selection but only decides the pick
		// when the finalists are equally loaded; otherwise the lighter one
		// wins outright. Indexing a load-re-sorted pool directly would let
		// the counter land on the just-loaded manager twice in a row.
		key := RRKey{Office: office, Segment: segment, Category: req.Category, Language: language}
		rotation := e.State.NextPick(key, len(top))
		idx := 0
		if len(top) == 2 && top[0].CurrentLoad == top[1].CurrentLoad {
			idx = rotation
		}
		trace.PickIndex = idx

		chosen := top[idx]
		chosen.CurrentLoad++
		return chosen, trace
	}

	e.Logger.Warn().
		Str("category", req.Category).
		Str("language", language).
		Str("segment", segment).
		Msg("no eligible managers in any office")
	return nil, trace
}

// candidateOffices orders offices to try: preferred first, then the
// proximity ranking, then any office with managers that neither covered.
func (e *Engine) candidateOffices(preferred string, ranking []string) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(office string) {
		if office == "" {
			return
		}
		if _, ok := seen[office]; ok {
			return
		}
		seen[office] = struct{}{}
		out = append(out, office)
	}

	add(preferred)
	for _, o := range ranking {
		add(o)
	}
	for _, o := range e.officeOrder {
		add(o)
	}
	return out
}

// Explain reports the office attempts the cascade would make for the request
// without assigning anyone or touching loads or counters.
func (e *Engine) Explain(req AssignRequest) Trace {
	segment := normalize.Segment(req.Segment)
	language := normalize.Language(req.Language)
	if language == "" {
		language = models.LangRU
	}

	var trace Trace
	for _, office := range e.candidateOffices(req.PreferredOffice, req.Ranking) {
		pool, attempt := e.eligible(office, segment, req.Category, language)
		trace.Attempts = append(trace.Attempts, attempt)
		if len(pool) == 0 {
			continue
		}
		trace.CrossOffice = office != req.PreferredOffice
		for _, m := range pool {
			trace.Candidates = append(trace.Candidates, PickCandidate{ManagerID: m.ID, Load: m.CurrentLoad})
		}
		break
	}
	return trace
}

// PassesVIP reports whether the manager clears the VIP-skill stage for the
// segment.
func PassesVIP(m models.Manager, segment string) bool {
	s := normalize.Segment(segment)
	if s != models.SegmentVIP && s != models.SegmentPriority {
		return true
	}
	return normalize.HasSkill(m.Skills, "VIP")
}

// PassesRole reports whether the manager clears the senior-role stage for
// the category.
func PassesRole(m models.Manager, category string) bool {
	if category != models.CategoryDataChange {
		return true
	}
	return normalize.Role(m.Role) == models.RoleSenior
}

// PassesLanguage reports whether the manager clears the language stage.
func PassesLanguage(m models.Manager, language string) bool {
	switch normalize.Language(language) {
	case models.LangKZ:
		return normalize.HasSkill(m.Skills, models.LangKZ)
	case models.LangEN:
		return normalize.HasSkill(m.Skills, models.LangEN)
	default:
		return true
	}
}

// Eligible reports whether the manager clears the whole cascade for the
// request. Used when validating manual reassignments.
func Eligible(m models.Manager, segment, category, language string) bool {
	return PassesVIP(m, segment) && PassesRole(m, category) && PassesLanguage(m, language)
}

// eligible applies the cascade to one office's managers. Filters compose
// conjunctively in a fixed order; an empty pool after any stage is final for
// this office.
func (e *Engine) eligible(office, segment, category, language string) ([]*models.Manager, OfficeAttempt) {
	attempt := OfficeAttempt{Office: office}

	pool := append([]*models.Manager(nil), e.byOffice[office]...)
	attempt.InOffice = len(pool)

	pool = filter(pool, func(m *models.Manager) bool { return PassesVIP(*m, segment) })
	attempt.AfterVIP = len(pool)

	pool = filter(pool, func(m *models.Manager) bool { return PassesRole(*m, category) })
	attempt.AfterRole = len(pool)

	pool = filter(pool, func(m *models.Manager) bool { return PassesLanguage(*m, language) })
	attempt.AfterLanguage = len(pool)

	return pool, attempt
}

func filter(managers []*models.Manager, keep func(*models.Manager) bool) []*models.Manager {
	out := make([]*models.Manager, 0, len(managers))
	for _, m := range managers {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}
