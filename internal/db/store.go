// Package db persists imported tables and routing outcomes in PostgreSQL.
// The in-memory engine stays authoritative during a run; the store records
// what happened and serves the read endpoints.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fire-routing/backend/internal/models"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

// EnsureSchema creates the tables on first start. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tickets (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			segment TEXT NOT NULL,
			country TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			street TEXT NOT NULL DEFAULT '',
			house TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			attachment TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS managers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			office TEXT NOT NULL,
			role TEXT NOT NULL,
			skills TEXT[] NOT NULL DEFAULT '{}',
			current_load INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS offices (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			address TEXT NOT NULL DEFAULT '',
			lat DOUBLE PRECISION,
			lon DOUBLE PRECISION
		);
		CREATE TABLE IF NOT EXISTS classifications (
			ticket_id TEXT PRIMARY KEY REFERENCES tickets(id),
			category TEXT NOT NULL,
			sentiment TEXT NOT NULL,
			priority INT NOT NULL,
			language TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS assignments (
			id TEXT PRIMARY KEY,
			ticket_id TEXT NOT NULL UNIQUE REFERENCES tickets(id),
			manager_id TEXT REFERENCES managers(id),
			office TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			reason_code TEXT NOT NULL DEFAULT '',
			reason_text TEXT NOT NULL DEFAULT '',
			reasoning JSONB,
			assigned_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			finished_at TIMESTAMPTZ,
			status TEXT NOT NULL,
			summary JSONB
		);
	`)
	return err
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) InsertTickets(ctx context.Context, tickets []models.Ticket) (int64, error) {
	rows := make([][]any, 0, len(tickets))
	for _, t := range tickets {
		rows = append(rows, []any{t.ID, t.CreatedAt, t.Segment, t.Country, t.City, t.Street, t.House, t.Message, t.Attachment})
	}
	return s.Pool.CopyFrom(ctx, pgx.Identifier{"tickets"},
		[]string{"id", "created_at", "segment", "country", "city", "street", "house", "message", "attachment"},
		pgx.CopyFromRows(rows))
}

func (s *Store) InsertManagers(ctx context.Context, managers []models.Manager) (int64, error) {
	rows := make([][]any, 0, len(managers))
	for _, m := range managers {
		rows = append(rows, []any{m.ID, m.Name, m.Office, m.Role, m.Skills, m.CurrentLoad, m.UpdatedAt})
	}
	return s.Pool.CopyFrom(ctx, pgx.Identifier{"managers"},
		[]string{"id", "name", "office", "role", "skills", "current_load", "updated_at"},
		pgx.CopyFromRows(rows))
}

func (s *Store) InsertOffices(ctx context.Context, offices []models.Office) (int64, error) {
	rows := make([][]any, 0, len(offices))
	for _, o := range offices {
		rows = append(rows, []any{o.ID, o.Name, o.Address, o.Lat, o.Lon})
	}
	return s.Pool.CopyFrom(ctx, pgx.Identifier{"offices"},
		[]string{"id", "name", "address", "lat", "lon"},
		pgx.CopyFromRows(rows))
}

// UpdateOfficeCoords writes geocoding results back after a resolve pass.
func (s *Store) UpdateOfficeCoords(ctx context.Context, offices []models.Office) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		for _, o := range offices {
			if _, err := tx.Exec(ctx, `UPDATE offices SET lat = $1, lon = $2 WHERE name = $3`, o.Lat, o.Lon, o.Name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListOffices(ctx context.Context) ([]models.Office, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id, name, address, lat, lon FROM offices ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Office
	for rows.Next() {
		var o models.Office
		if err := rows.Scan(&o.ID, &o.Name, &o.Address, &o.Lat, &o.Lon); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) ListManagers(ctx context.Context, office, skill string) ([]models.Manager, error) {
	query := `SELECT id, name, office, role, skills, current_load, updated_at FROM managers`
	var args []any
	var wheres []string
	if office != "" {
		args = append(args, office)
		wheres = append(wheres, fmt.Sprintf("office = $%d", len(args)))
	}
	if skill != "" {
		args = append(args, skill)
		wheres = append(wheres, fmt.Sprintf("$%d = ANY(skills)", len(args)))
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += " ORDER BY current_load ASC, id ASC"

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Manager
	for rows.Next() {
		var m models.Manager
		if err := rows.Scan(&m.ID, &m.Name, &m.Office, &m.Role, &m.Skills, &m.CurrentLoad, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) GetTicketsForProcessing(ctx context.Context) ([]models.Ticket, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT t.id, t.created_at, t.segment, t.country, t.city, t.street, t.house, t.message, t.attachment
		FROM tickets t
		LEFT JOIN assignments a ON a.ticket_id = t.id
		WHERE a.ticket_id IS NULL
		ORDER BY t.created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Ticket
	for rows.Next() {
		var t models.Ticket
		if err := rows.Scan(&t.ID, &t.CreatedAt, &t.Segment, &t.Country, &t.City, &t.Street, &t.House, &t.Message, &t.Attachment); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ListTickets(ctx context.Context, status, office, language, q string, limit, offset int) ([]map[string]any, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT t.id, t.created_at, t.segment, t.country, t.city, t.message,
		a.status, a.office, a.manager_id, a.reason_code, a.reason_text,
		c.category, c.sentiment, c.priority, c.language
		FROM tickets t
		LEFT JOIN assignments a ON a.ticket_id = t.id
		LEFT JOIN classifications c ON c.ticket_id = t.id`
	var args []any
	var wheres []string
	if status != "" {
		args = append(args, status)
		wheres = append(wheres, fmt.Sprintf("a.status = $%d", len(args)))
	}
	if office != "" {
		args = append(args, office)
		wheres = append(wheres, fmt.Sprintf("a.office = $%d", len(args)))
	}
	if language != "" {
		args = append(args, language)
		wheres = append(wheres, fmt.Sprintf("c.language = $%d", len(args)))
	}
	if q != "" {
		args = append(args, "%"+q+"%")
		wheres = append(wheres, fmt.Sprintf("(t.message ILIKE $%d OR t.id ILIKE $%d)", len(args), len(args)))
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += " ORDER BY t.created_at DESC LIMIT $" + fmt.Sprint(len(args)+1) + " OFFSET $" + fmt.Sprint(len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var (
			id         string
			createdAt  time.Time
			segment    string
			country    string
			city       string
			message    string
			st         *string
			officeVal  *string
			managerID  *string
			reasonCode *string
			reasonText *string
			category   *string
			sentiment  *string
			priority   *int
			lang       *string
		)
		if err := rows.Scan(&id, &createdAt, &segment, &country, &city, &message,
			&st, &officeVal, &managerID, &reasonCode, &reasonText,
			&category, &sentiment, &priority, &lang); err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"id":          id,
			"created_at":  createdAt,
			"segment":     segment,
			"country":     country,
			"city":        city,
			"message":     message,
			"status":      st,
			"office":      officeVal,
			"manager_id":  managerID,
			"reason_code": reasonCode,
			"reason_text": reasonText,
			"category":    category,
			"sentiment":   sentiment,
			"priority":    priority,
			"language":    lang,
		})
	}
	return out, rows.Err()
}

func (s *Store) GetTicketDetails(ctx context.Context, ticketID string) (map[string]any, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT t.id, t.created_at, t.segment, t.country, t.city, t.street, t.house, t.message, t.attachment,
			a.id, a.manager_id, a.office, a.status, a.reason_code, a.reason_text, a.reasoning, a.assigned_at,
			c.category, c.sentiment, c.priority, c.language, c.summary, c.created_at
		FROM tickets t
		LEFT JOIN assignments a ON a.ticket_id = t.id
		LEFT JOIN classifications c ON c.ticket_id = t.id
		WHERE t.id = $1
	`, ticketID)

	var (
		t          models.Ticket
		aID        *string
		managerID  *string
		aOffice    *string
		aStatus    *string
		reasonCode *string
		reasonText *string
		reasoning  []byte
		assignedAt *time.Time
		category   *string
		sentiment  *string
		priority   *int
		language   *string
		summary    *string
		clsCreated *time.Time
	)

	if err := row.Scan(
		&t.ID, &t.CreatedAt, &t.Segment, &t.Country, &t.City, &t.Street, &t.House, &t.Message, &t.Attachment,
		&aID, &managerID, &aOffice, &aStatus, &reasonCode, &reasonText, &reasoning, &assignedAt,
		&category, &sentiment, &priority, &language, &summary, &clsCreated,
	); err != nil {
		return nil, err
	}

	result := map[string]any{"ticket": t}
	if aID != nil {
		result["assignment"] = map[string]any{
			"id":          *aID,
			"manager_id":  managerID,
			"office":      aOffice,
			"status":      aStatus,
			"reason_code": reasonCode,
			"reason_text": reasonText,
			"reasoning":   jsonValue(reasoning),
			"assigned_at": assignedAt,
		}
	}
	if category != nil {
		result["classification"] = map[string]any{
			"category":   *category,
			"sentiment":  derefString(sentiment),
			"priority":   derefInt(priority),
			"language":   derefString(language),
			"summary":    derefString(summary),
			"created_at": clsCreated,
		}
	}
	return result, nil
}

func (s *Store) UpsertClassification(ctx context.Context, tx pgx.Tx, c models.Classification) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO classifications (ticket_id, category, sentiment, priority, language, summary, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,NOW())
		ON CONFLICT (ticket_id) DO UPDATE SET
			category = EXCLUDED.category,
			sentiment = EXCLUDED.sentiment,
			priority = EXCLUDED.priority,
			language = EXCLUDED.language,
			summary = EXCLUDED.summary,
			created_at = EXCLUDED.created_at
	`, c.TicketID, c.Category, c.Sentiment, c.Priority, c.Language, c.Summary)
	return err
}

func (s *Store) UpsertAssignment(ctx context.Context, tx pgx.Tx, a models.Assignment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO assignments (id, ticket_id, manager_id, office, status, reason_code, reason_text, reasoning, assigned_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (ticket_id) DO UPDATE SET
			manager_id = EXCLUDED.manager_id,
			office = EXCLUDED.office,
			status = EXCLUDED.status,
			reason_code = EXCLUDED.reason_code,
			reason_text = EXCLUDED.reason_text,
			reasoning = EXCLUDED.reasoning,
			assigned_at = EXCLUDED.assigned_at
	`, a.ID, a.TicketID, a.ManagerID, a.Office, a.Status, a.ReasonCode, a.ReasonText, a.Reasoning, a.AssignedAt)
	return err
}

func (s *Store) UpdateManagerLoad(ctx context.Context, tx pgx.Tx, managerID string, delta int) error {
	_, err := tx.Exec(ctx, `UPDATE managers SET current_load = current_load + $1, updated_at = NOW() WHERE id = $2`, delta, managerID)
	return err
}

func (s *Store) CreateRun(ctx context.Context, id, status string) error {
	_, err := s.Pool.Exec(ctx, `INSERT INTO runs (id, status, started_at) VALUES ($1, $2, NOW())`, id, status)
	return err
}

func (s *Store) FinishRun(ctx context.Context, runID, status string, summary []byte) error {
	_, err := s.Pool.Exec(ctx, `UPDATE runs SET status = $1, summary = $2, finished_at = NOW() WHERE id = $3`, status, summary, runID)
	return err
}

func (s *Store) GetLatestRun(ctx context.Context) (map[string]any, error) {
	row := s.Pool.QueryRow(ctx, `SELECT id, started_at, finished_at, status, summary FROM runs ORDER BY started_at DESC LIMIT 1`)
	var (
		id       string
		started  time.Time
		finished *time.Time
		status   string
		summary  []byte
	)
	if err := row.Scan(&id, &started, &finished, &status, &summary); err != nil {
		return nil, err
	}
	return map[string]any{
		"id":          id,
		"started_at":  started,
		"finished_at": finished,
		"status":      status,
		"summary":     jsonValue(summary),
	}, nil
}

func jsonValue(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// Reassign moves a ticket to another manager, transferring load between the
// previous and new assignee in the same transaction.
func (s *Store) Reassign(ctx context.Context, ticketID, managerID, office, reasonText string, reasoning []byte, override bool) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		var prevManager *string
		if err := tx.QueryRow(ctx, `SELECT manager_id FROM assignments WHERE ticket_id = $1`, ticketID).Scan(&prevManager); err != nil {
			return err
		}

		if prevManager != nil {
			if *prevManager != managerID {
				if err := s.UpdateManagerLoad(ctx, tx, *prevManager, -1); err != nil {
					return err
				}
				if err := s.UpdateManagerLoad(ctx, tx, managerID, 1); err != nil {
					return err
				}
			}
		} else if err := s.UpdateManagerLoad(ctx, tx, managerID, 1); err != nil {
			return err
		}

		reasonCode := "MANUAL_REASSIGN"
		if override {
			reasonCode = "MANUAL_OVERRIDE"
		}

		_, err := tx.Exec(ctx, `
			UPDATE assignments
			SET manager_id = $1, office = $2, status = 'ASSIGNED', reason_code = $3, reason_text = $4, reasoning = $5, assigned_at = NOW()
			WHERE ticket_id = $6
		`, managerID, office, reasonCode, reasonText, reasoning, ticketID)
		return err
	})
}
