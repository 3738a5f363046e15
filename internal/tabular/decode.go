package tabular

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fire-routing/backend/internal/models"
	"github.com/fire-routing/backend/internal/normalize"
)

// ParseTickets decodes ticket rows. Rows that cannot be decoded are reported
// as error strings alongside the rows that could; a bad row never aborts the
// import.
func ParseTickets(rows [][]string) ([]models.Ticket, []string) {
	if len(rows) == 0 {
		return nil, []string{"empty table"}
	}
	index := headerIndex(rows[0])
	var errs []string
	var out []models.Ticket

	for _, rec := range rows[1:] {
		id := getFieldAny(rec, index, "id", "ticket_id", "ticket id", "guid", "guid клиента", "client_guid")
		createdAtStr := getFieldAny(rec, index, "created_at", "created", "date", "дата", "дата создания")
		segment := getFieldAny(rec, index, "segment", "сегмент", "segment клиента", "сегмент клиента")
		country := getFieldAny(rec, index, "country", "страна")
		city := getFieldAny(rec, index, "city", "город", "населённый пункт", "населенный пункт")
		street := getFieldAny(rec, index, "street", "улица", "address", "адрес")
		house := getFieldAny(rec, index, "house", "дом")
		message := getFieldAny(rec, index, "message", "text", "текст", "описание", "description", "текст обращения")
		attachment := getFieldAny(rec, index, "attachment", "file", "фото", "прикрепленный файл", "прикреплённый файл")

		createdAt, err := time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			createdAt = time.Now().UTC()
		}
		if id == "" {
			id = fmt.Sprintf("TICK-%04d", len(out)+1)
		}

		out = append(out, models.Ticket{
			ID:         id,
			CreatedAt:  createdAt,
			Segment:    normalize.Segment(segment),
			Country:    country,
			City:       city,
			Street:     street,
			House:      house,
			Message:    message,
			Attachment: attachment,
		})
	}
	return out, errs
}

// ParseManagers decodes manager rows. Every manager implicitly speaks RU;
// the skill is added when the source omits it.
func ParseManagers(rows [][]string) ([]models.Manager, []string) {
	if len(rows) == 0 {
		return nil, []string{"empty table"}
	}
	index := headerIndex(rows[0])
	var errs []string
	var out []models.Manager

	for _, rec := range rows[1:] {
		id := getFieldAny(rec, index, "id", "manager_id", "manager id")
		name := getFieldAny(rec, index, "name", "фио", "фио менеджера")
		office := getFieldAny(rec, index, "office", "офис")
		role := getFieldAny(rec, index, "role", "должность")
		skillsRaw := getFieldAny(rec, index, "skills", "навыки")
		loadStr := getFieldAny(rec, index, "current_load", "current load", "load", "количество обращений в работе")
		load, _ := strconv.Atoi(loadStr)

		skills := normalize.Skills(skillsRaw)
		if !normalize.HasSkill(skills, models.LangRU) {
			skills = append(skills, models.LangRU)
		}
		if id == "" {
			id = fmt.Sprintf("MGR-%03d", len(out)+1)
		}

		m := models.Manager{
			ID:          id,
			Name:        name,
			Office:      normalize.Office(office),
			Role:        normalize.Role(role),
			Skills:      skills,
			CurrentLoad: load,
			UpdatedAt:   time.Now().UTC(),
		}
		if m.Name == "" || m.Office == "" {
			errs = append(errs, fmt.Sprintf("manager %s: name and office required", id))
			continue
		}
		out = append(out, m)
	}
	return out, errs
}

// ParseOffices decodes office rows. Coordinates are optional; offices without
// them are geocoded later.
func ParseOffices(rows [][]string) ([]models.Office, []string) {
	if len(rows) == 0 {
		return nil, []string{"empty table"}
	}
	index := headerIndex(rows[0])
	var errs []string
	var out []models.Office

	for _, rec := range rows[1:] {
		id := getFieldAny(rec, index, "id", "office_id")
		name := getFieldAny(rec, index, "name", "office", "office_name", "офис", "название")
		address := getFieldAny(rec, index, "address", "адрес")
		latStr := getFieldAny(rec, index, "lat", "latitude", "широта")
		lonStr := getFieldAny(rec, index, "lon", "lng", "longitude", "долгота")

		o := models.Office{
			ID:      id,
			Name:    normalize.Office(name),
			Address: address,
		}
		if o.Name == "" {
			errs = append(errs, "office name required")
			continue
		}
		if lat, err := strconv.ParseFloat(latStr, 64); err == nil && latStr != "" {
			if lon, err := strconv.ParseFloat(lonStr, 64); err == nil && lonStr != "" {
				o.Lat, o.Lon = &lat, &lon
			}
		}
		if o.ID == "" {
			o.ID = strings.ToLower(strings.ReplaceAll(o.Name, " ", "-"))
		}
		out = append(out, o)
	}
	return out, errs
}
