package tabular

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/fire-routing/backend/internal/models"
)

const ticketsCSV = "\ufeffGUID клиента,Сегмент клиента,Страна,Город,Улица,Дом,Текст обращения,Прикрепленный файл\n" +
	"T-1,VIP,Казахстан,Алматы,Абая,10,Не работает приложение,screen.png\n" +
	"T-2,Масс,Казахстан,Астана,,,Вопрос по тарифам,\n"

func TestParseTicketsBilingualHeaders(t *testing.T) {
	rows, err := ReadRows([]byte(ticketsCSV), "tickets.csv")
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	tickets, errs := ParseTickets(rows)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(tickets) != 2 {
		t.Fatalf("expected 2 tickets, got %d", len(tickets))
	}

	first := tickets[0]
	if first.ID != "T-1" || first.Segment != models.SegmentVIP || first.City != "Алматы" {
		t.Fatalf("unexpected first ticket %+v", first)
	}
	if first.Attachment != "screen.png" {
		t.Fatalf("attachment not parsed, got %q", first.Attachment)
	}
	if tickets[1].Segment != models.SegmentMass {
		t.Fatalf("expected MASS segment, got %q", tickets[1].Segment)
	}
}

func TestParseTicketsGeneratesMissingID(t *testing.T) {
	rows := [][]string{
		{"message", "city"},
		{"hello", "Астана"},
	}
	tickets, _ := ParseTickets(rows)
	if len(tickets) != 1 || tickets[0].ID != "TICK-0001" {
		t.Fatalf("expected generated id TICK-0001, got %+v", tickets)
	}
}

func TestParseManagers(t *testing.T) {
	csvData := "ФИО,Офис,Должность,Навыки,Количество обращений в работе\n" +
		"Иванов И.,Астана,главный специалист,\"KZ; VIP\",4\n" +
		"Петров П.,Алматы,Специалист,,\n" +
		",Алматы,Специалист,,\n"
	rows, err := ReadRows([]byte(csvData), "managers.csv")
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	managers, errs := ParseManagers(rows)
	if len(managers) != 2 {
		t.Fatalf("expected 2 managers, got %d (%v)", len(managers), errs)
	}
	if len(errs) != 1 {
		t.Fatalf("nameless row must be reported, got %v", errs)
	}

	m := managers[0]
	if m.Office != "ASTANA" || m.Role != models.RoleSenior || m.CurrentLoad != 4 {
		t.Fatalf("unexpected manager %+v", m)
	}
	for _, skill := range []string{"KZ", "VIP", "RU"} {
		found := false
		for _, s := range m.Skills {
			if s == skill {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected skill %s in %v", skill, m.Skills)
		}
	}
}

func TestParseOffices(t *testing.T) {
	csvData := "Название,Адрес,lat,lon\n" +
		"Астана,\"пр. Кабанбай батыра, 11\",51.1605,71.4704\n" +
		"Алматы,\"ул. Наурызбай батыра, 8\",,\n"
	rows, err := ReadRows([]byte(csvData), "offices.csv")
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	offices, errs := ParseOffices(rows)
	if len(errs) != 0 || len(offices) != 2 {
		t.Fatalf("expected 2 offices, got %d (%v)", len(offices), errs)
	}
	if offices[0].Name != "ASTANA" || !offices[0].HasCoords() {
		t.Fatalf("unexpected first office %+v", offices[0])
	}
	if offices[1].HasCoords() {
		t.Fatalf("office without coordinates must stay unresolved")
	}
	if offices[1].ID != "almaty" {
		t.Fatalf("expected derived id, got %q", offices[1].ID)
	}
}

func TestReadRowsXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	_ = f.SetSheetRow(sheet, "A1", &[]interface{}{"id", "message", "Сегмент"})
	_ = f.SetSheetRow(sheet, "A2", &[]interface{}{"X-1", "Помогите с картой", "VIP"})
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	rows, err := ReadRows(buf.Bytes(), "tickets.xlsx")
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	tickets, _ := ParseTickets(rows)
	if len(tickets) != 1 || tickets[0].ID != "X-1" || tickets[0].Segment != models.SegmentVIP {
		t.Fatalf("unexpected tickets %+v", tickets)
	}
}

func TestReadRowsSniffsZipMagic(t *testing.T) {
	f := excelize.NewFile()
	_ = f.SetSheetRow(f.GetSheetName(0), "A1", &[]interface{}{"id"})
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	// No useful extension: the ZIP magic must pick the XLSX path.
	rows, err := ReadRows(buf.Bytes(), "upload.bin")
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	if len(rows) != 1 || rows[0][0] != "id" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestWriteResults(t *testing.T) {
	office := "ALMATY"
	manager := "Алия"
	results := []models.RouteResult{
		{
			TicketID: "T-1",
			Segment:  models.SegmentVIP,
			Classification: &models.Classification{
				Category: models.CategoryComplaint, Sentiment: models.SentimentNegative,
				Priority: 8, Language: models.LangRU, Summary: "Клиент недоволен.",
			},
			Office:      &office,
			Manager:     &manager,
			Description: "Не работает приложение",
		},
		{TicketID: "T-2", Segment: models.SegmentMass, ClassifyError: "classification unavailable after 3 attempts"},
	}

	var buf bytes.Buffer
	if err := WriteResults(&buf, results); err != nil {
		t.Fatalf("WriteResults: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "ticket_id,segment,category") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], "ALMATY") || !strings.Contains(lines[1], "8") {
		t.Fatalf("assigned row incomplete: %q", lines[1])
	}
	if !strings.Contains(lines[2], "classification unavailable") {
		t.Fatalf("error row must carry the error text: %q", lines[2])
	}
}
