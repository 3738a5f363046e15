package models

import "time"

// Canonical ticket categories as returned by the classification oracle
// after normalization.
const (
	CategoryComplaint    = "Complaint"
	CategoryDataChange   = "Change of data"
	CategoryConsultation = "Consultation"
	CategoryClaim        = "Claim"
	CategoryTechIssue    = "Technical issue"
	CategoryFraud        = "Fraud"
	CategorySpam         = "Spam"
)

const (
	SentimentPositive = "Positive"
	SentimentNeutral  = "Neutral"
	SentimentNegative = "Negative"
)

const (
	LangRU = "RU"
	LangKZ = "KZ"
	LangEN = "ENG"
)

const (
	SegmentMass     = "MASS"
	SegmentVIP      = "VIP"
	SegmentPriority = "PRIORITY"
)

// RoleSenior is the canonical senior-specialist role required for
// data-change tickets.
const RoleSenior = "Глав спец"

type Ticket struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Segment    string    `json:"segment"`
	Country    string    `json:"country"`
	City       string    `json:"city"`
	Street     string    `json:"street"`
	House      string    `json:"house"`
	Message    string    `json:"message"`
	Attachment string    `json:"attachment,omitempty"`
}

type Manager struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Office      string    `json:"office"`
	Role        string    `json:"role"`
	Skills      []string  `json:"skills"`
	CurrentLoad int       `json:"current_load"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Office is a physical service location. Lat/Lon are nil until geocoding
// resolves the address; they stay nil when the address cannot be resolved.
type Office struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Address string   `json:"address"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
}

func (o Office) HasCoords() bool {
	return o.Lat != nil && o.Lon != nil
}

// Classification is the structured result of the oracle call.
type Classification struct {
	TicketID  string    `json:"ticket_id,omitempty"`
	Category  string    `json:"category"`
	Sentiment string    `json:"sentiment"`
	Priority  int       `json:"priority"`
	Language  string    `json:"language"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// RouteResult is the single output row produced per ticket. Pointer fields
// are nil when the corresponding stage was skipped or failed.
type RouteResult struct {
	TicketID       string          `json:"ticket_id"`
	Segment        string          `json:"segment"`
	Description    string          `json:"description"`
	Classification *Classification `json:"classification"`
	ClassifyError  string          `json:"classify_error,omitempty"`
	ClientLat      *float64        `json:"client_lat"`
	ClientLon      *float64        `json:"client_lon"`
	Office         *string         `json:"office"`
	Manager        *string         `json:"manager"`
	ManagerID      *string         `json:"manager_id,omitempty"`
}

type Assignment struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	ManagerID  *string   `json:"manager_id"`
	Office     string    `json:"office"`
	Status     string    `json:"status"`
	ReasonCode string    `json:"reason_code"`
	ReasonText string    `json:"reason_text"`
	Reasoning  []byte    `json:"reasoning"`
	AssignedAt time.Time `json:"assigned_at"`
}

type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`
	Summary    []byte    `json:"summary"`
}
