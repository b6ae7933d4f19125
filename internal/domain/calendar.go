package domain

import "time"

// User plans.
const (
	PlanFree = "free"
	PlanPaid = "paid"
)

// User is the minimal slice of the account schema the job subsystem needs:
// plan tier for watermark/rate-limit policy and the admin flag for
// authorization. The full account model lives outside this repo.
type User struct {
	ID    string
	Email string
	Plan  string
	Admin bool
}

// Paid reports whether the user is on a paying plan.
func (u User) Paid() bool {
	return u.Plan == PlanPaid
}

// UserDirectory resolves users referenced by id.
type UserDirectory interface {
	Get(ctx Context, id string) (User, error)
}

// Calendar is a customer's calendar design plus the most recent PDF render
// result recorded against it.
type Calendar struct {
	ID            string
	OwnerID       string // user id, or guest session id for anonymous carts
	TemplateID    string
	Title         string
	Year          int
	ConfigVersion int64
	Config        []byte // editor options, opaque here

	PDFObjectKey   string
	PDFBytesHash   string
	PDFGeneratedAt *time.Time
	PDFLastJobID   string

	Created time.Time
	Updated time.Time
}

// CalendarEvent is a dated entry the renderer draws onto the grid.
type CalendarEvent struct {
	ID         string
	CalendarID string
	Date       time.Time // date component only
	Label      string
	Color      string // hex, optional
}

// PDFResult is the render outcome recorded on the calendar row.
type PDFResult struct {
	CalendarID  string
	ObjectKey   string
	BytesHash   string
	GeneratedAt time.Time
	JobID       string
}

// CalendarRepository loads calendar designs and records render results.
type CalendarRepository interface {
	Get(ctx Context, id string) (Calendar, error)
	ListEvents(ctx Context, calendarID string) ([]CalendarEvent, error)

	// RecordPDFResult applies the result last-writer-wins by GeneratedAt:
	// it returns false without writing when the calendar already carries a
	// strictly newer result.
	RecordPDFResult(ctx Context, res PDFResult) (bool, error)
}

// DefaultFreeTierDailyCap caps pdf_generate jobs per free-tier user per
// rolling 24h. The façade fast-fails on it before enqueue; the handler
// re-checks it against the store, which stays authoritative.
const DefaultFreeTierDailyCap = 3

// PDFJobPayload is the typed payload of pdf_generate jobs.
type PDFJobPayload struct {
	CalendarID        string `json:"calendar_id"`
	Watermark         bool   `json:"watermark"`
	RequestedByUserID string `json:"requested_by_user_id,omitempty"`
	OutputKeyHint     string `json:"output_key_hint,omitempty"`
}

// OrderEmailPayload is the typed payload of order_email jobs.
type OrderEmailPayload struct {
	OrderID string `json:"order_id"`
}

// Order is the minimal order slice the email handler formats from.
type Order struct {
	ID         string
	UserID     string
	Email      string
	CalendarID string
	TotalCents int64
	Status     string
	Created    time.Time
}

// OrderDirectory resolves orders referenced by id.
type OrderDirectory interface {
	GetOrder(ctx Context, id string) (Order, error)
}

// MailMessage is a rendered outbound email.
type MailMessage struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers rendered messages. SMTP integration is a deployment
// concern; the shipped implementation records and logs.
type Mailer interface {
	Send(ctx Context, msg MailMessage) error
}
