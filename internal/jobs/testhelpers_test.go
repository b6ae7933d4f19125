package jobs

import (
	"log/slog"
	"testing"
	"time"

	"github.com/mintcal/mintcal/internal/domain"
	"github.com/mintcal/mintcal/internal/pdfgen"
	"github.com/mintcal/mintcal/internal/queue"
)

// The fakes follow the queue package's test style: per-method closures, and
// any call a case did not wire fails the test.

type fakeCalendars struct {
	t *testing.T

	get             func(ctx domain.Context, id string) (domain.Calendar, error)
	listEvents      func(ctx domain.Context, calendarID string) ([]domain.CalendarEvent, error)
	recordPDFResult func(ctx domain.Context, res domain.PDFResult) (bool, error)
}

func (f *fakeCalendars) Get(ctx domain.Context, id string) (domain.Calendar, error) {
	if f.get == nil {
		f.t.Fatalf("unexpected Get(%s)", id)
	}
	return f.get(ctx, id)
}

func (f *fakeCalendars) ListEvents(ctx domain.Context, calendarID string) ([]domain.CalendarEvent, error) {
	if f.listEvents == nil {
		f.t.Fatalf("unexpected ListEvents(%s)", calendarID)
	}
	return f.listEvents(ctx, calendarID)
}

func (f *fakeCalendars) RecordPDFResult(ctx domain.Context, res domain.PDFResult) (bool, error) {
	if f.recordPDFResult == nil {
		f.t.Fatalf("unexpected RecordPDFResult(%s)", res.CalendarID)
	}
	return f.recordPDFResult(ctx, res)
}

type fakeUsers struct {
	t   *testing.T
	get func(ctx domain.Context, id string) (domain.User, error)
}

func (f *fakeUsers) Get(ctx domain.Context, id string) (domain.User, error) {
	if f.get == nil {
		f.t.Fatalf("unexpected users.Get(%s)", id)
	}
	return f.get(ctx, id)
}

type fakeObjectStore struct {
	t *testing.T

	put    func(ctx domain.Context, key string, body []byte, contentType string) error
	exists func(ctx domain.Context, key string) (bool, error)
}

func (f *fakeObjectStore) Put(ctx domain.Context, key string, body []byte, contentType string) error {
	if f.put == nil {
		f.t.Fatalf("unexpected Put(%s)", key)
	}
	return f.put(ctx, key, body, contentType)
}

func (f *fakeObjectStore) Exists(ctx domain.Context, key string) (bool, error) {
	if f.exists == nil {
		f.t.Fatalf("unexpected Exists(%s)", key)
	}
	return f.exists(ctx, key)
}

func (f *fakeObjectStore) SignedGet(domain.Context, string, time.Duration) (string, error) {
	f.t.Fatalf("unexpected SignedGet")
	return "", nil
}

func (f *fakeObjectStore) Delete(domain.Context, string) error {
	f.t.Fatalf("unexpected Delete")
	return nil
}

// fakeJobStore only wires the one store method the pdf handler uses; the
// rest of the port belongs to the dispatcher side.
type fakeJobStore struct {
	t *testing.T

	countRecentByRequester func(ctx domain.Context, queueName, userID string, since time.Time, excludeJobID string) (int, error)
}

func (f *fakeJobStore) CountRecentByRequester(ctx domain.Context, queueName, userID string, since time.Time, excludeJobID string) (int, error) {
	if f.countRecentByRequester == nil {
		f.t.Fatalf("unexpected CountRecentByRequester(%s, %s)", queueName, userID)
	}
	return f.countRecentByRequester(ctx, queueName, userID, since, excludeJobID)
}

func (f *fakeJobStore) Enqueue(domain.Context, string, []byte, domain.EnqueueOptions) (string, error) {
	f.t.Fatalf("unexpected Enqueue")
	return "", nil
}

func (f *fakeJobStore) ClaimBatch(domain.Context, string, int) ([]domain.Job, error) {
	f.t.Fatalf("unexpected ClaimBatch")
	return nil, nil
}

func (f *fakeJobStore) CompleteSuccess(domain.Context, string, string) error {
	f.t.Fatalf("unexpected CompleteSuccess")
	return nil
}

func (f *fakeJobStore) CompleteFailure(domain.Context, string, string, string, *time.Time) error {
	f.t.Fatalf("unexpected CompleteFailure")
	return nil
}

func (f *fakeJobStore) ReclaimStuck(domain.Context, time.Duration) (int64, error) {
	f.t.Fatalf("unexpected ReclaimStuck")
	return 0, nil
}

func (f *fakeJobStore) GetByID(domain.Context, string) (domain.Job, error) {
	f.t.Fatalf("unexpected GetByID")
	return domain.Job{}, nil
}

func (f *fakeJobStore) List(domain.Context, domain.ListJobsFilter) ([]domain.Job, error) {
	f.t.Fatalf("unexpected List")
	return nil, nil
}

func (f *fakeJobStore) CancelPending(domain.Context, string) (bool, error) {
	f.t.Fatalf("unexpected CancelPending")
	return false, nil
}

func (f *fakeJobStore) FindByDedupeKey(domain.Context, string, string) (domain.Job, error) {
	f.t.Fatalf("unexpected FindByDedupeKey")
	return domain.Job{}, nil
}

func (f *fakeJobStore) CloneForRetry(domain.Context, string) (string, error) {
	f.t.Fatalf("unexpected CloneForRetry")
	return "", nil
}

type fakeOrders struct {
	t        *testing.T
	getOrder func(ctx domain.Context, id string) (domain.Order, error)
}

func (f *fakeOrders) GetOrder(ctx domain.Context, id string) (domain.Order, error) {
	if f.getOrder == nil {
		f.t.Fatalf("unexpected GetOrder(%s)", id)
	}
	return f.getOrder(ctx, id)
}

type fakeMailer struct {
	t    *testing.T
	send func(ctx domain.Context, msg domain.MailMessage) error
}

func (f *fakeMailer) Send(ctx domain.Context, msg domain.MailMessage) error {
	if f.send == nil {
		f.t.Fatalf("unexpected Send(%s)", msg.To)
	}
	return f.send(ctx, msg)
}

type fakeAnalytics struct {
	t         *testing.T
	rollupDay func(ctx domain.Context, dayStart time.Time) (int64, error)
}

func (f *fakeAnalytics) RollupDay(ctx domain.Context, dayStart time.Time) (int64, error) {
	if f.rollupDay == nil {
		f.t.Fatalf("unexpected RollupDay(%v)", dayStart)
	}
	return f.rollupDay(ctx, dayStart)
}

type fakeMaintenance struct {
	t *testing.T

	deleteExpiredGuestSessions func(ctx domain.Context, now time.Time) (int64, error)
	pruneTerminalJobs          func(ctx domain.Context, cutoff time.Time) (int64, error)
}

func (f *fakeMaintenance) DeleteExpiredGuestSessions(ctx domain.Context, now time.Time) (int64, error) {
	if f.deleteExpiredGuestSessions == nil {
		f.t.Fatalf("unexpected DeleteExpiredGuestSessions")
	}
	return f.deleteExpiredGuestSessions(ctx, now)
}

func (f *fakeMaintenance) PruneTerminalJobs(ctx domain.Context, cutoff time.Time) (int64, error) {
	if f.pruneTerminalJobs == nil {
		f.t.Fatalf("unexpected PruneTerminalJobs")
	}
	return f.pruneTerminalJobs(ctx, cutoff)
}

func testRun(id string, payload []byte) *queue.JobRun {
	return &queue.JobRun{
		ID:          id,
		Attempts:    1,
		MaxAttempts: 3,
		Payload:     payload,
		Log:         slog.Default(),
	}
}

// proofCatalog returns a catalog whose default template is small enough to
// rasterize inside unit tests.
func proofCatalog(t *testing.T) *pdfgen.Catalog {
	t.Helper()
	cat, err := pdfgen.NewCatalog([]pdfgen.Template{{
		ID:   pdfgen.DefaultTemplateID,
		Name: "Classic Year",
		Page: pdfgen.PageSpec{WidthIn: 4, HeightIn: 3, DPI: 24},
		Style: pdfgen.StyleSpec{
			Background: "#ffffff",
			Ink:        "#1f2430",
			Accent:     "#e05252",
			Muted:      "#a2a7b4",
			Weekend:    "#f3f4f7",
			FontFamily: "Helvetica",
		},
	}})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return cat
}
