// Package jobs holds the queue handlers: the PDF render pipeline plus the
// recurring maintenance work (analytics rollup, guest-session cleanup,
// order emails). Handlers own their step-level failure classification and
// return a domain.Result; the dispatcher owns row finalization.
package jobs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/mintcal/mintcal/internal/domain"
	"github.com/mintcal/mintcal/internal/pdfgen"
	"github.com/mintcal/mintcal/internal/queue"
)

const uploadAttempts = 4 // one try plus three in-handler retries

// PDFGenerate renders a calendar deterministically, transcodes it to a
// print-size PDF, uploads it under a fingerprint key and records the
// result on the calendar row.
type PDFGenerate struct {
	calendars domain.CalendarRepository
	users     domain.UserDirectory
	jobs      domain.JobStore
	store     domain.ObjectStore
	catalog   *pdfgen.Catalog

	almanac    domain.Almanac
	transcoder pdfgen.Transcoder
	dailyCap   int

	uploadRetryDelay time.Duration
	now              func() time.Time
}

// NewPDFGenerate wires the handler. dailyCap <= 0 selects the default.
func NewPDFGenerate(
	calendars domain.CalendarRepository,
	users domain.UserDirectory,
	jobs domain.JobStore,
	store domain.ObjectStore,
	catalog *pdfgen.Catalog,
	dailyCap int,
) *PDFGenerate {
	if dailyCap <= 0 {
		dailyCap = domain.DefaultFreeTierDailyCap
	}
	return &PDFGenerate{
		calendars:        calendars,
		users:            users,
		jobs:             jobs,
		store:            store,
		catalog:          catalog,
		almanac:          pdfgen.BuiltinAlmanac{},
		dailyCap:         dailyCap,
		uploadRetryDelay: 2 * time.Second,
		now:              time.Now,
	}
}

func (h *PDFGenerate) Name() string { return domain.QueuePDFGenerate }

// Execute runs the pipeline. Each step maps its own failures: bad payload,
// missing rows and refusals are terminal; anything a later attempt could
// plausibly complete is retryable. Re-execution after a crash or reclaim
// is safe because the render is deterministic, the upload is keyed by the
// content fingerprint, and the result write is last-writer-wins.
func (h *PDFGenerate) Execute(ctx domain.Context, run *queue.JobRun) domain.Result {
	payload, err := queue.DecodePayload[domain.PDFJobPayload](run, true)
	if err != nil {
		return domain.TerminalFailure("invalid_payload", err)
	}
	if payload.CalendarID == "" {
		return domain.TerminalFailure("invalid_payload", errors.New("calendar_id is required"))
	}
	run.ReportProgress(5)

	cal, err := h.calendars.Get(ctx, payload.CalendarID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.TerminalFailure("calendar_not_found", err)
	}
	if err != nil {
		return domain.RetryableFailure("calendar_load_failed", err)
	}
	events, err := h.calendars.ListEvents(ctx, cal.ID)
	if err != nil {
		return domain.RetryableFailure("calendar_load_failed", err)
	}
	tpl, err := h.catalog.Get(cal.TemplateID)
	if err != nil {
		return domain.TerminalFailure("template_not_found", err)
	}
	run.ReportProgress(10)

	if res, ok := h.authorize(ctx, run, payload, cal); !ok {
		return res
	}
	run.ReportProgress(20)

	fingerprint := pdfgen.Fingerprint(tpl.ID, cal.ConfigVersion, pdfgen.EventsHash(events), payload.Watermark)
	key := payload.OutputKeyHint
	if key == "" {
		key = pdfgen.ObjectKey(cal.OwnerID, cal.ID, fingerprint)
	}
	run.ReportProgress(30)

	exists, err := h.store.Exists(ctx, key)
	if err != nil {
		return domain.RetryableFailure("storage_unavailable", err)
	}
	if exists && cal.PDFObjectKey == key && cal.PDFBytesHash != "" {
		// A previous run of this exact input already produced and recorded
		// the object. Refresh the result row and skip the heavy steps.
		run.Log.Info("fingerprint object already stored", "key", key)
		run.ReportProgress(90)
		return h.record(ctx, run, cal.ID, key, cal.PDFBytesHash)
	}

	svg, err := pdfgen.RenderSVG(pdfgen.RenderInput{
		Template:  tpl,
		Title:     cal.Title,
		Year:      cal.Year,
		Events:    events,
		Options:   pdfgen.ParseRenderOptions(cal.Config),
		Watermark: payload.Watermark,
		Almanac:   h.almanac,
	})
	if err != nil {
		// The renderer is a pure function; its failures do not improve
		// with retries.
		return domain.TerminalFailure("render_failed", err)
	}
	run.ReportProgress(40)

	pdfBytes, err := h.transcoder.Transcode(ctx, svg, tpl.Page)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return domain.RetryableFailure("cancelled", err)
	case errors.Is(err, pdfgen.ErrRasterBudget):
		return domain.RetryableFailure("memory_exhausted", err)
	case errors.Is(err, domain.ErrInvalidArgument):
		return domain.TerminalFailure("render_failed", err)
	default:
		return domain.RetryableFailure("render_failed", err)
	}
	sum := sha256.Sum256(pdfBytes)
	digest := hex.EncodeToString(sum[:])
	run.ReportProgress(70)

	if !exists {
		if res, ok := h.upload(ctx, key, pdfBytes); !ok {
			return res
		}
	}
	run.ReportProgress(90)
	return h.record(ctx, run, cal.ID, key, digest)
}

// authorize enforces ownership when the payload names a requester, and the
// free-tier daily cap when that requester is not on a paid plan. The cap
// counts store rows rather than trusting the façade, so direct enqueues
// are bounded too.
func (h *PDFGenerate) authorize(ctx domain.Context, run *queue.JobRun, payload domain.PDFJobPayload, cal domain.Calendar) (domain.Result, bool) {
	if payload.RequestedByUserID == "" {
		return domain.Result{}, true
	}
	user, err := h.users.Get(ctx, payload.RequestedByUserID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.TerminalFailure("unauthorized", err), false
	}
	if err != nil {
		return domain.RetryableFailure("user_load_failed", err), false
	}
	if !user.Admin && cal.OwnerID != user.ID {
		return domain.TerminalFailure("unauthorized",
			fmt.Errorf("user %s does not own calendar %s", user.ID, cal.ID)), false
	}
	if user.Paid() {
		return domain.Result{}, true
	}
	since := h.now().Add(-24 * time.Hour)
	n, err := h.jobs.CountRecentByRequester(ctx, domain.QueuePDFGenerate, user.ID, since, run.ID)
	if err != nil {
		return domain.RetryableFailure("rate_check_failed", err), false
	}
	if n >= h.dailyCap {
		return domain.TerminalFailure("rate_limited",
			fmt.Errorf("%d pdf jobs in the last 24h, cap %d", n, h.dailyCap)), false
	}
	return domain.Result{}, true
}

// upload puts the PDF with a few short in-handler retries on transient
// storage errors. This layer smooths over blips; endpoint outages fall
// through to the job-level backoff.
func (h *PDFGenerate) upload(ctx domain.Context, key string, pdfBytes []byte) (domain.Result, bool) {
	op := func() error {
		err := h.store.Put(ctx, key, pdfBytes, "application/pdf")
		if err == nil || errors.Is(err, domain.ErrTransient) {
			return err
		}
		return backoff.Permanent(err)
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(h.uploadRetryDelay), uploadAttempts-1), ctx)
	err := backoff.Retry(op, bo)
	if err == nil {
		return domain.Result{}, true
	}
	if ctx.Err() != nil {
		return domain.RetryableFailure("cancelled", err), false
	}
	if errors.Is(err, domain.ErrTransient) {
		return domain.RetryableFailure("storage_unavailable", err), false
	}
	return domain.TerminalFailure("storage_unavailable", err), false
}

func (h *PDFGenerate) record(ctx domain.Context, run *queue.JobRun, calendarID, key, digest string) domain.Result {
	applied, err := h.calendars.RecordPDFResult(ctx, domain.PDFResult{
		CalendarID:  calendarID,
		ObjectKey:   key,
		BytesHash:   digest,
		GeneratedAt: h.now().UTC(),
		JobID:       run.ID,
	})
	if err != nil {
		return domain.RetryableFailure("result_record_failed", err)
	}
	if !applied {
		run.Log.Info("newer pdf result already recorded", "calendar_id", calendarID)
	}
	run.ReportProgress(100)
	return domain.Success()
}
