package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/mintcal/mintcal/internal/domain"
)

// CalendarRepo loads calendar designs and records PDF render results.
type CalendarRepo struct{ Pool PgxPool }

// NewCalendarRepo constructs a CalendarRepo with the given pool.
func NewCalendarRepo(p PgxPool) *CalendarRepo { return &CalendarRepo{Pool: p} }

// Get loads a calendar by id.
func (r *CalendarRepo) Get(ctx domain.Context, id string) (domain.Calendar, error) {
	tracer := otel.Tracer("repo.calendars")
	ctx, span := tracer.Start(ctx, "calendars.Get")
	defer span.End()

	q := `SELECT id, owner_id, template_id, title, year, config_version, config,
		COALESCE(pdf_object_key,''), COALESCE(pdf_bytes_hash,''), pdf_generated_at,
		COALESCE(pdf_last_job_id::text,''), created, updated
		FROM calendars WHERE id = $1`
	var c domain.Calendar
	err := r.Pool.QueryRow(ctx, q, id).Scan(
		&c.ID, &c.OwnerID, &c.TemplateID, &c.Title, &c.Year, &c.ConfigVersion, &c.Config,
		&c.PDFObjectKey, &c.PDFBytesHash, &c.PDFGeneratedAt,
		&c.PDFLastJobID, &c.Created, &c.Updated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Calendar{}, fmt.Errorf("op=calendar.get: %w", domain.ErrNotFound)
		}
		return domain.Calendar{}, fmt.Errorf("op=calendar.get: %w", err)
	}
	return c, nil
}

// ListEvents returns the calendar's events ordered by date then id, the same
// order the renderer hashes them in.
func (r *CalendarRepo) ListEvents(ctx domain.Context, calendarID string) ([]domain.CalendarEvent, error) {
	tracer := otel.Tracer("repo.calendars")
	ctx, span := tracer.Start(ctx, "calendars.ListEvents")
	defer span.End()

	q := `SELECT id, calendar_id, event_date, label, COALESCE(color,'')
		FROM calendar_events
		WHERE calendar_id = $1
		ORDER BY event_date ASC, id ASC`
	rows, err := r.Pool.Query(ctx, q, calendarID)
	if err != nil {
		return nil, fmt.Errorf("op=calendar.list_events: %w", err)
	}
	defer rows.Close()

	var out []domain.CalendarEvent
	for rows.Next() {
		var ev domain.CalendarEvent
		if err := rows.Scan(&ev.ID, &ev.CalendarID, &ev.Date, &ev.Label, &ev.Color); err != nil {
			return nil, fmt.Errorf("op=calendar.list_events_scan: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=calendar.list_events_rows: %w", err)
	}
	return out, nil
}

// RecordPDFResult applies a render result last-writer-wins by GeneratedAt.
// It returns false without writing when the stored result is newer.
func (r *CalendarRepo) RecordPDFResult(ctx domain.Context, res domain.PDFResult) (bool, error) {
	tracer := otel.Tracer("repo.calendars")
	ctx, span := tracer.Start(ctx, "calendars.RecordPDFResult")
	defer span.End()

	q := `UPDATE calendars
		SET pdf_object_key = $2,
		    pdf_bytes_hash = $3,
		    pdf_generated_at = $4,
		    pdf_last_job_id = NULLIF($5,'')::uuid,
		    updated = now()
		WHERE id = $1
		  AND (pdf_generated_at IS NULL OR pdf_generated_at <= $4)`
	tag, err := r.Pool.Exec(ctx, q, res.CalendarID, res.ObjectKey, res.BytesHash, res.GeneratedAt.UTC(), res.JobID)
	if err != nil {
		return false, fmt.Errorf("op=calendar.record_pdf: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := r.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM calendars WHERE id = $1)`, res.CalendarID).Scan(&exists); err != nil {
		return false, fmt.Errorf("op=calendar.record_pdf: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("op=calendar.record_pdf: %w", domain.ErrNotFound)
	}
	return false, nil
}
