// Package usecase contains the application services behind the HTTP
// layer: PDF job enqueueing with its quota pre-check, the job status
// read model, and the admin job operations.
package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mintcal/mintcal/internal/adapter/observability"
	"github.com/mintcal/mintcal/internal/domain"
	"github.com/mintcal/mintcal/internal/queue"
	"github.com/mintcal/mintcal/internal/service/ratelimiter"
)

// JobService fronts the durable queue for HTTP handlers: it owns request
// validation, the free-tier quota pre-check and the assembly of the
// external status shape.
type JobService struct {
	Jobs      domain.JobStore
	Calendars domain.CalendarRepository
	Users     domain.UserDirectory
	Store     domain.ObjectStore

	// Limiter is the advisory Redis window. Nil skips Redis and checks
	// the store count directly.
	Limiter  ratelimiter.Limiter
	Progress *queue.ProgressTracker

	// Wake nudges the in-process dispatcher after a local enqueue. Nil in
	// api-only deployments where the workers poll on their own clock.
	Wake func()

	DailyCap int
	URLTTL   time.Duration

	now func() time.Time
}

// NewJobService wires the façade. dailyCap <= 0 and urlTTL <= 0 select
// the documented defaults.
func NewJobService(
	jobs domain.JobStore,
	calendars domain.CalendarRepository,
	users domain.UserDirectory,
	store domain.ObjectStore,
	limiter ratelimiter.Limiter,
	progress *queue.ProgressTracker,
	dailyCap int,
	urlTTL time.Duration,
) *JobService {
	if dailyCap <= 0 {
		dailyCap = domain.DefaultFreeTierDailyCap
	}
	if urlTTL <= 0 {
		urlTTL = domain.DefaultSignedURLTTL
	}
	return &JobService{
		Jobs:      jobs,
		Calendars: calendars,
		Users:     users,
		Store:     store,
		Limiter:   limiter,
		Progress:  progress,
		DailyCap:  dailyCap,
		URLTTL:    urlTTL,
		now:       time.Now,
	}
}

// EnqueuePdfGeneration validates the request, applies the quota pre-check
// and inserts a pdf_generate job. The returned id is immediately pollable
// via GetJobStatus.
func (s *JobService) EnqueuePdfGeneration(ctx domain.Context, calendarID string, watermark bool, userID string) (string, error) {
	if calendarID == "" {
		return "", fmt.Errorf("op=usecase.enqueue_pdf: calendar id required: %w", domain.ErrInvalidArgument)
	}
	cal, err := s.Calendars.Get(ctx, calendarID)
	if err != nil {
		return "", fmt.Errorf("op=usecase.enqueue_pdf: %w", err)
	}
	if userID != "" {
		if err := s.checkQuota(ctx, cal, userID); err != nil {
			return "", err
		}
	}

	payload, err := json.Marshal(domain.PDFJobPayload{
		CalendarID:        calendarID,
		Watermark:         watermark,
		RequestedByUserID: userID,
	})
	if err != nil {
		return "", fmt.Errorf("op=usecase.enqueue_pdf: %w", err)
	}
	jobID, err := s.Jobs.Enqueue(ctx, domain.QueuePDFGenerate, payload, domain.EnqueueOptions{ActorID: calendarID})
	if err != nil {
		return "", fmt.Errorf("op=usecase.enqueue_pdf: %w", err)
	}
	observability.EnqueueJob(domain.QueuePDFGenerate)
	if s.Wake != nil {
		s.Wake()
	}
	return jobID, nil
}

// checkQuota rejects early what the handler would terminally fail anyway:
// unknown requesters, foreign calendars and exhausted free-tier quota. The
// Redis window is advisory; when it is absent or erroring, the store count
// decides, and when that fails too the request proceeds because the
// handler re-checks against the store before rendering.
func (s *JobService) checkQuota(ctx domain.Context, cal domain.Calendar, userID string) error {
	user, err := s.Users.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("op=usecase.enqueue_pdf: requester %s: %w", userID, domain.ErrUnauthorized)
	}
	if err != nil {
		return fmt.Errorf("op=usecase.enqueue_pdf: %w", err)
	}
	if !user.Admin && cal.OwnerID != user.ID {
		return fmt.Errorf("op=usecase.enqueue_pdf: calendar %s: %w", cal.ID, domain.ErrForbidden)
	}
	if user.Paid() {
		return nil
	}

	if s.Limiter != nil {
		dec, err := s.Limiter.Allow(ctx, "pdf:"+user.ID, int64(s.DailyCap))
		if err == nil {
			if !dec.Allowed {
				return fmt.Errorf("op=usecase.enqueue_pdf: %d pdf jobs per day: %w", s.DailyCap, domain.ErrRateLimited)
			}
			return nil
		}
	}
	n, err := s.Jobs.CountRecentByRequester(ctx, domain.QueuePDFGenerate, user.ID, s.now().Add(-24*time.Hour), "")
	if err != nil {
		slog.Warn("quota pre-check unavailable, deferring to handler",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return nil
	}
	if n >= s.DailyCap {
		return fmt.Errorf("op=usecase.enqueue_pdf: %d pdf jobs per day: %w", s.DailyCap, domain.ErrRateLimited)
	}
	return nil
}
