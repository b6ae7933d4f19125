package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mintcal/mintcal/internal/adapter/observability"
	"github.com/mintcal/mintcal/internal/domain"
)

// JobStatus is the wire shape of the status endpoint. Nullable fields
// marshal as explicit nulls rather than vanishing so clients bind a
// stable shape.
type JobStatus struct {
	JobID       string  `json:"jobId"`
	State       string  `json:"state"`
	ProgressPct *int    `json:"progressPct"`
	ResultURL   *string `json:"resultUrl"`
	Error       *string `json:"error"`
	Attempts    int     `json:"attempts"`
}

// GetJobStatus assembles the external view of one job: row state, advisory
// progress, a fresh signed download URL for finished renders and the short
// failure reason.
func (s *JobService) GetJobStatus(ctx domain.Context, jobID string) (JobStatus, error) {
	if jobID == "" {
		return JobStatus{}, fmt.Errorf("op=usecase.job_status: job id required: %w", domain.ErrInvalidArgument)
	}
	job, err := s.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return JobStatus{}, fmt.Errorf("op=usecase.job_status: %w", err)
	}

	st := JobStatus{JobID: job.ID, State: string(job.State()), Attempts: job.Attempts}
	switch job.State() {
	case domain.JobPending:
		st.ProgressPct = ptr(0)
	case domain.JobInProgress:
		if pct, ok := s.Progress.Get(job.ID); ok {
			st.ProgressPct = ptr(pct)
		}
	case domain.JobSucceeded:
		st.ProgressPct = ptr(100)
		if url := s.resultURL(ctx, job); url != "" {
			st.ResultURL = &url
		}
	case domain.JobFailed:
		if reason := shortReason(job.LastError); reason != "" {
			st.Error = &reason
		}
	}
	return st, nil
}

// ListJobs returns recent jobs for the admin view. Filter normalization
// lives in the store.
func (s *JobService) ListJobs(ctx domain.Context, f domain.ListJobsFilter) ([]domain.Job, error) {
	list, err := s.Jobs.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("op=usecase.list_jobs: %w", err)
	}
	return list, nil
}

// RetryFailed clones a terminal-failed job into a fresh pending one and
// returns the new id.
func (s *JobService) RetryFailed(ctx domain.Context, jobID string) (string, error) {
	src, err := s.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("op=usecase.retry_job: %w", err)
	}
	newID, err := s.Jobs.CloneForRetry(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("op=usecase.retry_job: %w", err)
	}
	observability.EnqueueJob(src.QueueName)
	if s.Wake != nil {
		s.Wake()
	}
	return newID, nil
}

// CancelJob cancels a pending job. Racing the dispatcher is a conflict:
// once a worker holds the row it either finishes or retries on its own.
func (s *JobService) CancelJob(ctx domain.Context, jobID string) error {
	ok, err := s.Jobs.CancelPending(ctx, jobID)
	if err != nil {
		return fmt.Errorf("op=usecase.cancel_job: %w", err)
	}
	if !ok {
		return fmt.Errorf("op=usecase.cancel_job: job %s is not pending: %w", jobID, domain.ErrConflict)
	}
	return nil
}

// resultURL mints a signed URL for a finished pdf_generate job. Minting is
// best effort: a job can outlive its calendar, and a superseded result row
// means a newer render owns the link now; both degrade to null rather than
// failing the status call.
func (s *JobService) resultURL(ctx domain.Context, job domain.Job) string {
	if job.QueueName != domain.QueuePDFGenerate {
		return ""
	}
	var payload domain.PDFJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil || payload.CalendarID == "" {
		return ""
	}
	cal, err := s.Calendars.Get(ctx, payload.CalendarID)
	if err != nil || cal.PDFObjectKey == "" {
		return ""
	}
	url, err := s.Store.SignedGet(ctx, cal.PDFObjectKey, s.URLTTL)
	if err != nil {
		slog.Warn("signed url minting failed",
			slog.String("job_id", job.ID), slog.Any("error", err))
		return ""
	}
	return url
}

// shortReason trims stored last_error down to its leading reason token.
func shortReason(lastError string) string {
	if i := strings.Index(lastError, ":"); i >= 0 {
		return strings.TrimSpace(lastError[:i])
	}
	return lastError
}

func ptr[T any](v T) *T { return &v }
