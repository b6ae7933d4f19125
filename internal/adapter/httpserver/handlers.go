package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mintcal/mintcal/internal/config"
	"github.com/mintcal/mintcal/internal/domain"
	"github.com/mintcal/mintcal/internal/usecase"
)

// JobAPI is the slice of the job façade the HTTP layer depends on.
type JobAPI interface {
	EnqueuePdfGeneration(ctx domain.Context, calendarID string, watermark bool, userID string) (string, error)
	GetJobStatus(ctx domain.Context, jobID string) (usecase.JobStatus, error)
	ListJobs(ctx domain.Context, f domain.ListJobsFilter) ([]domain.Job, error)
	RetryFailed(ctx domain.Context, jobID string) (string, error)
	CancelJob(ctx domain.Context, jobID string) error
}

var _ JobAPI = (*usecase.JobService)(nil)

// Server aggregates handler dependencies.
type Server struct {
	Cfg      config.Config
	Jobs     JobAPI
	Sessions *SessionManager

	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
	StoreCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, jobs JobAPI, sessions *SessionManager, dbCheck, redisCheck, storeCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Jobs: jobs, Sessions: sessions, DBCheck: dbCheck, RedisCheck: redisCheck, StoreCheck: storeCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// acceptsJSON rejects requests whose Accept header explicitly refuses
// JSON; every endpoint answers JSON only.
func acceptsJSON(w http.ResponseWriter, r *http.Request) bool {
	a := r.Header.Get("Accept")
	if a == "" || a == "*/*" || strings.Contains(a, "application/json") {
		return true
	}
	writeJSON(w, http.StatusNotAcceptable, errorEnvelope{Error: apiError{
		Code:    "INVALID_ARGUMENT",
		Message: "not acceptable",
		Details: map[string]any{"accept": a},
	}})
	return false
}

func validationDetails(err error) map[string]string {
	verrs := map[string]string{}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			verrs[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	return verrs
}

// EnqueuePDFHandler queues a PDF render for a calendar. The body is
// optional; an empty body means a watermarked render for an anonymous
// requester.
func (s *Server) EnqueuePDFHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		calendarID := chi.URLParam(r, "calendarID")
		if calendarID == "" {
			writeError(w, r, fmt.Errorf("%w: calendar id missing", domain.ErrInvalidArgument), nil)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
		var req struct {
			Watermark *bool  `json:"watermark"`
			UserID    string `json:"userId" validate:"omitempty,max=128"`
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: read body: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		if len(bytes.TrimSpace(body)) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
				return
			}
			if err := getValidator().Struct(req); err != nil {
				writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
				return
			}
		}
		watermark := true
		if req.Watermark != nil {
			watermark = *req.Watermark
		}
		jobID, err := s.Jobs.EnqueuePdfGeneration(r.Context(), calendarID, watermark, req.UserID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
	}
}

// JobStatusHandler returns the lifecycle view of one job.
func (s *Server) JobStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		id := chi.URLParam(r, "jobID")
		if err := validateJobID(id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		st, err := s.Jobs.GetJobStatus(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// CancelJobHandler cancels a job that has not been claimed yet.
func (s *Server) CancelJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobID")
		if err := validateJobID(id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if err := s.Jobs.CancelJob(r.Context(), id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
	}
}

// HealthzHandler reports process liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler probes the queue database, Redis, and the object store.
// A nil check is skipped so api-only and worker deployments can wire the
// probes they actually use.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 3)
		probe := func(name string, fn func(context.Context) error) {
			if fn == nil {
				return
			}
			if err := fn(ctx); err != nil {
				checks = append(checks, check{Name: name, OK: false, Details: err.Error()})
				return
			}
			checks = append(checks, check{Name: name, OK: true})
		}
		probe("db", s.DBCheck)
		probe("redis", s.RedisCheck)
		probe("store", s.StoreCheck)

		st := http.StatusOK
		for _, c := range checks {
			if !c.OK {
				st = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
