package httpserver

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mintcal/mintcal/internal/domain"
)

// adminJobView is the row shape the admin list endpoint returns. It
// flattens the queue row flags into the derived state.
type adminJobView struct {
	ID          string    `json:"id"`
	Queue       string    `json:"queue"`
	State       string    `json:"state"`
	ActorID     string    `json:"actorId,omitempty"`
	Priority    int       `json:"priority"`
	RunAt       time.Time `json:"runAt"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"maxAttempts"`
	LastError   string    `json:"lastError,omitempty"`
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
}

func adminJobViewOf(j domain.Job) adminJobView {
	return adminJobView{
		ID:          j.ID,
		Queue:       j.QueueName,
		State:       string(j.State()),
		ActorID:     j.ActorID,
		Priority:    j.Priority,
		RunAt:       j.RunAt,
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		LastError:   j.LastError,
		Created:     j.Created,
		Updated:     j.Updated,
	}
}

// AdminLoginHandler checks the configured admin credentials and sets the
// session cookie.
func (s *Server) AdminLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
		var req struct {
			Username string `json:"username" validate:"required"`
			Password string `json:"password" validate:"required"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}

		// Evaluate both checks before combining so a wrong username costs
		// the same as a wrong password.
		userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.Cfg.AdminUsername)) == 1
		passOK := VerifyPassword(req.Password, s.Cfg.AdminPasswordHash)
		if !userOK || !passOK {
			writeError(w, r, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized), nil)
			return
		}

		sessionValue, err := s.Sessions.CreateSession(req.Username)
		if err != nil {
			writeError(w, r, fmt.Errorf("create session: %w", err), nil)
			return
		}
		s.Sessions.SetSessionCookie(w, sessionValue)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// AdminLogoutHandler clears the session cookie.
func (s *Server) AdminLogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.Sessions.ClearSessionCookie(w)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// AdminListJobsHandler lists queue rows, newest first, narrowed by the
// query string.
func (s *Server) AdminListJobsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseListJobsFilter(r)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		jobs, err := s.Jobs.ListJobs(r.Context(), f)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		views := make([]adminJobView, 0, len(jobs))
		for _, j := range jobs {
			views = append(views, adminJobViewOf(j))
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
	}
}

// AdminRetryJobHandler clones a terminally failed job as a fresh pending
// one and returns the new id.
func (s *Server) AdminRetryJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobID")
		if err := validateJobID(id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		newID, err := s.Jobs.RetryFailed(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"jobId": newID})
	}
}
