package httpserver

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/mintcal/mintcal/internal/domain"
)

// maxListLimit mirrors the cap the job store enforces so bad requests
// fail at the edge with a clear message.
const maxListLimit = 500

var jobIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validateJobID rejects ids that cannot possibly name a job before the
// store is consulted.
func validateJobID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: job id missing", domain.ErrInvalidArgument)
	case len(id) > 100:
		return fmt.Errorf("%w: job id too long", domain.ErrInvalidArgument)
	case !jobIDPattern.MatchString(id):
		return fmt.Errorf("%w: job id contains invalid characters", domain.ErrInvalidArgument)
	}
	return nil
}

// parseListJobsFilter builds a job list filter from the admin query
// string: queue, status, actor, created_after (RFC 3339) and limit.
func parseListJobsFilter(r *http.Request) (domain.ListJobsFilter, error) {
	q := r.URL.Query()
	f := domain.ListJobsFilter{
		QueueName: q.Get("queue"),
		ActorID:   q.Get("actor"),
	}
	if st := q.Get("status"); st != "" {
		switch domain.JobState(st) {
		case domain.JobPending, domain.JobInProgress, domain.JobSucceeded, domain.JobFailed:
			f.State = domain.JobState(st)
		default:
			return f, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidArgument, st)
		}
	}
	if v := q.Get("created_after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("%w: created_after must be RFC 3339", domain.ErrInvalidArgument)
		}
		f.CreatedAfter = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			return f, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrInvalidArgument, maxListLimit)
		}
		f.Limit = n
	}
	return f, nil
}
