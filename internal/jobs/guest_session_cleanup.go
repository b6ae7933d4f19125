package jobs

import (
	"time"

	"github.com/mintcal/mintcal/internal/domain"
	"github.com/mintcal/mintcal/internal/queue"
)

// DefaultTerminalJobRetention keeps finished job rows around long enough
// for support lookups before the cleanup handler prunes them.
const DefaultTerminalJobRetention = 30 * 24 * time.Hour

// GuestSessionCleanup is the daily data-hygiene pass: expired guest
// sessions go first, then terminal job rows past retention.
type GuestSessionCleanup struct {
	maintenance domain.MaintenanceStore
	retention   time.Duration
	now         func() time.Time
}

// NewGuestSessionCleanup wires the handler. retention <= 0 selects the
// default.
func NewGuestSessionCleanup(maintenance domain.MaintenanceStore, retention time.Duration) *GuestSessionCleanup {
	if retention <= 0 {
		retention = DefaultTerminalJobRetention
	}
	return &GuestSessionCleanup{maintenance: maintenance, retention: retention, now: time.Now}
}

func (h *GuestSessionCleanup) Name() string { return domain.QueueGuestSessionCleanup }

func (h *GuestSessionCleanup) Execute(ctx domain.Context, run *queue.JobRun) domain.Result {
	if len(run.Payload) > 0 {
		if _, err := queue.DecodePayload[struct{}](run, false); err != nil {
			return domain.TerminalFailure("invalid_payload", err)
		}
	}
	now := h.now().UTC()

	sessions, err := h.maintenance.DeleteExpiredGuestSessions(ctx, now)
	if err != nil {
		return domain.RetryableFailure("cleanup_failed", err)
	}
	pruned, err := h.maintenance.PruneTerminalJobs(ctx, now.Add(-h.retention))
	if err != nil {
		return domain.RetryableFailure("cleanup_failed", err)
	}
	run.Log.Info("cleanup finished", "guest_sessions", sessions, "pruned_jobs", pruned)
	return domain.Success()
}
