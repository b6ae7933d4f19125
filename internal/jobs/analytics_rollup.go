package jobs

import (
	"fmt"
	"time"

	"github.com/mintcal/mintcal/internal/domain"
	"github.com/mintcal/mintcal/internal/queue"
)

// AnalyticsRollup aggregates one UTC day of raw page-view and order rows
// into the analytics_rollups table. Re-running a day overwrites its
// previous rollup, so replays and duplicate enqueues are harmless.
type AnalyticsRollup struct {
	analytics domain.AnalyticsStore
	now       func() time.Time
}

func NewAnalyticsRollup(analytics domain.AnalyticsStore) *AnalyticsRollup {
	return &AnalyticsRollup{analytics: analytics, now: time.Now}
}

func (h *AnalyticsRollup) Name() string { return domain.QueueAnalyticsRollup }

func (h *AnalyticsRollup) Execute(ctx domain.Context, run *queue.JobRun) domain.Result {
	var payload domain.RollupPayload
	if len(run.Payload) > 0 {
		var err error
		payload, err = queue.DecodePayload[domain.RollupPayload](run, false)
		if err != nil {
			return domain.TerminalFailure("invalid_payload", err)
		}
	}
	day := payload.Day
	if day == "" {
		// Replays enqueued by hand may omit the day; default to the
		// previous UTC day, same as the scheduler.
		day = h.now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	}
	dayStart, err := time.ParseInLocation("2006-01-02", day, time.UTC)
	if err != nil {
		return domain.TerminalFailure("invalid_payload", fmt.Errorf("day %q: %w", day, err))
	}

	n, err := h.analytics.RollupDay(ctx, dayStart)
	if err != nil {
		return domain.RetryableFailure("rollup_failed", err)
	}
	run.Log.Info("analytics day rolled up", "day", day, "metrics", n)
	return domain.Success()
}
