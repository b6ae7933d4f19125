package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/mintcal/mintcal/internal/adapter/observability"
	"github.com/mintcal/mintcal/internal/domain"
)

// rollupHourUTC is the earliest UTC hour at which the previous day's
// analytics rollup is scheduled. By then every timezone has finished the
// previous UTC day and late page-view writes have settled.
const rollupHourUTC = 2

// Scheduler enqueues recurring jobs from a plain ticker loop. Recurrence
// dedupe rides on the store's (queue_name, dedupe_key) uniqueness with a
// day-bucketed key, so running several schedulers (one per process) stays
// safe: concurrent enqueues for the same bucket collapse to one row, and
// the FindByDedupeKey probe skips buckets whose job already ran to a
// terminal state.
type Scheduler struct {
	store    domain.JobStore
	interval time.Duration
	wake     func()

	// Per-bucket guards so a long-lived process does not re-probe the
	// store every tick after it has already covered a bucket.
	lastRollupDay  string
	lastCleanupDay string

	now func() time.Time
}

// NewScheduler builds a scheduler ticking at interval (default 1m). wake,
// when non-nil, nudges the local dispatcher after an enqueue.
func NewScheduler(store domain.JobStore, interval time.Duration, wake func()) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		store:    store,
		interval: interval,
		wake:     wake,
		now:      time.Now,
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler starting", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tickOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopping")
			return
		case <-ticker.C:
			s.tickOnce(ctx)
		}
	}
}

func (s *Scheduler) tickOnce(ctx context.Context) {
	now := s.now().UTC()
	s.scheduleRollup(ctx, now)
	s.scheduleCleanup(ctx, now)
}

// scheduleRollup enqueues analytics_rollup for the previous UTC day once
// the clock passes the rollup hour.
func (s *Scheduler) scheduleRollup(ctx context.Context, now time.Time) {
	if now.Hour() < rollupHourUTC {
		return
	}
	day := now.AddDate(0, 0, -1).Format("2006-01-02")
	if s.lastRollupDay == day {
		return
	}
	payload, err := json.Marshal(domain.RollupPayload{Day: day})
	if err != nil {
		slog.Error("marshal rollup payload failed", slog.Any("error", err))
		return
	}
	if s.schedule(ctx, domain.QueueAnalyticsRollup, day, payload) {
		s.lastRollupDay = day
	}
}

// scheduleCleanup enqueues guest_session_cleanup once per UTC day.
func (s *Scheduler) scheduleCleanup(ctx context.Context, now time.Time) {
	day := now.Format("2006-01-02")
	if s.lastCleanupDay == day {
		return
	}
	if s.schedule(ctx, domain.QueueGuestSessionCleanup, day, []byte(`{}`)) {
		s.lastCleanupDay = day
	}
}

// schedule enqueues one bucketed recurring job. It reports true when the
// bucket is covered, either by a fresh enqueue or by a row some scheduler
// already created, and false on store errors so the next tick retries.
func (s *Scheduler) schedule(ctx context.Context, queueName, bucket string, payload []byte) bool {
	key := queueName + ":" + bucket

	// The enqueue dedupe only collapses against non-terminal rows. The
	// probe also sees terminal ones, which is what keeps a finished bucket
	// from being rescheduled for the rest of the day.
	_, err := s.store.FindByDedupeKey(ctx, queueName, key)
	switch {
	case err == nil:
		return true
	case !errors.Is(err, domain.ErrNotFound):
		slog.Error("schedule probe failed",
			slog.String("queue", queueName),
			slog.String("dedupe_key", key),
			slog.Any("error", err))
		return false
	}

	jobID, err := s.store.Enqueue(ctx, queueName, payload, domain.EnqueueOptions{
		DedupeKey: key,
	})
	if err != nil {
		slog.Error("schedule enqueue failed",
			slog.String("queue", queueName),
			slog.String("dedupe_key", key),
			slog.Any("error", err))
		return false
	}
	observability.EnqueueJob(queueName)
	slog.Info("recurring job scheduled",
		slog.String("queue", queueName),
		slog.String("dedupe_key", key),
		slog.String("job_id", jobID))
	if s.wake != nil {
		s.wake()
	}
	return true
}
