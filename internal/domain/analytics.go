package domain

import "time"

// RollupPayload is the typed payload of analytics_rollup jobs. Day is the
// UTC day to aggregate, formatted 2006-01-02.
type RollupPayload struct {
	Day string `json:"day"`
}

// AnalyticsStore materializes daily metric rollups from raw event rows.
type AnalyticsStore interface {
	// RollupDay recomputes and upserts every metric for the UTC day starting
	// at dayStart, returning the number of metric rows written. Re-running a
	// day overwrites its previous rollup.
	RollupDay(ctx Context, dayStart time.Time) (int64, error)
}

// MaintenanceStore covers periodic data hygiene performed by queue handlers.
type MaintenanceStore interface {
	// DeleteExpiredGuestSessions removes guest sessions whose expiry is
	// before now and returns the count.
	DeleteExpiredGuestSessions(ctx Context, now time.Time) (int64, error)

	// PruneTerminalJobs removes terminal job rows finished before cutoff and
	// returns the count.
	PruneTerminalJobs(ctx Context, cutoff time.Time) (int64, error)
}
