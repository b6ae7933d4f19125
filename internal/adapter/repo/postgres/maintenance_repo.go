package postgres

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/mintcal/mintcal/internal/domain"
)

// MaintenanceRepo handles data retention for sessions and finished jobs.
type MaintenanceRepo struct{ Pool PgxPool }

// NewMaintenanceRepo constructs a MaintenanceRepo with the given pool.
func NewMaintenanceRepo(p PgxPool) *MaintenanceRepo { return &MaintenanceRepo{Pool: p} }

// DeleteExpiredGuestSessions removes guest sessions whose expiry has passed.
func (r *MaintenanceRepo) DeleteExpiredGuestSessions(ctx domain.Context, now time.Time) (int64, error) {
	tracer := otel.Tracer("repo.maintenance")
	ctx, span := tracer.Start(ctx, "maintenance.DeleteExpiredGuestSessions")
	defer span.End()

	tag, err := r.Pool.Exec(ctx, `DELETE FROM guest_sessions WHERE expires_at < $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("op=maintenance.delete_guest_sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PruneTerminalJobs removes terminal job rows that finished before cutoff.
// Non-terminal rows are never touched, so pruning cannot race the claim
// protocol.
func (r *MaintenanceRepo) PruneTerminalJobs(ctx domain.Context, cutoff time.Time) (int64, error) {
	tracer := otel.Tracer("repo.maintenance")
	ctx, span := tracer.Start(ctx, "maintenance.PruneTerminalJobs")
	defer span.End()

	q := `DELETE FROM jobs
		WHERE (complete OR completed_with_failure)
		  AND COALESCE(completed_at, failed_at, updated) < $1`
	tag, err := r.Pool.Exec(ctx, q, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("op=maintenance.prune_jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
