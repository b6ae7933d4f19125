package postgres

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/mintcal/mintcal/internal/domain"
)

// AnalyticsRepo materializes daily rollups from the raw event tables.
type AnalyticsRepo struct{ Pool PgxPool }

// NewAnalyticsRepo constructs an AnalyticsRepo with the given pool.
func NewAnalyticsRepo(p PgxPool) *AnalyticsRepo { return &AnalyticsRepo{Pool: p} }

// RollupDay recomputes every metric for the UTC day starting at dayStart in
// one upsert, so re-running a day replaces its previous rollup instead of
// double counting.
func (r *AnalyticsRepo) RollupDay(ctx domain.Context, dayStart time.Time) (int64, error) {
	tracer := otel.Tracer("repo.analytics")
	ctx, span := tracer.Start(ctx, "analytics.RollupDay")
	defer span.End()

	dayStart = dayStart.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	q := `INSERT INTO analytics_rollups (day, metric, value, computed_at)
		SELECT $1::date, m.metric, m.value, now() FROM (
			SELECT 'page_views'::text AS metric, COUNT(*)::double precision AS value
			FROM page_views WHERE viewed_at >= $1 AND viewed_at < $2
			UNION ALL
			SELECT 'unique_visitors', COUNT(DISTINCT visitor_id)::double precision
			FROM page_views WHERE viewed_at >= $1 AND viewed_at < $2
			UNION ALL
			SELECT 'orders_created', COUNT(*)::double precision
			FROM orders WHERE created >= $1 AND created < $2
			UNION ALL
			SELECT 'revenue_cents', COALESCE(SUM(total_cents),0)::double precision
			FROM orders WHERE created >= $1 AND created < $2 AND status = 'paid'
			UNION ALL
			SELECT 'template_views:' || template_id, COUNT(*)::double precision
			FROM page_views
			WHERE viewed_at >= $1 AND viewed_at < $2 AND template_id IS NOT NULL
			GROUP BY template_id
		) m
		ON CONFLICT (day, metric) DO UPDATE
		SET value = EXCLUDED.value, computed_at = EXCLUDED.computed_at`
	tag, err := r.Pool.Exec(ctx, q, dayStart, dayEnd)
	if err != nil {
		return 0, fmt.Errorf("op=analytics.rollup_day: %w", err)
	}
	return tag.RowsAffected(), nil
}
