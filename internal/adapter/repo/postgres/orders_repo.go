package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/mintcal/mintcal/internal/domain"
)

// OrderRepo resolves orders referenced by email jobs.
type OrderRepo struct{ Pool PgxPool }

// NewOrderRepo constructs an OrderRepo with the given pool.
func NewOrderRepo(p PgxPool) *OrderRepo { return &OrderRepo{Pool: p} }

// GetOrder loads an order by id.
func (r *OrderRepo) GetOrder(ctx domain.Context, id string) (domain.Order, error) {
	tracer := otel.Tracer("repo.orders")
	ctx, span := tracer.Start(ctx, "orders.GetOrder")
	defer span.End()

	q := `SELECT id, COALESCE(user_id::text,''), email, COALESCE(calendar_id::text,''),
		total_cents, status, created
		FROM orders WHERE id = $1`
	var o domain.Order
	err := r.Pool.QueryRow(ctx, q, id).Scan(
		&o.ID, &o.UserID, &o.Email, &o.CalendarID,
		&o.TotalCents, &o.Status, &o.Created,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, fmt.Errorf("op=order.get: %w", domain.ErrNotFound)
		}
		return domain.Order{}, fmt.Errorf("op=order.get: %w", err)
	}
	return o, nil
}
