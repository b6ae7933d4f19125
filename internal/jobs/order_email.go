package jobs

import (
	"errors"
	"fmt"

	"github.com/mintcal/mintcal/internal/adapter/observability"
	"github.com/mintcal/mintcal/internal/domain"
	"github.com/mintcal/mintcal/internal/queue"
)

// OrderEmail sends the order confirmation. Delivery goes through the
// domain.Mailer port; at-least-once execution means a customer can receive
// the confirmation twice after a crash between send and finalize, which is
// the accepted trade-off for never losing it.
type OrderEmail struct {
	orders domain.OrderDirectory
	mailer domain.Mailer
}

func NewOrderEmail(orders domain.OrderDirectory, mailer domain.Mailer) *OrderEmail {
	return &OrderEmail{orders: orders, mailer: mailer}
}

func (h *OrderEmail) Name() string { return domain.QueueOrderEmail }

func (h *OrderEmail) Execute(ctx domain.Context, run *queue.JobRun) domain.Result {
	payload, err := queue.DecodePayload[domain.OrderEmailPayload](run, true)
	if err != nil {
		return domain.TerminalFailure("invalid_payload", err)
	}
	if payload.OrderID == "" {
		return domain.TerminalFailure("invalid_payload", errors.New("order_id is required"))
	}

	order, err := h.orders.GetOrder(ctx, payload.OrderID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.TerminalFailure("order_not_found", err)
	}
	if err != nil {
		return domain.RetryableFailure("order_load_failed", err)
	}
	if order.Email == "" {
		return domain.TerminalFailure("missing_recipient", fmt.Errorf("order %s has no email", order.ID))
	}

	if err := h.mailer.Send(ctx, confirmationMessage(order)); err != nil {
		return domain.RetryableFailure("email_send_failed", err)
	}
	observability.EmailSent("order_confirmation")
	run.Log.Info("order confirmation sent", "order_id", order.ID)
	return domain.Success()
}

func confirmationMessage(order domain.Order) domain.MailMessage {
	return domain.MailMessage{
		To:      order.Email,
		Subject: fmt.Sprintf("Your mintcal order %s", order.ID),
		Body: fmt.Sprintf(
			"Thanks for your order!\n\nOrder %s\nCalendar %s\nTotal %s\nStatus %s\n\nWe'll email you again when it ships.\n",
			order.ID, order.CalendarID, formatCents(order.TotalCents), order.Status),
	}
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
