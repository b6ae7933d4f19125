// Package mailer ships the log-backed domain.Mailer. SMTP delivery is a
// deployment concern; this implementation gives dev rigs and tests a
// visible, countable send without moving bytes off the host.
package mailer

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/mintcal/mintcal/internal/domain"
)

// LogMailer records sends in the log and a counter.
type LogMailer struct {
	log  *slog.Logger
	sent atomic.Int64
}

func NewLogMailer(log *slog.Logger) *LogMailer {
	if log == nil {
		log = slog.Default()
	}
	return &LogMailer{log: log}
}

var _ domain.Mailer = (*LogMailer)(nil)

// Send implements domain.Mailer. The body stays out of the log line; it
// carries whatever checkout put there.
func (m *LogMailer) Send(ctx domain.Context, msg domain.MailMessage) error {
	if msg.To == "" {
		return fmt.Errorf("op=mailer.send: %w: empty recipient", domain.ErrInvalidArgument)
	}
	m.sent.Add(1)
	m.log.InfoContext(ctx, "email delivered",
		slog.String("to", maskEmail(msg.To)),
		slog.String("subject", msg.Subject))
	return nil
}

// Sent returns how many messages were delivered.
func (m *LogMailer) Sent() int64 { return m.sent.Load() }

func maskEmail(s string) string {
	at := strings.IndexByte(s, '@')
	if at <= 1 {
		return "***"
	}
	return s[:1] + "***" + s[at:]
}
