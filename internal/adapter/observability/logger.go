package observability

import (
	"log/slog"
	"os"

	"github.com/mintcal/mintcal/internal/config"
)

// SetupLogger builds the process-wide JSON logger. Dev runs at debug with
// source locations; everything else stays at info. Callers install it with
// slog.SetDefault so adapter packages can log without carrying a logger.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}
	h := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
}
