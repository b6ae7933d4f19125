// Package app wires configuration, adapters and handlers into runnable
// units: the HTTP router and the readiness probes. It owns no business
// logic.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/mintcal/mintcal/internal/adapter/httpserver"
	"github.com/mintcal/mintcal/internal/adapter/observability"
	"github.com/mintcal/mintcal/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming
// spaces. An empty input means any origin.
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middleware and routes.
// Admin routes mount only when admin credentials are configured.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(cfg.HTTPWriteTimeout))
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Mutating endpoints are rate limited per client IP.
	r.Group(func(wr chi.Router) {
		wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))
		wr.Post("/v1/calendars/{calendarID}/pdf", srv.EnqueuePDFHandler())
		wr.Delete("/v1/jobs/{jobID}", srv.CancelJobHandler())
	})

	// Status polling stays outside the rate limit group; clients poll it
	// aggressively while a render runs.
	r.Get("/v1/jobs/{jobID}", srv.JobStatusHandler())

	r.Get("/healthz", srv.HealthzHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	if cfg.AdminEnabled() {
		r.Route("/admin", func(ar chi.Router) {
			ar.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))
			ar.Post("/login", srv.AdminLoginHandler())
			ar.Post("/logout", srv.AdminLogoutHandler())
			ar.Group(func(pr chi.Router) {
				pr.Use(srv.Sessions.AuthRequired)
				pr.Get("/jobs", srv.AdminListJobsHandler())
				pr.Post("/jobs/{jobID}/retry", srv.AdminRetryJobHandler())
			})
		})
	}

	return httpserver.SecurityHeaders(r)
}
