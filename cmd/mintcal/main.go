// Command mintcal runs the calendar platform: the public HTTP API, the
// background job worker, or both in one process.
//
// Usage:
//
//	mintcal serve-api     HTTP API only; jobs are enqueued, not executed
//	mintcal serve-worker  dispatcher, scheduler and a metrics listener
//	mintcal serve-all     both in one process (default)
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	httpserver "github.com/mintcal/mintcal/internal/adapter/httpserver"
	"github.com/mintcal/mintcal/internal/adapter/mailer"
	"github.com/mintcal/mintcal/internal/adapter/observability"
	"github.com/mintcal/mintcal/internal/adapter/repo/postgres"
	"github.com/mintcal/mintcal/internal/adapter/storage/s3"
	"github.com/mintcal/mintcal/internal/app"
	"github.com/mintcal/mintcal/internal/config"
	"github.com/mintcal/mintcal/internal/jobs"
	"github.com/mintcal/mintcal/internal/pdfgen"
	"github.com/mintcal/mintcal/internal/queue"
	"github.com/mintcal/mintcal/internal/service/ratelimiter"
	"github.com/mintcal/mintcal/internal/usecase"
)

func main() {
	os.Exit(run())
}

func run() int {
	mode := "serve-all"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}
	runAPI := mode == "serve-api" || mode == "serve-all"
	runWorker := mode == "serve-worker" || mode == "serve-all"
	if !runAPI && !runWorker {
		fmt.Fprintln(os.Stderr, "usage: mintcal [serve-api|serve-worker|serve-all]")
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		return 1
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register Prometheus metrics once per process; both the API router
	// and the worker metrics listener expose them on /metrics.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("tracing setup failed", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database: migrate first, then open the pool the process lives on.
	if err := postgres.Migrate(ctx, cfg.DBURL); err != nil {
		slog.Error("db migrate failed", slog.Any("error", err))
		return 1
	}
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	// Object store.
	store, err := s3.New(cfg.ObjectStoreEndpoint, cfg.ObjectStoreAccessKey, cfg.ObjectStoreSecretKey, cfg.ObjectStoreBucket, cfg.ObjectStoreUseSSL)
	if err != nil {
		slog.Error("object store init failed", slog.Any("error", err))
		return 1
	}
	if err := store.EnsureBucket(ctx); err != nil {
		slog.Error("object store bucket ensure failed", slog.Any("error", err))
		return 1
	}

	// Redis backs the advisory quota pre-check; the store count stays
	// authoritative, so an empty addr just disables the fast path.
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
	}

	jobRepo := postgres.NewJobRepo(pool)
	calRepo := postgres.NewCalendarRepo(pool)
	userRepo := postgres.NewUserRepo(pool)
	orderRepo := postgres.NewOrderRepo(pool)
	analyticsRepo := postgres.NewAnalyticsRepo(pool)
	maintRepo := postgres.NewMaintenanceRepo(pool)

	progress := queue.NewProgressTracker(0, 0)

	var dispatcher *queue.Dispatcher
	if runWorker {
		catalog, err := pdfgen.LoadCatalog()
		if err != nil {
			slog.Error("template catalog invalid", slog.Any("error", err))
			return 1
		}
		registry := queue.NewRegistry()
		registry.MustRegister(jobs.NewPDFGenerate(calRepo, userRepo, jobRepo, store, catalog, cfg.PDFFreeTierDailyCap))
		registry.MustRegister(jobs.NewAnalyticsRollup(analyticsRepo))
		registry.MustRegister(jobs.NewGuestSessionCleanup(maintRepo, 0))
		registry.MustRegister(jobs.NewOrderEmail(orderRepo, mailer.NewLogMailer(logger)))

		dispatcher = queue.NewDispatcher(jobRepo, registry, progress, queue.Options{
			PoolSize:        cfg.WorkerPoolSize,
			BatchSize:       cfg.BatchSize(),
			PollInterval:    cfg.WorkerPollInterval,
			LockTTL:         cfg.WorkerLockTTL,
			ReclaimInterval: cfg.WorkerReclaimInterval,
			ShutdownGrace:   cfg.WorkerShutdownGrace,
		})
	}

	var wake func()
	if dispatcher != nil {
		wake = dispatcher.Wake
	}

	var limiter ratelimiter.Limiter
	if rdb != nil {
		limiter = ratelimiter.NewFixedWindow(rdb, 24*time.Hour)
	}

	jobSvc := usecase.NewJobService(jobRepo, calRepo, userRepo, store, limiter, progress, cfg.PDFFreeTierDailyCap, cfg.SignedURLTTL)
	jobSvc.Wake = wake

	var wg sync.WaitGroup
	if runWorker {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dispatcher.Run(ctx)
		}()

		sched := queue.NewScheduler(jobRepo, time.Minute, wake)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Run(ctx)
		}()
	}

	// Worker-only processes still need a scrape target.
	if runWorker && !runAPI {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.MetricsPort)
			slog.Info("worker metrics listening", slog.Int("port", cfg.MetricsPort))
			if err := http.ListenAndServe(addr, mux); err != nil {
				slog.Error("worker metrics server error", slog.Any("error", err))
			}
		}()
	}

	var srvHTTP *http.Server
	errCh := make(chan error, 1)
	if runAPI {
		dbCheck, redisCheck, storeCheck := app.BuildReadinessChecks(pool, rdb, store)
		srv := httpserver.NewServer(cfg, jobSvc, httpserver.NewSessionManager(cfg), dbCheck, redisCheck, storeCheck)
		srvHTTP = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           app.BuildRouter(cfg, srv),
			ReadTimeout:       cfg.HTTPReadTimeout,
			WriteTimeout:      cfg.HTTPWriteTimeout,
			IdleTimeout:       cfg.HTTPIdleTimeout,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("http server starting", slog.Int("port", cfg.Port), slog.String("mode", mode))
			errCh <- srvHTTP.ListenAndServe()
		}()
	}

	exit := 0
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", slog.Any("error", err))
			exit = 2
		}
		stop()
	}

	if srvHTTP != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
		_ = srvHTTP.Shutdown(shutdownCtx)
		cancel()
	}

	// Dispatcher drains in-flight handlers up to its shutdown grace; the
	// lock reclaim covers whatever is abandoned after that.
	wg.Wait()
	return exit
}
