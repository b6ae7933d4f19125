package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mintcal/mintcal/internal/adapter/observability"
	"github.com/mintcal/mintcal/internal/domain"
	obsctx "github.com/mintcal/mintcal/internal/observability"
)

// Dispatcher defaults. Overridable through Options.
const (
	DefaultPoolSize        = 8
	DefaultPollInterval    = 5 * time.Second
	DefaultLockTTL         = 5 * time.Minute
	DefaultReclaimInterval = time.Minute
	DefaultShutdownGrace   = 30 * time.Second
)

// Options configures a Dispatcher. Zero fields select the defaults above;
// BatchSize zero means PoolSize.
type Options struct {
	PoolSize        int
	BatchSize       int
	PollInterval    time.Duration
	LockTTL         time.Duration
	ReclaimInterval time.Duration
	ShutdownGrace   time.Duration
}

func (o Options) withDefaults() Options {
	if o.PoolSize <= 0 {
		o.PoolSize = DefaultPoolSize
	}
	if o.BatchSize <= 0 {
		o.BatchSize = o.PoolSize
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.LockTTL <= 0 {
		o.LockTTL = DefaultLockTTL
	}
	if o.ReclaimInterval <= 0 {
		o.ReclaimInterval = DefaultReclaimInterval
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = DefaultShutdownGrace
	}
	return o
}

// Dispatcher claims runnable jobs from the store and executes them on a
// semaphore-bounded goroutine pool. One Run loop claims; each claimed job
// runs on its own goroutine and is finalized through CompleteSuccess or
// CompleteFailure exactly once per attempt.
type Dispatcher struct {
	store    domain.JobStore
	registry *Registry
	progress *ProgressTracker
	opts     Options
	workerID string

	wake chan struct{}
	sem  chan struct{}
	wg   sync.WaitGroup

	now func() time.Time
}

func NewDispatcher(store domain.JobStore, registry *Registry, progress *ProgressTracker, opts Options) *Dispatcher {
	o := opts.withDefaults()
	return &Dispatcher{
		store:    store,
		registry: registry,
		progress: progress,
		opts:     o,
		workerID: newWorkerID(),
		wake:     make(chan struct{}, 1),
		sem:      make(chan struct{}, o.PoolSize),
		now:      time.Now,
	}
}

// WorkerID returns the claim identity used for lock ownership.
func (d *Dispatcher) WorkerID() string { return d.workerID }

// Wake nudges the claim loop after a local enqueue, cutting the idle
// pickup latency below the poll interval. Non-blocking; a pending wake
// already covers the new row.
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run claims and executes jobs until ctx is cancelled, then drains
// in-flight handlers up to the shutdown grace. Handlers run on a context
// that survives ctx precisely for that grace window, so a job claimed just
// before shutdown can still finalize its row.
func (d *Dispatcher) Run(ctx context.Context) error {
	slog.Info("dispatcher starting",
		slog.String("worker_id", d.workerID),
		slog.Int("pool_size", d.opts.PoolSize),
		slog.Int("batch_size", d.opts.BatchSize),
		slog.Duration("poll_interval", d.opts.PollInterval),
		slog.Duration("lock_ttl", d.opts.LockTTL),
		slog.Any("queues", d.registry.Names()))

	execCtx, cancelExec := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelExec()

	go d.reclaimLoop(ctx)

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	d.claimAndRun(ctx, execCtx)
	for {
		select {
		case <-ctx.Done():
			return d.drain(cancelExec)
		case <-d.wake:
			d.claimAndRun(ctx, execCtx)
		case <-ticker.C:
			d.claimAndRun(ctx, execCtx)
		}
	}
}

// drain waits for in-flight handlers up to the grace deadline, then
// abandons them. Abandoned rows stay locked until the reclaimer returns
// them to pending, so nothing is lost, only delayed.
func (d *Dispatcher) drain(cancelExec context.CancelFunc) error {
	slog.Info("dispatcher stopping, draining in-flight jobs",
		slog.String("worker_id", d.workerID),
		slog.Duration("grace", d.opts.ShutdownGrace))

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("dispatcher drained", slog.String("worker_id", d.workerID))
		return nil
	case <-time.After(d.opts.ShutdownGrace):
		cancelExec()
		slog.Warn("dispatcher shutdown grace elapsed, abandoning in-flight jobs",
			slog.String("worker_id", d.workerID))
		return nil
	}
}

// claimAndRun claims up to min(free workers, batch size) rows and starts a
// goroutine per row. Run's loop is the only caller, so the free-slot count
// cannot be raced by another claimer in this process.
func (d *Dispatcher) claimAndRun(ctx, execCtx context.Context) {
	free := cap(d.sem) - len(d.sem)
	if free <= 0 {
		return
	}
	k := free
	if k > d.opts.BatchSize {
		k = d.opts.BatchSize
	}

	jobs, err := d.store.ClaimBatch(ctx, d.workerID, k)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		slog.Error("claim batch failed",
			slog.String("worker_id", d.workerID), slog.Any("error", err))
		return
	}
	if len(jobs) == 0 {
		return
	}
	observability.ClaimJobs(len(jobs))

	for _, job := range jobs {
		d.sem <- struct{}{}
		d.wg.Add(1)
		go func(job domain.Job) {
			defer d.wg.Done()
			defer func() { <-d.sem }()
			d.runJob(execCtx, job)
		}(job)
	}
}

func (d *Dispatcher) runJob(ctx context.Context, job domain.Job) {
	tracer := otel.Tracer("queue.dispatcher")
	ctx, span := tracer.Start(ctx, "Dispatcher.runJob")
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.queue", job.QueueName),
		attribute.Int("job.attempts", job.Attempts),
	)
	defer span.End()

	ctx = obsctx.ContextWithJobID(ctx, job.ID)
	lg := obsctx.LoggerFromContext(ctx).With(
		slog.String("job_id", job.ID),
		slog.String("queue", job.QueueName),
		slog.Int("attempt", job.Attempts),
	)
	ctx = obsctx.ContextWithLogger(ctx, lg)

	observability.StartJob(job.QueueName)
	start := d.now()

	var res domain.Result
	if h, ok := d.registry.Lookup(job.QueueName); ok {
		run := &JobRun{
			ID:          job.ID,
			QueueName:   job.QueueName,
			Attempts:    job.Attempts,
			MaxAttempts: job.MaxAttempts,
			Payload:     job.Payload,
			LastError:   job.LastError,
			Log:         lg,
			Progress:    func(pct int) { d.progress.Set(job.ID, pct) },
		}
		res = safeExecute(ctx, h, run)
	} else {
		// Enqueue validation and the registry normally agree on queue
		// names; reaching this means a deploy skew or a bad manual insert.
		res = domain.TerminalFailure("no_handler",
			fmt.Errorf("no handler registered for queue %q", job.QueueName))
	}

	d.finalize(ctx, job, res, d.now().Sub(start), lg)
}

// finalize records the handler outcome on the row. A retryable failure
// with attempts left schedules the next run via backoff; otherwise the
// failure is terminal. Lock-lost answers are logged and dropped: the row
// was reclaimed and another worker owns its fate now.
func (d *Dispatcher) finalize(ctx context.Context, job domain.Job, res domain.Result, dur time.Duration, lg *slog.Logger) {
	switch res.Outcome {
	case domain.OutcomeSuccess:
		err := d.store.CompleteSuccess(ctx, job.ID, d.workerID)
		d.logFinalizeErr(lg, "success", err)
		observability.CompleteJob(job.QueueName, dur)
		d.progress.Forget(job.ID)
		lg.Info("job succeeded", slog.Duration("duration", dur))

	case domain.OutcomeRetryable:
		if job.Attempts < job.MaxAttempts {
			retryAt := d.now().Add(RetryDelay(job.Attempts))
			err := d.store.CompleteFailure(ctx, job.ID, d.workerID, res.ErrorText(), &retryAt)
			d.logFinalizeErr(lg, "retry", err)
			observability.FailJob(job.QueueName, false, dur)
			observability.RetryJob(job.QueueName)
			lg.Warn("job failed, retry scheduled",
				slog.String("reason", res.Reason),
				slog.Any("error", res.Err),
				slog.Time("retry_at", retryAt))
			return
		}
		// Attempts exhausted: same reason, terminal outcome.
		err := d.store.CompleteFailure(ctx, job.ID, d.workerID, res.ErrorText(), nil)
		d.logFinalizeErr(lg, "terminal", err)
		observability.FailJob(job.QueueName, true, dur)
		d.progress.Forget(job.ID)
		lg.Error("job failed terminally, attempts exhausted",
			slog.String("reason", res.Reason),
			slog.Any("error", res.Err),
			slog.Int("attempts", job.Attempts))

	case domain.OutcomeTerminal:
		err := d.store.CompleteFailure(ctx, job.ID, d.workerID, res.ErrorText(), nil)
		d.logFinalizeErr(lg, "terminal", err)
		observability.FailJob(job.QueueName, true, dur)
		d.progress.Forget(job.ID)
		lg.Error("job failed terminally",
			slog.String("reason", res.Reason),
			slog.Any("error", res.Err))
	}
}

func (d *Dispatcher) logFinalizeErr(lg *slog.Logger, transition string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrLockLost):
		lg.Warn("job lock lost before outcome was recorded, row belongs to the reclaimer now",
			slog.String("transition", transition))
	default:
		lg.Error("recording job outcome failed",
			slog.String("transition", transition), slog.Any("error", err))
	}
}

// reclaimLoop periodically returns expired locks to the pending pool. It
// runs on the claim context and stops as soon as shutdown begins.
func (d *Dispatcher) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(d.opts.ReclaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("reclaim loop stopping")
			return
		case <-ticker.C:
			n, err := d.store.ReclaimStuck(ctx, d.opts.LockTTL)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				slog.Error("reclaim stuck jobs failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				observability.ReclaimJobs(n)
				slog.Warn("reclaimed stuck jobs",
					slog.Int64("count", n),
					slog.Duration("lock_ttl", d.opts.LockTTL))
			}
		}
	}
}

// newWorkerID composes the lock-ownership identity: host and pid for
// operators reading the jobs table, a uuid suffix so two dispatchers in
// one process never collide.
func newWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s/%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}
