package domain

import (
	"fmt"
	"time"
)

// Queue names with registered handlers.
const (
	QueuePDFGenerate         = "pdf_generate"
	QueueAnalyticsRollup     = "analytics_rollup"
	QueueGuestSessionCleanup = "guest_session_cleanup"
	QueueOrderEmail          = "order_email"
)

// Enqueue option bounds and defaults.
const (
	DefaultPriority    = 5
	MinPriority        = 0
	MaxPriority        = 100
	DefaultMaxAttempts = 3
	MinMaxAttempts     = 1
	MaxMaxAttempts     = 10

	// LastErrorLimit bounds the stored error text so retry loops cannot
	// grow rows without bound.
	LastErrorLimit = 4096
)

// JobState is the externally visible lifecycle state derived from the
// row's lock and terminal flags.
type JobState string

const (
	JobPending    JobState = "pending"
	JobInProgress JobState = "in_progress"
	JobSucceeded  JobState = "succeeded"
	JobFailed     JobState = "failed"
)

// Job is a durable queue entry. Payload bytes are opaque to the queue and
// typed by the handler registered under QueueName.
type Job struct {
	ID          string
	QueueName   string
	Payload     []byte
	ActorID     string
	DedupeKey   string
	Priority    int
	RunAt       time.Time
	Attempts    int
	MaxAttempts int

	Locked   bool
	LockedAt *time.Time
	LockedBy string

	LastError            string
	Complete             bool
	CompletedWithFailure bool
	CompletedAt          *time.Time
	FailedAt             *time.Time

	Created time.Time
	Updated time.Time
	Version int64
}

// Terminal reports whether the job has reached a final state. Terminal jobs
// are never executed again.
func (j Job) Terminal() bool {
	return j.Complete || j.CompletedWithFailure
}

// State maps the row flags onto the four externally visible states.
func (j Job) State() JobState {
	switch {
	case j.Complete:
		return JobSucceeded
	case j.CompletedWithFailure:
		return JobFailed
	case j.Locked:
		return JobInProgress
	default:
		return JobPending
	}
}

// EnqueueOptions carries the optional knobs accepted by Enqueue. Zero values
// select the documented defaults.
type EnqueueOptions struct {
	Priority    int       // 0..100; 0 means DefaultPriority
	RunAt       time.Time // zero means now
	MaxAttempts int       // 1..10; 0 means DefaultMaxAttempts
	ActorID     string
	DedupeKey   string
}

// Normalize applies defaults and validates ranges.
func (o EnqueueOptions) Normalize() (EnqueueOptions, error) {
	if o.Priority == 0 {
		o.Priority = DefaultPriority
	}
	if o.Priority < MinPriority || o.Priority > MaxPriority {
		return o, fmt.Errorf("priority %d out of range [%d,%d]: %w", o.Priority, MinPriority, MaxPriority, ErrInvalidArgument)
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.MaxAttempts < MinMaxAttempts || o.MaxAttempts > MaxMaxAttempts {
		return o, fmt.Errorf("max_attempts %d out of range [%d,%d]: %w", o.MaxAttempts, MinMaxAttempts, MaxMaxAttempts, ErrInvalidArgument)
	}
	return o, nil
}

// ListJobsFilter narrows List results. Zero fields are ignored.
type ListJobsFilter struct {
	QueueName    string
	State        JobState
	ActorID      string
	CreatedAfter time.Time
	Limit        int
}

// JobStore is the durable queue port. All state transitions are atomic;
// CompleteSuccess and CompleteFailure require that the caller still holds
// the row lock and fail with ErrLockLost otherwise.
type JobStore interface {
	// Enqueue inserts a pending job and returns its id. When opts.DedupeKey
	// is set and a non-terminal row with the same (queue_name, dedupe_key)
	// exists, the insert is a no-op returning the existing id.
	Enqueue(ctx Context, queueName string, payload []byte, opts EnqueueOptions) (string, error)

	// ClaimBatch atomically claims up to maxN runnable rows for workerID,
	// ordered by (priority DESC, run_at ASC, created ASC), using
	// skip-locked semantics so concurrent claimers never block and never
	// receive the same row. Claiming increments attempts.
	ClaimBatch(ctx Context, workerID string, maxN int) ([]Job, error)

	// CompleteSuccess finalizes a held job as succeeded.
	CompleteSuccess(ctx Context, jobID, workerID string) error

	// CompleteFailure finalizes a held job as failed. A non-nil retryAt
	// unlocks the row for a later attempt; nil makes the failure terminal.
	CompleteFailure(ctx Context, jobID, workerID, errText string, retryAt *time.Time) error

	// ReclaimStuck unlocks rows whose lock is older than lockTTL, leaving
	// attempts unchanged, and terminally fails stuck rows that already
	// exhausted their attempts. Returns the number of rows touched.
	ReclaimStuck(ctx Context, lockTTL time.Duration) (int64, error)

	// GetByID returns a snapshot of one job.
	GetByID(ctx Context, jobID string) (Job, error)

	// List returns snapshots ordered by created DESC.
	List(ctx Context, f ListJobsFilter) ([]Job, error)

	// CancelPending transitions a pending, unlocked row to terminal failure
	// with last_error "cancelled". Returns false if the row is already
	// locked or terminal.
	CancelPending(ctx Context, jobID string) (bool, error)

	// FindByDedupeKey returns the most recent job (terminal or not) with
	// the given dedupe key, or ErrNotFound.
	FindByDedupeKey(ctx Context, queueName, dedupeKey string) (Job, error)

	// CountRecentByRequester counts jobs on a queue created since the given
	// time whose payload names the user as requester, excluding excludeJobID.
	CountRecentByRequester(ctx Context, queueName, userID string, since time.Time, excludeJobID string) (int, error)

	// CloneForRetry inserts a fresh pending job with the same queue,
	// payload and actor as the given terminal-failed job.
	CloneForRetry(ctx Context, jobID string) (string, error)
}
