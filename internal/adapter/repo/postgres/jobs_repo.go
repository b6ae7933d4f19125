// Package postgres provides PostgreSQL database adapters.
//
// It implements the repository ports for the durable job queue and the
// calendar-commerce tables. All queue state transitions are single
// statements so they stay atomic without explicit transactions.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mintcal/mintcal/internal/domain"
)

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// IsUniqueViolation reports whether err is a PostgreSQL unique violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// jobColumns is the canonical select list; scanJob relies on this order.
const jobColumns = `id, queue_name, payload, COALESCE(actor_id,''), COALESCE(dedupe_key,''),
	priority, run_at, attempts, max_attempts,
	locked, locked_at, COALESCE(locked_by,''),
	COALESCE(last_error,''), complete, completed_with_failure, completed_at, failed_at,
	created, updated, version`

func scanJob(row pgx.Row) (domain.Job, error) {
	var j domain.Job
	err := row.Scan(
		&j.ID, &j.QueueName, &j.Payload, &j.ActorID, &j.DedupeKey,
		&j.Priority, &j.RunAt, &j.Attempts, &j.MaxAttempts,
		&j.Locked, &j.LockedAt, &j.LockedBy,
		&j.LastError, &j.Complete, &j.CompletedWithFailure, &j.CompletedAt, &j.FailedAt,
		&j.Created, &j.Updated, &j.Version,
	)
	return j, err
}

func truncateError(s string) string {
	if len(s) > domain.LastErrorLimit {
		return s[:domain.LastErrorLimit]
	}
	return s
}

// JobRepo is the PostgreSQL implementation of domain.JobStore.
type JobRepo struct{ Pool PgxPool }

// NewJobRepo constructs a JobRepo with the given pool.
func NewJobRepo(p PgxPool) *JobRepo { return &JobRepo{Pool: p} }

// Enqueue inserts a pending job. When a dedupe key is set and a non-terminal
// row with the same (queue_name, dedupe_key) already exists, the partial
// unique index rejects the insert and the existing id is returned instead.
func (r *JobRepo) Enqueue(ctx domain.Context, queueName string, payload []byte, opts domain.EnqueueOptions) (string, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Enqueue")
	defer span.End()
	span.SetAttributes(attribute.String("queue.name", queueName))

	if queueName == "" {
		return "", fmt.Errorf("op=job.enqueue: queue name empty: %w", domain.ErrInvalidArgument)
	}
	opts, err := opts.Normalize()
	if err != nil {
		return "", fmt.Errorf("op=job.enqueue: %w", err)
	}
	runAt := opts.RunAt
	if runAt.IsZero() {
		runAt = time.Now().UTC()
	}
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	const insertSQL = `INSERT INTO jobs (id, queue_name, payload, actor_id, dedupe_key, priority, run_at, max_attempts)
		VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), $6, $7, $8)`
	const existingSQL = `SELECT id FROM jobs
		WHERE queue_name = $1 AND dedupe_key = $2 AND NOT complete AND NOT completed_with_failure
		LIMIT 1`

	// Two passes cover the race where the deduped winner reaches a terminal
	// state between our failed insert and the lookup.
	for range 2 {
		id := uuid.New().String()
		_, err := r.Pool.Exec(ctx, insertSQL, id, queueName, payload, opts.ActorID, opts.DedupeKey, opts.Priority, runAt, opts.MaxAttempts)
		if err == nil {
			return id, nil
		}
		if !IsUniqueViolation(err) || opts.DedupeKey == "" {
			return "", fmt.Errorf("op=job.enqueue: %w", err)
		}
		var existing string
		ferr := r.Pool.QueryRow(ctx, existingSQL, queueName, opts.DedupeKey).Scan(&existing)
		if ferr == nil {
			return existing, nil
		}
		if !errors.Is(ferr, pgx.ErrNoRows) {
			return "", fmt.Errorf("op=job.enqueue: %w", ferr)
		}
	}
	return "", fmt.Errorf("op=job.enqueue: dedupe key contended: %w", domain.ErrConflict)
}

// ClaimBatch claims up to maxN runnable rows for workerID in one statement.
// SKIP LOCKED keeps concurrent claimers from blocking on or double-claiming
// the same rows; claiming increments attempts.
func (r *JobRepo) ClaimBatch(ctx domain.Context, workerID string, maxN int) ([]domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.ClaimBatch")
	defer span.End()

	if workerID == "" {
		return nil, fmt.Errorf("op=job.claim_batch: worker id empty: %w", domain.ErrInvalidArgument)
	}
	if maxN <= 0 {
		return nil, nil
	}

	q := `
		WITH picked AS (
			SELECT id AS picked_id
			FROM jobs
			WHERE NOT complete
			  AND NOT completed_with_failure
			  AND NOT locked
			  AND run_at <= now()
			  AND attempts < max_attempts
			ORDER BY priority DESC, run_at ASC, created ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $2
		)
		UPDATE jobs
		SET locked = TRUE,
		    locked_at = now(),
		    locked_by = $1,
		    attempts = attempts + 1,
		    updated = now(),
		    version = version + 1
		FROM picked
		WHERE id = picked_id
		RETURNING ` + jobColumns
	rows, err := r.Pool.Query(ctx, q, workerID, maxN)
	if err != nil {
		return nil, fmt.Errorf("op=job.claim_batch: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("op=job.claim_batch_scan: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=job.claim_batch_rows: %w", err)
	}

	// RETURNING does not preserve the CTE ordering; restore it so workers
	// start the batch in claim order.
	sort.Slice(jobs, func(a, b int) bool {
		if jobs[a].Priority != jobs[b].Priority {
			return jobs[a].Priority > jobs[b].Priority
		}
		if !jobs[a].RunAt.Equal(jobs[b].RunAt) {
			return jobs[a].RunAt.Before(jobs[b].RunAt)
		}
		return jobs[a].Created.Before(jobs[b].Created)
	})
	return jobs, nil
}

// CompleteSuccess finalizes a held job as succeeded. Zero rows affected means
// the lock was reclaimed and handed elsewhere; the caller must discard its
// result.
func (r *JobRepo) CompleteSuccess(ctx domain.Context, jobID, workerID string) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.CompleteSuccess")
	defer span.End()

	q := `UPDATE jobs
		SET locked = FALSE,
		    locked_at = NULL,
		    locked_by = NULL,
		    complete = TRUE,
		    completed_at = now(),
		    last_error = NULL,
		    updated = now(),
		    version = version + 1
		WHERE id = $1
		  AND locked
		  AND locked_by = $2
		  AND NOT complete
		  AND NOT completed_with_failure`
	tag, err := r.Pool.Exec(ctx, q, jobID, workerID)
	if err != nil {
		return fmt.Errorf("op=job.complete_success: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=job.complete_success: %w", domain.ErrLockLost)
	}
	return nil
}

// CompleteFailure finalizes a held job as failed. A non-nil retryAt returns
// the row to pending with the new run_at; nil makes the failure terminal.
// Zero rows affected means the lock was lost.
func (r *JobRepo) CompleteFailure(ctx domain.Context, jobID, workerID, errText string, retryAt *time.Time) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.CompleteFailure")
	defer span.End()

	errText = truncateError(errText)

	var (
		tag pgconn.CommandTag
		err error
	)
	if retryAt != nil {
		q := `UPDATE jobs
			SET locked = FALSE,
			    locked_at = NULL,
			    locked_by = NULL,
			    run_at = $3,
			    last_error = $4,
			    updated = now(),
			    version = version + 1
			WHERE id = $1
			  AND locked
			  AND locked_by = $2
			  AND NOT complete
			  AND NOT completed_with_failure`
		tag, err = r.Pool.Exec(ctx, q, jobID, workerID, retryAt.UTC(), errText)
	} else {
		q := `UPDATE jobs
			SET locked = FALSE,
			    locked_at = NULL,
			    locked_by = NULL,
			    completed_with_failure = TRUE,
			    failed_at = now(),
			    last_error = $3,
			    updated = now(),
			    version = version + 1
			WHERE id = $1
			  AND locked
			  AND locked_by = $2
			  AND NOT complete
			  AND NOT completed_with_failure`
		tag, err = r.Pool.Exec(ctx, q, jobID, workerID, errText)
	}
	if err != nil {
		return fmt.Errorf("op=job.complete_failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=job.complete_failure: %w", domain.ErrLockLost)
	}
	return nil
}

// ReclaimStuck releases rows whose lock is older than lockTTL. Attempts stay
// unchanged (the claim already counted them). Rows that exhausted their
// attempts while stuck cannot be claimed again, so they are terminally
// failed here instead of lingering forever.
func (r *JobRepo) ReclaimStuck(ctx domain.Context, lockTTL time.Duration) (int64, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.ReclaimStuck")
	defer span.End()

	secs := int64(lockTTL.Seconds())
	if secs <= 0 {
		secs = 60
	}
	q := `UPDATE jobs
		SET locked = FALSE,
		    locked_at = NULL,
		    locked_by = NULL,
		    completed_with_failure = (attempts >= max_attempts),
		    failed_at = CASE WHEN attempts >= max_attempts THEN now() ELSE failed_at END,
		    last_error = CASE WHEN attempts >= max_attempts
		        THEN 'lock expired with attempts exhausted' ELSE last_error END,
		    updated = now(),
		    version = version + 1
		WHERE locked
		  AND NOT complete
		  AND NOT completed_with_failure
		  AND locked_at IS NOT NULL
		  AND locked_at < now() - ($1 * INTERVAL '1 second')`
	tag, err := r.Pool.Exec(ctx, q, secs)
	if err != nil {
		return 0, fmt.Errorf("op=job.reclaim_stuck: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetByID loads a job snapshot by id.
func (r *JobRepo) GetByID(ctx domain.Context, jobID string) (domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.GetByID")
	defer span.End()

	q := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	j, err := scanJob(r.Pool.QueryRow(ctx, q, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Job{}, fmt.Errorf("op=job.get: %w", domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=job.get: %w", err)
	}
	return j, nil
}

// List returns job snapshots ordered by created DESC.
func (r *JobRepo) List(ctx domain.Context, f domain.ListJobsFilter) ([]domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.List")
	defer span.End()

	var (
		conds  []string
		args   []any
		argPos = 1
	)
	if f.QueueName != "" {
		conds = append(conds, fmt.Sprintf("queue_name = $%d", argPos))
		args = append(args, f.QueueName)
		argPos++
	}
	if f.ActorID != "" {
		conds = append(conds, fmt.Sprintf("actor_id = $%d", argPos))
		args = append(args, f.ActorID)
		argPos++
	}
	if !f.CreatedAfter.IsZero() {
		conds = append(conds, fmt.Sprintf("created > $%d", argPos))
		args = append(args, f.CreatedAfter.UTC())
		argPos++
	}
	switch f.State {
	case "":
	case domain.JobPending:
		conds = append(conds, "NOT locked", "NOT complete", "NOT completed_with_failure")
	case domain.JobInProgress:
		conds = append(conds, "locked", "NOT complete", "NOT completed_with_failure")
	case domain.JobSucceeded:
		conds = append(conds, "complete")
	case domain.JobFailed:
		conds = append(conds, "completed_with_failure")
	default:
		return nil, fmt.Errorf("op=job.list: unknown state %q: %w", f.State, domain.ErrInvalidArgument)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	q := `SELECT ` + jobColumns + ` FROM jobs`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += fmt.Sprintf(" ORDER BY created DESC LIMIT $%d", argPos)
	args = append(args, limit)

	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=job.list: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Job, 0, limit)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("op=job.list_scan: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=job.list_rows: %w", err)
	}
	return out, nil
}

// CancelPending terminally fails a pending, unlocked row. It returns false
// when the row exists but is already locked or terminal.
func (r *JobRepo) CancelPending(ctx domain.Context, jobID string) (bool, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.CancelPending")
	defer span.End()

	q := `UPDATE jobs
		SET completed_with_failure = TRUE,
		    failed_at = now(),
		    last_error = 'cancelled',
		    updated = now(),
		    version = version + 1
		WHERE id = $1
		  AND NOT locked
		  AND NOT complete
		  AND NOT completed_with_failure`
	tag, err := r.Pool.Exec(ctx, q, jobID)
	if err != nil {
		return false, fmt.Errorf("op=job.cancel_pending: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Distinguish a missing row from one that is no longer cancellable.
	var exists bool
	if err := r.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, jobID).Scan(&exists); err != nil {
		return false, fmt.Errorf("op=job.cancel_pending: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("op=job.cancel_pending: %w", domain.ErrNotFound)
	}
	return false, nil
}

// FindByDedupeKey returns the most recent job with the given dedupe key on a
// queue, terminal or not.
func (r *JobRepo) FindByDedupeKey(ctx domain.Context, queueName, dedupeKey string) (domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.FindByDedupeKey")
	defer span.End()

	q := `SELECT ` + jobColumns + ` FROM jobs
		WHERE queue_name = $1 AND dedupe_key = $2
		ORDER BY created DESC
		LIMIT 1`
	j, err := scanJob(r.Pool.QueryRow(ctx, q, queueName, dedupeKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Job{}, fmt.Errorf("op=job.find_dedupe: %w", domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=job.find_dedupe: %w", err)
	}
	return j, nil
}

// CountRecentByRequester counts jobs on a queue created since the given time
// whose payload names userID as requester, excluding excludeJobID so a
// running handler does not count itself.
func (r *JobRepo) CountRecentByRequester(ctx domain.Context, queueName, userID string, since time.Time, excludeJobID string) (int, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.CountRecentByRequester")
	defer span.End()

	q := `SELECT COUNT(*) FROM jobs
		WHERE queue_name = $1
		  AND created >= $2
		  AND payload->>'requested_by_user_id' = $3
		  AND id::text <> $4`
	var n int
	if err := r.Pool.QueryRow(ctx, q, queueName, since.UTC(), userID, excludeJobID).Scan(&n); err != nil {
		return 0, fmt.Errorf("op=job.count_recent: %w", err)
	}
	return n, nil
}

// CloneForRetry inserts a fresh pending job copying queue, payload, actor,
// priority and max_attempts from a terminal-failed source. The dedupe key is
// not copied so the clone cannot collide with a newer active duplicate.
func (r *JobRepo) CloneForRetry(ctx domain.Context, jobID string) (string, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.CloneForRetry")
	defer span.End()

	id := uuid.New().String()
	q := `INSERT INTO jobs (id, queue_name, payload, actor_id, priority, run_at, max_attempts)
		SELECT $1, queue_name, payload, actor_id, priority, now(), max_attempts
		FROM jobs
		WHERE id = $2 AND completed_with_failure
		RETURNING id`
	var inserted string
	err := r.Pool.QueryRow(ctx, q, id, jobID).Scan(&inserted)
	if err == nil {
		return inserted, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("op=job.clone_retry: %w", err)
	}

	// No insert happened: either the source is missing or not retryable.
	var exists bool
	if err := r.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, jobID).Scan(&exists); err != nil {
		return "", fmt.Errorf("op=job.clone_retry: %w", err)
	}
	if !exists {
		return "", fmt.Errorf("op=job.clone_retry: %w", domain.ErrNotFound)
	}
	return "", fmt.Errorf("op=job.clone_retry: job not terminally failed: %w", domain.ErrConflict)
}
