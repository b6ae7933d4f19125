package postgres_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintcal/mintcal/internal/adapter/repo/postgres"
	"github.com/mintcal/mintcal/internal/domain"
)

func TestJobRepo_Enqueue_InsertsWithDefaults(t *testing.T) {
	t.Parallel()
	var gotSQL string
	var gotArgs []any
	pool := &fakePool{
		t: t,
		exec: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			gotSQL = sql
			gotArgs = args
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
	}
	repo := postgres.NewJobRepo(pool)

	id, err := repo.Enqueue(context.Background(), domain.QueuePDFGenerate, []byte(`{"calendar_id":"c1"}`), domain.EnqueueOptions{})
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err, "enqueue should mint a uuid id")

	assert.Contains(t, gotSQL, "INSERT INTO jobs")
	require.Len(t, gotArgs, 8)
	assert.Equal(t, id, gotArgs[0])
	assert.Equal(t, domain.QueuePDFGenerate, gotArgs[1])
	assert.Equal(t, domain.DefaultPriority, gotArgs[5])
	assert.Equal(t, domain.DefaultMaxAttempts, gotArgs[7])
}

func TestJobRepo_Enqueue_DedupeReturnsExistingID(t *testing.T) {
	t.Parallel()
	pool := &fakePool{
		t: t,
		exec: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"}
		},
		queryRow: func(_ context.Context, sql string, args ...any) pgx.Row {
			assert.Contains(t, sql, "NOT complete")
			return fakeRow{scan: func(dest ...any) error {
				*(dest[0].(*string)) = "existing-id"
				return nil
			}}
		},
	}
	repo := postgres.NewJobRepo(pool)

	id, err := repo.Enqueue(context.Background(), domain.QueueAnalyticsRollup, nil, domain.EnqueueOptions{DedupeKey: "analytics_rollup:2026-08-24"})
	require.NoError(t, err)
	assert.Equal(t, "existing-id", id)
}

func TestJobRepo_Enqueue_RejectsBadOptions(t *testing.T) {
	t.Parallel()
	repo := postgres.NewJobRepo(&fakePool{t: t})

	_, err := repo.Enqueue(context.Background(), domain.QueuePDFGenerate, nil, domain.EnqueueOptions{Priority: 999})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = repo.Enqueue(context.Background(), "", nil, domain.EnqueueOptions{})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestJobRepo_ClaimBatch_OrdersClaimedRows(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	pool := &fakePool{
		t: t,
		query: func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
			assert.Contains(t, sql, "FOR UPDATE SKIP LOCKED")
			assert.Contains(t, sql, "attempts < max_attempts")
			assert.Equal(t, "worker-1", args[0])
			assert.Equal(t, 2, args[1])
			// Served out of claim order on purpose.
			return &fakeRows{rows: []func(dest ...any) error{
				jobScan("job-low", domain.QueuePDFGenerate, 5, now, now),
				jobScan("job-high", domain.QueuePDFGenerate, 10, now, now),
			}}, nil
		},
	}
	repo := postgres.NewJobRepo(pool)

	jobs, err := repo.ClaimBatch(context.Background(), "worker-1", 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-high", jobs[0].ID)
	assert.Equal(t, "job-low", jobs[1].ID)
	assert.True(t, jobs[0].Locked)
}

func TestJobRepo_ClaimBatch_NoWork(t *testing.T) {
	t.Parallel()
	pool := &fakePool{
		t: t,
		query: func(context.Context, string, ...any) (pgx.Rows, error) {
			return &fakeRows{}, nil
		},
	}
	repo := postgres.NewJobRepo(pool)

	jobs, err := repo.ClaimBatch(context.Background(), "worker-1", 4)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	// Zero budget never hits the pool.
	jobs, err = repo.ClaimBatch(context.Background(), "worker-1", 0)
	require.NoError(t, err)
	assert.Nil(t, jobs)

	_, err = repo.ClaimBatch(context.Background(), "", 4)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestJobRepo_CompleteSuccess(t *testing.T) {
	t.Parallel()
	affected := int64(1)
	pool := &fakePool{
		t: t,
		exec: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			assert.Contains(t, sql, "complete = TRUE")
			assert.Contains(t, sql, "locked_by = $2")
			if affected == 1 {
				return pgconn.NewCommandTag("UPDATE 1"), nil
			}
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
	}
	repo := postgres.NewJobRepo(pool)

	require.NoError(t, repo.CompleteSuccess(context.Background(), "job-1", "worker-1"))

	affected = 0
	err := repo.CompleteSuccess(context.Background(), "job-1", "worker-1")
	require.ErrorIs(t, err, domain.ErrLockLost)
}

func TestJobRepo_CompleteFailure_RetryVsTerminal(t *testing.T) {
	t.Parallel()
	var gotSQL string
	var gotArgs []any
	pool := &fakePool{
		t: t,
		exec: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			gotSQL = sql
			gotArgs = args
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}
	repo := postgres.NewJobRepo(pool)

	retryAt := time.Now().UTC().Add(time.Minute)
	require.NoError(t, repo.CompleteFailure(context.Background(), "job-1", "worker-1", "boom", &retryAt))
	assert.Contains(t, gotSQL, "run_at = $3")
	assert.NotContains(t, gotSQL, "completed_with_failure = TRUE")

	require.NoError(t, repo.CompleteFailure(context.Background(), "job-1", "worker-1", "boom", nil))
	assert.Contains(t, gotSQL, "completed_with_failure = TRUE")
	assert.Contains(t, gotSQL, "failed_at = now()")
	assert.Equal(t, "boom", gotArgs[2])
}

func TestJobRepo_CompleteFailure_TruncatesErrorText(t *testing.T) {
	t.Parallel()
	var gotArgs []any
	pool := &fakePool{
		t: t,
		exec: func(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
			gotArgs = args
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}
	repo := postgres.NewJobRepo(pool)

	long := strings.Repeat("x", domain.LastErrorLimit+100)
	require.NoError(t, repo.CompleteFailure(context.Background(), "job-1", "worker-1", long, nil))
	require.Len(t, gotArgs, 3)
	assert.Len(t, gotArgs[2].(string), domain.LastErrorLimit)
}

func TestJobRepo_CompleteFailure_LockLost(t *testing.T) {
	t.Parallel()
	pool := &fakePool{
		t: t,
		exec: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
	}
	repo := postgres.NewJobRepo(pool)

	err := repo.CompleteFailure(context.Background(), "job-1", "worker-1", "boom", nil)
	require.ErrorIs(t, err, domain.ErrLockLost)
}

func TestJobRepo_ReclaimStuck(t *testing.T) {
	t.Parallel()
	var gotArgs []any
	pool := &fakePool{
		t: t,
		exec: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			assert.Contains(t, sql, "locked_at < now() - ($1 * INTERVAL '1 second')")
			assert.Contains(t, sql, "attempts >= max_attempts")
			assert.NotContains(t, sql, "attempts = attempts", "reclaim must leave attempts unchanged")
			gotArgs = args
			return pgconn.NewCommandTag("UPDATE 3"), nil
		},
	}
	repo := postgres.NewJobRepo(pool)

	n, err := repo.ReclaimStuck(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, int64(300), gotArgs[0])
}

func TestJobRepo_GetByID_NotFound(t *testing.T) {
	t.Parallel()
	pool := &fakePool{
		t: t,
		queryRow: func(context.Context, string, ...any) pgx.Row {
			return fakeRow{scan: func(...any) error { return pgx.ErrNoRows }}
		},
	}
	repo := postgres.NewJobRepo(pool)

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJobRepo_List_BuildsFilter(t *testing.T) {
	t.Parallel()
	after := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	var gotSQL string
	var gotArgs []any
	pool := &fakePool{
		t: t,
		query: func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
			gotSQL = sql
			gotArgs = args
			return &fakeRows{}, nil
		},
	}
	repo := postgres.NewJobRepo(pool)

	_, err := repo.List(context.Background(), domain.ListJobsFilter{
		QueueName:    domain.QueuePDFGenerate,
		State:        domain.JobPending,
		ActorID:      "cal-1",
		CreatedAfter: after,
		Limit:        10,
	})
	require.NoError(t, err)
	assert.Contains(t, gotSQL, "queue_name = $1")
	assert.Contains(t, gotSQL, "actor_id = $2")
	assert.Contains(t, gotSQL, "created > $3")
	assert.Contains(t, gotSQL, "NOT locked")
	assert.Contains(t, gotSQL, "ORDER BY created DESC LIMIT $4")
	assert.Equal(t, []any{domain.QueuePDFGenerate, "cal-1", after, 10}, gotArgs)
}

func TestJobRepo_List_UnknownState(t *testing.T) {
	t.Parallel()
	repo := postgres.NewJobRepo(&fakePool{t: t})

	_, err := repo.List(context.Background(), domain.ListJobsFilter{State: "sleeping"})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestJobRepo_CancelPending(t *testing.T) {
	t.Parallel()
	exists := true
	pool := &fakePool{
		t: t,
		exec: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
			assert.Contains(t, sql, "'cancelled'")
			assert.Contains(t, sql, "NOT locked")
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
		queryRow: func(context.Context, string, ...any) pgx.Row {
			return fakeRow{scan: func(dest ...any) error {
				*(dest[0].(*bool)) = exists
				return nil
			}}
		},
	}
	repo := postgres.NewJobRepo(pool)

	ok, err := repo.CancelPending(context.Background(), "job-1")
	require.NoError(t, err)
	assert.False(t, ok, "locked or terminal row is not cancellable")

	exists = false
	_, err = repo.CancelPending(context.Background(), "job-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJobRepo_CancelPending_OK(t *testing.T) {
	t.Parallel()
	pool := &fakePool{
		t: t,
		exec: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}
	repo := postgres.NewJobRepo(pool)

	ok, err := repo.CancelPending(context.Background(), "job-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestJobRepo_CountRecentByRequester(t *testing.T) {
	t.Parallel()
	since := time.Now().UTC().Add(-24 * time.Hour)
	pool := &fakePool{
		t: t,
		queryRow: func(_ context.Context, sql string, args ...any) pgx.Row {
			assert.Contains(t, sql, "payload->>'requested_by_user_id' = $3")
			assert.Contains(t, sql, "id::text <> $4")
			assert.Equal(t, []any{domain.QueuePDFGenerate, since, "user-1", "job-self"}, args)
			return fakeRow{scan: func(dest ...any) error {
				*(dest[0].(*int)) = 2
				return nil
			}}
		},
	}
	repo := postgres.NewJobRepo(pool)

	n, err := repo.CountRecentByRequester(context.Background(), domain.QueuePDFGenerate, "user-1", since, "job-self")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestJobRepo_CloneForRetry(t *testing.T) {
	t.Parallel()
	sourceFailed := true
	pool := &fakePool{
		t: t,
		queryRow: func(_ context.Context, sql string, _ ...any) pgx.Row {
			if strings.Contains(sql, "EXISTS") {
				return fakeRow{scan: func(dest ...any) error {
					*(dest[0].(*bool)) = true
					return nil
				}}
			}
			assert.Contains(t, sql, "completed_with_failure")
			assert.NotContains(t, sql, "dedupe_key", "retry clone must not copy the dedupe key")
			return fakeRow{scan: func(dest ...any) error {
				if !sourceFailed {
					return pgx.ErrNoRows
				}
				*(dest[0].(*string)) = "clone-id"
				return nil
			}}
		},
	}
	repo := postgres.NewJobRepo(pool)

	id, err := repo.CloneForRetry(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "clone-id", id)

	sourceFailed = false
	_, err = repo.CloneForRetry(context.Background(), "job-1")
	require.ErrorIs(t, err, domain.ErrConflict)
}
