package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakePool routes the minimal PgxPool surface to test closures.
type fakePool struct {
	t        *testing.T
	exec     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	queryRow func(ctx context.Context, sql string, args ...any) pgx.Row
	query    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (f *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if f.exec == nil {
		f.t.Fatalf("unexpected Exec: %s", sql)
	}
	return f.exec(ctx, sql, args...)
}

func (f *fakePool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if f.queryRow == nil {
		f.t.Fatalf("unexpected QueryRow: %s", sql)
	}
	return f.queryRow(ctx, sql, args...)
}

func (f *fakePool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if f.query == nil {
		f.t.Fatalf("unexpected Query: %s", sql)
	}
	return f.query(ctx, sql, args...)
}

type fakeRow struct{ scan func(dest ...any) error }

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

// fakeRows serves pre-baked scan closures; methods the repos never call are
// left to the embedded nil interface.
type fakeRows struct {
	pgx.Rows
	pos  int
	rows []func(dest ...any) error
	err  error
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error { return r.rows[r.pos-1](dest...) }
func (r *fakeRows) Err() error             { return r.err }
func (r *fakeRows) Close()                 {}

// jobScan fills the canonical 20-column job select list by index.
func jobScan(id, queue string, priority int, runAt, created time.Time) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*string)) = id
		*(dest[1].(*string)) = queue
		*(dest[2].(*[]byte)) = []byte(`{}`)
		*(dest[3].(*string)) = ""
		*(dest[4].(*string)) = ""
		*(dest[5].(*int)) = priority
		*(dest[6].(*time.Time)) = runAt
		*(dest[7].(*int)) = 1
		*(dest[8].(*int)) = 3
		*(dest[9].(*bool)) = true
		lockedAt := runAt
		*(dest[10].(**time.Time)) = &lockedAt
		*(dest[11].(*string)) = "worker-1"
		*(dest[12].(*string)) = ""
		*(dest[13].(*bool)) = false
		*(dest[14].(*bool)) = false
		*(dest[15].(**time.Time)) = nil
		*(dest[16].(**time.Time)) = nil
		*(dest[17].(*time.Time)) = created
		*(dest[18].(*time.Time)) = created
		*(dest[19].(*int64)) = 1
		return nil
	}
}
