package usecase

import (
	"testing"
	"time"

	"github.com/mintcal/mintcal/internal/domain"
	"github.com/mintcal/mintcal/internal/queue"
	"github.com/mintcal/mintcal/internal/service/ratelimiter"
)

// Closure fakes in the queue package's test style: unwired calls fail the
// test, so each case states its exact traffic.

type fakeJobStore struct {
	t *testing.T

	enqueue                func(ctx domain.Context, queueName string, payload []byte, opts domain.EnqueueOptions) (string, error)
	getByID                func(ctx domain.Context, jobID string) (domain.Job, error)
	list                   func(ctx domain.Context, f domain.ListJobsFilter) ([]domain.Job, error)
	cancelPending          func(ctx domain.Context, jobID string) (bool, error)
	cloneForRetry          func(ctx domain.Context, jobID string) (string, error)
	countRecentByRequester func(ctx domain.Context, queueName, userID string, since time.Time, excludeJobID string) (int, error)
}

func (f *fakeJobStore) Enqueue(ctx domain.Context, queueName string, payload []byte, opts domain.EnqueueOptions) (string, error) {
	if f.enqueue == nil {
		f.t.Fatalf("unexpected Enqueue(%s)", queueName)
	}
	return f.enqueue(ctx, queueName, payload, opts)
}

func (f *fakeJobStore) GetByID(ctx domain.Context, jobID string) (domain.Job, error) {
	if f.getByID == nil {
		f.t.Fatalf("unexpected GetByID(%s)", jobID)
	}
	return f.getByID(ctx, jobID)
}

func (f *fakeJobStore) List(ctx domain.Context, filter domain.ListJobsFilter) ([]domain.Job, error) {
	if f.list == nil {
		f.t.Fatalf("unexpected List")
	}
	return f.list(ctx, filter)
}

func (f *fakeJobStore) CancelPending(ctx domain.Context, jobID string) (bool, error) {
	if f.cancelPending == nil {
		f.t.Fatalf("unexpected CancelPending(%s)", jobID)
	}
	return f.cancelPending(ctx, jobID)
}

func (f *fakeJobStore) CloneForRetry(ctx domain.Context, jobID string) (string, error) {
	if f.cloneForRetry == nil {
		f.t.Fatalf("unexpected CloneForRetry(%s)", jobID)
	}
	return f.cloneForRetry(ctx, jobID)
}

func (f *fakeJobStore) CountRecentByRequester(ctx domain.Context, queueName, userID string, since time.Time, excludeJobID string) (int, error) {
	if f.countRecentByRequester == nil {
		f.t.Fatalf("unexpected CountRecentByRequester(%s, %s)", queueName, userID)
	}
	return f.countRecentByRequester(ctx, queueName, userID, since, excludeJobID)
}

func (f *fakeJobStore) ClaimBatch(domain.Context, string, int) ([]domain.Job, error) {
	f.t.Fatalf("unexpected ClaimBatch")
	return nil, nil
}

func (f *fakeJobStore) CompleteSuccess(domain.Context, string, string) error {
	f.t.Fatalf("unexpected CompleteSuccess")
	return nil
}

func (f *fakeJobStore) CompleteFailure(domain.Context, string, string, string, *time.Time) error {
	f.t.Fatalf("unexpected CompleteFailure")
	return nil
}

func (f *fakeJobStore) ReclaimStuck(domain.Context, time.Duration) (int64, error) {
	f.t.Fatalf("unexpected ReclaimStuck")
	return 0, nil
}

func (f *fakeJobStore) FindByDedupeKey(domain.Context, string, string) (domain.Job, error) {
	f.t.Fatalf("unexpected FindByDedupeKey")
	return domain.Job{}, nil
}

type fakeCalendars struct {
	t   *testing.T
	get func(ctx domain.Context, id string) (domain.Calendar, error)
}

func (f *fakeCalendars) Get(ctx domain.Context, id string) (domain.Calendar, error) {
	if f.get == nil {
		f.t.Fatalf("unexpected calendars.Get(%s)", id)
	}
	return f.get(ctx, id)
}

func (f *fakeCalendars) ListEvents(domain.Context, string) ([]domain.CalendarEvent, error) {
	f.t.Fatalf("unexpected ListEvents")
	return nil, nil
}

func (f *fakeCalendars) RecordPDFResult(domain.Context, domain.PDFResult) (bool, error) {
	f.t.Fatalf("unexpected RecordPDFResult")
	return false, nil
}

type fakeUsers struct {
	t   *testing.T
	get func(ctx domain.Context, id string) (domain.User, error)
}

func (f *fakeUsers) Get(ctx domain.Context, id string) (domain.User, error) {
	if f.get == nil {
		f.t.Fatalf("unexpected users.Get(%s)", id)
	}
	return f.get(ctx, id)
}

type fakeObjectStore struct {
	t         *testing.T
	signedGet func(ctx domain.Context, key string, ttl time.Duration) (string, error)
}

func (f *fakeObjectStore) SignedGet(ctx domain.Context, key string, ttl time.Duration) (string, error) {
	if f.signedGet == nil {
		f.t.Fatalf("unexpected SignedGet(%s)", key)
	}
	return f.signedGet(ctx, key, ttl)
}

func (f *fakeObjectStore) Put(domain.Context, string, []byte, string) error {
	f.t.Fatalf("unexpected Put")
	return nil
}

func (f *fakeObjectStore) Delete(domain.Context, string) error {
	f.t.Fatalf("unexpected Delete")
	return nil
}

func (f *fakeObjectStore) Exists(domain.Context, string) (bool, error) {
	f.t.Fatalf("unexpected Exists")
	return false, nil
}

type fakeLimiter struct {
	allow func(ctx ratelimiter.Context, key string, limit int64) (ratelimiter.Decision, error)
}

func (f *fakeLimiter) Allow(ctx ratelimiter.Context, key string, limit int64) (ratelimiter.Decision, error) {
	return f.allow(ctx, key, limit)
}

type svcFixture struct {
	jobs      *fakeJobStore
	calendars *fakeCalendars
	users     *fakeUsers
	store     *fakeObjectStore
	svc       *JobService
}

func newSvcFixture(t *testing.T) *svcFixture {
	f := &svcFixture{
		jobs:      &fakeJobStore{t: t},
		calendars: &fakeCalendars{t: t},
		users:     &fakeUsers{t: t},
		store:     &fakeObjectStore{t: t},
	}
	f.svc = NewJobService(f.jobs, f.calendars, f.users, f.store, nil,
		queue.NewProgressTracker(0, 0), 0, 0)
	return f
}
