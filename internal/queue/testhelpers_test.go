package queue

import (
	"testing"
	"time"

	"github.com/mintcal/mintcal/internal/domain"
)

// fakeJobStore implements domain.JobStore with per-method closures. Calls
// to methods without a closure fail the test, so each case states exactly
// the store traffic it expects.
type fakeJobStore struct {
	t *testing.T

	enqueue         func(ctx domain.Context, queueName string, payload []byte, opts domain.EnqueueOptions) (string, error)
	claimBatch      func(ctx domain.Context, workerID string, maxN int) ([]domain.Job, error)
	completeSuccess func(ctx domain.Context, jobID, workerID string) error
	completeFailure func(ctx domain.Context, jobID, workerID, errText string, retryAt *time.Time) error
	reclaimStuck    func(ctx domain.Context, lockTTL time.Duration) (int64, error)
	findByDedupeKey func(ctx domain.Context, queueName, dedupeKey string) (domain.Job, error)
}

func (f *fakeJobStore) Enqueue(ctx domain.Context, queueName string, payload []byte, opts domain.EnqueueOptions) (string, error) {
	if f.enqueue == nil {
		f.t.Fatalf("unexpected Enqueue(%s)", queueName)
	}
	return f.enqueue(ctx, queueName, payload, opts)
}

func (f *fakeJobStore) ClaimBatch(ctx domain.Context, workerID string, maxN int) ([]domain.Job, error) {
	if f.claimBatch == nil {
		f.t.Fatalf("unexpected ClaimBatch(%s, %d)", workerID, maxN)
	}
	return f.claimBatch(ctx, workerID, maxN)
}

func (f *fakeJobStore) CompleteSuccess(ctx domain.Context, jobID, workerID string) error {
	if f.completeSuccess == nil {
		f.t.Fatalf("unexpected CompleteSuccess(%s)", jobID)
	}
	return f.completeSuccess(ctx, jobID, workerID)
}

func (f *fakeJobStore) CompleteFailure(ctx domain.Context, jobID, workerID, errText string, retryAt *time.Time) error {
	if f.completeFailure == nil {
		f.t.Fatalf("unexpected CompleteFailure(%s)", jobID)
	}
	return f.completeFailure(ctx, jobID, workerID, errText, retryAt)
}

func (f *fakeJobStore) ReclaimStuck(ctx domain.Context, lockTTL time.Duration) (int64, error) {
	if f.reclaimStuck == nil {
		f.t.Fatalf("unexpected ReclaimStuck(%v)", lockTTL)
	}
	return f.reclaimStuck(ctx, lockTTL)
}

func (f *fakeJobStore) GetByID(domain.Context, string) (domain.Job, error) {
	f.t.Fatalf("unexpected GetByID")
	return domain.Job{}, nil
}

func (f *fakeJobStore) List(domain.Context, domain.ListJobsFilter) ([]domain.Job, error) {
	f.t.Fatalf("unexpected List")
	return nil, nil
}

func (f *fakeJobStore) CancelPending(domain.Context, string) (bool, error) {
	f.t.Fatalf("unexpected CancelPending")
	return false, nil
}

func (f *fakeJobStore) FindByDedupeKey(ctx domain.Context, queueName, dedupeKey string) (domain.Job, error) {
	if f.findByDedupeKey == nil {
		f.t.Fatalf("unexpected FindByDedupeKey(%s, %s)", queueName, dedupeKey)
	}
	return f.findByDedupeKey(ctx, queueName, dedupeKey)
}

func (f *fakeJobStore) CountRecentByRequester(domain.Context, string, string, time.Time, string) (int, error) {
	f.t.Fatalf("unexpected CountRecentByRequester")
	return 0, nil
}

func (f *fakeJobStore) CloneForRetry(domain.Context, string) (string, error) {
	f.t.Fatalf("unexpected CloneForRetry")
	return "", nil
}

// handlerFunc adapts a closure into a Handler for tests.
type handlerFunc struct {
	name string
	fn   func(ctx domain.Context, run *JobRun) domain.Result
}

func (h handlerFunc) Name() string { return h.name }

func (h handlerFunc) Execute(ctx domain.Context, run *JobRun) domain.Result {
	return h.fn(ctx, run)
}
