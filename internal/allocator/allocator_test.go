package allocator

import (
	"context"
	"sync"
	"testing"

	"github.com/fleetcore/dispatch/internal/domain/models"
	"github.com/fleetcore/dispatch/internal/domain/types"
	"github.com/fleetcore/dispatch/internal/eta"
	"github.com/fleetcore/dispatch/internal/matching"
	"github.com/fleetcore/dispatch/internal/store/memory"
	"github.com/fleetcore/dispatch/pkg/logger"
)

type passthroughTx struct{}

func (passthroughTx) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeBus struct {
	mu     sync.Mutex
	topics []string
}

func (b *fakeBus) Publish(_ context.Context, topic string, _ any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	return nil
}

func (b *fakeBus) has(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.topics {
		if t == topic {
			return true
		}
	}
	return false
}

func newTestAllocator() (*Allocator, *memory.Store, *fakeBus) {
	st := memory.New()
	b := &fakeBus{}
	log := logger.InitLogger("allocator-test", logger.LevelDebug)
	return New(st, b, passthroughTx{}, eta.New(), log), st, b
}

func TestCommitAssignmentAllocatesJobAndPublishesInOrder(t *testing.T) {
	a, st, b := newTestAllocator()
	ctx := context.Background()

	if err := st.UpsertDriver(ctx, &models.Driver{ID: "winner", Status: types.DriverOnline}); err != nil {
		t.Fatalf("UpsertDriver winner: %v", err)
	}
	if err := st.UpsertDriver(ctx, &models.Driver{ID: "loser", Status: types.DriverOnline}); err != nil {
		t.Fatalf("UpsertDriver loser: %v", err)
	}
	if err := st.CreateJob(ctx, &models.Job{ID: "job-1", Status: types.JobClosed}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	outcome := matching.Outcome{
		Assignments: []matching.Assignment{{JobID: "job-1", DriverID: "winner", Score: 0.9, DistanceKm: 2}},
		Losers:      map[string][]string{"job-1": {"loser"}},
	}

	if err := a.Commit(ctx, outcome); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	job, err := st.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != types.JobAllocated || job.AllocatedDriverID != "winner" {
		t.Fatalf("expected job-1 allocated to winner, got status=%s driver=%s", job.Status, job.AllocatedDriverID)
	}

	driver, err := st.GetDriver(ctx, "winner")
	if err != nil {
		t.Fatalf("GetDriver: %v", err)
	}
	if driver.Status != types.DriverOnJob {
		t.Fatalf("expected winning driver ON_JOB, got %s", driver.Status)
	}

	if !b.has("jobs/job-1/allocated") {
		t.Fatalf("expected job_allocated published, got topics=%v", b.topics)
	}
	if !b.has("jobs/job-1/result/loser") {
		t.Fatalf("expected bid_lost published for the loser, got topics=%v", b.topics)
	}
}

func TestCommitReturnToPendingReopensJob(t *testing.T) {
	a, st, b := newTestAllocator()
	ctx := context.Background()

	if err := st.CreateJob(ctx, &models.Job{ID: "job-2", Status: types.JobClosed}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	outcome := matching.Outcome{ReturnToPending: []string{"job-2"}}
	if err := a.Commit(ctx, outcome); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	job, err := st.GetJob(ctx, "job-2")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != types.JobPending {
		t.Fatalf("expected job-2 back in PENDING, got %s", job.Status)
	}
	if !b.has("jobs/job-2/status") {
		t.Fatalf("expected a status update published, got topics=%v", b.topics)
	}
}

func TestCommitRetriesOnceThenForcesFailedJobsToPending(t *testing.T) {
	a, st, _ := newTestAllocator()
	ctx := context.Background()

	// NO_BIDS is terminal: every UpdateJobStatus(..., Pending) attempt below
	// is an illegal transition, so this deterministically fails both the
	// first attempt and the retry.
	if err := st.CreateJob(ctx, &models.Job{ID: "job-4", Status: types.JobNoBids}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	outcome := matching.Outcome{ReturnToPending: []string{"job-4"}}
	err := a.Commit(ctx, outcome)
	if err == nil {
		t.Fatal("expected Commit to report an error once the batch retry is exhausted")
	}

	job, getErr := st.GetJob(ctx, "job-4")
	if getErr != nil {
		t.Fatalf("GetJob: %v", getErr)
	}
	if job.Status != types.JobNoBids {
		t.Fatalf("expected job-4 to stay NO_BIDS (force-to-pending is itself illegal from a terminal state), got %s", job.Status)
	}
}

func TestCommitNoBidsMarksJobNoBids(t *testing.T) {
	a, st, _ := newTestAllocator()
	ctx := context.Background()

	if err := st.CreateJob(ctx, &models.Job{ID: "job-3", Status: types.JobClosed}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	outcome := matching.Outcome{NoBids: []string{"job-3"}}
	if err := a.Commit(ctx, outcome); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	job, err := st.GetJob(ctx, "job-3")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != types.JobNoBids {
		t.Fatalf("expected job-3 marked NO_BIDS, got %s", job.Status)
	}
}
