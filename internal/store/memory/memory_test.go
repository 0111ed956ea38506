package memory

import (
	"context"
	"testing"

	"github.com/fleetcore/dispatch/internal/domain/models"
	"github.com/fleetcore/dispatch/internal/domain/types"
)

func TestAppendBidRejectsDuplicateDriver(t *testing.T) {
	ctx := context.Background()
	s := New()

	job := &models.Job{ID: "job-1", Status: types.JobBidding}
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	bid := models.Bid{JobID: "job-1", DriverID: "driver-1"}
	if err := s.AppendBid(ctx, "job-1", bid); err != nil {
		t.Fatalf("first AppendBid: %v", err)
	}
	if err := s.AppendBid(ctx, "job-1", bid); err != types.ErrDuplicateBid {
		t.Fatalf("expected ErrDuplicateBid on second bid from the same driver, got %v", err)
	}
}

func TestCreateJobRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := New()

	job := &models.Job{ID: "job-1"}
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("first CreateJob: %v", err)
	}
	if err := s.CreateJob(ctx, job); err != types.ErrDuplicateID {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestRecordSpoofSampleTracksStreakAndResets(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.UpsertDriver(ctx, &models.Driver{ID: "d1"}); err != nil {
		t.Fatalf("UpsertDriver: %v", err)
	}

	const threshold = 0.5

	streak, err := s.RecordSpoofSample(ctx, "d1", 0.6, threshold)
	if err != nil || streak != 1 {
		t.Fatalf("expected streak=1, got streak=%d err=%v", streak, err)
	}

	streak, err = s.RecordSpoofSample(ctx, "d1", 0.7, threshold)
	if err != nil || streak != 2 {
		t.Fatalf("expected streak=2, got streak=%d err=%v", streak, err)
	}

	streak, err = s.RecordSpoofSample(ctx, "d1", 0.1, threshold)
	if err != nil || streak != 0 {
		t.Fatalf("expected streak to reset to 0 below threshold, got streak=%d err=%v", streak, err)
	}

	d, err := s.GetDriver(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDriver: %v", err)
	}
	if d.SpoofRisk != 0.1 {
		t.Fatalf("expected stored SpoofRisk to track the latest sample, got %f", d.SpoofRisk)
	}
}

func TestAllocateJobMovesDriverOnJob(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.UpsertDriver(ctx, &models.Driver{ID: "d1", Status: types.DriverOnline}); err != nil {
		t.Fatalf("UpsertDriver: %v", err)
	}
	if err := s.CreateJob(ctx, &models.Job{ID: "job-1", Status: types.JobClosed}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	if err := s.AllocateJob(ctx, "job-1", "d1", 2.5, 7); err != nil {
		t.Fatalf("AllocateJob: %v", err)
	}

	job, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != types.JobAllocated || job.AllocatedDriverID != "d1" {
		t.Fatalf("expected job allocated to d1, got status=%s driver=%s", job.Status, job.AllocatedDriverID)
	}

	d, err := s.GetDriver(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDriver: %v", err)
	}
	if d.Status != types.DriverOnJob {
		t.Fatalf("expected driver status ON_JOB, got %s", d.Status)
	}
}

func TestGetDriverNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.GetDriver(ctx, "missing"); err != types.ErrDriverNotFound {
		t.Fatalf("expected ErrDriverNotFound, got %v", err)
	}
}

func TestUpdateJobStatusAllowsLegalTransition(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateJob(ctx, &models.Job{ID: "job-1", Status: types.JobPending}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	if err := s.UpdateJobStatus(ctx, "job-1", types.JobBidding); err != nil {
		t.Fatalf("expected Pending->Bidding to be legal, got %v", err)
	}

	job, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != types.JobBidding {
		t.Fatalf("expected job status Bidding, got %s", job.Status)
	}
}

func TestUpdateJobStatusRejectsIllegalTransition(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateJob(ctx, &models.Job{ID: "job-1", Status: types.JobCompleted}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	if err := s.UpdateJobStatus(ctx, "job-1", types.JobBidding); err != types.ErrIllegalTransition {
		t.Fatalf("expected ErrIllegalTransition for Completed->Bidding, got %v", err)
	}

	job, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != types.JobCompleted {
		t.Fatalf("expected status to stay Completed after a rejected transition, got %s", job.Status)
	}
}

func TestUpdateJobStatusRejectsReopeningCancelledJob(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateJob(ctx, &models.Job{ID: "job-1", Status: types.JobCancelled}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	if err := s.UpdateJobStatus(ctx, "job-1", types.JobPending); err != types.ErrIllegalTransition {
		t.Fatalf("expected ErrIllegalTransition re-opening a cancelled job, got %v", err)
	}
}
