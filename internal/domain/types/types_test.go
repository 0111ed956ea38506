package types

import "testing"

func TestCanTransitionJobStatusAllowsTheHappyPath(t *testing.T) {
	steps := []struct{ from, to JobStatus }{
		{JobPending, JobBidding},
		{JobBidding, JobClosed},
		{JobClosed, JobAllocated},
		{JobAllocated, JobCompleted},
	}
	for _, s := range steps {
		if !CanTransitionJobStatus(s.from, s.to) {
			t.Fatalf("expected %s->%s to be legal", s.from, s.to)
		}
	}
}

func TestCanTransitionJobStatusAllowsCancelFromAnyNonTerminalState(t *testing.T) {
	for _, from := range []JobStatus{JobPending, JobBidding, JobClosed, JobAllocated} {
		if !CanTransitionJobStatus(from, JobCancelled) {
			t.Fatalf("expected %s->Cancelled to be legal", from)
		}
	}
}

func TestCanTransitionJobStatusRejectsTransitionsOutOfTerminalStates(t *testing.T) {
	for _, from := range []JobStatus{JobCompleted, JobCancelled, JobNoBids} {
		for _, to := range []JobStatus{JobPending, JobBidding, JobClosed, JobAllocated, JobCompleted, JobCancelled, JobNoBids} {
			if from == to {
				continue
			}
			if CanTransitionJobStatus(from, to) {
				t.Fatalf("expected terminal state %s to have no outgoing transition to %s", from, to)
			}
		}
	}
}

func TestCanTransitionJobStatusRejectsSkippingTheBiddingStage(t *testing.T) {
	if CanTransitionJobStatus(JobPending, JobClosed) {
		t.Fatal("expected Pending->Closed to be illegal (must pass through Bidding)")
	}
	if CanTransitionJobStatus(JobPending, JobAllocated) {
		t.Fatal("expected Pending->Allocated to be illegal (must pass through Bidding/Closed)")
	}
}
