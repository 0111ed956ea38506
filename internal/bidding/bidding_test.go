package bidding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fleetcore/dispatch/internal/bus"
	"github.com/fleetcore/dispatch/internal/domain/models"
	"github.com/fleetcore/dispatch/internal/domain/types"
	"github.com/fleetcore/dispatch/internal/geo"
	"github.com/fleetcore/dispatch/internal/store/memory"
	"github.com/fleetcore/dispatch/pkg/logger"
)

type fakeBus struct {
	mu        sync.Mutex
	published []publishedMsg
}

type publishedMsg struct {
	topic   string
	payload any
}

func (b *fakeBus) Publish(_ context.Context, topic string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedMsg{topic: topic, payload: payload})
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string, bus.Handler) error {
	return nil
}

func (b *fakeBus) Close() error { return nil }

func (b *fakeBus) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.published))
	for i, m := range b.published {
		out[i] = m.topic
	}
	return out
}

type fakeMatchRunner struct {
	mu      sync.Mutex
	batches [][]JobBids
	done    chan struct{}
}

func newFakeMatchRunner() *fakeMatchRunner {
	return &fakeMatchRunner{done: make(chan struct{}, 8)}
}

func (f *fakeMatchRunner) RunMatch(_ context.Context, batch []JobBids) error {
	f.mu.Lock()
	f.batches = append(f.batches, batch)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func newTestCoordinator(t *testing.T, st *memory.Store, b *fakeBus, mr MatchRunner) *Coordinator {
	t.Helper()
	log := logger.InitLogger("bidding-test", logger.LevelDebug)
	c := New(DefaultConfig(), st, b, mr, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = c.Run(ctx) }()
	return c
}

func mustUpsertOnlineDriver(t *testing.T, st *memory.Store, id string, lat, lon float64) {
	t.Helper()
	err := st.UpsertDriver(context.Background(), &models.Driver{
		ID: id, Status: types.DriverOnline, Lat: lat, Lon: lon, H3Cell: geo.Cell(lat, lon),
	})
	if err != nil {
		t.Fatalf("UpsertDriver(%s): %v", id, err)
	}
}

func TestOpenAuctionDrainRunsMatchExactlyOnce(t *testing.T) {
	st := memory.New()
	b := &fakeBus{}
	mr := newFakeMatchRunner()
	c := newTestCoordinator(t, st, b, mr)

	mustUpsertOnlineDriver(t, st, "d1", 0, 0)

	job := &models.Job{ID: "job-1", PickupLat: 0, PickupLon: 0, BiddingWindowSeconds: 0, Status: types.JobPending}
	if err := st.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	if err := c.OpenAuction(context.Background(), job); err != nil {
		t.Fatalf("OpenAuction: %v", err)
	}

	select {
	case <-mr.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for match run after drain")
	}

	mr.mu.Lock()
	defer mr.mu.Unlock()
	if len(mr.batches) != 1 {
		t.Fatalf("expected exactly one match run, got %d", len(mr.batches))
	}
}

func TestRecordBidRejectedWhenAuctionNotOpen(t *testing.T) {
	st := memory.New()
	b := &fakeBus{}
	mr := newFakeMatchRunner()
	c := newTestCoordinator(t, st, b, mr)

	err := c.RecordBid(context.Background(), "nonexistent-job", "d1", 0, 0)
	if err != types.ErrAuctionNotOpen {
		t.Fatalf("expected ErrAuctionNotOpen, got %v", err)
	}
}

func TestCancelPublishesBidLostForEveryBidder(t *testing.T) {
	st := memory.New()
	b := &fakeBus{}
	mr := newFakeMatchRunner()
	c := newTestCoordinator(t, st, b, mr)

	mustUpsertOnlineDriver(t, st, "d1", 0, 0)
	mustUpsertOnlineDriver(t, st, "d2", 0, 0)

	job := &models.Job{ID: "job-1", PickupLat: 0, PickupLon: 0, BiddingWindowSeconds: 60, Status: types.JobPending}
	if err := st.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := c.OpenAuction(context.Background(), job); err != nil {
		t.Fatalf("OpenAuction: %v", err)
	}
	if err := c.RecordBid(context.Background(), "job-1", "d1", 0, 0); err != nil {
		t.Fatalf("RecordBid: %v", err)
	}
	if err := c.RecordBid(context.Background(), "job-1", "d2", 0, 0); err != nil {
		t.Fatalf("RecordBid: %v", err)
	}

	if err := c.Cancel(context.Background(), "job-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	topics := b.topics()
	wantResult1 := "jobs/job-1/result/d1"
	wantResult2 := "jobs/job-1/result/d2"
	var foundD1, foundD2, foundStatus bool
	for _, tpc := range topics {
		switch tpc {
		case wantResult1:
			foundD1 = true
		case wantResult2:
			foundD2 = true
		case "jobs/job-1/status":
			foundStatus = true
		}
	}
	if !foundD1 || !foundD2 {
		t.Fatalf("expected bid_lost published for both bidders, got topics=%v", topics)
	}
	if !foundStatus {
		t.Fatalf("expected a job status update published on cancel, got topics=%v", topics)
	}

	job2, err := st.GetJob(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job2.Status != types.JobCancelled {
		t.Fatalf("expected job status CANCELLED after cancel, got %s", job2.Status)
	}
}
