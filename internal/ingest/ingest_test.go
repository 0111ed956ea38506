package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fleetcore/dispatch/internal/domain/models"
	"github.com/fleetcore/dispatch/pkg/logger"
)

type fakeGeocoder struct {
	lat, lon float64
	err      error
}

func (f fakeGeocoder) Resolve(context.Context, string, string) (float64, float64, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	return f.lat, f.lon, nil
}

type fakeStore struct {
	mu   sync.Mutex
	jobs []*models.Job
}

func (s *fakeStore) CreateJob(_ context.Context, j *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, j)
	return nil
}

type fakeCoordinator struct {
	mu     sync.Mutex
	opened []*models.Job
	err    error
}

func (c *fakeCoordinator) OpenAuction(_ context.Context, job *models.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.opened = append(c.opened, job)
	return nil
}

func newTestIngestor(st JobStore, geocoder, fallback fakeGeocoder, coord Coordinator) *JobIngestor {
	log := logger.InitLogger("ingest-test", logger.LevelDebug)
	return New(st, geocoder, fallback, coord, 16, log)
}

func TestSubmitAdmitsValidJobAndOpensAuction(t *testing.T) {
	st := &fakeStore{}
	coord := &fakeCoordinator{}
	j := newTestIngestor(st, fakeGeocoder{}, fakeGeocoder{}, coord)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = j.Run(ctx) }()

	raw := RawJobMessage{
		PickupAddress: "1 Station Road",
		Dropoff:       "2 High Street",
		Lat:           floatPtr(51.5),
		Lng:           floatPtr(-0.1),
		DropoffLat:    floatPtr(51.6),
		DropoffLng:    floatPtr(-0.2),
	}

	jobID, err := j.Submit(ctx, raw, "http")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if jobID == "" {
		t.Fatal("expected a non-empty job id")
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.jobs) != 1 || st.jobs[0].ID != jobID {
		t.Fatalf("expected the job to be created in the store, got %+v", st.jobs)
	}

	coord.mu.Lock()
	defer coord.mu.Unlock()
	if len(coord.opened) != 1 {
		t.Fatalf("expected the auction to be opened exactly once, got %d", len(coord.opened))
	}
}

func TestSubmitGeocodesMissingCoordinatesWithFallback(t *testing.T) {
	st := &fakeStore{}
	coord := &fakeCoordinator{}
	geocoder := fakeGeocoder{err: errors.New("geocoder unavailable")}
	fallback := fakeGeocoder{lat: 10, lon: 20}
	j := newTestIngestor(st, geocoder, fallback, coord)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = j.Run(ctx) }()

	raw := RawJobMessage{PickupAddress: "somewhere", Dropoff: "elsewhere"}
	if _, err := j.Submit(ctx, raw, "http"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.jobs) != 1 {
		t.Fatalf("expected one job created, got %d", len(st.jobs))
	}
	job := st.jobs[0]
	if job.PickupLat != 10 || job.PickupLon != 20 {
		t.Fatalf("expected pickup resolved via fallback geocoder, got %v,%v", job.PickupLat, job.PickupLon)
	}
	if !job.CoordsFixed {
		t.Fatal("expected CoordsFixed to be set when coordinates were geocoded")
	}
}

func TestSubmitReturnsErrBusyWhenQueueFull(t *testing.T) {
	st := &fakeStore{}
	coord := &fakeCoordinator{}
	log := logger.InitLogger("ingest-test", logger.LevelDebug)
	j := New(st, fakeGeocoder{}, fakeGeocoder{}, coord, 1, log)

	ctx := context.Background()
	raw := RawJobMessage{Lat: floatPtr(1), Lng: floatPtr(1), DropoffLat: floatPtr(1), DropoffLng: floatPtr(1)}

	req := admissionRequest{ctx: ctx, raw: raw, source: "http", result: make(chan admissionResult, 1)}
	j.queue <- req
	for i := 0; i < 20; i++ {
		if !j.limiter.Allow() {
			break
		}
	}

	_, err := j.Submit(ctx, raw, "http")
	if err == nil {
		t.Fatal("expected an error once the queue/limiter is saturated")
	}
}

func floatPtr(f float64) *float64 { return &f }
