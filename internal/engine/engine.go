// Package engine wires every component — store, bus, ingest, bidding,
// matching, allocator, watchdog, locationingest, the HTTP control plane —
// into one supervised process. Grounded on the teacher's internal/app +
// internal/app/microservices/ride.go (NewRide/Start/close shape), but
// generalized from that package's os/signal + sync.WaitGroup handrolled
// supervision to golang.org/x/sync/errgroup, since this engine runs many
// more independent loops than the teacher's single ride microservice.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/fleetcore/dispatch/config"
	"github.com/fleetcore/dispatch/internal/allocator"
	"github.com/fleetcore/dispatch/internal/bidding"
	"github.com/fleetcore/dispatch/internal/bus"
	"github.com/fleetcore/dispatch/internal/bus/rabbitbus"
	"github.com/fleetcore/dispatch/internal/domain/models"
	"github.com/fleetcore/dispatch/internal/eta"
	"github.com/fleetcore/dispatch/internal/geo"
	"github.com/fleetcore/dispatch/internal/httpapi"
	"github.com/fleetcore/dispatch/internal/ingest"
	"github.com/fleetcore/dispatch/internal/locationingest"
	"github.com/fleetcore/dispatch/internal/spoof"
	"github.com/fleetcore/dispatch/internal/store"
	storepg "github.com/fleetcore/dispatch/internal/store/postgres"
	"github.com/fleetcore/dispatch/internal/watchdog"
	"github.com/fleetcore/dispatch/pkg/logger"
	pgdriver "github.com/fleetcore/dispatch/pkg/postgres"
	"github.com/fleetcore/dispatch/pkg/rabbit"
	"github.com/fleetcore/dispatch/pkg/trm"
)

// ErrStoreUnreachable and ErrBrokerUnreachable let cmd/dispatch map a failed
// New into the CLI's distinct store/broker exit codes without string-matching
// error text.
var (
	ErrStoreUnreachable  = errors.New("store unreachable")
	ErrBrokerUnreachable = errors.New("broker unreachable")
)

// Engine owns every long-running loop and the resources backing them.
type Engine struct {
	cfg config.Config
	log logger.Logger

	pg    *pgdriver.PostgreDB
	rabbit *rabbit.RabbitMQ
	bus    bus.Bus

	st          store.Store
	ingestor    *ingest.JobIngestor
	coordinator *bidding.Coordinator
	locIngest   *locationingest.Ingestor
	wd          *watchdog.Watchdog
	http        *httpapi.API
}

// New assembles the engine from configuration. Database/RabbitMQ connections
// are made eagerly so a misconfigured engine fails fast at startup rather
// than on the first request.
func New(ctx context.Context, cfg config.Config, log logger.Logger) (*Engine, error) {
	pg, err := pgdriver.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w: %w", ErrStoreUnreachable, err)
	}

	rabbitClient, err := rabbit.New(ctx, cfg.RabbitMQ.GetDSN(), log)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w: %w", ErrBrokerUnreachable, err)
	}

	msgBus, err := rabbitbus.New(rabbitClient, log)
	if err != nil {
		return nil, fmt.Errorf("setup bus: %w", err)
	}

	st := store.Store(storepg.New(pg.Pool))
	tx := trm.New(pg.Pool)
	etaModel := eta.New()

	geocoder := geo.NewLocationIQGeocoder(cfg.Geo.LocationIQAPIKey)
	fallback := geo.StaticFallbackGeocoder{Lat: 0, Lon: 0}

	alloc := allocator.New(st, msgBus, tx, etaModel, log)
	runner := newMatchRunner(st, etaModel, cfg.Scoring.Weights(), alloc, log)
	coordinator := bidding.New(cfg.Matching.BiddingConfig(), st, msgBus, runner, log)
	ingestor := ingest.New(st, geocoder, fallback, coordinator, cfg.Matching.IntakeQueueSize, log)
	locIngest := locationingest.New(st, msgBus, spoof.New(), log)
	wd := watchdog.New(cfg.Watchdog.WatchdogConfig(), st, msgBus, log)

	httpServer := httpapi.New(cfg.HTTP.Addr, cfg.HTTP.ServiceName, cfg.Auth.JWTSecret, ingestor, coordinator, st, msgBus, log)

	return &Engine{
		cfg:         cfg,
		log:         log,
		pg:          pg,
		rabbit:      rabbitClient,
		bus:         msgBus,
		st:          st,
		ingestor:    ingestor,
		coordinator: coordinator,
		locIngest:   locIngest,
		wd:          wd,
		http:        httpServer,
	}, nil
}

// Run starts every loop and blocks until ctx is cancelled or one loop fails
// fatally; on return every loop has been asked to stop.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return e.coordinator.Run(gctx) })
	g.Go(func() error { return e.ingestor.Run(gctx) })
	g.Go(func() error { return e.locIngest.Run(gctx) })
	g.Go(func() error { return e.wd.Run(gctx) })
	g.Go(func() error {
		return e.bus.Subscribe(gctx, "jobs/+/bid", func(ctx context.Context, _ string, body []byte) error {
			var evt models.BidEvent
			if err := json.Unmarshal(body, &evt); err != nil {
				e.log.Warn(ctx, "discarding malformed bid", "error", err.Error())
				return nil
			}
			if err := e.coordinator.RecordBid(ctx, evt.JobID, evt.DriverID, evt.Lat, evt.Lon); err != nil {
				e.log.Warn(ctx, "bid rejected", "job_id", evt.JobID, "driver_id", evt.DriverID, "error", err.Error())
			}
			return nil
		})
	})

	errCh := make(chan error, 1)
	e.http.Run(gctx, errCh)
	g.Go(func() error {
		select {
		case err := <-errCh:
			return err
		case <-gctx.Done():
			return nil
		}
	})

	e.log.Info(ctx, "dispatch engine started")
	err := g.Wait()

	e.close(ctx)
	return err
}

func (e *Engine) close(ctx context.Context) {
	if e.http != nil {
		if stopErr := e.http.Stop(ctx); stopErr != nil {
			e.log.Warn(ctx, "http server stop error", "error", stopErr.Error())
		}
	}
	if e.bus != nil {
		if stopErr := e.bus.Close(); stopErr != nil {
			e.log.Warn(ctx, "bus close error", "error", stopErr.Error())
		}
	}
	if e.rabbit != nil {
		if stopErr := e.rabbit.Close(ctx); stopErr != nil {
			e.log.Warn(ctx, "rabbitmq close error", "error", stopErr.Error())
		}
	}
	if e.pg != nil && e.pg.Pool != nil {
		e.pg.Pool.Close()
	}
	e.log.Info(ctx, "dispatch engine stopped")
}
