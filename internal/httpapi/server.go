// Package httpapi is the dispatch engine's HTTP control plane: job
// submission/status/cancel mirroring the CLI subcommands, a debug event
// WebSocket, health and Prometheus exposition. Grounded on the teacher's
// internal/adapter/http package (server/routes/handler/middleware split),
// collapsed to the engine's single process instead of the teacher's
// per-service-mode split.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fleetcore/dispatch/internal/bidding"
	"github.com/fleetcore/dispatch/internal/bus"
	"github.com/fleetcore/dispatch/internal/ingest"
	"github.com/fleetcore/dispatch/internal/store"
	"github.com/fleetcore/dispatch/pkg/logger"
	wrap "github.com/fleetcore/dispatch/pkg/logger/wrapper"
	ws "github.com/fleetcore/dispatch/pkg/wsHub"
)

// hubHealthInterval is how often the debug event hub sweeps for connections
// that have gone silent past their liveness window.
const hubHealthInterval = 30 * time.Second

// API is the control plane's HTTP listener.
type API struct {
	mux    *http.ServeMux
	server *http.Server
	m      *Middleware
	events *Events
	hub    *ws.ConnectionHub
	addr   string
	log    logger.Logger
}

func New(
	addr, serviceName, jwtSecret string,
	ingestor *ingest.JobIngestor,
	coordinator *bidding.Coordinator,
	st store.Store,
	b bus.Bus,
	log logger.Logger,
) *API {
	mux := http.NewServeMux()

	hub := ws.NewConnHub(log)
	events := NewEvents(hub, b, log)
	h := &handlers{
		health: NewHealth(serviceName, log),
		jobs:   NewJobs(ingestor, coordinator, st, log),
		events: events,
	}
	m := newMiddleware(newTokenValidator(jwtSecret), serviceName, log)

	setupRoutes(mux, h, m)

	api := &API{
		mux:    mux,
		m:      m,
		events: events,
		hub:    hub,
		addr:   addr,
		log:    log,
	}
	api.server = &http.Server{
		Addr:    addr,
		Handler: api.withMiddleware(),
	}
	return api
}

// withMiddleware applies the cross-cutting chain shared by every route.
// Auth is applied per-route in setupRoutes instead, since /health, /metrics
// and /swagger must stay reachable without a dispatcher token.
func (a *API) withMiddleware() http.Handler {
	return a.m.Recover(a.m.RequestID(a.m.Metrics(a.mux)))
}

// Run starts the listener in the background and reports a fatal error (any
// error other than a clean Shutdown) on errCh, mirroring the teacher's
// server.API.Run.
func (a *API) Run(ctx context.Context, errCh chan<- error) {
	go func() {
		startCtx := wrap.WithAction(ctx, "http_server_start")
		a.log.Info(startCtx, "started http server", "address", a.addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		if err := a.events.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("debug event stream: %w", err)
		}
	}()

	go a.hub.HealthLoop(ctx, hubHealthInterval)
}

func (a *API) Stop(ctx context.Context) error {
	a.hub.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ctx = wrap.WithAction(ctx, "http_server_stop")

	a.log.Debug(ctx, "shutting down HTTP server", "address", a.addr)
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
