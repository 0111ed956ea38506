package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleetcore/dispatch/internal/bidding"
	"github.com/fleetcore/dispatch/internal/bus"
	"github.com/fleetcore/dispatch/internal/domain/models"
	"github.com/fleetcore/dispatch/internal/ingest"
	"github.com/fleetcore/dispatch/internal/store"
	"github.com/fleetcore/dispatch/pkg/logger"
	wrap "github.com/fleetcore/dispatch/pkg/logger/wrapper"
	"github.com/fleetcore/dispatch/pkg/metrics"
	"github.com/fleetcore/dispatch/pkg/uuid"
	ws "github.com/fleetcore/dispatch/pkg/wsHub"
)

const metricsService = "dispatch-engine"

// Health reports liveness for the control plane's own HTTP listener, mirrored
// on the teacher's handler.Health (no downstream dependency checks: the
// engine's other loops are supervised independently).
type Health struct {
	serviceName string
	log         logger.Logger
}

func NewHealth(serviceName string, log logger.Logger) *Health {
	return &Health{serviceName: serviceName, log: log}
}

func (h *Health) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "health_check")
	resp := envelope{
		"status": "available",
		"system_info": envelope{
			"service-name": h.serviceName,
		},
	}
	if err := writeJSON(w, http.StatusOK, resp, nil); err != nil {
		h.log.Error(ctx, "healthcheck", err)
	}
}

// Jobs exposes the dispatch engine's job lifecycle over HTTP: submission,
// status lookups and cancellation. It is a thin adapter over the same
// ingestor/coordinator/store the bus-driven intake path uses (§6: the HTTP
// surface is a sibling of the bus path, not a replacement).
type Jobs struct {
	ingestor    *ingest.JobIngestor
	coordinator *bidding.Coordinator
	store       store.Store
	log         logger.Logger
}

func NewJobs(ingestor *ingest.JobIngestor, coordinator *bidding.Coordinator, st store.Store, log logger.Logger) *Jobs {
	return &Jobs{ingestor: ingestor, coordinator: coordinator, store: st, log: log}
}

// Submit godoc
// @Summary      Submit a job
// @Description  Admits a job directly over HTTP, bypassing the message bus.
// @Tags         Jobs
// @Accept       json
// @Produce      json
// @Success      202  {object}  map[string]string
// @Router       /v1/jobs [post]
func (h *Jobs) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var raw ingest.RawJobMessage
	if err := readJSON(w, r, &raw); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	jobID, err := h.ingestor.Submit(ctx, raw, "http")
	if err != nil {
		h.log.Warn(ctx, "job submission rejected", "error", err.Error())
		errorResponse(w, statusCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusAccepted, envelope{"job_id": jobID}, nil); err != nil {
		h.log.Error(ctx, "write submit response", err)
	}
}

// Status godoc
// @Summary      Get job status
// @Tags         Jobs
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /v1/jobs/{id} [get]
func (h *Jobs) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := r.PathValue("id")

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		errorResponse(w, statusCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, jobSnapshot(job), nil); err != nil {
		h.log.Error(ctx, "write status response", err)
	}
}

// Cancel godoc
// @Summary      Cancel a job
// @Tags         Jobs
// @Produce      json
// @Success      204
// @Router       /v1/jobs/{id}/cancel [post]
func (h *Jobs) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := r.PathValue("id")

	if err := h.coordinator.Cancel(ctx, jobID); err != nil {
		errorResponse(w, statusCode(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func jobSnapshot(j *models.Job) envelope {
	return envelope{
		"job_id":              j.ID,
		"status":              j.Status,
		"pickup":              j.PickupText,
		"dropoff":             j.DropoffText,
		"created_at":          j.CreatedAt,
		"allocated_driver_id": j.AllocatedDriverID,
		"driver_distance_km":  j.DriverDistanceKm,
		"driver_eta_min":      j.DriverETAMin,
		"bids":                j.BidsSnapshot,
	}
}

// eventBus is the narrow subscribe boundary the debug event stream needs.
type eventBus interface {
	Subscribe(ctx context.Context, topicPattern string, handler bus.Handler) error
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Events fans every jobs/# lifecycle message out to every connected debug
// observer, grounded on the teacher's pkg/wsHub.ConnectionHub/Conn (shared
// liveness loop, one Conn per socket) rather than a hand-rolled ping/pong
// loop per request: Run feeds the hub once, Stream only registers and
// retires one observer.
type Events struct {
	hub *ws.ConnectionHub
	bus eventBus
	log logger.Logger
}

func NewEvents(hub *ws.ConnectionHub, b eventBus, log logger.Logger) *Events {
	return &Events{hub: hub, bus: b, log: log}
}

const (
	wsHeartbeatInterval = 20 * time.Second
	wsHeartbeatTimeout  = 60 * time.Second
)

// Run subscribes to every job lifecycle topic and broadcasts each one to
// the hub; it is started once for the whole process, not per connection.
func (h *Events) Run(ctx context.Context) error {
	return h.bus.Subscribe(ctx, "jobs/#", func(_ context.Context, topic string, body []byte) error {
		var msg map[string]any
		if err := json.Unmarshal(body, &msg); err != nil {
			h.log.Warn(ctx, "dropping malformed debug event", "topic", topic, "error", err.Error())
			return nil
		}
		h.hub.Broadcast(msg)
		return nil
	})
}

func (h *Events) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(ctx, "ws upgrade failed", "error", err.Error())
		return
	}

	id, err := uuid.New()
	if err != nil {
		h.log.Error(ctx, "failed to generate debug observer id", err)
		conn.Close()
		return
	}

	c := ws.NewConn(ctx, id, conn, h.log)
	if err := h.hub.Add(c); err != nil {
		h.log.Warn(ctx, "failed to register debug observer", "error", err.Error())
		c.Close()
		return
	}
	metrics.WebSocketConnectionsGauge.WithLabelValues(metricsService).Inc()
	defer func() {
		h.hub.Delete(id)
		metrics.WebSocketConnectionsGauge.WithLabelValues(metricsService).Dec()
	}()

	go func() {
		if err := c.HeartbeatLoop(wsHeartbeatTimeout, wsHeartbeatInterval); err != nil {
			h.log.Debug(ctx, "debug observer heartbeat ended", "entity_id", id.String(), "error", err.Error())
		}
	}()

	if err := c.Listen(); err != nil {
		h.log.Debug(ctx, "debug observer listen ended", "entity_id", id.String(), "error", err.Error())
	}
}
