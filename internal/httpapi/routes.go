package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

type handlers struct {
	health *Health
	jobs   *Jobs
	events *Events
}

// setupRoutes wires the control plane's routes, grounded on the teacher's
// server.setupRoutes but flattened to a single mode (the dispatch engine is
// one process, unlike the teacher's per-service split).
func setupRoutes(mux *http.ServeMux, h *handlers, m *Middleware) {
	mux.HandleFunc("/health", h.health.HealthCheck)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/swagger/", httpSwagger.Handler(httpSwagger.InstanceName("dispatch")))

	mux.Handle("POST /v1/jobs", m.Auth(http.HandlerFunc(h.jobs.Submit)))
	mux.HandleFunc("GET /v1/jobs/{id}", h.jobs.Status)
	mux.Handle("POST /v1/jobs/{id}/cancel", m.Auth(http.HandlerFunc(h.jobs.Cancel)))
	mux.Handle("GET /v1/ws/events", m.Auth(http.HandlerFunc(h.events.Stream)))
}
