package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		},
		[]string{"service"},
	)

	// Business metrics
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_total",
			Help: "Total number of jobs admitted, by terminal/transition status",
		},
		[]string{"service", "status"},
	)

	ActiveAuctionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "active_auctions_total",
			Help: "Current number of open bidding windows",
		},
		[]string{"service"},
	)

	BidsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bids_received_total",
			Help: "Total number of bids accepted into an auction",
		},
		[]string{"service", "uninvited"},
	)

	BidsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bids_rejected_total",
			Help: "Total number of bids rejected (duplicate, auction closed, spoofed identity)",
		},
		[]string{"service", "reason"},
	)

	MatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_runs_total",
			Help: "Total number of global matcher invocations, by algorithm and outcome",
		},
		[]string{"service", "algorithm", "status"},
	)

	MatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "match_duration_seconds",
			Help:    "Wall-clock duration of a single global matcher invocation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "algorithm"},
	)

	DriversOnlineGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "drivers_online_total",
			Help: "Current number of online drivers",
		},
		[]string{"service"},
	)

	SpoofRiskFlaggedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spoof_risk_flagged_total",
			Help: "Total number of location samples flagged with a non-zero spoof risk",
		},
		[]string{"service", "flag"},
	)

	WebSocketConnectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_connections_total",
			Help: "Current number of active debug WebSocket connections",
		},
		[]string{"service"},
	)

	DatabaseQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"service", "operation", "status"},
	)

	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "operation"},
	)

	RabbitMQMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rabbitmq_messages_published_total",
			Help: "Total number of messages published to RabbitMQ",
		},
		[]string{"service", "topic", "status"},
	)

	RabbitMQMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rabbitmq_messages_consumed_total",
			Help: "Total number of messages consumed from RabbitMQ",
		},
		[]string{"service", "topic", "status"},
	)
)

// RecordHTTPMetrics records HTTP request metrics
func RecordHTTPMetrics(service, method, path string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	HttpRequestsTotal.WithLabelValues(service, method, path, status).Inc()
	HttpRequestDuration.WithLabelValues(service, method, path, status).Observe(duration.Seconds())
}

// RecordDatabaseQuery records database query metrics
func RecordDatabaseQuery(service, operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseQueriesTotal.WithLabelValues(service, operation, status).Inc()
	DatabaseQueryDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordRabbitMQPublish records RabbitMQ publish metrics
func RecordRabbitMQPublish(service, topic string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	RabbitMQMessagesPublished.WithLabelValues(service, topic, status).Inc()
}

// RecordRabbitMQConsume records RabbitMQ consume metrics
func RecordRabbitMQConsume(service, topic string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	RabbitMQMessagesConsumed.WithLabelValues(service, topic, status).Inc()
}

// RecordMatchRun records one GlobalMatcher invocation
func RecordMatchRun(service, algorithm string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	MatchRunsTotal.WithLabelValues(service, algorithm, status).Inc()
	MatchDuration.WithLabelValues(service, algorithm).Observe(duration.Seconds())
}
