package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fleetcore/dispatch/internal/domain/types"
	"github.com/fleetcore/dispatch/pkg/logger"
	wrap "github.com/fleetcore/dispatch/pkg/logger/wrapper"
	"github.com/fleetcore/dispatch/pkg/metrics"
)

// Middleware bundles the control plane's cross-cutting HTTP concerns.
// Grounded on the teacher's middleware.Middleware, trimmed to the one
// auth scheme this engine needs (a single dispatcher bearer token rather
// than passenger/driver/admin roles).
type Middleware struct {
	tokens      *tokenValidator
	serviceName string
	log         logger.Logger
}

func newMiddleware(tokens *tokenValidator, serviceName string, log logger.Logger) *Middleware {
	return &Middleware{tokens: tokens, serviceName: serviceName, log: log}
}

// statusWriter captures the status code a downstream handler wrote, since
// http.ResponseWriter doesn't expose it after the fact.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Metrics records request count/duration/in-flight gauges for every route,
// mirroring the teacher's prometheus wiring pattern (promauto counters
// bumped from middleware rather than scattered through handlers).
func (m *Middleware) Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.HttpRequestsInFlight.WithLabelValues(m.serviceName).Inc()
		defer metrics.HttpRequestsInFlight.WithLabelValues(m.serviceName).Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		metrics.RecordHTTPMetrics(m.serviceName, r.Method, r.URL.Path, sw.status, time.Since(start))
	})
}

// Recover turns a panic in a downstream handler into a 500 instead of a
// crashed connection.
func (m *Middleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				m.log.Error(r.Context(), "panic occured in http server", fmt.Errorf("%v", p))
				w.Header().Set("Connection", "close")
				errorResponse(w, http.StatusInternalServerError, "the server encountered a problem and could not process your request")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RequestID stamps every inbound request with a correlation id (reusing the
// client's X-Request-ID if present) so logs across ingest/bidding/allocator
// can be joined on it.
func (m *Middleware) RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = newRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := wrap.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type dispatcherIDKey struct{}

func withDispatcherID(ctx context.Context, dispatcherID string) context.Context {
	return context.WithValue(ctx, dispatcherIDKey{}, dispatcherID)
}

// Auth requires a valid dispatcher bearer token on every route it wraps,
// including the read-only GET /v1/ws/events stream. Unlike the teacher's
// Auth, there is no anonymous-user pass-through: a missing/invalid token is
// always a 401.
func (m *Middleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			errorResponse(w, http.StatusUnauthorized, "authorization required")
			return
		}

		token, err := extractBearerToken(header)
		if err != nil {
			errorResponse(w, http.StatusUnauthorized, err.Error())
			return
		}

		dispatcherID, err := m.tokens.validate(token)
		if err != nil {
			errorResponse(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		ctx := wrap.WithAction(r.Context(), types.ActionDispatcherAuthenticated)
		r = r.WithContext(withDispatcherID(ctx, dispatcherID))
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", fmt.Errorf("invalid Authorization header format")
	}
	return parts[1], nil
}

func newRequestID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "unseeded-request-id"
	}
	return hex.EncodeToString(b[:])
}
