package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetcore/dispatch/pkg/logger"
)

func newTestMiddleware() *Middleware {
	log := logger.InitLogger("httpapi-test", logger.LevelDebug)
	return newMiddleware(newTokenValidator("secret"), "httpapi-test", log)
}

func TestRecoverTurnsPanicIntoFiveHundred(t *testing.T) {
	m := newTestMiddleware()
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	m.Recover(panicky).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after a panic, got %d", rec.Code)
	}
}

func TestRequestIDGeneratesWhenAbsent(t *testing.T) {
	m := newTestMiddleware()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	m.RequestID(next).ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a generated X-Request-ID header")
	}
}

func TestRequestIDReusesClientSuppliedValue(t *testing.T) {
	m := newTestMiddleware()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-id-123")
	m.RequestID(next).ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "client-id-123" {
		t.Fatalf("expected the client-supplied request id to be reused, got %q", got)
	}
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	m := newTestMiddleware()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", nil)
	m.Auth(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with no Authorization header, got %d", rec.Code)
	}
}

func TestAuthRejectsMalformedHeader(t *testing.T) {
	m := newTestMiddleware()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", nil)
	req.Header.Set("Authorization", "Basic abc123")
	m.Auth(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a non-bearer scheme, got %d", rec.Code)
	}
}

func TestAuthAcceptsValidBearerToken(t *testing.T) {
	m := newTestMiddleware()
	var gotDispatcherID any
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDispatcherID = r.Context().Value(dispatcherIDKey{})
		w.WriteHeader(http.StatusOK)
	})

	tok, err := issue("secret", "dispatcher-1", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	m.Auth(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a valid token, got %d", rec.Code)
	}
	if gotDispatcherID != "dispatcher-1" {
		t.Fatalf("expected dispatcher id in context, got %v", gotDispatcherID)
	}
}

func TestMetricsCapturesDownstreamStatus(t *testing.T) {
	m := newTestMiddleware()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusCreated) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", nil)
	m.Metrics(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected the downstream status to pass through, got %d", rec.Code)
	}
}
