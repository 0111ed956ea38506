package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fleetcore/dispatch/internal/domain/types"
)

func TestWriteJSONSetsContentTypeAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := writeJSON(rec, http.StatusTeapot, envelope{"ok": true}, nil); err != nil {
		t.Fatalf("writeJSON: %v", err)
	}
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json content type, got %q", ct)
	}
}

func TestReadJSONDecodesValidBody(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ada"}`))
	rec := httptest.NewRecorder()
	if err := readJSON(rec, req, &dst); err != nil {
		t.Fatalf("readJSON: %v", err)
	}
	if dst.Name != "ada" {
		t.Fatalf("expected name=ada, got %q", dst.Name)
	}
}

func TestReadJSONRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ada","extra":1}`))
	rec := httptest.NewRecorder()
	if err := readJSON(rec, req, &dst); err == nil {
		t.Fatal("expected an error for an unknown field")
	}
}

func TestReadJSONRejectsTrailingData(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ada"}{"name":"b"}`))
	rec := httptest.NewRecorder()
	if err := readJSON(rec, req, &dst); err == nil {
		t.Fatal("expected an error when the body contains more than one JSON value")
	}
}

func TestReadJSONRejectsEmptyBody(t *testing.T) {
	var dst struct{}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	rec := httptest.NewRecorder()
	if err := readJSON(rec, req, &dst); err == nil {
		t.Fatal("expected an error for an empty body")
	}
}

func TestStatusCodeMapsSentinelsToHTTPStatuses(t *testing.T) {
	cases := map[error]int{
		types.ErrJobNotFound:       http.StatusNotFound,
		types.ErrDriverNotFound:    http.StatusNotFound,
		types.ErrInvalidCoords:     http.StatusBadRequest,
		types.ErrDuplicateBid:      http.StatusBadRequest,
		types.ErrBusy:              http.StatusServiceUnavailable,
		types.ErrAuctionNotOpen:    http.StatusConflict,
		types.ErrIllegalTransition: http.StatusConflict,
		types.ErrSpoofedIdentity:   http.StatusUnauthorized,
	}
	for err, want := range cases {
		if got := statusCode(err); got != want {
			t.Fatalf("statusCode(%v) = %d, want %d", err, got, want)
		}
	}
}

func TestStatusCodeDefaultsToInternalError(t *testing.T) {
	if got := statusCode(errUnmapped); got != http.StatusInternalServerError {
		t.Fatalf("expected 500 for an unmapped error, got %d", got)
	}
}

var errUnmapped = &customErr{}

type customErr struct{}

func (*customErr) Error() string { return "unmapped" }
