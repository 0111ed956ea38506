package ingest

import (
	"encoding/json"
	"testing"
)

func TestFirstNonEmptyPicksFirstSet(t *testing.T) {
	if got := firstNonEmpty("", "second", "third"); got != "second" {
		t.Fatalf("expected second, got %q", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Fatalf("expected empty string when all empty, got %q", got)
	}
}

func TestFirstFloatPicksFirstNonNil(t *testing.T) {
	a := 1.5
	b := 2.5
	v, ok := firstFloat(nil, &a, &b)
	if !ok || v != 1.5 {
		t.Fatalf("firstFloat = %v, %v; want 1.5, true", v, ok)
	}

	v, ok = firstFloat(nil, nil)
	if ok || v != 0 {
		t.Fatalf("firstFloat = %v, %v; want 0, false", v, ok)
	}
}

func TestParsePassengersFieldAcceptsIntOrString(t *testing.T) {
	n, detail := parsePassengersField(json.RawMessage(`4`))
	if n != 4 || detail != "" {
		t.Fatalf("int passengers: got %d %q, want 4 \"\"", n, detail)
	}

	n, detail = parsePassengersField(json.RawMessage(`"2 adults 1 child"`))
	if n != 2 || detail != "2 adults 1 child" {
		t.Fatalf("string passengers: got %d %q, want 2 \"2 adults 1 child\"", n, detail)
	}

	n, detail = parsePassengersField(nil)
	if n != 1 || detail != "" {
		t.Fatalf("absent passengers: got %d %q, want 1 \"\"", n, detail)
	}

	n, _ = parsePassengersField(json.RawMessage(`-3`))
	if n != 1 {
		t.Fatalf("expected non-positive int passengers to default to 1, got %d", n)
	}
}
