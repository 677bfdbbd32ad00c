package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const stateBody = `{
  "metric": "player count",
  "currentHigh": 600,
  "history": [
    {"value": 600, "observedAt": "2026-10-19T12:03:00Z"},
    {"value": 500, "observedAt": "2026-10-19T12:00:00Z"}
  ],
  "capacity": 5,
  "updatedAt": "2026-10-19T12:03:00Z"
}`

func newTracker(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/state" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_Table(t *testing.T) {
	srv := newTracker(t, http.StatusOK, stateBody)

	var out bytes.Buffer
	if err := run([]string{"-url", srv.URL}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"All-time high player count: 600",
		"VALUE",
		"2026-10-19T12:03:00Z",
		"500",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRun_JSON(t *testing.T) {
	srv := newTracker(t, http.StatusOK, stateBody)

	var out bytes.Buffer
	if err := run([]string{"-url", srv.URL, "-json"}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	var decoded struct {
		Metric string
		State  struct {
			CurrentHigh int64
			History     []struct{ Value int64 }
		}
	}
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if decoded.Metric != "player count" || decoded.State.CurrentHigh != 600 || len(decoded.State.History) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestRun_NoRecords(t *testing.T) {
	srv := newTracker(t, http.StatusOK, `{"metric":"player count","currentHigh":0,"history":[],"capacity":5,"updatedAt":null}`)

	var out bytes.Buffer
	if err := run([]string{"-url", srv.URL}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(out.String(), "No records yet.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRun_Errors(t *testing.T) {
	srv := newTracker(t, http.StatusServiceUnavailable, `{"error":"state not loaded"}`)

	if err := run([]string{"-url", srv.URL}, &bytes.Buffer{}); err == nil {
		t.Error("run() error = nil, want error for 503")
	}
	if err := run([]string{"-bogus"}, &bytes.Buffer{}); err == nil {
		t.Error("run() error = nil, want flag error")
	}
}
