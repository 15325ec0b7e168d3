package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/luifiio/bp4w-maq/internal/model"
)

func TestClient_RejectionIncludesMessage(t *testing.T) {
	t.Parallel()

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"message":"Not connected"}`))
	}))
	defer s.Close()

	c := NewClient(s.URL, time.Second)
	out := c.Invoke(context.Background(), model.CommandStart, Params{})
	if out.Success {
		t.Fatalf("expected failure")
	}
	if out.Message != "Not connected" {
		t.Fatalf("message=%q", out.Message)
	}
}

func TestClient_ErrorIncludesBody(t *testing.T) {
	t.Parallel()

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("serial port busy\n"))
	}))
	defer s.Close()

	c := NewClient(s.URL, time.Second)
	out := c.Invoke(context.Background(), model.CommandConnect, Params{})
	if out.Success {
		t.Fatalf("expected failure")
	}
	if want := "500"; !strings.Contains(out.Message, want) {
		t.Fatalf("message missing status: %q", out.Message)
	}
	if want := "serial port busy"; !strings.HasSuffix(out.Message, want) {
		t.Fatalf("message missing body: %q", out.Message)
	}
}

func TestClient_TransportErrorIsOutcome(t *testing.T) {
	t.Parallel()

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := s.URL
	s.Close()

	c := NewClient(url, time.Second)
	out := c.Invoke(context.Background(), model.CommandStop, Params{})
	if out.Success {
		t.Fatalf("expected failure")
	}
	if !strings.HasPrefix(out.Message, "transport error: ") {
		t.Fatalf("message=%q", out.Message)
	}
}

func TestClient_LoggingStartDefaultsSessionName(t *testing.T) {
	t.Parallel()

	got := make(chan LoggingStartRequest, 1)
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/logging/start" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req LoggingStartRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		got <- req
		_, _ = w.Write([]byte(`{"success":true,"message":"Logging started"}`))
	}))
	defer s.Close()

	c := NewClient(s.URL+"/", time.Second)
	out := c.Invoke(context.Background(), model.CommandLoggingStart, Params{SessionName: "  "})
	if !out.Success || out.Message != "Logging started" {
		t.Fatalf("outcome=%+v", out)
	}
	if req := <-got; req.SessionName != "session" {
		t.Fatalf("session_name=%q", req.SessionName)
	}
}

func TestClient_EndpointsPerCommand(t *testing.T) {
	t.Parallel()

	paths := make(chan string, len(model.Commands))
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer s.Close()

	c := NewClient(s.URL, time.Second)
	for _, cmd := range model.Commands {
		if out := c.Invoke(context.Background(), cmd, Params{SessionName: "track"}); !out.Success {
			t.Fatalf("%s: %+v", cmd, out)
		}
		if got := <-paths; got != Endpoints[cmd] {
			t.Fatalf("%s: path=%s", cmd, got)
		}
	}
}

func TestClient_Status(t *testing.T) {
	t.Parallel()

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != StatusPath {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"connected":true,"streaming":true,"logging":false}`))
	}))
	defer s.Close()

	got, err := NewClient(s.URL, time.Second).Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !got.Connected || !got.Streaming || got.Logging {
		t.Fatalf("status=%+v", got)
	}
}
