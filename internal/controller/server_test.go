package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/luifiio/bp4w-maq/internal/api"
	"github.com/luifiio/bp4w-maq/internal/config"
	"github.com/luifiio/bp4w-maq/internal/metrics"
	"github.com/luifiio/bp4w-maq/internal/model"
	"github.com/luifiio/bp4w-maq/internal/reconciler"
	"github.com/luifiio/bp4w-maq/internal/stream"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestServer(t *testing.T, mutate func(*config.SimulatorConfig)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := *config.DefaultSimulator()
	cfg.Seed = 42
	cfg.SampleRateHz = 100
	cfg.RequestsPerSecond = 1000
	if mutate != nil {
		mutate(&cfg)
	}
	s := NewServer(cfg, zerolog.Nop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})
	return s, ts
}

func dialPush(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url, err := stream.PushURL(ts.URL, "")
	if err != nil {
		t.Fatalf("PushURL: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func nextEvent(t *testing.T, conn *websocket.Conn) reconciler.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	ev, err := stream.Decode(raw)
	if err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return ev
}

func nextStatus(t *testing.T, conn *websocket.Conn) reconciler.StatusEvent {
	t.Helper()
	for {
		if st, ok := nextEvent(t, conn).(reconciler.StatusEvent); ok {
			return st
		}
	}
}

func TestStart_RequiresConnection(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, nil)
	client := api.NewClient(ts.URL, time.Second)
	out := client.Invoke(context.Background(), model.CommandStart, api.Params{})
	if out.Success || out.Message != "Not connected" {
		t.Fatalf("outcome=%+v", out)
	}
	out = client.Invoke(context.Background(), model.CommandLoggingStart, api.Params{})
	if out.Success || out.Message != "Not connected" {
		t.Fatalf("outcome=%+v", out)
	}
}

func TestControl_PushesSequencedStatusAndSamples(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, nil)
	conn := dialPush(t, ts)
	client := api.NewClient(ts.URL, time.Second)
	ctx := context.Background()

	greeting := nextStatus(t, conn)
	if greeting.Seq != 0 || greeting.Status != (model.SystemStatus{}) {
		t.Fatalf("greeting=%+v", greeting)
	}

	if out := client.Invoke(ctx, model.CommandConnect, api.Params{}); !out.Success {
		t.Fatalf("connect=%+v", out)
	}
	st := nextStatus(t, conn)
	if st.Seq != 1 || !st.Status.Connected {
		t.Fatalf("after connect=%+v", st)
	}

	if out := client.Invoke(ctx, model.CommandStart, api.Params{}); !out.Success {
		t.Fatalf("start=%+v", out)
	}
	st = nextStatus(t, conn)
	if st.Seq != 2 || !st.Status.Streaming {
		t.Fatalf("after start=%+v", st)
	}

	var last float64
	for i := 0; i < 5; i++ {
		se, ok := nextEvent(t, conn).(reconciler.SampleEvent)
		if !ok {
			t.Fatalf("expected sample frame")
		}
		if se.Err != nil || se.Sample.Timestamp <= last {
			t.Fatalf("sample=%+v err=%v last=%v", se.Sample, se.Err, last)
		}
		last = se.Sample.Timestamp
	}

	if out := client.Invoke(ctx, model.CommandDisconnect, api.Params{}); !out.Success {
		t.Fatalf("disconnect=%+v", out)
	}
	st = nextStatus(t, conn)
	if st.Seq != 3 || st.Status != (model.SystemStatus{}) {
		t.Fatalf("after disconnect=%+v", st)
	}

	status, err := client.Status(ctx)
	if err != nil || status != (model.SystemStatus{}) {
		t.Fatalf("status=%+v err=%v", status, err)
	}
}

func TestLogging_WritesSessionCSV(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, ts := newTestServer(t, func(cfg *config.SimulatorConfig) { cfg.LogDir = dir })
	conn := dialPush(t, ts)
	client := api.NewClient(ts.URL, time.Second)
	ctx := context.Background()

	client.Invoke(ctx, model.CommandConnect, api.Params{})
	if out := client.Invoke(ctx, model.CommandLoggingStart, api.Params{SessionName: "track day"}); !out.Success {
		t.Fatalf("logging start=%+v", out)
	}
	client.Invoke(ctx, model.CommandStart, api.Params{})

	seen := 0
	for seen < 3 {
		if _, ok := nextEvent(t, conn).(reconciler.SampleEvent); ok {
			seen++
		}
	}
	client.Invoke(ctx, model.CommandStop, api.Params{})
	if !s.Status().Logging || s.Status().Streaming {
		t.Fatalf("status=%+v", s.Status())
	}

	files, err := filepath.Glob(filepath.Join(dir, "track_day_*.csv"))
	if err != nil || len(files) != 1 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	samples, err := metrics.ReadCSV(files[0])
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(samples) < 3 {
		t.Fatalf("samples=%d", len(samples))
	}
}

func TestRateLimit_Rejects(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, func(cfg *config.SimulatorConfig) { cfg.RequestsPerSecond = 1 })
	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		res, err := http.Get(ts.URL + api.StatusPath)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		res.Body.Close()
		codes = append(codes, res.StatusCode)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes=%v", codes)
	}

	out := api.NewClient(ts.URL, time.Second).Invoke(context.Background(), model.CommandConnect, api.Params{})
	if out.Success || !strings.Contains(out.Message, "rate limit") {
		t.Fatalf("outcome=%+v", out)
	}
}

func TestSessionFileName(t *testing.T) {
	t.Parallel()

	if got := sessionFileName("track day/1"); got != "track_day_1" {
		t.Fatalf("got=%q", got)
	}
	if got := sessionFileName(""); got != "session" {
		t.Fatalf("got=%q", got)
	}
}
