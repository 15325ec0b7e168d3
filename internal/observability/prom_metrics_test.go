package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromObsCounters(t *testing.T) {
	t.Parallel()

	obs := NewPromObs()

	obs.IncCounter(SamplesMalformed, 2)
	if got := testutil.ToFloat64(obs.counters[SamplesMalformed]); got != 2 {
		t.Fatalf("expected malformed counter 2, got %f", got)
	}

	obs.IncCounter(StatusPushes, 1)
	obs.IncCounter(StatusPushes, 1)
	if got := testutil.ToFloat64(obs.counters[StatusPushes]); got != 2 {
		t.Fatalf("expected status counter 2, got %f", got)
	}

	obs.IncCounter("no_such_counter", 1)
}

func TestPromObsHandler(t *testing.T) {
	t.Parallel()

	obs := NewPromObs()
	obs.IncCounter(SamplesAccepted, 3)

	rec := httptest.NewRecorder()
	obs.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), SamplesAccepted+" 3") {
		t.Fatalf("missing counter in output:\n%s", body)
	}
}
