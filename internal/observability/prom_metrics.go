package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter names reported by the reconciler and the push reader.
const (
	SamplesAccepted  = "telemdash_samples_accepted_total"
	SamplesMalformed = "telemdash_samples_malformed_total"
	SamplesStale     = "telemdash_samples_stale_total"
	StatusPushes     = "telemdash_status_pushes_total"
	StatusStale      = "telemdash_status_stale_total"
	CommandsFailed   = "telemdash_commands_failed_total"
	CommandsRejected = "telemdash_commands_rejected_total"
	StreamReconnects = "telemdash_stream_reconnects_total"
	StreamResets     = "telemdash_stream_resets_total"
)

// PromObs keeps the dashboard's diagnostic counters on its own registry.
type PromObs struct {
	reg      *prometheus.Registry
	counters map[string]prometheus.Counter
}

func NewPromObs() *PromObs {
	help := map[string]string{
		SamplesAccepted:  "Sensor samples applied to the series buffers.",
		SamplesMalformed: "Sensor samples dropped for a missing timestamp or non-numeric value.",
		SamplesStale:     "Sensor samples dropped for a non-increasing timestamp.",
		StatusPushes:     "Authoritative status pushes applied.",
		StatusStale:      "Status pushes dropped for a lower sequence number.",
		CommandsFailed:   "Control commands that failed in transport or were rejected by the backend.",
		CommandsRejected: "Control commands refused locally because the current status does not permit them.",
		StreamReconnects: "Push stream redials after a broken connection.",
		StreamResets:     "New push streams that restarted sequence and timestamp ordering.",
	}

	reg := prometheus.NewRegistry()
	counters := make(map[string]prometheus.Counter, len(help))
	for name, text := range help {
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: text})
		reg.MustRegister(c)
		counters[name] = c
	}
	return &PromObs{reg: reg, counters: counters}
}

// IncCounter adds v to the named counter. Unknown names are ignored.
func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

// Handler serves the counters in the prometheus text format.
func (p *PromObs) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

// Nop discards all counter updates.
type Nop struct{}

func (Nop) IncCounter(string, float64) {}
