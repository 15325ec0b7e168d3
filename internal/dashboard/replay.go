package dashboard

import (
	"github.com/luifiio/bp4w-maq/internal/alert"
	"github.com/luifiio/bp4w-maq/internal/metrics"
	"github.com/luifiio/bp4w-maq/internal/model"
	"github.com/luifiio/bp4w-maq/internal/reconciler"
)

// MetricReport summarizes one channel of a replayed recording.
type MetricReport struct {
	Metric    model.Metric
	Summary   metrics.Summary
	Retained  int
	Level     alert.Level
	Evaluated bool
}

// ReplayReport is the result of feeding a recording through a reconciler.
type ReplayReport struct {
	Metrics     []MetricReport
	Diagnostics reconciler.Diagnostics
}

// Replay feeds samples through a fresh reconciler in file order, applying
// the same drop rules as a live stream. Summaries cover accepted samples
// with timestamp >= since; Retained is what the bounded series still holds.
func Replay(samples []model.SensorSample, opts reconciler.Options, since float64) ReplayReport {
	rec := reconciler.New(opts)
	points := make(map[model.Metric][]model.SeriesPoint, len(model.Metrics))
	gauges := make(map[model.Metric]reconciler.GaugeUpdate, len(model.Metrics))

	for _, s := range samples {
		before := rec.Diagnostics().SamplesAccepted
		out := rec.Handle(reconciler.SampleEvent{Sample: s})
		if rec.Diagnostics().SamplesAccepted == before {
			continue
		}
		for _, m := range model.Metrics {
			if v, ok := s.Value(m); ok {
				points[m] = append(points[m], model.SeriesPoint{X: s.Timestamp, Y: v})
			}
		}
		for _, in := range out {
			if g, ok := in.(reconciler.GaugeUpdate); ok {
				gauges[g.Metric] = g
			}
		}
	}

	snap := rec.Snapshot()
	report := ReplayReport{Diagnostics: snap.Diagnostics}
	for _, m := range model.Metrics {
		g := gauges[m]
		report.Metrics = append(report.Metrics, MetricReport{
			Metric:    m,
			Summary:   metrics.Summarize(points[m], since),
			Retained:  len(snap.Series[m]),
			Level:     g.Level,
			Evaluated: g.Evaluated,
		})
	}
	return report
}
