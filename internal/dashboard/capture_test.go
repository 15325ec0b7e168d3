package dashboard

import (
	"errors"
	"testing"

	"github.com/luifiio/bp4w-maq/internal/model"
	"github.com/luifiio/bp4w-maq/internal/reconciler"
)

func TestRecorder_KeepsAcceptedSamplesOnly(t *testing.T) {
	t.Parallel()

	rec := reconciler.New(reconciler.Options{Capacity: 10})
	c := NewRecorder(rec)
	feed := func(ev reconciler.Event) {
		c.Tap(ev, rec.Handle(ev))
	}

	feed(reconciler.SampleEvent{Sample: model.SensorSample{Timestamp: 1, CoolantTemp: model.Float(80)}})
	// Timestamp only: accepted, no instructions.
	feed(reconciler.SampleEvent{Sample: model.SensorSample{Timestamp: 2}})
	feed(reconciler.SampleEvent{Sample: model.SensorSample{Timestamp: 2, CoolantTemp: model.Float(81)}})
	feed(reconciler.SampleEvent{Err: errors.New("bad frame")})
	feed(reconciler.StatusEvent{Status: model.SystemStatus{Connected: true}})
	feed(reconciler.SampleEvent{Sample: model.SensorSample{Timestamp: 3, OilTemp: model.Float(100)}})

	items := c.Drain()
	if len(items) != 3 {
		t.Fatalf("items=%+v", items)
	}
	for i, want := range []float64{1, 2, 3} {
		if items[i].Timestamp != want {
			t.Fatalf("items[%d].Timestamp=%v, want %v", i, items[i].Timestamp, want)
		}
	}
	if again := c.Drain(); len(again) != 0 {
		t.Fatalf("drain not reset: %+v", again)
	}
}
