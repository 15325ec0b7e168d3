package dashboard

import (
	"sync"

	"github.com/luifiio/bp4w-maq/internal/model"
	"github.com/luifiio/bp4w-maq/internal/reconciler"
)

// Recorder collects the samples a reconciler accepted, including samples
// that carry a timestamp but no readings. Its Tap must run on the loop
// that owns the reconciler.
type Recorder struct {
	rec      *reconciler.Reconciler
	accepted uint64

	mu    sync.Mutex
	items []model.SensorSample
}

func NewRecorder(rec *reconciler.Reconciler) *Recorder {
	return &Recorder{rec: rec, accepted: rec.Diagnostics().SamplesAccepted}
}

// Tap is a dashboard Tap.
func (c *Recorder) Tap(ev reconciler.Event, _ []reconciler.Instruction) {
	se, ok := ev.(reconciler.SampleEvent)
	if !ok {
		return
	}
	n := c.rec.Diagnostics().SamplesAccepted
	if n == c.accepted {
		return
	}
	c.accepted = n
	c.mu.Lock()
	c.items = append(c.items, se.Sample)
	c.mu.Unlock()
}

// Drain returns the collected samples and starts a new batch.
func (c *Recorder) Drain() []model.SensorSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := c.items
	c.items = nil
	return items
}
