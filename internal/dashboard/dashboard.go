// Package dashboard runs the client: one event loop owns the reconciler while
// the push reader and command invocations feed it events.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/luifiio/bp4w-maq/internal/api"
	"github.com/luifiio/bp4w-maq/internal/model"
	"github.com/luifiio/bp4w-maq/internal/reconciler"
)

// Renderer consumes instructions. Flush redraws anything Render deferred.
type Renderer interface {
	Render([]reconciler.Instruction)
	Flush()
}

// Controller issues control commands against the backend.
type Controller interface {
	Invoke(ctx context.Context, cmd model.Command, params api.Params) api.Outcome
	Status(ctx context.Context) (model.SystemStatus, error)
}

// Source delivers pushed events until ctx is done.
type Source interface {
	Run(ctx context.Context, out chan<- reconciler.Event) error
}

// Tap observes every handled event together with the instructions it
// produced. It runs on the event loop and must not block.
type Tap func(ev reconciler.Event, out []reconciler.Instruction)

// Options wires a Dashboard. Reconciler, Control, Source and Renderer are
// required.
type Options struct {
	Reconciler *reconciler.Reconciler
	Control    Controller
	Source     Source
	Renderer   Renderer
	Logger     zerolog.Logger
	Tap        Tap

	// RenderInterval is how often deferred frames are flushed.
	RenderInterval time.Duration
	// MetricsListen serves /metrics and /snapshot when set.
	MetricsListen  string
	MetricsHandler http.Handler
}

type Dashboard struct {
	opts    Options
	events  chan reconciler.Event
	seed    chan model.SystemStatus
	queries chan func(*reconciler.Reconciler)
}

func New(opts Options) *Dashboard {
	if opts.RenderInterval <= 0 {
		opts.RenderInterval = 100 * time.Millisecond
	}
	return &Dashboard{
		opts:    opts,
		events:  make(chan reconciler.Event, 256),
		seed:    make(chan model.SystemStatus, 1),
		queries: make(chan func(*reconciler.Reconciler)),
	}
}

// Submit queues a user command. It blocks until the loop accepts it or ctx
// is done.
func (d *Dashboard) Submit(ctx context.Context, cmd model.Command, params api.Params) error {
	select {
	case d.events <- reconciler.CommandRequest{Command: cmd, Params: params}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot reads the reconciler state through the loop.
func (d *Dashboard) Snapshot(ctx context.Context) (reconciler.Snapshot, error) {
	reply := make(chan reconciler.Snapshot, 1)
	select {
	case d.queries <- func(r *reconciler.Reconciler) { reply <- r.Snapshot() }:
	case <-ctx.Done():
		return reconciler.Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return reconciler.Snapshot{}, ctx.Err()
	}
}

// Run blocks until ctx is cancelled or a component fails. Cancellation is a
// clean exit.
func (d *Dashboard) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.loop(gctx, g) })
	g.Go(func() error { return d.opts.Source.Run(gctx, d.events) })
	g.Go(func() error {
		d.seedStatus(gctx)
		return nil
	})
	if d.opts.MetricsListen != "" {
		g.Go(func() error { return d.serveMetrics(gctx) })
	}

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (d *Dashboard) loop(ctx context.Context, g *errgroup.Group) error {
	ticker := time.NewTicker(d.opts.RenderInterval)
	defer ticker.Stop()
	defer d.opts.Renderer.Flush()

	// The startup query is only useful until a push arrives or a command
	// is dispatched; either one is newer than the query's answer.
	seedStale := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-d.events:
			if _, ok := ev.(reconciler.StatusEvent); ok {
				seedStale = true
			}
			if d.apply(ctx, g, ev) {
				seedStale = true
			}
		case st := <-d.seed:
			if seedStale {
				d.opts.Logger.Debug().Msg("discarding startup status; newer state already applied")
				continue
			}
			seedStale = true
			d.apply(ctx, g, reconciler.StatusEvent{Status: st})
		case q := <-d.queries:
			q(d.opts.Reconciler)
		case <-ticker.C:
			d.opts.Renderer.Flush()
		}
	}
}

// apply handles ev and reports whether it dispatched a command.
func (d *Dashboard) apply(ctx context.Context, g *errgroup.Group, ev reconciler.Event) bool {
	dispatched := false
	out := d.opts.Reconciler.Handle(ev)
	if d.opts.Tap != nil {
		d.opts.Tap(ev, out)
	}
	for _, in := range out {
		switch in := in.(type) {
		case reconciler.DispatchCommand:
			dispatched = true
			ticket := in.Ticket
			g.Go(func() error {
				d.dispatch(ctx, ticket)
				return nil
			})
		case reconciler.LogLine:
			d.opts.Logger.Debug().Str("severity", string(in.Severity)).Msg(in.Message)
		}
	}
	d.opts.Renderer.Render(out)
	return dispatched
}

func (d *Dashboard) dispatch(ctx context.Context, t reconciler.Ticket) {
	outcome := d.opts.Control.Invoke(ctx, t.Command, t.Params)
	select {
	case d.events <- reconciler.CommandResult{Ticket: t, Outcome: outcome}:
	case <-ctx.Done():
	}
}

func (d *Dashboard) seedStatus(ctx context.Context) {
	status, err := d.opts.Control.Status(ctx)
	if err != nil {
		if ctx.Err() == nil {
			d.opts.Logger.Warn().Err(err).Msg("initial status fetch failed")
		}
		return
	}
	select {
	case d.seed <- status:
	case <-ctx.Done():
	}
}

func (d *Dashboard) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	if d.opts.MetricsHandler != nil {
		mux.Handle("/metrics", d.opts.MetricsHandler)
	}
	mux.HandleFunc("/snapshot", func(w http.ResponseWriter, r *http.Request) {
		snap, err := d.Snapshot(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snapshotView(snap))
	})

	server := &http.Server{
		Addr:              d.opts.MetricsListen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	d.opts.Logger.Info().Str("listen", d.opts.MetricsListen).Msg("diagnostics listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type seriesView struct {
	Len  int                `json:"len"`
	Last *model.SeriesPoint `json:"last,omitempty"`
}

func snapshotView(s reconciler.Snapshot) map[string]any {
	series := make(map[model.Metric]seriesView, len(s.Series))
	for m, pts := range s.Series {
		v := seriesView{Len: len(pts)}
		if len(pts) > 0 {
			last := pts[len(pts)-1]
			v.Last = &last
		}
		series[m] = v
	}
	return map[string]any{
		"status":       s.Status,
		"availability": s.Availability,
		"series":       series,
		"diagnostics":  s.Diagnostics,
	}
}
