// Package reconciler merges pushed backend events and command results into
// the dashboard's single copy of status and series history.
//
// A Reconciler is not safe for concurrent use. The runtime feeds it from one
// event loop, so every event is applied completely before the next starts.
package reconciler

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/luifiio/bp4w-maq/internal/alert"
	"github.com/luifiio/bp4w-maq/internal/api"
	"github.com/luifiio/bp4w-maq/internal/metrics"
	"github.com/luifiio/bp4w-maq/internal/model"
	"github.com/luifiio/bp4w-maq/internal/observability"
	"github.com/luifiio/bp4w-maq/internal/state"
)

// Observer receives diagnostic counter updates.
type Observer interface {
	IncCounter(name string, v float64)
}

// Options configures a Reconciler. Zero values select the defaults.
type Options struct {
	Capacity   int
	Thresholds alert.Table
	Observer   Observer
	Now        func() time.Time
}

// Diagnostics counts events that were dropped or refused.
type Diagnostics struct {
	SamplesAccepted  uint64 `json:"samples_accepted"`
	SamplesMalformed uint64 `json:"samples_malformed"`
	SamplesStale     uint64 `json:"samples_stale"`
	StatusPushes     uint64 `json:"status_pushes"`
	StatusStale      uint64 `json:"status_stale"`
	CommandsFailed   uint64 `json:"commands_failed"`
	CommandsRejected uint64 `json:"commands_rejected"`
	StreamResets     uint64 `json:"stream_resets"`
}

// Snapshot is a read-only copy of the reconciler state.
type Snapshot struct {
	Status       model.SystemStatus
	Availability state.Availability
	Series       map[model.Metric][]model.SeriesPoint
	Diagnostics  Diagnostics
}

type Reconciler struct {
	machine    *state.Machine
	series     map[model.Metric]*metrics.Series
	thresholds alert.Table
	obs        Observer
	now        func() time.Time

	lastTimestamp float64
	haveTimestamp bool

	lastSeq    uint64
	epoch      uint64
	nextTicket uint64
	pending    map[model.Command]Ticket

	diag Diagnostics
}

func New(opts Options) *Reconciler {
	if opts.Thresholds == nil {
		opts.Thresholds = alert.DefaultTable()
	}
	if opts.Observer == nil {
		opts.Observer = observability.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	series := make(map[model.Metric]*metrics.Series, len(model.Metrics))
	for _, m := range model.Metrics {
		series[m] = metrics.NewSeries(opts.Capacity)
	}
	return &Reconciler{
		machine:    state.NewMachine(),
		series:     series,
		thresholds: opts.Thresholds,
		obs:        opts.Observer,
		now:        opts.Now,
		pending:    make(map[model.Command]Ticket),
	}
}

// Handle applies one event and returns the instructions it produced.
func (r *Reconciler) Handle(ev Event) []Instruction {
	switch ev := ev.(type) {
	case SampleEvent:
		return r.handleSample(ev)
	case StatusEvent:
		return r.handleStatus(ev)
	case CommandRequest:
		return r.handleRequest(ev)
	case CommandResult:
		return r.handleResult(ev)
	case StreamConnected:
		return r.handleStreamConnected()
	default:
		return nil
	}
}

func (r *Reconciler) handleSample(ev SampleEvent) []Instruction {
	ts := ev.Sample.Timestamp
	if ev.Err != nil || math.IsNaN(ts) || math.IsInf(ts, 0) {
		r.count(&r.diag.SamplesMalformed, observability.SamplesMalformed)
		return nil
	}
	if r.haveTimestamp && ts <= r.lastTimestamp {
		r.count(&r.diag.SamplesStale, observability.SamplesStale)
		return nil
	}
	r.lastTimestamp = ts
	r.haveTimestamp = true
	r.count(&r.diag.SamplesAccepted, observability.SamplesAccepted)

	var out []Instruction
	for _, m := range model.Metrics {
		v, ok := ev.Sample.Value(m)
		if !ok {
			continue
		}
		s := r.series[m]
		s.Append(ts, v)
		level, evaluated := r.thresholds.Evaluate(m, v)
		out = append(out,
			GaugeUpdate{
				Metric:    m,
				Value:     formatValue(v, m.Decimals()),
				Level:     level,
				Evaluated: evaluated,
			},
			ChartUpdate{Metric: m, Points: s.Snapshot()},
		)
	}
	return out
}

func (r *Reconciler) handleStatus(ev StatusEvent) []Instruction {
	if ev.Seq != 0 {
		if ev.Seq < r.lastSeq {
			r.count(&r.diag.StatusStale, observability.StatusStale)
			return nil
		}
		r.lastSeq = ev.Seq
	}
	r.machine.Override(ev.Status)
	r.epoch++
	r.count(&r.diag.StatusPushes, observability.StatusPushes)
	return []Instruction{r.refresh()}
}

// A new push stream may come from a restarted backend whose sequence
// numbers and sample clock start over. Series history is kept.
func (r *Reconciler) handleStreamConnected() []Instruction {
	r.lastSeq = 0
	r.haveTimestamp = false
	r.lastTimestamp = 0
	r.count(&r.diag.StreamResets, observability.StreamResets)
	return nil
}

func (r *Reconciler) handleRequest(ev CommandRequest) []Instruction {
	if _, busy := r.pending[ev.Command]; busy {
		r.count(&r.diag.CommandsRejected, observability.CommandsRejected)
		return []Instruction{r.logf(SeverityWarning, "%s already in progress", ev.Command)}
	}
	if err := state.Permits(r.machine.Status(), ev.Command); err != nil {
		r.count(&r.diag.CommandsRejected, observability.CommandsRejected)
		return []Instruction{r.logf(SeverityError, "%v", err)}
	}

	r.nextTicket++
	ticket := Ticket{
		ID:      r.nextTicket,
		Command: ev.Command,
		Params:  ev.Params,
		Epoch:   r.epoch,
	}
	r.pending[ev.Command] = ticket
	return []Instruction{
		r.logf(SeverityInfo, "%s", progressMessage(ev.Command)),
		r.refresh(),
		DispatchCommand{Ticket: ticket},
	}
}

func (r *Reconciler) handleResult(ev CommandResult) []Instruction {
	cmd := ev.Ticket.Command
	current, ok := r.pending[cmd]
	if !ok || current.ID != ev.Ticket.ID {
		return []Instruction{r.logf(SeverityWarning, "ignoring result for unknown %s request", cmd)}
	}
	delete(r.pending, cmd)

	if !ev.Outcome.Success {
		r.count(&r.diag.CommandsFailed, observability.CommandsFailed)
		msg := ev.Outcome.Message
		if msg == "" {
			msg = fmt.Sprintf("%s failed", cmd)
		}
		return []Instruction{r.logf(SeverityError, "%s", msg), r.refresh()}
	}

	// A push applied after the command was issued is newer than the
	// command's view of the backend.
	if ev.Ticket.Epoch != r.epoch {
		return []Instruction{
			r.logf(SeverityInfo, "%s succeeded; keeping newer backend status", cmd),
			r.refresh(),
		}
	}

	if _, err := r.machine.Apply(cmd); err != nil {
		r.count(&r.diag.CommandsFailed, observability.CommandsFailed)
		return []Instruction{r.logf(SeverityError, "%v", err), r.refresh()}
	}
	return []Instruction{
		r.logf(SeveritySuccess, "%s", successMessage(ev.Ticket, ev.Outcome.Message)),
		r.refresh(),
	}
}

// Status returns the current status.
func (r *Reconciler) Status() model.SystemStatus {
	return r.machine.Status()
}

// Diagnostics returns the drop and rejection counters.
func (r *Reconciler) Diagnostics() Diagnostics {
	return r.diag
}

// Snapshot copies the current state for readers outside the event loop.
func (r *Reconciler) Snapshot() Snapshot {
	series := make(map[model.Metric][]model.SeriesPoint, len(r.series))
	for m, s := range r.series {
		series[m] = s.Snapshot()
	}
	return Snapshot{
		Status:       r.machine.Status(),
		Availability: r.machine.Availability(),
		Series:       series,
		Diagnostics:  r.diag,
	}
}

func (r *Reconciler) refresh() StatusRefresh {
	status := r.machine.Status()
	var pending []model.Command
	for _, cmd := range model.Commands {
		if _, ok := r.pending[cmd]; ok {
			pending = append(pending, cmd)
		}
	}
	return StatusRefresh{
		Status:       status,
		Availability: state.Derive(status),
		Label:        state.Label(status),
		Pending:      pending,
	}
}

func (r *Reconciler) logf(sev Severity, format string, args ...any) LogLine {
	return LogLine{
		Timestamp: r.now().Format(time.TimeOnly),
		Message:   fmt.Sprintf(format, args...),
		Severity:  sev,
	}
}

func (r *Reconciler) count(field *uint64, name string) {
	*field++
	r.obs.IncCounter(name, 1)
}

// formatValue rounds halves away from zero, so 42.5 with no decimals reads
// "43".
func formatValue(v float64, decimals int) string {
	p := math.Pow10(decimals)
	return strconv.FormatFloat(math.Round(v*p)/p, 'f', decimals, 64)
}

func progressMessage(cmd model.Command) string {
	switch cmd {
	case model.CommandConnect:
		return "Connecting to backend..."
	case model.CommandDisconnect:
		return "Disconnecting..."
	case model.CommandStart:
		return "Starting data acquisition..."
	case model.CommandStop:
		return "Stopping data acquisition..."
	case model.CommandLoggingStart:
		return "Starting logging..."
	case model.CommandLoggingStop:
		return "Stopping logging..."
	}
	return string(cmd) + "..."
}

func successMessage(t Ticket, backendMsg string) string {
	if t.Command == model.CommandLoggingStart {
		name := strings.TrimSpace(t.Params.SessionName)
		if name == "" {
			name = api.DefaultSessionName
		}
		return "Logging started: " + name
	}
	if backendMsg != "" {
		return backendMsg
	}
	return string(t.Command) + " succeeded"
}
