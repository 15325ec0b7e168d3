package reconciler

import (
	"github.com/luifiio/bp4w-maq/internal/alert"
	"github.com/luifiio/bp4w-maq/internal/api"
	"github.com/luifiio/bp4w-maq/internal/model"
	"github.com/luifiio/bp4w-maq/internal/state"
)

// Event is one input to the reconciler: SampleEvent, StatusEvent,
// StreamConnected, CommandRequest or CommandResult.
type Event interface {
	isEvent()
}

// SampleEvent carries a pushed sensor sample. A non-nil Err marks a frame
// that could not be decoded; it is dropped and counted.
type SampleEvent struct {
	Sample model.SensorSample
	Err    error
}

// StatusEvent carries an authoritative status push. Seq is the backend's
// monotonic sequence number, or 0 when the backend does not send one.
type StatusEvent struct {
	Status model.SystemStatus
	Seq    uint64
}

// StreamConnected marks the start of a new push stream. Ordering of status
// sequence numbers and sample timestamps restarts from it.
type StreamConnected struct{}

// CommandRequest is a user action asking for a control command.
type CommandRequest struct {
	Command model.Command
	Params  api.Params
}

// CommandResult reports the outcome of a dispatched command.
type CommandResult struct {
	Ticket  Ticket
	Outcome api.Outcome
}

func (SampleEvent) isEvent()     {}
func (StatusEvent) isEvent()     {}
func (StreamConnected) isEvent() {}
func (CommandRequest) isEvent()  {}
func (CommandResult) isEvent()   {}

// Ticket identifies one dispatched command. Epoch is the number of status
// pushes applied when the command was issued.
type Ticket struct {
	ID      uint64
	Command model.Command
	Params  api.Params
	Epoch   uint64
}

// Instruction is one output for the rendering layer or the command
// dispatcher.
type Instruction interface {
	isInstruction()
}

// GaugeUpdate sets the displayed value of one metric. Level is only
// meaningful when Evaluated is true.
type GaugeUpdate struct {
	Metric    model.Metric `json:"metric"`
	Value     string       `json:"value"`
	Level     alert.Level  `json:"alertLevel"`
	Evaluated bool         `json:"evaluated"`
}

// ChartUpdate replaces the charted points of one metric.
type ChartUpdate struct {
	Metric model.Metric        `json:"metricName"`
	Points []model.SeriesPoint `json:"points"`
}

// StatusRefresh redraws the connection indicator and action buttons.
type StatusRefresh struct {
	Status       model.SystemStatus `json:"status"`
	Availability state.Availability `json:"availability"`
	Label        string             `json:"label"`
	Pending      []model.Command    `json:"pending,omitempty"`
}

// Severity classifies a log line.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// LogLine is a message for the user-facing activity log.
type LogLine struct {
	Timestamp string   `json:"timestamp"`
	Message   string   `json:"message"`
	Severity  Severity `json:"severity"`
}

// DispatchCommand asks the runtime to invoke the ticket's command and feed
// the result back as a CommandResult.
type DispatchCommand struct {
	Ticket Ticket
}

func (GaugeUpdate) isInstruction()     {}
func (ChartUpdate) isInstruction()     {}
func (StatusRefresh) isInstruction()   {}
func (LogLine) isInstruction()         {}
func (DispatchCommand) isInstruction() {}
