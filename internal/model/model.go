package model

import "math"

// Metric identifies one sensor channel in the feed.
type Metric string

const (
	CoolantTemp      Metric = "coolant_temp"
	OilTemp          Metric = "oil_temp"
	OilPressure      Metric = "oil_pressure"
	ThrottlePosition Metric = "throttle_position"
)

// Metrics lists the known channels in display order.
var Metrics = []Metric{CoolantTemp, OilTemp, OilPressure, ThrottlePosition}

// Valid reports whether m is one of the known channels.
func (m Metric) Valid() bool {
	switch m {
	case CoolantTemp, OilTemp, OilPressure, ThrottlePosition:
		return true
	}
	return false
}

// Decimals is the display precision for the channel.
func (m Metric) Decimals() int {
	if m == ThrottlePosition {
		return 0
	}
	return 1
}

// SensorSample is one timestamped reading batch. A nil field means the
// sample carries no new reading for that channel.
type SensorSample struct {
	Timestamp        float64  `json:"timestamp"`
	CoolantTemp      *float64 `json:"coolant_temp"`
	OilTemp          *float64 `json:"oil_temp"`
	OilPressure      *float64 `json:"oil_pressure"`
	ThrottlePosition *float64 `json:"throttle_position"`
}

// Value returns the reading for m, if present.
func (s SensorSample) Value(m Metric) (float64, bool) {
	var p *float64
	switch m {
	case CoolantTemp:
		p = s.CoolantTemp
	case OilTemp:
		p = s.OilTemp
	case OilPressure:
		p = s.OilPressure
	case ThrottlePosition:
		p = s.ThrottlePosition
	}
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return 0, false
	}
	return *p, true
}

// Set stores a reading for m. Unknown channels are ignored.
func (s *SensorSample) Set(m Metric, v float64) {
	switch m {
	case CoolantTemp:
		s.CoolantTemp = &v
	case OilTemp:
		s.OilTemp = &v
	case OilPressure:
		s.OilPressure = &v
	case ThrottlePosition:
		s.ThrottlePosition = &v
	}
}

// SeriesPoint is one charted (time, value) pair.
type SeriesPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SystemStatus is the backend session state. Streaming implies Connected.
type SystemStatus struct {
	Connected bool `json:"connected"`
	Streaming bool `json:"streaming"`
	Logging   bool `json:"logging"`
}

// Normalize forces the streaming => connected invariant.
func (s SystemStatus) Normalize() SystemStatus {
	if !s.Connected {
		s.Streaming = false
	}
	return s
}

// Float returns a pointer to v, for building samples.
func Float(v float64) *float64 {
	return &v
}

// Command is a control action against the backend.
type Command string

const (
	CommandConnect      Command = "connect"
	CommandDisconnect   Command = "disconnect"
	CommandStart        Command = "start"
	CommandStop         Command = "stop"
	CommandLoggingStart Command = "logging-start"
	CommandLoggingStop  Command = "logging-stop"
)

// Commands lists every control action.
var Commands = []Command{
	CommandConnect,
	CommandDisconnect,
	CommandStart,
	CommandStop,
	CommandLoggingStart,
	CommandLoggingStop,
}

// ParseCommand accepts the canonical names plus the short forms used on the
// command line.
func ParseCommand(s string) (Command, bool) {
	switch s {
	case "connect":
		return CommandConnect, true
	case "disconnect":
		return CommandDisconnect, true
	case "start":
		return CommandStart, true
	case "stop":
		return CommandStop, true
	case "logging-start", "log", "log-start":
		return CommandLoggingStart, true
	case "logging-stop", "unlog", "log-stop":
		return CommandLoggingStop, true
	}
	return "", false
}
