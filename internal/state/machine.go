// Package state tracks the backend session status seen by the dashboard and
// the actions it currently permits.
package state

import (
	"errors"
	"fmt"

	"github.com/luifiio/bp4w-maq/internal/model"
)

// ErrIllegalTransition is returned when a command is not valid from the
// current status.
var ErrIllegalTransition = errors.New("illegal transition")

// Availability lists the actions the UI may offer. It is derived from a
// SystemStatus and never stored on its own.
type Availability struct {
	CanConnect       bool `json:"canConnect"`
	CanDisconnect    bool `json:"canDisconnect"`
	CanStart         bool `json:"canStart"`
	CanStop          bool `json:"canStop"`
	CanToggleLogging bool `json:"canToggleLogging"`
}

// Derive computes the availability for s.
func Derive(s model.SystemStatus) Availability {
	return Availability{
		CanConnect:       !s.Connected,
		CanDisconnect:    s.Connected,
		CanStart:         s.Connected && !s.Streaming,
		CanStop:          s.Streaming,
		CanToggleLogging: s.Connected,
	}
}

// Label is the short status text shown next to the connection indicator.
func Label(s model.SystemStatus) string {
	switch {
	case !s.Connected:
		return "Disconnected"
	case s.Streaming:
		return "Streaming"
	default:
		return "Connected"
	}
}

// Permits reports whether cmd may be issued from s. The returned error wraps
// ErrIllegalTransition and carries the reason shown to the user.
func Permits(s model.SystemStatus, cmd model.Command) error {
	var reason string
	switch cmd {
	case model.CommandConnect:
		if s.Connected {
			reason = "already connected"
		}
	case model.CommandDisconnect:
		if !s.Connected {
			reason = "not connected"
		}
	case model.CommandStart:
		if !s.Connected {
			reason = "not connected"
		} else if s.Streaming {
			reason = "already streaming"
		}
	case model.CommandStop:
		if !s.Streaming {
			reason = "not streaming"
		}
	case model.CommandLoggingStart:
		if !s.Connected {
			reason = "not connected"
		}
	case model.CommandLoggingStop:
		if !s.Connected {
			reason = "not connected"
		} else if !s.Logging {
			reason = "not logging"
		}
	default:
		reason = "unknown command"
	}
	if reason == "" {
		return nil
	}
	return fmt.Errorf("%w: %s: %s", ErrIllegalTransition, cmd, reason)
}

// Next returns the status after cmd succeeds from s.
func Next(s model.SystemStatus, cmd model.Command) (model.SystemStatus, error) {
	if err := Permits(s, cmd); err != nil {
		return s, err
	}
	switch cmd {
	case model.CommandConnect:
		s.Connected = true
		s.Streaming = false
	case model.CommandDisconnect:
		s = model.SystemStatus{}
	case model.CommandStart:
		s.Streaming = true
	case model.CommandStop:
		s.Streaming = false
	case model.CommandLoggingStart:
		s.Logging = true
	case model.CommandLoggingStop:
		s.Logging = false
	}
	return s, nil
}

// Machine holds the current status. The zero value is the initial,
// disconnected state.
type Machine struct {
	status model.SystemStatus
}

func NewMachine() *Machine {
	return &Machine{}
}

func (m *Machine) Status() model.SystemStatus { return m.status }

func (m *Machine) Availability() Availability { return Derive(m.status) }

// Apply performs the transition for a successful cmd. On error the status is
// left unchanged.
func (m *Machine) Apply(cmd model.Command) (model.SystemStatus, error) {
	next, err := Next(m.status, cmd)
	if err != nil {
		return m.status, err
	}
	m.status = next
	return next, nil
}

// Override replaces the status with an authoritative value from the
// backend, normalized so that streaming implies connected.
func (m *Machine) Override(s model.SystemStatus) model.SystemStatus {
	m.status = s.Normalize()
	return m.status
}
