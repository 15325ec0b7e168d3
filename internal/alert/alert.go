// Package alert maps sensor readings to alert levels.
package alert

import (
	"fmt"

	"github.com/luifiio/bp4w-maq/internal/model"
)

// Level is an alert severity. Levels are ordered Normal < Warning < Danger.
type Level int

const (
	Normal Level = iota
	Warning
	Danger
)

func (l Level) String() string {
	switch l {
	case Warning:
		return "warning"
	case Danger:
		return "danger"
	default:
		return "normal"
	}
}

// MarshalText lets levels appear by name in JSON and YAML output.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Evaluate returns Danger if value >= danger, Warning if value >= warning,
// otherwise Normal.
func Evaluate(value, warning, danger float64) Level {
	if value >= danger {
		return Danger
	}
	if value >= warning {
		return Warning
	}
	return Normal
}

// Thresholds is the warning/danger pair for one metric.
type Thresholds struct {
	Warning float64 `yaml:"warning" json:"warning"`
	Danger  float64 `yaml:"danger" json:"danger"`
}

// Validate checks warning <= danger.
func (t Thresholds) Validate() error {
	if t.Warning > t.Danger {
		return fmt.Errorf("warning threshold %.2f above danger threshold %.2f", t.Warning, t.Danger)
	}
	return nil
}

// Table maps metrics to thresholds. Metrics without an entry are not
// evaluated.
type Table map[model.Metric]Thresholds

// DefaultTable returns the stock engine thresholds in degrees Celsius.
func DefaultTable() Table {
	return Table{
		model.CoolantTemp: {Warning: 90, Danger: 100},
		model.OilTemp:     {Warning: 110, Danger: 120},
	}
}

// Evaluate returns the level for m and whether m has thresholds at all.
func (t Table) Evaluate(m model.Metric, value float64) (Level, bool) {
	th, ok := t[m]
	if !ok {
		return Normal, false
	}
	return Evaluate(value, th.Warning, th.Danger), true
}

// Validate checks every entry.
func (t Table) Validate() error {
	for m, th := range t {
		if !m.Valid() {
			return fmt.Errorf("unknown metric %q", m)
		}
		if err := th.Validate(); err != nil {
			return fmt.Errorf("%s: %w", m, err)
		}
	}
	return nil
}
