package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/luifiio/bp4w-maq/internal/alert"
)

const (
	DefaultBackend           = "http://localhost:5000"
	DefaultPushPath          = "/ws"
	DefaultSeriesCapacity    = 100
	DefaultRenderFPS         = 10
	DefaultReconnectInterval = 2 * time.Second
	DefaultRequestTimeout    = 10 * time.Second
	DefaultLogLevel          = "info"

	DefaultSimListen         = ":5000"
	DefaultSampleRateHz      = 10
	DefaultRequestsPerSecond = 20
)

// Config holds both dashboard and simulator settings.
type Config struct {
	Dashboard *DashboardConfig `yaml:"dashboard,omitempty"`
	Simulator *SimulatorConfig `yaml:"simulator,omitempty"`
}

// DashboardConfig is used by the watch, ctl, status and capture commands.
type DashboardConfig struct {
	Backend           string        `yaml:"backend" validate:"required,url"`
	PushPath          string        `yaml:"push_path" validate:"required,startswith=/"`
	SeriesCapacity    int           `yaml:"series_capacity" validate:"gte=1,lte=100000"`
	RenderFPS         int           `yaml:"render_fps" validate:"gte=1,lte=60"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval" validate:"gt=0"`
	RequestTimeout    time.Duration `yaml:"request_timeout" validate:"gt=0"`
	MetricsListen     string        `yaml:"metrics_listen,omitempty" validate:"omitempty,hostname_port"`
	LogLevel          string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogJSON           bool          `yaml:"log_json,omitempty"`
	Thresholds        alert.Table   `yaml:"thresholds,omitempty"`
}

// SimulatorConfig is used by the backend simulator.
type SimulatorConfig struct {
	Listen            string  `yaml:"listen" validate:"required"`
	SampleRateHz      float64 `yaml:"sample_rate_hz" validate:"gt=0,lte=1000"`
	Seed              int64   `yaml:"seed,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gt=0"`
	LogLevel          string  `yaml:"log_level" validate:"oneof=debug info warn error"`
	// LogDir receives one CSV per logging session. Empty disables session files.
	LogDir            string  `yaml:"log_dir,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks field constraints and the threshold table.
func Validate(cfg Config) error {
	if cfg.Dashboard == nil && cfg.Simulator == nil {
		return fmt.Errorf("config must contain dashboard or simulator section")
	}
	if cfg.Dashboard != nil {
		if err := validate.Struct(cfg.Dashboard); err != nil {
			return fieldError("dashboard", err)
		}
		if err := cfg.Dashboard.Thresholds.Validate(); err != nil {
			return fmt.Errorf("dashboard.thresholds: %w", err)
		}
	}
	if cfg.Simulator != nil {
		if err := validate.Struct(cfg.Simulator); err != nil {
			return fieldError("simulator", err)
		}
	}
	return nil
}

func fieldError(section string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%s: %w", section, err)
	}
	fe := verrs[0]
	field := section + "." + fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "oneof":
		return fmt.Errorf("%s must be one of %s", field, fe.Param())
	default:
		if fe.Param() != "" {
			return fmt.Errorf("%s=%v fails %s=%s", field, fe.Value(), fe.Tag(), fe.Param())
		}
		return fmt.Errorf("%s=%v fails %s", field, fe.Value(), fe.Tag())
	}
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if d := cfg.Dashboard; d != nil {
		if d.Backend == "" {
			d.Backend = DefaultBackend
		}
		if d.PushPath == "" {
			d.PushPath = DefaultPushPath
		}
		if d.SeriesCapacity == 0 {
			d.SeriesCapacity = DefaultSeriesCapacity
		}
		if d.RenderFPS == 0 {
			d.RenderFPS = DefaultRenderFPS
		}
		if d.ReconnectInterval == 0 {
			d.ReconnectInterval = DefaultReconnectInterval
		}
		if d.RequestTimeout == 0 {
			d.RequestTimeout = DefaultRequestTimeout
		}
		if d.LogLevel == "" {
			d.LogLevel = DefaultLogLevel
		}
		// Configured entries replace the built-in ones per metric.
		table := alert.DefaultTable()
		for m, t := range d.Thresholds {
			table[m] = t
		}
		d.Thresholds = table
	}

	if s := cfg.Simulator; s != nil {
		if s.Listen == "" {
			s.Listen = DefaultSimListen
		}
		if s.SampleRateHz == 0 {
			s.SampleRateHz = DefaultSampleRateHz
		}
		if s.RequestsPerSecond == 0 {
			s.RequestsPerSecond = DefaultRequestsPerSecond
		}
		if s.LogLevel == "" {
			s.LogLevel = DefaultLogLevel
		}
	}
}

// DefaultDashboard returns a dashboard section with defaults applied, for
// commands run without a config file.
func DefaultDashboard() *DashboardConfig {
	cfg := Config{Dashboard: &DashboardConfig{}}
	ApplyDefaults(&cfg)
	return cfg.Dashboard
}

// DefaultSimulator returns a simulator section with defaults applied.
func DefaultSimulator() *SimulatorConfig {
	cfg := Config{Simulator: &SimulatorConfig{}}
	ApplyDefaults(&cfg)
	return cfg.Simulator
}
