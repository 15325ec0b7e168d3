package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/luifiio/bp4w-maq/internal/alert"
	"github.com/luifiio/bp4w-maq/internal/model"
)

func TestApplyDefaults_Dashboard(t *testing.T) {
	t.Parallel()

	cfg := Config{Dashboard: &DashboardConfig{}}
	ApplyDefaults(&cfg)

	d := cfg.Dashboard
	if d.Backend != DefaultBackend || d.PushPath != DefaultPushPath {
		t.Fatalf("endpoint defaults not set: %+v", d)
	}
	if d.SeriesCapacity != 100 || d.RenderFPS != 10 {
		t.Fatalf("capacity=%d fps=%d", d.SeriesCapacity, d.RenderFPS)
	}
	if d.ReconnectInterval != 2*time.Second || d.RequestTimeout != 10*time.Second {
		t.Fatalf("reconnect=%s timeout=%s", d.ReconnectInterval, d.RequestTimeout)
	}
	if d.Thresholds[model.CoolantTemp] != (alert.Thresholds{Warning: 90, Danger: 100}) {
		t.Fatalf("thresholds=%+v", d.Thresholds)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoad_MergesThresholdsAndParsesDurations(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dash.yaml")
	body := `dashboard:
  backend: http://car.local:5000
  reconnect_interval: 500ms
  thresholds:
    coolant_temp: {warning: 85, danger: 95}
    oil_pressure: {warning: 5, danger: 6}
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d := cfg.Dashboard
	if d.ReconnectInterval != 500*time.Millisecond {
		t.Fatalf("reconnect=%s", d.ReconnectInterval)
	}
	if d.Thresholds[model.CoolantTemp].Danger != 95 {
		t.Fatalf("coolant override lost: %+v", d.Thresholds)
	}
	if d.Thresholds[model.OilTemp].Danger != 120 {
		t.Fatalf("oil_temp default lost: %+v", d.Thresholds)
	}
	if _, ok := d.Thresholds[model.OilPressure]; !ok {
		t.Fatalf("oil_pressure entry missing")
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	if err := Validate(Config{}); err == nil {
		t.Fatalf("expected error for empty config")
	}

	cfg := Config{Dashboard: &DashboardConfig{Backend: "not a url"}}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "dashboard.backend") {
		t.Fatalf("err=%v", err)
	}

	cfg = Config{Dashboard: &DashboardConfig{LogLevel: "loud"}}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "dashboard.log_level must be one of") {
		t.Fatalf("err=%v", err)
	}

	cfg = Config{Dashboard: &DashboardConfig{Thresholds: alert.Table{model.OilTemp: {Warning: 130, Danger: 120}}}}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "thresholds") {
		t.Fatalf("err=%v", err)
	}

	cfg = Config{Dashboard: &DashboardConfig{Thresholds: alert.Table{"boost": {Warning: 1, Danger: 2}}}}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err == nil {
		t.Fatalf("unknown metric accepted")
	}

	cfg = Config{Simulator: &SimulatorConfig{SampleRateHz: -1}}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "simulator.sample_rate_hz") {
		t.Fatalf("err=%v", err)
	}
}

func TestSave_Writes0600AndRoundTrips(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "telemdash.yaml")
	cfg := Config{
		Dashboard: &DashboardConfig{Backend: "http://10.0.0.5:5000", RequestTimeout: 3 * time.Second},
		Simulator: &SimulatorConfig{Seed: 7},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode=%o", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Dashboard.RequestTimeout != 3*time.Second || loaded.Dashboard.Backend != "http://10.0.0.5:5000" {
		t.Fatalf("dashboard=%+v", loaded.Dashboard)
	}
	if loaded.Simulator.Seed != 7 || loaded.Simulator.Listen != DefaultSimListen {
		t.Fatalf("simulator=%+v", loaded.Simulator)
	}
}
