package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/luifiio/bp4w-maq/internal/api"
	"github.com/luifiio/bp4w-maq/internal/config"
	"github.com/luifiio/bp4w-maq/internal/controller"
	"github.com/luifiio/bp4w-maq/internal/dashboard"
	"github.com/luifiio/bp4w-maq/internal/logging"
	"github.com/luifiio/bp4w-maq/internal/metrics"
	"github.com/luifiio/bp4w-maq/internal/model"
	"github.com/luifiio/bp4w-maq/internal/observability"
	"github.com/luifiio/bp4w-maq/internal/reconciler"
	"github.com/luifiio/bp4w-maq/internal/render"
	"github.com/luifiio/bp4w-maq/internal/state"
	"github.com/luifiio/bp4w-maq/internal/stream"
)

const usage = `telemdash - engine telemetry dashboard client

Usage:
  telemdash init --config <path>
  telemdash watch --config <path> [--backend URL] [--metrics-listen ADDR]
  telemdash simulate --config <path> [--listen ADDR] [--seed N] [--rate HZ] [--log-dir DIR]
  telemdash ctl <connect|disconnect|start|stop|log|unlog> --config <path> [--session NAME]
  telemdash status --config <path> [--backend URL]
  telemdash capture --config <path> --out <file> [--duration D] [--start]
  telemdash replay --in <file> [--config <path>] [--capacity N] [--since T]

watch reads commands from stdin: connect, disconnect, start, stop,
log [name], unlog, quit.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd := os.Args[1]
	switch cmd {
	case "-h", "--help", "help":
		fmt.Print(usage)
	case "init":
		handleInit(os.Args[2:])
	case "watch":
		handleWatch(os.Args[2:])
	case "simulate":
		handleSimulate(os.Args[2:])
	case "ctl":
		handleCtl(os.Args[2:])
	case "status":
		handleStatus(os.Args[2:])
	case "capture":
		handleCapture(os.Args[2:])
	case "replay":
		handleReplay(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func handleInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "", "path to write the YAML config")
	backend := fs.String("backend", "", "backend base URL")
	_ = fs.Parse(args)

	if *configPath == "" {
		fatal(errors.New("--config is required"))
	}
	if _, err := os.Stat(*configPath); err == nil {
		fatal(fmt.Errorf("%s already exists", *configPath))
	}

	cfg := config.Config{
		Dashboard: &config.DashboardConfig{},
		Simulator: &config.SimulatorConfig{},
	}
	if *backend != "" {
		cfg.Dashboard.Backend = normalizeBaseURL(*backend)
	}
	if err := config.Save(*configPath, cfg); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", *configPath)
}

func handleWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	backend := fs.String("backend", "", "backend base URL")
	metricsListen := fs.String("metrics-listen", "", "serve /metrics and /snapshot on this address")
	capacity := fs.Int("capacity", 0, "points kept per metric")
	logLevel := fs.String("log-level", "", "debug|info|warn|error")
	_ = fs.Parse(args)

	cfg := dashboardConfig(*configPath)
	overrideDashboard(cfg, *backend, *metricsListen, *logLevel, *capacity)
	validateDashboard(cfg)

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogJSON)
	obs := observability.NewPromObs()
	d := newDashboard(cfg, logger, newReconciler(cfg, obs), obs, obs.Handler(), render.NewTerminal(os.Stdout, cfg.RenderFPS), nil)

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		err := d.ReadCommands(ctx, os.Stdin, func(err error) {
			fmt.Fprintln(os.Stderr, err)
		})
		if errors.Is(err, dashboard.ErrQuit) {
			cancel()
			return
		}
		if err != nil && ctx.Err() == nil {
			logger.Warn().Err(err).Msg("stdin closed")
		}
	}()

	fatal(d.Run(ctx))
}

func handleSimulate(args []string) {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	listen := fs.String("listen", "", "listen address")
	seed := fs.Int64("seed", 0, "random seed (0 picks one)")
	rate := fs.Float64("rate", 0, "samples per second")
	logDir := fs.String("log-dir", "", "directory for logging session CSV files")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	if cfg.Simulator == nil {
		cfg.Simulator = &config.SimulatorConfig{}
	}
	overrideSimulator(cfg.Simulator, *listen, *seed, *rate, *logDir)
	config.ApplyDefaults(&cfg)
	if err := config.Validate(config.Config{Simulator: cfg.Simulator}); err != nil {
		fatal(err)
	}

	gin.SetMode(gin.ReleaseMode)
	logger := logging.New(os.Stderr, cfg.Simulator.LogLevel, false)
	srv := controller.NewServer(*cfg.Simulator, logger)

	ctx, cancel := signalContext()
	defer cancel()
	fatal(srv.ListenAndServe(ctx))
}

func handleCtl(args []string) {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, "ctl command required\n")
		os.Exit(2)
	}
	cmd, ok := model.ParseCommand(args[0])
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown ctl command %q\n", args[0])
		os.Exit(2)
	}

	fs := flag.NewFlagSet("ctl "+args[0], flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	backend := fs.String("backend", "", "backend base URL")
	session := fs.String("session", "", "logging session name")
	_ = fs.Parse(args[1:])

	cfg := dashboardConfig(*configPath)
	overrideDashboard(cfg, *backend, "", "", 0)
	validateDashboard(cfg)

	client := api.NewClient(cfg.Backend, cfg.RequestTimeout)
	out := client.Invoke(context.Background(), cmd, api.Params{SessionName: *session})
	if !out.Success {
		fatal(errors.New(out.Message))
	}
	msg := out.Message
	if msg == "" {
		msg = string(cmd) + " succeeded"
	}
	fmt.Fprintln(os.Stdout, msg)
}

func handleStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	backend := fs.String("backend", "", "backend base URL")
	_ = fs.Parse(args)

	cfg := dashboardConfig(*configPath)
	overrideDashboard(cfg, *backend, "", "", 0)
	validateDashboard(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	status, err := api.NewClient(cfg.Backend, cfg.RequestTimeout).Status(ctx)
	if err != nil {
		fatal(err)
	}
	status = status.Normalize()

	printJSON(os.Stdout, struct {
		Label        string             `json:"label"`
		Status       model.SystemStatus `json:"status"`
		Availability state.Availability `json:"availability"`
	}{state.Label(status), status, state.Derive(status)})
}

func handleCapture(args []string) {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	backend := fs.String("backend", "", "backend base URL")
	out := fs.String("out", "", "output CSV file")
	duration := fs.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
	autoStart := fs.Bool("start", false, "connect and start streaming before capturing")
	_ = fs.Parse(args)

	if *out == "" {
		fatal(errors.New("--out is required"))
	}
	cfg := dashboardConfig(*configPath)
	overrideDashboard(cfg, *backend, "", "", 0)
	validateDashboard(cfg)

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogJSON)
	rec := newReconciler(cfg, observability.Nop{})
	capture := dashboard.NewRecorder(rec)
	d := newDashboard(cfg, logger, rec, observability.Nop{}, nil, render.NewTerminal(io.Discard, cfg.RenderFPS), capture.Tap)

	ctx, cancel := signalContext()
	defer cancel()
	if *duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, *duration)
		defer stop()
	}

	if *autoStart {
		go func() {
			if err := connectAndStart(ctx, d); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("auto start failed")
				cancel()
			}
		}()
	}

	if err := d.Run(ctx); err != nil {
		fatal(err)
	}
	items := capture.Drain()
	if err := metrics.AppendCSV(*out, items); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "captured %d samples to %s\n", len(items), *out)
}

func handleReplay(args []string) {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config (thresholds)")
	in := fs.String("in", "", "CSV recording")
	capacity := fs.Int("capacity", 0, "points kept per metric")
	since := fs.Float64("since", math.Inf(-1), "only summarize samples with timestamp >= since")
	_ = fs.Parse(args)

	if *in == "" {
		fatal(errors.New("--in is required"))
	}
	cfg := dashboardConfig(*configPath)
	overrideDashboard(cfg, "", "", "", *capacity)
	validateDashboard(cfg)

	items, err := metrics.ReadCSV(*in)
	if err != nil {
		fatal(err)
	}
	report := dashboard.Replay(items, reconciler.Options{Capacity: cfg.SeriesCapacity, Thresholds: cfg.Thresholds}, *since)

	for _, m := range report.Metrics {
		if m.Summary.Count == 0 {
			fmt.Fprintf(os.Stdout, "%s: no samples\n", m.Metric)
			continue
		}
		level := "-"
		if m.Evaluated {
			level = m.Level.String()
		}
		prec := m.Metric.Decimals()
		fmt.Fprintf(os.Stdout, "%s: samples=%d retained=%d from=%.1f to=%.1f\n", m.Metric, m.Summary.Count, m.Retained, m.Summary.From, m.Summary.To)
		fmt.Fprintf(os.Stdout, "  avg=%.*f p95=%.*f min=%.*f max=%.*f last=%.*f level=%s\n",
			prec, m.Summary.Avg, prec, m.Summary.P95, prec, m.Summary.Min, prec, m.Summary.Max, prec, m.Summary.Last, level)
	}
	diag := report.Diagnostics
	fmt.Fprintf(os.Stdout, "accepted=%d stale=%d malformed=%d\n", diag.SamplesAccepted, diag.SamplesStale, diag.SamplesMalformed)
}

func newReconciler(cfg *config.DashboardConfig, obs reconciler.Observer) *reconciler.Reconciler {
	return reconciler.New(reconciler.Options{
		Capacity:   cfg.SeriesCapacity,
		Thresholds: cfg.Thresholds,
		Observer:   obs,
	})
}

func newDashboard(cfg *config.DashboardConfig, logger zerolog.Logger, rec *reconciler.Reconciler, obs reconciler.Observer, metricsHandler http.Handler, r dashboard.Renderer, tap dashboard.Tap) *dashboard.Dashboard {
	pushURL, err := stream.PushURL(cfg.Backend, cfg.PushPath)
	if err != nil {
		fatal(err)
	}

	opts := dashboard.Options{
		Reconciler: rec,
		Control: api.NewClient(cfg.Backend, cfg.RequestTimeout),
		Source: stream.NewReader(stream.Options{
			URL:               pushURL,
			ReconnectInterval: cfg.ReconnectInterval,
			Observer:          obs,
			Logger:            logger,
		}),
		Renderer:       r,
		Logger:         logger,
		Tap:            tap,
		RenderInterval: time.Second / time.Duration(cfg.RenderFPS),
		MetricsListen:  cfg.MetricsListen,
		MetricsHandler: metricsHandler,
	}
	return dashboard.New(opts)
}

// connectAndStart walks the state machine to streaming, waiting for each
// step to be confirmed.
func connectAndStart(ctx context.Context, d *dashboard.Dashboard) error {
	steps := []struct {
		cmd  model.Command
		done func(model.SystemStatus) bool
	}{
		{model.CommandConnect, func(s model.SystemStatus) bool { return s.Connected }},
		{model.CommandStart, func(s model.SystemStatus) bool { return s.Streaming }},
	}
	for _, step := range steps {
		snap, err := d.Snapshot(ctx)
		if err != nil {
			return err
		}
		if step.done(snap.Status) {
			continue
		}
		if err := d.Submit(ctx, step.cmd, api.Params{}); err != nil {
			return err
		}
		if err := waitStatus(ctx, d, step.done); err != nil {
			return fmt.Errorf("%s: %w", step.cmd, err)
		}
	}
	return nil
}

func waitStatus(ctx context.Context, d *dashboard.Dashboard, done func(model.SystemStatus) bool) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(10 * time.Second)
	for {
		snap, err := d.Snapshot(ctx)
		if err != nil {
			return err
		}
		if done(snap.Status) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return errors.New("timed out waiting for backend")
		case <-ticker.C:
		}
	}
}

func dashboardConfig(path string) *config.DashboardConfig {
	cfg, err := loadConfig(path)
	if err != nil {
		fatal(err)
	}
	if cfg.Dashboard == nil {
		return config.DefaultDashboard()
	}
	return cfg.Dashboard
}

func validateDashboard(cfg *config.DashboardConfig) {
	if err := config.Validate(config.Config{Dashboard: cfg}); err != nil {
		fatal(err)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Config{}, nil
	}
	return config.Load(path)
}

func overrideDashboard(cfg *config.DashboardConfig, backend, metricsListen, logLevel string, capacity int) {
	if backend != "" {
		cfg.Backend = normalizeBaseURL(backend)
	}
	if metricsListen != "" {
		cfg.MetricsListen = metricsListen
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if capacity > 0 {
		cfg.SeriesCapacity = capacity
	}
}

func overrideSimulator(cfg *config.SimulatorConfig, listen string, seed int64, rate float64, logDir string) {
	if listen != "" {
		cfg.Listen = listen
	}
	if seed != 0 {
		cfg.Seed = seed
	}
	if rate > 0 {
		cfg.SampleRateHz = rate
	}
	if logDir != "" {
		cfg.LogDir = logDir
	}
}

func normalizeBaseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()
	return ctx, cancel
}

func fatal(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
