// Package render draws reconciler instructions to a terminal.
package render

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
	"golang.org/x/time/rate"

	"github.com/luifiio/bp4w-maq/internal/alert"
	"github.com/luifiio/bp4w-maq/internal/model"
	"github.com/luifiio/bp4w-maq/internal/reconciler"
)

const (
	DefaultFPS = 10
	sparkWidth = 40
	labelWidth = 10
	valueWidth = 7
	levelWidth = 8
	sparkRunes = "▁▂▃▄▅▆▇█"
)

var (
	labels = map[model.Metric]string{
		model.CoolantTemp:      "Coolant",
		model.OilTemp:          "Oil temp",
		model.OilPressure:      "Oil press",
		model.ThrottlePosition: "Throttle",
	}
	units = map[model.Metric]string{
		model.CoolantTemp:      "°C",
		model.OilTemp:          "°C",
		model.OilPressure:      "PSI",
		model.ThrottlePosition: "%",
	}
)

type palette struct {
	normal, warning, danger lipgloss.Style
	muted, header           lipgloss.Style
	success, failure        lipgloss.Style
}

func newPalette(r *lipgloss.Renderer) palette {
	return palette{
		normal:  r.NewStyle().Foreground(lipgloss.Color("#50E3C2")),
		warning: r.NewStyle().Foreground(lipgloss.Color("#F6AE2D")).Bold(true),
		danger:  r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#8CA1AE")),
		header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#05090C")).Background(lipgloss.Color("#2D6A80")).Padding(0, 1),
		success: r.NewStyle().Foreground(lipgloss.Color("#50E3C2")),
		failure: r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
	}
}

// Terminal writes status and log lines as they arrive and redraws the gauge
// panel at most FPS times per second. On a terminal the panel stays below
// the scrolling lines and is redrawn in place; other writers get each frame
// appended. It must be driven from one goroutine.
type Terminal struct {
	w       io.Writer
	style   palette
	limiter *rate.Limiter

	gauges map[model.Metric]reconciler.GaugeUpdate
	charts map[model.Metric][]model.SeriesPoint
	dirty  bool

	inPlace bool
	drawn   int // lines of the panel last drawn in place
}

// NewTerminal renders to w. Color and in-place redraw are used only when w
// is a terminal.
func NewTerminal(w io.Writer, fps int) *Terminal {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Terminal{
		w:       w,
		style:   newPalette(lipgloss.NewRenderer(w)),
		limiter: rate.NewLimiter(rate.Limit(fps), 1),
		gauges:  make(map[model.Metric]reconciler.GaugeUpdate),
		charts:  make(map[model.Metric][]model.SeriesPoint),
		inPlace: isTerminal(w),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Render applies a batch of instructions.
func (t *Terminal) Render(batch []reconciler.Instruction) {
	for _, in := range batch {
		switch in := in.(type) {
		case reconciler.GaugeUpdate:
			t.gauges[in.Metric] = in
			t.dirty = true
		case reconciler.ChartUpdate:
			t.charts[in.Metric] = in.Points
			t.dirty = true
		case reconciler.StatusRefresh:
			t.erasePanel()
			fmt.Fprintln(t.w, t.statusLine(in))
		case reconciler.LogLine:
			t.erasePanel()
			fmt.Fprintln(t.w, t.logLine(in))
		}
	}
	if t.dirty && t.limiter.Allow() {
		t.Flush()
	}
}

// Flush draws the gauge panel if it changed since the last draw.
func (t *Terminal) Flush() {
	if !t.dirty {
		return
	}
	t.erasePanel()
	t.dirty = false
	panel := t.panel()
	fmt.Fprint(t.w, panel)
	if t.inPlace {
		t.drawn = strings.Count(panel, "\n")
	}
}

// erasePanel moves the cursor back over the last drawn panel and clears it,
// so the next line or frame takes its place.
func (t *Terminal) erasePanel() {
	if t.drawn == 0 {
		return
	}
	fmt.Fprintf(t.w, "\x1b[%dA\x1b[J", t.drawn)
	t.drawn = 0
	t.dirty = true
}

func (t *Terminal) panel() string {
	var b strings.Builder
	for _, m := range model.Metrics {
		g, ok := t.gauges[m]
		if !ok {
			continue
		}
		style := t.style.normal
		level := ""
		if g.Evaluated {
			level = g.Level.String()
			switch g.Level {
			case alert.Warning:
				style = t.style.warning
			case alert.Danger:
				style = t.style.danger
			}
		}
		fmt.Fprintf(&b, "%-*s %s %-4s %s %s\n",
			labelWidth, labels[m],
			style.Render(fmt.Sprintf("%*s", valueWidth, g.Value)),
			units[m],
			style.Render(fmt.Sprintf("%-*s", levelWidth, level)),
			t.style.muted.Render(Sparkline(t.charts[m], sparkWidth)),
		)
	}
	return b.String()
}

func (t *Terminal) statusLine(s reconciler.StatusRefresh) string {
	var actions []string
	a := s.Availability
	for _, opt := range []struct {
		ok   bool
		name string
	}{
		{a.CanConnect, "connect"},
		{a.CanDisconnect, "disconnect"},
		{a.CanStart, "start"},
		{a.CanStop, "stop"},
		{a.CanToggleLogging && !s.Status.Logging, "log"},
		{a.CanToggleLogging && s.Status.Logging, "unlog"},
	} {
		if opt.ok {
			actions = append(actions, opt.name)
		}
	}
	line := t.style.header.Render(s.Label)
	if s.Status.Logging {
		line += " " + t.style.warning.Render("REC")
	}
	line += " " + t.style.muted.Render("actions: "+strings.Join(actions, " "))
	if len(s.Pending) > 0 {
		pending := make([]string, len(s.Pending))
		for i, p := range s.Pending {
			pending[i] = string(p)
		}
		line += " " + t.style.muted.Render("pending: "+strings.Join(pending, " "))
	}
	return line
}

func (t *Terminal) logLine(l reconciler.LogLine) string {
	msg := l.Message
	switch l.Severity {
	case reconciler.SeveritySuccess:
		msg = t.style.success.Render(msg)
	case reconciler.SeverityWarning:
		msg = t.style.warning.Render(msg)
	case reconciler.SeverityError:
		msg = t.style.failure.Render(msg)
	}
	return t.style.muted.Render("["+l.Timestamp+"]") + " " + msg
}

// Sparkline draws the last width points as block characters scaled between
// their minimum and maximum.
func Sparkline(points []model.SeriesPoint, width int) string {
	if len(points) == 0 || width <= 0 {
		return ""
	}
	if len(points) > width {
		points = points[len(points)-width:]
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		lo = math.Min(lo, p.Y)
		hi = math.Max(hi, p.Y)
	}
	runes := []rune(sparkRunes)
	var b strings.Builder
	for _, p := range points {
		idx := 0
		if hi > lo {
			idx = int(math.Round((p.Y - lo) / (hi - lo) * float64(len(runes)-1)))
		}
		b.WriteRune(runes[idx])
	}
	return b.String()
}
