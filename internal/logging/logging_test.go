package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew_JSONRespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(&buf, "warn", true)
	logger.Info().Msg("hidden")
	logger.Warn().Str("metric", "coolant_temp").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line written at warn level: %s", out)
	}
	if !strings.Contains(out, `"metric":"coolant_temp"`) || !strings.Contains(out, `"message":"shown"`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestNew_BadLevelFallsBackToInfo(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(&buf, "loud", true)
	logger.Debug().Msg("debug")
	logger.Info().Msg("info")
	if out := buf.String(); strings.Contains(out, `"debug"`) || !strings.Contains(out, `"info"`) {
		t.Fatalf("unexpected output: %s", out)
	}
}
