package alert

import (
	"testing"

	"github.com/luifiio/bp4w-maq/internal/model"
)

func TestEvaluate_CoolantScenarios(t *testing.T) {
	t.Parallel()

	table := DefaultTable()
	cases := []struct {
		value float64
		want  Level
	}{
		{50, Normal},
		{89.9, Normal},
		{90, Warning},
		{99, Warning},
		{100, Danger},
		{101, Danger},
	}
	for _, tc := range cases {
		got, ok := table.Evaluate(model.CoolantTemp, tc.value)
		if !ok {
			t.Fatalf("coolant has no thresholds")
		}
		if got != tc.want {
			t.Fatalf("coolant=%v level=%s want=%s", tc.value, got, tc.want)
		}
	}
}

func TestEvaluate_Monotonic(t *testing.T) {
	t.Parallel()

	prev := Normal
	for v := -50.0; v <= 200; v += 0.25 {
		got := Evaluate(v, 110, 120)
		if got < prev {
			t.Fatalf("level decreased at %v: %s after %s", v, got, prev)
		}
		prev = got
	}
	if prev != Danger {
		t.Fatalf("final=%s", prev)
	}
}

func TestTable_UnevaluatedMetric(t *testing.T) {
	t.Parallel()

	if _, ok := DefaultTable().Evaluate(model.OilPressure, 1e6); ok {
		t.Fatalf("oil_pressure should be unevaluated")
	}
}

func TestTable_Validate(t *testing.T) {
	t.Parallel()

	if err := DefaultTable().Validate(); err != nil {
		t.Fatalf("default table: %v", err)
	}
	bad := Table{model.OilTemp: {Warning: 130, Danger: 120}}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for inverted thresholds")
	}
	unknown := Table{model.Metric("boost"): {Warning: 1, Danger: 2}}
	if err := unknown.Validate(); err == nil {
		t.Fatalf("expected error for unknown metric")
	}
}

func TestLevel_String(t *testing.T) {
	t.Parallel()

	if Normal.String() != "normal" || Warning.String() != "warning" || Danger.String() != "danger" {
		t.Fatalf("names=%s/%s/%s", Normal, Warning, Danger)
	}
}
