package metrics

import (
	"math"
	"sort"

	"github.com/luifiio/bp4w-maq/internal/model"
)

// Summary is a basic statistics snapshot of one series.
type Summary struct {
	Count int
	From  float64
	To    float64
	Avg   float64
	P95   float64
	Min   float64
	Max   float64
	Last  float64
}

// Summarize computes summary statistics for points with X >= since.
func Summarize(points []model.SeriesPoint, since float64) Summary {
	filtered := make([]model.SeriesPoint, 0, len(points))
	for _, p := range points {
		if p.X >= since {
			filtered = append(filtered, p)
		}
	}

	if len(filtered) == 0 {
		return Summary{Count: 0}
	}

	values := make([]float64, 0, len(filtered))
	var sum float64
	minV := math.MaxFloat64
	maxV := -math.MaxFloat64
	from := filtered[0].X
	to := filtered[0].X

	for _, p := range filtered {
		values = append(values, p.Y)
		sum += p.Y
		if p.Y < minV {
			minV = p.Y
		}
		if p.Y > maxV {
			maxV = p.Y
		}
		if p.X < from {
			from = p.X
		}
		if p.X > to {
			to = p.X
		}
	}

	last := filtered[len(filtered)-1].Y
	sort.Float64s(values)

	return Summary{
		Count: len(filtered),
		From:  from,
		To:    to,
		Avg:   sum / float64(len(filtered)),
		P95:   percentile(values, 0.95),
		Min:   minV,
		Max:   maxV,
		Last:  last,
	}
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	idx := int(math.Ceil(p*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}
