package metrics

import (
	"math"

	"github.com/luifiio/bp4w-maq/internal/model"
)

// DefaultCapacity is the number of points kept per series.
const DefaultCapacity = 100

// Series is a fixed-capacity rolling history for one metric. When full, an
// append overwrites the oldest point in place, so the length never exceeds
// the capacity.
type Series struct {
	points []model.SeriesPoint
	head   int // index of the oldest point
	size   int
}

// NewSeries creates a series with the given capacity. Non-positive values
// fall back to DefaultCapacity.
func NewSeries(capacity int) *Series {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Series{points: make([]model.SeriesPoint, capacity)}
}

// Append records a point. NaN and infinite values are treated as absent and
// ignored.
func (s *Series) Append(timestamp, value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}
	p := model.SeriesPoint{X: timestamp, Y: value}
	capacity := len(s.points)
	if s.size < capacity {
		s.points[(s.head+s.size)%capacity] = p
		s.size++
		return
	}
	s.points[s.head] = p
	s.head = (s.head + 1) % capacity
}

// Snapshot returns the points oldest first. The slice is a copy.
func (s *Series) Snapshot() []model.SeriesPoint {
	out := make([]model.SeriesPoint, s.size)
	capacity := len(s.points)
	for i := 0; i < s.size; i++ {
		out[i] = s.points[(s.head+i)%capacity]
	}
	return out
}

// Last returns the newest point.
func (s *Series) Last() (model.SeriesPoint, bool) {
	if s.size == 0 {
		return model.SeriesPoint{}, false
	}
	return s.points[(s.head+s.size-1)%len(s.points)], true
}

func (s *Series) Len() int { return s.size }

func (s *Series) Cap() int { return len(s.points) }

// Reset drops all points and keeps the capacity.
func (s *Series) Reset() {
	s.head = 0
	s.size = 0
}
