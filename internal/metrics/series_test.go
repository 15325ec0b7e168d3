package metrics

import (
	"math"
	"testing"
)

func TestSeries_LengthIsMinOfAppendsAndCapacity(t *testing.T) {
	t.Parallel()

	for _, capacity := range []int{1, 3, 100} {
		for n := 0; n <= 2*capacity+1; n++ {
			s := NewSeries(capacity)
			for i := 0; i < n; i++ {
				s.Append(float64(i), float64(i*10))
			}
			want := n
			if want > capacity {
				want = capacity
			}
			if s.Len() != want {
				t.Fatalf("cap=%d n=%d len=%d", capacity, n, s.Len())
			}
			snap := s.Snapshot()
			if len(snap) != want {
				t.Fatalf("cap=%d n=%d snapshot=%d", capacity, n, len(snap))
			}
			// Contents are the last `want` inserts, oldest first.
			for i, p := range snap {
				idx := n - want + i
				if p.X != float64(idx) || p.Y != float64(idx*10) {
					t.Fatalf("cap=%d n=%d point[%d]=%+v", capacity, n, i, p)
				}
			}
		}
	}
}

func TestSeries_SnapshotIsCopy(t *testing.T) {
	t.Parallel()

	s := NewSeries(2)
	s.Append(1, 1)
	snap := s.Snapshot()
	snap[0].Y = 99
	s.Append(2, 2)
	if got := s.Snapshot()[0].Y; got != 1 {
		t.Fatalf("internal storage aliased: y=%v", got)
	}
}

func TestSeries_IgnoresNonFinite(t *testing.T) {
	t.Parallel()

	s := NewSeries(4)
	s.Append(1, math.NaN())
	s.Append(2, math.Inf(1))
	if s.Len() != 0 {
		t.Fatalf("len=%d", s.Len())
	}
}

func TestSeries_DefaultsAndReset(t *testing.T) {
	t.Parallel()

	s := NewSeries(0)
	if s.Cap() != DefaultCapacity {
		t.Fatalf("cap=%d", s.Cap())
	}
	if _, ok := s.Last(); ok {
		t.Fatalf("expected no last point")
	}
	s.Append(1, 5)
	s.Append(2, 6)
	if p, ok := s.Last(); !ok || p.Y != 6 {
		t.Fatalf("last=%+v ok=%v", p, ok)
	}
	s.Reset()
	if s.Len() != 0 || s.Cap() != DefaultCapacity {
		t.Fatalf("len=%d cap=%d", s.Len(), s.Cap())
	}
}
