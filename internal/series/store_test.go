package series

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keilerkonzept/serial-plotter/internal/stream"
)

func ys(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Y
	}
	return out
}

func fixedClock() func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(10 * time.Millisecond)
		return t
	}
}

func TestStore_TimeSeriesEvictsOldest(t *testing.T) {
	s := NewStore(3, TimeSeries, WithClock(fixedClock()))
	s.EnsureSlots(1)
	for _, v := range []float64{10, 20, 30, 40} {
		_, ok := s.Append(0, stream.Number(v))
		require.True(t, ok)
	}

	snap := s.Snapshot(0)
	assert.Equal(t, []float64{20, 30, 40}, ys(snap))
	assert.True(t, snap[0].T.Before(snap[2].T))
	assert.Equal(t, uint64(1), s.Evicted())
}

func TestStore_CapacityInvariant(t *testing.T) {
	for _, tc := range []struct{ n, m int }{{0, 3}, {2, 3}, {3, 3}, {10, 3}, {100, 7}, {5, 1}} {
		s := NewStore(tc.m, TimeSeries)
		s.EnsureSlots(1)
		for i := 0; i < tc.n; i++ {
			s.Append(0, stream.Number(float64(i)))
		}
		snap := s.Snapshot(0)
		require.Len(t, snap, min(tc.n, tc.m), "n=%d m=%d", tc.n, tc.m)
		for i, p := range snap {
			assert.Equal(t, float64(tc.n-len(snap)+i), p.Y)
		}
	}
}

func TestStore_SetCapacityTrimsImmediately(t *testing.T) {
	s := NewStore(5, TimeSeries)
	s.EnsureSlots(2)
	for i := 1; i <= 5; i++ {
		s.Append(0, stream.Number(float64(i)))
	}
	s.Append(1, stream.Number(100))

	s.SetCapacity(2)
	assert.Equal(t, []float64{4, 5}, ys(s.Snapshot(0)))
	assert.Equal(t, []float64{100}, ys(s.Snapshot(1)))
	assert.Equal(t, 2, s.Capacity())

	s.SetCapacity(10)
	s.Append(0, stream.Number(6))
	assert.Equal(t, []float64{4, 5, 6}, ys(s.Snapshot(0)), "growing keeps what is left")
}

func TestStore_XYRequiresPairs(t *testing.T) {
	s := NewStore(10, XYSeries)
	s.EnsureSlots(1)

	_, ok := s.Append(0, stream.Number(1))
	assert.False(t, ok)
	p, ok := s.Append(0, stream.Pair(1, 2))
	require.True(t, ok)
	assert.Equal(t, Point{X: 1, Y: 2}, p)
	s.Append(0, stream.Pair(3, 4))

	assert.Equal(t, []Point{{X: 1, Y: 2}, {X: 3, Y: 4}}, s.Snapshot(0))
}

func TestStore_TimeSeriesIgnoresNonNumbers(t *testing.T) {
	s := NewStore(10, TimeSeries)
	s.EnsureSlots(1)
	_, ok := s.Append(0, stream.Text("idle"))
	assert.False(t, ok)
	_, ok = s.Append(0, stream.Pair(1, 2))
	assert.False(t, ok)
	assert.Zero(t, s.Len(0))
}

func TestStore_UnknownSlotIgnored(t *testing.T) {
	s := NewStore(10, TimeSeries)
	_, ok := s.Append(0, stream.Number(1))
	assert.False(t, ok)
	assert.Nil(t, s.Snapshot(3))
}

func TestStore_ResetIsIdempotent(t *testing.T) {
	s := NewStore(10, TimeSeries)
	s.EnsureSlots(2)
	s.Append(0, stream.Number(1))

	s.Reset()
	assert.Zero(t, s.Slots())
	assert.Empty(t, s.SnapshotAll())
	s.Reset()
	assert.Zero(t, s.Slots())
	assert.Empty(t, s.SnapshotAll())
}

func TestStore_SetModeDropsBuffers(t *testing.T) {
	s := NewStore(10, TimeSeries)
	s.EnsureSlots(1)
	s.Append(0, stream.Number(1))
	s.SetMode(XYSeries)
	assert.Equal(t, XYSeries, s.Mode())
	assert.Zero(t, s.Slots())
}

func TestStore_ReadersNeverSeeOverCapacity(t *testing.T) {
	const capacity = 16
	s := NewStore(capacity, TimeSeries)
	s.EnsureSlots(1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5000; i++ {
			s.Append(0, stream.Number(float64(i)))
		}
	}()
	for i := 0; i < 2000; i++ {
		assert.LessOrEqual(t, len(s.Snapshot(0)), capacity)
	}
	wg.Wait()
	assert.Len(t, s.Snapshot(0), capacity)
}
