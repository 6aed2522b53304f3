package series

import (
	"sync"
	"time"

	"github.com/keilerkonzept/serial-plotter/internal/stream"
)

// DefaultCapacity is the per-slot point bound used when none is configured.
const DefaultCapacity = 500

type buffer struct {
	points []Point
}

// Store keeps a bounded, drop-oldest point buffer per slot. Append and the
// eviction that follows it happen under one lock, so readers never see a
// buffer over capacity.
type Store struct {
	mu       sync.RWMutex
	mode     PlotMode
	capacity int
	buffers  []*buffer
	now      func() time.Time

	evicted uint64
}

type StoreOption func(*Store)

// WithClock overrides the wall clock used to stamp TimeSeries points.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(capacity int, mode PlotMode, opts ...StoreOption) *Store {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	s := &Store{
		mode:     mode,
		capacity: capacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureSlots grows the store to hold at least n slot buffers.
func (s *Store) EnsureSlots(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.buffers) < n {
		s.buffers = append(s.buffers, &buffer{})
	}
}

// Append converts v to a point for slot and stores it. TimeSeries accepts
// numbers, XYSeries accepts pairs; anything else is ignored.
func (s *Store) Append(slot int, v stream.Value) (Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot < 0 || slot >= len(s.buffers) {
		return Point{}, false
	}

	var p Point
	switch s.mode {
	case TimeSeries:
		if !v.IsNumber() {
			return Point{}, false
		}
		t := s.now()
		p = Point{T: t, X: float64(t.UnixMilli()), Y: v.Num}
	case XYSeries:
		if !v.IsPair() {
			return Point{}, false
		}
		p = Point{X: v.Pair[0], Y: v.Pair[1]}
	default:
		return Point{}, false
	}

	b := s.buffers[slot]
	b.points = append(b.points, p)
	s.evict(b)
	return p, true
}

func (s *Store) evict(b *buffer) {
	for len(b.points) > s.capacity {
		b.points[0] = Point{}
		b.points = b.points[1:]
		s.evicted++
	}
}

// SetCapacity changes the bound and trims every buffer to it immediately.
func (s *Store) SetCapacity(n int) {
	if n < 1 {
		n = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capacity = n
	for _, b := range s.buffers {
		s.evict(b)
	}
}

func (s *Store) Capacity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capacity
}

func (s *Store) Mode() PlotMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// SetMode switches the plot mode. Buffered points of the other mode are
// dropped along with the slots.
func (s *Store) SetMode(mode PlotMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	s.buffers = nil
}

// Reset discards all points and slot buffers.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers = nil
}

// Snapshot returns a copy of the points for slot, oldest first.
func (s *Store) Snapshot(slot int) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if slot < 0 || slot >= len(s.buffers) {
		return nil
	}
	pts := s.buffers[slot].points
	out := make([]Point, len(pts))
	copy(out, pts)
	return out
}

// SnapshotAll copies every slot buffer under one read lock.
func (s *Store) SnapshotAll() [][]Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]Point, len(s.buffers))
	for i, b := range s.buffers {
		out[i] = make([]Point, len(b.points))
		copy(out[i], b.points)
	}
	return out
}

func (s *Store) Len(slot int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if slot < 0 || slot >= len(s.buffers) {
		return 0
	}
	return len(s.buffers[slot].points)
}

func (s *Store) Slots() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buffers)
}

// Evicted reports how many points were dropped to honor the capacity.
func (s *Store) Evicted() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evicted
}
