package session

import (
	"sync"
	"sync/atomic"
	"time"
)

type durationRing struct {
	buf   []time.Duration
	idx   int
	count int
}

func newDurationRing(n int) *durationRing {
	if n < 1 {
		n = 1
	}
	return &durationRing{buf: make([]time.Duration, n)}
}

func (r *durationRing) add(d time.Duration) {
	r.buf[r.idx] = d
	r.idx++
	if r.idx >= len(r.buf) {
		r.idx = 0
	}
	if r.count < len(r.buf) {
		r.count++
	}
}

type DurationStats struct {
	Last time.Duration
	Max  time.Duration
	Avg  time.Duration
	N    int
}

func (r *durationRing) snapshot() DurationStats {
	if r.count == 0 {
		return DurationStats{}
	}
	var sum, max time.Duration
	for i := 0; i < r.count; i++ {
		d := r.buf[i]
		sum += d
		if d > max {
			max = d
		}
	}

	lastIdx := r.idx - 1
	if lastIdx < 0 {
		lastIdx = len(r.buf) - 1
	}
	return DurationStats{
		Last: r.buf[lastIdx],
		Max:  max,
		Avg:  sum / time.Duration(r.count),
		N:    r.count,
	}
}

// Metrics counts what the pipeline did. Counters are atomics so the view can
// read them while the read loop runs.
type Metrics struct {
	enabled atomic.Bool

	startedNs     atomic.Int64
	firstIngestNs atomic.Int64
	lastIngestNs  atomic.Int64

	chunks     atomic.Uint64
	bytes      atomic.Uint64
	overflows  atomic.Uint64
	lines      atomic.Uint64
	records    atomic.Uint64
	malformed  atomic.Uint64
	mismatches atomic.Uint64
	points     atomic.Uint64
	rejected   atomic.Uint64

	decodeMu sync.Mutex
	decode   *durationRing
}

func NewMetrics(window int) *Metrics {
	m := &Metrics{decode: newDurationRing(window)}
	m.enabled.Store(true)
	m.startedNs.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) SetEnabled(v bool) { m.enabled.Store(v) }
func (m *Metrics) IsEnabled() bool   { return m.enabled.Load() }

func (m *Metrics) observeChunk(n int) {
	m.chunks.Add(1)
	m.bytes.Add(uint64(n))
}

func (m *Metrics) observeLine()      { m.lines.Add(1) }
func (m *Metrics) observeMalformed() { m.malformed.Add(1) }
func (m *Metrics) observeMismatch()  { m.mismatches.Add(1) }
func (m *Metrics) observeRejected()  { m.rejected.Add(1) }
func (m *Metrics) observePoint()     { m.points.Add(1) }

func (m *Metrics) observeOverflow(n int) { m.overflows.Add(uint64(n)) }

func (m *Metrics) observeRecord(now time.Time, d time.Duration) {
	m.records.Add(1)
	if !m.IsEnabled() {
		return
	}
	nowNs := now.UnixNano()
	m.firstIngestNs.CompareAndSwap(0, nowNs)
	m.lastIngestNs.Store(nowNs)
	m.decodeMu.Lock()
	m.decode.add(d)
	m.decodeMu.Unlock()
}

type Stats struct {
	Started    time.Time
	Chunks     uint64
	Bytes      uint64
	Overflows  uint64
	Lines      uint64
	Records    uint64
	Malformed  uint64
	Mismatches uint64
	Points     uint64
	Rejected   uint64
	Evicted    uint64
	AvgRps     uint64
	Decode     DurationStats
}

func (m *Metrics) Snapshot() Stats {
	s := Stats{
		Chunks:     m.chunks.Load(),
		Bytes:      m.bytes.Load(),
		Overflows:  m.overflows.Load(),
		Lines:      m.lines.Load(),
		Records:    m.records.Load(),
		Malformed:  m.malformed.Load(),
		Mismatches: m.mismatches.Load(),
		Points:     m.points.Load(),
		Rejected:   m.rejected.Load(),
	}
	if startedNs := m.startedNs.Load(); startedNs != 0 {
		s.Started = time.Unix(0, startedNs)
	}
	if !m.IsEnabled() {
		return s
	}

	first, last := m.firstIngestNs.Load(), m.lastIngestNs.Load()
	if first != 0 && last > first {
		active := time.Duration(last - first)
		avg := float64(s.Records) / active.Seconds()
		if avg > 0 {
			s.AvgRps = uint64(avg + 0.5)
		}
	}
	m.decodeMu.Lock()
	s.Decode = m.decode.snapshot()
	m.decodeMu.Unlock()
	return s
}
