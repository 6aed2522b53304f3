// Package session wires the decoding pipeline for one serial connection:
// bytes are framed into lines, lines decoded into records, the first record
// allocates series slots and every record appends points to the rolling
// store, with each change reported to the attached view.
//
// All pipeline work is serialized by the session; a chunk is fully processed
// before the next one starts.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keilerkonzept/topk/heap"

	"github.com/keilerkonzept/serial-plotter/internal/series"
	"github.com/keilerkonzept/serial-plotter/internal/stream"
)

const readBufferSize = 4096

var (
	ErrNoWriter = errors.New("session: no writer attached")
	ErrClosed   = errors.New("session: closed")
)

// TransportError reports a failed read or write on the underlying stream.
// Lines completed before the failure have been fully applied.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// Transform rewrites a decoded record before it reaches the series. It runs
// only for non-empty records.
type Transform func(stream.Record) stream.Record

type Config struct {
	Mode          series.PlotMode
	Capacity      int
	MaxLineLength int
	// Prefix restricts decoding to lines that start with it.
	Prefix    string
	Transform Transform
	// OnLine sees every framed line before it is decoded.
	OnLine func(line string)
	View   series.View
	Logger *slog.Logger
	Clock  func() time.Time

	StatsWindow   int
	IgnoredK      int
	IgnoredWindow time.Duration
	IgnoredTick   time.Duration
}

type Session struct {
	mu       sync.Mutex
	framer   *stream.Framer
	decoder  *stream.Decoder
	registry *series.Registry
	store    *series.Store
	slots    []series.Slot

	view      series.View
	transform Transform
	onLine    func(string)
	log       *slog.Logger
	now       func() time.Time
	cfg       Config

	metrics *Metrics
	ignored *IgnoredFields

	wmu sync.Mutex
	w   io.Writer

	pauseMu   sync.Mutex
	pauseCond *sync.Cond
	paused    bool
	closed    atomic.Bool
}

func New(cfg Config) *Session {
	if cfg.View == nil {
		cfg.View = series.NopView{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.StatsWindow < 1 {
		cfg.StatsWindow = 256
	}
	if cfg.IgnoredK < 1 {
		cfg.IgnoredK = 8
	}
	if cfg.IgnoredWindow <= 0 {
		cfg.IgnoredWindow = 10 * time.Second
	}
	var decOpts []stream.DecoderOption
	if cfg.Prefix != "" {
		decOpts = append(decOpts, stream.WithPrefix(cfg.Prefix))
	}

	s := &Session{
		framer:    stream.NewFramer(cfg.MaxLineLength),
		decoder:   stream.NewDecoder(decOpts...),
		registry:  series.NewRegistry(),
		store:     series.NewStore(cfg.Capacity, cfg.Mode, series.WithClock(cfg.Clock)),
		view:      cfg.View,
		transform: cfg.Transform,
		onLine:    cfg.OnLine,
		log:       cfg.Logger,
		now:       cfg.Clock,
		cfg:       cfg,
		metrics:   NewMetrics(cfg.StatsWindow),
		ignored:   NewIgnoredFields(cfg.IgnoredK, cfg.IgnoredWindow, cfg.IgnoredTick),
	}
	s.pauseCond = sync.NewCond(&s.pauseMu)
	s.view.SetCapacity(s.store.Capacity())
	return s
}

// Feed frames chunk and runs every completed line through the pipeline.
func (s *Session) Feed(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.observeChunk(len(chunk))
	overflows := s.framer.Overflows()
	lines := s.framer.Feed(chunk)
	if n := s.framer.Overflows() - overflows; n > 0 {
		s.metrics.observeOverflow(n)
		s.log.Debug("oversized line discarded", "max", s.cfg.MaxLineLength)
	}
	for _, line := range lines {
		s.processLine(line)
	}
}

// Flush processes a trailing line that never got its terminator.
func (s *Session) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if line, ok := s.framer.Flush(); ok {
		s.processLine(line)
	}
}

func (s *Session) processLine(line string) {
	start := time.Now()
	s.metrics.observeLine()
	if s.onLine != nil {
		s.onLine(line)
	}

	before := s.decoder.Mode()
	rec := s.decoder.Decode(line)
	if after := s.decoder.Mode(); after != before {
		s.log.Info("decode mode committed", "mode", after.String())
	}
	if s.transform != nil && !rec.IsEmpty() {
		rec = s.transform(rec)
	}
	if rec.IsEmpty() {
		s.metrics.observeMalformed()
		s.log.Debug("malformed line skipped", "len", len(line))
		return
	}

	mode := s.store.Mode()
	if slots, created := s.registry.Ensure(rec, mode); created {
		s.slots = slots
		s.store.EnsureSlots(len(slots))
		for _, slot := range slots {
			s.view.AddSeries(slot)
		}
		s.log.Info("series created", "slots", len(slots), "mode", mode.String())
	}

	s.dispatch(rec, mode)
	s.metrics.observeRecord(s.now(), time.Since(start))
}

func (s *Session) dispatch(rec stream.Record, mode series.PlotMode) {
	if mode == series.XYSeries && len(s.slots) == 1 && !s.slots[0].Key.IsName() {
		// positional x,y columns feed the single slot
		x, okx := rec.Get(stream.Index(0))
		y, oky := rec.Get(stream.Index(1))
		if !okx || !oky || !x.IsNumber() || !y.IsNumber() {
			s.metrics.observeMismatch()
			return
		}
		s.append(0, stream.Pair(x.Num, y.Num))
		return
	}

	for _, slot := range s.slots {
		v, ok := rec.Get(slot.Key)
		if !ok {
			s.metrics.observeMismatch()
			continue
		}
		s.append(slot.Index, v)
	}

	now := s.now()
	for _, f := range rec.Fields {
		if !s.registry.Has(f.Key) {
			s.ignored.Observe(f.Key.String(), now)
		}
	}
}

func (s *Session) append(slot int, v stream.Value) {
	p, ok := s.store.Append(slot, v)
	if !ok {
		s.metrics.observeRejected()
		return
	}
	s.metrics.observePoint()
	s.view.AppendPoint(slot, p)
}

// Run reads chunks from r until EOF, an error or cancellation. Closing r is
// how a blocked read is interrupted; the loop then returns after the current
// chunk. EOF flushes the trailing line and returns nil.
func (s *Session) Run(ctx context.Context, r io.Reader) error {
	buf := make([]byte, readBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.waitIfPaused()
		if s.closed.Load() {
			return ErrClosed
		}

		n, err := r.Read(buf)
		if n > 0 {
			s.Feed(buf[:n])
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			s.Flush()
			s.log.Info("input closed")
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if s.closed.Load() {
			return ErrClosed
		}
		s.log.Error("read failed", "err", err)
		return &TransportError{Op: "read", Err: err}
	}
}

// Attach sets the writer used by Send. A nil writer detaches.
func (s *Session) Attach(w io.Writer) {
	s.wmu.Lock()
	s.w = w
	s.wmu.Unlock()
}

// Send writes each line followed by "\n". Writes are serialized.
func (s *Session) Send(lines ...string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.w == nil {
		return ErrNoWriter
	}
	for _, line := range lines {
		s.log.Debug("send", "line", line)
		if _, err := io.WriteString(s.w, line+"\n"); err != nil {
			s.log.Error("write failed", "err", err)
			return &TransportError{Op: "write", Err: err}
		}
	}
	return nil
}

// Reset drops all slots and points. The next record allocates slots again.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	s.log.Debug("series reset")
}

func (s *Session) reset() {
	s.registry.Reset()
	s.store.Reset()
	s.slots = nil
	s.ignored.Reset()
	s.view.ClearAllSeries()
}

// Reconnect prepares the session for a new connection: pending bytes and
// the committed decode mode are discarded along with the series.
func (s *Session) Reconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.framer = stream.NewFramer(s.cfg.MaxLineLength)
	s.decoder.Reset()
	s.reset()
	s.closed.Store(false)
}

// SetMode switches the plot mode, which also resets the series.
func (s *Session) SetMode(mode series.PlotMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.SetMode(mode)
	s.reset()
	s.log.Info("plot mode changed", "mode", mode.String())
}

// SetCapacity changes the per-slot bound; excess points are evicted at once.
func (s *Session) SetCapacity(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.SetCapacity(n)
	s.view.SetCapacity(s.store.Capacity())
	s.log.Debug("capacity changed", "capacity", s.store.Capacity())
}

// SetLabel renames a slot and re-announces it to the view.
func (s *Session) SetLabel(index int, label string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.registry.SetLabel(index, label) {
		return false
	}
	s.slots = s.registry.Slots()
	s.view.AddSeries(s.slots[index])
	return true
}

func (s *Session) Slots() []series.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]series.Slot, len(s.slots))
	copy(out, s.slots)
	return out
}

// Store exposes the rolling buffers for read-only snapshots.
func (s *Session) Store() *series.Store { return s.store }

func (s *Session) Mode() series.PlotMode { return s.store.Mode() }
func (s *Session) Capacity() int         { return s.store.Capacity() }

func (s *Session) DecodeMode() stream.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decoder.Mode()
}

func (s *Session) Metrics() *Metrics { return s.metrics }

// Stats is the metrics snapshot plus the points the store evicted.
func (s *Session) Stats() Stats {
	st := s.metrics.Snapshot()
	st.Evicted = s.store.Evicted()
	return st
}

// IgnoredFields returns the most frequent keys without a slot in the recent window.
func (s *Session) IgnoredFields(n int) []heap.Item {
	return s.ignored.Top(s.now(), n)
}

func (s *Session) Pause() {
	s.pauseMu.Lock()
	s.paused = true
	s.pauseMu.Unlock()
}

func (s *Session) TogglePause() bool {
	s.pauseMu.Lock()
	s.paused = !s.paused
	paused := s.paused
	s.pauseMu.Unlock()
	s.pauseCond.Broadcast()
	return paused
}

func (s *Session) IsPaused() bool {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	return s.paused
}

func (s *Session) waitIfPaused() {
	s.pauseMu.Lock()
	for s.paused && !s.closed.Load() {
		s.pauseCond.Wait()
	}
	s.pauseMu.Unlock()
}

// Close stops the read loop at its next iteration and wakes it if paused.
// The caller still owns and closes the transport.
func (s *Session) Close() {
	s.pauseMu.Lock()
	s.closed.Store(true)
	s.pauseMu.Unlock()
	s.pauseCond.Broadcast()
}
