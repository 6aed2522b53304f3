// Package webview serves the plot to a browser: a JSON snapshot of the
// current series and a Server-Sent Events stream of every change.
package webview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keilerkonzept/serial-plotter/internal/series"
)

const subscriberBuffer = 256

// Source is what the snapshot endpoint reads from.
type Source interface {
	Slots() []series.Slot
	Mode() series.PlotMode
	Capacity() int
	Store() *series.Store
}

type SlotInfo struct {
	Index int    `json:"index"`
	Key   string `json:"key"`
	Label string `json:"label"`
	Color string `json:"color"`
}

func slotInfo(s series.Slot) SlotInfo {
	return SlotInfo{Index: s.Index, Key: s.Key.String(), Label: s.Label, Color: s.Color}
}

type Event struct {
	Type     string        `json:"type"`
	Slot     *SlotInfo     `json:"slot,omitempty"`
	Index    int           `json:"index"`
	Point    *series.Point `json:"point,omitempty"`
	Capacity int           `json:"capacity,omitempty"`
}

type Snapshot struct {
	Mode     string           `json:"mode"`
	Capacity int              `json:"capacity"`
	Slots    []SlotInfo       `json:"slots"`
	Points   [][]series.Point `json:"points"`
	Dropped  uint64           `json:"dropped"`
}

// Server is a series.View that relays notifications to browser subscribers.
// A subscriber that falls behind loses events instead of stalling the pipeline.
type Server struct {
	src Source
	log *slog.Logger

	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	dropped     atomic.Uint64
}

func NewServer(src Source, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		src:         src,
		log:         logger,
		subscribers: make(map[chan Event]struct{}),
	}
}

// SetSource attaches the snapshot source after construction; the server is
// usually created before the session it observes.
func (s *Server) SetSource(src Source) {
	s.mu.Lock()
	s.src = src
	s.mu.Unlock()
}

func (s *Server) AddSeries(slot series.Slot) {
	info := slotInfo(slot)
	s.publish(Event{Type: "addSeries", Slot: &info, Index: slot.Index})
}

func (s *Server) AppendPoint(slot int, p series.Point) {
	s.publish(Event{Type: "appendPoint", Index: slot, Point: &p})
}

func (s *Server) ClearAllSeries() {
	s.publish(Event{Type: "clearAllSeries"})
}

func (s *Server) SetCapacity(n int) {
	s.publish(Event{Type: "setCapacity", Capacity: n})
}

func (s *Server) publish(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *Server) subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *Server) unsubscribe(ch chan Event) {
	s.mu.Lock()
	delete(s.subscribers, ch)
	s.mu.Unlock()
	close(ch)
}

// Dropped reports events lost to slow subscribers.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) snapshot() Snapshot {
	s.mu.RLock()
	src := s.src
	s.mu.RUnlock()
	snap := Snapshot{Dropped: s.Dropped(), Slots: []SlotInfo{}, Points: [][]series.Point{}}
	if src == nil {
		return snap
	}
	snap.Mode = src.Mode().String()
	snap.Capacity = src.Capacity()
	for _, slot := range src.Slots() {
		snap.Slots = append(snap.Slots, slotInfo(slot))
	}
	snap.Points = src.Store().SnapshotAll()
	return snap
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/snapshot", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.snapshot())
	})
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		ch := s.subscribe()
		defer s.unsubscribe(ch)
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case ev := <-ch:
				b, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexPage))
	})
	return mux
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
// The bound address is reported through ready, if non-nil.
func (s *Server) Serve(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	if ready != nil {
		ready(ln.Addr())
	}
	s.log.Info("web view listening", "addr", ln.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
