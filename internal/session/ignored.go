package session

import (
	"sync"
	"time"

	"github.com/keilerkonzept/topk/heap"
	"github.com/keilerkonzept/topk/sliding"
)

// IgnoredFields ranks, over a sliding time window, the record keys that have
// no slot because they first appeared after the slots were fixed.
type IgnoredFields struct {
	mu          sync.Mutex
	k           int
	tick        time.Duration
	windowTicks int
	sketch      *sliding.Sketch
	last        time.Time
}

func NewIgnoredFields(k int, window, tick time.Duration) *IgnoredFields {
	if k < 1 {
		k = 1
	}
	if tick <= 0 {
		tick = time.Second
	}
	if window < tick {
		window = tick
	}
	f := &IgnoredFields{
		k:           k,
		tick:        tick,
		windowTicks: int(window / tick),
	}
	f.sketch = f.newSketch()
	return f
}

func (f *IgnoredFields) newSketch() *sliding.Sketch {
	return sliding.New(f.k, f.windowTicks,
		sliding.WithWidth(256),
		sliding.WithDepth(3),
	)
}

func (f *IgnoredFields) Observe(key string, now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advance(now)
	f.sketch.Incr(key)
}

// advance moves the window forward by the whole ticks elapsed since the last call.
func (f *IgnoredFields) advance(now time.Time) {
	t := now.Truncate(f.tick)
	if f.last.IsZero() {
		f.last = t
		return
	}
	if ticks := int(t.Sub(f.last) / f.tick); ticks > 0 {
		f.sketch.Ticks(min(ticks, f.windowTicks))
		f.last = t
	}
}

// Top returns up to n ignored keys with their windowed counts, highest first.
func (f *IgnoredFields) Top(now time.Time, n int) []heap.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advance(now)
	var items []heap.Item
	for _, it := range f.sketch.SortedSlice() {
		if it.Count > 0 {
			items = append(items, it)
		}
	}
	if n > 0 && len(items) > n {
		items = items[:n]
	}
	return items
}

func (f *IgnoredFields) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sketch = f.newSketch()
	f.last = time.Time{}
}
