package webview

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keilerkonzept/serial-plotter/internal/series"
	"github.com/keilerkonzept/serial-plotter/internal/stream"
)

type fakeSource struct {
	slots []series.Slot
	store *series.Store
}

func (f *fakeSource) Slots() []series.Slot  { return f.slots }
func (f *fakeSource) Mode() series.PlotMode { return f.store.Mode() }
func (f *fakeSource) Capacity() int         { return f.store.Capacity() }
func (f *fakeSource) Store() *series.Store  { return f.store }

func TestSnapshot(t *testing.T) {
	store := series.NewStore(3, series.XYSeries)
	store.EnsureSlots(1)
	store.Append(0, stream.Pair(1, 2))
	store.Append(0, stream.Pair(3, 4))
	src := &fakeSource{
		slots: []series.Slot{{Index: 0, Key: stream.Name("xy"), Label: "xy", Color: series.ColorFor(0)}},
		store: store,
	}
	srv := httptest.NewServer(NewServer(src, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()

	var snap Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "xy", snap.Mode)
	assert.Equal(t, 3, snap.Capacity)
	require.Len(t, snap.Slots, 1)
	assert.Equal(t, "xy", snap.Slots[0].Key)
	assert.Equal(t, "#0000FF", snap.Slots[0].Color)
	require.Len(t, snap.Points, 1)
	assert.Equal(t, []series.Point{{X: 1, Y: 2}, {X: 3, Y: 4}}, snap.Points[0])
}

func TestSnapshot_NoSource(t *testing.T) {
	rec := httptest.NewRecorder()
	NewServer(nil, nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"mode":"","capacity":0,"slots":[],"points":[],"dropped":0}`, rec.Body.String())
}

func TestEvents_StreamsViewNotifications(t *testing.T) {
	s := NewServer(nil, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.subscribers) == 1
	}, time.Second, 5*time.Millisecond)

	s.AddSeries(series.Slot{Index: 0, Key: stream.Index(0), Label: "0", Color: "#0000FF"})
	s.AppendPoint(0, series.Point{X: 1, Y: 10})
	s.SetCapacity(250)
	s.ClearAllSeries()

	sc := bufio.NewScanner(resp.Body)
	var events []Event
	for len(events) < 4 && sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	require.Len(t, events, 4)
	assert.Equal(t, "addSeries", events[0].Type)
	assert.Equal(t, "0", events[0].Slot.Key)
	assert.Equal(t, "appendPoint", events[1].Type)
	assert.Equal(t, 10.0, events[1].Point.Y)
	assert.Equal(t, "setCapacity", events[2].Type)
	assert.Equal(t, 250, events[2].Capacity)
	assert.Equal(t, "clearAllSeries", events[3].Type)
}

func TestPublish_SlowSubscriberDrops(t *testing.T) {
	s := NewServer(nil, nil)
	ch := s.subscribe()
	for i := 0; i < subscriberBuffer+10; i++ {
		s.AppendPoint(0, series.Point{Y: float64(i)})
	}
	assert.Equal(t, uint64(10), s.Dropped())
	assert.Len(t, ch, subscriberBuffer)
	s.unsubscribe(ch)

	s.AppendPoint(0, series.Point{})
	assert.Equal(t, uint64(10), s.Dropped(), "no subscribers, nothing dropped")
}

func TestIndexPage(t *testing.T) {
	h := NewServer(nil, nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "EventSource")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLabelsStayText(t *testing.T) {
	const label = `<img src=x onerror=alert(1)>`
	store := series.NewStore(3, series.TimeSeries)
	store.EnsureSlots(1)
	src := &fakeSource{
		slots: []series.Slot{{Index: 0, Key: stream.Name(label), Label: label, Color: series.ColorFor(0)}},
		store: store,
	}
	h := NewServer(src, nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<img")
	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, label, snap.Slots[0].Label)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	page := rec.Body.String()
	assert.Contains(t, page, "span.textContent")
	assert.NotContains(t, page, "innerHTML")
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	s := NewServer(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	addrc := make(chan string, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- s.Serve(ctx, "127.0.0.1:0", func(a net.Addr) { addrc <- a.String() })
	}()

	addr := <-addrc
	resp, err := http.Get("http://" + addr + "/api/snapshot")
	require.NoError(t, err)
	resp.Body.Close()

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
