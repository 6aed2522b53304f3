package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tui "github.com/charmbracelet/bubbletea"
	styles "github.com/charmbracelet/lipgloss"
	plot "github.com/chriskim06/drawille-go"
	"github.com/mattn/go-runewidth"

	"github.com/keilerkonzept/serial-plotter/internal/series"
	"github.com/keilerkonzept/serial-plotter/internal/session"
	"github.com/keilerkonzept/serial-plotter/internal/settings"
)

var (
	selectedColor = styles.AdaptiveColor{Light: "0", Dark: "9"}
	borderColor   = styles.AdaptiveColor{Light: "#555", Dark: "#555"}
	errorColor    = styles.AdaptiveColor{Light: "1", Dark: "9"}
	selectedFg    = styles.NewStyle().Foreground(selectedColor)
	borderFg      = styles.NewStyle().Foreground(borderColor)
	errorFg       = styles.NewStyle().Foreground(errorColor)
	paneStyle     = styles.NewStyle().
			BorderStyle(styles.NormalBorder()).
			Foreground(borderColor).
			BorderForeground(borderColor)
)

type inputPurpose int

const (
	inputSend inputPurpose = iota
	inputRename
)

type model struct {
	width, height int
	plotW, plotH  int
	rightW        int

	ctx     context.Context
	session *session.Session
	log     *slog.Logger

	inputMu sync.Mutex
	in      *transport
	reading bool
	err     error
	status  string

	// set by the session's view calls, consumed on the plot tick
	plotDirty   atomic.Bool
	legendDirty atomic.Bool

	slots    []series.Slot
	points   [][]series.Point
	plotView string

	console     *console
	consoleView viewport.Model
	input       textinput.Model
	inputFor    inputPurpose
	legend      list.Model
	legendStyle styles.Style
	help        help.Model
	plot        *plot.Canvas
}

func newModel(logger *slog.Logger) *model {
	const (
		defaultWidth  = 80
		defaultHeight = 20
	)
	styles.SetHasDarkBackground(config.DarkMode)

	d := list.NewDefaultDelegate()
	d.Styles.SelectedTitle = styles.NewStyle().
		Border(styles.NormalBorder(), false, false, false, true).
		BorderForeground(borderColor).
		Foreground(selectedColor).
		Padding(0, 0, 0, 1)
	d.Styles.SelectedDesc = d.Styles.SelectedTitle.
		Foreground(selectedColor)
	d.ShowDescription = true
	d.SetSpacing(0)

	l := list.New(make([]list.Item, 0), d, defaultWidth/3, defaultHeight/3)
	l.Styles.NoItems = l.Styles.NoItems.
		Padding(0, 2)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)

	p := plot.NewCanvas(defaultWidth, defaultHeight)
	p.ShowAxis = false

	in := textinput.New()
	in.Prompt = "> "
	in.CharLimit = 256

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &model{
		log:         logger,
		console:     newConsole(config.BufferSize),
		consoleView: viewport.New(defaultWidth/3, defaultHeight/2),
		input:       in,
		legend:      l,
		help:        help.New(),
		plot:        &p,
		plotW:       defaultWidth,
		plotH:       defaultHeight,
	}
	return m
}

// chartView is the session's handle on the model. It runs on the reader
// goroutine while the session holds its lock, so it only flags work for the
// next frame.
type chartView struct{ m *model }

func (m *model) chartView() series.View { return chartView{m} }

func (v chartView) AddSeries(series.Slot) {
	v.m.legendDirty.Store(true)
	v.m.plotDirty.Store(true)
}

func (v chartView) AppendPoint(int, series.Point) { v.m.plotDirty.Store(true) }

func (v chartView) ClearAllSeries() {
	v.m.legendDirty.Store(true)
	v.m.plotDirty.Store(true)
}

func (v chartView) SetCapacity(int) { v.m.plotDirty.Store(true) }

type PlotTickMsg time.Time

func doPlotTick() tui.Cmd {
	return tui.Every(time.Second/time.Duration(config.PlotFPS), func(t time.Time) tui.Msg {
		return PlotTickMsg(t)
	})
}

type errMsg struct{ err error }

type inputDoneMsg struct{ name string }

func (m *model) Init() tui.Cmd {
	m.reading = true
	return tui.Batch(m.readInput(), doPlotTick())
}

func (m *model) readInput() tui.Cmd {
	return func() tui.Msg {
		t, err := openTransport()
		if err != nil {
			return errMsg{err}
		}
		m.inputMu.Lock()
		m.in = t
		m.inputMu.Unlock()
		defer m.closeInput()

		if t.w != nil {
			m.session.Attach(t.w)
			defer m.session.Attach(nil)
		}
		m.log.Info("input opened", "input", t.name)
		if err := m.session.Run(m.ctx, t.r); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, session.ErrClosed) {
				return nil
			}
			return errMsg{err}
		}
		return inputDoneMsg{name: t.name}
	}
}

// closeInput releases the transport, which also unblocks a pending read.
func (m *model) closeInput() {
	m.inputMu.Lock()
	defer m.inputMu.Unlock()
	if m.in != nil {
		_ = m.in.Close()
		m.in = nil
	}
}

func (m *model) Update(msg tui.Msg) (tui.Model, tui.Cmd) {
	switch msg := msg.(type) {
	case errMsg:
		m.reading = false
		m.err = msg.err
		return m, nil
	case inputDoneMsg:
		m.reading = false
		m.status = fmt.Sprintf("end of input (%s)", msg.name)
		return m, nil
	case PlotTickMsg:
		m.refresh()
		return m, doPlotTick()
	case tui.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case tui.KeyMsg:
		if m.input.Focused() {
			return m, m.updateInput(msg)
		}
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tui.Quit
		case key.Matches(msg, keys.Pause):
			if m.session.TogglePause() {
				m.status = "paused"
			} else {
				m.status = ""
			}
			return m, nil
		case key.Matches(msg, keys.Clear):
			m.session.Reset()
			m.console.Clear()
			m.status = "cleared"
			return m, nil
		case key.Matches(msg, keys.Mode):
			m.toggleMode()
			return m, nil
		case key.Matches(msg, keys.Buffer):
			m.cycleBufferSize()
			return m, nil
		case key.Matches(msg, keys.Timestamp):
			config.ShowTimestamp = !config.ShowTimestamp
			m.console.dirty.Store(true)
			saveSettings(m.log)
			return m, nil
		case key.Matches(msg, keys.Autoscroll):
			config.Autoscroll = !config.Autoscroll
			saveSettings(m.log)
			return m, nil
		case key.Matches(msg, keys.Dark):
			config.DarkMode = !config.DarkMode
			styles.SetHasDarkBackground(config.DarkMode)
			m.legendDirty.Store(true)
			m.plotDirty.Store(true)
			saveSettings(m.log)
			return m, nil
		case key.Matches(msg, keys.Send):
			return m, m.openInput(inputSend, "command")
		case key.Matches(msg, keys.Rename):
			i := m.legend.Index()
			if i < 0 || i >= len(m.slots) {
				return m, nil
			}
			return m, m.openInput(inputRename, "new label for "+legendLabel(m.slots[i]))
		case key.Matches(msg, keys.Legend):
			if n := len(m.legend.Items()); n > 0 {
				m.legend.Select((m.legend.Index() + 1) % n)
			}
			return m, nil
		case key.Matches(msg, keys.Reconnect):
			if m.reading {
				return m, nil
			}
			m.err = nil
			m.status = "reconnecting"
			m.session.Reconnect()
			m.reading = true
			return m, m.readInput()
		case key.Matches(msg, keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.resize(m.width, m.height)
			return m, nil
		case key.Matches(msg, keys.Up), key.Matches(msg, keys.Down):
			var cmd tui.Cmd
			m.consoleView, cmd = m.consoleView.Update(msg)
			return m, cmd
		}
	}
	var cmd tui.Cmd
	m.consoleView, cmd = m.consoleView.Update(msg)
	return m, cmd
}

func (m *model) openInput(purpose inputPurpose, placeholder string) tui.Cmd {
	m.inputFor = purpose
	m.input.Placeholder = placeholder
	m.input.Reset()
	return m.input.Focus()
}

func (m *model) updateInput(msg tui.KeyMsg) tui.Cmd {
	switch {
	case msg.String() == "ctrl+c":
		return tui.Quit
	case key.Matches(msg, keys.Cancel):
		m.input.Blur()
		m.input.Reset()
		return nil
	case key.Matches(msg, keys.Submit):
		value := m.input.Value()
		m.input.Blur()
		m.input.Reset()
		m.submit(value)
		return nil
	}
	var cmd tui.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *model) submit(value string) {
	switch m.inputFor {
	case inputSend:
		if err := m.session.Send(value); err != nil {
			m.status = "send: " + err.Error()
			return
		}
		m.console.Echo(value)
		m.status = ""
	case inputRename:
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		if m.session.SetLabel(m.legend.Index(), value) {
			m.status = ""
		}
	}
}

func (m *model) toggleMode() {
	mode := series.XYSeries
	if m.session.Mode() == series.XYSeries {
		mode = series.TimeSeries
	}
	m.session.SetMode(mode)
	config.Mode = mode.String()
	m.status = "mode " + config.Mode
	saveSettings(m.log)
}

func (m *model) cycleBufferSize() {
	n := settings.NextBufferSize(config.BufferSize)
	config.BufferSize = n
	m.session.SetCapacity(n)
	m.console.SetMax(n)
	m.status = fmt.Sprintf("buffer %d", n)
	saveSettings(m.log)
}

// refresh pulls whatever changed since the last frame out of the session.
func (m *model) refresh() {
	if m.session == nil {
		return
	}
	legendChanged := m.legendDirty.Swap(false)
	if legendChanged {
		m.slots = m.session.Slots()
	}
	if m.plotDirty.Swap(false) || legendChanged {
		m.points = m.session.Store().SnapshotAll()
		m.renderPlot()
		m.updateLegend()
	}
	if m.console.takeDirty() {
		m.consoleView.SetContent(m.console.Render(config.ShowTimestamp))
		if config.Autoscroll {
			m.consoleView.GotoBottom()
		}
	}
}

func (m *model) renderPlot() {
	if m.session.Mode() == series.XYSeries {
		m.plotView = renderScatter(m.points, m.slots, m.plotW, m.plotH, config.DarkMode)
		return
	}
	data, rows := timeSeriesData(m.points, 2*m.plotW)
	if len(data) == 0 {
		m.plotView = ""
		return
	}
	colors := make([]plot.Color, len(rows))
	for i, slot := range rows {
		colors[i] = lineColor(slot, config.DarkMode)
	}
	m.plot.NumDataPoints = len(data[0])
	m.plot.LineColors = colors
	m.plot.Fill(data)
	m.plotView = m.plot.String()
}

func (m *model) updateLegend() {
	items := make([]list.Item, len(m.slots))
	mode := m.session.Mode()
	for i, slot := range m.slots {
		item := legendItem{slot: slot, width: m.rightW, dark: config.DarkMode, mode: mode}
		if slot.Index < len(m.points) {
			ps := m.points[slot.Index]
			item.count = len(ps)
			if len(ps) > 0 {
				item.last = ps[len(ps)-1]
			}
		}
		items[i] = item
	}
	selected := m.legend.Index()
	m.legend.SetItems(items)
	if selected < len(items) {
		m.legend.Select(selected)
	}
}

func (m *model) resizePlot(w int, h int) {
	p := plot.NewCanvas(w, h)
	p.NumDataPoints = m.plot.NumDataPoints
	p.ShowAxis = m.plot.ShowAxis
	p.LineColors = m.plot.LineColors
	m.plot = &p
	m.plotW, m.plotH = w, h
}

func (m *model) resize(width, height int) {
	m.width, m.height = width, height
	left, right := computePaneWidths(width, config.ViewSplit)
	m.rightW = max(1, right-2)

	bottomLines := 2 // input + help
	if m.help.ShowAll {
		bottomLines += 3
	}
	if config.StatsEnabled {
		bottomLines += len(m.statsLines())
	}
	available := max(4, height-bottomLines)

	// plot canvas + 1 label line inside a border
	m.resizePlot(max(1, left-2), max(1, available-3))

	legendH := max(2, available/3)
	m.legend.SetSize(m.rightW, legendH)
	m.legendStyle = styles.NewStyle().Width(m.rightW).Height(legendH)
	m.consoleView.Width = m.rightW
	m.consoleView.Height = max(1, available-legendH-2)
	m.input.Width = max(1, width-4)

	m.plotDirty.Store(true)
	m.legendDirty.Store(true)
	m.console.dirty.Store(true)
	m.refresh()
}

func (m *model) View() string {
	plotView := m.plotView
	if plotView == "" {
		plotView = emptyPlot(m.plotW, m.plotH, "waiting for data")
	}
	left := paneStyle.Render(styles.JoinVertical(styles.Left, plotView, m.plotLabels()))
	right := styles.JoinVertical(styles.Left,
		m.legendStyle.Render(m.legend.View()),
		paneStyle.Render(m.consoleView.View()),
	)
	view := styles.JoinHorizontal(styles.Top, left, right)

	bottom := []string{view}
	if m.input.Focused() {
		bottom = append(bottom, m.input.View())
	} else if m.err != nil {
		msg := "ERROR: " + m.err.Error()
		if isTransportError(m.err) || !m.reading {
			msg += " (r to reconnect)"
		}
		bottom = append(bottom, errorFg.Render(msg))
	} else {
		bottom = append(bottom, borderFg.Render(m.status))
	}
	if config.StatsEnabled {
		bottom = append(bottom, errorFg.Render(strings.Join(m.statsLines(), "\n")))
	}
	bottom = append(bottom, m.help.View(keys))
	return styles.JoinVertical(styles.Left, bottom...)
}

func (m *model) plotLabels() string {
	xt, xy := borderFg, borderFg
	mode := series.TimeSeries
	if m.session != nil {
		mode = m.session.Mode()
	}
	if mode == series.XYSeries {
		xy = selectedFg
	} else {
		xt = selectedFg
	}
	modes := xt.Render("XT") + " " + xy.Render("XY")

	ranges := ""
	if b, ok := pointBounds(m.points); ok {
		if mode == series.XYSeries {
			ranges = fmt.Sprintf("x [%s, %s]  y [%s, %s]", formatAxis(b.minX), formatAxis(b.maxX), formatAxis(b.minY), formatAxis(b.maxY))
		} else {
			ranges = fmt.Sprintf("y [%s, %s]", formatAxis(b.minY), formatAxis(b.maxY))
		}
	}
	label := fmt.Sprintf("%s  buf %d  %s", modes, config.BufferSize, borderFg.Render(ranges))
	if styles.Width(label) > m.plotW {
		label = modes
	}
	return label
}

func (m *model) statsLines() []string {
	if m.session == nil {
		return nil
	}
	snap := m.session.Stats()
	title := "PIPELINE STATS (RUNNING)"
	if m.session.IsPaused() {
		title = "PIPELINE STATS (PAUSED)"
	}
	ignored := "-"
	if top := m.session.IgnoredFields(config.IgnoredK); len(top) > 0 {
		parts := make([]string, len(top))
		for i, it := range top {
			parts[i] = fmt.Sprintf("%s (%d)", it.Item, it.Count)
		}
		ignored = strings.Join(parts, ", ")
	}
	return []string{
		title,
		fmt.Sprintf("uptime: %s  chunks: %d  bytes: %d  overflows: %d", time.Since(snap.Started).Truncate(time.Second), snap.Chunks, snap.Bytes, snap.Overflows),
		fmt.Sprintf("lines: %d  records: %d  malformed: %d", snap.Lines, snap.Records, snap.Malformed),
		fmt.Sprintf("points: %d  rejected: %d  evicted: %d  missing fields: %d", snap.Points, snap.Rejected, snap.Evicted, snap.Mismatches),
		fmt.Sprintf("ingest rate: %d rec/s  decode: %s avg, %s max", snap.AvgRps, formatMetricDuration(snap.Decode.Avg), formatMetricDuration(snap.Decode.Max)),
		fmt.Sprintf("format: %s  ignored fields: %s", m.session.DecodeMode(), ignored),
	}
}

func emptyPlot(w, h int, msg string) string {
	if w < 1 || h < 1 {
		return ""
	}
	spaces := strings.Repeat(" ", w)
	rows := make([]string, h)
	for i := range rows {
		rows[i] = spaces
	}
	if len(msg) <= w {
		pad := (w - len(msg)) / 2
		rows[h/2] = spaces[:pad] + borderFg.Render(msg) + spaces[:w-pad-len(msg)]
	}
	return strings.Join(rows, "\n")
}

func formatMetricDuration(d time.Duration) string {
	if d <= 0 {
		return "0.000ms"
	}
	return fmt.Sprintf("%.3fms", float64(d)/float64(time.Millisecond))
}

type legendItem struct {
	slot  series.Slot
	width int
	dark  bool
	mode  series.PlotMode
	count int
	last  series.Point
}

func legendLabel(s series.Slot) string {
	if s.Label != "" {
		return s.Label
	}
	return "field " + s.Key.String()
}

func (i legendItem) Title() string {
	swatch := styles.NewStyle().Foreground(swatchColor(i.slot, i.dark)).Render("■")
	return swatch + " " + runewidth.Truncate(legendLabel(i.slot), max(1, i.width-4), "…")
}

func (i legendItem) Description() string {
	if i.count == 0 {
		return "  -"
	}
	if i.mode == series.XYSeries {
		return fmt.Sprintf("  (%s, %s)  n=%d", formatAxis(i.last.X), formatAxis(i.last.Y), i.count)
	}
	return fmt.Sprintf("  %s  n=%d", formatAxis(i.last.Y), i.count)
}

func (i legendItem) FilterValue() string { return legendLabel(i.slot) }
