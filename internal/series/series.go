// Package series holds the plot data model: series slots allocated from the
// first record of a session and a bounded, drop-oldest point buffer per slot.
package series

import (
	"fmt"
	"strings"
	"time"

	"github.com/keilerkonzept/serial-plotter/internal/stream"
)

// PlotMode selects how values become points.
type PlotMode int

const (
	// TimeSeries pairs each value with the wall-clock time it was appended.
	TimeSeries PlotMode = iota
	// XYSeries expects explicit (x, y) pairs.
	XYSeries
)

func (m PlotMode) String() string {
	if m == XYSeries {
		return "xy"
	}
	return "xt"
}

// ParsePlotMode accepts "xt"/"time" and "xy" (case-insensitive).
func ParsePlotMode(s string) (PlotMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "xt", "time", "timeseries":
		return TimeSeries, nil
	case "xy", "xyseries":
		return XYSeries, nil
	}
	return TimeSeries, fmt.Errorf("unknown plot mode %q (want xt or xy)", s)
}

// Point is one plotted sample. TimeSeries points carry T and Y; XYSeries
// points carry X and Y.
type Point struct {
	T time.Time `json:"t,omitzero"`
	X float64   `json:"x"`
	Y float64   `json:"y"`
}

// Slot is a stable series identity for one session.
type Slot struct {
	Index int             `json:"index"`
	Key   stream.FieldKey `json:"-"`
	Label string          `json:"label"`
	Color string          `json:"color"`
}

// Palette is the fixed color cycle assigned to slots in order.
var Palette = []string{"#0000FF", "#FF0000", "#009900", "#FF9900", "#CC00CC", "#666666", "#00CCFF", "#000000"}

// ColorFor returns the palette color for the nth slot.
func ColorFor(n int) string {
	return Palette[n%len(Palette)]
}
