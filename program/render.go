package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	styles "github.com/charmbracelet/lipgloss"
	plot "github.com/chriskim06/drawille-go"

	"github.com/keilerkonzept/serial-plotter/internal/series"
)

// xterm-256 approximations of series.Palette, in the same order.
var (
	lightPalette256 = []int{21, 196, 28, 208, 164, 242, 45, 16}
	darkPalette256  = []int{75, 203, 77, 214, 177, 248, 87, 255}
)

func palette256(slot int, dark bool) int {
	colors := lightPalette256
	if dark {
		colors = darkPalette256
	}
	return colors[slot%len(colors)]
}

func lineColor(slot int, dark bool) plot.Color {
	return plot.Color(palette256(slot, dark))
}

// swatchColor is the terminal color for a slot's legend swatch and scatter dots.
func swatchColor(slot series.Slot, dark bool) styles.Color {
	if dark {
		return styles.Color(strconv.Itoa(palette256(slot.Index, dark)))
	}
	return styles.Color(slot.Color)
}

// timeSeriesData lays out the newest n samples of every non-empty series by
// sample index. Shorter series are left-padded with their oldest value so all
// rows share one x axis. The returned indexes name the slot of each row.
func timeSeriesData(points [][]series.Point, n int) ([][]float64, []int) {
	if n < 2 {
		n = 2
	}
	longest := 0
	for _, ps := range points {
		longest = max(longest, len(ps))
	}
	n = min(n, longest)
	if n < 2 {
		return nil, nil
	}

	var data [][]float64
	var slots []int
	for slot, ps := range points {
		if len(ps) == 0 {
			continue
		}
		if len(ps) > n {
			ps = ps[len(ps)-n:]
		}
		row := make([]float64, n)
		pad := n - len(ps)
		for i := range row {
			if i < pad {
				row[i] = ps[0].Y
				continue
			}
			row[i] = ps[i-pad].Y
		}
		data = append(data, row)
		slots = append(slots, slot)
	}
	return data, slots
}

type bounds struct {
	minX, maxX, minY, maxY float64
}

func pointBounds(points [][]series.Point) (bounds, bool) {
	b := bounds{math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1)}
	found := false
	for _, ps := range points {
		for _, p := range ps {
			if !finite(p.X) || !finite(p.Y) {
				continue
			}
			b.minX, b.maxX = math.Min(b.minX, p.X), math.Max(b.maxX, p.X)
			b.minY, b.maxY = math.Min(b.minY, p.Y), math.Max(b.maxY, p.Y)
			found = true
		}
	}
	return b, found
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

var brailleBits = [2][4]rune{
	{0x01, 0x02, 0x04, 0x40},
	{0x08, 0x10, 0x20, 0x80},
}

type scatterCell struct {
	bits rune
	slot int
}

// renderScatter plots (x, y) points as braille dots on a w×h character grid.
// A cell takes the color of the last series that touched it.
func renderScatter(points [][]series.Point, slots []series.Slot, w, h int, dark bool) string {
	if w < 1 || h < 1 {
		return ""
	}
	b, ok := pointBounds(points)
	if !ok {
		return ""
	}
	dotsW, dotsH := 2*w, 4*h

	grid := make([][]scatterCell, h)
	for i := range grid {
		grid[i] = make([]scatterCell, w)
	}
	for slot, ps := range points {
		for _, p := range ps {
			dx, okx := dotIndex(p.X, b.minX, b.maxX, dotsW)
			dy, oky := dotIndex(p.Y, b.minY, b.maxY, dotsH)
			if !okx || !oky {
				continue
			}
			dy = dotsH - 1 - dy
			cell := &grid[dy/4][dx/2]
			cell.bits |= brailleBits[dx%2][dy%4]
			cell.slot = slot
		}
	}

	styleFor := make(map[int]styles.Style)
	var sb strings.Builder
	for row, cells := range grid {
		if row > 0 {
			sb.WriteByte('\n')
		}
		for _, c := range cells {
			if c.bits == 0 {
				sb.WriteByte(' ')
				continue
			}
			st, ok := styleFor[c.slot]
			if !ok {
				st = styles.NewStyle()
				if c.slot < len(slots) {
					st = st.Foreground(swatchColor(slots[c.slot], dark))
				}
				styleFor[c.slot] = st
			}
			sb.WriteString(st.Render(string(0x2800 + c.bits)))
		}
	}
	return sb.String()
}

// dotIndex maps v in [lo, hi] onto 0..n-1. Halving first keeps hi-lo finite
// for values near the float64 limits.
func dotIndex(v, lo, hi float64, n int) (int, bool) {
	f := 0.0
	if span := hi/2 - lo/2; span > 0 {
		f = (v/2 - lo/2) / span
	}
	if !finite(f) {
		return 0, false
	}
	i := int(f * float64(n-1))
	return min(max(i, 0), n-1), true
}

func formatAxis(v float64) string {
	return fmt.Sprintf("%.4g", v)
}
