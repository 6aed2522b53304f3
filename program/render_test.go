package main

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keilerkonzept/serial-plotter/internal/series"
	"github.com/keilerkonzept/serial-plotter/internal/stream"
)

func ys(vs ...float64) []series.Point {
	out := make([]series.Point, len(vs))
	for i, v := range vs {
		out[i] = series.Point{Y: v}
	}
	return out
}

func TestTimeSeriesData_AlignsNewestSamples(t *testing.T) {
	points := [][]series.Point{
		ys(1, 2, 3, 4, 5),
		{},
		ys(7, 8),
	}
	data, rows := timeSeriesData(points, 4)
	require.Len(t, data, 2)
	assert.Equal(t, []int{0, 2}, rows)
	assert.Equal(t, []float64{2, 3, 4, 5}, data[0])
	assert.Equal(t, []float64{7, 7, 7, 8}, data[1])
}

func TestTimeSeriesData_NotEnoughPoints(t *testing.T) {
	data, rows := timeSeriesData([][]series.Point{ys(1)}, 10)
	assert.Nil(t, data)
	assert.Nil(t, rows)
}

func TestRenderScatter_Corners(t *testing.T) {
	points := [][]series.Point{{{X: 0, Y: 0}, {X: 10, Y: 10}}}
	slots := []series.Slot{{Index: 0, Key: stream.Name("xy"), Color: series.ColorFor(0)}}

	out := renderScatter(points, slots, 3, 2, false)
	rows := strings.Split(out, "\n")
	require.Len(t, rows, 2)
	// top-right cell holds (10,10), bottom-left holds (0,0)
	assert.Contains(t, rows[0], string(rune(0x2800+0x08)))
	assert.Contains(t, rows[1], string(rune(0x2800+0x40)))
	assert.True(t, strings.HasPrefix(rows[0], " "))
}

func TestRenderScatter_ExtremeSpan(t *testing.T) {
	points := [][]series.Point{{{X: -1e308, Y: 0}, {X: 1e308, Y: 1}, {X: math.Inf(1), Y: 0}, {X: 0, Y: math.NaN()}}}
	slots := []series.Slot{{Index: 0, Key: stream.Name("xy"), Color: series.ColorFor(0)}}

	var out string
	require.NotPanics(t, func() { out = renderScatter(points, slots, 3, 2, false) })
	rows := strings.Split(out, "\n")
	require.Len(t, rows, 2)
	assert.Contains(t, rows[0], string(rune(0x2800+0x08)))
	assert.Contains(t, rows[1], string(rune(0x2800+0x40)))
}

func TestDotIndex(t *testing.T) {
	i, ok := dotIndex(5, 5, 5, 8)
	assert.True(t, ok)
	assert.Zero(t, i)

	i, ok = dotIndex(1e308, -1e308, 1e308, 8)
	assert.True(t, ok)
	assert.Equal(t, 7, i)

	_, ok = dotIndex(math.NaN(), 0, 1, 8)
	assert.False(t, ok)
}

func TestRenderScatter_Empty(t *testing.T) {
	assert.Empty(t, renderScatter(nil, nil, 10, 5, false))
	assert.Empty(t, renderScatter([][]series.Point{{{X: 1, Y: 1}}}, nil, 0, 5, false))
}

func TestPointBounds(t *testing.T) {
	b, ok := pointBounds([][]series.Point{{{X: -1, Y: 5}}, {{X: 3, Y: -2}}})
	require.True(t, ok)
	assert.Equal(t, bounds{minX: -1, maxX: 3, minY: -2, maxY: 5}, b)

	_, ok = pointBounds([][]series.Point{{}})
	assert.False(t, ok)

	_, ok = pointBounds([][]series.Point{{{X: math.NaN(), Y: 1}, {X: 1, Y: math.Inf(-1)}}})
	assert.False(t, ok)
}

func TestPaletteWraps(t *testing.T) {
	assert.Equal(t, palette256(0, false), palette256(len(lightPalette256), false))
	assert.NotEqual(t, palette256(7, false), palette256(7, true))
	assert.Equal(t, len(series.Palette), len(lightPalette256))
}
