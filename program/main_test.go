package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keilerkonzept/serial-plotter/internal/series"
	"github.com/keilerkonzept/serial-plotter/internal/session"
	"github.com/keilerkonzept/serial-plotter/internal/settings"
	"github.com/keilerkonzept/serial-plotter/internal/stream"
)

// withConfig runs each test against a private copy of the global config.
func withConfig(t *testing.T) {
	t.Helper()
	saved := config
	config.NoSave = true
	t.Cleanup(func() { config = saved })
}

func TestValidateAndNormalizeConfig(t *testing.T) {
	withConfig(t)
	config.Mode = "XY"
	config.ViewSplit = 95
	config.StatsWindow = 2
	require.NoError(t, validateAndNormalizeConfig())
	assert.Equal(t, "xy", config.Mode)
	assert.Equal(t, 80, config.ViewSplit)
	assert.Equal(t, 16, config.StatsWindow)
}

func TestValidateAndNormalizeConfig_Rejects(t *testing.T) {
	cases := map[string]func(){
		"mode":     func() { config.Mode = "polar" },
		"buffer":   func() { config.BufferSize = 42 },
		"baud":     func() { config.BaudRate = 1234 },
		"pace":     func() { config.Pace = -time.Second },
		"port+in":  func() { config.Port, config.InputPath = "/dev/ttyUSB0", "data.txt" },
		"fps":      func() { config.PlotFPS = 0 },
		"ignored":  func() { config.IgnoredWindow = time.Millisecond },
		"loglevel": func() { config.LogLevel = "chatty" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			withConfig(t)
			mutate()
			assert.Error(t, validateAndNormalizeConfig())
		})
	}
}

func TestValidateAndNormalizeConfig_CalibrationForcesXY(t *testing.T) {
	withConfig(t)
	config.Calibration = true
	config.Mode = "xt"
	require.NoError(t, validateAndNormalizeConfig())
	assert.Equal(t, "xy", config.Mode)
}

func TestMergeSettings_ExplicitFlagsWin(t *testing.T) {
	withConfig(t)
	config.BufferSize = 1000
	stored := settings.Defaults()
	stored.BufferSize = 2500
	stored.PlotMode = "xy"
	stored.DarkMode = true
	stored.Port = "/dev/ttyACM0"

	mergeSettings(stored, map[string]bool{"buffer": true})
	assert.Equal(t, 1000, config.BufferSize)
	assert.Equal(t, "xy", config.Mode)
	assert.True(t, config.DarkMode)
	assert.Equal(t, "/dev/ttyACM0", config.Port)
}

func TestMergeSettings_InputFlagKeepsStoredPortAway(t *testing.T) {
	withConfig(t)
	stored := settings.Defaults()
	stored.Port = "/dev/ttyACM0"
	mergeSettings(stored, map[string]bool{"in": true})
	assert.Empty(t, config.Port)
}

func TestSaveSettings(t *testing.T) {
	withConfig(t)
	config.NoSave = false
	config.SettingsPath = filepath.Join(t.TempDir(), "settings.yaml")
	config.BufferSize = 2500
	saveSettings(nil)

	got, err := settings.Load(config.SettingsPath)
	require.NoError(t, err)
	assert.Equal(t, 2500, got.BufferSize)
}

func TestSaveSettings_NoSave(t *testing.T) {
	withConfig(t)
	config.SettingsPath = filepath.Join(t.TempDir(), "settings.yaml")
	saveSettings(nil)
	_, err := os.Stat(config.SettingsPath)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plot.log")
	logger, closeLog, err := newLogger(path, "warn")
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "k", 1)
	closeLog()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "hidden")
	assert.Contains(t, string(b), "shown")

	_, _, err = newLogger("", "nope")
	assert.Error(t, err)
}

func TestIsTransportError(t *testing.T) {
	assert.True(t, isTransportError(&session.TransportError{Op: "read", Err: io.ErrUnexpectedEOF}))
	assert.False(t, isTransportError(errors.New("open /dev/x: no such file")))
}

func TestComputePaneWidths(t *testing.T) {
	left, right := computePaneWidths(100, 65)
	assert.Equal(t, 65, left)
	assert.Equal(t, 35, right)

	left, right = computePaneWidths(40, 80)
	assert.Equal(t, 22, left)
	assert.Equal(t, 18, right)

	left, right = computePaneWidths(1, 50)
	assert.Equal(t, 1, left)
	assert.Equal(t, 1, right)
}

func TestCalibrationTransform(t *testing.T) {
	rec := stream.NewDecoder(stream.WithPrefix("Raw:")).Decode("Raw:0,0,0,1,2,3,4,5,6")
	got := calibrationTransform(rec)
	require.Equal(t, 3, got.Len())

	xy, ok := got.Get(stream.Name("xy"))
	require.True(t, ok)
	assert.Equal(t, [2]float64{4, 5}, xy.Pair)
	yz, _ := got.Get(stream.Name("yz"))
	assert.Equal(t, [2]float64{5, 6}, yz.Pair)
	zx, _ := got.Get(stream.Name("zx"))
	assert.Equal(t, [2]float64{6, 4}, zx.Pair)
}

func TestCalibrationTransform_TooFewValues(t *testing.T) {
	rec := stream.NewDecoder().Decode("1,2")
	assert.True(t, calibrationTransform(rec).IsEmpty())
}

func TestCalibrationTransform_TruncatedFirstLine(t *testing.T) {
	s := session.New(session.Config{
		Mode:      series.XYSeries,
		Capacity:  10,
		Transform: calibrationTransform,
	})
	s.Feed([]byte("7,8\n1,2,3\n4,5,6\n"))

	slots := s.Slots()
	require.Len(t, slots, 3)
	assert.Equal(t, "xy", slots[0].Label)
	assert.Equal(t, "yz", slots[1].Label)
	assert.Equal(t, "zx", slots[2].Label)
	assert.Equal(t, []series.Point{{X: 1, Y: 2}, {X: 4, Y: 5}}, s.Store().Snapshot(0))
	assert.Equal(t, []series.Point{{X: 3, Y: 1}, {X: 6, Y: 4}}, s.Store().Snapshot(2))
	assert.Equal(t, uint64(1), s.Stats().Malformed)
}

func TestListPorts(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, listPorts(&buf, func() ([]string, error) {
		return []string{"/dev/ttyUSB0", "/dev/ttyACM0"}, nil
	}))
	out := buf.String()
	assert.Contains(t, out, "/dev/ttyUSB0")
	assert.Equal(t, 2, strings.Count(out, "\n"))

	buf.Reset()
	require.NoError(t, listPorts(&buf, func() ([]string, error) { return nil, nil }))
	assert.Contains(t, buf.String(), "no serial ports")

	assert.Error(t, listPorts(&buf, func() ([]string, error) { return nil, errors.New("denied") }))
}

func TestPacedReader_OneLinePerRead(t *testing.T) {
	r := paced(io.NopCloser(strings.NewReader("a,1\nb,2\ntail")), time.Microsecond)
	buf := make([]byte, 64)

	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "a,1\n", string(buf[:n]))

	n, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "b,2\n", string(buf[:n]))

	n, err = r.Read(buf)
	assert.Equal(t, "tail", string(buf[:n]))
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, r.Close())
}

func TestPaced_ZeroIsPassThrough(t *testing.T) {
	rc := io.NopCloser(strings.NewReader("x"))
	assert.Equal(t, rc, paced(rc, 0))
}
