package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	tui "github.com/charmbracelet/bubbletea"

	"github.com/keilerkonzept/serial-plotter/internal/series"
	"github.com/keilerkonzept/serial-plotter/internal/session"
	"github.com/keilerkonzept/serial-plotter/internal/settings"
	"github.com/keilerkonzept/serial-plotter/internal/stream"
	"github.com/keilerkonzept/serial-plotter/internal/webview"
)

type Config struct {
	// input
	Port          string
	InputPath     string
	BaudRate      int
	ListPorts     bool
	Pace          time.Duration
	MaxLineLength int
	Prefix        string
	Calibration   bool

	// plot
	Mode          string
	BufferSize    int
	PlotFPS       int
	ViewSplit     int
	ShowTimestamp bool
	Autoscroll    bool
	DarkMode      bool

	// persistence
	SettingsPath string
	NoSave       bool

	HTTPAddr string

	LogFile  string
	LogLevel string

	StatsEnabled  bool
	StatsWindow   int
	IgnoredK      int
	IgnoredWindow time.Duration

	AltScreen bool
}

var config = Config{
	Port:          "",
	InputPath:     "",
	BaudRate:      settings.DefaultBaudRate,
	Pace:          0,
	MaxLineLength: stream.DefaultMaxLineLength,

	Mode:       settings.DefaultPlotMode,
	BufferSize: settings.DefaultBufferSize,
	PlotFPS:    20,
	ViewSplit:  65,
	Autoscroll: true,

	LogLevel: "info",

	StatsEnabled:  true,
	StatsWindow:   256,
	IgnoredK:      5,
	IgnoredWindow: 10 * time.Second,

	AltScreen: true,
}

func main() {
	log.SetOutput(os.Stdout)
	flag.StringVar(&config.Port, "port", config.Port, "Serial device to open (\"-\" reads stdin)")
	flag.StringVar(&config.InputPath, "in", config.InputPath, "Replay input from this file instead of a serial port")
	flag.IntVar(&config.BaudRate, "baud", config.BaudRate, "Serial baud rate")
	flag.BoolVar(&config.ListPorts, "list", config.ListPorts, "List available serial ports and exit")
	flag.DurationVar(&config.Pace, "pace", config.Pace, "Sleep between input lines (e.g. 5ms, 50ms)")
	flag.IntVar(&config.MaxLineLength, "max-line-length", config.MaxLineLength, "Discard unterminated input beyond this many bytes")
	flag.StringVar(&config.Prefix, "prefix", config.Prefix, "Only decode lines starting with this prefix (e.g. Raw:)")
	flag.BoolVar(&config.Calibration, "calibration", config.Calibration, "Plot the last three values of each line as xy/yz/zx pairs (implies -mode xy)")

	flag.StringVar(&config.Mode, "mode", config.Mode, "Plot mode: xt (values over time) or xy (pairs)")
	flag.IntVar(&config.BufferSize, "buffer", config.BufferSize, fmt.Sprintf("Points kept per series, one of %v", settings.BufferSizes))
	flag.IntVar(&config.PlotFPS, "plot-fps", config.PlotFPS, "Plot refresh rate (frames per second)")
	flag.IntVar(&config.ViewSplit, "view-split", config.ViewSplit, "Split the view at this % of the total screen width [20,80]")
	flag.BoolVar(&config.ShowTimestamp, "timestamp", config.ShowTimestamp, "Prefix console lines with the time they arrived")
	flag.BoolVar(&config.Autoscroll, "autoscroll", config.Autoscroll, "Keep the console scrolled to the newest line")
	flag.BoolVar(&config.DarkMode, "dark", config.DarkMode, "Use the dark color theme")

	flag.StringVar(&config.SettingsPath, "settings", config.SettingsPath, "Settings file (default: user config dir)")
	flag.BoolVar(&config.NoSave, "no-save", config.NoSave, "Do not write setting changes back to the settings file")

	flag.StringVar(&config.HTTPAddr, "http", config.HTTPAddr, "Also serve the plot to browsers on this address (e.g. localhost:8080)")

	flag.StringVar(&config.LogFile, "log-file", config.LogFile, "Write logs to this file (default: discard)")
	flag.StringVar(&config.LogLevel, "log-level", config.LogLevel, "Log level: debug, info, warn or error")

	flag.BoolVar(&config.StatsEnabled, "stats", config.StatsEnabled, "Show pipeline stats")
	flag.IntVar(&config.StatsWindow, "stats-window", config.StatsWindow, "Number of recent samples kept per metric")
	flag.IntVar(&config.IgnoredK, "ignored-k", config.IgnoredK, "Show the top K fields that arrive without a series")
	flag.DurationVar(&config.IgnoredWindow, "ignored-window", config.IgnoredWindow, "Window for counting ignored fields")
	flag.BoolVar(&config.AltScreen, "alt-screen", config.AltScreen, "Use the terminal alternate screen buffer (recommended inside IDE terminals)")

	flag.Parse()

	if config.ListPorts {
		if err := listPorts(os.Stdout, defaultPortLister); err != nil {
			log.Fatal(err)
		}
		return
	}

	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	if config.SettingsPath == "" {
		path, err := settings.DefaultPath()
		if err != nil {
			log.Fatal(err)
		}
		config.SettingsPath = path
	}
	stored, err := settings.Load(config.SettingsPath)
	if err != nil {
		log.Printf("ignoring settings: %v", err)
	}
	mergeSettings(stored, explicit)

	if err := validateAndNormalizeConfig(); err != nil {
		log.Fatal(err)
	}

	logger, closeLog, err := newLogger(config.LogFile, config.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()

	mode, _ := series.ParsePlotMode(config.Mode)
	m := newModel(logger)

	views := series.Views{m.chartView()}
	var web *webview.Server
	if config.HTTPAddr != "" {
		web = webview.NewServer(nil, logger)
		views = append(views, web)
	}

	sessionConfig := session.Config{
		Mode:          mode,
		Capacity:      config.BufferSize,
		MaxLineLength: config.MaxLineLength,
		Prefix:        config.Prefix,
		OnLine:        m.console.Append,
		View:          views,
		Logger:        logger,
		StatsWindow:   config.StatsWindow,
		IgnoredK:      config.IgnoredK,
		IgnoredWindow: config.IgnoredWindow,
	}
	if config.Calibration {
		sessionConfig.Transform = calibrationTransform
	}
	sess := session.New(sessionConfig)
	sess.Metrics().SetEnabled(config.StatsEnabled)
	m.session = sess

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if web != nil {
		web.SetSource(sess)
		go func() {
			err := web.Serve(ctx, config.HTTPAddr, func(a net.Addr) {
				logger.Info("browser view", "url", "http://"+a.String()+"/")
			})
			if err != nil {
				logger.Error("web view stopped", "err", err)
			}
		}()
	}
	m.ctx = ctx

	opts := []tui.ProgramOption{tui.WithInputTTY()}
	if config.AltScreen {
		opts = append(opts, tui.WithAltScreen())
	}
	_, err = tui.NewProgram(m, opts...).Run()
	sess.Close()
	m.closeInput()
	if err != nil {
		log.Fatal(err)
	}
}

// mergeSettings fills every option not set on the command line from the
// stored settings.
func mergeSettings(s settings.Settings, explicit map[string]bool) {
	if !explicit["port"] && !explicit["in"] && s.Port != "" {
		config.Port = s.Port
	}
	if !explicit["baud"] {
		config.BaudRate = s.BaudRate
	}
	if !explicit["buffer"] {
		config.BufferSize = s.BufferSize
	}
	if !explicit["mode"] {
		config.Mode = s.PlotMode
	}
	if !explicit["timestamp"] {
		config.ShowTimestamp = s.ShowTimestamp
	}
	if !explicit["autoscroll"] {
		config.Autoscroll = s.Autoscroll
	}
	if !explicit["dark"] {
		config.DarkMode = s.DarkMode
	}
}

// currentSettings captures the persisted subset of config.
func currentSettings() settings.Settings {
	return settings.Settings{
		Port:          config.Port,
		BaudRate:      config.BaudRate,
		BufferSize:    config.BufferSize,
		PlotMode:      config.Mode,
		ShowTimestamp: config.ShowTimestamp,
		Autoscroll:    config.Autoscroll,
		DarkMode:      config.DarkMode,
	}
}

func validateAndNormalizeConfig() error {
	if config.Calibration {
		config.Mode = series.XYSeries.String()
	}
	mode, err := series.ParsePlotMode(config.Mode)
	if err != nil {
		return fmt.Errorf("-mode: %w", err)
	}
	config.Mode = mode.String()
	if err := currentSettings().Validate(); err != nil {
		return err
	}
	if config.InputPath != "" && config.Port != "" && config.Port != "-" {
		return fmt.Errorf("choose only one: -port or -in")
	}
	if config.Pace < 0 {
		return fmt.Errorf("-pace must be >= 0")
	}
	if config.MaxLineLength < 1 {
		return fmt.Errorf("-max-line-length must be >= 1")
	}
	if config.PlotFPS < 1 {
		return fmt.Errorf("-plot-fps must be >= 1")
	}
	if config.IgnoredK < 1 {
		return fmt.Errorf("-ignored-k must be >= 1")
	}
	if config.IgnoredWindow < time.Second {
		return fmt.Errorf("-ignored-window must be >= 1s")
	}
	if _, err := parseLogLevel(config.LogLevel); err != nil {
		return err
	}
	config.ViewSplit = max(20, config.ViewSplit)
	config.ViewSplit = min(80, config.ViewSplit)
	if config.StatsWindow < 16 {
		config.StatsWindow = 16
	}
	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return level, fmt.Errorf("-log-level: unknown level %q", s)
	}
	return level, nil
}

// newLogger opens path for structured logs. The terminal belongs to the UI,
// so without a path logs are discarded.
func newLogger(path, level string) (*slog.Logger, func(), error) {
	lvl, err := parseLogLevel(level)
	if err != nil {
		return nil, nil, err
	}
	if path == "" {
		return slog.New(slog.DiscardHandler), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: lvl}))
	return logger, func() { _ = f.Close() }, nil
}

func saveSettings(logger *slog.Logger) {
	if config.NoSave {
		return
	}
	if err := settings.Save(config.SettingsPath, currentSettings()); err != nil {
		logger.Warn("save settings", "err", err)
	}
}

// isTransportError reports whether the device failed, as opposed to the
// input being unusable from the start.
func isTransportError(err error) bool {
	var te *session.TransportError
	return errors.As(err, &te)
}

func computePaneWidths(totalWidth int, splitPercent int) (left, right int) {
	if totalWidth <= 1 {
		return 1, 1
	}
	left = totalWidth * splitPercent / 100
	left = max(1, min(left, totalWidth-1))
	right = totalWidth - left

	const minPane = 18
	if totalWidth >= minPane*2 {
		if left < minPane {
			left = minPane
			right = totalWidth - left
		}
		if right < minPane {
			right = minPane
			left = totalWidth - right
		}
	}
	return max(1, left), max(1, right)
}
