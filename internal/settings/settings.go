// Package settings persists the plotter's user-facing choices between runs.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/keilerkonzept/serial-plotter/internal/series"
)

var (
	ErrInvalidBaudRate   = errors.New("invalid baud rate")
	ErrInvalidBufferSize = errors.New("invalid buffer size")
	ErrInvalidPlotMode   = errors.New("invalid plot mode")
)

var (
	BaudRates   = []int{300, 1200, 2400, 4800, 9600, 19200, 38400, 57600, 74880, 115200, 230400, 250000, 500000, 1000000, 2000000}
	BufferSizes = []int{250, 500, 1000, 2500, 5000}
)

const (
	DefaultBaudRate   = 9600
	DefaultBufferSize = 500
	DefaultPlotMode   = "xt"
)

// Settings mirrors the options a user can change while plotting.
type Settings struct {
	Port          string `yaml:"port,omitempty"`
	BaudRate      int    `yaml:"baud_rate"`
	BufferSize    int    `yaml:"buffer_size"`
	PlotMode      string `yaml:"plot_mode"`
	ShowTimestamp bool   `yaml:"show_timestamp"`
	Autoscroll    bool   `yaml:"autoscroll"`
	DarkMode      bool   `yaml:"dark_mode"`
}

func Defaults() Settings {
	return Settings{
		BaudRate:      DefaultBaudRate,
		BufferSize:    DefaultBufferSize,
		PlotMode:      DefaultPlotMode,
		ShowTimestamp: false,
		Autoscroll:    true,
		DarkMode:      false,
	}
}

// DefaultPath returns settings.yaml under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("user config dir: %w", err)
	}
	return filepath.Join(dir, "serial-plotter", "settings.yaml"), nil
}

// Load reads path over the defaults. A missing file is not an error.
// Keys absent from the file keep their default value.
func Load(path string) (Settings, error) {
	s := Defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("read settings %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Defaults(), fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Defaults(), fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

// Save writes s to path, creating the directory when needed.
func Save(path string, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	b, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write settings %s: %w", path, err)
	}
	return nil
}

func (s Settings) Validate() error {
	if !slices.Contains(BaudRates, s.BaudRate) {
		return fmt.Errorf("%w: %d", ErrInvalidBaudRate, s.BaudRate)
	}
	if !slices.Contains(BufferSizes, s.BufferSize) {
		return fmt.Errorf("%w: %d (want one of %v)", ErrInvalidBufferSize, s.BufferSize, BufferSizes)
	}
	if _, err := series.ParsePlotMode(s.PlotMode); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlotMode, err)
	}
	return nil
}

// NextBufferSize returns the buffer size following current, wrapping around.
func NextBufferSize(current int) int {
	i := slices.Index(BufferSizes, current)
	return BufferSizes[(i+1)%len(BufferSizes)]
}
