// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"image/color"
	"os"
	"time"

	"github.com/user/kamishibai/pkg/device"
	"github.com/user/kamishibai/pkg/framepool"
	"github.com/user/kamishibai/pkg/pipeline"
	"gopkg.in/yaml.v3"
)

// Config represents the full configuration for kamishibai.
type Config struct {
	// Device
	DeviceName    string  `yaml:"device_name"`
	Width         int     `yaml:"width"`
	Height        int     `yaml:"height"`
	FrameRate     float64 `yaml:"frame_rate"`
	PoolCapacity  int     `yaml:"pool_capacity"`
	FallbackColor string  `yaml:"fallback_color"`
	Mode          string  `yaml:"mode"`

	// Selection
	SelectionFile  string `yaml:"selection_file"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`

	// Sources and outputs
	Upstream UpstreamConfig `yaml:"upstream"`
	Overlay  OverlayConfig  `yaml:"overlay"`
	Sink     SinkConfig     `yaml:"sink"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// UpstreamConfig selects the live feed used in upstream mode.
type UpstreamConfig struct {
	Kind       string  `yaml:"kind"` // "mp4" or "browser"
	Path       string  `yaml:"path"`
	URL        string  `yaml:"url"`
	ChromePath string  `yaml:"chrome_path"`
	Headless   bool    `yaml:"headless"`
	Loop       bool    `yaml:"loop"`
	Quality    int     `yaml:"quality"`
	Buffer     int     `yaml:"buffer"` // frames queued before the feed drops
	Speed      float64 `yaml:"speed"`  // mp4 replay rate, 1 is real time
}

// OverlayConfig describes the caption drawn over every frame.
type OverlayConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Caption         string `yaml:"caption"`
	Credit          string `yaml:"credit"`
	BackgroundColor string `yaml:"background_color"`
	TextColor       string `yaml:"text_color"`
	AccentColor     string `yaml:"accent_color"`
}

// SinkConfig selects where frames go.
type SinkConfig struct {
	Kind     string `yaml:"kind"` // "null", "snapshot" or "mp4"
	Dir      string `yaml:"dir"`
	EveryNth int    `yaml:"every_nth"`
	Width    int    `yaml:"width"` // snapshot width, 0 keeps the frame size
	Output   string `yaml:"output"`
	Quality  string `yaml:"quality"` // "low", "medium" or "high"
}

// Sink kinds.
const (
	SinkNull     = "null"
	SinkSnapshot = "snapshot"
	SinkMP4      = "mp4"
)

// Upstream kinds.
const (
	UpstreamMP4     = "mp4"
	UpstreamBrowser = "browser"
)

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		DeviceName:    device.DefaultName,
		Width:         1920,
		Height:        1080,
		FrameRate:     10,
		PoolCapacity:  framepool.DefaultCapacity,
		FallbackColor: "#ff0000",
		Mode:          string(device.ModeTimer),

		SelectionFile:  "./kamishibai-selection.yaml",
		PollIntervalMs: 500,

		Upstream: UpstreamConfig{
			Kind:     UpstreamMP4,
			Headless: true,
			Quality:  80,
			Buffer:   2,
			Speed:    1,
		},
		Overlay: OverlayConfig{
			BackgroundColor: "#14141e",
			TextColor:       "#ffffff",
			AccentColor:     "#4ade80",
		},
		Sink: SinkConfig{
			Kind:     SinkNull,
			Dir:      "./frames",
			EveryNth: 10,
			Output:   "./kamishibai.mp4",
			Quality:  "medium",
		},

		LogLevel: "info",
	}
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid size %dx%d", c.Width, c.Height)
	}
	if c.FrameRate <= 0 || c.FrameRate > 240 {
		return fmt.Errorf("invalid frame rate %g", c.FrameRate)
	}
	if c.PoolCapacity < 0 {
		return fmt.Errorf("invalid pool capacity %d", c.PoolCapacity)
	}
	switch device.Mode(c.Mode) {
	case device.ModeTimer:
	case device.ModeUpstream:
		switch c.Upstream.Kind {
		case UpstreamMP4:
			if c.Upstream.Path == "" {
				return fmt.Errorf("upstream.path is required for mp4 upstream")
			}
		case UpstreamBrowser:
			if c.Upstream.URL == "" {
				return fmt.Errorf("upstream.url is required for browser upstream")
			}
		default:
			return fmt.Errorf("unknown upstream kind %q", c.Upstream.Kind)
		}
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.Upstream.Buffer < 0 {
		return fmt.Errorf("invalid upstream buffer %d", c.Upstream.Buffer)
	}
	if c.Upstream.Speed < 0 {
		return fmt.Errorf("invalid upstream speed %g", c.Upstream.Speed)
	}
	if c.Sink.Width < 0 {
		return fmt.Errorf("invalid snapshot width %d", c.Sink.Width)
	}
	switch c.Sink.Kind {
	case SinkNull, SinkSnapshot, SinkMP4:
	default:
		return fmt.Errorf("unknown sink kind %q", c.Sink.Kind)
	}
	return nil
}

// VideoFormat returns the negotiated output format.
func (c Config) VideoFormat() pipeline.VideoFormat {
	return pipeline.NewVideoFormat(c.Width, c.Height, c.FrameRate)
}

// PollInterval returns the selection polling interval.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// ToDeviceConfig converts Config to device.Config.
func (c Config) ToDeviceConfig() device.Config {
	cfg := device.DefaultConfig()
	if c.DeviceName != "" {
		cfg.Name = c.DeviceName
	}
	cfg.Format = c.VideoFormat()
	cfg.PoolCapacity = c.PoolCapacity
	cfg.FallbackColor = ParseColor(c.FallbackColor)
	cfg.Mode = device.Mode(c.Mode)
	return cfg
}

// OverlayTheme returns the caption theme with configured colours applied.
func (c Config) OverlayTheme() pipeline.OverlayTheme {
	theme := pipeline.DefaultOverlayTheme()
	if c.Overlay.BackgroundColor != "" {
		bg := color.RGBAModel.Convert(ParseColor(c.Overlay.BackgroundColor)).(color.RGBA)
		// Keep the band translucent so the picture shows through.
		theme.BackgroundColor = color.NRGBA{R: bg.R, G: bg.G, B: bg.B, A: 180}
	}
	if c.Overlay.TextColor != "" {
		theme.TextColor = ParseColor(c.Overlay.TextColor)
	}
	if c.Overlay.AccentColor != "" {
		theme.AccentColor = ParseColor(c.Overlay.AccentColor)
	}
	return theme
}

// QualityPreset names a JPEG quality level for recorded output.
type QualityPreset string

const (
	QualityLow    QualityPreset = "low"
	QualityMedium QualityPreset = "medium"
	QualityHigh   QualityPreset = "high"
)

// JPEGQuality returns the JPEG quality for the preset.
func (p QualityPreset) JPEGQuality() int {
	switch p {
	case QualityLow:
		return 60
	case QualityHigh:
		return 92
	default: // medium
		return 80
	}
}

// ParseColor parses a hex color string to color.Color.
func ParseColor(hex string) color.Color {
	if len(hex) == 0 {
		return color.Black
	}

	if hex[0] == '#' {
		hex = hex[1:]
	}

	if len(hex) != 6 {
		return color.Black
	}

	r := hexValue(hex[0])<<4 | hexValue(hex[1])
	g := hexValue(hex[2])<<4 | hexValue(hex[3])
	b := hexValue(hex[4])<<4 | hexValue(hex[5])

	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func hexValue(c byte) uint8 {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}
