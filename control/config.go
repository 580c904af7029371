// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Configuration: defaults, then an optional YAML file, then environment overrides.

package control

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/momentics/hioload-pw/api"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HIOLOAD_PW_"

// Config holds parameters immutable per run.
type Config struct {
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"` // text or json

	Remote     string `yaml:"remote" env:"REMOTE"`           // service remote name, empty for default
	DumpBinary string `yaml:"dump_binary" env:"DUMP_BINARY"` // registry monitor executable

	InvokeQueueSize int `yaml:"invoke_queue_size" env:"INVOKE_QUEUE_SIZE"`
	WorkerCPU       int `yaml:"worker_cpu" env:"WORKER_CPU"` // -1 leaves workers unpinned
	FramePoolSlabs  int `yaml:"frame_pool_slabs" env:"FRAME_POOL_SLABS"`

	MetricsAddr       string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	NATSURL           string `yaml:"nats_url" env:"NATS_URL"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix" env:"NATS_SUBJECT_PREFIX"`

	Capture CaptureConfig `yaml:"capture" envPrefix:"CAPTURE_"`
}

// CaptureConfig describes the capture stream envelope in text form.
type CaptureConfig struct {
	Target       string   `yaml:"target" env:"TARGET"`
	Formats      []string `yaml:"formats" env:"FORMATS" envSeparator:","`
	Width        uint32   `yaml:"width" env:"WIDTH"`
	Height       uint32   `yaml:"height" env:"HEIGHT"`
	MinWidth     uint32   `yaml:"min_width" env:"MIN_WIDTH"`
	MinHeight    uint32   `yaml:"min_height" env:"MIN_HEIGHT"`
	MaxWidth     uint32   `yaml:"max_width" env:"MAX_WIDTH"`
	MaxHeight    uint32   `yaml:"max_height" env:"MAX_HEIGHT"`
	Framerate    string   `yaml:"framerate" env:"FRAMERATE"`
	MinFramerate string   `yaml:"min_framerate" env:"MIN_FRAMERATE"`
	MaxFramerate string   `yaml:"max_framerate" env:"MAX_FRAMERATE"`
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		DumpBinary:        "pw-dump",
		InvokeQueueSize:   128,
		WorkerCPU:         -1,
		FramePoolSlabs:    8,
		MetricsAddr:       ":9464",
		NATSSubjectPrefix: "pw",
		Capture: CaptureConfig{
			Formats:      []string{"RGB", "RGBA", "RGBx", "BGRx", "YUY2", "I420"},
			Width:        320,
			Height:       240,
			MinWidth:     1,
			MinHeight:    1,
			MaxWidth:     4096,
			MaxHeight:    4096,
			Framerate:    "25/1",
			MinFramerate: "0/1",
			MaxFramerate: "1000/1",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (if non-empty) and
// HIOLOAD_PW_* environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return api.Wrap(api.ErrInvalidArgument, "config", fmt.Errorf("log_format %q", c.LogFormat))
	}
	if c.InvokeQueueSize <= 0 {
		return api.Wrap(api.ErrInvalidArgument, "config", fmt.Errorf("invoke_queue_size %d", c.InvokeQueueSize))
	}
	if c.FramePoolSlabs < 0 {
		return api.Wrap(api.ErrInvalidArgument, "config", fmt.Errorf("frame_pool_slabs %d", c.FramePoolSlabs))
	}
	_, err := c.Capture.Constraints()
	return err
}

// Constraints converts the capture envelope into api.FormatConstraints.
func (c CaptureConfig) Constraints() (api.FormatConstraints, error) {
	out := api.FormatConstraints{
		MediaType:    api.MediaTypeVideo,
		MediaSubtype: api.MediaSubtypeRaw,
		Size: api.SizeRange{
			Default: api.Rectangle{Width: c.Width, Height: c.Height},
			Min:     api.Rectangle{Width: c.MinWidth, Height: c.MinHeight},
			Max:     api.Rectangle{Width: c.MaxWidth, Height: c.MaxHeight},
		},
	}
	for _, name := range c.Formats {
		f, err := api.ParseVideoFormat(strings.TrimSpace(name))
		if err != nil {
			return out, err
		}
		out.Formats = append(out.Formats, f)
	}
	var err error
	if out.Framerate.Default, err = ParseFraction(c.Framerate); err != nil {
		return out, err
	}
	if out.Framerate.Min, err = ParseFraction(c.MinFramerate); err != nil {
		return out, err
	}
	if out.Framerate.Max, err = ParseFraction(c.MaxFramerate); err != nil {
		return out, err
	}
	return out, out.Validate()
}

// ParseFraction parses "num/denom" or a bare integer.
func ParseFraction(s string) (api.Fraction, error) {
	num, denom, found := strings.Cut(strings.TrimSpace(s), "/")
	if !found {
		denom = "1"
	}
	n, err := strconv.ParseUint(num, 10, 32)
	if err != nil {
		return api.Fraction{}, api.Wrap(api.ErrInvalidArgument, "ParseFraction", fmt.Errorf("%q: %w", s, err))
	}
	d, err := strconv.ParseUint(denom, 10, 32)
	if err != nil || d == 0 {
		return api.Fraction{}, api.Wrap(api.ErrInvalidArgument, "ParseFraction", fmt.Errorf("%q: bad denominator", s))
	}
	return api.Fraction{Num: uint32(n), Denom: uint32(d)}, nil
}
