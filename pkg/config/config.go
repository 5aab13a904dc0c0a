package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/fa15bridge/internal/scoring"
	"github.com/srg/fa15bridge/internal/sink"
)

// Config holds application configuration
type Config struct {
	LogLevel    string         `yaml:"log_level" default:"info"`
	Device      DeviceConfig   `yaml:"device"`
	Output      OutputConfig   `yaml:"output"`
	Transmit    TransmitConfig `yaml:"transmit"`
	Console     ConsoleConfig  `yaml:"console"`
	MetricsAddr string         `yaml:"metrics_addr"` // empty disables the metrics endpoint
}

// DeviceConfig selects and connects to the apparatus.
type DeviceConfig struct {
	Address        string        `yaml:"address"`
	NameFilter     string        `yaml:"name_filter" default:"FA15"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	ReadTimeout    time.Duration `yaml:"read_timeout" default:"5s"`
}

// OutputConfig selects where frames are written.
type OutputConfig struct {
	Sink          string        `yaml:"sink" default:"debug"` // serial, pty or debug
	Port          string        `yaml:"port"`
	BaudRate      int           `yaml:"baud_rate" default:"9600"`
	DataBits      int           `yaml:"data_bits" default:"8"`
	StopBits      int           `yaml:"stop_bits" default:"1"`
	Parity        string        `yaml:"parity" default:"N"`
	WriteTimeout  time.Duration `yaml:"write_timeout" default:"1s"`
	PTYSymlink    string        `yaml:"pty_symlink"`
	PTYBufferSize int           `yaml:"pty_buffer_size" default:"1024"`
	ASCIIHex      bool          `yaml:"ascii_hex"`
}

// TransmitConfig controls the periodic frame output.
type TransmitConfig struct {
	Interval      time.Duration `yaml:"interval" default:"1s"`
	ScoreEncoding string        `yaml:"score_encoding" default:"raw"` // raw or bcd
}

// ConsoleConfig controls the notification display.
type ConsoleConfig struct {
	Quiet      bool   `yaml:"quiet"`
	NoColor    bool   `yaml:"no_color"`
	BufferSize uint32 `yaml:"buffer_size" default:"256"`
	ShowFrames bool   `yaml:"show_frames"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML configuration file. Keys absent from the file keep their defaults; unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	// explicit zero values in the file fall back to defaults
	defaults.SetDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}

	kind, err := sink.ParseKind(c.Output.Sink)
	if err != nil {
		errs = append(errs, fmt.Errorf("output.sink: %w", err))
	}
	if kind == sink.KindSerial && strings.TrimSpace(c.Output.Port) == "" {
		errs = append(errs, errors.New("output.port: required for the serial sink"))
	}
	if c.Output.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("output.baud_rate: must be positive, got %d", c.Output.BaudRate))
	}
	if c.Output.DataBits < 5 || c.Output.DataBits > 8 {
		errs = append(errs, fmt.Errorf("output.data_bits: must be 5-8, got %d", c.Output.DataBits))
	}
	if c.Output.StopBits != 1 && c.Output.StopBits != 2 {
		errs = append(errs, fmt.Errorf("output.stop_bits: must be 1 or 2, got %d", c.Output.StopBits))
	}
	switch strings.ToUpper(c.Output.Parity) {
	case "N", "E", "O":
	default:
		errs = append(errs, fmt.Errorf("output.parity: must be N, E or O, got %q", c.Output.Parity))
	}

	if c.Transmit.Interval <= 0 {
		errs = append(errs, fmt.Errorf("transmit.interval: must be positive, got %v", c.Transmit.Interval))
	}
	if _, err := scoring.ParseScoreEncoding(c.Transmit.ScoreEncoding); err != nil {
		errs = append(errs, fmt.Errorf("transmit.score_encoding: %w", err))
	}

	if c.Device.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("device.connect_timeout: must be positive, got %v", c.Device.ConnectTimeout))
	}
	if c.Console.BufferSize == 0 || c.Console.BufferSize > 64*1024 {
		errs = append(errs, fmt.Errorf("console.buffer_size: must be 1-65536, got %d", c.Console.BufferSize))
	}

	return errors.Join(errs...)
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// ScoreEncoding returns the parsed score encoding, falling back to raw.
func (c *Config) ScoreEncoding() scoring.ScoreEncoding {
	enc, err := scoring.ParseScoreEncoding(c.Transmit.ScoreEncoding)
	if err != nil {
		return scoring.ScoreRaw
	}
	return enc
}

// SinkOptions converts the output section into sink options writing debug output to out.
func (c *Config) SinkOptions(out io.Writer) *sink.Options {
	kind, err := sink.ParseKind(c.Output.Sink)
	if err != nil {
		kind = sink.KindDebug
	}
	return &sink.Options{
		Kind:          kind,
		Port:          c.Output.Port,
		BaudRate:      c.Output.BaudRate,
		DataBits:      c.Output.DataBits,
		StopBits:      c.Output.StopBits,
		Parity:        strings.ToUpper(c.Output.Parity),
		Timeout:       c.Output.WriteTimeout,
		Symlink:       c.Output.PTYSymlink,
		PTYBufferSize: c.Output.PTYBufferSize,
		ASCIIHex:      c.Output.ASCIIHex,
		Out:           out,
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
