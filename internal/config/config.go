package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "100ms" or "10s".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config mirrors config/config.yaml.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
	Serial   SerialConfig   `yaml:"serial"`
	Polling  PollingConfig  `yaml:"polling"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | text
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SerialConfig carries the RTU line parameters shared by every slave on
// the bus.
type SerialConfig struct {
	Port     string   `yaml:"port"`
	BaudRate int      `yaml:"baud_rate"`
	DataBits int      `yaml:"data_bits"`
	Parity   string   `yaml:"parity"`
	StopBits int      `yaml:"stop_bits"`
	Timeout  Duration `yaml:"timeout"`
}

type PollingConfig struct {
	Interval        Duration `yaml:"interval"`
	PersistInterval Duration `yaml:"persist_interval"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

var validBaudRates = map[int]bool{9600: true, 19200: true, 38400: true, 57600: true, 115200: true}

// Load reads and validates the YAML configuration file.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Database.Path == "" {
		c.Database.Path = "terminal.sqlite"
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = 9600
	}
	if c.Serial.DataBits == 0 {
		c.Serial.DataBits = 8
	}
	if c.Serial.Parity == "" {
		c.Serial.Parity = "N"
	}
	if c.Serial.StopBits == 0 {
		c.Serial.StopBits = 1
	}
	if c.Serial.Timeout.Duration <= 0 {
		c.Serial.Timeout.Duration = time.Second
	}
	if c.Polling.Interval.Duration <= 0 {
		c.Polling.Interval.Duration = 100 * time.Millisecond
	}
	if c.Polling.PersistInterval.Duration <= 0 {
		c.Polling.PersistInterval.Duration = 10 * time.Second
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9090"
	}
}

// Validate rejects serial parameters the bus cannot carry.
func (c *Config) Validate() error {
	if c.Serial.Port == "" {
		return fmt.Errorf("serial.port is required")
	}
	if !validBaudRates[c.Serial.BaudRate] {
		return fmt.Errorf("serial.baud_rate %d not in {9600, 19200, 38400, 57600, 115200}", c.Serial.BaudRate)
	}
	switch c.Serial.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("serial.parity %q must be N, E or O", c.Serial.Parity)
	}
	if c.Serial.StopBits != 1 && c.Serial.StopBits != 2 {
		return fmt.Errorf("serial.stop_bits %d must be 1 or 2", c.Serial.StopBits)
	}
	if c.Serial.DataBits != 7 && c.Serial.DataBits != 8 {
		return fmt.Errorf("serial.data_bits %d must be 7 or 8", c.Serial.DataBits)
	}
	return nil
}
