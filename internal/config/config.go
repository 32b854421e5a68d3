package config

import (
	"time"

	"github.com/rickgao/esr-receiver/internal/receiver"
)

// Config is the root configuration of esrreceiver.
type Config struct {
	Receiver ReceiverConfig `yaml:"receiver"`
	Output   OutputConfig   `yaml:"output"`
	Router   RouterConfig   `yaml:"router"`
	History  HistoryConfig  `yaml:"history"`
	Relay    RelayConfig    `yaml:"relay"`
	NATS     NATSConfig     `yaml:"nats"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
}

// ReceiverConfig holds the scanner link settings.
type ReceiverConfig struct {
	Host              string        `yaml:"host"` // Empty = use remembered settings or -host
	Port              int           `yaml:"port"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	ReadPause         time.Duration `yaml:"read_pause"`
	GracePeriod       time.Duration `yaml:"grace_period"`
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"` // 0 = wait for the peer
	ReadBufferSize    int           `yaml:"read_buffer_size"`
	NotifyEachAttempt bool          `yaml:"notify_each_attempt"`
}

// OutputConfig controls how scans are written to stdout.
type OutputConfig struct {
	Console  *bool `yaml:"console"`   // nil = true
	AppendCR *bool `yaml:"append_cr"` // nil = use the remembered setting
}

// RouterConfig holds dispatch settings.
type RouterConfig struct {
	BufferSize int `yaml:"buffer_size"` // Initial event buffer capacity
}

// HistoryConfig holds the scan history store settings.
type HistoryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RelayConfig holds websocket relay settings.
type RelayConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Path           string   `yaml:"path"`
	AllowedOrigins []string `yaml:"allowed_origins"` // Empty = same host only
	ClientBuffer   int      `yaml:"client_buffer"`
}

// NATSConfig holds the optional NATS publisher settings.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// HTTPConfig holds the health/metrics/relay listener settings.
type HTTPConfig struct {
	Port        int    `yaml:"port"` // 0 = disabled
	MetricsPath string `yaml:"metrics_path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ConsoleEnabled reports whether scans are printed to stdout.
func (o OutputConfig) ConsoleEnabled() bool {
	return o.Console == nil || *o.Console
}

// ReceiverConfig converts the YAML settings to receiver.Config.
func (c *Config) ReceiverConfig() receiver.Config {
	return receiver.Config{
		RetryDelay:        c.Receiver.RetryDelay,
		ReadPause:         c.Receiver.ReadPause,
		GracePeriod:       c.Receiver.GracePeriod,
		DialTimeout:       c.Receiver.DialTimeout,
		ReadTimeout:       c.Receiver.ReadTimeout,
		ReadBufferSize:    c.Receiver.ReadBufferSize,
		NotifyEachAttempt: c.Receiver.NotifyEachAttempt,
	}
}

// Endpoint returns the configured endpoint; ok is false when no host is set.
func (c *Config) Endpoint() (ep receiver.Endpoint, ok bool) {
	if c.Receiver.Host == "" {
		return receiver.Endpoint{}, false
	}
	return receiver.Endpoint{Host: c.Receiver.Host, Port: c.Receiver.Port}, true
}
