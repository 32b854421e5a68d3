package config

import (
	"time"

	"github.com/rickgao/esr-receiver/internal/receiver"
)

// Default values for optional configuration fields.
const (
	DefaultPort           = receiver.DefaultPort
	DefaultRetryDelay     = 500 * time.Millisecond
	DefaultReadPause      = 50 * time.Millisecond
	DefaultGracePeriod    = 500 * time.Millisecond
	DefaultDialTimeout    = 5 * time.Second
	DefaultReadBufferSize = 256
	DefaultRouterBuffer   = 64
	DefaultDBPort         = 5432
	DefaultDBSSLMode      = "prefer"
	DefaultMaxConns       = 4
	DefaultMinConns       = 1
	DefaultBatchSize      = 100
	DefaultFlushInterval  = 1 * time.Second
	DefaultRelayPath      = "/ws"
	DefaultClientBuffer   = 64
	DefaultNATSURL        = "nats://127.0.0.1:4222"
	DefaultNATSSubject    = "esr.scans"
	DefaultHTTPPort       = 9090
	DefaultMetricsPath    = "/metrics"
	DefaultLogLevel       = "info"
)

// ApplyDefaults fills every unset optional field.
func (c *Config) ApplyDefaults() {
	// Receiver defaults
	if c.Receiver.Port == 0 {
		c.Receiver.Port = DefaultPort
	}
	if c.Receiver.RetryDelay == 0 {
		c.Receiver.RetryDelay = DefaultRetryDelay
	}
	if c.Receiver.ReadPause == 0 {
		c.Receiver.ReadPause = DefaultReadPause
	}
	if c.Receiver.GracePeriod == 0 {
		c.Receiver.GracePeriod = DefaultGracePeriod
	}
	if c.Receiver.DialTimeout == 0 {
		c.Receiver.DialTimeout = DefaultDialTimeout
	}
	if c.Receiver.ReadBufferSize == 0 {
		c.Receiver.ReadBufferSize = DefaultReadBufferSize
	}

	// Router defaults
	if c.Router.BufferSize == 0 {
		c.Router.BufferSize = DefaultRouterBuffer
	}

	// History defaults
	applyDBDefaults(&c.History.Database)
	if c.History.BatchSize == 0 {
		c.History.BatchSize = DefaultBatchSize
	}
	if c.History.FlushInterval == 0 {
		c.History.FlushInterval = DefaultFlushInterval
	}

	// Relay defaults
	if c.Relay.Path == "" {
		c.Relay.Path = DefaultRelayPath
	}
	if c.Relay.ClientBuffer == 0 {
		c.Relay.ClientBuffer = DefaultClientBuffer
	}

	// NATS defaults
	if c.NATS.URL == "" {
		c.NATS.URL = DefaultNATSURL
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = DefaultNATSSubject
	}

	// HTTP defaults
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.HTTP.MetricsPath == "" {
		c.HTTP.MetricsPath = DefaultMetricsPath
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
