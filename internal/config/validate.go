package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
// The receiver host is optional here; it can also come from flags or settings.
func (c *Config) Validate() error {
	r := c.Receiver
	if r.Port < 1 || r.Port > 65535 {
		return fmt.Errorf("receiver.port must be between 1 and 65535, got %d", r.Port)
	}
	if r.RetryDelay <= 0 {
		return errors.New("receiver.retry_delay must be > 0")
	}
	if r.ReadPause < 0 {
		return errors.New("receiver.read_pause must be >= 0")
	}
	if r.GracePeriod <= 0 {
		return errors.New("receiver.grace_period must be > 0")
	}
	if r.ReadTimeout < 0 {
		return errors.New("receiver.read_timeout must be >= 0")
	}
	if r.ReadBufferSize < 3 {
		return fmt.Errorf("receiver.read_buffer_size must be >= 3, got %d", r.ReadBufferSize)
	}

	if c.Router.BufferSize < 1 {
		return errors.New("router.buffer_size must be >= 1")
	}

	if c.History.Enabled {
		if err := c.History.Database.validate("history.database"); err != nil {
			return err
		}
		if c.History.BatchSize < 1 {
			return errors.New("history.batch_size must be >= 1")
		}
		if c.History.FlushInterval <= 0 {
			return errors.New("history.flush_interval must be > 0")
		}
	}

	if c.Relay.Enabled {
		if !strings.HasPrefix(c.Relay.Path, "/") {
			return fmt.Errorf("relay.path must start with /, got %q", c.Relay.Path)
		}
		if c.HTTP.Port == 0 {
			return errors.New("relay.enabled requires http.port")
		}
	}

	if c.NATS.Enabled && c.NATS.Subject == "" {
		return errors.New("nats.subject is required")
	}

	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 0 and 65535, got %d", c.HTTP.Port)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// ParseLevel maps log.level to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level %q is not one of debug, info, warn, error", level)
	}
}
