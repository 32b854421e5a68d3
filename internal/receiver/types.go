package receiver

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultPort is the TCP port the scanner app listens on.
const DefaultPort = 8765

// Errors
var (
	ErrEmptyHost   = errors.New("empty host")
	ErrInvalidPort = errors.New("invalid port")
)

// ConnectionState is the receiver's link state.
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

// String returns the lower-case state name.
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// StateHandler is called on every state transition.
type StateHandler func(state ConnectionState)

// MessageHandler is called once per decoded, non-empty frame.
type MessageHandler func(text string)

// Endpoint is the address of the scanner device.
type Endpoint struct {
	Host string
	Port int // 0 means DefaultPort
}

// NewEndpoint returns an endpoint on the default port.
func NewEndpoint(host string) Endpoint {
	return Endpoint{Host: host, Port: DefaultPort}
}

// ParseEndpoint parses "host" or "host:port". IPv6 literals with a port must
// be bracketed.
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Endpoint{}, ErrEmptyHost
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// No port component
		return NewEndpoint(strings.Trim(s, "[]")), nil
	}
	if host == "" {
		return Endpoint{}, ErrEmptyHost
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidPort, portStr)
	}

	return Endpoint{Host: host, Port: port}, nil
}

// port returns the effective port.
func (e Endpoint) port() int {
	if e.Port == 0 {
		return DefaultPort
	}
	return e.Port
}

// Address returns the dialable "host:port" form.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.port()))
}

// String implements fmt.Stringer.
func (e Endpoint) String() string {
	return e.Address()
}

// Config holds receiver timing and buffer settings.
type Config struct {
	RetryDelay     time.Duration // Wait between failed dial attempts
	ReadPause      time.Duration // Pause after each processed read
	GracePeriod    time.Duration // Stop waits this long before forcing, then again after forcing
	DialTimeout    time.Duration // Per-attempt dial timeout (0 = OS default)
	ReadTimeout    time.Duration // Read deadline per read (0 = none, rely on peer EOF)
	ReadBufferSize int           // Max bytes per read, i.e. max frame size

	// NotifyEachAttempt re-emits Connecting after every failed dial instead
	// of staying silent until the link is up.
	NotifyEachAttempt bool
}

// DefaultConfig returns the timings of the desktop receiver.
func DefaultConfig() Config {
	return Config{
		RetryDelay:     500 * time.Millisecond,
		ReadPause:      50 * time.Millisecond,
		GracePeriod:    500 * time.Millisecond,
		DialTimeout:    5 * time.Second,
		ReadTimeout:    0,
		ReadBufferSize: 256,
	}
}

// withDefaults fills zero fields that would break the loop.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = d.GracePeriod
	}
	if c.ReadBufferSize <= HeaderSize {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.ReadPause < 0 {
		c.ReadPause = 0
	}
	return c
}

// Recorder receives instrumentation events from the manager.
// Implementations must be safe for concurrent use and must not block.
type Recorder interface {
	StateChanged(state ConnectionState)
	DialAttempt(err error)
	FrameReceived(info FrameInfo)
	ReadFailed(err error, n int)
	Stopped(voluntary bool, elapsed time.Duration)
}

// nopRecorder discards everything.
type nopRecorder struct{}

func (nopRecorder) StateChanged(ConnectionState) {}
func (nopRecorder) DialAttempt(error) {}
func (nopRecorder) FrameReceived(FrameInfo) {}
func (nopRecorder) ReadFailed(error, int) {}
func (nopRecorder) Stopped(bool, time.Duration) {}
