package router

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/esr-receiver/internal/receiver"
)

// Errors
var (
	ErrAlreadyRunning = errors.New("router already running")
	ErrNotRunning     = errors.New("router not running")
)

// Kind distinguishes state events from scans.
type Kind string

const (
	KindState Kind = "state"
	KindScan  Kind = "scan"
)

// Event is one receiver notification, stamped on arrival.
type Event struct {
	ID         uuid.UUID
	Kind       Kind
	State      receiver.ConnectionState // KindState only
	Text       string                   // KindScan only
	Source     string                   // Scanner endpoint, if known
	ReceivedAt time.Time
}

// Sink consumes events. Handle is called from a single goroutine, in order.
type Sink interface {
	Name() string
	Handle(ctx context.Context, ev Event) error
}

// Config holds configuration for the Router.
type Config struct {
	BufferSize  int           // Initial queue capacity. Default: 64
	SinkTimeout time.Duration // Per-sink deadline for one event. Default: 5s
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize:  64,
		SinkTimeout: 5 * time.Second,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	Received   int64 // Events accepted from the receiver
	Dropped    int64 // Events that arrived after Stop
	Delivered  int64 // Successful sink calls
	SinkErrors int64 // Failed sink calls
	Buffer     BufferStats
}
