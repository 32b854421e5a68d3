// Package publish sends scans to a NATS subject for downstream services.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rickgao/esr-receiver/internal/router"
)

const (
	clientName    = "esr-receiver"
	reconnectWait = 2 * time.Second
	drainTimeout  = 5 * time.Second
)

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Scan is the published payload.
type Scan struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Source     string    `json:"source,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Publisher is a router.Sink that publishes scan events.
type Publisher struct {
	conn    Conn
	subject string
	logger  *slog.Logger
}

// Connect dials NATS and returns a Publisher for subject. The client
// reconnects on its own for as long as the process runs.
func Connect(url, subject string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "nats")

	conn, err := nats.Connect(url,
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.DrainTimeout(drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Info("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}

	log.Info("nats connected", "url", conn.ConnectedUrl(), "subject", subject)
	return New(conn, subject, logger), nil
}

// New wraps an existing connection.
func New(conn Conn, subject string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, subject: subject, logger: logger}
}

// Name implements router.Sink.
func (p *Publisher) Name() string { return "nats" }

// Handle implements router.Sink. Only scans are published.
func (p *Publisher) Handle(_ context.Context, ev router.Event) error {
	if ev.Kind != router.KindScan {
		return nil
	}
	data, err := encodeScan(ev)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}

func encodeScan(ev router.Event) ([]byte, error) {
	data, err := json.Marshal(Scan{
		ID:         ev.ID.String(),
		Text:       ev.Text,
		Source:     ev.Source,
		ReceivedAt: ev.ReceivedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode scan: %w", err)
	}
	return data, nil
}
