// Package output prints scans for the local user.
package output

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/rickgao/esr-receiver/internal/router"
)

// Console writes one line per scan. State events are logged instead of printed
// so stdout carries scan text only.
type Console struct {
	w        io.Writer
	appendCR bool
	logger   *slog.Logger

	mu sync.Mutex
}

// NewConsole creates a console sink. With appendCR each line ends in "\r\n",
// which keyboard-wedge style consumers treat as ENTER.
func NewConsole(w io.Writer, appendCR bool, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{w: w, appendCR: appendCR, logger: logger}
}

// Name implements router.Sink.
func (c *Console) Name() string { return "console" }

// Handle implements router.Sink.
func (c *Console) Handle(_ context.Context, ev router.Event) error {
	switch ev.Kind {
	case router.KindState:
		c.logger.Info("scanner link", "state", ev.State, "source", ev.Source)
		return nil
	case router.KindScan:
		return c.print(ev.Text)
	default:
		return nil
	}
}

func (c *Console) print(text string) error {
	line := text
	if c.appendCR {
		line += "\r"
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintln(c.w, line); err != nil {
		return fmt.Errorf("write scan: %w", err)
	}
	return nil
}
