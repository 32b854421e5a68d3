package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/rickgao/esr-receiver/internal/receiver"
)

// errNoPeer is returned by Send while no receiver is connected.
var errNoPeer = errors.New("no receiver connected")

// sender plays the phone: it accepts receivers and writes frames to the most
// recent one. A new connection replaces the previous one.
type sender struct {
	ln     net.Listener
	logger *slog.Logger

	mu   sync.Mutex
	peer net.Conn
}

func listen(addr string, logger *slog.Logger) (*sender, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &sender{ln: ln, logger: logger}, nil
}

// Addr returns the listening address.
func (s *sender) Addr() net.Addr {
	return s.ln.Addr()
}

// acceptLoop runs until ctx is cancelled or the listener fails.
func (s *sender) acceptLoop(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.ln.Close() })
	defer stop()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.logger.Info("receiver connected", "remote", conn.RemoteAddr())
		s.setPeer(conn)
	}
}

// Send writes text as one frame to the current receiver.
func (s *sender) Send(text string) error {
	frame, err := receiver.EncodeFrame(text)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.peer == nil {
		return errNoPeer
	}
	if _, err := s.peer.Write(frame); err != nil {
		s.peer.Close()
		s.peer = nil
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Drop closes the current receiver connection, as a phone leaving Wi-Fi would.
func (s *sender) Drop() {
	s.setPeer(nil)
}

// Close stops accepting and closes the current connection.
func (s *sender) Close() error {
	s.Drop()
	return s.ln.Close()
}

func (s *sender) setPeer(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer != nil {
		s.peer.Close()
	}
	s.peer = conn
}
