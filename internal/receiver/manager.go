package receiver

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DialFunc opens a stream connection. net.Dialer.DialContext satisfies it.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Option configures a Manager.
type Option func(*Manager)

// WithStateHandler installs the state-change callback.
func WithStateHandler(h StateHandler) Option {
	return func(m *Manager) { m.onState = h }
}

// WithMessageHandler installs the message callback.
func WithMessageHandler(h MessageHandler) Option {
	return func(m *Manager) { m.onMessage = h }
}

// WithRecorder installs an instrumentation sink.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithDialer replaces the TCP dialer.
func WithDialer(d DialFunc) Option {
	return func(m *Manager) {
		if d != nil {
			m.dial = d
		}
	}
}

// Manager keeps a single connection to a scanner device alive and turns
// what it sends into notifications.
//
// Handlers run synchronously on whichever goroutine makes the transition:
// the caller of Start/Stop or the receive goroutine. They must return quickly
// and must not call Start or Stop themselves.
type Manager struct {
	cfg      Config
	logger   *slog.Logger
	dial     DialFunc
	recorder Recorder

	onState   StateHandler
	onMessage MessageHandler

	// Serializes Start and Stop
	mu      sync.Mutex
	session *session

	// Serializes notifications so observers see transitions in order
	emitMu sync.Mutex
	state  atomic.Int32
}

// session is one Start..Stop cycle: the receive goroutine and its socket.
type session struct {
	id       string
	endpoint Endpoint
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	connMu sync.Mutex
	conn   net.Conn

	// Set once Stop gives up on the session; guarded by Manager.emitMu
	detached bool
}

// NewManager creates a stopped Manager.
func NewManager(cfg Config, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	dialer := &net.Dialer{}
	m := &Manager{
		cfg:      cfg.withDefaults(),
		logger:   logger,
		dial:     dialer.DialContext,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start emits Connecting and begins connecting to ep in the background.
// It returns false without side effects if a session is already active.
func (m *Manager) Start(ep Endpoint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		m.logger.Warn("receiver already running",
			"endpoint", m.session.endpoint,
			"requested", ep,
		)
		return false
	}

	if ep.Port == 0 {
		ep.Port = DefaultPort
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:       uuid.NewString(),
		endpoint: ep,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.logger = m.logger.With("session", s.id, "endpoint", ep.String())
	m.session = s

	m.emit(s, Connecting)
	go m.run(s)

	s.logger.Info("receiver started")
	return true
}

// Stop ends the active session, if any, and always finishes by emitting
// Disconnected. It waits up to GracePeriod for the receive goroutine to
// notice the request, then interrupts its socket and waits once more.
//
// The result reports whether the goroutine exited on its own within the
// first grace period.
func (m *Manager) Stop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	defer func() {
		m.session = nil
		m.finish(s)
	}()

	if s == nil {
		return true
	}

	start := time.Now()
	s.cancel()

	voluntary := waitDone(s.done, m.cfg.GracePeriod)
	if !voluntary {
		s.logger.Warn("receiver did not stop in time, interrupting socket",
			"grace_period", m.cfg.GracePeriod,
		)
		s.interrupt()
		if !waitDone(s.done, m.cfg.GracePeriod) {
			s.logger.Error("receiver goroutine still running, detaching it")
		}
	}

	s.closeConn()

	elapsed := time.Since(start)
	m.recorder.Stopped(voluntary, elapsed)
	s.logger.Info("receiver stopped",
		"voluntary", voluntary,
		"elapsed", elapsed,
	)
	return voluntary
}

// State returns the last emitted state.
func (m *Manager) State() ConnectionState {
	return ConnectionState(m.state.Load())
}

// Endpoint returns the endpoint of the active session.
func (m *Manager) Endpoint() (Endpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Endpoint{}, false
	}
	return m.session.endpoint, true
}

// run is the receive goroutine: connect, read until the link drops, repeat.
func (m *Manager) run(s *session) {
	defer close(s.done)
	defer s.closeConn()

	for {
		conn, ok := m.connect(s)
		if !ok {
			return
		}
		if !m.receive(s, conn) {
			return
		}
	}
}

// connect dials until it succeeds or the session is cancelled.
func (m *Manager) connect(s *session) (net.Conn, bool) {
	addr := s.endpoint.Address()

	for {
		if s.ctx.Err() != nil {
			return nil, false
		}

		conn, err := m.dialOnce(s.ctx, addr)
		m.recorder.DialAttempt(err)

		if err == nil {
			s.setConn(conn)
			if s.ctx.Err() != nil {
				return nil, false
			}
			if !m.emit(s, Connected) {
				return nil, false
			}
			s.logger.Info("connected", "remote", conn.RemoteAddr())
			return conn, true
		}

		s.logger.Debug("connect failed, retrying",
			"error", err,
			"retry_in", m.cfg.RetryDelay,
		)
		if m.cfg.NotifyEachAttempt {
			m.emit(s, Connecting)
		}
		if !sleep(s.ctx, m.cfg.RetryDelay) {
			return nil, false
		}
	}
}

func (m *Manager) dialOnce(ctx context.Context, addr string) (net.Conn, error) {
	if m.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.DialTimeout)
		defer cancel()
	}
	return m.dial(ctx, "tcp", addr)
}

// receive reads frames from conn. It returns true when the link dropped and
// a reconnect should follow, false when the session was cancelled.
func (m *Manager) receive(s *session, conn net.Conn) bool {
	buf := make([]byte, m.cfg.ReadBufferSize)

	for {
		if s.ctx.Err() != nil {
			return false
		}

		if m.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(m.cfg.ReadTimeout))
		}

		n, err := conn.Read(buf)

		// An interrupted read after Stop is not a dropped link
		if s.ctx.Err() != nil {
			return false
		}

		if err != nil || n < HeaderSize {
			m.recorder.ReadFailed(err, n)
			s.logger.Info("connection lost, reconnecting",
				"error", err,
				"bytes", n,
			)
			m.emit(s, Connecting)
			s.closeConn()
			return true
		}

		info := DecodeFrame(buf[:n])
		m.recorder.FrameReceived(info)
		if info.Truncated() {
			s.logger.Warn("frame shorter than announced",
				"declared", info.Declared,
				"received", info.Payload,
			)
		}
		if info.Text != "" {
			m.emitMessage(s, info.Text)
		}

		if !sleep(s.ctx, m.cfg.ReadPause) {
			return false
		}
	}
}

// emit records and publishes a state change unless s has been detached.
func (m *Manager) emit(s *session, state ConnectionState) bool {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	if s != nil && s.detached {
		return false
	}

	m.state.Store(int32(state))
	m.recorder.StateChanged(state)
	if m.onState != nil {
		m.onState(state)
	}
	return true
}

func (m *Manager) emitMessage(s *session, text string) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	if s.detached {
		return
	}
	if m.onMessage != nil {
		m.onMessage(text)
	}
}

// finish detaches s so it can no longer notify, then emits Disconnected.
func (m *Manager) finish(s *session) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	if s != nil {
		s.detached = true
	}

	m.state.Store(int32(Disconnected))
	m.recorder.StateChanged(Disconnected)
	if m.onState != nil {
		m.onState(Disconnected)
	}
}

func (s *session) setConn(conn net.Conn) {
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
}

func (s *session) closeConn() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// interrupt unblocks a pending Read by expiring its deadline and closing the socket.
func (s *session) interrupt() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		_ = s.conn.SetReadDeadline(time.Now())
		_ = s.conn.Close()
		s.conn = nil
	}
}

// sleep waits for d or until ctx is done. It reports whether the wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// waitDone waits up to d for done to close.
func waitDone(done <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
