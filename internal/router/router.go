package router

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/esr-receiver/internal/receiver"
)

// Router moves receiver notifications off the receive goroutine and fans
// them out to sinks.
type Router struct {
	cfg    Config
	logger *slog.Logger
	sinks  []Sink
	buf    *GrowableBuffer[Event]

	source atomic.Value // string
	state  atomic.Int32

	// Lifecycle
	mu      sync.Mutex
	started bool
	done    chan struct{}

	// Stats
	received   atomic.Int64
	dropped    atomic.Int64
	delivered  atomic.Int64
	sinkErrors atomic.Int64
}

// New creates a Router delivering to sinks in the order given.
func New(cfg Config, logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	d := DefaultConfig()
	if cfg.BufferSize < 1 {
		cfg.BufferSize = d.BufferSize
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = d.SinkTimeout
	}

	r := &Router{
		cfg:    cfg,
		logger: logger,
		sinks:  sinks,
		buf:    NewGrowableBuffer[Event](cfg.BufferSize),
	}
	r.source.Store("")
	return r
}

// SetSource records the endpoint stamped on subsequent events.
func (r *Router) SetSource(source string) {
	r.source.Store(source)
}

// OnState is a receiver.StateHandler.
func (r *Router) OnState(state receiver.ConnectionState) {
	r.state.Store(int32(state))
	r.enqueue(Event{Kind: KindState, State: state})
}

// OnMessage is a receiver.MessageHandler.
func (r *Router) OnMessage(text string) {
	r.enqueue(Event{Kind: KindScan, Text: text})
}

// State returns the last state seen.
func (r *Router) State() receiver.ConnectionState {
	return receiver.ConnectionState(r.state.Load())
}

func (r *Router) enqueue(ev Event) {
	ev.ID = uuid.New()
	ev.Source = r.source.Load().(string)
	ev.ReceivedAt = time.Now().UTC()

	if !r.buf.Send(ev) {
		r.dropped.Add(1)
		r.logger.Debug("router stopped, dropping event", "kind", ev.Kind)
		return
	}
	r.received.Add(1)
}

// Start begins delivering events. Cancelling ctx has the same effect as Stop
// without the wait.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrAlreadyRunning
	}
	r.started = true
	r.done = make(chan struct{})

	context.AfterFunc(ctx, r.buf.Close)
	go r.dispatchLoop(context.WithoutCancel(ctx))

	names := make([]string, len(r.sinks))
	for i, s := range r.sinks {
		names[i] = s.Name()
	}
	r.logger.Info("router started",
		"sinks", names,
		"buffer", r.cfg.BufferSize,
	)
	return nil
}

// Stop stops accepting events and waits, bounded by ctx, for the queue to drain.
func (r *Router) Stop(ctx context.Context) error {
	r.mu.Lock()
	started, done := r.started, r.done
	r.mu.Unlock()

	if !started {
		return ErrNotRunning
	}

	if r.buf.Closed() {
		r.logger.Debug("router queue already closed", "pending", r.buf.Len())
	} else {
		r.logger.Info("stopping router", "pending", r.buf.Len())
		r.buf.Close()
	}

	select {
	case <-done:
		r.logger.Info("router stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("router stop timed out", "pending", r.buf.Len())
		return ctx.Err()
	}
}

// Stats returns current statistics.
func (r *Router) Stats() Stats {
	return Stats{
		Received:   r.received.Load(),
		Dropped:    r.dropped.Load(),
		Delivered:  r.delivered.Load(),
		SinkErrors: r.sinkErrors.Load(),
		Buffer:     r.buf.Stats(),
	}
}

// dispatchLoop is the single consumer goroutine.
func (r *Router) dispatchLoop(ctx context.Context) {
	defer close(r.done)

	for {
		ev, ok := r.buf.Receive()
		if !ok {
			return
		}
		r.dispatch(ctx, ev)
	}
}

// dispatch hands one event to every sink.
func (r *Router) dispatch(ctx context.Context, ev Event) {
	for _, s := range r.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, r.cfg.SinkTimeout)
		err := s.Handle(sinkCtx, ev)
		cancel()

		if err != nil {
			r.sinkErrors.Add(1)
			r.logger.Warn("sink failed",
				"sink", s.Name(),
				"kind", ev.Kind,
				"event_id", ev.ID,
				"error", err,
			)
			continue
		}
		r.delivered.Add(1)
	}
}
