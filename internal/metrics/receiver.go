package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/esr-receiver/internal/receiver"
)

const namespace = "esr"

// Receiver records receiver activity. It implements receiver.Recorder.
type Receiver struct {
	State           prometheus.Gauge
	StateChanges    *prometheus.CounterVec
	DialAttempts    *prometheus.CounterVec
	Frames          prometheus.Counter
	FrameBytes      prometheus.Counter
	FrameMismatches prometheus.Counter
	ReadFailures    prometheus.Counter
	Stops           *prometheus.CounterVec
	StopDuration    prometheus.Histogram
}

var _ receiver.Recorder = (*Receiver)(nil)

// NewReceiver creates the receiver metrics and registers them with reg.
func NewReceiver(reg prometheus.Registerer) *Receiver {
	m := &Receiver{
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "receiver",
			Name:      "state",
			Help:      "Scanner link state (0=disconnected, 1=connecting, 2=connected)",
		}),
		StateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "receiver",
			Name:      "state_changes_total",
			Help:      "State notifications emitted, by state",
		}, []string{"state"}),
		DialAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "receiver",
			Name:      "dial_attempts_total",
			Help:      "Connection attempts, by result",
		}, []string{"result"}),
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "receiver",
			Name:      "frames_total",
			Help:      "Frames read from the scanner",
		}),
		FrameBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "receiver",
			Name:      "frame_bytes_total",
			Help:      "Payload bytes read, excluding headers",
		}),
		FrameMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "receiver",
			Name:      "frame_length_mismatch_total",
			Help:      "Frames whose header announced more bytes than were read",
		}),
		ReadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "receiver",
			Name:      "read_failures_total",
			Help:      "Reads that dropped the link",
		}),
		Stops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "receiver",
			Name:      "stops_total",
			Help:      "Stop calls on an active session, by outcome",
		}, []string{"outcome"}),
		StopDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "receiver",
			Name:      "stop_duration_seconds",
			Help:      "Time Stop spent waiting for the receive goroutine",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 0.75, 1, 1.5},
		}),
	}

	reg.MustRegister(
		m.State,
		m.StateChanges,
		m.DialAttempts,
		m.Frames,
		m.FrameBytes,
		m.FrameMismatches,
		m.ReadFailures,
		m.Stops,
		m.StopDuration,
	)
	return m
}

// StateChanged implements receiver.Recorder.
func (m *Receiver) StateChanged(state receiver.ConnectionState) {
	m.State.Set(float64(state))
	m.StateChanges.WithLabelValues(state.String()).Inc()
}

// DialAttempt implements receiver.Recorder.
func (m *Receiver) DialAttempt(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.DialAttempts.WithLabelValues(result).Inc()
}

// FrameReceived implements receiver.Recorder.
func (m *Receiver) FrameReceived(info receiver.FrameInfo) {
	m.Frames.Inc()
	m.FrameBytes.Add(float64(info.Payload))
	if info.Truncated() {
		m.FrameMismatches.Inc()
	}
}

// ReadFailed implements receiver.Recorder.
func (m *Receiver) ReadFailed(error, int) {
	m.ReadFailures.Inc()
}

// Stopped implements receiver.Recorder.
func (m *Receiver) Stopped(voluntary bool, elapsed time.Duration) {
	outcome := "voluntary"
	if !voluntary {
		outcome = "forced"
	}
	m.Stops.WithLabelValues(outcome).Inc()
	m.StopDuration.Observe(elapsed.Seconds())
}
