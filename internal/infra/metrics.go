package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight process-level observability without external
// dependencies. Uses atomic operations for thread-safety. Per-channel
// message counting lives with the relay; these are coarse totals for the
// health endpoint and operational logs.
type Metrics struct {
	// Counters
	framesProcessed atomic.Uint64
	decodeErrors    atomic.Uint64
	reconnects      atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
	upstreamConnected atomic.Int32 // 1 = connected, 0 = down

	startedAt time.Time
}

// MetricsSnapshot is an immutable copy of the current values.
type MetricsSnapshot struct {
	FramesProcessed   uint64
	DecodeErrors      uint64
	Reconnects        uint64
	ActiveConnections int32
	UpstreamConnected bool
	Uptime            time.Duration
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = NewMetrics()

// NewMetrics creates a fresh metrics instance (tests use their own).
func NewMetrics() *Metrics {
	return &Metrics{startedAt: time.Now()}
}

// RecordFrame records one processed upstream frame.
func (m *Metrics) RecordFrame() {
	m.framesProcessed.Add(1)
}

// RecordDecodeError records one discarded malformed frame.
func (m *Metrics) RecordDecodeError() {
	m.decodeErrors.Add(1)
}

// RecordReconnect records one upstream reconnect attempt.
func (m *Metrics) RecordReconnect() {
	m.reconnects.Add(1)
}

// IncrementConnections tracks a new downstream subscriber.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections tracks a departed downstream subscriber.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// SetUpstreamConnected flips the upstream connectivity gauge.
func (m *Metrics) SetUpstreamConnected(connected bool) {
	if connected {
		m.upstreamConnected.Store(1)
	} else {
		m.upstreamConnected.Store(0)
	}
}

// Snapshot returns a consistent-enough copy for reporting.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		FramesProcessed:   m.framesProcessed.Load(),
		DecodeErrors:      m.decodeErrors.Load(),
		Reconnects:        m.reconnects.Load(),
		ActiveConnections: m.activeConnections.Load(),
		UpstreamConnected: m.upstreamConnected.Load() == 1,
		Uptime:            time.Since(m.startedAt),
	}
}

// Reset zeroes all counters and gauges.
func (m *Metrics) Reset() {
	m.framesProcessed.Store(0)
	m.decodeErrors.Store(0)
	m.reconnects.Store(0)
	m.activeConnections.Store(0)
	m.upstreamConnected.Store(0)
	m.startedAt = time.Now()
}
