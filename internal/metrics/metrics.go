package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Frame results recorded by Relay.Frame.
const (
	FrameBroadcast   = "broadcast"
	FrameMalformed   = "malformed"
	FrameIgnored     = "ignored"
	FrameRateLimited = "rate_limited"
	FrameBinary      = "binary"
	FrameOversized   = "oversized"
)

// Relay groups the relay collectors. A nil *Relay is valid and records nothing.
type Relay struct {
	connections prometheus.Gauge
	frames      *prometheus.CounterVec
	dropped     prometheus.Counter
	rejected    prometheus.Counter
}

// NewRelay creates the collectors and registers them with reg.
func NewRelay(reg prometheus.Registerer) *Relay {
	m := &Relay{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatrelay_connections",
			Help: "Number of open websocket connections.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatrelay_frames_total",
			Help: "Inbound frames by handling result.",
		}, []string{"result"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_deliveries_dropped_total",
			Help: "Broadcast deliveries skipped because the connection was not writable.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_connections_rejected_total",
			Help: "Connections refused because the relay was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.frames, m.dropped, m.rejected)
	}
	return m
}

func (m *Relay) SetConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}

func (m *Relay) Frame(result string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(result).Inc()
}

func (m *Relay) Dropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *Relay) Rejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

// FrameCount returns the counter for result, for tests and health output.
func (m *Relay) FrameCount(result string) prometheus.Counter {
	return m.frames.WithLabelValues(result)
}

// DroppedCount returns the dropped deliveries counter.
func (m *Relay) DroppedCount() prometheus.Counter { return m.dropped }

// RejectedCount returns the rejected connections counter.
func (m *Relay) RejectedCount() prometheus.Counter { return m.rejected }

// ConnectionsGauge returns the open connections gauge.
func (m *Relay) ConnectionsGauge() prometheus.Gauge { return m.connections }
