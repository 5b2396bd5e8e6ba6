package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "voiced"

// Metrics holds the server collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// Sessions
	ActiveSessions     prometheus.Gauge
	TotalSessions      prometheus.Counter
	SyncedSessions     prometheus.Gauge
	SessionDuration    prometheus.Histogram
	AuthRejects        *prometheus.CounterVec
	ProtocolViolations prometheus.Counter

	// Control channel
	MessagesIn    *prometheus.CounterVec
	OutboundDrops *prometheus.CounterVec
	RateLimited   *prometheus.CounterVec

	// Crypto
	CryptoFailures *prometheus.CounterVec
	ResyncsIssued  prometheus.Counter
	ClientResyncs  prometheus.Counter

	// UDP
	UDPPacketsIn      prometheus.Counter
	UDPPacketsOut     prometheus.Counter
	UDPPacketsDropped *prometheus.CounterVec
	TunnelPackets     prometheus.Counter
	LegacyPings       prometheus.Counter
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of connected sessions",
		}),

		TotalSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of accepted control connections",
		}),

		SyncedSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "synced_sessions",
			Help:      "Number of sessions that completed the handshake",
		}),

		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Lifetime of closed sessions",
			Buckets:   []float64{1, 10, 60, 300, 1800, 3600, 4 * 3600, 12 * 3600},
		}),

		AuthRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rejects_total",
			Help:      "Rejected connection attempts by reason",
		}, []string{"reason"}),

		ProtocolViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_violations_total",
			Help:      "Sessions closed for sending a message not valid in their state",
		}),

		MessagesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_messages_total",
			Help:      "Control messages received by type",
		}, []string{"type"}),

		OutboundDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_drops_total",
			Help:      "Outbound control messages dropped under backpressure",
		}, []string{"type"}),

		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Inbound control messages dropped by the per-session limiter",
		}, []string{"type"}),

		CryptoFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crypto_failures_total",
			Help:      "Rejected datagrams by failure kind",
		}, []string{"kind"}),

		ResyncsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resyncs_issued_total",
			Help:      "CryptSetup messages sent to recover a desynchronized session",
		}),

		ClientResyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_resyncs_total",
			Help:      "Decrypt nonce updates requested by clients",
		}),

		UDPPacketsIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "udp_packets_in_total",
			Help:      "Datagrams received",
		}),

		UDPPacketsOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "udp_packets_out_total",
			Help:      "Datagrams sent",
		}),

		UDPPacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "udp_packets_dropped_total",
			Help:      "Datagrams dropped by reason",
		}, []string{"reason"}),

		TunnelPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tunnel_packets_total",
			Help:      "Voice packets carried over the control channel",
		}),

		LegacyPings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "legacy_pings_total",
			Help:      "Unencrypted server list pings answered",
		}),
	}

	collectors := []prometheus.Collector{
		m.ActiveSessions,
		m.TotalSessions,
		m.SyncedSessions,
		m.SessionDuration,
		m.AuthRejects,
		m.ProtocolViolations,
		m.MessagesIn,
		m.OutboundDrops,
		m.RateLimited,
		m.CryptoFailures,
		m.ResyncsIssued,
		m.ClientResyncs,
		m.UDPPacketsIn,
		m.UDPPacketsOut,
		m.UDPPacketsDropped,
		m.TunnelPackets,
		m.LegacyPings,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// RecordSessionOpened counts an accepted connection
func (m *Metrics) RecordSessionOpened() {
	if m == nil {
		return
	}
	m.TotalSessions.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionSynced counts a completed handshake
func (m *Metrics) RecordSessionSynced() {
	if m == nil {
		return
	}
	m.SyncedSessions.Inc()
}

// RecordSessionClosed records the end of a session
func (m *Metrics) RecordSessionClosed(lifetime time.Duration, wasSynced bool) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	if wasSynced {
		m.SyncedSessions.Dec()
	}
	m.SessionDuration.Observe(lifetime.Seconds())
}

// RecordAuthReject counts a Reject by reason
func (m *Metrics) RecordAuthReject(reason string) {
	if m == nil {
		return
	}
	m.AuthRejects.WithLabelValues(reason).Inc()
}

// RecordViolation counts a protocol violation
func (m *Metrics) RecordViolation() {
	if m == nil {
		return
	}
	m.ProtocolViolations.Inc()
}

// RecordMessageIn counts an inbound control message
func (m *Metrics) RecordMessageIn(messageType string) {
	if m == nil {
		return
	}
	m.MessagesIn.WithLabelValues(messageType).Inc()
}

// RecordOutboundDrop counts an outbound message dropped under backpressure
func (m *Metrics) RecordOutboundDrop(messageType string) {
	if m == nil {
		return
	}
	m.OutboundDrops.WithLabelValues(messageType).Inc()
}

// RecordRateLimited counts an inbound message dropped by the limiter
func (m *Metrics) RecordRateLimited(messageType string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(messageType).Inc()
}

// RecordCryptoFailure counts a rejected datagram
func (m *Metrics) RecordCryptoFailure(kind string) {
	if m == nil {
		return
	}
	m.CryptoFailures.WithLabelValues(kind).Inc()
}

// RecordResync counts a server initiated CryptSetup
func (m *Metrics) RecordResync() {
	if m == nil {
		return
	}
	m.ResyncsIssued.Inc()
}

// RecordClientResync counts a client nonce update
func (m *Metrics) RecordClientResync() {
	if m == nil {
		return
	}
	m.ClientResyncs.Inc()
}

// RecordUDPIn counts a received datagram
func (m *Metrics) RecordUDPIn() {
	if m == nil {
		return
	}
	m.UDPPacketsIn.Inc()
}

// RecordUDPOut counts a sent datagram
func (m *Metrics) RecordUDPOut() {
	if m == nil {
		return
	}
	m.UDPPacketsOut.Inc()
}

// RecordUDPDrop counts a dropped datagram
func (m *Metrics) RecordUDPDrop(reason string) {
	if m == nil {
		return
	}
	m.UDPPacketsDropped.WithLabelValues(reason).Inc()
}

// RecordTunnel counts a voice packet carried over TCP
func (m *Metrics) RecordTunnel() {
	if m == nil {
		return
	}
	m.TunnelPackets.Inc()
}

// RecordLegacyPing counts an answered server list ping
func (m *Metrics) RecordLegacyPing() {
	if m == nil {
		return
	}
	m.LegacyPings.Inc()
}
