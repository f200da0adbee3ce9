package monitoring

import (
	"time"

	"soundradius/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exposes session metrics. It implements the core's
// MetricsCollector port.
type PrometheusCollector struct {
	peersConnected       prometheus.Gauge
	peersJoinedTotal     prometheus.Counter
	peersLeftTotal       prometheus.Counter
	qualitySwitchesTotal *prometheus.CounterVec
	reconnectAttempts    prometheus.Counter
	reconnectExhausted   prometheus.Counter

	recomputeDuration prometheus.Histogram
	participantCount  prometheus.Gauge
	connectedEdges    prometheus.Gauge
	captureState      *prometheus.GaugeVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		peersConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "soundradius_peers_connected",
			Help: "Number of currently connected remote peers",
		}),

		peersJoinedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "soundradius_peers_joined_total",
			Help: "Total number of peer joins",
		}),

		peersLeftTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "soundradius_peers_left_total",
			Help: "Total number of peer departures",
		}),

		qualitySwitchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "soundradius_quality_switches_total",
			Help: "Total number of capture quality tier switches",
		}, []string{"tier"}),

		reconnectAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "soundradius_capture_reconnect_attempts_total",
			Help: "Total number of capture reconnection attempts",
		}),

		reconnectExhausted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "soundradius_capture_reconnect_exhausted_total",
			Help: "Total number of times capture reconnection gave up",
		}),

		recomputeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "soundradius_snapshot_recompute_duration_seconds",
			Help:    "Duration of session snapshot recomputes",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),

		participantCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "soundradius_session_participants",
			Help: "Number of participants in the session including local",
		}),

		connectedEdges: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "soundradius_proximity_connected_edges",
			Help: "Number of connected edges in the proximity graph",
		}),

		captureState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "soundradius_capture_state",
			Help: "Current capture state (1 for the active state, 0 otherwise)",
		}, []string{"state"}),
	}
}

func (p *PrometheusCollector) RecordPeerJoined() {
	p.peersConnected.Inc()
	p.peersJoinedTotal.Inc()
}

func (p *PrometheusCollector) RecordPeerLeft() {
	p.peersConnected.Dec()
	p.peersLeftTotal.Inc()
}

func (p *PrometheusCollector) RecordQualitySwitch(tier domain.QualityTier) {
	p.qualitySwitchesTotal.WithLabelValues(string(tier)).Inc()
}

func (p *PrometheusCollector) RecordReconnectAttempt() {
	p.reconnectAttempts.Inc()
}

func (p *PrometheusCollector) RecordReconnectExhausted() {
	p.reconnectExhausted.Inc()
}

func (p *PrometheusCollector) ObserveRecompute(duration time.Duration, participants, connectedEdges int) {
	p.recomputeDuration.Observe(duration.Seconds())
	p.participantCount.Set(float64(participants))
	p.connectedEdges.Set(float64(connectedEdges))
}

func (p *PrometheusCollector) SetCaptureState(state domain.CaptureState) {
	for _, s := range []domain.CaptureState{
		domain.CaptureIdle,
		domain.CaptureAcquiring,
		domain.CaptureConnected,
		domain.CaptureReconnecting,
		domain.CaptureFailed,
	} {
		value := 0.0
		if s == state {
			value = 1.0
		}
		p.captureState.WithLabelValues(string(s)).Set(value)
	}
}
