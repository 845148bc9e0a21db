package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the relay.
type Metrics struct {
	activeConnections   prometheus.Gauge
	connectionsTotal    prometheus.Counter
	disconnectionsTotal prometheus.Counter
	framesRelayed       *prometheus.CounterVec
	framesDropped       *prometheus.CounterVec
	broadcastFanout     prometheus.Histogram
	persistenceFailures *prometheus.CounterVec
}

// NewMetrics creates and registers all relay metrics with the default
// Prometheus registry. Call it once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		activeConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_connections",
			Help: "Current number of live client connections",
		}),
		connectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_connections_total",
			Help: "Total number of accepted connections",
		}),
		disconnectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_disconnections_total",
			Help: "Total number of closed connections",
		}),
		framesRelayed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_frames_relayed_total",
			Help: "Total number of frames delivered to clients, by command",
		}, []string{"command"}),
		framesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_frames_dropped_total",
			Help: "Total number of inbound frames dropped, by reason",
		}, []string{"reason"}),
		broadcastFanout: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_broadcast_fanout",
			Help:    "Number of connections each broadcast reached",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
		persistenceFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_persistence_failures_total",
			Help: "Total number of failed persistence API calls, by operation",
		}, []string{"operation"}),
	}
}

// RecordActiveConnections updates the live connection gauge.
func (m *Metrics) RecordActiveConnections(count int) {
	m.activeConnections.Set(float64(count))
}

// RecordConnection increments the accepted connection counter.
func (m *Metrics) RecordConnection() {
	m.connectionsTotal.Inc()
}

// RecordDisconnection increments the closed connection counter.
func (m *Metrics) RecordDisconnection() {
	m.disconnectionsTotal.Inc()
}

// RecordFrameRelayed increments the delivery counter for one command.
func (m *Metrics) RecordFrameRelayed(command string) {
	m.framesRelayed.WithLabelValues(command).Inc()
}

// RecordFrameDropped increments the dropped frame counter for one reason.
func (m *Metrics) RecordFrameDropped(reason string) {
	m.framesDropped.WithLabelValues(reason).Inc()
}

// RecordBroadcastFanout records how many peers one broadcast reached.
func (m *Metrics) RecordBroadcastFanout(recipients int) {
	m.broadcastFanout.Observe(float64(recipients))
}

// RecordPersistenceFailure increments the failed API call counter for one
// operation.
func (m *Metrics) RecordPersistenceFailure(operation string) {
	m.persistenceFailures.WithLabelValues(operation).Inc()
}
