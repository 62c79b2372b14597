// Copyright 2024-2026 Aiku AI

// Package metrics exposes Prometheus instrumentation for the relay. A nil
// *RelayMetrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mcrelay"

// RelayMetrics records outbound queue and inbound pipeline activity.
type RelayMetrics struct {
	enqueued         prometheus.Counter
	dropped          *prometheus.CounterVec
	sent             prometheus.Counter
	failed           prometheus.Counter
	queueDepth       prometheus.Gauge
	rejected         *prometheus.CounterVec
	classified       *prometheus.CounterVec
	extractionErrors *prometheus.CounterVec
	broadcastErrors  prometheus.Counter
}

// NewRelayMetrics registers the relay metrics on reg. A nil registerer yields
// a no-op instance.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return nil
	}
	m := &RelayMetrics{
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_enqueued_total",
			Help:      "Outbound messages accepted by the dispatch queue.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_dropped_total",
			Help:      "Outbound messages dropped before sending.",
		}, []string{"reason"}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_sent_total",
			Help:      "Outbound messages delivered to the chat platform.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_failed_total",
			Help:      "Outbound messages whose delivery failed.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Messages waiting in the dispatch queue.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_rejected_total",
			Help:      "Inbound messages rejected by echo prevention.",
		}, []string{"reason"}),
		classified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_classified_total",
			Help:      "Inbound messages by classified payload kind.",
		}, []string{"kind"}),
		extractionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_errors_total",
			Help:      "Structured payloads that fell back to degraded rendering.",
		}, []string{"kind"}),
		broadcastErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_errors_total",
			Help:      "In-game broadcasts that failed.",
		}),
	}
	reg.MustRegister(m.enqueued, m.dropped, m.sent, m.failed, m.queueDepth,
		m.rejected, m.classified, m.extractionErrors, m.broadcastErrors)
	return m
}

func (m *RelayMetrics) IncEnqueued() {
	if m == nil {
		return
	}
	m.enqueued.Inc()
}

func (m *RelayMetrics) IncDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *RelayMetrics) IncSent() {
	if m == nil {
		return
	}
	m.sent.Inc()
}

func (m *RelayMetrics) IncFailed() {
	if m == nil {
		return
	}
	m.failed.Inc()
}

func (m *RelayMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *RelayMetrics) IncRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *RelayMetrics) IncClassified(kind string) {
	if m == nil {
		return
	}
	m.classified.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *RelayMetrics) IncExtractionError(kind string) {
	if m == nil {
		return
	}
	m.extractionErrors.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *RelayMetrics) IncBroadcastError() {
	if m == nil {
		return
	}
	m.broadcastErrors.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
