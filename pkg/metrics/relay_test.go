// Copyright 2024-2026 Aiku AI

package metrics

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRelayMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRelayMetrics(reg)
	m.IncEnqueued()
	m.IncEnqueued()
	m.IncDropped("queue_full")
	m.IncSent()
	m.IncRejected("own_webhook")
	m.IncClassified("advancement")
	m.IncExtractionError("lifecycle")
	m.SetQueueDepth(7)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	checks := []struct {
		name, label, value string
		want               float64
	}{
		{"mcrelay_outbound_enqueued_total", "", "", 2},
		{"mcrelay_outbound_dropped_total", "reason", "queue_full", 1},
		{"mcrelay_outbound_sent_total", "", "", 1},
		{"mcrelay_inbound_rejected_total", "reason", "own_webhook", 1},
		{"mcrelay_inbound_classified_total", "kind", "advancement", 1},
		{"mcrelay_extraction_errors_total", "kind", "lifecycle", 1},
	}
	for _, c := range checks {
		got, err := fetchCounterValue(mfs, c.name, c.label, c.value)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if got != c.want {
			t.Errorf("%s: got %f, want %f", c.name, got, c.want)
		}
	}

	mf := findMetricFamily(mfs, "mcrelay_queue_depth")
	if mf == nil || mf.GetMetric()[0].GetGauge().GetValue() != 7 {
		t.Errorf("queue depth gauge: got %v, want 7", mf)
	}
}

func TestNilRelayMetricsIsNoop(t *testing.T) {
	var m *RelayMetrics
	m.IncEnqueued()
	m.IncDropped("x")
	m.IncSent()
	m.IncFailed()
	m.SetQueueDepth(1)
	m.IncRejected("x")
	m.IncClassified("x")
	m.IncExtractionError("x")
	m.IncBroadcastError()

	if NewRelayMetrics(nil) != nil {
		t.Error("nil registerer should yield nil metrics")
	}
}

func TestNormalizeLabel(t *testing.T) {
	if got := normalizeLabel(""); got != "unknown" {
		t.Errorf("got %q, want unknown", got)
	}
	if got := normalizeLabel("bot"); got != "bot" {
		t.Errorf("got %q, want bot", got)
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if label == "" || matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, l := range labels {
		if l.GetName() == name && l.GetValue() == value {
			return true
		}
	}
	return false
}
