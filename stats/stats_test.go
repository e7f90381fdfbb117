package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func TestFederateMetricsRecordGrantIncrementsLabeledCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewFederateMetrics(reg, "fedA")

	m.RecordGrant("next_step", 42)
	m.RecordGrant("next_step", 43)
	m.RecordGrant("iterating", 42)

	if got := counterValue(t, m.grantsTotal.WithLabelValues("next_step")); got != 2 {
		t.Fatalf("want 2 next_step grants, got %v", got)
	}
	if got := counterValue(t, m.grantsTotal.WithLabelValues("iterating")); got != 1 {
		t.Fatalf("want 1 iterating grant, got %v", got)
	}
}

func TestFederateMetricsNilSafe(t *testing.T) {
	var m *FederateMetrics
	m.RecordGrant("next_step", 1)
	m.RecordIteration("dependency")
	m.SetMode(2)
}

func TestNewFederateMetricsReusesExistingCollectorOnRestart(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewFederateMetrics(reg, "fedA")
	first.RecordGrant("next_step", 1)

	second := NewFederateMetrics(reg, "fedA")
	second.RecordGrant("next_step", 1)

	if got := counterValue(t, second.grantsTotal.WithLabelValues("next_step")); got != 2 {
		t.Fatalf("want the reused collector to carry forward the prior count, got %v", got)
	}
}

func TestBrokerMetricsNilSafe(t *testing.T) {
	var m *BrokerMetrics
	m.RecordRouted("DATA")
	m.RecordUnknownDest()
	m.SetQueueDepth("peer1", 3)
	m.SetChildCount(2)
}

func TestBrokerMetricsRecordRouted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBrokerMetrics(reg, "root")

	m.RecordRouted("DATA")
	m.RecordRouted("DATA")
	m.RecordUnknownDest()

	if got := counterValue(t, m.framesRoutedTotal.WithLabelValues("DATA")); got != 2 {
		t.Fatalf("want 2 DATA frames routed, got %v", got)
	}
	if got := counterValue(t, m.unknownDestTotal); got != 1 {
		t.Fatalf("want 1 unknown-dest bounce, got %v", got)
	}
}
