package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, c prometheus.Collector) *dto.Metric {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var m dto.Metric
	if err := (<-ch).Write(&m); err != nil {
		t.Fatalf("writing metric: %v", err)
	}
	return &m
}

func TestRenderMetrics_ObserveTickIncrementsAnimatedCounterOnlyWhenAnimated(t *testing.T) {
	reg := NewRegistry()
	m, err := NewRenderMetrics("lumencore_test", reg)
	if err != nil {
		t.Fatalf("NewRenderMetrics: %v", err)
	}

	m.ObserveTick(2*time.Millisecond, false)
	if got := gaugeValue(t, m.animatedTicks).GetCounter().GetValue(); got != 0 {
		t.Fatalf("animatedTicks = %v, want 0 after a non-animated tick", got)
	}

	m.ObserveTick(2*time.Millisecond, true)
	if got := gaugeValue(t, m.animatedTicks).GetCounter().GetValue(); got != 1 {
		t.Fatalf("animatedTicks = %v, want 1 after one animated tick", got)
	}
}

func TestRenderMetrics_ObserveCoalescedAddsCount(t *testing.T) {
	reg := NewRegistry()
	m, err := NewRenderMetrics("lumencore_test2", reg)
	if err != nil {
		t.Fatalf("NewRenderMetrics: %v", err)
	}
	m.ObserveCoalesced(3)
	m.ObserveCoalesced(2)
	if got := gaugeValue(t, m.coalescedEdits).GetCounter().GetValue(); got != 5 {
		t.Fatalf("coalescedEdits = %v, want 5", got)
	}
}

func TestNewRenderMetrics_DuplicateNamespaceRegistrationFails(t *testing.T) {
	reg := NewRegistry()
	if _, err := NewRenderMetrics("dup", reg); err != nil {
		t.Fatalf("first NewRenderMetrics: %v", err)
	}
	if _, err := NewRenderMetrics("dup", reg); err == nil {
		t.Fatalf("expected second NewRenderMetrics under the same namespace to fail registration")
	}
}
