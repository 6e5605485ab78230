// Package metrics is the Prometheus-backed render-loop observability layer
// named in SPEC_FULL.md §4.3: ambient, carried even though cue/effects
// scheduling itself is out of scope. It is grounded on
// luxfi-consensus/api/metrics's Registry/NewMetrics shape, generalized from
// consensus-round counters to render-tick histograms and counters.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps a prometheus.Registerer/Gatherer pair, mirroring the
// teacher corpus's Registry interface so callers never import the
// prometheus package directly outside this one.
type Registry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// NewRegistry constructs an empty metrics registry.
func NewRegistry() Registry {
	return prometheus.NewRegistry()
}

// Handler returns an http.Handler serving reg in the Prometheus exposition
// format, meant to be mounted at "/metrics" alongside the RPC transport.
func Handler(reg Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// RenderMetrics implements mixer.Metrics, translating each tick/coalesce
// observation into Prometheus series under namespace.
type RenderMetrics struct {
	tickDuration   prometheus.Histogram
	animatedTicks  prometheus.Counter
	coalescedEdits prometheus.Counter
}

// NewRenderMetrics constructs and registers the render-loop series.
func NewRenderMetrics(namespace string, registerer prometheus.Registerer) (*RenderMetrics, error) {
	m := &RenderMetrics{
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_tick_seconds",
			Help:      "Time spent computing and writing one render tick.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		animatedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_ticks_total",
			Help:      "Number of render ticks that observed an animated layer.",
		}),
		coalescedEdits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_coalesced_notifications_total",
			Help:      "Number of notifications folded into a single subsequent tick rather than triggering their own.",
		}),
	}
	if err := registerer.Register(m.tickDuration); err != nil {
		return nil, err
	}
	if err := registerer.Register(m.animatedTicks); err != nil {
		return nil, err
	}
	if err := registerer.Register(m.coalescedEdits); err != nil {
		return nil, err
	}
	return m, nil
}

// ObserveTick satisfies mixer.Metrics.
func (m *RenderMetrics) ObserveTick(duration time.Duration, animated bool) {
	m.tickDuration.Observe(duration.Seconds())
	if animated {
		m.animatedTicks.Inc()
	}
}

// ObserveCoalesced satisfies mixer.Metrics.
func (m *RenderMetrics) ObserveCoalesced(count int) {
	m.coalescedEdits.Add(float64(count))
}
