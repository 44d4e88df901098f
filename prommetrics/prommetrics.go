// Package prommetrics exports playkit metrics to Prometheus.
package prommetrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var help = map[string]string{
	"playkit_billing_calls_total":           "Billing client calls by operation and response code.",
	"playkit_billing_call_duration_seconds": "Billing client call latency in seconds.",
	"playkit_purchases_processed_total":     "Purchases handled by the purchase manager, by action taken.",
	"playkit_consumptions_in_flight":        "Consume requests awaiting a reply.",
	"playkit_connection_state":              "1 for the current billing connection state, 0 otherwise.",
}

// Metrics implements playkit.Metrics. Vectors are created on first use with
// the label names of that first observation; later observations of the same
// metric with other label names are dropped.
type Metrics struct {
	factory promauto.Factory

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// New registers metrics with reg. A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		factory:    promauto.With(reg),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

func (m *Metrics) IncrementCounter(name string, labels map[string]string) {
	m.mu.Lock()
	vec, ok := m.counters[name]
	if !ok {
		vec = m.factory.NewCounterVec(prometheus.CounterOpts{Name: name, Help: helpFor(name)}, labelNames(labels))
		m.counters[name] = vec
	}
	m.mu.Unlock()

	if c, err := vec.GetMetricWith(labels); err == nil {
		c.Inc()
	}
}

func (m *Metrics) RecordHistogram(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	vec, ok := m.histograms[name]
	if !ok {
		vec = m.factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    helpFor(name),
			Buckets: prometheus.DefBuckets,
		}, labelNames(labels))
		m.histograms[name] = vec
	}
	m.mu.Unlock()

	if h, err := vec.GetMetricWith(labels); err == nil {
		h.Observe(value)
	}
}

func (m *Metrics) SetGauge(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	vec, ok := m.gauges[name]
	if !ok {
		vec = m.factory.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: helpFor(name)}, labelNames(labels))
		m.gauges[name] = vec
	}
	m.mu.Unlock()

	if g, err := vec.GetMetricWith(labels); err == nil {
		g.Set(value)
	}
}

func helpFor(name string) string {
	if h, ok := help[name]; ok {
		return h
	}
	return name
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
