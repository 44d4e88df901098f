package playkit

import (
	"time"
)

// Metrics defines the interface for collecting playkit metrics.
// Implement this interface to integrate with your monitoring system; the
// prommetrics package provides a Prometheus implementation.
type Metrics interface {
	// IncrementCounter increments a counter metric
	IncrementCounter(name string, labels map[string]string)
	// RecordHistogram records a histogram/timing metric
	RecordHistogram(name string, value float64, labels map[string]string)
	// SetGauge sets a gauge metric value
	SetGauge(name string, value float64, labels map[string]string)
}

// NoOpMetrics is a no-op implementation of Metrics for when monitoring is disabled.
type NoOpMetrics struct{}

func (m *NoOpMetrics) IncrementCounter(name string, labels map[string]string)              {}
func (m *NoOpMetrics) RecordHistogram(name string, value float64, labels map[string]string) {}
func (m *NoOpMetrics) SetGauge(name string, value float64, labels map[string]string)        {}

// recordBillingCall records the outcome and latency of a call to the billing client.
func (m *Manager) recordBillingCall(operation string, result Result, duration time.Duration) {
	m.metrics.IncrementCounter("playkit_billing_calls_total", map[string]string{
		"operation": operation,
		"code":      result.Code.String(),
	})
	m.metrics.RecordHistogram("playkit_billing_call_duration_seconds", duration.Seconds(), map[string]string{
		"operation": operation,
	})
}

// recordPurchaseAction records what the classifier decided for a purchase.
func (m *Manager) recordPurchaseAction(action string) {
	m.metrics.IncrementCounter("playkit_purchases_processed_total", map[string]string{
		"action": action,
	})
}

func (m *Manager) recordInFlight(n int) {
	m.metrics.SetGauge("playkit_consumptions_in_flight", float64(n), nil)
}

func (m *Manager) recordConnectionState(state ConnState) {
	for _, s := range []ConnState{ConnDisconnected, ConnBackoffWait, ConnConnecting, ConnConnected} {
		v := 0.0
		if s == state {
			v = 1
		}
		m.metrics.SetGauge("playkit_connection_state", v, map[string]string{"state": s.String()})
	}
}
