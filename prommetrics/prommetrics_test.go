package prommetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appodealstack/playkit"
)

var _ playkit.Metrics = (*Metrics)(nil)

func TestMetrics_Counter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	labels := map[string]string{"operation": "consume", "code": "OK"}
	m.IncrementCounter("playkit_billing_calls_total", labels)
	m.IncrementCounter("playkit_billing_calls_total", labels)
	m.IncrementCounter("playkit_billing_calls_total", map[string]string{"operation": "consume", "code": "ERROR"})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.counters["playkit_billing_calls_total"].With(labels)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.counters["playkit_billing_calls_total"]))
}

func TestMetrics_MismatchedLabelsDropped(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementCounter("playkit_purchases_processed_total", map[string]string{"action": "consume"})
	assert.NotPanics(t, func() {
		m.IncrementCounter("playkit_purchases_processed_total", map[string]string{"other": "x"})
	})
	assert.Equal(t, 1, testutil.CollectAndCount(m.counters["playkit_purchases_processed_total"]))
}

func TestMetrics_GaugeAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetGauge("playkit_consumptions_in_flight", 3, nil)
	m.SetGauge("playkit_consumptions_in_flight", 1, nil)
	m.RecordHistogram("playkit_billing_call_duration_seconds", 0.25, map[string]string{"operation": "acknowledge"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.gauges["playkit_consumptions_in_flight"].With(nil)))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]string)
	for _, f := range families {
		names[f.GetName()] = f.GetHelp()
	}
	assert.Contains(t, names, "playkit_consumptions_in_flight")
	assert.Equal(t, "Billing client call latency in seconds.", names["playkit_billing_call_duration_seconds"])
}
